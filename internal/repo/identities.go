package repo

import (
	"context"
	"database/sql"

	"taskdesk/internal/domain"
)

const identityColumns = `id,name,email,password_hash,role,created_at`

func scanIdentity(scan func(dest ...any) error) (domain.Identity, error) {
	var id domain.Identity
	var role string
	err := scan(&id.ID, &id.Name, &id.Email, &id.PasswordHash, &role, &id.CreatedAt)
	if err == sql.ErrNoRows {
		return id, ErrIdentityNotFound
	}
	if err != nil {
		return id, err
	}
	id.Role, err = domain.ParseRole(role)
	return id, err
}

func (r Repo) InsertIdentity(ctx context.Context, tx *sql.Tx, id domain.Identity) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO identities(id,name,email,password_hash,role,created_at) VALUES (?,?,?,?,?,?)`,
		id.ID, id.Name, id.Email, id.PasswordHash, id.Role.String(), id.CreatedAt)
	return err
}

func (r Repo) GetIdentity(ctx context.Context, id string) (domain.Identity, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+identityColumns+` FROM identities WHERE id=?`, id)
	return scanIdentity(row.Scan)
}

func (r Repo) GetIdentityByEmail(ctx context.Context, email string) (domain.Identity, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+identityColumns+` FROM identities WHERE email=?`, email)
	return scanIdentity(row.Scan)
}

func (r Repo) ListIdentities(ctx context.Context) ([]domain.Identity, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+identityColumns+` FROM identities ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Identity
	for rows.Next() {
		id, err := scanIdentity(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, id)
	}
	return res, rows.Err()
}

func (r Repo) UpdateIdentityRole(ctx context.Context, tx *sql.Tx, id string, role domain.Role) error {
	res, err := tx.ExecContext(ctx, `UPDATE identities SET role=? WHERE id=?`, role.String(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrIdentityNotFound
	}
	return nil
}

// DeleteIdentity removes an identity; assignment rows cascade.
func (r Repo) DeleteIdentity(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM identities WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrIdentityNotFound
	}
	return nil
}

// IdentityExists is a cheap existence probe used while validating
// assignment targets.
func (r Repo) IdentityExists(ctx context.Context, id string) (bool, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT 1 FROM identities WHERE id=? LIMIT 1`, id)
	var n int
	err := row.Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}
