package repo

import (
	"context"
	"database/sql"

	"taskdesk/internal/domain"
)

// RevokeSession records a refresh-token jti so VerifyRefresh rejects it for
// the remainder of its lifetime. Revoking the same jti twice is a no-op.
func (r Repo) RevokeSession(ctx context.Context, s domain.RevokedSession) error {
	_, err := r.DB.ExecContext(ctx, `INSERT OR IGNORE INTO revoked_sessions(jti, subject, expires_at, revoked_at) VALUES (?,?,?,?)`,
		s.JTI, s.Subject, s.ExpiresAt, s.RevokedAt)
	return err
}

func (r Repo) IsSessionRevoked(ctx context.Context, jti string) (bool, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT 1 FROM revoked_sessions WHERE jti=? LIMIT 1`, jti)
	var n int
	err := row.Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// PurgeExpiredSessions drops revocation rows whose tokens have expired on
// their own; comparing RFC3339 strings lexicographically is sound.
func (r Repo) PurgeExpiredSessions(ctx context.Context, now string) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM revoked_sessions WHERE expires_at < ?`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
