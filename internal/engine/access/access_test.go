package access_test

import (
	"errors"
	"testing"

	"taskdesk/internal/domain"
	"taskdesk/internal/engine/access"
)

func TestAuthorizeMatrix(t *testing.T) {
	task := domain.Task{ID: "t1", CreatedBy: "admin-x"}
	cases := []struct {
		name   string
		actor  string
		role   domain.Role
		action access.Action
		want   bool
	}{
		{"root updates any task", "root-z", domain.RoleRoot, access.ActionUpdate, true},
		{"root deletes any task", "root-z", domain.RoleRoot, access.ActionDelete, true},
		{"root assigns any task", "root-z", domain.RoleRoot, access.ActionAssign, true},
		{"admin updates own task", "admin-x", domain.RoleAdmin, access.ActionUpdate, true},
		{"admin deletes own task", "admin-x", domain.RoleAdmin, access.ActionDelete, true},
		{"admin assigns own task", "admin-x", domain.RoleAdmin, access.ActionAssign, true},
		{"admin unassigns own task", "admin-x", domain.RoleAdmin, access.ActionUnassign, true},
		{"other admin cannot update", "admin-y", domain.RoleAdmin, access.ActionUpdate, false},
		{"other admin cannot delete", "admin-y", domain.RoleAdmin, access.ActionDelete, false},
		{"other admin cannot assign", "admin-y", domain.RoleAdmin, access.ActionAssign, false},
		{"user cannot update", "user-u", domain.RoleUser, access.ActionUpdate, false},
		{"user cannot delete", "user-u", domain.RoleUser, access.ActionDelete, false},
		{"user cannot assign even own-named", "admin-x", domain.RoleUser, access.ActionAssign, false},
		{"user can read", "user-u", domain.RoleUser, access.ActionRead, true},
		{"user can list", "user-u", domain.RoleUser, access.ActionReadAll, true},
		{"admin can create", "admin-y", domain.RoleAdmin, access.ActionCreate, true},
		{"root can create", "root-z", domain.RoleRoot, access.ActionCreate, true},
		{"user cannot create", "user-u", domain.RoleUser, access.ActionCreate, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := access.Authorize(tc.actor, tc.role, tc.action, task)
			if got != tc.want {
				t.Fatalf("Authorize(%s, %s, %s) = %v, want %v", tc.actor, tc.role, tc.action, got, tc.want)
			}
		})
	}
}

func TestCheckReturnsDeniedError(t *testing.T) {
	task := domain.Task{ID: "t1", CreatedBy: "admin-x"}
	err := access.Check("admin-y", domain.RoleAdmin, access.ActionDelete, task)
	var de access.DeniedError
	if !errors.As(err, &de) {
		t.Fatalf("expected DeniedError, got %v", err)
	}
	if de.Action != access.ActionDelete {
		t.Fatalf("action = %s, want %s", de.Action, access.ActionDelete)
	}
	if err := access.Check("admin-x", domain.RoleAdmin, access.ActionDelete, task); err != nil {
		t.Fatalf("owner should pass: %v", err)
	}
}

func TestRoleOrdering(t *testing.T) {
	if !domain.RoleRoot.AtLeast(domain.RoleAdmin) || !domain.RoleAdmin.AtLeast(domain.RoleUser) {
		t.Fatal("role ordering broken")
	}
	if domain.RoleUser.AtLeast(domain.RoleAdmin) {
		t.Fatal("user should not outrank admin")
	}
}

func TestRequireRole(t *testing.T) {
	if err := access.RequireRole(domain.RoleRoot, domain.RoleAdmin); err != nil {
		t.Fatalf("root should satisfy admin: %v", err)
	}
	err := access.RequireRole(domain.RoleAdmin, domain.RoleRoot)
	var re access.RoleDeniedError
	if !errors.As(err, &re) || re.Required != domain.RoleRoot {
		t.Fatalf("expected RoleDeniedError{root}, got %v", err)
	}
}
