package rbac

import (
	"context"
	"errors"
	"testing"
)

func TestRoleAuthorizer(t *testing.T) {
	authz := NewRoleAuthorizer()
	ctx := context.Background()

	tests := []struct {
		name   string
		actor  Actor
		action string
		want   bool
	}{
		{"maintainer closes", Actor{ID: 1, Role: RoleMaintainer}, PermissionCloseMilestone, true},
		{"developer cannot close", Actor{ID: 2, Role: RoleDeveloper}, PermissionCloseMilestone, false},
		{"developer associates", Actor{ID: 2, Role: RoleDeveloper}, PermissionAssociateRelease, true},
		{"guest reads", Actor{ID: 3, Role: RoleGuest}, PermissionReadMilestone, true},
		{"guest cannot create", Actor{ID: 3, Role: RoleGuest}, PermissionCreateMilestone, false},
		{"unknown role", Actor{ID: 4, Role: "owner"}, PermissionReadMilestone, false},
		{"anonymous", Actor{Role: RoleAdmin}, PermissionReadMilestone, false},
		{"admin manages cascades", Actor{ID: 5, Role: RoleAdmin}, PermissionManageCascades, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := authz.IsAuthorized(ctx, tt.actor, 10, tt.action); got != tt.want {
				t.Fatalf("IsAuthorized = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCheckPermission(t *testing.T) {
	err := CheckPermission(context.Background(), NewRoleAuthorizer(), Actor{ID: 9, Role: RoleReporter}, 1, PermissionCloseMilestone)
	var denied *PermissionDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("err = %v, want PermissionDeniedError", err)
	}
	if denied.ActorID != 9 || denied.Permission != PermissionCloseMilestone {
		t.Fatalf("denied = %+v", denied)
	}
}
