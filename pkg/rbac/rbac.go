package rbac

import (
	"context"
	"slices"
)

// 权限常量
const (
	PermissionReadMilestone    = "milestone:read"
	PermissionCreateMilestone  = "milestone:create"
	PermissionCloseMilestone   = "milestone:close"
	PermissionAssociateRelease = "release:associate"
	PermissionCreateRelease    = "release:create"

	// 管理操作
	PermissionManageCascades = "admin:cascades"
)

// 角色常量
const (
	RoleGuest      = "guest"
	RoleReporter   = "reporter"
	RoleDeveloper  = "developer"
	RoleMaintainer = "maintainer"
	RoleAdmin      = "admin"
)

// 角色权限映射
var rolePermissions = map[string][]string{
	RoleGuest: {
		PermissionReadMilestone,
	},
	RoleReporter: {
		PermissionReadMilestone,
	},
	RoleDeveloper: {
		PermissionReadMilestone,
		PermissionCreateMilestone,
		PermissionCreateRelease,
		PermissionAssociateRelease,
	},
	RoleMaintainer: {
		PermissionReadMilestone,
		PermissionCreateMilestone,
		PermissionCreateRelease,
		PermissionAssociateRelease,
		PermissionCloseMilestone,
	},
	RoleAdmin: {
		PermissionReadMilestone,
		PermissionCreateMilestone,
		PermissionCreateRelease,
		PermissionAssociateRelease,
		PermissionCloseMilestone,
		PermissionManageCascades,
	},
}

// Actor 已认证的调用者，来自 JWT claims
type Actor struct {
	ID   int64
	Role string
}

// HasPermission 检查角色是否有指定权限
func HasPermission(role, permission string) bool {
	permissions, ok := rolePermissions[role]
	if !ok {
		return false
	}
	return slices.Contains(permissions, permission)
}

// Authorizer 判断调用者能否对里程碑执行某个操作
type Authorizer interface {
	IsAuthorized(ctx context.Context, actor Actor, milestoneID int64, action string) bool
}

// RoleAuthorizer 仅按角色授权，不考虑里程碑归属
type RoleAuthorizer struct{}

func NewRoleAuthorizer() *RoleAuthorizer {
	return &RoleAuthorizer{}
}

func (RoleAuthorizer) IsAuthorized(_ context.Context, actor Actor, _ int64, action string) bool {
	if actor.ID <= 0 {
		return false
	}
	return HasPermission(actor.Role, action)
}

// CheckPermission 返回错误而不是布尔值，便于 handler 处理
func CheckPermission(ctx context.Context, authz Authorizer, actor Actor, milestoneID int64, action string) error {
	if !authz.IsAuthorized(ctx, actor, milestoneID, action) {
		return &PermissionDeniedError{
			ActorID:    actor.ID,
			Permission: action,
		}
	}
	return nil
}

// PermissionDeniedError 表示权限不足的错误
type PermissionDeniedError struct {
	ActorID    int64
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return "insufficient permissions: " + e.Permission
}
