package rbac

import "fmt"

// 权限常量
const (
	PermissionReadEmails     = "emails:read"
	PermissionWriteMetadata  = "metadata:write"
	PermissionDeleteMetadata = "metadata:delete"
	PermissionReadReminders  = "reminders:read"
	PermissionDeleteAccount  = "account:delete"
	PermissionSyncUsers      = "users:sync"
	PermissionReplayOutbox   = "outbox:replay"
)

// 角色常量
const (
	RoleUser    = "user"
	RoleAdmin   = "admin"
	RoleService = "service" // 身份服务使用的机器账号
)

var userPermissions = []string{
	PermissionReadEmails,
	PermissionWriteMetadata,
	PermissionDeleteMetadata,
	PermissionReadReminders,
	PermissionDeleteAccount,
}

// 角色权限映射
var rolePermissions = map[string][]string{
	RoleUser:    userPermissions,
	RoleAdmin:   append(append([]string{}, userPermissions...), PermissionReplayOutbox, PermissionSyncUsers),
	RoleService: {PermissionSyncUsers},
}

// NormalizeRole 令牌中未携带角色时按普通用户处理
func NormalizeRole(role string) string {
	if role == "" {
		return RoleUser
	}
	return role
}

// HasPermission 检查角色是否有指定权限
func HasPermission(role, permission string) bool {
	for _, p := range rolePermissions[NormalizeRole(role)] {
		if p == permission {
			return true
		}
	}
	return false
}

// CheckPermission 检查权限（返回错误而不是布尔值，便于处理）
func CheckPermission(userID int64, role, permission string) error {
	if !HasPermission(role, permission) {
		return &PermissionDeniedError{
			UserID:     userID,
			Role:       NormalizeRole(role),
			Permission: permission,
		}
	}
	return nil
}

// PermissionDeniedError 表示权限不足的错误
type PermissionDeniedError struct {
	UserID     int64
	Role       string
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("role %q lacks permission %q", e.Role, e.Permission)
}
