package models

import (
	"fmt"
)

// Role 角色类型（device/staff/family/admin）
type Role string

const (
	RoleDevice Role = "device" // 被照护者的平板/设备端
	RoleStaff  Role = "staff"  // 机构护理人员
	RoleFamily Role = "family" // 家属
	RoleAdmin  Role = "admin"  // 平台管理员
)

// ParseRole 解析角色字符串（未知角色返回错误）
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleDevice, RoleStaff, RoleFamily, RoleAdmin:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown role: %s", s)
	}
}

// Actor 逻辑身份（与物理连接解耦，一个 Actor 可持有多个连接）
type Actor struct {
	ActorID string `json:"actor_id"`
	Role    Role   `json:"role"`

	// 作用域：staff/device 按机构，family/device 按被照护者
	HomeID    string `json:"home_id,omitempty"`    // 机构ID
	SubjectID string `json:"subject_id,omitempty"` // 被照护者ID（device/family）
}

// Validate 校验作用域完整性（authenticate 时拒绝无效 Actor）
func (a *Actor) Validate() error {
	if a.ActorID == "" {
		return fmt.Errorf("actor_id is required")
	}
	switch a.Role {
	case RoleDevice:
		if a.SubjectID == "" {
			return fmt.Errorf("device actor requires subject_id")
		}
	case RoleStaff:
		if a.HomeID == "" {
			return fmt.Errorf("staff actor requires home_id")
		}
	case RoleFamily:
		if a.SubjectID == "" {
			return fmt.Errorf("family actor requires subject_id")
		}
	case RoleAdmin:
		// admin 为全局作用域，不需要 home/subject
	default:
		return fmt.Errorf("unknown role: %s", a.Role)
	}
	return nil
}
