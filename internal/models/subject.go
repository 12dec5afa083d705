package models

// Subject 被照护者的路由描述
// 目录数据（机构归属、设备、家属关联）由平台目录服务维护，
// 本子系统只读共享表做受众解析
type Subject struct {
	SubjectID     string   `json:"subject_id"`
	HomeID        string   `json:"home_id"`
	DisplayName   string   `json:"display_name"`
	DeviceActorID string   `json:"device_actor_id"`
	FamilyIDs     []string `json:"family_ids"` // 关注该被照护者的家属 actor
}
