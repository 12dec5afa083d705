package router

import (
	"carelink-signal/internal/models"
)

// Audience 受众计算结果
// Match 判定一个在线 actor 是否属于受众；
// OfflinePush 列出受众中按 ID 明确标识、离线时有资格收到推送回落的成员
// （staff/admin 是值班工位，只做在线投递）
type Audience struct {
	Match       func(models.Actor) bool
	OfflinePush []string
}

// Compute 根据可见性表计算事件受众（纯函数，受众永不落库）
//
//	help_press / alert(critical|high): device + 机构全部 staff + 全部关联 family + admin，离线推送
//	alert(medium|low):                 staff + admin，不含 family，不推送
//	message_to_device:                 仅 device，离线推送
//	message_to_family:                 被点名的家属 + 关注该 subject 的全部家属，离线推送
//	presence:                          仅机构 staff，永不推送
//	call:                              点对点信令，由呼叫协调器直接寻址，此处不参与
func Compute(subject models.Subject, category models.EventCategory, severity models.Severity, targetActorID string) Audience {
	switch category {
	case models.CategoryHelpPress:
		return fullCareCircle(subject)

	case models.CategoryAlert:
		if severity.IsNotifiable() {
			return fullCareCircle(subject)
		}
		// medium/low：staff + admin，家属既不投递也不推送
		return Audience{
			Match: func(a models.Actor) bool {
				return (a.Role == models.RoleStaff && a.HomeID == subject.HomeID) ||
					a.Role == models.RoleAdmin
			},
		}

	case models.CategoryMessageToDevice:
		return Audience{
			Match: func(a models.Actor) bool {
				return a.Role == models.RoleDevice && a.SubjectID == subject.SubjectID
			},
			OfflinePush: nonEmpty(subject.DeviceActorID),
		}

	case models.CategoryMessageToFamily:
		pushIDs := appendUnique(subject.FamilyIDs, targetActorID)
		return Audience{
			Match: func(a models.Actor) bool {
				if a.ActorID == targetActorID {
					return true
				}
				return a.Role == models.RoleFamily && a.SubjectID == subject.SubjectID
			},
			OfflinePush: pushIDs,
		}

	case models.CategoryPresence:
		return Audience{
			Match: func(a models.Actor) bool {
				return a.Role == models.RoleStaff && a.HomeID == subject.HomeID
			},
		}

	default:
		return Audience{Match: func(models.Actor) bool { return false }}
	}
}

// fullCareCircle 整个照护圈：device、机构 staff、关联 family、admin
func fullCareCircle(subject models.Subject) Audience {
	pushIDs := append([]string{}, subject.FamilyIDs...)
	pushIDs = appendUnique(pushIDs, subject.DeviceActorID)

	return Audience{
		Match: func(a models.Actor) bool {
			switch a.Role {
			case models.RoleDevice:
				return a.SubjectID == subject.SubjectID
			case models.RoleStaff:
				return a.HomeID == subject.HomeID
			case models.RoleFamily:
				return a.SubjectID == subject.SubjectID
			case models.RoleAdmin:
				return true
			default:
				return false
			}
		},
		OfflinePush: pushIDs,
	}
}

func nonEmpty(id string) []string {
	if id == "" {
		return nil
	}
	return []string{id}
}

func appendUnique(ids []string, id string) []string {
	if id == "" {
		return ids
	}
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
