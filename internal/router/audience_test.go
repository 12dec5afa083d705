package router

import (
	"testing"

	"carelink-signal/internal/models"

	"github.com/stretchr/testify/assert"
)

var testSubject = models.Subject{
	SubjectID:     "subject-1",
	HomeID:        "home-1",
	DeviceActorID: "device-1",
	FamilyIDs:     []string{"family-1", "family-2"},
}

func actor(id string, role models.Role, homeID, subjectID string) models.Actor {
	return models.Actor{ActorID: id, Role: role, HomeID: homeID, SubjectID: subjectID}
}

func TestCompute_HelpPress(t *testing.T) {
	a := Compute(testSubject, models.CategoryHelpPress, "", "")

	// 整个照护圈
	assert.True(t, a.Match(actor("device-1", models.RoleDevice, "", "subject-1")))
	assert.True(t, a.Match(actor("staff-1", models.RoleStaff, "home-1", "")))
	assert.True(t, a.Match(actor("family-1", models.RoleFamily, "", "subject-1")))
	assert.True(t, a.Match(actor("admin-1", models.RoleAdmin, "", "")))

	// 其他人收不到
	assert.False(t, a.Match(actor("staff-9", models.RoleStaff, "home-2", "")))
	assert.False(t, a.Match(actor("family-9", models.RoleFamily, "", "subject-2")))
	assert.False(t, a.Match(actor("device-9", models.RoleDevice, "", "subject-2")))

	// 离线推送覆盖家属和设备
	assert.ElementsMatch(t, []string{"family-1", "family-2", "device-1"}, a.OfflinePush)
}

func TestCompute_AlertHighSameAsHelpPress(t *testing.T) {
	high := Compute(testSubject, models.CategoryAlert, models.SeverityHigh, "")
	critical := Compute(testSubject, models.CategoryAlert, models.SeverityCritical, "")

	for _, a := range []Audience{high, critical} {
		assert.True(t, a.Match(actor("family-1", models.RoleFamily, "", "subject-1")))
		assert.True(t, a.Match(actor("staff-1", models.RoleStaff, "home-1", "")))
		assert.True(t, a.Match(actor("admin-1", models.RoleAdmin, "", "")))
		assert.NotEmpty(t, a.OfflinePush)
	}
}

func TestCompute_AlertMediumExcludesFamily(t *testing.T) {
	a := Compute(testSubject, models.CategoryAlert, models.SeverityMedium, "")

	assert.True(t, a.Match(actor("staff-1", models.RoleStaff, "home-1", "")))
	assert.True(t, a.Match(actor("admin-1", models.RoleAdmin, "", "")))

	// 家属和设备都不在受众内，也没有任何推送
	assert.False(t, a.Match(actor("family-1", models.RoleFamily, "", "subject-1")))
	assert.False(t, a.Match(actor("device-1", models.RoleDevice, "", "subject-1")))
	assert.Empty(t, a.OfflinePush)
}

func TestCompute_MessageToDevice(t *testing.T) {
	a := Compute(testSubject, models.CategoryMessageToDevice, "", "")

	assert.True(t, a.Match(actor("device-1", models.RoleDevice, "", "subject-1")))
	assert.False(t, a.Match(actor("staff-1", models.RoleStaff, "home-1", "")))
	assert.False(t, a.Match(actor("family-1", models.RoleFamily, "", "subject-1")))

	assert.Equal(t, []string{"device-1"}, a.OfflinePush)
}

func TestCompute_MessageToFamily(t *testing.T) {
	a := Compute(testSubject, models.CategoryMessageToFamily, "", "family-2")

	// 被点名的家属 + 关注该 subject 的全部家属
	assert.True(t, a.Match(actor("family-1", models.RoleFamily, "", "subject-1")))
	assert.True(t, a.Match(actor("family-2", models.RoleFamily, "", "subject-1")))
	assert.False(t, a.Match(actor("staff-1", models.RoleStaff, "home-1", "")))
	assert.False(t, a.Match(actor("device-1", models.RoleDevice, "", "subject-1")))

	// 点名目标不重复出现
	assert.ElementsMatch(t, []string{"family-1", "family-2"}, a.OfflinePush)
}

func TestCompute_PresenceNeverPushed(t *testing.T) {
	a := Compute(testSubject, models.CategoryPresence, "", "")

	assert.True(t, a.Match(actor("staff-1", models.RoleStaff, "home-1", "")))
	assert.False(t, a.Match(actor("family-1", models.RoleFamily, "", "subject-1")))
	assert.False(t, a.Match(actor("admin-1", models.RoleAdmin, "", "")))
	assert.Empty(t, a.OfflinePush)
}

func TestCompute_UnknownCategory(t *testing.T) {
	a := Compute(testSubject, models.EventCategory("mystery"), "", "")

	assert.False(t, a.Match(actor("staff-1", models.RoleStaff, "home-1", "")))
	assert.Empty(t, a.OfflinePush)
}
