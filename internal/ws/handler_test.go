package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"carelink-signal/internal/call"
	"carelink-signal/internal/models"
	"carelink-signal/internal/registry"
	"carelink-signal/internal/service"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeOps 记录调用的 SignalOps 实现
type fakeOps struct {
	mu           sync.Mutex
	registered   []models.Actor
	unregistered []string
	conns        map[string]registry.Conn
	helpPressed  []string
	resolved     []string
}

func newFakeOps() *fakeOps {
	return &fakeOps{conns: make(map[string]registry.Conn)}
}

func (f *fakeOps) Register(actor models.Actor, conn registry.Conn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered = append(f.registered, actor)
	f.conns[actor.ActorID] = conn
	return nil
}

func (f *fakeOps) Unregister(actorID, connID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unregistered = append(f.unregistered, actorID)
}

func (f *fakeOps) SendMessage(ctx context.Context, sender models.Actor, subjectID, content string, visibility models.EventCategory, readAloud bool, targetActorID string) (*models.Message, bool, error) {
	return &models.Message{MessageID: "m1"}, true, nil
}

func (f *fakeOps) PressHelp(ctx context.Context, subjectID string) (*models.Alert, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.helpPressed = append(f.helpPressed, subjectID)
	return &models.Alert{AlertID: "a1", SubjectID: subjectID}, true, nil
}

func (f *fakeOps) ReportMoodSignal(ctx context.Context, subjectID, utterance, provenance string) (*service.MoodReport, error) {
	return &service.MoodReport{}, nil
}

func (f *fakeOps) ResolveAlert(ctx context.Context, alertID, resolvedBy string) (*models.Alert, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolved = append(f.resolved, alertID+"/"+resolvedBy)
	return &models.Alert{AlertID: alertID}, true, nil
}

func (f *fakeOps) MarkMessageRead(ctx context.Context, messageID, subjectID string) (bool, error) {
	return true, nil
}

func (f *fakeOps) InitiateCall(ctx context.Context, caller models.Actor, subjectID string) (*call.Call, error) {
	return &call.Call{CallID: "call-1"}, nil
}

func (f *fakeOps) AcceptCall(callID, actorID string) error { return nil }
func (f *fakeOps) RejectCall(callID, actorID string) error { return nil }
func (f *fakeOps) EndCall(callID, actorID string) error    { return nil }

func (f *fakeOps) registeredActors() []models.Actor {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Actor{}, f.registered...)
}

func (f *fakeOps) unregisteredIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.unregistered...)
}

func (f *fakeOps) connFor(actorID string) registry.Conn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conns[actorID]
}

func setupWSServer(t *testing.T) (*fakeOps, *websocket.Conn) {
	ops := newFakeOps()
	handler := NewHandler(ops, zap.NewNop())
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return ops, client
}

func authFrame(role, actorID, homeID, subjectID string) map[string]string {
	return map[string]string{
		"op": "authenticate", "actor_id": actorID, "role": role,
		"home_id": homeID, "subject_id": subjectID,
	}
}

func TestHandler_AuthenticateAndDispatch(t *testing.T) {
	ops, client := setupWSServer(t)

	require.NoError(t, client.WriteJSON(authFrame("staff", "staff-1", "home-1", "")))
	require.NoError(t, client.WriteJSON(map[string]string{"op": "press_help", "subject_id": "subject-1"}))

	assert.Eventually(t, func() bool {
		ops.mu.Lock()
		defer ops.mu.Unlock()
		return len(ops.helpPressed) == 1
	}, time.Second, 10*time.Millisecond)

	actors := ops.registeredActors()
	require.Len(t, actors, 1)
	assert.Equal(t, "staff-1", actors[0].ActorID)
	assert.Equal(t, models.RoleStaff, actors[0].Role)
}

func TestHandler_FirstFrameMustAuthenticate(t *testing.T) {
	ops, client := setupWSServer(t)

	require.NoError(t, client.WriteJSON(map[string]string{"op": "press_help", "subject_id": "subject-1"}))

	var ev models.Event
	client.SetReadDeadline(time.Now().Add(time.Second))
	require.NoError(t, client.ReadJSON(&ev))
	assert.Equal(t, "error", ev.Type)

	// 连接从未注册
	assert.Empty(t, ops.registeredActors())
}

func TestHandler_InvalidRoleRejected(t *testing.T) {
	ops, client := setupWSServer(t)

	require.NoError(t, client.WriteJSON(authFrame("janitor", "x-1", "", "")))

	var ev models.Event
	client.SetReadDeadline(time.Now().Add(time.Second))
	require.NoError(t, client.ReadJSON(&ev))
	assert.Equal(t, "error", ev.Type)
	assert.Empty(t, ops.registeredActors())
}

func TestHandler_MissingScopeRejected(t *testing.T) {
	ops, client := setupWSServer(t)

	// device 必须携带 subject 范围
	require.NoError(t, client.WriteJSON(authFrame("device", "device-1", "", "")))

	var ev models.Event
	client.SetReadDeadline(time.Now().Add(time.Second))
	require.NoError(t, client.ReadJSON(&ev))
	assert.Equal(t, "error", ev.Type)
	assert.Empty(t, ops.registeredActors())
}

func TestHandler_MalformedFrameDropsConnection(t *testing.T) {
	ops, client := setupWSServer(t)

	require.NoError(t, client.WriteJSON(authFrame("admin", "admin-1", "", "")))

	assert.Eventually(t, func() bool {
		return len(ops.registeredActors()) == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("{not json")))

	// 畸形帧 → 会话结束并注销
	assert.Eventually(t, func() bool {
		ids := ops.unregisteredIDs()
		return len(ids) == 1 && ids[0] == "admin-1"
	}, time.Second, 10*time.Millisecond)
}

func TestHandler_OutboundDelivery(t *testing.T) {
	ops, client := setupWSServer(t)

	require.NoError(t, client.WriteJSON(authFrame("family", "family-1", "", "subject-1")))

	assert.Eventually(t, func() bool {
		return ops.connFor("family-1") != nil
	}, time.Second, 10*time.Millisecond)

	// 服务端经注册表拿到的连接句柄下发事件
	out := models.NewEvent(models.EventAlertNew, "subject-1", nil)
	require.True(t, ops.connFor("family-1").Send(out))

	var ev models.Event
	client.SetReadDeadline(time.Now().Add(time.Second))
	require.NoError(t, client.ReadJSON(&ev))
	assert.Equal(t, models.EventAlertNew, ev.Type)
	assert.Equal(t, "subject-1", ev.SubjectID)
}

func TestHandler_UnknownOpReturnsError(t *testing.T) {
	_, client := setupWSServer(t)

	require.NoError(t, client.WriteJSON(authFrame("admin", "admin-1", "", "")))
	require.NoError(t, client.WriteJSON(map[string]string{"op": "teleport"}))

	var ev models.Event
	client.SetReadDeadline(time.Now().Add(time.Second))
	require.NoError(t, client.ReadJSON(&ev))
	assert.Equal(t, "error", ev.Type)
}
