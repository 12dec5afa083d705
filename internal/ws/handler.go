package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"carelink-signal/internal/call"
	"carelink-signal/internal/models"
	"carelink-signal/internal/registry"
	"carelink-signal/internal/service"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// SignalOps 会话层依赖的入站操作面（由 service.SignalService 实现）
type SignalOps interface {
	Register(actor models.Actor, conn registry.Conn) error
	Unregister(actorID, connID string)
	SendMessage(ctx context.Context, sender models.Actor, subjectID, content string, visibility models.EventCategory, readAloud bool, targetActorID string) (*models.Message, bool, error)
	PressHelp(ctx context.Context, subjectID string) (*models.Alert, bool, error)
	ReportMoodSignal(ctx context.Context, subjectID, utterance, provenance string) (*service.MoodReport, error)
	ResolveAlert(ctx context.Context, alertID, resolvedBy string) (*models.Alert, bool, error)
	MarkMessageRead(ctx context.Context, messageID, subjectID string) (bool, error)
	InitiateCall(ctx context.Context, caller models.Actor, subjectID string) (*call.Call, error)
	AcceptCall(callID, actorID string) error
	RejectCall(callID, actorID string) error
	EndCall(callID, actorID string) error
}

// authWait 第一帧（authenticate）的最长等待
const authWait = 10 * time.Second

// inboundFrame 入站帧
type inboundFrame struct {
	Op string `json:"op"`

	// authenticate
	ActorID   string `json:"actor_id,omitempty"`
	Role      string `json:"role,omitempty"`
	HomeID    string `json:"home_id,omitempty"`
	SubjectID string `json:"subject_id,omitempty"`

	// send_message
	Content       string `json:"content,omitempty"`
	Visibility    string `json:"visibility,omitempty"`
	ReadAloud     bool   `json:"read_aloud,omitempty"`
	TargetActorID string `json:"target_actor_id,omitempty"`

	// report_mood_signal
	Utterance  string `json:"utterance,omitempty"`
	Provenance string `json:"provenance,omitempty"`

	// resolve_alert / mark_message_read / call 操作
	AlertID    string `json:"alert_id,omitempty"`
	ResolvedBy string `json:"resolved_by,omitempty"`
	MessageID  string `json:"message_id,omitempty"`
	CallID     string `json:"call_id,omitempty"`
}

// Handler WebSocket 接入层
type Handler struct {
	service  SignalOps
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHandler 创建 WebSocket 接入层
func NewHandler(svc SignalOps, logger *zap.Logger) *Handler {
	return &Handler{
		service: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// 鉴权在 authenticate 帧完成，跨源由网关层控制
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// ServeHTTP 升级连接并进入会话循环
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	actor, err := h.authenticate(wsConn)
	if err != nil {
		// 拒绝并告知原因，连接从未注册
		h.logger.Info("WebSocket authentication rejected",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		wsConn.WriteJSON(models.Event{Type: "error", Payload: errPayload(err)})
		wsConn.Close()
		return
	}

	conn := newConnection(uuid.New().String(), actor, wsConn, h.logger)
	if err := h.service.Register(actor, conn); err != nil {
		wsConn.WriteJSON(models.Event{Type: "error", Payload: errPayload(err)})
		wsConn.Close()
		return
	}

	h.logger.Info("WebSocket session started",
		zap.String("conn_id", conn.id),
		zap.String("actor_id", actor.ActorID),
		zap.String("role", string(actor.Role)),
	)

	go conn.writePump()
	h.readLoop(r.Context(), conn)

	h.service.Unregister(actor.ActorID, conn.id)
	conn.Close()

	h.logger.Info("WebSocket session ended",
		zap.String("conn_id", conn.id),
		zap.String("actor_id", actor.ActorID),
	)
}

// authenticate 读取并校验第一帧
func (h *Handler) authenticate(wsConn *websocket.Conn) (models.Actor, error) {
	wsConn.SetReadDeadline(time.Now().Add(authWait))

	var frame inboundFrame
	if err := wsConn.ReadJSON(&frame); err != nil {
		return models.Actor{}, errors.New("expected authenticate frame")
	}
	if frame.Op != "authenticate" {
		return models.Actor{}, errors.New("first frame must be authenticate")
	}

	role, err := models.ParseRole(frame.Role)
	if err != nil {
		return models.Actor{}, err
	}

	actor := models.Actor{
		ActorID:   frame.ActorID,
		Role:      role,
		HomeID:    frame.HomeID,
		SubjectID: frame.SubjectID,
	}
	if err := actor.Validate(); err != nil {
		return models.Actor{}, err
	}

	return actor, nil
}

// readLoop 读循环：解析入站帧并分发
// 畸形帧记录后断开连接；业务错误以 error 事件回给本连接
func (h *Handler) readLoop(ctx context.Context, conn *Connection) {
	conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	conn.ws.SetPongHandler(func(string) error {
		conn.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("WebSocket read error",
					zap.String("conn_id", conn.id),
					zap.Error(err),
				)
			}
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			h.logger.Warn("Malformed inbound frame, dropping connection",
				zap.String("conn_id", conn.id),
				zap.String("actor_id", conn.actor.ActorID),
				zap.Error(err),
			)
			return
		}

		if err := h.dispatch(ctx, conn, &frame); err != nil {
			conn.Send(models.Event{Type: "error", SubjectID: frame.SubjectID, Payload: errPayload(err)})
		}
	}
}

// dispatch 按操作码分发入站帧
func (h *Handler) dispatch(ctx context.Context, conn *Connection, frame *inboundFrame) error {
	actor := conn.actor

	switch frame.Op {
	case "send_message":
		_, stored, err := h.service.SendMessage(ctx, actor, frame.SubjectID, frame.Content,
			models.EventCategory(frame.Visibility), frame.ReadAloud, frame.TargetActorID)
		if err != nil {
			return err
		}
		if !stored {
			return errors.New("message delivered but not durably stored")
		}
		return nil

	case "press_help":
		_, stored, err := h.service.PressHelp(ctx, frame.SubjectID)
		if err != nil {
			return err
		}
		if !stored {
			return errors.New("help press delivered but not durably stored")
		}
		return nil

	case "report_mood_signal":
		_, err := h.service.ReportMoodSignal(ctx, frame.SubjectID, frame.Utterance, frame.Provenance)
		return err

	case "resolve_alert":
		resolvedBy := frame.ResolvedBy
		if resolvedBy == "" {
			resolvedBy = actor.ActorID
		}
		_, _, err := h.service.ResolveAlert(ctx, frame.AlertID, resolvedBy)
		return err

	case "mark_message_read":
		_, err := h.service.MarkMessageRead(ctx, frame.MessageID, frame.SubjectID)
		return err

	case "initiate_call":
		_, err := h.service.InitiateCall(ctx, actor, frame.SubjectID)
		if errors.Is(err, call.ErrCallConflict) {
			return errors.New("subject already has a call in progress")
		}
		return err

	case "accept_call":
		return h.service.AcceptCall(frame.CallID, actor.ActorID)

	case "reject_call":
		return h.service.RejectCall(frame.CallID, actor.ActorID)

	case "end_call":
		return h.service.EndCall(frame.CallID, actor.ActorID)

	default:
		return errors.New("unknown op: " + frame.Op)
	}
}

// errPayload 业务错误载荷
func errPayload(err error) json.RawMessage {
	data, _ := json.Marshal(map[string]string{"message": err.Error()})
	return data
}
