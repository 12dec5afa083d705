package service

import (
	"context"
	"fmt"
	"time"

	"carelink-signal/internal/call"
	"carelink-signal/internal/models"
	"carelink-signal/internal/registry"
	"carelink-signal/internal/repository"
	"carelink-signal/internal/trend"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// helpPressRetryDelay help-press 落库重试间隔
const helpPressRetryDelay = 100 * time.Millisecond

// Register 注册一条已认证的连接
func (s *SignalService) Register(actor models.Actor, conn registry.Conn) error {
	return s.registry.Register(actor, conn)
}

// Unregister 注销一条连接
func (s *SignalService) Unregister(actorID, connID string) {
	s.registry.Unregister(actorID, connID)
}

// handlePresenceEvent 处理一次在线状态迁移
// 任何 actor 离线都要结束其参与的呼叫；设备端的迁移额外广播给机构 staff
func (s *SignalService) handlePresenceEvent(ctx context.Context, ev registry.PresenceEvent) {
	if !ev.Online {
		s.calls.HandleDisconnect(ev.Actor.ActorID)
	}

	if ev.Actor.Role != models.RoleDevice {
		return
	}

	subject, err := s.subjectsRepo.GetSubject(ctx, ev.Actor.SubjectID)
	if err != nil {
		s.logger.Warn("Failed to resolve subject for presence event",
			zap.String("actor_id", ev.Actor.ActorID),
			zap.Error(err),
		)
		return
	}

	out := models.NewEvent(models.EventPresenceChanged, subject.SubjectID, models.PresencePayload{
		ActorID: ev.Actor.ActorID,
		Role:    ev.Actor.Role,
		Online:  ev.Online,
	})
	s.router.Broadcast(ctx, *subject, models.CategoryPresence, "", "", out, "", "")
}

// PressHelp 求助按钮
// 落库带有界重试；即使持久化最终失败，向照护圈的扇出仍然进行，
// 返回的 stored 告知调用方写入是否持久成功
func (s *SignalService) PressHelp(ctx context.Context, subjectID string) (*models.Alert, bool, error) {
	subject, err := s.subjectsRepo.GetSubject(ctx, subjectID)
	if err != nil {
		return nil, false, err
	}

	alert := &models.Alert{
		AlertID:   uuid.New().String(),
		SubjectID: subjectID,
		AlertType: models.AlertTypeHelpPress,
		Severity:  models.SeverityCritical,
		Message:   fmt.Sprintf("%s pressed the help button", subject.DisplayName),
		Status:    models.AlertStatusActive,
		CreatedAt: time.Now(),
	}

	stored := false
	for attempt := 1; attempt <= s.config.Signal.HelpPressRetries; attempt++ {
		if err := s.alertsRepo.CreateAlert(ctx, alert); err != nil {
			s.logger.Warn("Help press persistence failed",
				zap.String("alert_id", alert.AlertID),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			time.Sleep(helpPressRetryDelay)
			continue
		}
		stored = true
		break
	}

	ev := models.NewEvent(models.EventAlertNew, subjectID, alert)
	s.router.Broadcast(ctx, *subject, models.CategoryHelpPress, alert.Severity, "", ev,
		"Help needed", alert.Message)

	return alert, stored, nil
}

// MoodReport 一次情绪信号上报的处理结果
type MoodReport struct {
	Sample        *models.MoodSample     `json:"sample"`
	SymptomEvents []*models.SymptomEvent `json:"symptom_events"`
	TrendAlert    *models.Alert          `json:"trend_alert,omitempty"`
}

// ReportMoodSignal 上报一条对话语句
// 情绪提示（外部协作方，best-effort）→ 提取 → 持久化 → 趋势评估；
// 高级别症状（如跌倒）立即产生症状报警并广播
func (s *SignalService) ReportMoodSignal(ctx context.Context, subjectID, utterance, provenance string) (*MoodReport, error) {
	if utterance == "" {
		return nil, fmt.Errorf("utterance is required")
	}

	subject, err := s.subjectsRepo.GetSubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	hint := s.sentiment.Hint(ctx, utterance)
	result := s.extractor.Extract(utterance, hint)
	now := time.Now()

	sample := &models.MoodSample{
		SampleID:   uuid.New().String(),
		SubjectID:  subjectID,
		Score:      result.Mood,
		Snippet:    utterance,
		Provenance: provenance,
		RecordedAt: now,
	}
	if err := s.moodRepo.InsertMoodSample(ctx, sample); err != nil {
		return nil, fmt.Errorf("failed to persist mood sample: %w", err)
	}

	report := &MoodReport{Sample: sample}

	for _, finding := range result.Findings {
		event := &models.SymptomEvent{
			EventID:     uuid.New().String(),
			SubjectID:   subjectID,
			SymptomType: finding.SymptomType,
			Severity:    finding.Severity,
			MatchedSpan: finding.MatchedSpan,
			BodyPart:    finding.BodyPart,
			RecordedAt:  now,
		}
		if err := s.moodRepo.InsertSymptomEvent(ctx, event); err != nil {
			// 症状事件属于可容忍丢失的类别，记录后继续
			s.logger.Warn("Failed to persist symptom event",
				zap.String("subject_id", subjectID),
				zap.String("symptom_type", string(finding.SymptomType)),
				zap.Error(err),
			)
			continue
		}
		report.SymptomEvents = append(report.SymptomEvents, event)

		if finding.Severity.IsNotifiable() {
			s.raiseSymptomAlert(ctx, subject, event)
		}
	}

	trendAlert, err := s.aggregator.Evaluate(ctx, subjectID)
	if err != nil {
		s.logger.Warn("Mood trend evaluation failed",
			zap.String("subject_id", subjectID),
			zap.Error(err),
		)
		return report, nil
	}
	if trendAlert != nil {
		report.TrendAlert = trendAlert
		ev := models.NewEvent(models.EventAlertNew, subjectID, trendAlert)
		s.router.Broadcast(ctx, *subject, models.CategoryAlert, trendAlert.Severity, "", ev,
			"Mood trend alert", trendAlert.Message)
	}

	return report, nil
}

// raiseSymptomAlert 高级别症状立即报警（落库失败不阻塞扇出）
func (s *SignalService) raiseSymptomAlert(ctx context.Context, subject *models.Subject, event *models.SymptomEvent) {
	alert := &models.Alert{
		AlertID:   uuid.New().String(),
		SubjectID: subject.SubjectID,
		AlertType: models.AlertTypeSymptom,
		Severity:  event.Severity,
		Message:   fmt.Sprintf("%s reported %s: %q", subject.DisplayName, event.SymptomType, event.MatchedSpan),
		Status:    models.AlertStatusActive,
		CreatedAt: event.RecordedAt,
	}

	if err := s.alertsRepo.CreateAlert(ctx, alert); err != nil {
		s.logger.Warn("Failed to persist symptom alert",
			zap.String("subject_id", subject.SubjectID),
			zap.Error(err),
		)
	}

	ev := models.NewEvent(models.EventAlertNew, subject.SubjectID, alert)
	s.router.Broadcast(ctx, *subject, models.CategoryAlert, alert.Severity, "", ev,
		"Wellbeing alert", alert.Message)
}

// SendMessage 发送消息
// visibility 只接受 message_to_device / message_to_family；
// 落库失败时扇出仍然进行，stored 告知调用方
func (s *SignalService) SendMessage(ctx context.Context, sender models.Actor, subjectID, content string, visibility models.EventCategory, readAloud bool, targetActorID string) (*models.Message, bool, error) {
	if visibility != models.CategoryMessageToDevice && visibility != models.CategoryMessageToFamily {
		return nil, false, fmt.Errorf("invalid message visibility: %s", visibility)
	}
	if content == "" {
		return nil, false, fmt.Errorf("content is required")
	}

	subject, err := s.subjectsRepo.GetSubject(ctx, subjectID)
	if err != nil {
		return nil, false, err
	}

	msg := &models.Message{
		MessageID:     uuid.New().String(),
		SubjectID:     subjectID,
		SenderActorID: sender.ActorID,
		Content:       content,
		ReadAloud:     readAloud,
		CreatedAt:     time.Now(),
	}

	stored := true
	if err := s.messagesRepo.CreateMessage(ctx, msg); err != nil {
		stored = false
		s.logger.Warn("Message persistence failed, fanning out anyway",
			zap.String("message_id", msg.MessageID),
			zap.Error(err),
		)
	}

	ev := models.NewEvent(models.EventMessageNew, subjectID, msg)
	s.router.Broadcast(ctx, *subject, visibility, "", targetActorID, ev,
		"New message", content)

	return msg, stored, nil
}

// MarkMessageRead 已读回执（单向迁移，重复调用是 no-op）
func (s *SignalService) MarkMessageRead(ctx context.Context, messageID, subjectID string) (bool, error) {
	transitioned, err := s.messagesRepo.MarkMessageRead(ctx, messageID)
	if err != nil {
		return false, err
	}
	if !transitioned {
		return false, nil
	}

	subject, err := s.subjectsRepo.GetSubject(ctx, subjectID)
	if err != nil {
		s.logger.Warn("Failed to resolve subject for read receipt",
			zap.String("message_id", messageID),
			zap.Error(err),
		)
		return true, nil
	}

	ev := models.NewEvent(models.EventMessageRead, subjectID, map[string]string{
		"message_id": messageID,
	})
	s.router.Broadcast(ctx, *subject, models.CategoryMessageToFamily, "", "", ev, "", "")

	return true, nil
}

// ResolveAlert 解决报警；真正发生状态迁移时广播 alert.resolved
func (s *SignalService) ResolveAlert(ctx context.Context, alertID, resolvedBy string) (*models.Alert, bool, error) {
	transitioned, err := s.alertsRepo.ResolveAlert(ctx, alertID, resolvedBy)
	if err != nil {
		return nil, false, err
	}

	alert, err := s.alertsRepo.GetAlert(ctx, alertID)
	if err != nil {
		return nil, transitioned, err
	}
	if !transitioned {
		return alert, false, nil
	}

	subject, err := s.subjectsRepo.GetSubject(ctx, alert.SubjectID)
	if err != nil {
		s.logger.Warn("Failed to resolve subject for alert.resolved",
			zap.String("alert_id", alertID),
			zap.Error(err),
		)
		return alert, true, nil
	}

	category := models.CategoryAlert
	if alert.AlertType == models.AlertTypeHelpPress {
		category = models.CategoryHelpPress
	}

	// 与 alert.new 相同的受众；没有推送文案，离线成员不收推送
	ev := models.NewEvent(models.EventAlertResolved, alert.SubjectID, alert)
	s.router.Broadcast(ctx, *subject, category, alert.Severity, "", ev, "", "")

	return alert, true, nil
}

// ListAlerts 报警列表查询
func (s *SignalService) ListAlerts(ctx context.Context, filters repository.AlertFilters, page, size int) ([]*models.Alert, int, error) {
	return s.alertsRepo.ListAlerts(ctx, filters, page, size)
}

// ListMessages 消息列表查询
func (s *SignalService) ListMessages(ctx context.Context, subjectID string, page, size int) ([]*models.Message, int, error) {
	return s.messagesRepo.ListMessages(ctx, subjectID, page, size)
}

// MoodStats 情绪趋势统计（只读，绝不触发报警）
func (s *SignalService) MoodStats(ctx context.Context, subjectID string, days int) (*trend.TrendStats, error) {
	return s.aggregator.Stats(ctx, subjectID, days)
}

// InitiateCall 发起呼叫（staff / family → 被照护者设备）
func (s *SignalService) InitiateCall(ctx context.Context, caller models.Actor, subjectID string) (*call.Call, error) {
	subject, err := s.subjectsRepo.GetSubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	return s.calls.Initiate(caller.ActorID, subjectID, subject.DeviceActorID)
}

// AcceptCall 设备端接听
func (s *SignalService) AcceptCall(callID, actorID string) error {
	return s.calls.Accept(callID, actorID)
}

// RejectCall 设备端拒接
func (s *SignalService) RejectCall(callID, actorID string) error {
	return s.calls.Reject(callID, actorID)
}

// EndCall 任一方挂断
func (s *SignalService) EndCall(callID, actorID string) error {
	return s.calls.End(callID, actorID)
}
