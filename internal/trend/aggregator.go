package trend

import (
	"context"
	"fmt"
	"sync"
	"time"

	"carelink-signal/internal/config"
	"carelink-signal/internal/models"
	"carelink-signal/internal/repository"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// suppressionKeyPrefix 趋势报警抑制键前缀
const suppressionKeyPrefix = "trend:suppress:"

// Aggregator 情绪趋势聚合器
// 每次新采样落库后评估滑动窗口均值，低于阈值则产生趋势报警；
// 同一被照护者在抑制窗口内最多产生一次趋势报警
type Aggregator struct {
	moodRepo   *repository.MoodRepository
	alertsRepo *repository.AlertsRepository
	redis      *redis.Client
	thresholds config.SignalThresholds
	logger     *zap.Logger

	// 按被照护者串行化评估，消除并发采样下的重复报警竞争
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewAggregator 创建情绪趋势聚合器
func NewAggregator(
	moodRepo *repository.MoodRepository,
	alertsRepo *repository.AlertsRepository,
	redisClient *redis.Client,
	thresholds config.SignalThresholds,
	logger *zap.Logger,
) *Aggregator {
	return &Aggregator{
		moodRepo:   moodRepo,
		alertsRepo: alertsRepo,
		redis:      redisClient,
		thresholds: thresholds,
		logger:     logger,
		locks:      make(map[string]*sync.Mutex),
	}
}

// subjectLock 获取被照护者级别的互斥锁
func (a *Aggregator) subjectLock(subjectID string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()

	lock, exists := a.locks[subjectID]
	if !exists {
		lock = &sync.Mutex{}
		a.locks[subjectID] = lock
	}
	return lock
}

// Evaluate 评估一个被照护者的情绪趋势
// 窗口均值低于阈值且不在抑制窗口内时创建趋势报警并返回；
// 否则返回 (nil, nil)。报警的广播由调用方负责
func (a *Aggregator) Evaluate(ctx context.Context, subjectID string) (*models.Alert, error) {
	if subjectID == "" {
		return nil, fmt.Errorf("subject_id is required")
	}

	lock := a.subjectLock(subjectID)
	lock.Lock()
	defer lock.Unlock()

	since := time.Now().AddDate(0, 0, -a.thresholds.TrendWindowDays)
	avg, count, err := a.moodRepo.AverageScoreSince(ctx, subjectID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate mood trend: %w", err)
	}

	if count == 0 || avg >= a.thresholds.TrendAlertBelow {
		return nil, nil
	}

	// 原子的 check-and-set：键已存在说明抑制窗口内已报过警
	suppressed, err := a.trySuppress(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if suppressed {
		a.logger.Debug("Mood trend alert suppressed",
			zap.String("subject_id", subjectID),
			zap.Float64("average", avg),
		)
		return nil, nil
	}

	severity := models.SeverityMedium
	if avg < a.thresholds.TrendHighBelow {
		severity = models.SeverityHigh
	}

	alert := &models.Alert{
		AlertID:   uuid.New().String(),
		SubjectID: subjectID,
		AlertType: models.AlertTypeMoodTrend,
		Severity:  severity,
		Message: fmt.Sprintf("Mood trend: average score %.1f over last %d days (%d samples)",
			avg, a.thresholds.TrendWindowDays, count),
		Status:    models.AlertStatusActive,
		CreatedAt: time.Now(),
	}

	if err := a.alertsRepo.CreateAlert(ctx, alert); err != nil {
		// 落库失败则释放抑制键，下一个采样可以重试
		a.releaseSuppression(ctx, subjectID)
		return nil, fmt.Errorf("failed to create trend alert: %w", err)
	}

	a.logger.Info("Mood trend alert created",
		zap.String("alert_id", alert.AlertID),
		zap.String("subject_id", subjectID),
		zap.String("severity", string(severity)),
		zap.Float64("average", avg),
	)

	return alert, nil
}

// trySuppress 尝试占用抑制窗口；返回 true 表示窗口已被占用（本次应抑制）
func (a *Aggregator) trySuppress(ctx context.Context, subjectID string) (bool, error) {
	key := suppressionKeyPrefix + subjectID
	ttl := time.Duration(a.thresholds.SuppressionHours) * time.Hour

	acquired, err := a.redis.SetNX(ctx, key, time.Now().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check trend suppression: %w", err)
	}
	return !acquired, nil
}

// releaseSuppression 释放抑制键（报警落库失败时回滚占用）
func (a *Aggregator) releaseSuppression(ctx context.Context, subjectID string) {
	if err := a.redis.Del(ctx, suppressionKeyPrefix+subjectID).Err(); err != nil {
		a.logger.Warn("Failed to release trend suppression key",
			zap.String("subject_id", subjectID),
			zap.Error(err),
		)
	}
}

// TrendStats 情绪趋势统计（只读，绝不触发报警）
type TrendStats struct {
	SubjectID      string                  `json:"subject_id"`
	Days           int                     `json:"days"`
	OverallAverage float64                 `json:"overall_average"`
	TotalSamples   int                     `json:"total_samples"`
	Daily          []repository.DayAverage `json:"daily"`
	LowestDay      string                  `json:"lowest_day,omitempty"`  // 均值最低的星期几
	HighestDay     string                  `json:"highest_day,omitempty"` // 均值最高的星期几
}

// Stats 计算一个被照护者最近 days 天的情绪统计
func (a *Aggregator) Stats(ctx context.Context, subjectID string, days int) (*TrendStats, error) {
	if subjectID == "" {
		return nil, fmt.Errorf("subject_id is required")
	}
	if days <= 0 {
		days = 7
	}

	now := time.Now()
	from := now.AddDate(0, 0, -days)

	daily, err := a.moodRepo.DailyAverages(ctx, subjectID, from, now)
	if err != nil {
		return nil, fmt.Errorf("failed to compute trend stats: %w", err)
	}

	stats := &TrendStats{
		SubjectID: subjectID,
		Days:      days,
		Daily:     daily,
	}

	var weightedSum float64
	var lowest, highest *repository.DayAverage
	for i := range daily {
		da := &daily[i]
		weightedSum += da.Average * float64(da.Count)
		stats.TotalSamples += da.Count

		if lowest == nil || da.Average < lowest.Average {
			lowest = da
		}
		if highest == nil || da.Average > highest.Average {
			highest = da
		}
	}

	if stats.TotalSamples > 0 {
		stats.OverallAverage = weightedSum / float64(stats.TotalSamples)
	}
	if lowest != nil {
		stats.LowestDay = lowest.Day.Weekday().String()
	}
	if highest != nil {
		stats.HighestDay = highest.Day.Weekday().String()
	}

	return stats, nil
}
