package sentiment

import (
	"context"
	"time"

	"carelink-signal/internal/config"
	"carelink-signal/internal/extractor"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// HintProvider 粗粒度情绪提示提供方
type HintProvider interface {
	Hint(ctx context.Context, utterance string) extractor.SentimentHint
}

// analyzeRequest 分析请求
type analyzeRequest struct {
	Text string `json:"text"`
}

// analyzeResponse 分析响应
type analyzeResponse struct {
	Sentiment string `json:"sentiment"` // positive, neutral, negative
}

// Client 外部情绪分析协作方的 HTTP 客户端
// 纯 best-effort：任何失败都降级为 neutral，绝不阻塞提取流程
type Client struct {
	httpClient *resty.Client
	logger     *zap.Logger
	enabled    bool
}

// NewClient 创建情绪分析客户端（BaseURL 为空时禁用，始终返回 neutral）
func NewClient(cfg *config.SentimentConfig, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		return &Client{logger: logger, enabled: false}
	}

	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(time.Duration(cfg.TimeoutMS) * time.Millisecond).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{
		httpClient: httpClient,
		logger:     logger,
		enabled:    true,
	}
}

// Hint 获取一条语句的情绪提示
func (c *Client) Hint(ctx context.Context, utterance string) extractor.SentimentHint {
	if !c.enabled {
		return extractor.HintNeutral
	}

	var result analyzeResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(analyzeRequest{Text: utterance}).
		SetResult(&result).
		Post("/v1/analyze")

	if err != nil {
		c.logger.Warn("Sentiment analyzer unreachable, falling back to neutral",
			zap.Error(err),
		)
		return extractor.HintNeutral
	}
	if resp.IsError() {
		c.logger.Warn("Sentiment analyzer returned error, falling back to neutral",
			zap.Int("status", resp.StatusCode()),
		)
		return extractor.HintNeutral
	}

	switch result.Sentiment {
	case "positive":
		return extractor.HintPositive
	case "negative":
		return extractor.HintNegative
	default:
		return extractor.HintNeutral
	}
}
