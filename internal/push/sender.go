package push

import (
	"encoding/json"
	"fmt"

	"carelink-signal/internal/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// Sender 推送发送方（best-effort，失败只记录不重试）
type Sender interface {
	Send(actorID, title, body string) error
}

// Notification 推送网关消息体
type Notification struct {
	ActorID string `json:"actor_id"`
	Title   string `json:"title"`
	Body    string `json:"body"`
}

// MQTTSender 经 MQTT broker 投递到推送网关
// 每个 actor 一个主题：<prefix><actor_id>，由网关侧映射到 APNs/FCM
type MQTTSender struct {
	client      mqtt.Client
	qos         byte
	topicPrefix string
	logger      *zap.Logger
}

// NewMQTTSender 创建推送发送方并连接 broker
func NewMQTTSender(cfg *config.PushConfig, logger *zap.Logger) (*MQTTSender, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)

	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to push broker: %w", token.Error())
	}

	return &MQTTSender{
		client:      client,
		qos:         cfg.QoS,
		topicPrefix: cfg.TopicPrefix,
		logger:      logger,
	}, nil
}

// Send 发送一条推送通知
func (s *MQTTSender) Send(actorID, title, body string) error {
	if actorID == "" {
		return fmt.Errorf("actor_id is required")
	}

	payload, err := json.Marshal(Notification{
		ActorID: actorID,
		Title:   title,
		Body:    body,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	topic := s.topicPrefix + actorID
	token := s.client.Publish(topic, s.qos, false, payload)
	token.Wait()

	if token.Error() != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, token.Error())
	}

	return nil
}

// Close 断开 broker 连接
func (s *MQTTSender) Close() {
	s.client.Disconnect(250)
}
