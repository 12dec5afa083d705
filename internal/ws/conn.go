package ws

import (
	"sync"
	"time"

	"carelink-signal/internal/models"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// writeWait 单次写操作的最长等待
	writeWait = 10 * time.Second
	// pongWait 读方向的存活窗口
	pongWait = 60 * time.Second
	// pingPeriod 心跳间隔（必须小于 pongWait）
	pingPeriod = 54 * time.Second
	// sendBufferSize 出站写队列长度；写满即丢（慢消费者不拖慢别人）
	sendBufferSize = 64
)

// Connection 一条物理 WebSocket 连接
// 独立的并发单元：读循环 + 带缓冲写队列 + 写泵
type Connection struct {
	id     string
	actor  models.Actor
	ws     *websocket.Conn
	send   chan models.Event
	logger *zap.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// newConnection 包装一条已升级的 WebSocket 连接
func newConnection(id string, actor models.Actor, wsConn *websocket.Conn, logger *zap.Logger) *Connection {
	return &Connection{
		id:     id,
		actor:  actor,
		ws:     wsConn,
		send:   make(chan models.Event, sendBufferSize),
		logger: logger,
		done:   make(chan struct{}),
	}
}

// ID 连接标识
func (c *Connection) ID() string {
	return c.id
}

// Send 非阻塞投递；返回 false 表示写队列已满或连接已关闭
func (c *Connection) Send(ev models.Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

// Close 关闭底层连接（幂等）
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

// writePump 写泵：消费写队列 + 周期心跳
// 每条连接恰好一个写泵 goroutine，保证对底层连接的写是串行的
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case ev := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(ev); err != nil {
				c.logger.Debug("Write failed, closing connection",
					zap.String("conn_id", c.id),
					zap.Error(err),
				)
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
