package core

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"ChatRelay/pkg/protocol"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Client 表示一个已通过握手的连接
type Client struct {
	ID       string // 连接唯一标识
	Username string // 握手后不再改变

	hub    *Hub
	conn   net.Conn // 仅由该 Client 持有
	reader *protocol.Reader
	send   chan protocol.Frame // 出站队列，由 WritePump 消费
	log    *zap.Logger

	mu     sync.Mutex // 保护 closed 与 send 的关闭
	closed bool

	groups    map[string]struct{} // 已加入的群组代码，由 hub.mu 保护
	closeOnce sync.Once
	done      chan struct{} // WritePump 退出后关闭
}

func newClient(hub *Hub, conn net.Conn, reader *protocol.Reader, username string) *Client {
	c := &Client{
		ID:       uuid.NewString(),
		Username: username,
		hub:      hub,
		conn:     conn,
		reader:   reader,
		send:     make(chan protocol.Frame, hub.opts.SendQueueSize),
		groups:   make(map[string]struct{}),
		done:     make(chan struct{}),
	}
	fields := []zap.Field{zap.String("client_id", c.ID), zap.String("username", username)}
	if conn != nil && conn.RemoteAddr() != nil {
		fields = append(fields, zap.String("remote", conn.RemoteAddr().String()))
	}
	c.log = hub.log.With(fields...)
	return c
}

// Send 将帧放入出站队列，不会阻塞。
// 队列已满的客户端被视为过慢并被断开，不影响其他接收方。
func (c *Client) Send(frame protocol.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}
	select {
	case c.send <- frame:
		return nil
	default:
	}

	c.log.Warn("出站队列已满，断开客户端", zap.Int("queue", cap(c.send)))
	c.closed = true
	close(c.send)
	c.kill()
	return ErrSendQueueFull
}

func (c *Client) reply(keyword, text string) {
	if err := c.Send(protocol.Frame{Line: protocol.Reply(keyword, text)}); err != nil {
		c.log.Debug("回复未能入队", zap.String("reply", keyword), zap.Error(err))
	}
}

// Close 注销客户端并关闭出站队列；WritePump 写完剩余帧后释放连接。可重复调用。
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.hub.Unregister(c)

		c.mu.Lock()
		if !c.closed {
			c.closed = true
			close(c.send)
		}
		c.mu.Unlock()
	})
}

// kill 立即关闭底层连接，使 ReadPump 退出并走正常的清理流程
func (c *Client) kill() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.log.Debug("关闭连接失败", zap.Error(err))
	}
}

// ReadPump 逐行读取客户端命令并交给 Hub 路由，返回时执行清理
func (c *Client) ReadPump() {
	defer c.Close()

	for {
		c.extendReadDeadline()
		line, err := c.reader.ReadLine()
		if err != nil {
			if errors.Is(err, protocol.ErrLineTooLong) {
				c.log.Warn("丢弃超长的命令行", zap.Error(err))
				c.reply(protocol.LineError, reasonFor(err))
				continue
			}
			if isExpectedCloseError(err) {
				c.log.Info("客户端断开连接")
			} else {
				c.log.Warn("读取客户端数据失败", zap.Error(err))
			}
			return
		}

		if err := c.hub.dispatch(c, protocol.ParseCommand(line)); err != nil {
			c.log.Warn("连接数据流不可用，断开客户端", zap.Error(err))
			return
		}
	}
}

// WritePump 把出站队列中的帧依次写入连接
func (c *Client) WritePump() {
	defer close(c.done)

	w := protocol.NewWriter(c.conn)
	for frame := range c.send {
		if err := c.write(w, frame); err != nil {
			if !isExpectedCloseError(err) {
				c.log.Warn("发送消息失败", zap.Error(err))
			}
			c.kill()
			// 继续消费直到 Close 关闭队列
			for range c.send {
			}
			return
		}
	}
	if err := w.Flush(); err != nil && !isExpectedCloseError(err) {
		c.log.Debug("刷新出站数据失败", zap.Error(err))
	}
	c.kill()
}

func (c *Client) write(w *protocol.Writer, frame protocol.Frame) error {
	if c.hub.opts.WriteTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.hub.opts.WriteTimeout)); err != nil {
			return err
		}
	}
	if err := w.WriteFrame(frame); err != nil {
		return err
	}
	// 队列里没有更多帧时才刷新，连续的帧合并写出
	if len(c.send) == 0 {
		return w.Flush()
	}
	return nil
}

func (c *Client) extendReadDeadline() {
	if c.hub.opts.IdleTimeout <= 0 {
		return
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(c.hub.opts.IdleTimeout)); err != nil {
		c.log.Debug("设置读取超时失败", zap.Error(err))
	}
}

// joinedGroups 返回该客户端加入过的群组代码
func (c *Client) joinedGroups() []string {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()

	codes := make([]string, 0, len(c.groups))
	for code := range c.groups {
		codes = append(codes, code)
	}
	return codes
}

func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe)
}
