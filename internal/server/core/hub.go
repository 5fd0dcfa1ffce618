// File: internal/server/core/hub.go
package core

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"ChatRelay/pkg/protocol"

	"go.uber.org/zap"
)

// Options 控制单个连接的资源限制
type Options struct {
	MaxLineLength    int
	MaxFileSize      int64
	SendQueueSize    int
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration // 0 表示不限制
	HandshakeTimeout time.Duration // 0 表示不限制
}

func DefaultOptions() Options {
	return Options{
		MaxLineLength:    protocol.DefaultMaxLineLength,
		MaxFileSize:      64 << 20,
		SendQueueSize:    256,
		WriteTimeout:     10 * time.Second,
		HandshakeTimeout: 30 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.MaxLineLength <= 0 {
		o.MaxLineLength = def.MaxLineLength
	}
	if o.MaxFileSize <= 0 {
		o.MaxFileSize = def.MaxFileSize
	}
	if o.SendQueueSize <= 0 {
		o.SendQueueSize = def.SendQueueSize
	}
	return o
}

// Hub 持有连接注册表和群组注册表。两者由同一把锁保护，
// 注销连接时可以在一个临界区内把它从所有群组中移除。
type Hub struct {
	clients map[string]*Client
	groups  map[string]*Group
	mu      sync.RWMutex

	// conns 记录所有已接入的字节流，包括尚未完成握手的
	connMu  sync.Mutex
	conns   map[net.Conn]struct{}
	closing bool
	wg      sync.WaitGroup

	opts Options
	log  *zap.Logger
}

func NewHub(log *zap.Logger, opts Options) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		clients: make(map[string]*Client),
		groups:  make(map[string]*Group),
		conns:   make(map[net.Conn]struct{}),
		opts:    opts.withDefaults(),
		log:     log,
	}
}

// Serve 处理一个新接入的字节流：握手成功后阻塞在读循环中，直到连接结束
// Shutdown 开始之后接入的连接会被直接关闭。
func (h *Hub) Serve(conn net.Conn) {
	if !h.track(conn) {
		_ = conn.Close()
		return
	}
	defer h.untrack(conn)

	client, err := h.Handshake(conn)
	if err != nil {
		h.log.Info("握手失败", zap.String("remote", conn.RemoteAddr().String()), zap.Error(err))
		return
	}
	client.ReadPump()
	<-client.done
}

// track 在 Shutdown 开始前登记连接；wg.Add 与 closing 的检查在同一把锁内完成
func (h *Hub) track(conn net.Conn) bool {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	if h.closing {
		return false
	}
	h.conns[conn] = struct{}{}
	h.wg.Add(1)
	return true
}

func (h *Hub) untrack(conn net.Conn) {
	h.connMu.Lock()
	delete(h.conns, conn)
	h.connMu.Unlock()
	h.wg.Done()
}

func (h *Hub) connCount() int {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	return len(h.conns)
}

// Handshake 读取第一行作为用户名。用户名为空或缺失时回复 LOGIN_FAILED 并关闭连接，不做注册。
func (h *Hub) Handshake(conn net.Conn) (*Client, error) {
	reader := protocol.NewReader(conn, h.opts.MaxLineLength)

	if h.opts.HandshakeTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(h.opts.HandshakeTimeout))
	}
	line, err := reader.ReadLine()
	username := strings.TrimSpace(line)
	if err != nil || username == "" {
		h.rejectLogin(conn, "Invalid username.")
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrAuth, err)
		}
		return nil, fmt.Errorf("%w: empty username", ErrAuth)
	}
	_ = conn.SetReadDeadline(time.Time{})

	client := newClient(h, conn, reader, username)
	go client.WritePump()

	welcome := protocol.Frame{Line: protocol.Reply(protocol.LoginSuccess, "Welcome to the chat, "+username)}
	h.register(client, &welcome)
	return client, nil
}

func (h *Hub) rejectLogin(conn net.Conn, reason string) {
	if h.opts.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(h.opts.WriteTimeout))
	}
	w := protocol.NewWriter(conn)
	if err := w.WriteLine(protocol.Reply(protocol.LoginFailed, reason)); err == nil {
		_ = w.Flush()
	}
	_ = conn.Close()
}

// --- 注册表操作 ---

// register 在持有锁时把 first 放入空的出站队列，
// 这样它一定先于任何广播到达，客户端收到它时也一定已经在注册表中。
func (h *Hub) register(client *Client, first *protocol.Frame) {
	h.mu.Lock()
	h.clients[client.ID] = client
	if first != nil {
		if err := client.Send(*first); err != nil {
			client.log.Debug("首帧未能入队", zap.Error(err))
		}
	}
	total := len(h.clients)
	h.mu.Unlock()

	client.log.Info("客户端已注册", zap.Int("clients", total))
}

// Unregister 在同一个临界区内把客户端从连接集合和它所在的每个群组中移除
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client.ID)
	for code := range client.groups {
		if group, ok := h.groups[code]; ok {
			group.RemoveClient(client)
		}
	}
	total := len(h.clients)
	groups := len(client.groups)
	h.mu.Unlock()

	client.log.Info("客户端已注销", zap.Int("clients", total), zap.Int("groups_left", groups))
}

// CreateGroup 创建群组，创建者成为唯一成员
func (h *Hub) CreateGroup(code string, client *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.groups[code]; exists {
		return fmt.Errorf("%w: %s", ErrGroupExists, code)
	}
	if _, live := h.clients[client.ID]; !live {
		return ErrClientClosed
	}
	group := NewGroup(code)
	group.AddClient(client)
	client.groups[code] = struct{}{}
	h.groups[code] = group

	client.log.Info("群组已创建", zap.String("group", code))
	return nil
}

// JoinGroup 把客户端加入已有群组；已经是成员时什么也不做
func (h *Hub) JoinGroup(code string, client *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	group, ok := h.groups[code]
	if !ok {
		return fmt.Errorf("%w: %s", ErrGroupNotFound, code)
	}
	if _, live := h.clients[client.ID]; !live {
		return ErrClientClosed
	}
	group.AddClient(client)
	client.groups[code] = struct{}{}

	client.log.Info("客户端加入了群组", zap.String("group", code), zap.Int("members", len(group.Clients)))
	return nil
}

// Resolve 返回群组成员在当前时刻的快照
func (h *Hub) Resolve(code string) ([]*Client, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	group, ok := h.groups[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGroupNotFound, code)
	}
	return group.Members(), nil
}

// ResolveFor 与 Resolve 相同，但要求 requester 是该群组的成员
func (h *Hub) ResolveFor(code string, requester *Client) ([]*Client, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	group, ok := h.groups[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGroupNotFound, code)
	}
	if !group.HasClient(requester) {
		return nil, fmt.Errorf("%w: %s", ErrNotMember, code)
	}
	return group.Members(), nil
}

// Clients 返回所有在线客户端的快照
func (h *Hub) Clients() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	return clients
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) GroupCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups)
}

// Shutdown 拒绝新连接，关闭所有已接入的连接（包括握手中的），并等待连接协程退出或超时
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.connMu.Lock()
	h.closing = true
	conns := make([]net.Conn, 0, len(h.conns))
	for conn := range h.conns {
		conns = append(conns, conn)
	}
	h.connMu.Unlock()

	h.log.Info("正在关闭所有客户端连接", zap.Int("conns", len(conns)), zap.Int("clients", h.ClientCount()))
	for _, conn := range conns {
		if err := conn.Close(); err != nil && !isExpectedCloseError(err) {
			h.log.Debug("关闭连接失败", zap.Error(err))
		}
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("Hub 已关闭")
		return nil
	case <-time.After(timeout):
		h.log.Warn("Hub 关闭超时，部分连接协程可能仍在运行")
		return context.DeadlineExceeded
	}
}
