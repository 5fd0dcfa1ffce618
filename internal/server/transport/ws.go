package transport

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"ChatRelay/internal/server/core"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// Gateway 让浏览器等只能使用 WebSocket 的客户端接入同一套协议。
// 二进制消息被拼接成一个连续的字节流，帧格式与 TCP 完全相同。
type Gateway struct {
	Addr      string
	ReadLimit int64 // 单条 WebSocket 消息的最大字节数
	hub       *core.Hub
	log       *zap.Logger
	srv       *http.Server
}

func NewGateway(addr string, readLimit int64, hub *core.Hub, log *zap.Logger) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	g := &Gateway{
		Addr:      addr,
		ReadLimit: readLimit,
		hub:       hub,
		log:       log,
	}
	g.srv = &http.Server{
		Addr:              addr,
		Handler:           g.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return g
}

// Handler 返回网关的路由：/ 为健康检查，/ws 为 WebSocket 入口
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", g.handleHealth)
	mux.HandleFunc("/ws", g.handleWebSocket)
	return mux
}

func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "ChatRelay server is running! clients=%d groups=%d\n", g.hub.ClientCount(), g.hub.GroupCount())
}

func (g *Gateway) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		g.log.Warn("WebSocket 握手失败", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	if g.ReadLimit > 0 {
		c.SetReadLimit(g.ReadLimit)
	}
	g.log.Debug("新的 WebSocket 连接", zap.String("remote", r.RemoteAddr))

	// Serve 阻塞到连接结束，请求上下文在此期间保持有效
	conn := websocket.NetConn(r.Context(), c, websocket.MessageBinary)
	g.hub.Serve(conn)
}

// Start 监听 HTTP 地址并阻塞，正常关闭时返回 nil
func (g *Gateway) Start() error {
	g.log.Info("WebSocket 网关已启动", zap.String("addr", g.Addr))
	if err := g.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown 停止接受新的 HTTP 请求。已升级的连接由 Hub.Shutdown 关闭。
func (g *Gateway) Shutdown(ctx context.Context) error {
	return g.srv.Shutdown(ctx)
}
