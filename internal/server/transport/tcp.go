package transport

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"ChatRelay/internal/server/core"

	"go.uber.org/zap"
)

type Server struct {
	Address string    // 监听地址
	Port    int       // 监听端口，0 表示由系统分配
	hub     *core.Hub // 指向中心枢纽的指针
	log     *zap.Logger

	mu       sync.Mutex
	listener net.Listener
}

func NewServer(address string, port int, hub *core.Hub, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		Address: address,
		Port:    port,
		hub:     hub,
		log:     log,
	}
}

// Listen 绑定监听端口
func (s *Server) Listen() error {
	listener, err := net.Listen("tcp", net.JoinHostPort(s.Address, fmt.Sprint(s.Port)))
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.log.Info("服务器已启动", zap.String("addr", listener.Addr().String()))
	return nil
}

// Addr 返回实际监听的地址，未监听时返回 nil
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve 接受连接，每个连接交给一个独立的协程。监听器关闭后返回 nil。
func (s *Server) Serve() error {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	if listener == nil {
		return errors.New("transport: server is not listening")
	}

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Warn("接受连接失败", zap.Error(err))
			time.Sleep(50 * time.Millisecond)
			continue
		}
		s.log.Debug("新连接", zap.String("remote", conn.RemoteAddr().String()))
		go s.hub.Serve(conn)
	}
}

// Start 启动 TCP 服务器并阻塞
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Close 停止接受新连接，已有连接由 Hub.Shutdown 关闭
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}
