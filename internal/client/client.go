package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	"ChatRelay/pkg/protocol"
)

// File 是从服务器收到的一个完整文件
type File struct {
	Name string
	Data []byte
}

// Event 是客户端收到的一帧：普通文本行，或者带负载的文件
type Event struct {
	Line string
	File *File
}

type Client struct {
	username string
	conn     io.ReadWriteCloser
	reader   *protocol.Reader
	writer   *protocol.Writer
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc  // 用于取消上下文
	incoming chan Event          // 服务器发来的帧
	outgoing chan protocol.Frame // 等待发送的帧
	once     sync.Once
}

func NewClient() *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		ctx:      ctx,
		cancel:   cancel,
		incoming: make(chan Event, 256),
		outgoing: make(chan protocol.Frame, 256),
	}
}

// Connect 通过 TCP 连接到服务器
func (c *Client) Connect(address string) error {
	conn, err := net.Dial("tcp", address)
	if err != nil {
		return err
	}
	c.Attach(conn)
	return nil
}

// Attach 使用一个已经建立好的字节流，例如 WebSocket 适配出的连接
func (c *Client) Attach(conn io.ReadWriteCloser) {
	c.conn = conn
	c.reader = protocol.NewReader(conn, 0)
	c.writer = protocol.NewWriter(conn)
}

// Login 发送用户名并同步等待服务器的登录结果，必须在 Start 之前调用
func (c *Client) Login(username string) (string, error) {
	if strings.ContainsAny(username, "\r\n") {
		return "", errors.New("username must be a single line")
	}
	if err := c.writer.WriteLine(username); err != nil {
		return "", err
	}
	if err := c.writer.Flush(); err != nil {
		return "", err
	}
	line, err := c.reader.ReadLine()
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(line, protocol.LoginSuccess) {
		return line, fmt.Errorf("login rejected: %s", line)
	}
	c.username = username
	return line, nil
}

func (c *Client) Start() {
	c.wg.Add(2)
	go c.receiveLoop()
	go c.sendLoop()
}

// receiveLoop 处理接收消息
func (c *Client) receiveLoop() {
	defer c.wg.Done()
	defer close(c.incoming)

	for {
		line, err := c.reader.ReadLine()
		if err != nil {
			c.Close()
			return
		}

		ev := Event{Line: line}
		if name, length, ok := protocol.ParseFileReceived(line); ok {
			data, err := c.reader.ReadPayload(length)
			if err != nil {
				c.Close()
				return
			}
			ev.File = &File{Name: name, Data: data}
		}

		select {
		case c.incoming <- ev:
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) sendLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case frame := <-c.outgoing:
			err := c.writer.WriteFrame(frame)
			if err == nil && len(c.outgoing) == 0 {
				err = c.writer.Flush()
			}
			if err != nil {
				c.Close()
				return
			}
		}
	}
}

// Username 返回登录时使用的用户名
func (c *Client) Username() string {
	return c.username
}

var errClosed = errors.New("client is closed")

func (c *Client) Send(frame protocol.Frame) error {
	if c.ctx.Err() != nil {
		return errClosed
	}
	select {
	case c.outgoing <- frame:
		return nil
	case <-c.ctx.Done():
		return errClosed
	}
}

// SendText 发送一条广播消息
func (c *Client) SendText(text string) error {
	return c.Send(protocol.Frame{Line: text})
}

func (c *Client) CreateGroup(code string) error {
	return c.Send(protocol.Frame{Line: protocol.GroupCreate + " " + code})
}

func (c *Client) JoinGroup(code string) error {
	return c.Send(protocol.Frame{Line: protocol.GroupJoin + " " + code})
}

func (c *Client) SendGroupMessage(code, text string) error {
	return c.Send(protocol.Frame{Line: protocol.GroupMsg + " " + code + " " + text})
}

// SendFile 发送文件元数据和原始负载。mode 为 BROADCAST 时 target 可以为空。
func (c *Client) SendFile(mode protocol.TransferMode, target, name string, data []byte) error {
	return c.Send(protocol.Frame{
		Line:    protocol.FormatFileTransfer(mode, target, name, int64(len(data))),
		Payload: data,
	})
}

func (c *Client) GetIncomingMessages() <-chan Event {
	return c.incoming
}

// Wait 等待收发协程全部退出
func (c *Client) Wait() {
	c.wg.Wait()
}

func (c *Client) Close() {
	c.once.Do(func() {
		c.cancel() // 取消上下文，通知所有 goroutine 停止
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}
