// Package config 管理服务器的运行参数：默认值、环境变量覆盖以及非法值的修正
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"ChatRelay/internal/server/core"
	"ChatRelay/pkg/protocol"

	"go.uber.org/zap/zapcore"
)

const (
	defaultPort             = 1234
	defaultLogLevel         = "info"
	defaultMaxFileSize      = 64 << 20
	defaultSendQueueSize    = 256
	defaultWriteTimeout     = 10 * time.Second
	defaultHandshakeTimeout = 30 * time.Second
)

// Config 服务器配置
type Config struct {
	Port             int
	HTTPAddr         string // 为空时不启用 WebSocket 网关
	LogLevel         string
	MaxLineLength    int
	MaxFileSize      int64
	SendQueueSize    int
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration // 0 表示不因空闲断开
	HandshakeTimeout time.Duration
}

// Default 返回全部使用默认值的配置
func Default() Config {
	return Config{
		Port:             defaultPort,
		LogLevel:         defaultLogLevel,
		MaxLineLength:    protocol.DefaultMaxLineLength,
		MaxFileSize:      defaultMaxFileSize,
		SendQueueSize:    defaultSendQueueSize,
		WriteTimeout:     defaultWriteTimeout,
		HandshakeTimeout: defaultHandshakeTimeout,
	}
}

// FromEnv 从 CHAT_* 环境变量读取配置，未设置或无法解析的项使用默认值
func FromEnv() Config {
	return fromLookup(os.LookupEnv)
}

func fromLookup(lookup func(string) (string, bool)) Config {
	cfg := Default()

	if v, ok := lookup("CHAT_PORT"); ok {
		cfg.Port = parseInt(v, cfg.Port)
	}
	if v, ok := lookup("CHAT_HTTP_ADDR"); ok {
		cfg.HTTPAddr = strings.TrimSpace(v)
	}
	if v, ok := lookup("CHAT_LOG_LEVEL"); ok {
		cfg.LogLevel = strings.TrimSpace(v)
	}
	if v, ok := lookup("CHAT_MAX_LINE"); ok {
		cfg.MaxLineLength = parseInt(v, cfg.MaxLineLength)
	}
	if v, ok := lookup("CHAT_MAX_FILE_SIZE"); ok {
		cfg.MaxFileSize = parseInt64(v, cfg.MaxFileSize)
	}
	if v, ok := lookup("CHAT_SEND_QUEUE"); ok {
		cfg.SendQueueSize = parseInt(v, cfg.SendQueueSize)
	}
	if v, ok := lookup("CHAT_WRITE_TIMEOUT"); ok {
		cfg.WriteTimeout = parseDuration(v, cfg.WriteTimeout)
	}
	if v, ok := lookup("CHAT_IDLE_TIMEOUT"); ok {
		cfg.IdleTimeout = parseDuration(v, cfg.IdleTimeout)
	}
	if v, ok := lookup("CHAT_HANDSHAKE_TIMEOUT"); ok {
		cfg.HandshakeTimeout = parseDuration(v, cfg.HandshakeTimeout)
	}
	return cfg
}

// Sanitize 把超出范围的值恢复为默认值
func (c Config) Sanitize() Config {
	def := Default()
	if c.Port < 0 || c.Port > 65535 {
		c.Port = def.Port
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		c.LogLevel = def.LogLevel
	}
	if c.MaxLineLength <= 0 {
		c.MaxLineLength = def.MaxLineLength
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = def.MaxFileSize
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = def.SendQueueSize
	}
	if c.WriteTimeout < 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.IdleTimeout < 0 {
		c.IdleTimeout = 0
	}
	if c.HandshakeTimeout < 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	return c
}

// Level 返回解析后的日志级别，无法解析时为 info
func (c Config) Level() zapcore.Level {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return zapcore.InfoLevel
	}
	return level
}

// Options 转换成 Hub 使用的单连接限制
func (c Config) Options() core.Options {
	return core.Options{
		MaxLineLength:    c.MaxLineLength,
		MaxFileSize:      c.MaxFileSize,
		SendQueueSize:    c.SendQueueSize,
		WriteTimeout:     c.WriteTimeout,
		IdleTimeout:      c.IdleTimeout,
		HandshakeTimeout: c.HandshakeTimeout,
	}
}

// WebSocketReadLimit 网关接受的单条 WebSocket 消息上限：一个完整文件负载加上它的元数据行
func (c Config) WebSocketReadLimit() int64 {
	return c.MaxFileSize + int64(c.MaxLineLength) + 2
}

func parseInt(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		return parsed
	}
	return defaultValue
}

func parseInt64(value string, defaultValue int64) int64 {
	if parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
		return parsed
	}
	return defaultValue
}

// parseDuration 接受 Go 的时长格式（"15s"）或者纯数字秒数
func parseDuration(value string, defaultValue time.Duration) time.Duration {
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
