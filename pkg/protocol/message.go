package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// 客户端 -> 服务器 的命令关键字
const (
	GroupCreate  = "GROUP_CREATE"
	GroupJoin    = "GROUP_JOIN"
	GroupMsg     = "GROUP_MSG"
	FileTransfer = "FILE_TRANSFER"
)

// 服务器 -> 客户端 的回复关键字
const (
	LoginSuccess = "LOGIN_SUCCESS"
	LoginFailed  = "LOGIN_FAILED"
	GroupCreated = "GROUP_CREATED"
	GroupJoined  = "GROUP_JOINED"
	GroupError   = "GROUP_ERROR"
	FileSuccess  = "FILE_SUCCESS"
	FileError    = "FILE_ERROR"
	FileReceived = "FILE_RECEIVED"
	LineError    = "LINE_ERROR" // 控制行超过长度上限，该行被丢弃
)

// TransferMode 决定文件的接收方范围
type TransferMode string

const (
	ModeBroadcast TransferMode = "BROADCAST"
	ModeGroup     TransferMode = "GROUP"
)

// CommandKind 区分入站的控制行
type CommandKind int

const (
	CmdText CommandKind = iota
	CmdGroupCreate
	CmdGroupJoin
	CmdGroupMsg
	CmdFileTransfer
)

func (k CommandKind) String() string {
	switch k {
	case CmdGroupCreate:
		return GroupCreate
	case CmdGroupJoin:
		return GroupJoin
	case CmdGroupMsg:
		return GroupMsg
	case CmdFileTransfer:
		return FileTransfer
	default:
		return "TEXT"
	}
}

// FileMeta 是 FILE_TRANSFER 行携带的元数据
type FileMeta struct {
	Mode   TransferMode
	Target string
	Name   string
	Length int64
}

// Command 是解析后的一行客户端输入。
// Err 不为空时说明命令关键字被识别，但参数不合法。
type Command struct {
	Kind  CommandKind
	Group string
	Text  string
	File  *FileMeta
	Err   error
}

// ParseCommand 按第一个以空格分隔的词识别命令，其余内容一律视为普通广播文本
func ParseCommand(line string) Command {
	keyword, rest, _ := strings.Cut(line, " ")
	switch keyword {
	case GroupCreate, GroupJoin:
		kind := CmdGroupCreate
		if keyword == GroupJoin {
			kind = CmdGroupJoin
		}
		code := strings.TrimSpace(rest)
		if code == "" || strings.ContainsAny(code, " \t") {
			return Command{Kind: kind, Err: &FrameError{Reason: "Usage: " + keyword + " <code>"}}
		}
		return Command{Kind: kind, Group: code}

	case GroupMsg:
		code, text, ok := strings.Cut(strings.TrimLeft(rest, " "), " ")
		if code == "" || !ok {
			return Command{Kind: CmdGroupMsg, Err: &FrameError{Reason: "Usage: " + GroupMsg + " <code> <text>"}}
		}
		return Command{Kind: CmdGroupMsg, Group: code, Text: text}

	case FileTransfer:
		meta, err := ParseFileMeta(rest)
		return Command{Kind: CmdFileTransfer, File: meta, Err: err}
	}
	return Command{Kind: CmdText, Text: line}
}

// ParseFileMeta 解析 "<mode> <target> <name> <length>"。
// 文件名可以包含空格：它是 target 与最后一个长度字段之间的全部内容。
// BROADCAST 模式允许省略 target。
// 长度可解析但其它字段有误时，返回的 meta 仍带有 Length，便于调用方丢弃负载。
func ParseFileMeta(fields string) (*FileMeta, error) {
	parts := strings.Fields(fields)
	if len(parts) < 3 {
		return nil, &FrameError{Reason: fmt.Sprintf("expected mode, target, name and length, got %d fields", len(parts))}
	}

	length, err := strconv.ParseInt(parts[len(parts)-1], 10, 64)
	if err != nil {
		return nil, &FrameError{Reason: fmt.Sprintf("invalid length %q", parts[len(parts)-1]), Err: err}
	}
	if length < 0 {
		return nil, &FrameError{Reason: fmt.Sprintf("invalid length %d", length)}
	}

	meta := &FileMeta{Mode: TransferMode(strings.ToUpper(parts[0])), Length: length}
	middle := parts[1 : len(parts)-1]
	switch meta.Mode {
	case ModeBroadcast:
		if len(middle) == 1 {
			meta.Name = middle[0]
		} else {
			meta.Target = middle[0]
			meta.Name = strings.Join(middle[1:], " ")
		}
	case ModeGroup:
		if len(middle) < 2 {
			return meta, &FrameError{Reason: "GROUP transfer requires a target group and a file name"}
		}
		meta.Target = middle[0]
		meta.Name = strings.Join(middle[1:], " ")
	default:
		return meta, &FrameError{Reason: fmt.Sprintf("unknown transfer mode %q", parts[0])}
	}
	return meta, nil
}

// FormatFileTransfer 生成客户端发送文件时的元数据行
func FormatFileTransfer(mode TransferMode, target, name string, length int64) string {
	if target == "" {
		target = "Broadcast"
	}
	return fmt.Sprintf("%s %s %s %s %d", FileTransfer, mode, target, name, length)
}

// Reply 拼接一条 "<关键字> <内容>" 形式的回复
func Reply(keyword, text string) string {
	if text == "" {
		return keyword
	}
	return keyword + " " + text
}

// BroadcastLine 是广播消息的线上格式
func BroadcastLine(username, text string) string {
	return username + ": " + text
}

// GroupLine 是群组消息的线上格式
func GroupLine(code, username, text string) string {
	return "[Group " + code + "] " + username + ": " + text
}

// FileReceivedLine 是发给接收方的文件头
func FileReceivedLine(name string, length int64) string {
	return fmt.Sprintf("%s %s %d", FileReceived, name, length)
}

// ParseFileReceived 解析 "FILE_RECEIVED <name> <length>"，文件名同样可以包含空格
func ParseFileReceived(line string) (string, int64, bool) {
	rest, ok := strings.CutPrefix(line, FileReceived+" ")
	if !ok {
		return "", 0, false
	}
	idx := strings.LastIndexByte(rest, ' ')
	if idx <= 0 {
		return "", 0, false
	}
	length, err := strconv.ParseInt(rest[idx+1:], 10, 64)
	if err != nil || length < 0 {
		return "", 0, false
	}
	return rest[:idx], length, true
}
