package core

import (
	"fmt"

	"ChatRelay/pkg/protocol"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type transferState int

const (
	awaitMetadata transferState = iota
	receiving
	complete
	incomplete
	rejected
)

func (s transferState) String() string {
	switch s {
	case awaitMetadata:
		return "AWAIT_METADATA"
	case receiving:
		return "RECEIVING"
	case complete:
		return "COMPLETE"
	case incomplete:
		return "INCOMPLETE"
	case rejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// transfer 记录发送者连接上的一次文件传输
type transfer struct {
	id     string
	sender *Client
	meta   *protocol.FileMeta
	state  transferState
	log    *zap.Logger
}

// relayFile 接收一个文件负载并分发给接收方。
// 接收方在读取负载之前一次性解析，之后加入的成员不会收到该文件。
// 返回错误表示发送者的字节流已经中断。
func (h *Hub) relayFile(sender *Client, cmd protocol.Command) error {
	t := &transfer{
		id:     uuid.NewString(),
		sender: sender,
		meta:   cmd.File,
		state:  awaitMetadata,
	}
	t.log = sender.log.With(zap.String("transfer_id", t.id))

	if cmd.Err != nil {
		if cmd.File == nil {
			// 长度未知，无法跳过负载
			t.state = rejected
			sender.reply(protocol.FileError, reasonFor(cmd.Err))
			t.log.Warn("文件元数据无效", zap.Stringer("state", t.state), zap.Error(cmd.Err))
			return nil
		}
		return t.reject(cmd.Err)
	}
	if t.meta.Length > h.opts.MaxFileSize {
		return t.reject(&TransferError{Reason: fmt.Sprintf("File exceeds the %d byte limit.", h.opts.MaxFileSize)})
	}

	recipients, err := h.resolveTransfer(sender, t.meta)
	if err != nil {
		return t.reject(err)
	}

	t.state = receiving
	sender.extendReadDeadline()
	payload, err := sender.reader.ReadPayload(t.meta.Length)
	if err != nil {
		t.state = incomplete
		sender.reply(protocol.FileError, "Incomplete file received.")
		t.log.Warn("文件接收不完整", zap.Stringer("state", t.state), zap.String("file", t.meta.Name), zap.Int64("bytes", t.meta.Length), zap.Error(err))
		return &TransferError{Reason: "Incomplete file received.", Err: err}
	}
	t.state = complete

	frame := protocol.Frame{
		Line:    protocol.FileReceivedLine(t.meta.Name, t.meta.Length),
		Payload: payload,
	}
	delivered := h.deliver(recipients, frame)
	sender.reply(protocol.FileSuccess, "File transfer completed.")

	t.log.Info("文件已转发",
		zap.Stringer("state", t.state),
		zap.String("file", t.meta.Name),
		zap.Int64("bytes", t.meta.Length),
		zap.String("mode", string(t.meta.Mode)),
		zap.Int("delivered", delivered),
	)
	return nil
}

func (h *Hub) resolveTransfer(sender *Client, meta *protocol.FileMeta) ([]*Client, error) {
	if meta.Mode == protocol.ModeGroup {
		return h.ResolveFor(meta.Target, sender)
	}
	return h.Clients(), nil
}

// reject 丢弃已声明长度的负载，使字节流保持对齐，然后向发送者报告错误
func (t *transfer) reject(cause error) error {
	t.state = rejected
	if err := t.sender.reader.Discard(t.meta.Length); err != nil {
		t.state = incomplete
		t.sender.reply(protocol.FileError, "Incomplete file received.")
		return &TransferError{Reason: "Incomplete file received.", Err: err}
	}
	t.sender.reply(protocol.FileError, reasonFor(cause))
	t.log.Info("文件传输被拒绝", zap.Stringer("state", t.state), zap.String("file", t.meta.Name), zap.Error(cause))
	return nil
}
