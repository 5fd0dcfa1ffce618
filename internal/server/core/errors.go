package core

import (
	"errors"
	"fmt"

	"ChatRelay/pkg/protocol"
)

var (
	ErrAuth          = errors.New("authentication failed")
	ErrGroupExists   = errors.New("group already exists")
	ErrGroupNotFound = errors.New("group not found")
	ErrNotMember     = errors.New("not a member of group")
	ErrClientClosed  = errors.New("client closed")
	ErrSendQueueFull = errors.New("send queue full")
)

// TransferError 表示一次文件传输失败
type TransferError struct {
	Reason string
	Err    error
}

func (e *TransferError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transfer failed: %s: %v", e.Reason, e.Err)
	}
	return "transfer failed: " + e.Reason
}

func (e *TransferError) Unwrap() error { return e.Err }

// reasonFor 把内部错误转换成回复给客户端的文字
func reasonFor(err error) string {
	var (
		frameErr    *protocol.FrameError
		transferErr *TransferError
	)
	switch {
	case errors.Is(err, ErrGroupExists):
		return "Group code already exists."
	case errors.Is(err, ErrGroupNotFound):
		return "Group does not exist."
	case errors.Is(err, ErrNotMember):
		return "You are not a member of this group."
	case errors.As(err, &transferErr):
		return transferErr.Reason
	case errors.As(err, &frameErr):
		return frameErr.Reason
	default:
		return err.Error()
	}
}
