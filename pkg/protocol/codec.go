package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

const (
	// DefaultMaxLineLength 控制行的默认最大长度
	DefaultMaxLineLength = 64 * 1024

	copyBufferSize = 32 * 1024
)

var (
	ErrLineTooLong = errors.New("control line too long")
	ErrShortRead   = errors.New("stream ended before announced length")
)

// FrameError 表示一个格式错误的帧或不完整的负载
type FrameError struct {
	Reason string
	Err    error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("frame error: %s: %v", e.Reason, e.Err)
	}
	return "frame error: " + e.Reason
}

func (e *FrameError) Unwrap() error { return e.Err }

// Frame 是一次出站写入的单位：一行控制文本，可选地跟随原始二进制负载。
// Payload 只读，可在多个接收方之间共享。
type Frame struct {
	Line    string
	Payload []byte
}

// Reader 在同一个字节流上解码控制行和定长负载
type Reader struct {
	br      *bufio.Reader
	maxLine int
}

func NewReader(r io.Reader, maxLine int) *Reader {
	if maxLine <= 0 {
		maxLine = DefaultMaxLineLength
	}
	return &Reader{br: bufio.NewReaderSize(r, 4096), maxLine: maxLine}
}

// ReadLine 读取一行控制文本（不含换行符和结尾的 \r）。
// 超长的行会被整行丢弃并返回 FrameError，流保持对齐。
// 流结束时返回 io.EOF；最后一行没有换行符时返回 io.ErrUnexpectedEOF。
func (r *Reader) ReadLine() (string, error) {
	var (
		line    []byte
		tooLong bool
	)
	for {
		chunk, err := r.br.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(chunk) > r.maxLine+2 {
				tooLong = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}
		if err == nil {
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if errors.Is(err, io.EOF) && (len(line) > 0 || tooLong) {
			return "", io.ErrUnexpectedEOF
		}
		return "", err
	}
	if tooLong {
		return "", &FrameError{Reason: fmt.Sprintf("Line exceeds the %d byte limit.", r.maxLine), Err: ErrLineTooLong}
	}

	line = line[:len(line)-1]
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	if len(line) > r.maxLine {
		return "", &FrameError{Reason: fmt.Sprintf("Line exceeds the %d byte limit.", r.maxLine), Err: ErrLineTooLong}
	}
	return string(line), nil
}

// ReadPayload 读取恰好 n 个原始字节
func (r *Reader) ReadPayload(n int64) ([]byte, error) {
	if n < 0 {
		return nil, &FrameError{Reason: "negative payload length"}
	}
	buf := make([]byte, n)
	read, err := io.ReadFull(r.br, buf)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, &FrameError{
				Reason: fmt.Sprintf("received %d of %d bytes", read, n),
				Err:    ErrShortRead,
			}
		}
		return nil, err
	}
	return buf, nil
}

// Discard 跳过 n 个负载字节，用于被拒绝的传输
func (r *Reader) Discard(n int64) error {
	if n <= 0 {
		return nil
	}
	skipped, err := io.CopyN(io.Discard, r.br, n)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return &FrameError{
				Reason: fmt.Sprintf("discarded %d of %d bytes", skipped, n),
				Err:    ErrShortRead,
			}
		}
		return err
	}
	return nil
}

// Writer 编码出站帧。调用方负责在合适的时机 Flush。
type Writer struct {
	bw *bufio.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{bw: bufio.NewWriterSize(w, copyBufferSize)}
}

func (w *Writer) WriteLine(line string) error {
	if _, err := w.bw.WriteString(line); err != nil {
		return err
	}
	return w.bw.WriteByte('\n')
}

// WritePayload 原样写入负载字节，不做任何转义
func (w *Writer) WritePayload(payload []byte) error {
	_, err := w.bw.Write(payload)
	return err
}

func (w *Writer) WriteFrame(f Frame) error {
	if err := w.WriteLine(f.Line); err != nil {
		return err
	}
	if len(f.Payload) == 0 {
		return nil
	}
	return w.WritePayload(f.Payload)
}

func (w *Writer) Flush() error {
	return w.bw.Flush()
}

// Buffered 返回尚未刷新的字节数
func (w *Writer) Buffered() int {
	return w.bw.Buffered()
}
