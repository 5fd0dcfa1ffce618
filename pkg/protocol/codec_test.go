package protocol

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadLine(t *testing.T) {
	r := NewReader(strings.NewReader("alice\r\nhello world\n\nlast"), 0)

	line, err := r.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "alice", line)

	line, err = r.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "hello world", line)

	line, err = r.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "", line)

	_, err = r.ReadLine()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReadLineCleanEOF(t *testing.T) {
	r := NewReader(strings.NewReader("one\n"), 0)
	_, err := r.ReadLine()
	require.NoError(t, err)

	_, err = r.ReadLine()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadLineTooLongKeepsStreamAligned(t *testing.T) {
	long := strings.Repeat("x", 10000)
	r := NewReader(strings.NewReader(long+"\nnext\n"), 100)

	_, err := r.ReadLine()
	var frameErr *FrameError
	require.ErrorAs(t, err, &frameErr)
	assert.ErrorIs(t, err, ErrLineTooLong)
	assert.Equal(t, "Line exceeds the 100 byte limit.", frameErr.Reason)

	line, err := r.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "next", line)
}

func TestPayloadBetweenLinesIsNotLineDecoded(t *testing.T) {
	payload := []byte("line1\nline2\r\n\x00\xff\n")
	var stream bytes.Buffer
	w := NewWriter(&stream)
	require.NoError(t, w.WriteFrame(Frame{Line: FileReceivedLine("a.bin", int64(len(payload))), Payload: payload}))
	require.NoError(t, w.WriteLine("after"))
	require.NoError(t, w.Flush())

	r := NewReader(&stream, 0)
	header, err := r.ReadLine()
	require.NoError(t, err)
	name, length, ok := ParseFileReceived(header)
	require.True(t, ok)
	assert.Equal(t, "a.bin", name)

	got, err := r.ReadPayload(length)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	line, err := r.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "after", line)
}

func TestReadPayloadShortRead(t *testing.T) {
	r := NewReader(strings.NewReader("abc"), 0)
	_, err := r.ReadPayload(10)

	var frameErr *FrameError
	require.ErrorAs(t, err, &frameErr)
	assert.True(t, errors.Is(err, ErrShortRead))
	assert.Contains(t, frameErr.Reason, "3 of 10")
}

func TestReadPayloadZeroLength(t *testing.T) {
	r := NewReader(strings.NewReader("next\n"), 0)
	got, err := r.ReadPayload(0)
	require.NoError(t, err)
	assert.Empty(t, got)

	line, err := r.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "next", line)
}

func TestDiscard(t *testing.T) {
	r := NewReader(strings.NewReader("0123456789rest\n"), 0)
	require.NoError(t, r.Discard(10))

	line, err := r.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "rest", line)

	assert.ErrorIs(t, NewReader(strings.NewReader("ab"), 0).Discard(5), ErrShortRead)
}
