package core

import (
	"bufio"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func serveInBackground(h *Hub, conn net.Conn) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		h.Serve(conn)
		close(done)
	}()
	return done
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestHandshakeRejectsEmptyUsername(t *testing.T) {
	h := newTestHub(t)
	server, peer := net.Pipe()
	defer peer.Close()
	done := serveInBackground(h, server)

	_, err := peer.Write([]byte("   \n"))
	require.NoError(t, err)

	line, err := bufio.NewReader(peer).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "LOGIN_FAILED Invalid username.\n", line)

	waitDone(t, done)
	assert.Equal(t, 0, h.ClientCount())
}

func TestHandshakeRejectsMissingUsername(t *testing.T) {
	h := newTestHub(t)
	server, peer := net.Pipe()
	done := serveInBackground(h, server)

	require.NoError(t, peer.Close())

	waitDone(t, done)
	assert.Equal(t, 0, h.ClientCount())
}

func TestServeLifecycle(t *testing.T) {
	h := newTestHub(t)
	server, peer := net.Pipe()
	done := serveInBackground(h, server)
	r := bufio.NewReader(peer)

	_, err := peer.Write([]byte("bob\n"))
	require.NoError(t, err)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "LOGIN_SUCCESS Welcome to the chat, bob\n", line)
	assert.Equal(t, 1, h.ClientCount())

	_, err = peer.Write([]byte("GROUP_CREATE team\r\nhello\n"))
	require.NoError(t, err)
	line, err = r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "GROUP_CREATED team\n", line)
	line, err = r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "bob: hello\n", line)

	require.NoError(t, peer.Close())
	waitDone(t, done)

	assert.Equal(t, 0, h.ClientCount())
	members, err := h.Resolve("team")
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestShutdownClosesLiveConnections(t *testing.T) {
	h := newTestHub(t)
	server, peer := net.Pipe()
	defer peer.Close()
	done := serveInBackground(h, server)

	_, err := peer.Write([]byte("carol\n"))
	require.NoError(t, err)
	_, err = bufio.NewReader(peer).ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, 1, h.ClientCount())

	require.NoError(t, h.Shutdown(2*time.Second))
	waitDone(t, done)
	assert.Equal(t, 0, h.ClientCount())
}

func TestOverLongLineGetsErrorReply(t *testing.T) {
	h := NewHub(zaptest.NewLogger(t), Options{MaxLineLength: 16})
	server, peer := net.Pipe()
	done := serveInBackground(h, server)
	r := bufio.NewReader(peer)

	go func() {
		_, _ = peer.Write([]byte("bob\n" + strings.Repeat("x", 40) + "\nhi\n"))
	}()

	for _, want := range []string{
		"LOGIN_SUCCESS Welcome to the chat, bob\n",
		"LINE_ERROR Line exceeds the 16 byte limit.\n",
		"bob: hi\n",
	} {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		assert.Equal(t, want, line)
	}

	require.NoError(t, peer.Close())
	waitDone(t, done)
}

func TestShutdownClosesPendingHandshake(t *testing.T) {
	h := NewHub(zaptest.NewLogger(t), Options{HandshakeTimeout: time.Minute})
	server, peer := net.Pipe()
	defer peer.Close()
	done := serveInBackground(h, server)

	// 连接停留在握手阶段，不在注册表中
	require.Eventually(t, func() bool { return h.connCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, h.ClientCount())

	require.NoError(t, h.Shutdown(time.Second))
	waitDone(t, done)
	assert.Equal(t, 0, h.connCount())
}

func TestServeAfterShutdownClosesConnection(t *testing.T) {
	h := newTestHub(t)
	require.NoError(t, h.Shutdown(time.Second))

	server, peer := net.Pipe()
	defer peer.Close()
	waitDone(t, serveInBackground(h, server))

	_, err := peer.Write([]byte("late\n"))
	assert.ErrorIs(t, err, io.ErrClosedPipe)
	assert.Equal(t, 0, h.ClientCount())
}
