package concurrency

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelSendRecvFIFO(t *testing.T) {
	r := New()
	ch := r.Channel(4)

	r.Send(1, ch)
	r.Send(2, ch)
	r.Send(3, ch)

	assert.Equal(t, int64(1), r.Recv(ch))
	assert.Equal(t, int64(2), r.Recv(ch))
	assert.Equal(t, int64(3), r.Recv(ch))
}

func TestRecvBlocksUntilSend(t *testing.T) {
	r := New()
	ch := r.Channel(1)

	done := make(chan int64, 1)
	go func() { done <- r.Recv(ch) }()

	select {
	case <-done:
		t.Fatal("recv returned before any send")
	case <-time.After(20 * time.Millisecond):
	}

	r.Send(42, ch)
	select {
	case v := <-done:
		assert.Equal(t, int64(42), v)
	case <-time.After(time.Second):
		t.Fatal("recv never unblocked after send")
	}
}

func TestCloseChannelUnblocksPendingRecv(t *testing.T) {
	r := New()
	ch := r.Channel(1)

	done := make(chan int64, 1)
	go func() { done <- r.Recv(ch) }()

	time.Sleep(20 * time.Millisecond)
	r.CloseChannel(ch)

	select {
	case v := <-done:
		assert.Equal(t, int64(0), v)
	case <-time.After(time.Second):
		t.Fatal("close-channel never unblocked a pending recv")
	}
}

func TestJoinOnUnknownThreadIsNoOp(t *testing.T) {
	r := New()
	assert.NotPanics(t, func() { r.Join(ThreadID(999)) })
}

func TestWaitReturnsNilWhenNoThreadsSpawned(t *testing.T) {
	r := New()
	require.NoError(t, r.Wait())
}
