package ws

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/facecap/internal/ws/wstest"
)

func recvMessage(t *testing.T, ch <-chan wstest.Message, within time.Duration) wstest.Message {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(within):
		t.Fatalf("timed out waiting for server to read a message")
		return wstest.Message{}
	}
}

func TestDial_ProbeRoundTrip(t *testing.T) {
	srv := wstest.NewServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := WebsocketDialer{}.Dial(ctx, srv.URL)
	require.NoError(t, err)
	defer c.Close("bye")

	require.NoError(t, c.Write(ctx, []byte(`{"type":"NULL"}`)))
	assert.Equal(t, "NULL", recvMessage(t, srv.Received(), time.Second).Type)

	data, err := c.Read(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"NULL"}`, string(data))
}

func TestDial_LargeInboundFitsReadLimit(t *testing.T) {
	srv := wstest.NewServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := WebsocketDialer{}.Dial(ctx, srv.URL)
	require.NoError(t, err)
	defer c.Close("bye")

	// make sure the server registered the connection before pushing
	require.NoError(t, c.Write(ctx, []byte(`{"type":"register_click","val":"x"}`)))
	recvMessage(t, srv.Received(), time.Second)

	big := make([]byte, 200_000)
	for i := range big {
		big[i] = 'a'
	}
	require.NoError(t, srv.Push(ctx, `{"type":"ANNOTATED","content":"`+string(big)+`"}`))

	data, err := c.Read(ctx)
	require.NoError(t, err)
	assert.Greater(t, len(data), 200_000)
}

func TestDial_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := WebsocketDialer{}.Dial(ctx, "ws://127.0.0.1:1/")
	assert.Error(t, err)
}

func TestIsNormalClose(t *testing.T) {
	assert.True(t, IsNormalClose(nil))
	assert.True(t, IsNormalClose(context.Canceled))
	assert.True(t, IsNormalClose(websocket.CloseError{Code: websocket.StatusGoingAway}))
	assert.False(t, IsNormalClose(websocket.CloseError{Code: websocket.StatusInternalError}))
	assert.False(t, IsNormalClose(errors.New("boom")))
}
