package signal

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classmesh/sfu/internal/core"
)

func newTestConn() *wsConn {
	return &wsConn{send: make(chan core.Frame, 4), client: "client-1", room: "room-1"}
}

func recv(t *testing.T, c *wsConn) response {
	t.Helper()
	select {
	case frame := <-c.send:
		var resp response
		require.NoError(t, json.Unmarshal(frame, &resp))
		return resp
	default:
		t.Fatal("no frame queued")
		return response{}
	}
}

func TestDispatchPing(t *testing.T) {
	ctl := &Controller{}
	c := newTestConn()

	ctl.dispatch(c, []byte(`{"id":"42","type":"ping"}`))

	resp := recv(t, c)
	assert.Equal(t, "42", resp.ID)
	assert.Equal(t, "pong", resp.Type)
	assert.True(t, resp.OK)
}

func TestDispatchMalformedJSON(t *testing.T) {
	ctl := &Controller{}
	c := newTestConn()

	ctl.dispatch(c, []byte(`{not json`))

	resp := recv(t, c)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "validation", resp.Error.Code)
}

func TestDispatchUnknownType(t *testing.T) {
	ctl := &Controller{}
	c := newTestConn()

	ctl.dispatch(c, []byte(`{"id":"7","type":"fireTheLasers"}`))

	resp := recv(t, c)
	assert.Equal(t, "7", resp.ID)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "validation", resp.Error.Code)
}

func TestNotifyEnvelopeShape(t *testing.T) {
	c := newTestConn()

	c.Notify("memberJoined", map[string]any{"id": "bob"})

	resp := recv(t, c)
	assert.Equal(t, "memberJoined", resp.Type)
	assert.True(t, resp.OK)
	assert.Empty(t, resp.ID)
}

func TestTrySendBackpressure(t *testing.T) {
	c := &wsConn{send: make(chan core.Frame, 1)}

	require.NoError(t, c.TrySend(core.Frame("one")))
	assert.ErrorIs(t, c.TrySend(core.Frame("two")), ErrBackpressure)
}

func TestTrySendAfterClose(t *testing.T) {
	c := newTestConn()
	c.conn = nil

	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	assert.Error(t, c.TrySend(core.Frame("late")))
}
