package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hue-controller/internal/core"
)

type fakeSnapshot struct{}

func (fakeSnapshot) DeviceState() map[string]interface{} {
	return map[string]interface{}{"isOn": true, "brightness": 42}
}
func (fakeSnapshot) Patterns() ([]string, error) { return []string{"rainbow.lua"}, nil }
func (fakeSnapshot) RunningPattern() string { return "" }
func (fakeSnapshot) Schedules() interface{} { return map[string]string{} }

// brokenSnapshot reports a state that cannot be encoded.
type brokenSnapshot struct{ fakeSnapshot }

func (brokenSnapshot) DeviceState() map[string]interface{} {
	return map[string]interface{}{"isOn": make(chan int)}
}

func startServer(t *testing.T, origins []string) (*Server, core.CommandChannel, *core.EventBus, string) {
	t.Helper()
	return startServerWith(t, fakeSnapshot{}, origins)
}

func startServerWith(t *testing.T, snapshot Snapshot, origins []string) (*Server, core.CommandChannel, *core.EventBus, string) {
	t.Helper()
	intents := make(core.CommandChannel, 10)
	eb := core.NewEventBus()
	s := NewServer(intents, eb, snapshot, "0", t.TempDir(), origins)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Hub.Close()
		ts.Close()
	})
	return s, intents, eb, "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg map[string]interface{}
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebSocketSendsSnapshotOnConnect(t *testing.T) {
	_, _, _, url := startServer(t, nil)
	conn := dial(t, url)

	var types []string
	for i := 0; i < 4; i++ {
		types = append(types, readMessage(t, conn)["type"].(string))
	}
	assert.Equal(t, []string{"device_state", "pattern_list", "pattern_status", "schedule_list"}, types)
}

func TestWebSocketClosedWhenSnapshotFails(t *testing.T) {
	s, _, _, url := startServerWith(t, brokenSnapshot{}, nil)
	conn := dial(t, url)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var err error
	for err == nil {
		_, _, err = conn.ReadMessage()
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		assert.False(t, netErr.Timeout(), "connection left open")
	}
	assert.Equal(t, 0, s.Hub.Clients())
}

func TestWebSocketForwardsIntents(t *testing.T) {
	_, intents, _, url := startServer(t, nil)
	conn := dial(t, url)

	require.NoError(t, conn.WriteJSON(Command{Type: "setBrightness", Payload: map[string]interface{}{"value": 77}}))

	select {
	case cmd := <-intents:
		assert.Equal(t, core.CmdSetBrightness, cmd.Type)
		assert.Equal(t, 77.0, cmd.Payload["value"])
	case <-time.After(2 * time.Second):
		t.Fatal("intent not forwarded")
	}
}

func TestEventsAreBroadcast(t *testing.T) {
	s, _, eb, url := startServer(t, nil)
	conn := dial(t, url)
	for i := 0; i < 4; i++ {
		readMessage(t, conn)
	}
	require.Eventually(t, func() bool { return s.Hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	eb.Publish(core.Event{Type: core.PowerChangedEvent, Payload: map[string]bool{"isOn": false}})

	msg := readMessage(t, conn)
	assert.Equal(t, "power_update", msg["type"])
	assert.Equal(t, map[string]interface{}{"isOn": false}, msg["payload"])
}

func TestCheckOrigin(t *testing.T) {
	_, _, _, url := startServer(t, []string{"http://allowed.local"})

	header := http.Header{"Origin": []string{"http://evil.local"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "http://allowed.local")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	conn.Close()
}
