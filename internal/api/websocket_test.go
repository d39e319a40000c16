package api

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/lanwake/internal/device"
	"github.com/nerrad567/lanwake/internal/monitor"
	"github.com/nerrad567/lanwake/internal/waker"
	"github.com/nerrad567/lanwake/internal/wol"
)

// startWS runs the hub and serves the router on a real listener.
func startWS(t *testing.T, env *testEnv) string {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	sub := env.monitor.Subscribe()
	done := make(chan struct{})
	go func() {
		env.srv.hub.Run(ctx, sub)
		close(done)
	}()

	ts := httptest.NewServer(env.handler)
	t.Cleanup(func() {
		ts.Close()
		cancel()
		<-done
	})
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
}

func dialWS(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v (resp: %v)", err, resp)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readMessage(t *testing.T, ws *websocket.Conn) WSMessage {
	t.Helper()
	//nolint:errcheck // test deadline
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

// readEvent skips responses until an event on channel arrives.
func readEvent(t *testing.T, ws *websocket.Conn, channel string) WSMessage {
	t.Helper()
	for {
		msg := readMessage(t, ws)
		if msg.Type == WSTypeEvent && msg.EventType == channel {
			return msg
		}
	}
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("clients = %d, want %d", hub.ClientCount(), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWebSocket_InitialSnapshot(t *testing.T) {
	env := newTestEnv(t, "")
	id := env.addDevice(t, "nas")
	env.monitor.set(id, monitor.StatusOnline)

	ws := dialWS(t, startWS(t, env))

	msg := readMessage(t, ws)
	if msg.Type != WSTypeEvent || msg.EventType != ChannelStatusDump {
		t.Fatalf("first message = %s/%s, want event/%s", msg.Type, msg.EventType, ChannelStatusDump)
	}
	payload, ok := msg.Payload.(map[string]any)
	if !ok {
		t.Fatalf("payload type %T", msg.Payload)
	}
	statuses, ok := payload["statuses"].(map[string]any)
	if !ok {
		t.Fatalf("statuses type %T", payload["statuses"])
	}
	if statuses[id] != "online" {
		t.Errorf("snapshot status = %v, want online", statuses[id])
	}
}

func TestWebSocket_StatusEvents(t *testing.T) {
	env := newTestEnv(t, "")
	id := env.addDevice(t, "nas")

	ws := dialWS(t, startWS(t, env))
	readEvent(t, ws, ChannelStatusDump)
	waitForClients(t, env.srv.hub, 1)

	env.monitor.set(id, monitor.StatusOffline)

	msg := readEvent(t, ws, ChannelDeviceStatus)
	payload, ok := msg.Payload.(map[string]any)
	if !ok {
		t.Fatalf("payload type %T", msg.Payload)
	}
	if payload["device_id"] != id || payload["status"] != "offline" {
		t.Errorf("payload = %v", payload)
	}
}

func TestWebSocket_SubscribeUnsubscribe(t *testing.T) {
	env := newTestEnv(t, "")
	id := env.addDevice(t, "nas")

	ws := dialWS(t, startWS(t, env))
	readEvent(t, ws, ChannelStatusDump)

	if err := ws.WriteJSON(WSMessage{
		Type:    WSTypeUnsubscribe,
		ID:      "unsub-1",
		Payload: WSSubscribePayload{Channels: []string{ChannelDeviceStatus}},
	}); err != nil {
		t.Fatalf("write unsubscribe: %v", err)
	}
	resp := readMessage(t, ws)
	if resp.Type != WSTypeResponse || resp.ID != "unsub-1" {
		t.Fatalf("unsubscribe response = %+v", resp)
	}

	// Status events are no longer delivered; a ping still is.
	env.monitor.set(id, monitor.StatusOnline)
	if err := ws.WriteJSON(WSMessage{Type: WSTypePing, ID: "ping-1"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	msg := readMessage(t, ws)
	if msg.Type != WSTypePong || msg.ID != "ping-1" {
		t.Errorf("got %s/%s, want pong/ping-1", msg.Type, msg.ID)
	}

	if err := ws.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "sub-1",
		Payload: WSSubscribePayload{Channels: []string{ChannelDeviceStatus}},
	}); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}
	if resp := readMessage(t, ws); resp.ID != "sub-1" {
		t.Fatalf("subscribe response = %+v", resp)
	}

	// The earlier online event may still be in flight, so read until the
	// offline one arrives.
	env.monitor.set(id, monitor.StatusOffline)
	for {
		ev := readEvent(t, ws, ChannelDeviceStatus)
		if p, ok := ev.Payload.(map[string]any); ok && p["status"] == "offline" {
			break
		}
	}
}

func TestWebSocket_UnknownMessage(t *testing.T) {
	env := newTestEnv(t, "")
	ws := dialWS(t, startWS(t, env))
	readEvent(t, ws, ChannelStatusDump)

	if err := ws.WriteJSON(WSMessage{Type: "bogus", ID: "x"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	msg := readMessage(t, ws)
	if msg.Type != WSTypeError || msg.ID != "x" {
		t.Errorf("got %+v, want error response", msg)
	}
}

func TestWebSocket_RequiresToken(t *testing.T) {
	env := newTestEnv(t, testSecret)
	url := startWS(t, env)

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial without token should fail")
	}
	if resp == nil || resp.StatusCode != 401 {
		t.Fatalf("response = %v, want 401", resp)
	}
	resp.Body.Close()

	tok, err := IssueToken(testSecret, "dashboard", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	ws := dialWS(t, url+"?access_token="+tok)
	readEvent(t, ws, ChannelStatusDump)
}

func TestHub_WakeAttempted(t *testing.T) {
	env := newTestEnv(t, "")
	ws := dialWS(t, startWS(t, env))
	readEvent(t, ws, ChannelStatusDump)
	waitForClients(t, env.srv.hub, 1)

	dest, err := wol.ParseDestination("192.0.2.255:9")
	if err != nil {
		t.Fatalf("ParseDestination: %v", err)
	}
	env.srv.Hub().WakeAttempted(context.Background(), waker.Attempt{
		Device:       device.Device{ID: "dev-1", Label: "nas"},
		Destinations: []wol.Destination{dest},
		At:           time.Now(),
		Err:          errors.New("network unreachable"),
	})

	msg := readEvent(t, ws, ChannelDeviceWake)
	p, ok := msg.Payload.(map[string]any)
	if !ok {
		t.Fatalf("payload type %T", msg.Payload)
	}
	if p["device_id"] != "dev-1" || p["result"] != "failed" || p["error"] != "network unreachable" {
		t.Errorf("payload = %v", p)
	}
}

func TestHub_RunClosesClients(t *testing.T) {
	env := newTestEnv(t, "")
	hub := env.srv.hub

	ctx, cancel := context.WithCancel(context.Background())
	sub := env.monitor.Subscribe()
	done := make(chan struct{})
	go func() {
		hub.Run(ctx, sub)
		close(done)
	}()

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, 1),
		subscriptions: map[string]struct{}{ChannelDeviceStatus: {}},
	}
	hub.Register(client)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if n := hub.ClientCount(); n != 0 {
		t.Errorf("clients = %d after Run, want 0", n)
	}
	if _, ok := <-client.send; ok {
		t.Error("client send channel should be closed")
	}
	// Broadcasting after shutdown must not panic.
	hub.Broadcast(ChannelDeviceStatus, map[string]string{"x": "y"})
}
