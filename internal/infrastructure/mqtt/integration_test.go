//go:build integration

package mqtt

import (
	"context"
	"errors"
	"testing"
	"time"
)

// Integration tests require a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

func connectTest(t *testing.T, clientID string) *Client {
	t.Helper()
	cfg := testConfig()
	cfg.Broker.ClientID = clientID

	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestIntegration_Connect(t *testing.T) {
	client := connectTest(t, "lanwake-int-connect")

	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestIntegration_BrokerRefused(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.Port = 19998

	_, err := Connect(cfg)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestIntegration_Close(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "lanwake-int-close"

	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestIntegration_WakeCommandRoundtrip(t *testing.T) {
	pub := connectTest(t, "lanwake-int-pub")
	sub := connectTest(t, "lanwake-int-sub")
	topics := sub.Topics()

	received := make(chan string, 1)
	err := sub.Subscribe(topics.AllWakeCommands(), 1, func(topic string, _ []byte) error {
		if id, ok := topics.WakeCommandDevice(topic); ok {
			received <- id
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if got := sub.Subscriptions(); len(got) != 1 || got[0] != topics.AllWakeCommands() {
		t.Errorf("Subscriptions() = %v, want [%s]", got, topics.AllWakeCommands())
	}

	time.Sleep(100 * time.Millisecond)

	if err := pub.Publish(topics.WakeCommand("device-1"), []byte("{}"), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case id := <-received:
		if id != "device-1" {
			t.Errorf("device id = %q, want device-1", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("wake command not received")
	}

	if err := sub.Unsubscribe(topics.AllWakeCommands()); err != nil {
		t.Errorf("Unsubscribe() error = %v", err)
	}
	if got := sub.Subscriptions(); len(got) != 0 {
		t.Errorf("Subscriptions() = %v, want none", got)
	}
}

func TestIntegration_RetainedStatus(t *testing.T) {
	pub := connectTest(t, "lanwake-int-retain-pub")
	topic := pub.Topics().DeviceStatus("retained-device")

	if err := pub.PublishJSON(topic, map[string]string{"status": "online"}, true); err != nil {
		t.Fatalf("PublishJSON() error = %v", err)
	}

	sub := connectTest(t, "lanwake-int-retain-sub")
	got := make(chan []byte, 1)
	if err := sub.Subscribe(topic, 1, func(_ string, payload []byte) error {
		got <- payload
		return nil
	}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	select {
	case payload := <-got:
		if string(payload) != `{"status":"online"}` {
			t.Errorf("payload = %s", payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("retained status not delivered")
	}
}
