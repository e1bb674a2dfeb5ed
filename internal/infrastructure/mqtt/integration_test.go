//go:build integration

package mqtt

import (
	"context"
	"os"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/chimp-relay/internal/infrastructure/config"
)

// Integration tests against a real broker with mutual TLS.
// They need a device certificate registered with the broker:
//
//	CHIMP_TEST_ENDPOINT=xxxx-ats.iot.eu-west-1.amazonaws.com \
//	CHIMP_TEST_CERT=certs/iot-certificate.pem.crt \
//	CHIMP_TEST_KEY=certs/iot-private.pem.key \
//	go test -tags=integration -count=1 -v ./internal/infrastructure/mqtt/...

func integrationConfig(t *testing.T) config.MQTTConfig {
	t.Helper()
	endpoint := os.Getenv("CHIMP_TEST_ENDPOINT")
	if endpoint == "" {
		t.Skip("CHIMP_TEST_ENDPOINT not set")
	}
	return config.MQTTConfig{
		Endpoint:  endpoint,
		Port:      8883,
		ClientID:  "chimp-integration-test",
		CertFile:  os.Getenv("CHIMP_TEST_CERT"),
		KeyFile:   os.Getenv("CHIMP_TEST_KEY"),
		CAFile:    os.Getenv("CHIMP_TEST_CA"),
		KeepAlive: 30,
		QuiesceMS: 250,
	}
}

// TestIntegration_Lifecycle connects, subscribes, receives its own
// publish, unsubscribes and stops.
func TestIntegration_Lifecycle(t *testing.T) {
	cfg := integrationConfig(t)
	topic := "chimp/integration/" + time.Now().Format("150405")

	received := make(chan Message, 1)
	c, err := NewCoordinator(cfg, func(msg Message) {
		select {
		case received <- msg:
		default:
		}
	})
	if err != nil {
		t.Fatalf("NewCoordinator() error = %v", err)
	}

	ctx := context.Background()
	if err := c.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if _, err := c.AwaitConnected(ctx, 30*time.Second); err != nil {
		t.Fatalf("AwaitConnected() error = %v", err)
	}

	sub := c.Subscriber()
	if _, err := sub.Subscribe(ctx, Subscription{TopicFilter: topic, QoS: AtLeastOnce}, 10*time.Second); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	client, err := c.activeClient()
	if err != nil {
		t.Fatalf("activeClient() error = %v", err)
	}
	if token := client.Publish(topic, byte(AtLeastOnce), false, []byte("ping")); !waitToken(token) {
		t.Fatal("Publish() did not complete")
	}

	select {
	case msg := <-received:
		if string(msg.Payload) != "ping" {
			t.Errorf("payload = %q, want %q", msg.Payload, "ping")
		}
	case <-time.After(10 * time.Second):
		t.Fatal("message not received")
	}

	if _, err := sub.Unsubscribe(ctx, topic, 10*time.Second); err != nil {
		t.Errorf("Unsubscribe() error = %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := c.AwaitStopped(ctx, 10*time.Second); err != nil {
		t.Errorf("AwaitStopped() error = %v", err)
	}
}

func waitToken(token pahomqtt.Token) bool {
	return token.WaitTimeout(10*time.Second) && token.Error() == nil
}
