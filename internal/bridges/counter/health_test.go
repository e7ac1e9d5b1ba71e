package counter

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func newTestHealthReporter(client *MockMQTTClient, codec StatsSource) *HealthReporter {
	return NewHealthReporter(HealthReporterConfig{
		BridgeID:  "counter",
		Version:   "1.0.0",
		Interval:  time.Hour,
		Publisher: client,
		Codec:     codec,
		Queue:     NewQueue(&mockTransport{}, nil),
	})
}

func lastHealth(t *testing.T, client *MockMQTTClient) HealthMessage {
	t.Helper()
	msgs := client.PublishedTo(HealthTopic())
	if len(msgs) == 0 {
		t.Fatal("no health message published")
	}
	last := msgs[len(msgs)-1]
	if !last.Retained || last.QoS != 1 {
		t.Errorf("health qos/retained = %d/%v, want 1/true", last.QoS, last.Retained)
	}

	var msg HealthMessage
	if err := json.Unmarshal(last.Payload, &msg); err != nil {
		t.Fatalf("unmarshal health: %v", err)
	}
	return msg
}

func TestHealthReporterStatus(t *testing.T) {
	simCodec := NewCodec(CodecConfig{Simulate: true})
	closedCodec := NewCodec(CodecConfig{Path: "/dev/null", Opener: openerFor(newFakePort(nil), new(int))})

	tests := []struct {
		name      string
		connected bool
		codec     StatsSource
		want      HealthStatus
	}{
		{"healthy", true, simCodec, HealthHealthy},
		{"mqtt down", false, simCodec, HealthDegraded},
		{"port closed", true, closedCodec, HealthDegraded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewMockMQTTClient()
			client.SetConnected(tt.connected)
			h := newTestHealthReporter(client, tt.codec)

			if err := h.PublishNow(); err != nil {
				t.Fatalf("PublishNow() error = %v", err)
			}
			msg := lastHealth(t, client)
			if msg.Status != tt.want {
				t.Errorf("Status = %q (%s), want %q", msg.Status, msg.Reason, tt.want)
			}
			if msg.Codec == nil || msg.Queue == nil {
				t.Error("health message missing codec or queue diagnostics")
			}
		})
	}
}

func TestHealthReporterLifecycle(t *testing.T) {
	client := NewMockMQTTClient()
	h := newTestHealthReporter(client, NewCodec(CodecConfig{Simulate: true}))

	if err := h.PublishStarting(); err != nil {
		t.Fatalf("PublishStarting() error = %v", err)
	}
	if msg := lastHealth(t, client); msg.Status != HealthStarting {
		t.Errorf("Status = %q, want starting", msg.Status)
	}

	h.Start(context.Background())
	waitFor(t, 2*time.Second, func() bool { return len(client.PublishedTo(HealthTopic())) >= 2 })

	h.Stop()
	h.Stop()
	if msg := lastHealth(t, client); msg.Status != HealthStopping {
		t.Errorf("Status = %q, want stopping", msg.Status)
	}
}

func TestHealthReporterLWT(t *testing.T) {
	h := newTestHealthReporter(NewMockMQTTClient(), nil)

	payload, err := h.LWTPayload()
	if err != nil {
		t.Fatalf("LWTPayload() error = %v", err)
	}
	var msg HealthMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("unmarshal LWT: %v", err)
	}
	if msg.Status != HealthOffline || msg.Bridge != "counter" {
		t.Errorf("LWT = %+v", msg)
	}
	if h.LWTTopic() != "graylogic/health/counter" {
		t.Errorf("LWTTopic() = %q", h.LWTTopic())
	}
}
