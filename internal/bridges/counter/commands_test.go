package counter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"
)

const testDevice = "people-counter-01"

func startCommandHandler(t *testing.T, tr *mockTransport) (*MockMQTTClient, *CommandHandler) {
	t.Helper()
	client := NewMockMQTTClient()
	q := startQueue(t, tr)

	h := NewCommandHandler(CommandHandlerOptions{
		MQTT:     client,
		Queue:    q,
		DeviceID: testDevice,
		Timeout:  time.Second,
	})
	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(h.Stop)
	return client, h
}

func sendCommand(t *testing.T, client *MockMQTTClient, deviceID string, cmd CommandMessage) {
	t.Helper()
	payload, err := json.Marshal(cmd)
	if err != nil {
		t.Fatalf("marshal command: %v", err)
	}
	client.SimulateMessage(CommandTopic(deviceID), payload)
}

func waitForAck(t *testing.T, client *MockMQTTClient, deviceID string) AckMessage {
	t.Helper()
	topic := AckTopic(deviceID)
	waitFor(t, 2*time.Second, func() bool { return len(client.PublishedTo(topic)) > 0 })

	var ack AckMessage
	if err := json.Unmarshal(client.PublishedTo(topic)[0].Payload, &ack); err != nil {
		t.Fatalf("unmarshal ack: %v", err)
	}
	return ack
}

func TestCommandHandlerSubscribes(t *testing.T) {
	client, _ := startCommandHandler(t, &mockTransport{})

	client.mu.Lock()
	_, ok := client.handlers["graylogic/command/counter/#"]
	client.mu.Unlock()
	if !ok {
		t.Error("handler not subscribed to graylogic/command/counter/#")
	}
}

func TestCommandHandlerReset(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]any
		want   ResetScope
	}{
		{"default scope is all", nil, ResetAll},
		{"explicit all", map[string]any{"scope": "all"}, ResetAll},
		{"entries only", map[string]any{"scope": "entries"}, ResetEntries},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &mockTransport{}
			client, _ := startCommandHandler(t, tr)

			sendCommand(t, client, testDevice, CommandMessage{
				ID: "cmd-1", Command: CommandReset, Parameters: tt.params, Source: "api",
			})
			ack := waitForAck(t, client, testDevice)

			if ack.Status != AckAccepted || ack.CommandID != "cmd-1" || ack.DeviceID != testDevice {
				t.Errorf("ack = %+v", ack)
			}
			if got := tr.Resets(); len(got) != 1 || got[0] != tt.want {
				t.Errorf("resets = %v, want [%v]", got, tt.want)
			}
		})
	}
}

func TestCommandHandlerRead(t *testing.T) {
	tr := &mockTransport{}
	tr.reading.Entries = 42
	client, _ := startCommandHandler(t, tr)

	sendCommand(t, client, testDevice, CommandMessage{ID: "cmd-2", Command: CommandRead})
	ack := waitForAck(t, client, testDevice)

	if ack.Status != AckAccepted || ack.State == nil || ack.State.Entries != 42 {
		t.Errorf("ack = %+v", ack)
	}
}

func TestCommandHandlerFailures(t *testing.T) {
	tests := []struct {
		name       string
		transport  *mockTransport
		cmd        CommandMessage
		wantStatus AckStatus
		wantCode   string
	}{
		{
			name:       "unknown command",
			transport:  &mockTransport{},
			cmd:        CommandMessage{ID: "c", Command: "explode"},
			wantStatus: AckFailed,
			wantCode:   ErrCodeInvalidCommand,
		},
		{
			name:       "invalid scope",
			transport:  &mockTransport{},
			cmd:        CommandMessage{ID: "c", Command: CommandReset, Parameters: map[string]any{"scope": "everything"}},
			wantStatus: AckFailed,
			wantCode:   ErrCodeInvalidParameters,
		},
		{
			name:       "non-string scope",
			transport:  &mockTransport{},
			cmd:        CommandMessage{ID: "c", Command: CommandReset, Parameters: map[string]any{"scope": 3}},
			wantStatus: AckFailed,
			wantCode:   ErrCodeInvalidParameters,
		},
		{
			name:       "device timeout",
			transport:  &mockTransport{queryErr: fmt.Errorf("%w after 1s", ErrTimeout)},
			cmd:        CommandMessage{ID: "c", Command: CommandRead},
			wantStatus: AckTimeout,
			wantCode:   ErrCodeTimeout,
		},
		{
			name:       "write failure",
			transport:  &mockTransport{resetErr: ErrWriteFailed},
			cmd:        CommandMessage{ID: "c", Command: CommandReset},
			wantStatus: AckFailed,
			wantCode:   ErrCodeDeviceUnreachable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := startCommandHandler(t, tt.transport)

			sendCommand(t, client, testDevice, tt.cmd)
			ack := waitForAck(t, client, testDevice)

			if ack.Status != tt.wantStatus {
				t.Errorf("Status = %q, want %q", ack.Status, tt.wantStatus)
			}
			if ack.Error == nil || ack.Error.Code != tt.wantCode {
				t.Errorf("Error = %+v, want code %s", ack.Error, tt.wantCode)
			}
		})
	}
}

func TestCommandHandlerUnknownDevice(t *testing.T) {
	tr := &mockTransport{}
	client, _ := startCommandHandler(t, tr)

	sendCommand(t, client, "other-counter", CommandMessage{ID: "c", Command: CommandReset})
	ack := waitForAck(t, client, "other-counter")

	if ack.Error == nil || ack.Error.Code != ErrCodeNotConfigured {
		t.Errorf("ack = %+v, want NOT_CONFIGURED", ack)
	}
	if len(tr.Resets()) != 0 {
		t.Error("reset sent for an unknown device")
	}
}

func TestCommandHandlerIgnoresBadJSON(t *testing.T) {
	client, _ := startCommandHandler(t, &mockTransport{})

	client.SimulateMessage(CommandTopic(testDevice), []byte("{not json"))
	time.Sleep(20 * time.Millisecond)

	if got := len(client.GetPublished()); got != 0 {
		t.Errorf("published = %d, want 0", got)
	}
}

func TestAckErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrTimeout, ErrCodeTimeout},
		{context.DeadlineExceeded, ErrCodeTimeout},
		{ErrMalformedFrame, ErrCodeProtocolError},
		{ErrTransportUnavailable, ErrCodeDeviceUnreachable},
		{ErrWriteFailed, ErrCodeDeviceUnreachable},
		{ErrTransport, ErrCodeDeviceUnreachable},
		{ErrInvalidScope, ErrCodeInvalidParameters},
		{ErrQueueClosed, ErrCodeBridgeError},
		{errors.New("boom"), ErrCodeBridgeError},
	}

	for _, tt := range tests {
		if got := AckErrorCode(tt.err); got != tt.want {
			t.Errorf("AckErrorCode(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestCommandHandlerStopUnsubscribes(t *testing.T) {
	client, h := startCommandHandler(t, &mockTransport{})

	h.Stop()

	client.mu.Lock()
	n := len(client.handlers)
	client.mu.Unlock()
	if n != 0 {
		t.Errorf("handlers after Stop = %d, want 0", n)
	}
}

func TestCommandHandlerAssignsMissingID(t *testing.T) {
	client, _ := startCommandHandler(t, &mockTransport{})

	sendCommand(t, client, testDevice, CommandMessage{Command: CommandRead})
	ack := waitForAck(t, client, testDevice)

	if ack.CommandID == "" {
		t.Error("CommandID is empty, want generated id")
	}
}
