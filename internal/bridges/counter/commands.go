package counter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// commandTimeout bounds a command's wait in the queue plus its exchange.
const commandTimeout = 10 * time.Second

// MQTTClient is the MQTT surface the command handler needs.
// *mqtt.Client implements it.
type MQTTClient interface {
	Publisher

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error

	Unsubscribe(topic string) error
}

// CommandQueue is the access queue as seen by command handling.
type CommandQueue interface {
	SubmitQuery(ctx context.Context) (Reading, error)
	SubmitReset(ctx context.Context, scope ResetScope) error
}

// CommandHandlerOptions configures a CommandHandler.
type CommandHandlerOptions struct {
	MQTT  MQTTClient
	Queue CommandQueue

	// DeviceID is the only device this bridge accepts commands for.
	DeviceID string

	// Timeout per command. Default: 10s.
	Timeout time.Duration

	Logger Logger
}

// CommandHandler executes reset and read commands received over MQTT and
// acknowledges each one on the device's ack topic.
type CommandHandler struct {
	mqtt     MQTTClient
	queue    CommandQueue
	deviceID string
	timeout  time.Duration
	logger   Logger

	ctx       context.Context
	ctxCancel context.CancelFunc
	wg        sync.WaitGroup
	stopOnce  sync.Once
}

// NewCommandHandler creates a command handler. Call Start to subscribe.
func NewCommandHandler(opts CommandHandlerOptions) *CommandHandler {
	if opts.Timeout <= 0 {
		opts.Timeout = commandTimeout
	}
	if opts.Logger == nil {
		opts.Logger = nopLogger{}
	}
	return &CommandHandler{
		mqtt:     opts.MQTT,
		queue:    opts.Queue,
		deviceID: opts.DeviceID,
		timeout:  opts.Timeout,
		logger:   opts.Logger,
	}
}

// Start subscribes to the counter command topic. Commands run with a
// context derived from ctx, so cancelling it aborts queued commands.
func (h *CommandHandler) Start(ctx context.Context) error {
	h.ctx, h.ctxCancel = context.WithCancel(ctx)

	topic := CommandSubscribeTopic()
	if err := h.mqtt.Subscribe(topic, 1, h.handleMessage); err != nil {
		h.ctxCancel()
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	h.logger.Info("subscribed to counter commands", "topic", topic)
	return nil
}

// Stop unsubscribes, aborts pending commands and waits for them to
// acknowledge.
func (h *CommandHandler) Stop() {
	h.stopOnce.Do(func() {
		if h.ctxCancel == nil {
			return
		}
		if err := h.mqtt.Unsubscribe(CommandSubscribeTopic()); err != nil {
			h.logger.Debug("unsubscribe from commands failed", "error", err)
		}
		h.ctxCancel()
		h.wg.Wait()
	})
}

// handleMessage decodes a command and executes it off the MQTT callback
// goroutine, since queued commands can wait behind polls.
func (h *CommandHandler) handleMessage(topic string, payload []byte) {
	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		h.logger.Warn("failed to parse counter command", "topic", topic, "error", err)
		return
	}
	if cmd.DeviceID == "" {
		cmd.DeviceID = topic[strings.LastIndexByte(topic, '/')+1:]
	}
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}

	h.logger.Info("received counter command",
		"command_id", cmd.ID,
		"device_id", cmd.DeviceID,
		"command", cmd.Command,
	)

	if cmd.DeviceID != h.deviceID {
		h.publishAck(NewAckError(cmd, ErrCodeNotConfigured,
			fmt.Sprintf("device %s not configured", cmd.DeviceID)))
		return
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.publishAck(h.execute(cmd))
	}()
}

// execute runs one command and builds its acknowledgement.
func (h *CommandHandler) execute(cmd CommandMessage) AckMessage {
	ctx, cancel := context.WithTimeout(h.ctx, h.timeout)
	defer cancel()

	switch cmd.Command {
	case CommandReset:
		name := "all"
		if v, ok := cmd.Parameters["scope"]; ok {
			s, isString := v.(string)
			if !isString {
				return NewAckError(cmd, ErrCodeInvalidParameters, "scope must be a string")
			}
			name = s
		}
		scope, err := ParseResetScope(name)
		if err != nil {
			return NewAckError(cmd, ErrCodeInvalidParameters, err.Error())
		}
		if err := h.queue.SubmitReset(ctx, scope); err != nil {
			return h.failureAck(cmd, err)
		}
		h.logger.Info("counter reset", "device_id", cmd.DeviceID, "scope", scope.String(), "source", cmd.Source)
		return NewAckMessage(cmd, AckAccepted)

	case CommandRead:
		reading, err := h.queue.SubmitQuery(ctx)
		if err != nil {
			return h.failureAck(cmd, err)
		}
		ack := NewAckMessage(cmd, AckAccepted)
		ack.State = &reading
		return ack

	default:
		return NewAckError(cmd, ErrCodeInvalidCommand, fmt.Sprintf("unknown command: %s", cmd.Command))
	}
}

func (h *CommandHandler) failureAck(cmd CommandMessage, err error) AckMessage {
	h.logger.Warn("counter command failed",
		"command_id", cmd.ID,
		"command", cmd.Command,
		"kind", errorKind(err),
		"error", err,
	)
	return NewAckError(cmd, AckErrorCode(err), err.Error())
}

// AckErrorCode maps a transport or queue error to an acknowledgement code.
func AckErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ErrCodeTimeout
	case errors.Is(err, ErrMalformedFrame):
		return ErrCodeProtocolError
	case errors.Is(err, ErrTransportUnavailable),
		errors.Is(err, ErrWriteFailed),
		errors.Is(err, ErrTransport):
		return ErrCodeDeviceUnreachable
	case errors.Is(err, ErrInvalidScope):
		return ErrCodeInvalidParameters
	default:
		return ErrCodeBridgeError
	}
}

func (h *CommandHandler) publishAck(ack AckMessage) {
	payload, err := json.Marshal(ack)
	if err != nil {
		h.logger.Error("failed to marshal ack", "error", err)
		return
	}
	if err := h.mqtt.Publish(AckTopic(ack.DeviceID), payload, 1, false); err != nil {
		h.logger.Error("failed to publish ack", "command_id", ack.CommandID, "error", err)
	}
}
