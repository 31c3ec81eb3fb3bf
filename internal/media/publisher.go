package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-media/internal/infrastructure/mqtt"
)

const protocolECP = "ecp"

// MQTTPublisher is the part of the MQTT client the bridge publishes with.
type MQTTPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// MQTTSubscriber is the part of the MQTT client commands arrive through.
type MQTTSubscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Publisher sends capability events, discovery announcements and command
// acknowledgements to MQTT.
type Publisher struct {
	client MQTTPublisher
	qos    byte
	topics mqtt.Topics

	logger   Logger
	loggerMu sync.RWMutex
}

// NewPublisher creates a publisher.
func NewPublisher(client MQTTPublisher, qos byte) *Publisher {
	return &Publisher{client: client, qos: qos, logger: noopLogger{}}
}

// SetLogger sets the logger.
func (p *Publisher) SetLogger(logger Logger) {
	p.loggerMu.Lock()
	p.logger = logger
	p.loggerMu.Unlock()
}

func (p *Publisher) log() Logger {
	p.loggerMu.RLock()
	defer p.loggerMu.RUnlock()
	return p.logger
}

// Emit publishes the event on its state topic. Key presses are transient
// and are not retained.
func (p *Publisher) Emit(e Event) {
	msg := StateMessage{
		DeviceID:  e.DeviceID,
		Event:     e.Name,
		Value:     e.Value,
		Timestamp: e.Timestamp.UTC(),
		Protocol:  protocolECP,
	}
	retained := e.Name != EventKeyPressed
	if err := p.publishJSON(p.topics.State(e.DeviceID, string(e.Name)), msg, retained); err != nil {
		p.log().Warn("publishing state failed", "device_id", e.DeviceID, "event", string(e.Name), "error", err)
	}
}

// Announce publishes a discovery message for a new device.
func (p *Publisher) Announce(rec Record) {
	msg := DiscoveryMessage{
		DeviceID:  rec.ID,
		Class:     rec.Class,
		Name:      rec.Name,
		Model:     rec.Model,
		Host:      rec.Location.Host,
		Port:      rec.Location.Port,
		Timestamp: time.Now().UTC(),
		Protocol:  protocolECP,
	}
	if err := p.publishJSON(p.topics.Discovery(), msg, false); err != nil {
		p.log().Warn("publishing discovery failed", "device_id", rec.ID, "error", err)
	}
}

// PublishAck publishes a command acknowledgement.
func (p *Publisher) PublishAck(ack AckMessage) error {
	return p.publishJSON(p.topics.Ack(ack.DeviceID), ack, false)
}

func (p *Publisher) publishJSON(topic string, v any, retained bool) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("mqtt not connected")
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshalling message: %w", err)
	}
	return p.client.Publish(topic, payload, p.qos, retained)
}

// Executor runs commands. *Engine implements it.
type Executor interface {
	Execute(ctx context.Context, id string, cmd Command) error
}

// CommandHandler turns MQTT command messages into engine commands and
// acknowledges each one.
type CommandHandler struct {
	executor  Executor
	publisher *Publisher
	topics    mqtt.Topics
	timeout   time.Duration
	now       func() time.Time
	logger    Logger
}

// NewCommandHandler creates a handler. timeout bounds each command.
func NewCommandHandler(executor Executor, publisher *Publisher, timeout time.Duration, logger Logger) *CommandHandler {
	if logger == nil {
		logger = noopLogger{}
	}
	return &CommandHandler{
		executor:  executor,
		publisher: publisher,
		timeout:   timeout,
		now:       time.Now,
		logger:    logger,
	}
}

// Subscribe registers the handler for every device's command topic.
func (h *CommandHandler) Subscribe(sub MQTTSubscriber, qos byte) error {
	if err := sub.Subscribe(h.topics.AllCommands(), qos, h.HandleMessage); err != nil {
		return fmt.Errorf("subscribing to commands: %w", err)
	}
	return nil
}

// HandleMessage processes one command message and publishes its ack.
func (h *CommandHandler) HandleMessage(topic string, payload []byte) error {
	deviceID := h.topics.DeviceIDFromCommandTopic(topic)
	if deviceID == "" {
		return fmt.Errorf("unexpected command topic %q", topic)
	}

	var msg CommandMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		h.logger.Warn("malformed command message", "topic", topic, "error", err)
		return h.ack(AckMessage{
			DeviceID: deviceID,
			Status:   AckRejected,
			Error:    &AckError{Code: ErrCodeInvalidCommand, Message: "malformed JSON"},
		})
	}

	ack := AckMessage{CommandID: msg.ID, DeviceID: deviceID, Command: msg.Command}
	cmd, err := ParseCommand(msg.Command, msg.Parameters)
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		err = h.executor.Execute(ctx, deviceID, cmd)
		cancel()
	}

	if err != nil {
		ack.Status, ack.Error = AckFor(err)
		h.logger.Info("command not accepted", "device_id", deviceID, "command", msg.Command, "error", err)
	} else {
		ack.Status = AckAccepted
	}
	return h.ack(ack)
}

func (h *CommandHandler) ack(ack AckMessage) error {
	ack.Timestamp = h.now().UTC()
	ack.Protocol = protocolECP
	if h.publisher == nil {
		return nil
	}
	return h.publisher.PublishAck(ack)
}

// AckFor maps an Execute error to an acknowledgement status and code.
func AckFor(err error) (AckStatus, *AckError) {
	code := ErrCodeDeviceUnreachable
	status := AckRejected
	switch {
	case errors.Is(err, ErrDeviceNotFound):
		code = ErrCodeDeviceNotFound
	case errors.Is(err, ErrDeviceOffline):
		code = ErrCodeDeviceOffline
	case errors.Is(err, ErrUnsupportedCommand):
		code = ErrCodeUnsupportedCommand
	case errors.Is(err, ErrUnknownPreset):
		code = ErrCodeUnknownPreset
	case errors.Is(err, ErrInvalidCommand):
		code = ErrCodeInvalidCommand
	default:
		status = AckFailed
	}
	return status, &AckError{Code: code, Message: err.Error()}
}
