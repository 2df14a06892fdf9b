// Package mqttcmd accepts brightness commands over MQTT.
//
// A message on backlightd/command/<device> with the payload
//
//	{"brightness": 60}
//
// becomes a setbrightness call submitted to the request loop with caller
// "mqtt", so it is serialised with bus calls. Failures are published as
// {"kind": ..., "message": ...} on backlightd/error/<device>. The topic
// backlightd/command/ (no device) selects the first backlight.
package mqttcmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/nerrad567/gray-logic-backlightd/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-backlightd/internal/service"
)

// Caller is the caller name recorded for MQTT commands.
const Caller = "mqtt"

// ErrBadPayload is returned for a command payload that is not
// {"brightness": <int>}.
var ErrBadPayload = errors.New("mqttcmd: bad command payload")

// Client is the part of *mqtt.Client the bridge needs.
type Client interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	PublishJSON(topic string, v any, retained bool) error
	Topics() mqtt.Topics
}

// Submitter queues a call and waits for its reply.
type Submitter interface {
	Submit(ctx context.Context, call *service.Call) (any, error)
}

// Logger defines the logging interface used by the Bridge.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Command is the payload of a command message.
type Command struct {
	Brightness *int64 `json:"brightness"`
}

// ErrorMessage is the payload published on the error topic.
type ErrorMessage struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	CallID  string `json:"call_id,omitempty"`
}

// Bridge subscribes to command topics and drives the request loop.
type Bridge struct {
	client Client
	loop   Submitter
	qos    byte
	logger Logger

	mu     sync.Mutex
	ctx    context.Context
	topic  string
	active bool

	publishing sync.WaitGroup
}

// New creates a Bridge. qos is the subscription QoS.
func New(client Client, loop Submitter, qos byte) *Bridge {
	return &Bridge{
		client: client,
		loop:   loop,
		qos:    qos,
		logger: noopLogger{},
		ctx:    context.Background(),
	}
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.logger = logger
}

// Start subscribes to every device command topic. Calls submitted by the
// bridge are abandoned when ctx is cancelled.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active {
		return nil
	}

	topic := b.client.Topics().AllCommands()
	b.ctx = ctx
	if err := b.client.Subscribe(topic, b.qos, b.Handle); err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	b.topic = topic
	b.active = true
	b.logger.Info("mqtt command bridge started", "topic", topic)
	return nil
}

// Stop unsubscribes and waits for error reports still being published.
// It is safe to call more than once.
func (b *Bridge) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.active {
		return nil
	}
	b.active = false
	err := b.client.Unsubscribe(b.topic)
	b.publishing.Wait()
	if err != nil {
		return fmt.Errorf("unsubscribing from %s: %w", b.topic, err)
	}
	return nil
}

func (b *Bridge) callContext() context.Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ctx
}

// Handle processes one command message. It is the subscription handler, so
// it runs on the MQTT client's router goroutine: commands are submitted in
// the order they arrived, and error reports are published in the
// background so Handle never waits for a broker ack.
func (b *Bridge) Handle(topic string, payload []byte) error {
	device, ok := b.client.Topics().CommandDevice(topic)
	if !ok {
		return fmt.Errorf("unexpected topic %q", topic)
	}

	value, err := parseCommand(payload)
	if err != nil {
		b.publishError(device, "", &service.Error{Kind: service.KindInvalidArgument, Message: err.Error(), Err: err})
		return err
	}

	call := service.NewCall(service.MethodSetBrightness, Caller, device, value)
	if _, err := b.loop.Submit(b.callContext(), call); err != nil {
		b.publishError(device, call.ID, err)
		return fmt.Errorf("setbrightness %q: %w", device, err)
	}
	return nil
}

func (b *Bridge) publishError(device, callID string, err error) {
	e := service.Classify(err)
	msg := ErrorMessage{Kind: e.Kind.String(), Message: e.Error(), CallID: callID}
	topic := b.client.Topics().Error(device)

	// Under mu so Add never races the Wait in Stop.
	b.mu.Lock()
	b.publishing.Add(1)
	b.mu.Unlock()
	go func() {
		defer b.publishing.Done()
		if pubErr := b.client.PublishJSON(topic, msg, false); pubErr != nil {
			b.logger.Warn("publishing command error failed", "device", device, "error", pubErr)
		}
	}()
}

// parseCommand decodes {"brightness": N} into an int32 argument.
func parseCommand(payload []byte) (int32, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()

	var cmd Command
	if err := dec.Decode(&cmd); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrBadPayload, err)
	}
	if cmd.Brightness == nil {
		return 0, fmt.Errorf("%w: missing brightness", ErrBadPayload)
	}
	v := *cmd.Brightness
	if v < math.MinInt32 || v > math.MaxInt32 {
		return 0, fmt.Errorf("%w: brightness %d out of range", ErrBadPayload, v)
	}
	return int32(v), nil
}
