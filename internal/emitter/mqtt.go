// Package emitter publishes dispatched events to an MQTT broker.
package emitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/1ureka/soundsight/internal/dispatch"
	"github.com/1ureka/soundsight/internal/util"
)

const (
	publishTimeout        = 2 * time.Second
	defaultConnectTimeout = 5 * time.Second
)

// Config selects the broker and topic prefix.
type Config struct {
	Broker   string // host:port
	Topic    string // prefix, e.g. "soundsight/quest"
	ClientID string
	QoS      byte

	ConnectTimeout time.Duration // 0 selects 5s
}

// Event is the JSON payload of every publication.
type Event struct {
	Type      string `json:"type"`
	Direction string `json:"direction,omitempty"`
	Code      int    `json:"code,omitempty"`
	Text      string `json:"text,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// publisher is the subset of mqtt.Client the emitter uses.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTEmitter publishes direction, caption and link status events. Publish
// calls never wait for the broker, so it is safe on the dispatch goroutine.
type MQTTEmitter struct {
	cfg    Config
	client mqtt.Client
	pub    publisher

	mu        sync.RWMutex
	published map[string]uint64 // count per topic
	errors    uint64
}

func NewMQTTEmitter(cfg Config) *MQTTEmitter {
	if cfg.ClientID == "" {
		cfg.ClientID = "soundsight-" + uuid.NewString()
	}
	if cfg.Topic == "" {
		cfg.Topic = "soundsight"
	}
	return &MQTTEmitter{
		cfg:       cfg,
		published: make(map[string]uint64),
	}
}

// ErrConnectTimeout is returned by Connect when the broker did not accept
// the connection in time. The client keeps retrying in the background and
// events are published once it connects.
var ErrConnectTimeout = errors.New("mqtt connection timeout")

// Connect establishes the broker connection. Paho reconnects on its own
// afterwards. On ErrConnectTimeout or ctx cancellation the client is kept
// and retries in the background until Disconnect.
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", e.cfg.Broker))
	opts.SetClientID(e.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		util.LogInfo("mqtt connected to %s as %s", e.cfg.Broker, e.cfg.ClientID)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		util.LogWarning("mqtt connection lost, will auto-reconnect: %v", err)
	}

	client := mqtt.NewClient(opts)
	e.client = client
	e.pub = client

	token := client.Connect()

	timeout := e.cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
	case <-timer.C:
		return fmt.Errorf("%w after %s (broker %s)", ErrConnectTimeout, timeout, e.cfg.Broker)
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}
	return nil
}

// Disconnect stops the client, including a connect still being retried.
func (e *MQTTEmitter) Disconnect() {
	if e.client == nil {
		return
	}
	e.client.Disconnect(250) // 250ms grace period
	util.LogInfo("mqtt disconnected")
}

// Stats returns per-topic publication counts and the error count.
func (e *MQTTEmitter) Stats() (map[string]uint64, uint64) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	published := make(map[string]uint64, len(e.published))
	for k, v := range e.published {
		published[k] = v
	}
	return published, e.errors
}

func (e *MQTTEmitter) OnDirectionChanged(d dispatch.Direction) {
	e.publish("direction", Event{Type: "direction", Direction: d.String(), Code: int(d)})
}

func (e *MQTTEmitter) OnCaption(text string) {
	e.publish("caption", Event{Type: "caption", Text: text})
}

func (e *MQTTEmitter) OnConnected() {
	e.publish("status", Event{Type: "connected"})
}

func (e *MQTTEmitter) OnError(reason string) {
	e.publish("status", Event{Type: "error", Reason: reason})
}

func (e *MQTTEmitter) OnConnectionClosed() {
	e.publish("status", Event{Type: "closed"})
}

func (e *MQTTEmitter) publish(kind string, ev Event) {
	if e.pub == nil {
		return
	}
	ev.Timestamp = time.Now().UnixMilli()
	payload, err := json.Marshal(ev)
	if err != nil {
		e.countError()
		return
	}

	topic := fmt.Sprintf("%s/%s", e.cfg.Topic, kind)
	token := e.pub.Publish(topic, e.cfg.QoS, false, payload)

	go func() {
		if !token.WaitTimeout(publishTimeout) {
			e.countError()
			util.LogWarning("mqtt publish to %s timed out", topic)
			return
		}
		if err := token.Error(); err != nil {
			e.countError()
			util.LogWarning("mqtt publish to %s failed: %v", topic, err)
			return
		}
		e.mu.Lock()
		e.published[topic]++
		e.mu.Unlock()
	}()
}

func (e *MQTTEmitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}
