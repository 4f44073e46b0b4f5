package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/nugget/loanagent/internal/agent"
	"github.com/nugget/loanagent/internal/config"
)

const (
	statsInterval  = time.Minute
	queueSize      = 256
	connectTimeout = 30 * time.Second
)

// publisher is the part of the autopaho connection manager used to send
// messages.
type publisher interface {
	Publish(ctx context.Context, p *paho.Publish) (*paho.PublishResponse, error)
}

type message struct {
	topic   string
	payload []byte
	qos     byte
	retain  bool
}

// RunMessage is the payload published for each finished run.
type RunMessage struct {
	RequestID    string   `json:"request_id"`
	UserID       string   `json:"user_id"`
	Model        string   `json:"model"`
	Turns        int      `json:"turns"`
	Tools        []string `json:"tools"`
	InputTokens  int      `json:"input_tokens"`
	OutputTokens int      `json:"output_tokens"`
	ElapsedMS    int64    `json:"elapsed_ms"`
	OK           bool     `json:"ok"`
	Category     string   `json:"category,omitempty"`
}

// ToolMessage is the payload published for each tool call.
type ToolMessage struct {
	RequestID  string `json:"request_id"`
	Turn       int    `json:"turn"`
	Tool       string `json:"tool"`
	OK         bool   `json:"ok"`
	Category   string `json:"category,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// Publisher is an agent.Observer that forwards run telemetry to an MQTT
// broker. Observer callbacks only enqueue; Start does the publishing.
type Publisher struct {
	agent.NopObserver

	cfg      config.MQTTConfig
	clientID string
	stats    *DailyStats
	queue    chan message
	logger   *slog.Logger
	dropped  atomic.Int64
	cm       *autopaho.ConnectionManager
	known    map[string]bool // registered tool names; nil accepts any valid segment
}

var _ agent.Observer = (*Publisher)(nil)

// New creates a Publisher but does not connect.
func New(cfg config.MQTTConfig, clientID string, stats *DailyStats, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	if stats == nil {
		stats = NewDailyStats(nil)
	}
	return &Publisher{
		cfg:      cfg,
		clientID: clientID,
		stats:    stats,
		queue:    make(chan message, queueSize),
		logger:   logger.With("component", "mqtt"),
	}
}

// Dropped returns the number of messages discarded because the queue
// was full.
func (p *Publisher) Dropped() int64 { return p.dropped.Load() }

func (p *Publisher) availabilityTopic() string { return p.cfg.TopicPrefix + "/availability" }
func (p *Publisher) runTopic() string          { return p.cfg.TopicPrefix + "/runs" }
func (p *Publisher) statsTopic() string        { return p.cfg.TopicPrefix + "/stats" }

// unknownTool is the topic segment used for tool names that are not
// registered or cannot appear in a topic.
const unknownTool = "unknown"

// SetKnownTools limits per-tool topics to the given names. Call before
// the first run.
func (p *Publisher) SetKnownTools(names []string) {
	p.known = make(map[string]bool, len(names))
	for _, n := range names {
		p.known[n] = true
	}
}

func (p *Publisher) toolTopic(tool string) string {
	return p.cfg.TopicPrefix + "/tools/" + p.toolSegment(tool)
}

// toolSegment returns tool when it is safe as a single topic level.
func (p *Publisher) toolSegment(tool string) string {
	if tool == "" || strings.ContainsAny(tool, "/+#\x00") {
		return unknownTool
	}
	if p.known != nil && !p.known[tool] {
		return unknownTool
	}
	return tool
}

func (p *Publisher) enqueue(topic string, v any, qos byte, retain bool) {
	payload, err := json.Marshal(v)
	if err != nil {
		p.logger.Error("mqtt marshal payload", "topic", topic, "error", err)
		return
	}
	select {
	case p.queue <- message{topic: topic, payload: payload, qos: qos, retain: retain}:
	default:
		p.dropped.Add(1)
	}
}

// ToolDispatched implements agent.Observer.
func (p *Publisher) ToolDispatched(_ context.Context, e agent.ToolEvent) {
	p.enqueue(p.toolTopic(e.Tool), ToolMessage{
		RequestID:  e.RequestID,
		Turn:       e.Turn,
		Tool:       e.Tool,
		OK:         !e.IsError,
		Category:   string(e.Category),
		DurationMS: e.Duration.Milliseconds(),
	}, 0, false)
}

// RunFinished implements agent.Observer.
func (p *Publisher) RunFinished(_ context.Context, e agent.RunEvent) {
	failed := e.Category != ""
	p.stats.AddRun(e.InputTokens, e.OutputTokens, failed)
	p.enqueue(p.runTopic(), RunMessage{
		RequestID:    e.RequestID,
		UserID:       e.UserID,
		Model:        e.Model,
		Turns:        e.Turns,
		Tools:        e.Tools,
		InputTokens:  e.InputTokens,
		OutputTokens: e.OutputTokens,
		ElapsedMS:    e.Elapsed.Milliseconds(),
		OK:           !failed,
		Category:     string(e.Category),
	}, 1, false)
}

// Start connects and publishes queued messages until ctx is canceled,
// then marks the instance offline and disconnects.
func (p *Publisher) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(p.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: p.cfg.Username,
		ConnectPassword: []byte(p.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   p.availabilityTopic(),
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			p.logger.Info("mqtt connected to broker", "broker", p.cfg.Broker)
			p.publishAvailability(ctx, cm, "online")
		},
		OnConnectError: func(err error) {
			p.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{ClientID: p.clientID},
	}
	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	p.cm = cm

	connCtx, connCancel := context.WithTimeout(ctx, connectTimeout)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		// autopaho keeps retrying in the background.
		p.logger.Warn("mqtt initial connection timed out, will retry in background", "error", err)
	}

	p.drain(ctx, cm)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	p.publishAvailability(stopCtx, cm, "offline")
	if err := cm.Disconnect(stopCtx); err != nil {
		p.logger.Debug("mqtt disconnect", "error", err)
	}
	return nil
}

// drain publishes queued messages and the periodic stats until ctx is
// done.
func (p *Publisher) drain(ctx context.Context, pub publisher) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	p.publishStats(ctx, pub)
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-p.queue:
			p.send(ctx, pub, m)
		case <-ticker.C:
			p.publishStats(ctx, pub)
		}
	}
}

func (p *Publisher) send(ctx context.Context, pub publisher, m message) {
	if _, err := pub.Publish(ctx, &paho.Publish{
		Topic:   m.topic,
		Payload: m.payload,
		QoS:     m.qos,
		Retain:  m.retain,
	}); err != nil {
		p.logger.Debug("mqtt publish failed", "topic", m.topic, "error", err)
	}
}

func (p *Publisher) publishStats(ctx context.Context, pub publisher) {
	payload, err := json.Marshal(p.stats.Snapshot())
	if err != nil {
		return
	}
	p.send(ctx, pub, message{topic: p.statsTopic(), payload: payload, retain: true})
}

func (p *Publisher) publishAvailability(ctx context.Context, pub publisher, status string) {
	if _, err := pub.Publish(ctx, &paho.Publish{
		Topic:   p.availabilityTopic(),
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		p.logger.Warn("mqtt availability publish failed", "status", status, "error", err)
		return
	}
	p.logger.Info("mqtt availability published", "status", status)
}
