package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/python-kurs/exercise-4-l3enR/internal/config"
	"github.com/python-kurs/exercise-4-l3enR/internal/modules/climate/types"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	topicSuffix    = "climate-diagram"
	publishQoS     = byte(1)
	publishTimeout = 5 * time.Second
)

// Publisher announces rendered diagrams on the broker.
type Publisher struct {
	client    mqtt.Client
	cfg       config.Config
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

// DiagramEvent is the retained message published per rendered diagram.
type DiagramEvent struct {
	RunID      string       `json:"run_id"`
	Station    string       `json:"station"`
	Year       int          `json:"year"`
	Path       string       `json:"path"`
	Thumbnail  string       `json:"thumbnail,omitempty"`
	Months     []MonthPoint `json:"months"`
	RenderedAt time.Time    `json:"rendered_at"`
}

type MonthPoint struct {
	Month         string   `json:"month"`
	Temperature   *float64 `json:"temperature_c"`
	Precipitation float64  `json:"precipitation_mm"`
}

// MonthPoints converts aggregates to event points keyed by "YYYY-MM".
func MonthPoints(months []types.MonthlyAggregate) []MonthPoint {
	out := make([]MonthPoint, 0, len(months))
	for _, m := range months {
		out = append(out, MonthPoint{
			Month:         m.Month.Format("2006-01"),
			Temperature:   m.Temperature,
			Precipitation: m.Precipitation,
		})
	}
	return out
}

func NewPublisher(cfg config.Config, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTTBroker, cfg.MQTTPort))
	opts.SetClientID(cfg.MQTTClientID)
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		p.setConnected(true)
		logger.Info("mqtt connected", "broker", cfg.MQTTBroker, "port", cfg.MQTTPort)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		p.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	p.client = mqtt.NewClient(opts)
	return p
}

// Connect waits for the initial broker connection. It gives up when ctx is
// done or the publisher was disconnected.
func (p *Publisher) Connect(ctx context.Context) error {
	select {
	case <-p.stopCh:
		return fmt.Errorf("publisher stopped")
	default:
	}

	if p.IsConnected() {
		return nil
	}

	token := p.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			// OnConnectHandler sets connected=true.
			return nil
		}

		select {
		case <-ctx.Done():
			// Stops the background retry loop.
			p.client.Disconnect(0)
			return ctx.Err()
		case <-p.stopCh:
			p.client.Disconnect(0)
			return fmt.Errorf("publisher stopped")
		default:
		}
	}
}

// PublishDiagram publishes evt, retained, to the station's diagram topic.
func (p *Publisher) PublishDiagram(evt DiagramEvent) error {
	if !p.IsConnected() {
		return fmt.Errorf("mqtt client not connected")
	}

	topic := Topic(p.cfg.MQTTTopicPrefix, evt.Station)
	if evt.RenderedAt.IsZero() {
		evt.RenderedAt = time.Now().UTC()
	}
	if evt.Months == nil {
		evt.Months = []MonthPoint{}
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal diagram event: %w", err)
	}

	token := p.client.Publish(topic, publishQoS, true, data)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if token.Error() != nil {
		p.logger.Error("failed to publish diagram event", "topic", topic, "error", token.Error())
		return fmt.Errorf("publish diagram event: %w", token.Error())
	}

	p.logger.Debug("published diagram event",
		"topic", topic,
		"station", evt.Station,
		"run_id", evt.RunID,
	)
	return nil
}

// IsConnected returns whether the client is connected.
func (p *Publisher) IsConnected() bool {
	p.mu.RLock()
	connected := p.connected
	p.mu.RUnlock()
	return connected && p.client.IsConnected()
}

// Disconnect stops the publisher and closes the connection. Safe to call
// more than once; Connect fails afterwards.
func (p *Publisher) Disconnect() {
	p.stopOnce.Do(func() { close(p.stopCh) })

	if p.client != nil {
		p.client.Disconnect(250)
	}

	p.setConnected(false)
	p.logger.Info("mqtt disconnected")
}

func (p *Publisher) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}

// Topic returns <prefix>/<station-slug>/climate-diagram.
func Topic(prefix, station string) string {
	parts := make([]string, 0, 3)
	if prefix = strings.Trim(prefix, "/"); prefix != "" {
		parts = append(parts, prefix)
	}
	parts = append(parts, Slug(station), topicSuffix)
	return strings.Join(parts, "/")
}

// Slug lowercases s and collapses every run of characters other than
// letters and digits into a single '-'. MQTT wildcards and separators never
// survive.
func Slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
			continue
		}
		dash = true
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}
