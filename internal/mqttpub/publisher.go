// Package mqttpub publishes motion snapshots to an MQTT broker.
package mqttpub

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"motionhub/internal/motion"
)

// client is the part of mqtt.Client the publisher uses.
type client interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

type Options struct {
	Broker   string
	ClientID string
	Topic    string
	QoS      byte
	Retain   bool
	// Interval is the minimum spacing between published snapshots.
	Interval time.Duration
}

const publishTimeout = 2 * time.Second

// Publisher queues snapshots from the refresh goroutine and publishes them
// from its own goroutine, so a slow broker never stalls refresh.
type Publisher struct {
	c    client
	opts Options
	now  func() time.Time

	queue chan motion.Snapshot

	mu         sync.Mutex
	lastQueued time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

// Connect dials the broker and returns a publisher for opts.Topic.
func Connect(opts Options) (*Publisher, error) {
	co := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second)
	c := mqtt.NewClient(co)
	tok := c.Connect()
	if !tok.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqttpub: connect %s: timed out", opts.Broker)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("mqttpub: connect %s: %w", opts.Broker, err)
	}
	log.Printf("mqttpub: connected to %s, publishing %s", opts.Broker, opts.Topic)
	return newPublisher(c, opts), nil
}

func newPublisher(c client, opts Options) *Publisher {
	return &Publisher{
		c:      c,
		opts:   opts,
		now:    time.Now,
		queue:  make(chan motion.Snapshot, 1),
		stopCh: make(chan struct{}),
	}
}

// Publish queues snap if the previous one is at least an interval old.
// It never blocks.
func (p *Publisher) Publish(snap motion.Snapshot) {
	if p == nil {
		return
	}
	now := p.now()
	p.mu.Lock()
	if p.opts.Interval > 0 && !p.lastQueued.IsZero() && now.Sub(p.lastQueued) < p.opts.Interval {
		p.mu.Unlock()
		return
	}
	p.lastQueued = now
	p.mu.Unlock()

	select {
	case p.queue <- snap:
	default:
	}
}

// Run publishes queued snapshots until ctx is done or Close is called,
// then disconnects.
func (p *Publisher) Run(ctx context.Context) {
	if p == nil {
		return
	}
	defer p.c.Disconnect(250)
	var failing bool
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case snap := <-p.queue:
			err := p.send(snap)
			if err != nil && !failing {
				log.Printf("mqttpub: publish %s: %v", p.opts.Topic, err)
			}
			failing = err != nil
		}
	}
}

func (p *Publisher) send(snap motion.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	tok := p.c.Publish(p.opts.Topic, p.opts.QoS, p.opts.Retain, payload)
	if !tok.WaitTimeout(publishTimeout) {
		return fmt.Errorf("timed out")
	}
	return tok.Error()
}

func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.stopOnce.Do(func() { close(p.stopCh) })
}
