package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	backend "github.com/redis/go-redis/v9"
	"i4.energy/across/cidmodem/modem"
)

// DefaultChannel is the pub/sub channel events are published on.
const DefaultChannel = "cidmodem:calls"

// Publisher publishes caller ID events on a Redis pub/sub channel.
//
// Handle only enqueues; Run does the network I/O. When the queue is full
// new events are dropped rather than stalling the modem.
type Publisher struct {
	client  *backend.Client
	channel string
	logger  *slog.Logger
	timeout time.Duration
	queue   chan Event
	now     func() time.Time
}

type Option func(*Publisher)

// WithChannel sets the pub/sub channel.
func WithChannel(channel string) Option {
	return func(p *Publisher) {
		p.channel = channel
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithQueueSize bounds how many events may wait for Run.
func WithQueueSize(n int) Option {
	return func(p *Publisher) {
		p.queue = make(chan Event, n)
	}
}

// WithPublishTimeout bounds a single PUBLISH.
func WithPublishTimeout(d time.Duration) Option {
	return func(p *Publisher) {
		p.timeout = d
	}
}

// NewPublisher creates a publisher over an existing client.
func NewPublisher(client *backend.Client, opts ...Option) *Publisher {
	p := &Publisher{
		client:  client,
		channel: DefaultChannel,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		timeout: 5 * time.Second,
		queue:   make(chan Event, 100),
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Handle queues cid for publishing. It has the modem.Handler signature.
func (p *Publisher) Handle(cid modem.CallerID) {
	ev := NewEvent(cid, p.now())
	select {
	case p.queue <- ev:
	default:
		p.logger.Warn("publish queue full, caller ID dropped", "id", ev.ID, "number", ev.Number)
	}
}

// Run publishes queued events until ctx is cancelled. Publish failures are
// logged and the event is dropped.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-p.queue:
			if err := p.publish(ctx, ev); err != nil {
				p.logger.Error("could not publish caller ID", "id", ev.ID, "error", err)
				continue
			}
			p.logger.Debug("published caller ID", "id", ev.ID, "channel", p.channel)
		}
	}
}

func (p *Publisher) publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", p.channel, err)
	}
	return nil
}
