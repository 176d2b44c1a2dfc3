// Package publisher emits audit events to a store, optionally asynchronously
// and optionally mirrored to a broker sink for downstream consumers.
package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	id "cadastra/pkg/domain"
	audit "cadastra/pkg/platform/audit"
)

// ErrBufferFull is returned in async mode when the inbox is saturated.
// Audit emission never blocks domain operations.
var ErrBufferFull = errors.New("audit buffer full")

// Sink mirrors events to a secondary destination, e.g. a Kafka topic.
// Mirror failures are logged and do not fail Emit.
type Sink interface {
	Append(ctx context.Context, event audit.Event) error
}

type Publisher struct {
	store   audit.Store
	mirror  Sink
	sampler *Sampler
	logger  *slog.Logger

	inbox chan audit.Event
	done  chan struct{}
	once  sync.Once
}

type Option func(*Publisher)

// WithAsyncBuffer switches Emit to a buffered channel drained by a background
// goroutine. Events are dropped with ErrBufferFull when the buffer is full.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		p.inbox = make(chan audit.Event, size)
	}
}

// WithMirror mirrors every persisted event to a secondary sink.
func WithMirror(sink Sink) Option {
	return func(p *Publisher) {
		p.mirror = sink
	}
}

// WithSampler samples operations-category events down. Compliance events are
// never sampled.
func WithSampler(s *Sampler) Option {
	return func(p *Publisher) {
		p.sampler = s
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:  store,
		logger: slog.Default(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.inbox != nil {
		go p.drain()
	}
	return p
}

// Emit records an audit event. In sync mode the store error is returned; in
// async mode the only error is a full buffer or a cancelled context.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}
	if event.Category == audit.CategoryOperations && p.sampler != nil && !p.sampler.ShouldSample(event.Action) {
		return nil
	}

	if p.inbox == nil {
		return p.persist(ctx, event)
	}

	select {
	case p.inbox <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrBufferFull
	}
}

func (p *Publisher) List(ctx context.Context, userID id.UserID) ([]audit.Event, error) {
	return p.store.ListByUser(ctx, userID)
}

// Close drains any buffered events and stops the background goroutine.
func (p *Publisher) Close() {
	p.once.Do(func() {
		if p.inbox == nil {
			return
		}
		close(p.inbox)
		<-p.done
	})
}

func (p *Publisher) drain() {
	defer close(p.done)
	for event := range p.inbox {
		if err := p.persist(context.Background(), event); err != nil {
			p.logger.Error("persisting audit event failed",
				slog.String("action", event.Action),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (p *Publisher) persist(ctx context.Context, event audit.Event) error {
	if err := p.store.Append(ctx, event); err != nil {
		return err
	}
	if p.mirror != nil {
		if err := p.mirror.Append(ctx, event); err != nil {
			p.logger.Warn("mirroring audit event failed",
				slog.String("action", event.Action),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}
