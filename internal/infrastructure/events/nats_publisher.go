package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"skillcall/internal/infrastructure/monitoring"
	"skillcall/pkg/circuitbreaker"
	"skillcall/pkg/retry"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Config holds publisher configuration
type Config struct {
	URL           string
	StreamName    string
	PendingBuffer int
	PublishRetry  int
	RetryDelay    time.Duration
}

// NATSPublisher publishes session lifecycle events to a JetStream stream.
// A synchronous JetStream publish waits for the broker's ack, which gives
// the at-least-once guarantee. Failed publishes never block the signaling
// path: they are parked on a buffered pending queue and drained by a
// background worker with exponential backoff.
type NATSPublisher struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.SugaredLogger
	metrics *monitoring.PrometheusCollector

	retryCfg retry.Config
	pending  chan pendingEvent

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

type pendingEvent struct {
	subject string
	data    []byte
}

func NewNATSPublisher(cfg Config, logger *zap.SugaredLogger, metrics *monitoring.PrometheusCollector) (*NATSPublisher, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warnw("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Infow("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	// Durable stream covering both lifecycle subjects. Creating an existing
	// stream with the same config is a no-op.
	_, err = js.AddStream(&nats.StreamConfig{
		Name:     cfg.StreamName,
		Subjects: []string{"session.*"},
		Storage:  nats.FileStorage,
	})
	if err != nil && err != nats.ErrStreamNameAlreadyInUse {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream %s: %w", cfg.StreamName, err)
	}

	p := &NATSPublisher{
		nc:      nc,
		js:      js,
		breaker: circuitbreaker.New(circuitbreaker.DefaultConfig()),
		logger:  logger,
		metrics: metrics,
		retryCfg: retry.Config{
			MaxAttempts:  cfg.PublishRetry,
			InitialDelay: cfg.RetryDelay,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
			Jitter:       true,
		},
		pending: make(chan pendingEvent, cfg.PendingBuffer),
		done:    make(chan struct{}),
	}

	p.wg.Add(1)
	go p.drainPending()

	return p, nil
}

// Publish sends one event. The fast path is a single acked JetStream publish
// behind the circuit breaker; any failure hands the event to the retry queue
// and returns nil, because the caller's signaling operation must not fail on
// broker trouble.
func (p *NATSPublisher) Publish(ctx context.Context, subject string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.breaker.Execute(func() error {
		_, err := p.js.Publish(subject, data, nats.Context(ctx))
		return err
	})
	if err == nil {
		p.metrics.RecordEventPublished(subject)
		return nil
	}

	p.logger.Warnw("event publish failed, queueing for retry",
		"subject", subject, "error", err)
	p.metrics.RecordEventRetry()

	select {
	case p.pending <- pendingEvent{subject: subject, data: data}:
		return nil
	default:
		// Queue full: this is the one place an event can be lost, and it
		// must be loud.
		p.logger.Errorw("pending event queue full, event lost",
			"subject", subject)
		p.metrics.RecordEventLost()
		return fmt.Errorf("pending event queue full")
	}
}

// drainPending retries parked events until the broker accepts them or the
// retry budget runs out.
func (p *NATSPublisher) drainPending() {
	defer p.wg.Done()

	for {
		select {
		case <-p.done:
			// Final drain attempt for whatever is still parked.
			for {
				select {
				case ev := <-p.pending:
					p.retryPublish(ev)
				default:
					return
				}
			}
		case ev := <-p.pending:
			p.retryPublish(ev)
		}
	}
}

func (p *NATSPublisher) retryPublish(ev pendingEvent) {
	err := retry.Do(context.Background(), p.retryCfg, func() error {
		_, err := p.js.Publish(ev.subject, ev.data)
		return err
	})
	if err != nil {
		p.logger.Errorw("event lost after exhausting retries",
			"subject", ev.subject, "error", err)
		p.metrics.RecordEventLost()
		return
	}
	p.metrics.RecordEventPublished(ev.subject)
}

// Close drains the pending queue and closes the connection.
func (p *NATSPublisher) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)
		p.wg.Wait()
		p.nc.Close()
	})
	return nil
}

// HealthCheck reports broker connectivity.
func (p *NATSPublisher) HealthCheck(ctx context.Context) error {
	if !p.nc.IsConnected() {
		return fmt.Errorf("NATS connection is down: %s", p.nc.Status())
	}
	return nil
}
