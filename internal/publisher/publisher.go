package publisher

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/bilal/regionpulse/internal/config"
)

// Options tunes batching and retry.
type Options struct {
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration
	MaxAttempts   int
	BaseDelay     time.Duration
}

// OptionsFromConfig copies the batching settings out of cfg.
func OptionsFromConfig(cfg config.PublisherConfig) Options {
	return Options{
		QueueSize:     cfg.QueueSize,
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
		MaxAttempts:   cfg.MaxAttempts,
		BaseDelay:     cfg.BaseDelay,
	}
}

// Publisher exports report events to a Sink with batching, retries and
// buffering.
type Publisher struct {
	sink     Sink
	opts     Options
	observer Observer

	queue chan ReportEvent
	stop  chan struct{}
	wg    sync.WaitGroup

	// ctx aborts in-flight deliveries when shutdown runs out of time.
	ctx    context.Context
	cancel context.CancelFunc

	startOnce sync.Once
	stopOnce  sync.Once
}

// New creates a publisher; it does NOT start the send loop.
func New(sink Sink, opts Options, observer Observer) *Publisher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1000
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = 100
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 30 * time.Second
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if observer == nil {
		observer = nopObserver{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Publisher{
		sink:     sink,
		opts:     opts,
		observer: observer,
		queue:    make(chan ReportEvent, opts.QueueSize),
		stop:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start runs the background flush loop.
func (p *Publisher) Start() {
	p.startOnce.Do(func() {
		p.wg.Add(1)
		go p.loop()
		log.Info().Int("queue_capacity", p.opts.QueueSize).Int("batch_size", p.opts.BatchSize).Msg("report publisher started")
	})
}

// Shutdown stops the loop, flushes what is queued and closes the sink. If
// ctx expires first, pending deliveries are abandoned and ctx's error is
// returned.
func (p *Publisher) Shutdown(ctx context.Context) error {
	log.Info().Msg("report publisher shutdown initiated")
	p.stopOnce.Do(func() { close(p.stop) })

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		log.Info().Msg("report publisher shutdown complete")
	case <-ctx.Done():
		log.Warn().Msg("report publisher shutdown timeout")
		p.cancel()
		<-done
		err = ctx.Err()
	}
	p.cancel()

	if cerr := p.sink.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Publish enqueues an event without blocking. When the queue is full the
// oldest queued event is dropped to make room.
func (p *Publisher) Publish(ev ReportEvent) {
	if ev.CorrelationID == "" {
		ev.CorrelationID = uuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	select {
	case p.queue <- ev:
		return
	default:
	}

	select {
	case <-p.queue:
		p.observer.ReportsDropped(1)
	default:
	}
	select {
	case p.queue <- ev:
	default:
		p.observer.ReportsDropped(1)
		log.Warn().Str("correlation", ev.CorrelationID).Msg("report dropped: queue full")
	}
}

func (p *Publisher) loop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.opts.FlushInterval)
	defer ticker.Stop()

	buffer := make([]ReportEvent, 0, p.opts.BatchSize)

	for {
		select {
		case <-p.stop:
			for {
				select {
				case ev := <-p.queue:
					buffer = append(buffer, ev)
					if len(buffer) >= p.opts.BatchSize {
						p.flushWithRetry(buffer)
						buffer = buffer[:0]
					}
				default:
					if len(buffer) > 0 {
						p.flushWithRetry(buffer)
					}
					return
				}
			}

		case ev := <-p.queue:
			buffer = append(buffer, ev)
			if len(buffer) >= p.opts.BatchSize {
				p.flushWithRetry(buffer)
				buffer = buffer[:0]
			}

		case <-ticker.C:
			if len(buffer) > 0 {
				p.flushWithRetry(buffer)
				buffer = buffer[:0]
			}
		}
	}
}

// flushWithRetry delivers items, retrying with exponential backoff and
// jitter. The batch is dropped after MaxAttempts failures.
func (p *Publisher) flushWithRetry(items []ReportEvent) {
	base := p.opts.BaseDelay

	for attempt := 1; ; attempt++ {
		err := p.sink.Deliver(p.ctx, items)
		if err == nil {
			p.observer.ReportsPublished(len(items))
			log.Debug().Int("count", len(items)).Str("correlation", items[0].CorrelationID).Msg("reports delivered")
			return
		}

		log.Warn().Err(err).Int("attempt", attempt).Int("count", len(items)).Msg("report delivery failed")

		if attempt >= p.opts.MaxAttempts {
			log.Error().Int("attempts", attempt).Int("count", len(items)).Msg("max attempts reached, dropping report batch")
			p.observer.ReportsDropped(len(items))
			return
		}

		sleep := time.Duration(math.Pow(2, float64(attempt-1))) * base
		if base > 0 {
			sleep += time.Duration(rand.Int63n(int64(base)))
		}

		select {
		case <-time.After(sleep):
		case <-p.ctx.Done():
			log.Warn().Int("count", len(items)).Msg("publisher cancelled during backoff")
			p.observer.ReportsDropped(len(items))
			return
		}
	}
}
