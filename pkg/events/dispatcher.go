package events

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DispatcherConfig controls the outbox relay loop.
type DispatcherConfig struct {
	Enabled      bool          `yaml:"enabled"`
	PollInterval time.Duration `yaml:"poll_interval"`
	BatchSize    int           `yaml:"batch_size"`
}

// DefaultDispatcherConfig returns the dispatcher defaults.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		Enabled:      true,
		PollInterval: 2 * time.Second,
		BatchSize:    100,
	}
}

// Dispatcher polls the event log for committed-but-unpublished events and
// relays them to the bus. Publishing is at-least-once: an event is only
// marked published after the bus accepted it, so a crash between publish
// and mark causes a redelivery, never a loss.
type Dispatcher struct {
	store     *Store
	publisher Publisher
	cfg       DispatcherConfig
	logger    *slog.Logger
	wg        sync.WaitGroup
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(store *Store, publisher Publisher, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultDispatcherConfig().PollInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultDispatcherConfig().BatchSize
	}
	return &Dispatcher{store: store, publisher: publisher, cfg: cfg, logger: logger}
}

// Run starts the relay loop. It blocks until the context is cancelled,
// then waits for the in-flight batch to finish.
func (d *Dispatcher) Run(ctx context.Context) {
	if d.publisher == nil || !d.cfg.Enabled {
		d.logger.Info("event dispatcher disabled")
		return
	}

	d.logger.Info("event dispatcher starting",
		"pollInterval", d.cfg.PollInterval.String(),
		"batchSize", d.cfg.BatchSize)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				d.dispatchBatch(ctx)
			}
		}
	}()

	<-ctx.Done()
	d.wg.Wait()
	d.logger.Info("event dispatcher stopped")
}

// dispatchBatch publishes one batch of unpublished events. A bus failure
// stops the batch at the failing event; the rest is retried on the next
// tick to preserve per-asset ordering.
func (d *Dispatcher) dispatchBatch(ctx context.Context) {
	batch, err := d.store.Unpublished(ctx, d.cfg.BatchSize)
	if err != nil {
		d.logger.Error("failed to load unpublished events", "error", err)
		return
	}
	if len(batch) == 0 {
		return
	}

	published := make([]string, 0, len(batch))
	for i := range batch {
		if err := d.publisher.Publish(ctx, &batch[i]); err != nil {
			d.logger.Warn("event publish failed, will retry",
				"eventID", batch[i].ID,
				"type", batch[i].Type,
				"error", err)
			break
		}
		published = append(published, batch[i].ID)
	}

	if len(published) == 0 {
		return
	}
	if err := d.store.MarkPublished(ctx, published); err != nil {
		d.logger.Error("failed to mark events published", "count", len(published), "error", err)
		return
	}
	d.logger.Debug("dispatched events", "count", len(published))
}
