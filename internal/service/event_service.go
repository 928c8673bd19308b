package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/class-roster-api/internal/models"
	"github.com/noah-isme/class-roster-api/pkg/jobs"
	"github.com/noah-isme/class-roster-api/pkg/messaging"
)

const rosterEventJobType = "roster_event"

// RosterEvents hands roster changes to the broker through a background queue
// so request latency never depends on broker availability.
type RosterEvents struct {
	queue     *jobs.Queue
	publisher messaging.Publisher
	clock     Clock
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewRosterEvents wires a publisher behind a retrying worker queue.
func NewRosterEvents(publisher messaging.Publisher, cfg jobs.QueueConfig, clock Clock, metrics *MetricsService, logger *zap.Logger) *RosterEvents {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = messaging.NopPublisher{Logger: logger}
	}
	if cfg.Logger == nil {
		cfg.Logger = logger
	}
	e := &RosterEvents{publisher: publisher, clock: clock, metrics: metrics, logger: logger}
	e.queue = jobs.NewQueue("roster-events", e.handle, cfg)
	return e
}

// Start launches the publishing workers.
func (e *RosterEvents) Start(ctx context.Context) {
	if e == nil {
		return
	}
	e.queue.Start(ctx)
}

// Stop drains the workers and closes the publisher.
func (e *RosterEvents) Stop() {
	if e == nil {
		return
	}
	e.queue.Stop()
	if err := e.publisher.Close(); err != nil {
		e.logger.Warn("close event publisher", zap.Error(err))
	}
}

// Emit schedules an event for publication. Events are dropped with a warning
// when the queue is saturated or stopped.
func (e *RosterEvents) Emit(event models.RosterEvent) {
	if e == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = e.clock.Now().UTC()
	}
	err := e.queue.TryEnqueue(jobs.Job{ID: event.ID, Type: rosterEventJobType, Payload: event})
	if err != nil {
		e.metrics.RecordEventPublished(string(event.Type), "dropped")
		level := e.logger.Warn
		if !errors.Is(err, jobs.ErrQueueFull) {
			level = e.logger.Debug
		}
		level("roster event dropped", zap.String("event_type", string(event.Type)), zap.String("class_session_id", event.ClassSessionID), zap.Error(err))
	}
}

func (e *RosterEvents) handle(ctx context.Context, job jobs.Job) error {
	event, ok := job.Payload.(models.RosterEvent)
	if !ok {
		return fmt.Errorf("unexpected payload %T for job %s", job.Payload, job.ID)
	}
	publishCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := e.publisher.Publish(publishCtx, string(event.Type), event); err != nil {
		e.metrics.RecordEventPublished(string(event.Type), "error")
		return err
	}
	e.metrics.RecordEventPublished(string(event.Type), outcomeOK)
	return nil
}
