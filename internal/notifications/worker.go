package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulsecast/live-backend/pkg/queue"
)

// Sender marks queued notifications delivered. The actual push transport
// sits behind it; the processor only drives the trigger and bookkeeping.
type Sender interface {
	MarkSentByStream(ctx context.Context, streamID uuid.UUID) (int64, error)
}

// AlertProcessor consumes live alert jobs: it marks the stream's pending
// notifications sent and hands the batch to the delivery side.
type AlertProcessor struct {
	sender Sender
	queue  *queue.Queue
	logger *zap.Logger
}

// NewAlertProcessor creates a live alert processor.
func NewAlertProcessor(sender Sender, q *queue.Queue, logger *zap.Logger) *AlertProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AlertProcessor{sender: sender, queue: q, logger: logger}
}

// Process executes one live alert job.
func (p *AlertProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeLiveAlert {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.LiveAlertPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	sent, err := p.sender.MarkSentByStream(ctx, payload.StreamID)
	if err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	if sent == 0 {
		// Another attempt already delivered this batch.
		p.logger.Info("live alerts already sent", zap.String("stream_id", payload.StreamID.String()))
		return nil
	}

	p.logger.Info("live alerts sent",
		zap.String("stream_id", payload.StreamID.String()),
		zap.String("broadcaster_id", payload.BroadcasterID.String()),
		zap.Int64("count", sent))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *AlertProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("alert worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				p.logger.Info("alert worker stopping")
				return
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
		}
	}
}
