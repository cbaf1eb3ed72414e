package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsecast/live-backend/pkg/queue"
)

type fakeSender struct {
	sent map[uuid.UUID]int64
	err  error
	call int
}

func (f *fakeSender) MarkSentByStream(_ context.Context, streamID uuid.UUID) (int64, error) {
	f.call++
	if f.err != nil {
		return 0, f.err
	}
	return f.sent[streamID], nil
}

func alertJob(t *testing.T, payload queue.LiveAlertPayload) *queue.Job {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return &queue.Job{ID: uuid.New().String(), Type: queue.JobTypeLiveAlert, Payload: raw}
}

func TestProcessMarksNotificationsSent(t *testing.T) {
	streamID := uuid.New()
	sender := &fakeSender{sent: map[uuid.UUID]int64{streamID: 5}}
	p := NewAlertProcessor(sender, nil, nil)

	job := alertJob(t, queue.LiveAlertPayload{StreamID: streamID, BroadcasterID: uuid.New(), NotificationCount: 5})
	require.NoError(t, p.Process(context.Background(), job))
	assert.Equal(t, 1, sender.call)
}

func TestProcessAlreadySentIsNotAnError(t *testing.T) {
	sender := &fakeSender{}
	p := NewAlertProcessor(sender, nil, nil)

	job := alertJob(t, queue.LiveAlertPayload{StreamID: uuid.New()})
	require.NoError(t, p.Process(context.Background(), job))
}

func TestProcessRejectsUnknownJobType(t *testing.T) {
	p := NewAlertProcessor(&fakeSender{}, nil, nil)
	err := p.Process(context.Background(), &queue.Job{ID: "x", Type: "mystery"})
	assert.Error(t, err)
}

func TestProcessPropagatesSenderError(t *testing.T) {
	sender := &fakeSender{err: errors.New("db down")}
	p := NewAlertProcessor(sender, nil, nil)

	job := alertJob(t, queue.LiveAlertPayload{StreamID: uuid.New()})
	assert.Error(t, p.Process(context.Background(), job))
}
