package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCanAdvanceTo(t *testing.T) {
	order := []StreamStatus{StatusScheduled, StatusPreLive, StatusLive, StatusEnding, StatusEnded}
	for i, from := range order {
		for j, to := range order {
			got := from.CanAdvanceTo(to)
			assert.Equal(t, j > i, got, "%s -> %s", from, to)
		}
	}
}

func TestStatusCanAdvanceToUnknown(t *testing.T) {
	assert.False(t, StatusLive.CanAdvanceTo("archived"))
	assert.False(t, StreamStatus("archived").CanAdvanceTo(StatusEnded))
}

func TestStatusAcceptsViewers(t *testing.T) {
	assert.False(t, StatusScheduled.AcceptsViewers())
	assert.True(t, StatusPreLive.AcceptsViewers())
	assert.True(t, StatusLive.AcceptsViewers())
	assert.False(t, StatusEnding.AcceptsViewers())
	assert.False(t, StatusEnded.AcceptsViewers())
}
