package reading

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkvault/comictrack/internal/entities"
)

func endedSession(duration, paused, pages int) entities.ReadingSession {
	ended := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return entities.ReadingSession{
		EndedAt:               &ended,
		DurationMinutes:       duration,
		PausedDurationMinutes: paused,
		PagesRead:             pages,
	}
}

func TestAggregate_Empty(t *testing.T) {
	a := Aggregate(nil)

	assert.Zero(t, a.TotalSessions)
	assert.Zero(t, a.ReadingTimeMinutes)
	assert.Zero(t, a.AverageSessionDuration)
	assert.Zero(t, a.ReadingSpeedPagesPerMinute)
}

func TestAggregate_SingleSession(t *testing.T) {
	a := Aggregate([]entities.ReadingSession{endedSession(30, 5, 29)})

	assert.Equal(t, 1, a.TotalSessions)
	assert.Equal(t, 30, a.ReadingTimeMinutes)
	assert.Equal(t, 5, a.TotalTimePausedMinutes)
	assert.InDelta(t, 30.0, a.AverageSessionDuration, 0.001)
	assert.InDelta(t, 29.0, a.PagesPerSessionAvg, 0.001)
	assert.InDelta(t, 29.0/30.0, a.ReadingSpeedPagesPerMinute, 0.001)
}

func TestAggregate_MultipleSessions(t *testing.T) {
	a := Aggregate([]entities.ReadingSession{
		endedSession(30, 5, 29),
		endedSession(10, 0, 11),
	})

	assert.Equal(t, 2, a.TotalSessions)
	assert.Equal(t, 40, a.ReadingTimeMinutes)
	assert.Equal(t, 5, a.TotalTimePausedMinutes)
	assert.InDelta(t, 20.0, a.AverageSessionDuration, 0.001)
	assert.InDelta(t, 20.0, a.PagesPerSessionAvg, 0.001)
	assert.InDelta(t, 1.0, a.ReadingSpeedPagesPerMinute, 0.001)
}

func TestAggregate_IgnoresActiveSessions(t *testing.T) {
	active := entities.ReadingSession{DurationMinutes: 99, PagesRead: 99, IsActive: true}

	a := Aggregate([]entities.ReadingSession{active, endedSession(10, 0, 5)})

	assert.Equal(t, 1, a.TotalSessions)
	assert.Equal(t, 10, a.ReadingTimeMinutes)
}

func TestAggregate_ZeroDurationSessionsDoNotDivideByZero(t *testing.T) {
	a := Aggregate([]entities.ReadingSession{endedSession(0, 0, 3)})

	assert.Equal(t, 1, a.TotalSessions)
	assert.Zero(t, a.ReadingSpeedPagesPerMinute)
	assert.InDelta(t, 3.0, a.PagesPerSessionAvg, 0.001)
}

func TestAggregator_Recompute(t *testing.T) {
	manager, repo, clk, cleanup := setupManager(t)
	defer cleanup()

	_, _, err := manager.Start(1, 10, nil)
	require.NoError(t, err)
	clk.Advance(20 * time.Minute)
	_, err = manager.End(1, 10, 15, nil)
	require.NoError(t, err)

	// Corrupt the derived fields, then recompute from the log
	rec, err := repo.Get(1, 10)
	require.NoError(t, err)
	rec.TotalReadingSessions = 42
	rec.ReadingTimeMinutes = 999
	rec.UpdatedAt = clk.Now()
	ok, err := repo.SaveRecordCAS(rec)
	require.NoError(t, err)
	require.True(t, ok)

	aggregator := NewAggregator(repo, clk)
	rec, err = aggregator.Recompute(1, 10)
	require.NoError(t, err)

	assert.Equal(t, 1, rec.TotalReadingSessions)
	assert.Equal(t, 20, rec.ReadingTimeMinutes)
}

func TestAggregator_Recompute_NoRecord(t *testing.T) {
	_, repo, clk, cleanup := setupManager(t)
	defer cleanup()

	aggregator := NewAggregator(repo, clk)
	rec, err := aggregator.Recompute(1, 999)

	require.NoError(t, err)
	assert.Nil(t, rec)
}
