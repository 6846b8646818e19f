package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingPurger struct{ calls int }

func (p *countingPurger) PurgeExpired(context.Context) (int64, error) {
	p.calls++
	return 0, nil
}

func TestSchedulePurge(t *testing.T) {
	s := NewScheduler()
	p := &countingPurger{}

	id, err := s.SchedulePurge("@hourly", p)
	require.NoError(t, err)
	assert.NotZero(t, id)

	entry := s.cron.Entry(id)
	require.NotNil(t, entry.Job)
	entry.Job.Run()
	assert.Equal(t, 1, p.calls)

	_, err = s.SchedulePurge("not a schedule", p)
	assert.Error(t, err)
}
