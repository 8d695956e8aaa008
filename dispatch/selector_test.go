package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamgarcia4/goLearning/gateway/membership"
)

func TestSelectWorkerWithoutWorkers(t *testing.T) {
	s := NewRoundRobin(membership.NewRegistry())
	_, err := s.SelectWorker()
	assert.ErrorIs(t, err, ErrNoCapacity)
}

func TestSelectWorkerRotates(t *testing.T) {
	r := membership.NewRegistry()
	r.AddIfAbsent("a:1")
	r.AddIfAbsent("b:1")
	s := NewRoundRobin(r)

	var got []membership.WorkerAddress
	for i := 0; i < 4; i++ {
		w, err := s.SelectWorker()
		require.NoError(t, err)
		got = append(got, w)
	}
	assert.Equal(t, []membership.WorkerAddress{"a:1", "b:1", "a:1", "b:1"}, got)
}

func TestSelectWorkerFollowsMembership(t *testing.T) {
	r := membership.NewRegistry()
	now := time.Now()
	r.Heartbeat("a:1", now)
	s := NewRoundRobin(r)

	w, err := s.SelectWorker()
	require.NoError(t, err)
	assert.Equal(t, membership.WorkerAddress("a:1"), w)

	r.EvictStale(now.Add(time.Minute), time.Second)
	_, err = s.SelectWorker()
	assert.ErrorIs(t, err, ErrNoCapacity)

	r.Heartbeat("b:1", now)
	w, err = s.SelectWorker()
	require.NoError(t, err)
	assert.Equal(t, membership.WorkerAddress("b:1"), w)
}
