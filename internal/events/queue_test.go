package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickwarner/admediation/internal/models"
)

func TestQueueProcessesInOrder(t *testing.T) {
	var (
		mu  sync.Mutex
		got []models.NetworkID
	)
	q := NewQueue(8, func(_ context.Context, ev models.Event) error {
		mu.Lock()
		got = append(got, ev.Network)
		mu.Unlock()
		return nil
	}, nil)
	q.Start(context.Background())

	q.Handle(models.NewLoaded(models.NetworkAdMob))
	q.Handle(models.NewLoaded(models.NetworkUnityAds))
	q.Handle(models.NewShown(models.NetworkAdMob))
	q.Close()

	assert.Equal(t, []models.NetworkID{models.NetworkAdMob, models.NetworkUnityAds, models.NetworkAdMob}, got)
}

func TestQueueReportsErrorsAndDrops(t *testing.T) {
	boom := errors.New("boom")
	var errs []error
	q := NewQueue(1, func(context.Context, models.Event) error { return boom }, func(_ models.Event, err error) {
		errs = append(errs, err)
	})

	// not started: the second event overflows the buffer
	q.Handle(models.NewLoaded(models.NetworkAdMob))
	q.Handle(models.NewLoaded(models.NetworkAdMob))
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrQueueFull)

	q.Start(context.Background())
	q.Close()
	require.Len(t, errs, 2)
	assert.ErrorIs(t, errs[1], boom)
}

func TestQueueIgnoresEventsAfterClose(t *testing.T) {
	calls := 0
	q := NewQueue(4, func(context.Context, models.Event) error {
		calls++
		return nil
	}, nil)
	q.Start(context.Background())
	q.Close()
	q.Close()
	q.Handle(models.NewLoaded(models.NetworkAdMob))
	assert.Equal(t, 0, calls)
	assert.Equal(t, 0, q.Len())
}

func TestQueueCloseWithoutStart(t *testing.T) {
	q := NewQueue(4, func(context.Context, models.Event) error { return nil }, nil)
	q.Handle(models.NewLoaded(models.NetworkAdMob))
	// must not wait for a worker that never ran
	q.Close()
	assert.Equal(t, 1, q.Len())
}
