package notifications_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grassrootza/grassroot-platform-sub003/server/notifications"
	"github.com/grassrootza/grassroot-platform-sub003/server/notifications/repository/inmemory"
)

func TestSweepAbandonsStaleNotifications(t *testing.T) {
	ctx := context.Background()
	store := inmemory.NewRepository()
	stale := sentNotification(t, store, "K1")
	created := notifications.New("user-1", "hello", notifications.ChannelSMS, nil, t0)
	require.NoError(t, store.Create(ctx, created))

	s := notifications.NewSweeper(testLog, store, notifications.SweeperOptions{
		AbandonAfter: 72 * time.Hour,
		Now:          func() time.Time { return t0.Add(73 * time.Hour) },
	})

	count, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got := get(t, store, stale.ID)
	assert.Equal(t, notifications.StatusAbandoned, got.Status)
	assert.Equal(t, notifications.AbandonReason, *got.FailureReason)
	assert.Equal(t, notifications.StatusCreated, get(t, store, created.ID).Status)

	count, err = s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestSweepKeepsRecentNotifications(t *testing.T) {
	store := inmemory.NewRepository()
	n := sentNotification(t, store, "K1")

	s := notifications.NewSweeper(testLog, store, notifications.SweeperOptions{
		Now: func() time.Time { return t0.Add(time.Hour) },
	})

	count, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Equal(t, notifications.StatusSent, get(t, store, n.ID).Status)
}

func TestSweeperSchedule(t *testing.T) {
	assert.NoError(t, notifications.ValidateSweepSchedule(notifications.DefaultSweepSchedule))
	assert.NoError(t, notifications.ValidateSweepSchedule("*/5 * * * *"))
	assert.Error(t, notifications.ValidateSweepSchedule("every now and then"))

	s := notifications.NewSweeper(testLog, inmemory.NewRepository(), notifications.SweeperOptions{})
	assert.Error(t, s.Start("bad"))
	require.NoError(t, s.Start("@every 1h"))
	assert.NoError(t, s.Close())
}
