package notifications_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grassrootza/grassroot-platform-sub003/server/notifications"
)

var t0 = time.Date(2023, 6, 1, 10, 0, 0, 0, time.UTC)

func TestNewTruncatesMessage(t *testing.T) {
	long := strings.Repeat("é", notifications.MaxMessageLength+10)

	n := notifications.New("user-1", long, notifications.ChannelSMS, nil, t0)

	assert.Equal(t, notifications.MaxMessageLength, len([]rune(n.Message)))
	assert.Equal(t, notifications.StatusCreated, n.Status)
	assert.NotEmpty(t, n.ID)
	assert.Nil(t, n.SendingKey)
	assert.Equal(t, 0, n.AttemptCount)
	assert.Equal(t, t0, n.LastStatusChange)
}

func TestStatusMachine(t *testing.T) {
	n := notifications.New("user-1", "hello", notifications.ChannelSMS, nil, t0)

	change, ok := n.MarkSent("key-1", t0.Add(time.Second))
	require.True(t, ok)
	assert.Equal(t, notifications.StatusChange{At: t0.Add(time.Second), From: notifications.StatusCreated, To: notifications.StatusSent}, change)
	assert.Equal(t, "key-1", *n.SendingKey)
	assert.Equal(t, 1, n.AttemptCount)

	_, ok = n.MarkSent("key-2", t0)
	assert.False(t, ok)
	_, ok = n.MarkFailed("late", t0)
	assert.False(t, ok)

	_, ok = n.Reconcile(notifications.OutcomeIntermediate, "", t0)
	assert.False(t, ok)
	assert.Equal(t, notifications.StatusSent, n.Status)

	change, ok = n.Reconcile(notifications.OutcomeFailed, "Message delivery failed: EXPIRED", t0.Add(time.Minute))
	require.True(t, ok)
	assert.Equal(t, notifications.StatusDeliveryFailed, change.To)
	assert.Equal(t, "Message delivery failed: EXPIRED", *n.FailureReason)
	assert.Equal(t, t0.Add(time.Minute), n.LastStatusChange)

	_, ok = n.Reconcile(notifications.OutcomeDelivered, "", t0.Add(2*time.Minute))
	assert.False(t, ok)
	_, ok = n.Abandon("too late", t0.Add(3*time.Minute))
	assert.False(t, ok)
	assert.Equal(t, notifications.StatusDeliveryFailed, n.Status)
}

func TestMarkFailedHasNoSendingKey(t *testing.T) {
	n := notifications.New("user-1", "hello", notifications.ChannelPush, nil, t0)

	change, ok := n.MarkFailed("no address for channel PUSH", t0)

	require.True(t, ok)
	assert.Equal(t, notifications.StatusDeliveryFailed, change.To)
	assert.Nil(t, n.SendingKey)
	assert.Equal(t, 1, n.AttemptCount)
	assert.True(t, n.Status.Terminal())
}

func TestReadReceipts(t *testing.T) {
	n := notifications.New("user-1", "hello", notifications.ChannelSMS, nil, t0)
	assert.ErrorIs(t, n.MarkRead(t0), notifications.ErrNotSent)
	assert.ErrorIs(t, n.MarkViewed(t0), notifications.ErrNotSent)

	n.MarkSent("key-1", t0)
	require.NoError(t, n.MarkRead(t0.Add(time.Minute)))
	require.NoError(t, n.MarkRead(t0.Add(time.Hour)))
	assert.Equal(t, t0.Add(time.Minute), *n.ReadAt)

	n.Reconcile(notifications.OutcomeDelivered, "", t0)
	require.NoError(t, notifications.SeenViewed.Apply(n, t0.Add(time.Hour)))
	assert.Equal(t, t0.Add(time.Hour), *n.ViewedAt)

	failed := notifications.New("user-1", "hello", notifications.ChannelSMS, nil, t0)
	failed.MarkFailed("boom", t0)
	assert.ErrorIs(t, failed.MarkRead(t0), notifications.ErrNotSent)
}

func TestCloneIsDeep(t *testing.T) {
	n := notifications.New("user-1", "hello", notifications.ChannelSMS, notifications.GroupLog("g-1"), t0)
	n.MarkSent("key-1", t0)

	c := n.Clone()
	*c.SendingKey = "changed"
	*c.LastAttemptAt = t0.Add(time.Hour)

	assert.Equal(t, "key-1", *n.SendingKey)
	assert.Equal(t, t0, *n.LastAttemptAt)
	assert.Equal(t, n.LogRef, c.LogRef)
}

func TestParseStatusAndChannel(t *testing.T) {
	s, err := notifications.ParseStatus(" delivery_failed ")
	require.NoError(t, err)
	assert.Equal(t, notifications.StatusDeliveryFailed, s)
	_, err = notifications.ParseStatus("READ")
	assert.Error(t, err)

	c, err := notifications.ParseChannel("ussd")
	require.NoError(t, err)
	assert.Equal(t, notifications.ChannelUSSD, c)
	_, err = notifications.ParseChannel("fax")
	assert.Error(t, err)
}

func TestSentOrBetter(t *testing.T) {
	testCases := map[notifications.Status]bool{
		notifications.StatusCreated:        false,
		notifications.StatusSent:           true,
		notifications.StatusDelivered:      true,
		notifications.StatusDeliveryFailed: false,
		notifications.StatusAbandoned:      false,
	}
	for status, expected := range testCases {
		assert.Equal(t, expected, status.SentOrBetter(), status)
	}
}

func TestNotificationJSON(t *testing.T) {
	n := notifications.New("user-1", "hello", notifications.ChannelSMS, notifications.MeetingLog("m-7"), t0)

	raw, err := json.Marshal(n)
	require.NoError(t, err)

	decoded := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "MeetingLog(m-7)", decoded["log_ref"])
	assert.Equal(t, "CREATED", decoded["status"])
	assert.Nil(t, decoded["sending_key"])
}
