package notifications_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/grassrootza/grassroot-platform-sub003/server/notifications"
)

func TestProviderStatusOutcome(t *testing.T) {
	testCases := []struct {
		code    notifications.ProviderStatus
		outcome notifications.Outcome
		name    string
	}{
		{code: 1, outcome: notifications.OutcomeDelivered, name: "DELIVERED"},
		{code: 2, outcome: notifications.OutcomeFailed, name: "UNDELIVERED"},
		{code: 4, outcome: notifications.OutcomeIntermediate, name: "QUEUED_AT_SMSC"},
		{code: 8, outcome: notifications.OutcomeIntermediate, name: "SUBMITTED_TO_SMSC"},
		{code: 16, outcome: notifications.OutcomeFailed, name: "REJECTED_BY_SMSC"},
		{code: 32, outcome: notifications.OutcomeIntermediate, name: "INTERMEDIATE"},
		{code: 64, outcome: notifications.OutcomeFailed, name: "EXPIRED"},
		{code: 99, outcome: notifications.OutcomeIntermediate, name: "UNKNOWN(99)"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.outcome, tc.code.Outcome())
			assert.Equal(t, tc.name, tc.code.String())
		})
	}
}

func TestProviderStatusFailureReason(t *testing.T) {
	assert.Equal(t, "Message delivery failed: EXPIRED", notifications.ProviderExpired.FailureReason())
	assert.False(t, notifications.ProviderStatus(3).Known())
	assert.True(t, notifications.ProviderRejectedBySMSC.Known())
}
