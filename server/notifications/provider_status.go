package notifications

import "fmt"

// ProviderStatus is the delivery report code sent by the SMS gateway.
type ProviderStatus int

const (
	ProviderDelivered       ProviderStatus = 1
	ProviderUndelivered     ProviderStatus = 2
	ProviderQueuedAtSMSC    ProviderStatus = 4
	ProviderSubmittedToSMSC ProviderStatus = 8
	ProviderRejectedBySMSC  ProviderStatus = 16
	ProviderIntermediate    ProviderStatus = 32
	ProviderExpired         ProviderStatus = 64
)

type Outcome int

const (
	OutcomeIntermediate Outcome = iota
	OutcomeDelivered
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "delivered"
	case OutcomeFailed:
		return "failed"
	default:
		return "intermediate"
	}
}

var providerStatusNames = map[ProviderStatus]string{
	ProviderDelivered:       "DELIVERED",
	ProviderUndelivered:     "UNDELIVERED",
	ProviderQueuedAtSMSC:    "QUEUED_AT_SMSC",
	ProviderSubmittedToSMSC: "SUBMITTED_TO_SMSC",
	ProviderRejectedBySMSC:  "REJECTED_BY_SMSC",
	ProviderIntermediate:    "INTERMEDIATE",
	ProviderExpired:         "EXPIRED",
}

func (p ProviderStatus) Known() bool {
	_, ok := providerStatusNames[p]
	return ok
}

func (p ProviderStatus) String() string {
	if name, ok := providerStatusNames[p]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(p))
}

// Outcome maps a provider code onto what it means for a notification.
// Unknown codes are treated as intermediate.
func (p ProviderStatus) Outcome() Outcome {
	switch p {
	case ProviderDelivered:
		return OutcomeDelivered
	case ProviderUndelivered, ProviderRejectedBySMSC, ProviderExpired:
		return OutcomeFailed
	default:
		return OutcomeIntermediate
	}
}

func (p ProviderStatus) FailureReason() string {
	return "Message delivery failed: " + p.String()
}
