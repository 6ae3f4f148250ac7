package notifications

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

const MaxMessageLength = 255

var (
	ErrNotFound            = errors.New("notification not found")
	ErrNotSent             = errors.New("notification has not been sent")
	ErrDuplicateSendingKey = errors.New("sending key already in use")
)

type Status string

const (
	StatusCreated        Status = "CREATED"
	StatusSent           Status = "SENT"
	StatusDelivered      Status = "DELIVERED"
	StatusDeliveryFailed Status = "DELIVERY_FAILED"
	StatusAbandoned      Status = "ABANDONED"
)

var AllStatuses = []Status{StatusCreated, StatusSent, StatusDelivered, StatusDeliveryFailed, StatusAbandoned}

func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	for _, status := range AllStatuses {
		if s == status {
			return s, nil
		}
	}
	return "", fmt.Errorf("invalid notification status: %q", raw)
}

// Terminal statuses never transition further.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusDeliveryFailed || s == StatusAbandoned
}

func (s Status) SentOrBetter() bool {
	return s == StatusSent || s == StatusDelivered
}

type Channel string

const (
	ChannelSMS   Channel = "SMS"
	ChannelPush  Channel = "PUSH"
	ChannelUSSD  Channel = "USSD"
	ChannelEmail Channel = "EMAIL"
)

var AllChannels = []Channel{ChannelSMS, ChannelPush, ChannelUSSD, ChannelEmail}

func ParseChannel(raw string) (Channel, error) {
	c := Channel(strings.ToUpper(strings.TrimSpace(raw)))
	if c.Valid() {
		return c, nil
	}
	return "", fmt.Errorf("invalid channel: %q", raw)
}

func (c Channel) Valid() bool {
	for _, channel := range AllChannels {
		if c == channel {
			return true
		}
	}
	return false
}

// StatusChange is one entry of the append-only status history.
type StatusChange struct {
	At     time.Time `json:"at" db:"at"`
	From   Status    `json:"from" db:"from_status"`
	To     Status    `json:"to" db:"to_status"`
	Reason string    `json:"reason,omitempty" db:"reason"`
}

type Notification struct {
	ID               string     `json:"id"`
	SendingKey       *string    `json:"sending_key"`
	UserID           string     `json:"user_id"`
	Message          string     `json:"message"`
	Channel          Channel    `json:"channel"`
	Status           Status     `json:"status"`
	AttemptCount     int        `json:"attempt_count"`
	LastAttemptAt    *time.Time `json:"last_attempt_at"`
	NextAttemptAt    *time.Time `json:"next_attempt_at"`
	FailureReason    *string    `json:"failure_reason"`
	ReadAt           *time.Time `json:"read_at"`
	ViewedAt         *time.Time `json:"viewed_at"`
	CreatedAt        time.Time  `json:"created_at"`
	LastStatusChange time.Time  `json:"last_status_change"`
	LogRef           LogRef     `json:"log_ref,omitempty"`
}

func New(userID, message string, channel Channel, ref LogRef, now time.Time) *Notification {
	return &Notification{
		ID:               ulid.Make().String(),
		UserID:           userID,
		Message:          truncate(message, MaxMessageLength),
		Channel:          channel,
		Status:           StatusCreated,
		CreatedAt:        now,
		LastStatusChange: now,
		LogRef:           ref,
	}
}

// MarkSent records gateway acceptance. Only a CREATED notification can be sent.
func (n *Notification) MarkSent(sendingKey string, at time.Time) (StatusChange, bool) {
	if n.Status != StatusCreated {
		return StatusChange{}, false
	}
	n.SendingKey = &sendingKey
	n.attempt(at)
	return n.moveTo(StatusSent, "", at), true
}

// MarkFailed records a synchronous gateway rejection. No sending key is assigned.
func (n *Notification) MarkFailed(reason string, at time.Time) (StatusChange, bool) {
	if n.Status != StatusCreated {
		return StatusChange{}, false
	}
	n.attempt(at)
	n.FailureReason = &reason
	return n.moveTo(StatusDeliveryFailed, reason, at), true
}

// Reconcile applies a delivery receipt outcome. Intermediate outcomes and terminal
// notifications are left untouched.
func (n *Notification) Reconcile(outcome Outcome, reason string, at time.Time) (StatusChange, bool) {
	if n.Status.Terminal() {
		return StatusChange{}, false
	}
	switch outcome {
	case OutcomeDelivered:
		return n.moveTo(StatusDelivered, "", at), true
	case OutcomeFailed:
		n.FailureReason = &reason
		return n.moveTo(StatusDeliveryFailed, reason, at), true
	default:
		return StatusChange{}, false
	}
}

func (n *Notification) Abandon(reason string, at time.Time) (StatusChange, bool) {
	if n.Status.Terminal() {
		return StatusChange{}, false
	}
	n.FailureReason = &reason
	return n.moveTo(StatusAbandoned, reason, at), true
}

// MarkRead sets the read receipt once. A second call keeps the first timestamp.
func (n *Notification) MarkRead(at time.Time) error {
	if !n.Status.SentOrBetter() {
		return ErrNotSent
	}
	if n.ReadAt == nil {
		n.ReadAt = &at
	}
	return nil
}

func (n *Notification) MarkViewed(at time.Time) error {
	if !n.Status.SentOrBetter() {
		return ErrNotSent
	}
	if n.ViewedAt == nil {
		n.ViewedAt = &at
	}
	return nil
}

func (n *Notification) Clone() *Notification {
	c := *n
	c.SendingKey = clonePtr(n.SendingKey)
	c.LastAttemptAt = clonePtr(n.LastAttemptAt)
	c.NextAttemptAt = clonePtr(n.NextAttemptAt)
	c.FailureReason = clonePtr(n.FailureReason)
	c.ReadAt = clonePtr(n.ReadAt)
	c.ViewedAt = clonePtr(n.ViewedAt)
	return &c
}

func (n *Notification) attempt(at time.Time) {
	n.AttemptCount++
	n.LastAttemptAt = &at
}

func (n *Notification) moveTo(status Status, reason string, at time.Time) StatusChange {
	change := StatusChange{At: at, From: n.Status, To: status, Reason: reason}
	n.Status = status
	n.LastStatusChange = at
	return change
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
