package notifications

import (
	"context"
	"time"
)

// Store persists notifications. It never deletes them.
type Store interface {
	Create(ctx context.Context, n *Notification) error
	// Transition writes the delivery state of n if the stored status still equals change.From.
	// A history row is appended when the status changes. It reports whether the write applied.
	Transition(ctx context.Context, n *Notification, change StatusChange) (bool, error)
	MarkSeen(ctx context.Context, id string, seen Seen, at time.Time) (*Notification, error)
	Get(ctx context.Context, id string) (*Notification, bool, error)
	GetBySendingKey(ctx context.Context, sendingKey string) (*Notification, bool, error)
	List(ctx context.Context, filter ListFilter) ([]*Notification, error)
	History(ctx context.Context, id string) ([]StatusChange, error)
	Close() error
}

type Seen string

const (
	SeenRead   Seen = "read"
	SeenViewed Seen = "viewed"
)

// Apply sets the matching receipt on n.
func (s Seen) Apply(n *Notification, at time.Time) error {
	if s == SeenViewed {
		return n.MarkViewed(at)
	}
	return n.MarkRead(at)
}

// ListFilter selects notifications. WithLogRef skips those not tied to a log entry.
type ListFilter struct {
	UserID            string
	Statuses          []Status
	CreatedSince      time.Time
	LastAttemptBefore time.Time
	WithLogRef        bool
	NewestFirst       bool
	Limit             int
}

// Match is the in-process form of the filter, used by stores without a query engine.
func (f ListFilter) Match(n *Notification) bool {
	if f.UserID != "" && n.UserID != f.UserID {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if n.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.CreatedSince.IsZero() && n.CreatedAt.Before(f.CreatedSince) {
		return false
	}
	if !f.LastAttemptBefore.IsZero() && (n.LastAttemptAt == nil || !n.LastAttemptAt.Before(f.LastAttemptBefore)) {
		return false
	}
	if f.WithLogRef && n.LogRef == nil {
		return false
	}
	return true
}
