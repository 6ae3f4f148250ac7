package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/grassrootza/grassroot-platform-sub003/server/notifications"
)

// Repository keeps notifications in process memory. Every read returns a copy.
type Repository struct {
	mu            sync.RWMutex
	notifications map[string]*notifications.Notification
	byKey         map[string]string
	history       map[string][]notifications.StatusChange
}

func NewRepository() *Repository {
	return &Repository{
		notifications: make(map[string]*notifications.Notification),
		byKey:         make(map[string]string),
		history:       make(map[string][]notifications.StatusChange),
	}
}

func (r *Repository) Create(_ context.Context, n *notifications.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n.SendingKey != nil {
		if _, taken := r.byKey[*n.SendingKey]; taken {
			return notifications.ErrDuplicateSendingKey
		}
		r.byKey[*n.SendingKey] = n.ID
	}
	r.notifications[n.ID] = n.Clone()
	return nil
}

func (r *Repository) Transition(_ context.Context, n *notifications.Notification, change notifications.StatusChange) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, found := r.notifications[n.ID]
	if !found {
		return false, notifications.ErrNotFound
	}
	if stored.Status != change.From {
		return false, nil
	}
	if n.SendingKey != nil && stored.SendingKey == nil {
		if owner, taken := r.byKey[*n.SendingKey]; taken && owner != n.ID {
			return false, notifications.ErrDuplicateSendingKey
		}
		r.byKey[*n.SendingKey] = n.ID
	}

	updated := n.Clone()
	// read receipts are owned by MarkSeen
	updated.ReadAt = stored.ReadAt
	updated.ViewedAt = stored.ViewedAt
	r.notifications[n.ID] = updated

	if change.From != change.To {
		r.history[n.ID] = append(r.history[n.ID], change)
	}
	return true, nil
}

func (r *Repository) MarkSeen(_ context.Context, id string, seen notifications.Seen, at time.Time) (*notifications.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, found := r.notifications[id]
	if !found {
		return nil, notifications.ErrNotFound
	}
	if err := seen.Apply(stored, at); err != nil {
		return nil, err
	}
	return stored.Clone(), nil
}

func (r *Repository) Get(_ context.Context, id string) (*notifications.Notification, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, found := r.notifications[id]
	if !found {
		return nil, false, nil
	}
	return n.Clone(), true, nil
}

func (r *Repository) GetBySendingKey(ctx context.Context, sendingKey string) (*notifications.Notification, bool, error) {
	r.mu.RLock()
	id, found := r.byKey[sendingKey]
	r.mu.RUnlock()
	if !found {
		return nil, false, nil
	}
	return r.Get(ctx, id)
}

func (r *Repository) List(_ context.Context, filter notifications.ListFilter) ([]*notifications.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := []*notifications.Notification{}
	for _, n := range r.notifications {
		if filter.Match(n) {
			res = append(res, n.Clone())
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].CreatedAt.Equal(res[j].CreatedAt) {
			if filter.NewestFirst {
				return res[i].ID > res[j].ID
			}
			return res[i].ID < res[j].ID
		}
		if filter.NewestFirst {
			return res[i].CreatedAt.After(res[j].CreatedAt)
		}
		return res[i].CreatedAt.Before(res[j].CreatedAt)
	})
	if filter.Limit > 0 && len(res) > filter.Limit {
		res = res[:filter.Limit]
	}
	return res, nil
}

func (r *Repository) History(_ context.Context, id string) ([]notifications.StatusChange, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]notifications.StatusChange, len(r.history[id]))
	copy(res, r.history[id])
	return res, nil
}

func (r *Repository) Close() error {
	return nil
}
