package directory

import (
	"context"
	"database/sql"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"

	"github.com/grassrootza/grassroot-platform-sub003/server/notifications"
)

const TaskLogResponded = "RESPONDED"

type LogEntry struct {
	ID          string    `db:"id" json:"id"`
	UserID      string    `db:"user_id" json:"user_id"`
	Type        string    `db:"type" json:"type"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

func (r *Repository) UserLog(ctx context.Context, userID, logType, description string) error {
	_, err := r.db.ExecContext(
		ctx,
		"INSERT INTO `user_logs` (`id`, `user_id`, `type`, `description`, `created_at`) VALUES (?, ?, ?, ?, ?)",
		ulid.Make().String(), userID, logType, description, r.now(),
	)
	return errors.Wrapf(err, "failed to write user log for %s", userID)
}

func (r *Repository) GroupLog(ctx context.Context, groupID, userID, logType, description string) error {
	_, err := r.db.ExecContext(
		ctx,
		"INSERT INTO `group_logs` (`id`, `group_id`, `user_id`, `type`, `description`, `created_at`) VALUES (?, ?, ?, ?, ?, ?)",
		ulid.Make().String(), groupID, userID, logType, description, r.now(),
	)
	return errors.Wrapf(err, "failed to write group log for %s", groupID)
}

// TaskLog writes a task log entry and returns the reference notifications can carry.
func (r *Repository) TaskLog(ctx context.Context, taskID, userID, logType, description string) (string, error) {
	id := ulid.Make().String()
	_, err := r.db.ExecContext(
		ctx,
		"INSERT INTO `task_logs` (`id`, `task_id`, `user_id`, `type`, `description`, `created_at`) VALUES (?, ?, ?, ?, ?, ?)",
		id, taskID, userID, logType, description, r.now(),
	)
	return id, errors.Wrapf(err, "failed to write task log for %s", taskID)
}

// AccountLog writes an account log entry. groupID may be empty.
func (r *Repository) AccountLog(ctx context.Context, accountID, groupID, logType, description string) (string, error) {
	id := ulid.Make().String()
	var group *string
	if groupID != "" {
		group = &groupID
	}
	_, err := r.db.ExecContext(
		ctx,
		"INSERT INTO `account_logs` (`id`, `account_id`, `group_id`, `type`, `description`, `created_at`) VALUES (?, ?, ?, ?, ?, ?)",
		id, accountID, group, logType, description, r.now(),
	)
	return id, errors.Wrapf(err, "failed to write account log for %s", accountID)
}

func (r *Repository) UserLogs(ctx context.Context, userID string) ([]LogEntry, error) {
	res := []LogEntry{}
	err := r.db.SelectContext(
		ctx,
		&res,
		"SELECT `id`, `user_id`, `type`, `description`, `created_at` FROM `user_logs` WHERE `user_id` = ? ORDER BY `created_at`, `id`",
		userID,
	)
	return res, errors.Wrapf(err, "failed to load user logs of %s", userID)
}

func (r *Repository) GroupLogs(ctx context.Context, groupID string) ([]LogEntry, error) {
	res := []LogEntry{}
	err := r.db.SelectContext(
		ctx,
		&res,
		"SELECT `id`, `user_id`, `type`, `description`, `created_at` FROM `group_logs` WHERE `group_id` = ? ORDER BY `created_at`, `id`",
		groupID,
	)
	return res, errors.Wrapf(err, "failed to load group logs of %s", groupID)
}

func (r *Repository) GroupForLog(ctx context.Context, ref notifications.LogRef) (string, bool, error) {
	if ref == nil {
		return "", false, nil
	}

	var q string
	switch ref.Kind() {
	case notifications.LogKindMeeting, notifications.LogKindTodo:
		q = "SELECT t.`group_id` FROM `task_logs` l JOIN `tasks` t ON t.`id` = l.`task_id` WHERE l.`id` = ?"
	case notifications.LogKindGroup:
		q = "SELECT `group_id` FROM `group_logs` WHERE `id` = ?"
	case notifications.LogKindAccount:
		q = "SELECT `group_id` FROM `account_logs` WHERE `id` = ? AND `group_id` IS NOT NULL"
	default:
		return "", false, nil
	}

	var groupID string
	err := r.db.GetContext(ctx, &groupID, q, ref.ID())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, errors.Wrapf(err, "failed to resolve group of %s", ref)
	}
	return groupID, true, nil
}
