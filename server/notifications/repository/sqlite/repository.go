package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/grassrootza/grassroot-platform-sub003/server/notifications"
	"github.com/grassrootza/grassroot-platform-sub003/share/logger"
)

type Repository struct {
	db     *sqlx.DB
	logger *logger.Logger
}

func NewRepository(db *sqlx.DB, l *logger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: l,
	}
}

type sqlNotification struct {
	ID               string     `db:"id"`
	SendingKey       *string    `db:"sending_key"`
	UserID           string     `db:"user_id"`
	Channel          string     `db:"channel"`
	Status           string     `db:"status"`
	Message          string     `db:"message"`
	LogRef           string     `db:"log_ref"`
	AttemptCount     int        `db:"attempt_count"`
	FailureReason    *string    `db:"failure_reason"`
	CreatedAt        time.Time  `db:"created_at"`
	LastAttemptAt    *time.Time `db:"last_attempt_at"`
	NextAttemptAt    *time.Time `db:"next_attempt_at"`
	LastStatusChange time.Time  `db:"last_status_change"`
	ReadAt           *time.Time `db:"read_at"`
	ViewedAt         *time.Time `db:"viewed_at"`
}

type sqlTransition struct {
	sqlNotification
	FromStatus string `db:"from_status"`
}

const notificationColumns = "`id`, `sending_key`, `user_id`, `channel`, `status`, `message`, `log_ref`, `attempt_count`, " +
	"`failure_reason`, `created_at`, `last_attempt_at`, `next_attempt_at`, `last_status_change`, `read_at`, `viewed_at`"

func toRow(n *notifications.Notification) sqlNotification {
	return sqlNotification{
		ID:               n.ID,
		SendingKey:       n.SendingKey,
		UserID:           n.UserID,
		Channel:          string(n.Channel),
		Status:           string(n.Status),
		Message:          n.Message,
		LogRef:           notifications.FormatLogRef(n.LogRef),
		AttemptCount:     n.AttemptCount,
		FailureReason:    n.FailureReason,
		CreatedAt:        n.CreatedAt.UTC(),
		LastAttemptAt:    utc(n.LastAttemptAt),
		NextAttemptAt:    utc(n.NextAttemptAt),
		LastStatusChange: n.LastStatusChange.UTC(),
		ReadAt:           utc(n.ReadAt),
		ViewedAt:         utc(n.ViewedAt),
	}
}

func (s sqlNotification) toNotification() (*notifications.Notification, error) {
	ref, err := notifications.ParseLogRef(s.LogRef)
	if err != nil {
		return nil, errors.Wrapf(err, "notification %s", s.ID)
	}
	return &notifications.Notification{
		ID:               s.ID,
		SendingKey:       s.SendingKey,
		UserID:           s.UserID,
		Channel:          notifications.Channel(s.Channel),
		Status:           notifications.Status(s.Status),
		Message:          s.Message,
		LogRef:           ref,
		AttemptCount:     s.AttemptCount,
		FailureReason:    s.FailureReason,
		CreatedAt:        s.CreatedAt.UTC(),
		LastAttemptAt:    utc(s.LastAttemptAt),
		NextAttemptAt:    utc(s.NextAttemptAt),
		LastStatusChange: s.LastStatusChange.UTC(),
		ReadAt:           utc(s.ReadAt),
		ViewedAt:         utc(s.ViewedAt),
	}, nil
}

func (r *Repository) Create(ctx context.Context, n *notifications.Notification) error {
	_, err := r.db.NamedExecContext(
		ctx,
		"INSERT INTO `notifications` ("+notificationColumns+") VALUES "+
			"(:id, :sending_key, :user_id, :channel, :status, :message, :log_ref, :attempt_count, "+
			":failure_reason, :created_at, :last_attempt_at, :next_attempt_at, :last_status_change, :read_at, :viewed_at)",
		toRow(n),
	)
	if isUniqueViolation(err) {
		return notifications.ErrDuplicateSendingKey
	}
	return errors.Wrap(err, "failed to insert notification")
}

func (r *Repository) Transition(ctx context.Context, n *notifications.Notification, change notifications.StatusChange) (applied bool, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, errors.Wrap(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				r.logger.Errorf("failed to rollback transition of %s: %v", n.ID, rbErr)
			}
		}
	}()

	res, err := tx.NamedExecContext(
		ctx,
		"UPDATE `notifications` SET `sending_key` = :sending_key, `status` = :status, `attempt_count` = :attempt_count, "+
			"`failure_reason` = :failure_reason, `last_attempt_at` = :last_attempt_at, `next_attempt_at` = :next_attempt_at, "+
			"`last_status_change` = :last_status_change WHERE `id` = :id AND `status` = :from_status",
		sqlTransition{sqlNotification: toRow(n), FromStatus: string(change.From)},
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, notifications.ErrDuplicateSendingKey
		}
		return false, errors.Wrapf(err, "failed to update notification %s", n.ID)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to read affected rows")
	}

	if affected == 1 && change.From != change.To {
		var reason *string
		if change.Reason != "" {
			reason = &change.Reason
		}
		_, err = tx.ExecContext(
			ctx,
			"INSERT INTO `notification_status_log` (`notification_id`, `at`, `from_status`, `to_status`, `reason`) VALUES (?, ?, ?, ?, ?)",
			n.ID, change.At.UTC(), string(change.From), string(change.To), reason,
		)
		if err != nil {
			return false, errors.Wrapf(err, "failed to append status history of %s", n.ID)
		}
	}

	if err = tx.Commit(); err != nil {
		return false, errors.Wrap(err, "failed to commit transition")
	}
	return affected == 1, nil
}

func (r *Repository) MarkSeen(ctx context.Context, id string, seen notifications.Seen, at time.Time) (*notifications.Notification, error) {
	column := "`read_at`"
	if seen == notifications.SeenViewed {
		column = "`viewed_at`"
	}
	_, err := r.db.ExecContext(
		ctx,
		"UPDATE `notifications` SET "+column+" = ? WHERE `id` = ? AND "+column+" IS NULL AND `status` IN (?, ?)",
		at.UTC(), id, string(notifications.StatusSent), string(notifications.StatusDelivered),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to mark notification %s as %s", id, seen)
	}

	n, found, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, notifications.ErrNotFound
	}
	if !n.Status.SentOrBetter() {
		return nil, notifications.ErrNotSent
	}
	return n, nil
}

func (r *Repository) Get(ctx context.Context, id string) (*notifications.Notification, bool, error) {
	return r.getOne(ctx, "`id` = ?", id)
}

func (r *Repository) GetBySendingKey(ctx context.Context, sendingKey string) (*notifications.Notification, bool, error) {
	return r.getOne(ctx, "`sending_key` = ?", sendingKey)
}

func (r *Repository) getOne(ctx context.Context, where string, arg interface{}) (*notifications.Notification, bool, error) {
	row := sqlNotification{}
	err := r.db.GetContext(ctx, &row, "SELECT "+notificationColumns+" FROM `notifications` WHERE "+where, arg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, errors.Wrap(err, "failed to load notification")
	}
	n, err := row.toNotification()
	if err != nil {
		return nil, false, err
	}
	return n, true, nil
}

func (r *Repository) List(ctx context.Context, filter notifications.ListFilter) ([]*notifications.Notification, error) {
	where := []string{}
	params := []interface{}{}
	if filter.UserID != "" {
		where = append(where, "`user_id` = ?")
		params = append(params, filter.UserID)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		where = append(where, "`status` IN (?)")
		params = append(params, statuses)
	}
	if !filter.CreatedSince.IsZero() {
		where = append(where, "`created_at` >= ?")
		params = append(params, filter.CreatedSince.UTC())
	}
	if !filter.LastAttemptBefore.IsZero() {
		where = append(where, "`last_attempt_at` < ?")
		params = append(params, filter.LastAttemptBefore.UTC())
	}
	if filter.WithLogRef {
		where = append(where, "`log_ref` != ''")
	}

	q := "SELECT " + notificationColumns + " FROM `notifications`"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	if filter.NewestFirst {
		q += " ORDER BY `created_at` DESC, `id` DESC"
	} else {
		q += " ORDER BY `created_at` ASC, `id` ASC"
	}
	if filter.Limit > 0 {
		q += " LIMIT ?"
		params = append(params, filter.Limit)
	}

	q, params, err := sqlx.In(q, params...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build notification query")
	}

	rows := []sqlNotification{}
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(q), params...); err != nil {
		return nil, errors.Wrap(err, "failed to list notifications")
	}

	res := make([]*notifications.Notification, 0, len(rows))
	for _, row := range rows {
		n, err := row.toNotification()
		if err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, nil
}

func (r *Repository) History(ctx context.Context, id string) ([]notifications.StatusChange, error) {
	res := []notifications.StatusChange{}
	err := r.db.SelectContext(
		ctx,
		&res,
		"SELECT `at`, `from_status`, `to_status`, COALESCE(`reason`, '') AS `reason` FROM `notification_status_log` "+
			"WHERE `notification_id` = ? ORDER BY `id` ASC",
		id,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load history of %s", id)
	}
	for i := range res {
		res[i].At = res[i].At.UTC()
	}
	return res, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
