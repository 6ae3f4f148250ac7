package directory

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"

	"github.com/grassrootza/grassroot-platform-sub003/server/notifications"
	"github.com/grassrootza/grassroot-platform-sub003/server/responses"
	"github.com/grassrootza/grassroot-platform-sub003/share/logger"
)

// Repository is the sqlite view of users, groups and tasks the notification
// service needs. Group and task management lives elsewhere; only the Create*
// helpers exist here to seed data.
type Repository struct {
	db     *sqlx.DB
	logger *logger.Logger
	now    func() time.Time
}

var (
	_ notifications.Recipients = &Repository{}
	_ responses.Users          = &Repository{}
	_ responses.Tasks          = &Repository{}
	_ responses.ActivityLog    = &Repository{}
)

func NewRepository(db *sqlx.DB, l *logger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: l,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

type User struct {
	ID                string    `db:"id" json:"id"`
	DisplayName       string    `db:"display_name" json:"display_name"`
	MSISDN            string    `db:"msisdn" json:"msisdn"`
	Email             string    `db:"email" json:"email"`
	PushKey           string    `db:"push_key" json:"push_key"`
	ChannelPreference string    `db:"channel_preference" json:"channel_preference"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

func (r *Repository) CreateUser(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = ulid.Make().String()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = r.now()
	}
	_, err := r.db.NamedExecContext(
		ctx,
		"INSERT INTO `users` (`id`, `display_name`, `msisdn`, `email`, `push_key`, `channel_preference`, `created_at`) "+
			"VALUES (:id, :display_name, :msisdn, :email, :push_key, :channel_preference, :created_at)",
		u,
	)
	return errors.Wrapf(err, "failed to create user %s", u.ID)
}

func (r *Repository) Contact(ctx context.Context, userID string) (notifications.Contact, bool, error) {
	u := User{}
	err := r.db.GetContext(ctx, &u, "SELECT * FROM `users` WHERE `id` = ?", userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return notifications.Contact{}, false, nil
		}
		return notifications.Contact{}, false, errors.Wrapf(err, "failed to load user %s", userID)
	}

	contact := notifications.Contact{
		UserID:  u.ID,
		MSISDN:  u.MSISDN,
		Email:   u.Email,
		PushKey: u.PushKey,
	}
	if u.ChannelPreference != "" {
		preferred, err := notifications.ParseChannel(u.ChannelPreference)
		if err != nil {
			r.logger.Infof("user %s has unusable channel preference: %v", u.ID, err)
		} else {
			contact.Preferred = preferred
		}
	}
	return contact, true, nil
}

func (r *Repository) UserByMSISDN(ctx context.Context, msisdn string) (responses.User, bool, error) {
	u := responses.User{}
	err := r.db.GetContext(ctx, &u, "SELECT `id`, `display_name`, `msisdn` FROM `users` WHERE `msisdn` = ?", msisdn)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return responses.User{}, false, nil
		}
		return responses.User{}, false, errors.Wrap(err, "failed to look up user by msisdn")
	}
	return u, true, nil
}

func (r *Repository) CreateGroup(ctx context.Context, name string, memberIDs ...string) (string, error) {
	id := ulid.Make().String()
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", errors.Wrap(err, "failed to begin transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, "INSERT INTO `user_groups` (`id`, `name`, `created_at`) VALUES (?, ?, ?)", id, name, r.now()); err != nil {
		return "", errors.Wrapf(err, "failed to create group %q", name)
	}
	for _, userID := range memberIDs {
		if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO `group_members` (`group_id`, `user_id`) VALUES (?, ?)", id, userID); err != nil {
			return "", errors.Wrapf(err, "failed to add member %s", userID)
		}
	}
	return id, errors.Wrap(tx.Commit(), "failed to commit group")
}

// tagList is stored as a JSON array, so a tag may hold any character.
type tagList []string

func (l *tagList) Scan(value interface{}) error {
	if l == nil {
		return errors.New("'tags' cannot be nil")
	}
	var raw []byte
	switch v := value.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("expected to have string, got %T", value)
	}
	if err := json.Unmarshal(raw, (*[]string)(l)); err != nil {
		return fmt.Errorf("failed to decode 'tags' field: %v", err)
	}
	return nil
}

func newTagList(tags []string) tagList {
	l := tagList{}
	for _, tag := range tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			l = append(l, tag)
		}
	}
	return l
}

func (l tagList) Value() (driver.Value, error) {
	if l == nil {
		l = tagList{}
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, fmt.Errorf("failed to encode 'tags' field: %v", err)
	}
	return string(b), nil
}

type sqlTask struct {
	ID        string     `db:"id"`
	GroupID   string     `db:"group_id"`
	Kind      string     `db:"kind"`
	Title     string     `db:"title"`
	Tags      tagList    `db:"tags"`
	CreatedAt time.Time  `db:"created_at"`
	Deadline  *time.Time `db:"deadline"`
}

func (t sqlTask) toTask() responses.Task {
	var tags []string
	if len(t.Tags) > 0 {
		tags = []string(t.Tags)
	}
	return responses.Task{
		ID:        t.ID,
		GroupID:   t.GroupID,
		Kind:      responses.TaskKind(t.Kind),
		Title:     t.Title,
		Tags:      tags,
		CreatedAt: t.CreatedAt.UTC(),
	}
}

// CreateTask stores a task. With no assignees every group member is expected to answer.
func (r *Repository) CreateTask(ctx context.Context, t responses.Task, deadline *time.Time, assignees ...string) (string, error) {
	if t.ID == "" {
		t.ID = ulid.Make().String()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = r.now()
	}
	if deadline != nil {
		d := deadline.UTC()
		deadline = &d
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", errors.Wrap(err, "failed to begin transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(
		ctx,
		"INSERT INTO `tasks` (`id`, `group_id`, `kind`, `title`, `tags`, `created_at`, `deadline`) VALUES (?, ?, ?, ?, ?, ?, ?)",
		t.ID, t.GroupID, string(t.Kind), t.Title, newTagList(t.Tags), t.CreatedAt.UTC(), deadline,
	)
	if err != nil {
		return "", errors.Wrapf(err, "failed to create %s %q", t.Kind, t.Title)
	}
	for _, userID := range assignees {
		if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO `task_assignees` (`task_id`, `user_id`) VALUES (?, ?)", t.ID, userID); err != nil {
			return "", errors.Wrapf(err, "failed to assign %s", userID)
		}
	}
	return t.ID, errors.Wrap(tx.Commit(), "failed to commit task")
}

func (r *Repository) CancelTask(ctx context.Context, taskID string) error {
	_, err := r.db.ExecContext(ctx, "UPDATE `tasks` SET `cancelled` = 1 WHERE `id` = ?", taskID)
	return errors.Wrapf(err, "failed to cancel task %s", taskID)
}

// Outstanding lists the meetings and votes the user may still answer: open, not
// cancelled, in one of the user's groups, assigned to the user or to nobody, and
// without an answer from the user.
func (r *Repository) Outstanding(ctx context.Context, userID string, now time.Time) (responses.Outstanding, error) {
	rows := []sqlTask{}
	err := r.db.SelectContext(
		ctx,
		&rows,
		"SELECT t.`id`, t.`group_id`, t.`kind`, t.`title`, t.`tags`, t.`created_at`, t.`deadline` FROM `tasks` t "+
			"JOIN `group_members` m ON m.`group_id` = t.`group_id` AND m.`user_id` = ? "+
			"WHERE t.`cancelled` = 0 AND t.`kind` IN ('meeting', 'vote') "+
			"AND (t.`deadline` IS NULL OR t.`deadline` > ?) "+
			"AND (NOT EXISTS (SELECT 1 FROM `task_assignees` a WHERE a.`task_id` = t.`id`) "+
			"OR EXISTS (SELECT 1 FROM `task_assignees` a WHERE a.`task_id` = t.`id` AND a.`user_id` = ?)) "+
			"AND NOT EXISTS (SELECT 1 FROM `task_responses` p WHERE p.`task_id` = t.`id` AND p.`user_id` = ?) "+
			"ORDER BY t.`created_at` ASC, t.`id` ASC",
		userID, now.UTC(), userID, userID,
	)
	if err != nil {
		return responses.Outstanding{}, errors.Wrapf(err, "failed to load outstanding tasks of %s", userID)
	}

	tasks := make([]responses.Task, 0, len(rows))
	for _, row := range rows {
		tasks = append(tasks, row.toTask())
	}
	return responses.NewOutstanding(tasks), nil
}

func (r *Repository) RecordResponse(ctx context.Context, taskID, userID, answer string) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, errors.Wrap(err, "failed to begin transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := r.now()
	res, err := tx.ExecContext(
		ctx,
		"INSERT OR IGNORE INTO `task_responses` (`task_id`, `user_id`, `answer`, `created_at`) VALUES (?, ?, ?, ?)",
		taskID, userID, answer, now,
	)
	if err != nil {
		return false, errors.Wrapf(err, "failed to record response on %s", taskID)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to read affected rows")
	}
	if affected == 0 {
		return false, nil
	}

	_, err = tx.ExecContext(
		ctx,
		"INSERT INTO `task_logs` (`id`, `task_id`, `user_id`, `type`, `description`, `created_at`) VALUES (?, ?, ?, ?, ?, ?)",
		ulid.Make().String(), taskID, userID, TaskLogResponded, answer, now,
	)
	if err != nil {
		return false, errors.Wrapf(err, "failed to log response on %s", taskID)
	}
	return true, errors.Wrap(tx.Commit(), "failed to commit response")
}

// Answer returns the user's recorded answer on a task.
func (r *Repository) Answer(ctx context.Context, taskID, userID string) (string, bool, error) {
	var answer string
	err := r.db.GetContext(ctx, &answer, "SELECT `answer` FROM `task_responses` WHERE `task_id` = ? AND `user_id` = ?", taskID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, errors.Wrap(err, "failed to load answer")
	}
	return answer, true, nil
}
