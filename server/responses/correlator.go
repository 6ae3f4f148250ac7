package responses

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/grassrootza/grassroot-platform-sub003/server/notifications"
	"github.com/grassrootza/grassroot-platform-sub003/share/logger"
)

const (
	DefaultDiagnosticWindow    = 6 * time.Hour
	DefaultDiagnosticDepth     = 5
	DefaultPhoneCacheTTL       = 10 * time.Minute
	DefaultReplyFailureMessage = "Sorry, we could not understand your reply. Please answer yes, no or maybe, or with one of the options you were sent."
)

type User struct {
	ID          string `db:"id"`
	DisplayName string `db:"display_name"`
	MSISDN      string `db:"msisdn"`
}

type Users interface {
	UserByMSISDN(ctx context.Context, msisdn string) (User, bool, error)
}

type Tasks interface {
	Outstanding(ctx context.Context, userID string, now time.Time) (Outstanding, error)
	// RecordResponse stores the answer once; it reports false when the user had already answered.
	RecordResponse(ctx context.Context, taskID, userID, answer string) (bool, error)
}

type ActivityLog interface {
	UserLog(ctx context.Context, userID, logType, description string) error
	GroupLog(ctx context.Context, groupID, userID, logType, description string) error
	// GroupForLog resolves the group a notification's log entry belongs to, if any.
	GroupForLog(ctx context.Context, ref notifications.LogRef) (string, bool, error)
}

// NotificationHistory is the read side of notifications.Store used for diagnostics.
type NotificationHistory interface {
	List(ctx context.Context, filter notifications.ListFilter) ([]*notifications.Notification, error)
}

// Notifier is satisfied by *notifications.Dispatcher.
type Notifier interface {
	Send(ctx context.Context, req notifications.Request) (*notifications.Notification, error)
}

type OutcomeKind string

const (
	OutcomeMeetingRSVP   OutcomeKind = "MEETING_RSVP"
	OutcomeVote          OutcomeKind = "VOTE"
	OutcomeTaggedVote    OutcomeKind = "TAGGED_VOTE"
	OutcomeUnresolved    OutcomeKind = "UNRESOLVED"
	OutcomeUnknownSender OutcomeKind = "UNKNOWN_SENDER"
)

type Outcome struct {
	Kind   OutcomeKind `json:"kind"`
	UserID string      `json:"user_id,omitempty"`
	TaskID string      `json:"task_id,omitempty"`
	Answer string      `json:"answer,omitempty"`
}

type Options struct {
	CountryCode         string
	DiagnosticWindow    time.Duration
	DiagnosticDepth     int
	ReplyFailureMessage string
	PhoneCacheTTL       time.Duration
	Now                 func() time.Time
}

// Correlator matches a free-text reply to the one outstanding task it most likely answers.
type Correlator struct {
	users    Users
	tasks    Tasks
	activity ActivityLog
	history  NotificationHistory
	notifier Notifier
	options  Options
	phones   *cache.Cache
	logger   *logger.Logger
}

func NewCorrelator(
	l *logger.Logger,
	users Users,
	tasks Tasks,
	activity ActivityLog,
	history NotificationHistory,
	notifier Notifier,
	options Options,
) *Correlator {
	if options.CountryCode == "" {
		options.CountryCode = DefaultCountryCode
	}
	if options.DiagnosticWindow <= 0 {
		options.DiagnosticWindow = DefaultDiagnosticWindow
	}
	if options.DiagnosticDepth <= 0 {
		options.DiagnosticDepth = DefaultDiagnosticDepth
	}
	if options.ReplyFailureMessage == "" {
		options.ReplyFailureMessage = DefaultReplyFailureMessage
	}
	if options.PhoneCacheTTL <= 0 {
		options.PhoneCacheTTL = DefaultPhoneCacheTTL
	}
	if options.Now == nil {
		options.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Correlator{
		users:    users,
		tasks:    tasks,
		activity: activity,
		history:  history,
		notifier: notifier,
		options:  options,
		phones:   cache.New(options.PhoneCacheTTL, 2*options.PhoneCacheTTL),
		logger:   l,
	}
}

// Correlate records rawMessage against at most one outstanding task of the sender.
// An unresolvable reply is not an error: the sender is told and the groups that
// recently messaged them get a diagnostic log entry.
func (c *Correlator) Correlate(ctx context.Context, phone, rawMessage string) (Outcome, error) {
	user, found, err := c.resolveUser(ctx, phone)
	if err != nil {
		return Outcome{}, err
	}
	if !found {
		c.logger.Infof("reply from unknown number %q ignored", phone)
		return Outcome{Kind: OutcomeUnknownSender}, nil
	}

	msg := Normalize(rawMessage)
	outstanding, err := c.tasks.Outstanding(ctx, user.ID, c.options.Now())
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to load outstanding tasks of %s: %w", user.ID, err)
	}

	answer, isToken := Classify(msg)
	switch {
	case isToken && len(outstanding.Meetings) > 0:
		return c.record(ctx, user, outstanding.Meetings[0], string(answer), OutcomeMeetingRSVP)
	case isToken && len(outstanding.UntaggedVotes) > 0:
		return c.record(ctx, user, outstanding.UntaggedVotes[0], string(answer), OutcomeVote)
	}
	for _, vote := range outstanding.TaggedVotes {
		if tag, ok := vote.MatchTag(msg); ok {
			return c.record(ctx, user, vote, tag, OutcomeTaggedVote)
		}
	}

	c.handleUnresolved(ctx, user, rawMessage)
	return Outcome{Kind: OutcomeUnresolved, UserID: user.ID}, nil
}

func (c *Correlator) record(ctx context.Context, user User, task Task, answer string, kind OutcomeKind) (Outcome, error) {
	recorded, err := c.tasks.RecordResponse(ctx, task.ID, user.ID, answer)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to record %q on %s %s: %w", answer, task.Kind, task.ID, err)
	}
	if !recorded {
		c.logger.Infof("user %s already answered %s %s", user.ID, task.Kind, task.ID)
	} else {
		c.logger.Debugf("user %s answered %q on %s %s", user.ID, answer, task.Kind, task.ID)
	}
	return Outcome{Kind: kind, UserID: user.ID, TaskID: task.ID, Answer: answer}, nil
}

func (c *Correlator) resolveUser(ctx context.Context, phone string) (User, bool, error) {
	msisdn, err := NormalizeMSISDN(phone, c.options.CountryCode)
	if err != nil {
		c.logger.Debugf("%v", err)
		return User{}, false, nil
	}
	if cached, found := c.phones.Get(msisdn); found {
		return cached.(User), true, nil
	}

	user, found, err := c.users.UserByMSISDN(ctx, msisdn)
	if err != nil {
		return User{}, false, fmt.Errorf("failed to look up user by phone: %w", err)
	}
	if found {
		c.phones.SetDefault(msisdn, user)
	}
	return user, found, nil
}
