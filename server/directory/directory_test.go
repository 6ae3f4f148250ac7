package directory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	dirmigration "github.com/grassrootza/grassroot-platform-sub003/db/migration/directory"
	"github.com/grassrootza/grassroot-platform-sub003/db/sqlite"
	"github.com/grassrootza/grassroot-platform-sub003/server/directory"
	"github.com/grassrootza/grassroot-platform-sub003/server/notifications"
	"github.com/grassrootza/grassroot-platform-sub003/server/responses"
	"github.com/grassrootza/grassroot-platform-sub003/share/logger"
)

var now = time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)

type DirectoryTestSuite struct {
	suite.Suite
	repo *directory.Repository
	user *directory.User
}

func (s *DirectoryTestSuite) SetupTest() {
	db, err := sqlite.New(sqlite.InMemory, dirmigration.Files, sqlite.DataSourceOptions{})
	s.Require().NoError(err)
	s.repo = directory.NewRepository(db, logger.Discard())

	s.user = &directory.User{DisplayName: "Thandi", MSISDN: "27821234567", Email: "thandi@example.com", ChannelPreference: "push"}
	s.Require().NoError(s.repo.CreateUser(context.Background(), s.user))
}

func (s *DirectoryTestSuite) TestContact() {
	contact, found, err := s.repo.Contact(context.Background(), s.user.ID)

	s.NoError(err)
	s.True(found)
	s.Equal(notifications.Contact{
		UserID:    s.user.ID,
		MSISDN:    "27821234567",
		Email:     "thandi@example.com",
		Preferred: notifications.ChannelPush,
	}, contact)

	_, found, err = s.repo.Contact(context.Background(), "nobody")
	s.NoError(err)
	s.False(found)
}

func (s *DirectoryTestSuite) TestUserByMSISDN() {
	u, found, err := s.repo.UserByMSISDN(context.Background(), "27821234567")

	s.NoError(err)
	s.True(found)
	s.Equal(responses.User{ID: s.user.ID, DisplayName: "Thandi", MSISDN: "27821234567"}, u)

	_, found, err = s.repo.UserByMSISDN(context.Background(), "0821234567")
	s.NoError(err)
	s.False(found)
}

func (s *DirectoryTestSuite) TestDuplicateMSISDN() {
	err := s.repo.CreateUser(context.Background(), &directory.User{MSISDN: "27821234567"})
	s.Error(err)
}

func (s *DirectoryTestSuite) TestOutstanding() {
	ctx := context.Background()
	other := &directory.User{MSISDN: "27829999999"}
	s.Require().NoError(s.repo.CreateUser(ctx, other))

	groupID, err := s.repo.CreateGroup(ctx, "Ward 12", s.user.ID, other.ID)
	s.Require().NoError(err)
	foreignGroup, err := s.repo.CreateGroup(ctx, "Elsewhere", other.ID)
	s.Require().NoError(err)

	past := now.Add(-time.Hour)
	future := now.Add(24 * time.Hour)
	meeting := s.createTask(groupID, responses.TaskMeeting, "Clinic meeting", now.Add(-2*time.Hour), &future)
	vote := s.createTask(groupID, responses.TaskVote, "Budget vote", now.Add(-3*time.Hour), nil)
	tagged := s.createTask(groupID, responses.TaskVote, "Venue", now.Add(-4*time.Hour), nil, "hall", " church ")
	s.createTask(groupID, responses.TaskTodo, "Clean up", now.Add(-5*time.Hour), nil)
	s.createTask(groupID, responses.TaskMeeting, "Closed meeting", now.Add(-6*time.Hour), &past)
	s.createTask(foreignGroup, responses.TaskMeeting, "Not my group", now.Add(-time.Hour), nil)
	_, err = s.repo.CreateTask(ctx, responses.Task{GroupID: groupID, Kind: responses.TaskVote, Title: "Committee only", CreatedAt: now}, nil, other.ID)
	s.Require().NoError(err)
	cancelled := s.createTask(groupID, responses.TaskMeeting, "Cancelled", now.Add(-time.Hour), nil)
	s.Require().NoError(s.repo.CancelTask(ctx, cancelled))

	o, err := s.repo.Outstanding(ctx, s.user.ID, now)
	s.Require().NoError(err)
	s.Equal([]string{meeting}, taskIDs(o.Meetings))
	s.Equal([]string{vote}, taskIDs(o.UntaggedVotes))
	s.Require().Equal([]string{tagged}, taskIDs(o.TaggedVotes))
	s.Equal([]string{"hall", "church"}, o.TaggedVotes[0].Tags)

	recorded, err := s.repo.RecordResponse(ctx, meeting, s.user.ID, "yes")
	s.NoError(err)
	s.True(recorded)

	o, err = s.repo.Outstanding(ctx, s.user.ID, now)
	s.NoError(err)
	s.Empty(o.Meetings)
}

func (s *DirectoryTestSuite) TestTagsKeepCommas() {
	ctx := context.Background()
	now := time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)
	groupID, err := s.repo.CreateGroup(ctx, "Ward 12", s.user.ID)
	s.Require().NoError(err)

	tagged := s.createTask(groupID, responses.TaskVote, "Venue", now.Add(-2*time.Hour), nil, "hall, upstairs", "church")
	blank := s.createTask(groupID, responses.TaskVote, "Budget", now.Add(-time.Hour), nil, " ", "")

	o, err := s.repo.Outstanding(ctx, s.user.ID, now)
	s.Require().NoError(err)
	s.Require().Equal([]string{tagged}, taskIDs(o.TaggedVotes))
	s.Equal([]string{"hall, upstairs", "church"}, o.TaggedVotes[0].Tags)
	s.Equal([]string{blank}, taskIDs(o.UntaggedVotes))
}

func (s *DirectoryTestSuite) TestRecordResponseOnce() {
	ctx := context.Background()
	groupID, err := s.repo.CreateGroup(ctx, "Ward 12", s.user.ID)
	s.Require().NoError(err)
	vote := s.createTask(groupID, responses.TaskVote, "Budget vote", now, nil)

	recorded, err := s.repo.RecordResponse(ctx, vote, s.user.ID, "no")
	s.NoError(err)
	s.True(recorded)

	recorded, err = s.repo.RecordResponse(ctx, vote, s.user.ID, "yes")
	s.NoError(err)
	s.False(recorded)

	answer, found, err := s.repo.Answer(ctx, vote, s.user.ID)
	s.NoError(err)
	s.True(found)
	s.Equal("no", answer)
}

func (s *DirectoryTestSuite) TestGroupForLog() {
	ctx := context.Background()
	groupID, err := s.repo.CreateGroup(ctx, "Ward 12", s.user.ID)
	s.Require().NoError(err)
	meeting := s.createTask(groupID, responses.TaskMeeting, "Clinic meeting", now, nil)

	taskLog, err := s.repo.TaskLog(ctx, meeting, "", "CREATED", "")
	s.Require().NoError(err)
	s.Require().NoError(s.repo.GroupLog(ctx, groupID, s.user.ID, "MEMBER_ADDED", ""))
	groupLogs, err := s.repo.GroupLogs(ctx, groupID)
	s.Require().NoError(err)
	s.Require().Len(groupLogs, 1)
	accountLog, err := s.repo.AccountLog(ctx, "acc-1", groupID, "GROUP_ADDED", "")
	s.Require().NoError(err)
	bareAccountLog, err := s.repo.AccountLog(ctx, "acc-1", "", "BILLING", "")
	s.Require().NoError(err)

	testCases := []struct {
		name  string
		ref   notifications.LogRef
		found bool
	}{
		{name: "meeting", ref: notifications.MeetingLog(taskLog), found: true},
		{name: "todo", ref: notifications.TodoLog(taskLog), found: true},
		{name: "group", ref: notifications.GroupLog(groupLogs[0].ID), found: true},
		{name: "account with group", ref: notifications.AccountLog(accountLog), found: true},
		{name: "account without group", ref: notifications.AccountLog(bareAccountLog), found: false},
		{name: "missing", ref: notifications.GroupLog("missing"), found: false},
		{name: "none", ref: nil, found: false},
	}
	for _, tc := range testCases {
		s.Run(tc.name, func() {
			got, found, err := s.repo.GroupForLog(ctx, tc.ref)
			s.NoError(err)
			s.Equal(tc.found, found)
			if tc.found {
				s.Equal(groupID, got)
			}
		})
	}
}

func (s *DirectoryTestSuite) TestUserLogs() {
	ctx := context.Background()
	s.Require().NoError(s.repo.UserLog(ctx, s.user.ID, responses.UserLogUnexpectedSMS, "purple"))

	logs, err := s.repo.UserLogs(ctx, s.user.ID)
	s.NoError(err)
	s.Require().Len(logs, 1)
	s.Equal(responses.UserLogUnexpectedSMS, logs[0].Type)
	s.Equal("purple", logs[0].Description)
}

func (s *DirectoryTestSuite) createTask(groupID string, kind responses.TaskKind, title string, created time.Time, deadline *time.Time, tags ...string) string {
	id, err := s.repo.CreateTask(context.Background(), responses.Task{
		GroupID:   groupID,
		Kind:      kind,
		Title:     title,
		Tags:      tags,
		CreatedAt: created,
	}, deadline)
	s.Require().NoError(err)
	return id
}

func taskIDs(tasks []responses.Task) []string {
	res := []string{}
	for _, t := range tasks {
		res = append(res, t.ID)
	}
	return res
}

func TestDirectoryTestSuite(t *testing.T) {
	suite.Run(t, new(DirectoryTestSuite))
}
