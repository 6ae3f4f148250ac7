package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"time"

	"github.com/grassrootza/grassroot-platform-sub003/server/directory"
	"github.com/grassrootza/grassroot-platform-sub003/server/responses"
)

func (s *APITestSuite) inbound(method, path string, params url.Values) *httptest.ResponseRecorder {
	var req *http.Request
	if method == http.MethodPost {
		req = httptest.NewRequest(method, path, strings.NewReader(params.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, path+"?"+params.Encode(), nil)
	}
	w := httptest.NewRecorder()
	s.al.router.ServeHTTP(w, req)
	return w
}

func (s *APITestSuite) sentNotification(message, logRef string) testNotification {
	body := fmt.Sprintf(`{"user_id":%q,"message":%q,"log_ref":%q}`, s.user.ID, message, logRef)
	w, n := s.dispatch(body)
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	s.Require().NotNil(n.SendingKey)
	return n
}

func (s *APITestSuite) TestReceiptDelivered() {
	n := s.sentNotification("Meeting at the clinic tomorrow", "")

	w := s.inbound(http.MethodGet, "/api/inbound/sms/receipt", url.Values{
		"fn": {"Grassroot"},
		"tn": {"27821234567"},
		"sc": {"1"},
		"rf": {*n.SendingKey},
		"st": {"1"},
		"ts": {"1685613600"},
	})

	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.JSONEq(`{"data":"ok"}`, w.Body.String())

	s.Require().NoError(s.receipts.Close())
	details := s.details(n.ID)
	s.Equal("DELIVERED", details.Status)
	s.Nil(details.FailureReason)
	s.Require().Len(details.History, 2)
	s.Equal("SENT", details.History[1].From)
	s.Equal("DELIVERED", details.History[1].To)
}

func (s *APITestSuite) TestReceiptIsIdempotent() {
	n := s.sentNotification("hi", "")
	params := url.Values{"fn": {"Grassroot"}, "rf": {*n.SendingKey}, "st": {"1"}}

	for i := 0; i < 3; i++ {
		w := s.inbound(http.MethodPost, "/api/inbound/sms/receipt", params)
		s.Require().Equal(http.StatusOK, w.Code)
	}
	w := s.inbound(http.MethodPost, "/api/inbound/sms/receipt", url.Values{"fn": {"Grassroot"}, "rf": {*n.SendingKey}, "st": {"2"}})
	s.Require().Equal(http.StatusOK, w.Code)

	s.Require().NoError(s.receipts.Close())
	details := s.details(n.ID)
	s.Equal("DELIVERED", details.Status)
	s.Len(details.History, 2)
	stats := s.receipts.Stats()
	s.EqualValues(1, stats.Applied)
	s.EqualValues(3, stats.Ignored)
}

func (s *APITestSuite) TestReceiptDeliveryFailed() {
	n := s.sentNotification("hi", "")

	w := s.inbound(http.MethodGet, "/api/inbound/sms/receipt", url.Values{"fn": {"Grassroot"}, "rf": {*n.SendingKey}, "st": {"16"}})

	s.Require().Equal(http.StatusOK, w.Code)
	s.Require().NoError(s.receipts.Close())
	details := s.details(n.ID)
	s.Equal("DELIVERY_FAILED", details.Status)
	s.Require().NotNil(details.FailureReason)
	s.Equal("Message delivery failed: REJECTED_BY_SMSC", *details.FailureReason)
}

func (s *APITestSuite) TestReceiptIntermediateStatusKeepsSent() {
	n := s.sentNotification("hi", "")

	w := s.inbound(http.MethodGet, "/api/inbound/sms/receipt", url.Values{"fn": {"Grassroot"}, "rf": {*n.SendingKey}, "st": {"8"}})

	s.Require().Equal(http.StatusOK, w.Code)
	s.Require().NoError(s.receipts.Close())
	s.Equal("SENT", s.details(n.ID).Status)
}

func (s *APITestSuite) TestReceiptUnknownReference() {
	w := s.inbound(http.MethodGet, "/api/inbound/sms/receipt", url.Values{"fn": {"Grassroot"}, "rf": {"not-ours"}, "st": {"1"}})

	s.Equal(http.StatusOK, w.Code)
	s.JSONEq(`{"data":"ok"}`, w.Body.String())
}

func (s *APITestSuite) TestReceiptBadRequest() {
	testCases := []struct {
		name   string
		params url.Values
	}{
		{
			name:   "missing sender",
			params: url.Values{"rf": {"key-1"}, "st": {"1"}},
		},
		{
			name:   "blank sender",
			params: url.Values{"fn": {" "}, "rf": {"key-1"}, "st": {"1"}},
		},
		{
			name:   "missing reference",
			params: url.Values{"fn": {"Grassroot"}, "st": {"1"}},
		},
		{
			name:   "blank reference",
			params: url.Values{"fn": {"Grassroot"}, "rf": {"  "}, "st": {"1"}},
		},
		{
			name:   "missing status",
			params: url.Values{"fn": {"Grassroot"}, "rf": {"key-1"}},
		},
		{
			name:   "status not a number",
			params: url.Values{"fn": {"Grassroot"}, "rf": {"key-1"}, "st": {"delivered"}},
		},
	}
	for _, tc := range testCases {
		s.Run(tc.name, func() {
			w := s.inbound(http.MethodGet, "/api/inbound/sms/receipt", tc.params)

			s.Equal(http.StatusBadRequest, w.Code)
			s.Equal("ERR_CODE_INVALID_REQUEST", s.decode(w).Errors[0].Code)
		})
	}
}

func (s *APITestSuite) TestReceiptQueueClosed() {
	s.Require().NoError(s.receipts.Close())

	w := s.inbound(http.MethodGet, "/api/inbound/sms/receipt", url.Values{"fn": {"Grassroot"}, "rf": {"key-1"}, "st": {"1"}})

	s.Equal(http.StatusServiceUnavailable, w.Code)
	s.Equal("ERR_CODE_QUEUE_FULL", s.decode(w).Errors[0].Code)
}

func (s *APITestSuite) TestInboundSecret() {
	s.config.API.InboundSecret = "s3cret"
	params := url.Values{"fn": {"Grassroot"}, "rf": {"key-1"}, "st": {"1"}}

	w := s.inbound(http.MethodGet, "/api/inbound/sms/receipt", params)
	s.Equal(http.StatusForbidden, w.Code)

	params.Set("secret", "wrong")
	w = s.inbound(http.MethodGet, "/api/inbound/sms/receipt", params)
	s.Equal(http.StatusForbidden, w.Code)

	params.Set("secret", "s3cret")
	w = s.inbound(http.MethodGet, "/api/inbound/sms/receipt", params)
	s.Equal(http.StatusOK, w.Code)

	w = s.inbound(http.MethodGet, "/api/inbound/sms/reply", url.Values{"fn": {"0821234567"}, "ms": {"yes"}})
	s.Equal(http.StatusForbidden, w.Code)
}

func (s *APITestSuite) decodeOutcome(w *httptest.ResponseRecorder) responses.Outcome {
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	outcome := responses.Outcome{}
	s.Require().NoError(json.Unmarshal(s.decode(w).Data, &outcome))
	return outcome
}

func (s *APITestSuite) createTask(groupID string, kind responses.TaskKind, title string, created time.Time, tags ...string) string {
	id, err := s.dir.CreateTask(context.Background(), responses.Task{
		GroupID:   groupID,
		Kind:      kind,
		Title:     title,
		Tags:      tags,
		CreatedAt: created,
	}, nil)
	s.Require().NoError(err)
	return id
}

func (s *APITestSuite) TestReplyGoesToEarliestMeeting() {
	ctx := context.Background()
	groupID, err := s.dir.CreateGroup(ctx, "Ward 12", s.user.ID)
	s.Require().NoError(err)
	now := time.Now().UTC()
	meeting := s.createTask(groupID, responses.TaskMeeting, "Clinic meeting", now.Add(-2*time.Hour))
	vote := s.createTask(groupID, responses.TaskVote, "Budget vote", now.Add(-3*time.Hour))

	outcome := s.decodeOutcome(s.inbound(http.MethodPost, "/api/inbound/sms/reply", url.Values{"fn": {"+27 82 123 4567"}, "ms": {" Yes "}}))

	s.Equal(responses.OutcomeMeetingRSVP, outcome.Kind)
	s.Equal(meeting, outcome.TaskID)
	answer, found, err := s.dir.Answer(ctx, meeting, s.user.ID)
	s.Require().NoError(err)
	s.True(found)
	s.Equal("yes", answer)
	_, found, err = s.dir.Answer(ctx, vote, s.user.ID)
	s.Require().NoError(err)
	s.False(found)
}

func (s *APITestSuite) TestReplyMatchesVoteTag() {
	ctx := context.Background()
	groupID, err := s.dir.CreateGroup(ctx, "Ward 12", s.user.ID)
	s.Require().NoError(err)
	vote := s.createTask(groupID, responses.TaskVote, "Venue", time.Now().UTC().Add(-time.Hour), "north", "south")

	outcome := s.decodeOutcome(s.inbound(http.MethodGet, "/api/inbound/sms/incoming", url.Values{"fn": {"0821234567"}, "ms": {"South"}}))

	s.Equal(responses.OutcomeTaggedVote, outcome.Kind)
	s.Equal(vote, outcome.TaskID)
	s.Equal("south", outcome.Answer)
}

func (s *APITestSuite) TestReplyUnresolved() {
	ctx := context.Background()
	groupID, err := s.dir.CreateGroup(ctx, "Ward 12", s.user.ID)
	s.Require().NoError(err)
	meeting := s.createTask(groupID, responses.TaskMeeting, "Clinic meeting", time.Now().UTC().Add(-time.Hour))
	taskLog, err := s.dir.TaskLog(ctx, meeting, "", "CREATED", "")
	s.Require().NoError(err)
	s.sentNotification("Meeting at the clinic tomorrow", "MeetingLog("+taskLog+")")

	outcome := s.decodeOutcome(s.inbound(http.MethodGet, "/api/inbound/sms/reply", url.Values{"fn": {"0821234567"}, "ms": {"purple"}}))

	s.Equal(responses.OutcomeUnresolved, outcome.Kind)
	sent := s.gateway.messages()
	s.Require().Len(sent, 2)
	s.Equal(responses.DefaultReplyFailureMessage, sent[1].Body)

	userLogs, err := s.dir.UserLogs(ctx, s.user.ID)
	s.Require().NoError(err)
	s.Require().Len(userLogs, 1)
	s.Equal(responses.UserLogUnexpectedSMS, userLogs[0].Type)
	s.Equal("purple", userLogs[0].Description)

	groupLogs, err := s.dir.GroupLogs(ctx, groupID)
	s.Require().NoError(err)
	s.Require().Len(groupLogs, 1)
	s.Equal(responses.GroupLogUnknownResponse, groupLogs[0].Type)
	s.Equal("From user: purple; likely responding to: Meeting at the clinic tomorrow", groupLogs[0].Description)
}

func (s *APITestSuite) TestReplyUnknownSender() {
	outcome := s.decodeOutcome(s.inbound(http.MethodGet, "/api/inbound/sms/reply", url.Values{"fn": {"0830000000"}, "ms": {"yes"}}))

	s.Equal(responses.OutcomeUnknownSender, outcome.Kind)
	s.Empty(s.gateway.messages())
}

func (s *APITestSuite) TestReplyBadRequest() {
	for _, params := range []url.Values{
		{"ms": {"yes"}},
		{"fn": {"0821234567"}},
		{"fn": {"0821234567"}, "ms": {"   "}},
	} {
		w := s.inbound(http.MethodGet, "/api/inbound/sms/reply", params)
		s.Equal(http.StatusBadRequest, w.Code, params.Encode())
	}
}

func (s *APITestSuite) TestReplyAlreadyAnswered() {
	ctx := context.Background()
	other := &directory.User{MSISDN: "27829999999"}
	s.Require().NoError(s.dir.CreateUser(ctx, other))
	groupID, err := s.dir.CreateGroup(ctx, "Ward 12", s.user.ID, other.ID)
	s.Require().NoError(err)
	meeting := s.createTask(groupID, responses.TaskMeeting, "Clinic meeting", time.Now().UTC().Add(-time.Hour))

	first := s.decodeOutcome(s.inbound(http.MethodGet, "/api/inbound/sms/reply", url.Values{"fn": {"0829999999"}, "ms": {"no"}}))
	s.Equal(meeting, first.TaskID)

	// the meeting is answered, nothing else is outstanding
	second := s.decodeOutcome(s.inbound(http.MethodGet, "/api/inbound/sms/reply", url.Values{"fn": {"0829999999"}, "ms": {"yes"}}))
	s.Equal(responses.OutcomeUnresolved, second.Kind)

	answer, found, err := s.dir.Answer(ctx, meeting, other.ID)
	s.Require().NoError(err)
	s.True(found)
	s.Equal("no", answer)
}
