package responses

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/grassrootza/grassroot-platform-sub003/server/notifications"
)

const (
	UserLogUnexpectedSMS    = "SENT_UNEXPECTED_SMS_MESSAGE"
	GroupLogUnknownResponse = "USER_SENT_UNKNOWN_RESPONSE"

	maxLogDescription = 255
)

// handleUnresolved runs every step on a best-effort basis; failures are only logged.
func (c *Correlator) handleUnresolved(ctx context.Context, user User, rawMessage string) {
	msg := strings.TrimSpace(rawMessage)
	c.logger.Infof("could not match reply %q from user %s", msg, user.ID)

	// Looked up first so the failure notice sent below is not among them.
	prompts := c.likelyPrompts(ctx, user)

	_, err := c.notifier.Send(ctx, notifications.Request{
		UserID:  user.ID,
		Message: c.options.ReplyFailureMessage,
		Channel: notifications.ChannelSMS,
	})
	if err != nil {
		c.logger.Errorf("failed to notify user %s about unmatched reply: %v", user.ID, err)
	}

	if err := c.activity.UserLog(ctx, user.ID, UserLogUnexpectedSMS, truncate(msg, maxLogDescription)); err != nil {
		c.logger.Errorf("failed to write user log for %s: %v", user.ID, err)
	}

	for _, entry := range prompts {
		description := truncate(fmt.Sprintf("From user: %s; likely responding to: %s", msg, entry.message), maxLogDescription)
		if err := c.activity.GroupLog(ctx, entry.groupID, user.ID, GroupLogUnknownResponse, description); err != nil {
			c.logger.Errorf("failed to write group log for group %s: %v", entry.groupID, err)
		}
	}
}

type prompt struct {
	groupID string
	message string
}

// likelyPrompts returns, per group, the latest message the user recently received from it.
func (c *Correlator) likelyPrompts(ctx context.Context, user User) []prompt {
	recent, err := c.history.List(ctx, notifications.ListFilter{
		UserID:       user.ID,
		Statuses:     []notifications.Status{notifications.StatusSent, notifications.StatusDelivered},
		CreatedSince: c.options.Now().Add(-c.options.DiagnosticWindow),
		WithLogRef:   true,
		NewestFirst:  true,
		Limit:        c.options.DiagnosticDepth,
	})
	if err != nil {
		c.logger.Errorf("failed to load recent notifications of %s: %v", user.ID, err)
		return nil
	}

	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].CreatedAt.Before(recent[j].CreatedAt)
	})

	var prompts []prompt
	index := map[string]int{}
	for _, n := range recent {
		if n.LogRef == nil {
			continue
		}
		groupID, found, err := c.activity.GroupForLog(ctx, n.LogRef)
		if err != nil {
			c.logger.Errorf("failed to resolve group of %s: %v", n.LogRef, err)
			continue
		}
		if !found {
			continue
		}
		if i, seen := index[groupID]; seen {
			prompts[i].message = n.Message
			continue
		}
		index[groupID] = len(prompts)
		prompts = append(prompts, prompt{groupID: groupID, message: n.Message})
	}
	return prompts
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
