package responses

import (
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

type TaskKind string

const (
	TaskMeeting TaskKind = "meeting"
	TaskVote    TaskKind = "vote"
	TaskTodo    TaskKind = "todo"
)

// Task is a meeting, vote or todo that may be waiting for a reply.
type Task struct {
	ID        string    `json:"id"`
	GroupID   string    `json:"group_id"`
	Kind      TaskKind  `json:"kind"`
	Title     string    `json:"title"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// MatchTag returns the task's own spelling of the tag that equals msg under case folding.
func (t Task) MatchTag(msg string) (string, bool) {
	folded := cases.Fold().String(strings.TrimSpace(msg))
	if folded == "" {
		return "", false
	}
	for _, tag := range t.Tags {
		if cases.Fold().String(strings.TrimSpace(tag)) == folded {
			return tag, true
		}
	}
	return "", false
}

// Outstanding holds what a user can still reply to. Every list is oldest first.
type Outstanding struct {
	Meetings      []Task
	UntaggedVotes []Task
	TaggedVotes   []Task
}

// NewOutstanding sorts tasks by creation time, then id, and splits them by kind.
// Todos are dropped since they take no yes/no reply.
func NewOutstanding(tasks []Task) Outstanding {
	sorted := make([]Task, len(tasks))
	copy(sorted, tasks)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].ID < sorted[j].ID
		}
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	o := Outstanding{}
	for _, t := range sorted {
		switch {
		case t.Kind == TaskMeeting:
			o.Meetings = append(o.Meetings, t)
		case t.Kind == TaskVote && len(t.Tags) == 0:
			o.UntaggedVotes = append(o.UntaggedVotes, t)
		case t.Kind == TaskVote:
			o.TaggedVotes = append(o.TaggedVotes, t)
		}
	}
	return o
}

func (o Outstanding) Empty() bool {
	return len(o.Meetings) == 0 && len(o.UntaggedVotes) == 0 && len(o.TaggedVotes) == 0
}
