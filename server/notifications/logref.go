package notifications

import (
	"fmt"
	"regexp"
)

type LogKind string

const (
	LogKindMeeting LogKind = "MeetingLog"
	LogKindTodo    LogKind = "TodoLog"
	LogKindGroup   LogKind = "GroupLog"
	LogKindAccount LogKind = "AccountLog"
)

// LogRef points at the domain log entry that caused a notification. It is one of
// MeetingLog, TodoLog, GroupLog or AccountLog; a nil LogRef means none.
type LogRef interface {
	Kind() LogKind
	ID() string
	String() string
	isLogRef()
}

type MeetingLog string
type TodoLog string
type GroupLog string
type AccountLog string

func (l MeetingLog) Kind() LogKind { return LogKindMeeting }
func (l TodoLog) Kind() LogKind    { return LogKindTodo }
func (l GroupLog) Kind() LogKind   { return LogKindGroup }
func (l AccountLog) Kind() LogKind { return LogKindAccount }

func (l MeetingLog) ID() string { return string(l) }
func (l TodoLog) ID() string    { return string(l) }
func (l GroupLog) ID() string   { return string(l) }
func (l AccountLog) ID() string { return string(l) }

func (l MeetingLog) String() string { return formatRef(l) }
func (l TodoLog) String() string    { return formatRef(l) }
func (l GroupLog) String() string   { return formatRef(l) }
func (l AccountLog) String() string { return formatRef(l) }

func (l MeetingLog) MarshalText() ([]byte, error) { return []byte(formatRef(l)), nil }
func (l TodoLog) MarshalText() ([]byte, error)    { return []byte(formatRef(l)), nil }
func (l GroupLog) MarshalText() ([]byte, error)   { return []byte(formatRef(l)), nil }
func (l AccountLog) MarshalText() ([]byte, error) { return []byte(formatRef(l)), nil }

func (MeetingLog) isLogRef() {}
func (TodoLog) isLogRef()    {}
func (GroupLog) isLogRef()   {}
func (AccountLog) isLogRef() {}

func formatRef(l LogRef) string {
	return string(l.Kind()) + "(" + l.ID() + ")"
}

// FormatLogRef is the storage form of a reference, "Kind(id)" or empty for none.
func FormatLogRef(ref LogRef) string {
	if ref == nil {
		return ""
	}
	return ref.String()
}

var logRefRegEx = regexp.MustCompile(`^([A-Za-z]+)\(([^()]+)\)$`)

func ParseLogRef(raw string) (LogRef, error) {
	if raw == "" {
		return nil, nil
	}
	matches := logRefRegEx.FindStringSubmatch(raw)
	if len(matches) == 0 {
		return nil, fmt.Errorf("can't parse log reference: %q", raw)
	}
	id := matches[2]
	switch LogKind(matches[1]) {
	case LogKindMeeting:
		return MeetingLog(id), nil
	case LogKindTodo:
		return TodoLog(id), nil
	case LogKindGroup:
		return GroupLog(id), nil
	case LogKindAccount:
		return AccountLog(id), nil
	}
	return nil, fmt.Errorf("unknown log reference kind: %q", matches[1])
}
