package responses

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type Answer string

const (
	AnswerYes   Answer = "yes"
	AnswerNo    Answer = "no"
	AnswerMaybe Answer = "maybe"
)

var vocabulary = map[string]Answer{
	"yes":   AnswerYes,
	"no":    AnswerNo,
	"maybe": AnswerMaybe,
}

// Normalize trims and lower-cases an inbound reply.
func Normalize(raw string) string {
	return cases.Lower(language.Und).String(strings.TrimSpace(raw))
}

// Classify reports whether a normalized reply is one of the fixed answers.
// Anything else is a tag candidate.
func Classify(normalized string) (Answer, bool) {
	a, ok := vocabulary[normalized]
	return a, ok
}
