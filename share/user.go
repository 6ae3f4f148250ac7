package share

import (
	"strings"
)

// ParseAuth splits "user:password" at the first colon. ok is false unless both parts are set.
func ParseAuth(auth string) (user, password string, ok bool) {
	user, password, found := strings.Cut(auth, ":")
	if !found || user == "" || password == "" {
		return "", "", false
	}
	return user, password, true
}
