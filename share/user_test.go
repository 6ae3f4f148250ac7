package share

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAuth(t *testing.T) {
	testCases := []struct {
		auth     string
		user     string
		password string
		ok       bool
	}{
		{auth: "admin:1234", user: "admin", password: "1234", ok: true},
		{auth: "admin:12:34", user: "admin", password: "12:34", ok: true},
		{auth: "admin"},
		{auth: "admin:"},
		{auth: ":1234"},
		{auth: ""},
	}
	for _, tc := range testCases {
		t.Run(tc.auth, func(t *testing.T) {
			user, password, ok := ParseAuth(tc.auth)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.user, user)
			assert.Equal(t, tc.password, password)
		})
	}
}
