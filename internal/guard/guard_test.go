package guard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type state struct {
	authed, admin bool
}

func (s state) IsAuthenticated() bool { return s.authed }
func (s state) IsAdmin() bool         { return s.admin }

func TestDecide(t *testing.T) {
	public := Route{}
	private := Route{RequiresAuth: true}
	admin := Route{RequiresAuth: true, RequiresAdmin: true}

	cases := []struct {
		name  string
		state state
		route Route
		want  Redirect
	}{
		{"anonymous on public", state{}, public, RedirectNone},
		{"anonymous on private", state{}, private, RedirectLogin},
		{"anonymous on admin", state{}, admin, RedirectLogin},
		{"user on private", state{authed: true}, private, RedirectNone},
		{"user on admin", state{authed: true}, admin, RedirectHome},
		{"admin on admin", state{authed: true, admin: true}, admin, RedirectNone},
		{"admin-only flag without auth flag", state{}, Route{RequiresAdmin: true}, RedirectHome},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Decide(tc.state, tc.route))
		})
	}
}
