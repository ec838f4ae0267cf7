package api

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseDetail(t *testing.T) {
	cases := map[string]string{
		`{"detail":"Email not found"}`: "Email not found",
		`{"detail":[{"loc":["body","email"],"msg":"value is not a valid email address"},{"msg":"field required"}]}`: "value is not a valid email address; field required",
		`{"detail":{"code":1}}`: "",
		`not json`:              "",
		`{}`:                    "",
	}

	for body, want := range cases {
		assert.Equal(t, want, parseDetail([]byte(body)), body)
	}
}

func TestDetail_FallbackChain(t *testing.T) {
	remote := fmt.Errorf("wrapped: %w", &Error{StatusCode: 400, Method: "POST", Path: "/x", Detail: "bad input"})
	assert.Equal(t, "bad input", Detail(remote, "generic"))

	noDetail := &Error{StatusCode: 500, Method: "GET", Path: "/x"}
	assert.Equal(t, "API error on GET /x (status 500)", Detail(noDetail, "generic"))

	assert.Equal(t, "connection refused", Detail(errors.New("connection refused"), "generic"))
	assert.Equal(t, "generic", Detail(nil, "generic"))
}

func TestRemoteDetail_OnlyUsesServiceDetail(t *testing.T) {
	remote := fmt.Errorf("wrapped: %w", &Error{StatusCode: 400, Method: "POST", Path: "/x", Detail: "bad input"})
	assert.Equal(t, "bad input", RemoteDetail(remote, "Login failed"))

	noDetail := &Error{StatusCode: 502, Method: "POST", Path: "/auth/login"}
	assert.Equal(t, "Login failed", RemoteDetail(noDetail, "Login failed"))

	assert.Equal(t, "Login failed", RemoteDetail(errors.New("dial tcp: connection refused"), "Login failed"))
	assert.Equal(t, "Login failed", RemoteDetail(nil, "Login failed"))
}
