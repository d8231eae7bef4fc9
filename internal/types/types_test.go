package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHostFromVars(t *testing.T) {
	h := HostFromVars("db1", map[string]any{"address": "10.0.0.5", "port": "2222", "user": "pg", "role": "primary"})
	assert.Equal(t, "10.0.0.5", h.DialAddress())
	assert.Equal(t, 2222, h.Port)
	assert.Equal(t, "pg", h.User)

	vars := h.AllVars()
	assert.Equal(t, "primary", vars["role"])
	assert.Equal(t, 2222, vars["port"])
	assert.NotContains(t, vars, "password")

	assert.Equal(t, "web1", HostFromVars("web1", nil).DialAddress())
}

func TestTruthy(t *testing.T) {
	for _, v := range []any{true, "yes", "On", "true", "1", 1} {
		assert.True(t, Truthy(v), "%v", v)
	}
	for _, v := range []any{false, "no", "off", "", nil, 0, "false"} {
		assert.False(t, Truthy(v), "%v", v)
	}
}

func TestResults(t *testing.T) {
	rs := Results{
		"web2": Result{}.Fail("boom"),
		"web1": Result{KeyChanged: true, KeyInvocation: map[string]any{KeyModuleName: "shell"}},
	}
	assert.Equal(t, []string{"web1", "web2"}, rs.Hosts())
	assert.Equal(t, []string{"web2"}, rs.Failed().Hosts())
	assert.Equal(t, "boom", rs["web2"].Msg())
	assert.Equal(t, "shell", rs["web1"].ModuleName())
	assert.True(t, rs["web1"].Changed())
}
