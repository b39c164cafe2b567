package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("APITEST_STR", "value")
	t.Setenv("APITEST_EMPTY", "")

	assert.Equal(t, "value", GetEnv("APITEST_STR", "def"))
	assert.Equal(t, "def", GetEnv("APITEST_EMPTY", "def"))
}

func TestGetEnvTyped(t *testing.T) {
	t.Setenv("APITEST_INT", "42")
	t.Setenv("APITEST_BAD_INT", "forty")
	t.Setenv("APITEST_FLOAT", "2.5")
	t.Setenv("APITEST_BOOL", "true")
	t.Setenv("APITEST_DUR", "1500ms")

	assert.Equal(t, 42, GetEnvInt("APITEST_INT", 1))
	assert.Equal(t, 1, GetEnvInt("APITEST_BAD_INT", 1))
	assert.InDelta(t, 2.5, GetEnvFloat("APITEST_FLOAT", 0), 0.0001)
	assert.True(t, GetEnvBool("APITEST_BOOL", false))
	assert.False(t, GetEnvBool("APITEST_UNSET_BOOL", false))
	assert.Equal(t, 1500*time.Millisecond, GetEnvDuration("APITEST_DUR", time.Second))
}

func TestGetEnvList(t *testing.T) {
	t.Setenv("APITEST_LIST", " full, users ,,clients ")

	assert.Equal(t, []string{"full", "users", "clients"}, GetEnvList("APITEST_LIST", nil))
	assert.Equal(t, []string{"x"}, GetEnvList("APITEST_LIST_UNSET", []string{"x"}))
}
