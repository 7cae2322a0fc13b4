package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestGetDuration(t *testing.T) {
	t.Cleanup(viper.Reset)

	viper.Set("test.go_duration", "250ms")
	viper.Set("test.bare_seconds", "5")
	viper.Set("test.garbage", "soon")

	assert.Equal(t, 250*time.Millisecond, GetDuration("test.go_duration", time.Second))
	assert.Equal(t, 5*time.Second, GetDuration("test.bare_seconds", time.Second))
	assert.Equal(t, time.Second, GetDuration("test.garbage", time.Second))
	assert.Equal(t, 3*time.Second, GetDuration("test.missing", 3*time.Second))
}

func TestGetScalars(t *testing.T) {
	t.Cleanup(viper.Reset)

	viper.Set("test.flag", false)
	viper.Set("test.count", 0)
	viper.Set("test.name", "")

	assert.False(t, GetBool("test.flag", true))
	assert.True(t, GetBool("test.missing", true))
	assert.Equal(t, 7, GetInt("test.count", 7))
	assert.Equal(t, "fallback", GetString("test.name", "fallback"))
}
