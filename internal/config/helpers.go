package config

import (
	"time"

	"github.com/okieraised/greenhouse-agent/internal/utilities"
	"github.com/spf13/viper"
)

// GetBool returns the viper value for key, or def when the key is unset.
func GetBool(key string, def bool) bool {
	if !viper.IsSet(key) {
		return def
	}
	return viper.GetBool(key)
}

// GetInt returns the viper value for key, or def when the key is unset or not positive.
func GetInt(key string, def int) int {
	if !viper.IsSet(key) {
		return def
	}
	if n := viper.GetInt(key); n > 0 {
		return n
	}
	return def
}

// GetString returns the viper value for key, or def when the key is unset or empty.
func GetString(key, def string) string {
	if s := viper.GetString(key); s != "" {
		return s
	}
	return def
}

// GetDuration accepts "10s"/"500ms", a bare integer (seconds), or a native duration.
func GetDuration(key string, def time.Duration) time.Duration {
	if !viper.IsSet(key) {
		return def
	}
	if s := viper.GetString(key); s != "" {
		if d, err := utilities.ParseOrDefault(s, def); err == nil && d > 0 {
			return d
		}
	}
	if d := viper.GetDuration(key); d > 0 {
		return d
	}
	return def
}
