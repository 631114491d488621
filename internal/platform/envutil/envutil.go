package envutil

import (
	"os"
	"strconv"
	"strings"
)

type warner interface {
	Warn(msg string, keysAndValues ...interface{})
}

func Int(name string, def int) int {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func Bool(name string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// GetEnv returns the named environment variable, or def if unset, warning
// through logg when it falls back so missing configuration is never silent.
func GetEnv(name, def string, logg warner) string {
	v := os.Getenv(name)
	if v != "" {
		return v
	}
	if logg != nil {
		logg.Warn("env var not set, using default", "name", name, "default", def)
	}
	return def
}
