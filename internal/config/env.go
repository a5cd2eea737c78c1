package config

import (
	"os"
	"strconv"
	"strings"
)

// env returns the parsed value of key, or def when the variable is unset,
// blank or does not parse.
func env[T any](key string, def T, parse func(string) (T, error)) T {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := parse(raw)
	if err != nil {
		return def
	}
	return v
}

func parseString(s string) (string, error) { return s, nil }

func parseFloat(s string) (float64, error) { return strconv.ParseFloat(s, 64) }

// parseBool accepts the usual spellings plus yes/no and on/off.
func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "yes", "y", "on":
		return true, nil
	case "no", "n", "off":
		return false, nil
	}
	return strconv.ParseBool(s)
}

func normalizeEnv(s string) string {
	s = strings.ToLower(s)
	if s == "prod" {
		return EnvProduction
	}
	return s
}

func normalizeLogLevel(s string) string {
	s = strings.ToLower(s)
	if s == "warning" {
		return "warn"
	}
	return s
}

// normalizeGinMode falls back to release for anything gin does not know.
func normalizeGinMode(s string) string {
	switch s = strings.ToLower(s); s {
	case "debug", "release", "test":
		return s
	}
	return "release"
}

// splitCSV splits a comma list, dropping blanks.
func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
