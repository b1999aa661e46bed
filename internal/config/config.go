// Package config loads process settings from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Source is an opaque key/value lookup, normally the process environment.
type Source interface {
	LookupEnv(key string) (string, bool)
}

// OSEnv reads from the real process environment.
type OSEnv struct{}

// LookupEnv implements Source.
func (OSEnv) LookupEnv(key string) (string, bool) {
	return os.LookupEnv(key)
}

// MapEnv is a static Source, used by tests and the CLI.
type MapEnv map[string]string

// LookupEnv implements Source.
func (m MapEnv) LookupEnv(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

// Environment resolves values with the Docker secrets convention: when NAME is
// unset or empty, the file named by NAME_FILE is read and trimmed instead.
type Environment struct {
	src      Source
	readFile func(string) ([]byte, error)
}

// NewEnvironment wraps src. A nil src means the process environment.
func NewEnvironment(src Source) *Environment {
	if src == nil {
		src = OSEnv{}
	}
	return &Environment{src: src, readFile: os.ReadFile}
}

// Lookup returns the value for name and whether it is present and non-empty.
func (e *Environment) Lookup(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false
	}
	if v, ok := e.src.LookupEnv(name); ok && v != "" {
		return v, true
	}

	path, _ := e.src.LookupEnv(name + "_FILE")
	path = strings.TrimSpace(path)
	if path == "" {
		return "", false
	}
	data, err := e.readFile(path)
	if err != nil {
		return "", false
	}
	secret := strings.TrimSpace(string(data))
	return secret, secret != ""
}

// Get returns the value for name or def.
func (e *Environment) Get(name, def string) string {
	if v, ok := e.Lookup(name); ok {
		return v
	}
	return def
}

// Int parses name as an integer. Missing or malformed values fall back to def
// and values below floor are clamped to floor.
func (e *Environment) Int(name string, def, floor int) int {
	raw, ok := e.Lookup(name)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return def
	}
	if n < floor {
		return floor
	}
	return n
}

// Seconds parses name as a number of seconds (fractions allowed).
func (e *Environment) Seconds(name string, def time.Duration) time.Duration {
	raw, ok := e.Lookup(name)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || f <= 0 {
		return def
	}
	return time.Duration(f * float64(time.Second))
}

// Ratio parses name as a fraction in [0, 1]. Malformed or out of range
// values fall back to def.
func (e *Environment) Ratio(name string, def float64) float64 {
	raw, ok := e.Lookup(name)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || f < 0 || f > 1 {
		return def
	}
	return f
}

// Bool treats 1/true/yes/on (any case) as true.
func (e *Environment) Bool(name string, def bool) bool {
	raw, ok := e.Lookup(name)
	if !ok {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// CSV splits a comma separated list, dropping blanks.
func (e *Environment) CSV(name string) []string {
	raw, ok := e.Lookup(name)
	if !ok {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
