package config

import (
	"fmt"
	"slices"
	"strings"
)

// KeyInfo describes a config key for display purposes.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
}

// allowedValues lists the accepted values of enumerated keys.
var allowedValues = map[string][]string{
	"llm.protocol": {ProtocolAssistant, ProtocolChat},
	"log.level":    {"debug", "info", "warn", "error"},
}

// ShowAll returns all non-secret config key/value pairs from cfg.
func ShowAll(cfg Config) []KeyInfo {
	var result []KeyInfo
	for _, s := range specs {
		if s.secret {
			continue
		}
		result = append(result, KeyInfo{
			Key:    s.key,
			EnvVar: s.env,
			Value:  fmt.Sprintf("%v", s.extract(cfg)),
		})
	}
	return result
}

// SetKey validates value and writes it to the config file.
func SetKey(key, value string) error {
	return setKey(newFileBackend(configFilePath()), key, value)
}

// UnsetKey removes key from the config file so its default or environment
// value applies again.
func UnsetKey(key string) error {
	return unsetKey(newFileBackend(configFilePath()), key)
}

func setKey(b ConfigBackend, key, value string) error {
	s, err := settable(key)
	if err != nil {
		return err
	}

	v, err := s.parse(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	if allowed, ok := allowedValues[key]; ok && !slices.Contains(allowed, value) {
		return fmt.Errorf("invalid value for %s: %q is not one of %s", key, value, strings.Join(allowed, ", "))
	}

	// Durations and floats are stored as strings and parsed on load.
	if i, ok := v.(int); ok {
		return b.SetInt(key, i)
	}
	return b.SetString(key, value)
}

func unsetKey(b ConfigBackend, key string) error {
	if _, err := settable(key); err != nil {
		return err
	}
	return b.Delete(key)
}

// settable returns the spec for key, rejecting unknown and secret keys.
func settable(key string) (keySpec, error) {
	for _, s := range specs {
		if s.key != key {
			continue
		}
		if s.secret {
			return keySpec{}, fmt.Errorf("cannot set secret %q via config; use environment variable %s", key, s.env)
		}
		return s, nil
	}
	return keySpec{}, fmt.Errorf("unknown config key: %q", key)
}

// ValidKeys returns the list of valid non-secret config key names.
func ValidKeys() []string {
	var keys []string
	for _, s := range specs {
		if !s.secret {
			keys = append(keys, s.key)
		}
	}
	return keys
}
