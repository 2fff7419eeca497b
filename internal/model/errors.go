package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a failed model call for retry decisions and telemetry.
type ErrorKind string

const (
	KindRateLimit  ErrorKind = "rate_limit"
	KindConnection ErrorKind = "connection"
	KindTimeout    ErrorKind = "timeout"
	KindCanceled   ErrorKind = "canceled"
	KindConfig     ErrorKind = "config"
	KindOther      ErrorKind = "other"
)

// ConfigError marks unrecoverable configuration problems, like an alias with
// no backend model. It is the only error class allowed to abort startup.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return "config error: " + e.Message
}

// CallError is the failure half of a Result envelope.
type CallError struct {
	Kind    ErrorKind
	Message string
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// classifyError buckets a provider error by inspecting it. Providers behind
// langchaingo do not expose a stable error taxonomy, so this falls back to
// message matching for the transient cases that matter.
func classifyError(err error) ErrorKind {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "429"),
		strings.Contains(msg, "too many requests"), strings.Contains(msg, "quota"):
		return KindRateLimit
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline"):
		return KindTimeout
	case strings.Contains(msg, "connection"), strings.Contains(msg, "no such host"),
		strings.Contains(msg, "eof"), strings.Contains(msg, "broken pipe"),
		strings.Contains(msg, "502"), strings.Contains(msg, "503"):
		return KindConnection
	}
	return KindOther
}
