package tokenizer

import (
	"fmt"
	"strings"
)

// Counter counts tokens in prompt and completion text.
type Counter interface {
	// Count returns the number of tokens in text.
	Count(text string) int
	// Name identifies the counter in logs and metrics.
	Name() string
}

// Kind selects a counter implementation.
type Kind string

const (
	KindEstimator Kind = "estimator"
	KindTiktoken  Kind = "tiktoken"
	KindNone      Kind = "none"
)

// New returns the counter for kind, or nil for KindNone.
func New(kind Kind, model string) (Counter, error) {
	switch Kind(strings.ToLower(string(kind))) {
	case KindEstimator, "":
		return NewEstimator(), nil
	case KindTiktoken:
		return NewTiktoken(model), nil
	case KindNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("tokenizer: unknown kind %q", kind)
	}
}
