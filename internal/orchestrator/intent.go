package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrUnrecognizedIntent = errors.New("unrecognized intent label")

type IntentClassifier struct {
	caller modelCaller
}

// Classify makes exactly one model call. A label outside the known set
// returns FallbackIntent together with ErrUnrecognizedIntent.
func (c *IntentClassifier) Classify(ctx context.Context, question string) (Intent, error) {
	raw, err := c.caller.complete(ctx, "intent", IntentPrompt(question))
	if err != nil {
		return "", err
	}
	intent, ok := ParseIntent(raw)
	if !ok {
		return FallbackIntent, fmt.Errorf("%w: %q", ErrUnrecognizedIntent, raw)
	}
	return intent, nil
}

// ParseIntent accepts a label after trimming whitespace, quotes and trailing
// punctuation and upper-casing it.
func ParseIntent(raw string) (Intent, bool) {
	label := strings.ToUpper(strings.Trim(strings.TrimSpace(raw), "\"'`.!:;, \t\r\n"))
	switch Intent(label) {
	case IntentChitchat, IntentDataRetrieval, IntentInsights:
		return Intent(label), true
	default:
		return "", false
	}
}
