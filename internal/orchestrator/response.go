package orchestrator

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"
)

type ResponseSynthesizer struct {
	caller   modelCaller
	settings PromptSettings
}

// SynthesizeSingle answers from one result set. A failed outcome returns
// NoDataAnswer without calling the model.
func (s *ResponseSynthesizer) SynthesizeSingle(ctx context.Context, q Query, outcome Outcome) (string, error) {
	if !outcome.Success {
		return NoDataAnswer, nil
	}
	return s.caller.complete(ctx, "retrieval_synthesis", RetrievalSynthesisPrompt(q.Text, outcome, s.settings))
}

// SynthesizeFromLedger answers from every round of an insight loop. A
// ledger without a single successful round returns NoDataAnswer without
// calling the model.
func (s *ResponseSynthesizer) SynthesizeFromLedger(ctx context.Context, q Query, ledger Ledger) (string, error) {
	if !ledger.AnySucceeded() {
		return NoDataAnswer, nil
	}
	return s.caller.complete(ctx, "insight_synthesis", InsightSynthesisPrompt(q.Text, ledger, s.settings))
}

func (s *ResponseSynthesizer) AssessCompleteness(ctx context.Context, q Query, ledger Ledger) (Assessment, error) {
	raw, err := s.caller.complete(ctx, "completeness_check", CompletenessPrompt(q.Text, ledger, s.settings))
	if err != nil {
		return Assessment{}, err
	}
	return ParseAssessment(raw), nil
}

// ParseAssessment reads a YES/NO verdict. Anything not starting with YES is
// incomplete and the rest of the answer becomes the hint.
func ParseAssessment(raw string) Assessment {
	trimmed := strings.TrimSpace(raw)
	upper := strings.ToUpper(trimmed)
	if strings.HasPrefix(upper, "YES") {
		return Assessment{Complete: true}
	}
	hint := trimmed
	if strings.HasPrefix(upper, "NO") {
		next, _ := utf8.DecodeRuneInString(upper[2:])
		if next == utf8.RuneError || !unicode.IsLetter(next) {
			hint = hint[2:]
		}
	}
	return Assessment{Hint: strings.TrimSpace(strings.TrimLeft(hint, " \t\r\n.,:;-–—"))}
}
