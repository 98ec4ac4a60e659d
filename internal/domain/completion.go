package domain

import "strings"

// FallbackAnswer is the literal reply returned whenever no grounded answer
// can be produced. Callers pattern-match on this exact string, do not change it.
const FallbackAnswer = "Please contact hello@skillcapital.ai"

// CompletionKind tags the shape of a completion capability result.
type CompletionKind int

const (
	// CompletionText is a plain text result.
	CompletionText CompletionKind = iota
	// CompletionStructured is a keyed result, e.g. {"answer": ...}.
	CompletionStructured
)

// CompletionResult is the tagged variant returned by the completion
// capability. Exactly one of Text or Fields is meaningful, per Kind.
type CompletionResult struct {
	Kind   CompletionKind
	Text   string
	Fields map[string]string
}

// NewTextResult wraps a plain string completion.
func NewTextResult(text string) CompletionResult {
	return CompletionResult{Kind: CompletionText, Text: text}
}

// NewStructuredResult wraps a keyed completion.
func NewStructuredResult(fields map[string]string) CompletionResult {
	return CompletionResult{Kind: CompletionStructured, Fields: fields}
}

// ExtractAnswer normalizes a completion result to a single answer string.
// It tries plain text, then the "answer" and "output_text" fields, and
// returns fallback when none yields non-empty text.
func ExtractAnswer(res CompletionResult, fallback string) string {
	switch res.Kind {
	case CompletionText:
		if s := strings.TrimSpace(res.Text); s != "" {
			return s
		}
	case CompletionStructured:
		for _, key := range []string{"answer", "output_text"} {
			if s := strings.TrimSpace(res.Fields[key]); s != "" {
				return s
			}
		}
	}
	return fallback
}
