package envelope

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// ParseError explains why every parsing strategy failed.
type ParseError struct {
	Text string
}

func (e *ParseError) Error() string {
	return "envelope: could not extract valid JSON from response"
}

// Parse runs the ordered parsing pipeline against raw LLM output text and
// returns the first strategy that produces valid JSON. Strategies, in order:
// direct parse, fenced code block extraction, balanced-brace scanning,
// heuristic prose trimming, syntax repair, and a truncation check.
func Parse(text string) (*Envelope, error) {
	raw, err := parseRaw(text)
	if err != nil {
		return nil, err
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("envelope: decode extracted JSON: %w", err)
	}
	return &env, nil
}

func parseRaw(text string) (json.RawMessage, error) {
	if raw, ok := tryUnmarshal(text); ok {
		return raw, nil
	}

	if raw, ok := tryUnmarshal(extractFencedBlock(text)); ok {
		return raw, nil
	}

	if raw, ok := tryUnmarshal(extractBalancedBraces(text)); ok {
		return raw, nil
	}

	if raw, ok := tryUnmarshal(trimProseLines(text)); ok {
		return raw, nil
	}

	if repaired := repairSyntax(extractBalancedBraces(text)); repaired != "" {
		if raw, ok := tryUnmarshal(repaired); ok {
			return raw, nil
		}
	}

	if isTruncated(text) {
		return nil, &ParseError{Text: text}
	}
	return nil, &ParseError{Text: text}
}

func tryUnmarshal(s string) (json.RawMessage, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	return json.RawMessage(s), true
}

var fencedBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)```")

func extractFencedBlock(text string) string {
	m := fencedBlockRe.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// extractBalancedBraces finds the outermost {...} span by brace counting,
// tolerant of braces inside string literals.
func extractBalancedBraces(text string) string {
	depth := 0
	start := -1
	inString := false
	escaped := false

	for idx, ch := range text {
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			if depth == 0 {
				start = idx
			}
			depth++
		case '}':
			depth--
			if depth == 0 && start != -1 {
				return text[start : idx+1]
			}
		}
	}
	return ""
}

// trimProseLines drops lines outside the first "{" and last "}".
func trimProseLines(text string) string {
	first := strings.Index(text, "{")
	last := strings.LastIndex(text, "}")
	if first == -1 || last == -1 || last < first {
		return ""
	}
	return text[first : last+1]
}

var (
	trailingCommaRe = regexp.MustCompile(`,(\s*[}\]])`)
	lineCommentRe   = regexp.MustCompile(`//[^\n]*`)
	blockCommentRe  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	unquotedKeyRe   = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)(\s*:)`)
)

// repairSyntax applies a set of mechanical fixes for common near-miss JSON:
// trailing commas, single-quoted strings, unquoted keys, and comments.
func repairSyntax(candidate string) string {
	if candidate == "" {
		return ""
	}
	s := candidate
	s = blockCommentRe.ReplaceAllString(s, "")
	s = lineCommentRe.ReplaceAllString(s, "")
	s = trailingCommaRe.ReplaceAllString(s, "$1")
	s = unquotedKeyRe.ReplaceAllString(s, `$1"$2"$3`)
	if !strings.Contains(s, `"`) && strings.Contains(s, "'") {
		s = strings.ReplaceAll(s, "'", `"`)
	}
	return s
}

// isTruncated heuristically detects unterminated strings or unbalanced
// brackets, signalling the text was cut off mid-generation.
func isTruncated(text string) bool {
	inString := false
	escaped := false
	depth := 0
	for _, ch := range text {
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
		}
	}
	return inString || depth != 0
}
