package usecase

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/cdichat/voicebridge/domain/entities"
)

var stripDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeTranscript lowercases, trims and removes diacritics from a
// transcript so that "Configurações" and "configuracoes" compare equal.
func NormalizeTranscript(s string) string {
	out, _, err := transform.String(stripDiacritics, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}

func isPlaceholder(token string) bool {
	return len(token) > 2 && strings.HasPrefix(token, "[") && strings.HasSuffix(token, "]")
}

func placeholderName(token string) string {
	return strings.ToLower(strings.Trim(token, "[]"))
}

// MatchPhrase reports whether a normalized transcript matches a phrase
// template and extracts the placeholder binding, if the template has one.
//
// The template's literal words must all appear in the transcript in
// order; filler words between them are tolerated. A template may carry
// at most one placeholder token of the form "[NAME]", which binds to
// the transcript text left over after the template's literal prefix and
// suffix are stripped.
//
// Pure function of its two inputs.
func MatchPhrase(transcript, template string) (entities.CommandParams, bool) {
	transcript = NormalizeTranscript(transcript)
	templateTokens := strings.Fields(NormalizeTranscript(template))
	if len(templateTokens) == 0 {
		return nil, false
	}

	placeholderIdx := -1
	literals := make([]string, 0, len(templateTokens))
	for i, token := range templateTokens {
		if isPlaceholder(token) {
			placeholderIdx = i
			continue
		}
		literals = append(literals, token)
	}

	// In-order subsequence walk over the transcript tokens.
	cursor := 0
	for _, word := range strings.Fields(transcript) {
		if cursor < len(literals) && word == literals[cursor] {
			cursor++
		}
	}
	if cursor < len(literals) {
		return nil, false
	}

	if placeholderIdx < 0 {
		return nil, true
	}

	prefix := strings.Join(templateTokens[:placeholderIdx], " ")
	suffix := strings.Join(literalsAfter(templateTokens, placeholderIdx), " ")

	value := transcript
	if prefix != "" {
		if idx := strings.Index(value, prefix); idx >= 0 {
			value = value[idx+len(prefix):]
		}
	}
	if suffix != "" {
		if idx := strings.Index(value, suffix); idx >= 0 {
			value = value[:idx]
		}
	}

	value = strings.TrimSpace(value)
	return entities.CommandParams{placeholderName(templateTokens[placeholderIdx]): value}, true
}

func literalsAfter(tokens []string, idx int) []string {
	if idx+1 >= len(tokens) {
		return nil
	}
	return tokens[idx+1:]
}
