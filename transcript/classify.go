package transcript

import (
	"encoding/json"
	"regexp"
	"strings"

	"golang.org/x/text/cases"

	"github.com/Perceptus-Labs/voicenav-go-sdk/models"
)

// DedupPrefixLength bounds the content hashed for duplicate suppression.
const DedupPrefixLength = 100

var markerRe = regexp.MustCompile(regexp.QuoteMeta(models.NAVIGATE_MARKER) + `\s*(\S+)`)

var (
	navigationKeys = []string{"pathname", "navigate", "navigation"}
	textKeys       = []string{"response", "text", "message", "content"}
)

// SplitNavigation finds a navigation marker in text. It returns the target
// path and the free text following it.
func SplitNavigation(text string) (path string, remainder string, ok bool) {
	loc := markerRe.FindStringSubmatchIndex(text)
	if loc == nil {
		return "", "", false
	}
	path = normalizePath(text[loc[2]:loc[3]])
	remainder = strings.TrimSpace(text[loc[1]:])
	return path, remainder, true
}

// DedupKey is the whitespace-collapsed, case-folded prefix of text.
func DedupKey(text string) string {
	folded := cases.Fold().String(strings.Join(strings.Fields(text), " "))
	runes := []rune(folded)
	if len(runes) > DedupPrefixLength {
		runes = runes[:DedupPrefixLength]
	}
	return string(runes)
}

func normalizePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

func looksJSON(text string) bool {
	return strings.HasPrefix(text, "{") || strings.HasPrefix(text, "[") || strings.HasPrefix(text, `"`)
}

// jsonPayload is the outcome of inspecting a JSON payload.
type jsonPayload struct {
	navigation bool
	pathname   string
	text       string
	hasText    bool
}

func inspectJSON(text string) (jsonPayload, bool) {
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return jsonPayload{}, false
	}

	switch val := v.(type) {
	case string:
		return jsonPayload{text: val, hasText: strings.TrimSpace(val) != ""}, true
	case map[string]any:
		var out jsonPayload
		for _, key := range []string{"type", "action"} {
			if s, ok := val[key].(string); ok && (strings.EqualFold(s, "navigate") || strings.EqualFold(s, "navigation")) {
				out.navigation = true
			}
		}
		for _, key := range navigationKeys {
			raw, ok := val[key]
			if !ok {
				continue
			}
			out.navigation = true
			if s, ok := raw.(string); ok && out.pathname == "" {
				out.pathname = normalizePath(s)
			}
		}
		for _, key := range textKeys {
			if s, ok := val[key].(string); ok && strings.TrimSpace(s) != "" {
				out.text = s
				out.hasText = true
				break
			}
		}
		return out, true
	default:
		return jsonPayload{}, true
	}
}

// navigationTarget extracts a route target from a navigation-topic payload.
func navigationTarget(text string) (string, bool) {
	if path, _, ok := SplitNavigation(text); ok && path != "" {
		return path, true
	}
	if looksJSON(text) {
		if payload, ok := inspectJSON(text); ok {
			if payload.pathname != "" {
				return payload.pathname, true
			}
			if payload.hasText {
				return navigationTarget(strings.TrimSpace(payload.text))
			}
			return "", false
		}
	}
	if strings.HasPrefix(text, "/") && !strings.ContainsAny(text, " \n\t") {
		return text, true
	}
	return "", false
}
