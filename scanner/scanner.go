// Package scanner turns the live page into an inventory of interactive,
// visible elements that voice commands like "click Save" can target.
package scanner

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/Perceptus-Labs/voicenav-go-sdk/models"
	"github.com/Perceptus-Labs/voicenav-go-sdk/page"
)

const (
	// MaxLabelLength bounds the label reported for an element.
	MaxLabelLength = 50
	// MaxTextLength skips elements whose label is longer; those are containers, not controls.
	MaxTextLength = 100
	// MaxCandidates bounds the suggestions returned when a lookup fails.
	MaxCandidates = 10
)

// InteractiveSelectors is the fixed selector set queried on every scan.
var InteractiveSelectors = []string{
	"button",
	"a[href]",
	"input:not([type='hidden'])",
	"select",
	"textarea",
	"[role='button']",
	"[role='link']",
	"[role='tab']",
	"[role='menuitem']",
	"[role='checkbox']",
	"[role='radio']",
	"[role='switch']",
	"[role='option']",
	"[onclick]",
	"[data-clickable]",
	".clickable",
	".cursor-pointer",
}

var syntheticID = regexp.MustCompile(`^element-(\d+)$`)

// Entry pairs a reported element with the host node it came from.
type Entry struct {
	Element models.PageElement
	Raw     page.RawElement
	// Label is the untruncated label used for matching.
	Label string
}

type Scanner struct {
	inspector page.Inspector
	selectors []string
	logger    *zap.Logger
}

func New(inspector page.Inspector, logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = zap.L()
	}
	return &Scanner{
		inspector: inspector,
		selectors: InteractiveSelectors,
		logger:    logger,
	}
}

// Scan returns a fresh inventory. Nothing is cached between calls.
func (s *Scanner) Scan() []models.PageElement {
	entries := s.Entries()
	out := make([]models.PageElement, len(entries))
	for i, e := range entries {
		out[i] = e.Element
	}
	return out
}

// Entries is Scan with the host nodes attached.
func (s *Scanner) Entries() []Entry {
	raws := s.inspector.QueryInteractive(s.selectors)

	type key struct {
		text string
		typ  models.ElementType
	}
	seen := make(map[key]bool)
	entries := make([]Entry, 0, len(raws))

	for _, raw := range raws {
		if !Clickable(raw) {
			continue
		}

		label := Label(raw)
		if utf8.RuneCountInString(label) > MaxTextLength {
			continue
		}

		typ := InferType(raw)
		k := key{text: strings.ToLower(label), typ: typ}
		if raw.ID == "" && seen[k] {
			continue
		}
		seen[k] = true

		index := len(entries)
		id := raw.ID
		if id == "" {
			id = fmt.Sprintf("element-%d", index)
		}

		entries = append(entries, Entry{
			Element: models.PageElement{
				ID:          id,
				Text:        truncate(label, MaxLabelLength),
				Type:        typ,
				AriaLabel:   raw.AriaLabel,
				Role:        raw.Role,
				Href:        raw.Href,
				Placeholder: raw.Placeholder,
				Index:       index,
			},
			Raw:   raw,
			Label: label,
		})
	}

	s.logger.Debug("Scanned page", zap.Int("candidates", len(raws)), zap.Int("elements", len(entries)))
	return entries
}

// Clickable reports whether the node may be targeted at all: visible,
// enabled and outside the assistant's own widget.
func Clickable(raw page.RawElement) bool {
	return !raw.InAssistantUI && !raw.Disabled && IsVisible(raw)
}

// IsVisible reports whether the node occupies space and is not hidden by style.
func IsVisible(raw page.RawElement) bool {
	if raw.Rect.Width <= 0 || raw.Rect.Height <= 0 {
		return false
	}
	if strings.EqualFold(raw.Display, "none") || strings.EqualFold(raw.Visibility, "hidden") {
		return false
	}
	return raw.Opacity > 0
}

// Label picks the human-readable label: text content, aria-label, title,
// placeholder, then alt.
func Label(raw page.RawElement) string {
	for _, candidate := range []string{raw.TextContent, raw.AriaLabel, raw.Title, raw.Placeholder, raw.Alt} {
		if v := collapse(candidate); v != "" {
			return v
		}
	}
	return ""
}

// InferType maps ARIA role, then tag and input type, to an element kind.
func InferType(raw page.RawElement) models.ElementType {
	switch strings.ToLower(raw.Role) {
	case "button":
		return models.ElementButton
	case "link":
		return models.ElementLink
	case "tab":
		return models.ElementTab
	case "menuitem":
		return models.ElementMenuItem
	case "checkbox":
		return models.ElementCheckbox
	case "radio":
		return models.ElementRadio
	case "switch":
		return models.ElementSwitch
	case "option":
		return models.ElementOption
	case "textbox", "searchbox":
		return models.ElementInput
	}

	switch strings.ToLower(raw.Tag) {
	case "button":
		return models.ElementButton
	case "a":
		return models.ElementLink
	case "select":
		return models.ElementSelect
	case "textarea":
		return models.ElementTextarea
	case "input":
		switch strings.ToLower(raw.InputType) {
		case "checkbox":
			return models.ElementCheckbox
		case "radio":
			return models.ElementRadio
		case "submit", "button", "reset":
			return models.ElementButton
		default:
			return models.ElementInput
		}
	}
	return models.ElementGeneric
}

// FindByIdentifier resolves an identifier to a live element. Index lookups
// re-scan and are best-effort: the DOM may have changed since the caller's scan.
func (s *Scanner) FindByIdentifier(identifier string, mode models.LookupMode) (Entry, bool) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return Entry{}, false
	}

	switch mode {
	case models.LookupID:
		return s.findByID(identifier)
	case models.LookupIndex:
		n, err := strconv.Atoi(identifier)
		if err != nil {
			return Entry{}, false
		}
		return s.findByIndex(n)
	default:
		return s.findByText(identifier)
	}
}

func (s *Scanner) findByID(id string) (Entry, bool) {
	if raw, ok := s.inspector.ElementByID(id); ok {
		if !Clickable(raw) {
			s.logger.Debug("Element found by id is not clickable", zap.String("id", id))
			return Entry{}, false
		}
		label := Label(raw)
		return Entry{
			Element: models.PageElement{
				ID:          id,
				Text:        truncate(label, MaxLabelLength),
				Type:        InferType(raw),
				AriaLabel:   raw.AriaLabel,
				Role:        raw.Role,
				Href:        raw.Href,
				Placeholder: raw.Placeholder,
				Index:       -1,
			},
			Raw:   raw,
			Label: label,
		}, true
	}

	// synthetic ids only exist in scan output
	if m := syntheticID.FindStringSubmatch(id); m != nil {
		n, _ := strconv.Atoi(m[1])
		return s.findByIndex(n)
	}
	return Entry{}, false
}

func (s *Scanner) findByIndex(n int) (Entry, bool) {
	entries := s.Entries()
	if n < 0 || n >= len(entries) {
		return Entry{}, false
	}
	return entries[n], true
}

func (s *Scanner) findByText(identifier string) (Entry, bool) {
	entries := s.Entries()
	needle := strings.ToLower(collapse(identifier))

	// exact text
	for _, e := range entries {
		if strings.ToLower(e.Label) == needle {
			return e, true
		}
	}

	// substring, either direction
	for _, e := range entries {
		label := strings.ToLower(e.Label)
		if label == "" {
			continue
		}
		if strings.Contains(label, needle) || strings.Contains(needle, label) {
			return e, true
		}
	}

	// aria-label
	for _, e := range entries {
		aria := strings.ToLower(collapse(e.Raw.AriaLabel))
		if aria == "" {
			continue
		}
		if aria == needle || strings.Contains(aria, needle) || strings.Contains(needle, aria) {
			return e, true
		}
	}
	return Entry{}, false
}

// Candidates returns up to limit labels from a fresh scan, to help a caller
// retry with a better identifier.
func (s *Scanner) Candidates(limit int) []string {
	if limit <= 0 || limit > MaxCandidates {
		limit = MaxCandidates
	}
	out := make([]string, 0, limit)
	for _, e := range s.Entries() {
		if e.Element.Text == "" {
			continue
		}
		out = append(out, e.Element.Text)
		if len(out) == limit {
			break
		}
	}
	return out
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
