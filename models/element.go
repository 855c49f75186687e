package models

// ElementType is the semantic kind of an interactive element.
type ElementType string

const (
	ElementButton   ElementType = "button"
	ElementLink     ElementType = "link"
	ElementInput    ElementType = "input"
	ElementCheckbox ElementType = "checkbox"
	ElementRadio    ElementType = "radio"
	ElementSelect   ElementType = "select"
	ElementTextarea ElementType = "textarea"
	ElementTab      ElementType = "tab"
	ElementMenuItem ElementType = "menuitem"
	ElementSwitch   ElementType = "switch"
	ElementOption   ElementType = "option"
	ElementGeneric  ElementType = "element"
)

// PageElement is one entry of a scan. Ids of the form element-<index> are
// tied to scan order and are not stable across scans.
type PageElement struct {
	ID          string      `json:"id"`
	Text        string      `json:"text"`
	Type        ElementType `json:"type"`
	AriaLabel   string      `json:"ariaLabel,omitempty"`
	Role        string      `json:"role,omitempty"`
	Href        string      `json:"href,omitempty"`
	Placeholder string      `json:"placeholder,omitempty"`
	Index       int         `json:"index"`
}

// LookupMode selects how FindByIdentifier interprets an identifier.
type LookupMode string

const (
	LookupText  LookupMode = "text"
	LookupID    LookupMode = "id"
	LookupIndex LookupMode = "index"
)

// ParseLookupMode defaults to text for empty or unknown modes.
func ParseLookupMode(s string) LookupMode {
	switch LookupMode(s) {
	case LookupID:
		return LookupID
	case LookupIndex:
		return LookupIndex
	default:
		return LookupText
	}
}
