package models

// NavigationIntent means the agent wants the app to route somewhere. Only the
// UI layer turns an intent into an actual route change.
type NavigationIntent struct {
	Pathname string `json:"pathname"`
	Source   string `json:"source,omitempty"`
}

// ClickAnimationRequest asks the UI to demonstrate a click at screen coordinates.
type ClickAnimationRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Notification is a transient, user-facing message describing an action.
type Notification struct {
	Message string `json:"message"`
	Kind    string `json:"kind"` // "info", "success", "error"
}

const (
	NotifyInfo    = "info"
	NotifySuccess = "success"
	NotifyError   = "error"
)

// Route is one entry of the fixed route table used by navigation commands.
type Route struct {
	Name     string   `json:"name" yaml:"name"`
	Path     string   `json:"path" yaml:"path"`
	LabelEN  string   `json:"label_en" yaml:"label_en"`
	LabelAR  string   `json:"label_ar" yaml:"label_ar"`
	Keywords []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
}
