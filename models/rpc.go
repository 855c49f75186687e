package models

// RPC method names exposed to the remote agent. These are a wire contract.
const (
	RPCGetPageElements = "getPageElements"
	RPCClickElement    = "clickElement"
	RPCGetCurrentPage  = "getCurrentPage"
	RPCNavigateToPage  = "navigateToPage"
	RPCInvokeCommand   = "invokeCommand"
)

// Location describes the page the host is currently showing.
type Location struct {
	Pathname string `json:"pathname"`
	Title    string `json:"title"`
	URL      string `json:"url"`
}

type PageElementsResponse struct {
	CurrentPage   string        `json:"currentPage"`
	PageTitle     string        `json:"pageTitle"`
	ElementsCount int           `json:"elementsCount"`
	Elements      []PageElement `json:"elements"`
}

type ClickElementRequest struct {
	Identifier string `json:"identifier"`
	Type       string `json:"type,omitempty"`
}

type ClickElementResponse struct {
	Success           bool         `json:"success"`
	Message           string       `json:"message,omitempty"`
	Element           *PageElement `json:"element,omitempty"`
	AvailableElements []string     `json:"availableElements,omitempty"`
	Error             string       `json:"error,omitempty"`
}

type NavigateRequest struct {
	Pathname string `json:"pathname"`
}

type InvokeCommandRequest struct {
	Name string `json:"name"`
}

// RPCResult is the generic response shape shared by the simpler methods and by
// every handler failure.
type RPCResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}
