package engine

// AskRequest is a help question, forwarded by a booking node on behalf of
// a logged-in user together with a short summary of that user's state.
type AskRequest struct {
	RequestID string `json:"request_id,omitempty"`
	Query     string `json:"query"`
	Context   string `json:"context,omitempty"`
}

// AskResponse carries the answer back to the forwarding node.
type AskResponse struct {
	RequestID string `json:"request_id,omitempty"`
	Status    string `json:"status"`
	Answer    string `json:"answer"`
}
