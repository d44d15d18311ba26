package models

// AskRequest is the body of POST /api/ask. A missing session id is reported
// as an invalid session rather than a malformed request.
type AskRequest struct {
	SessionID string `json:"sessionId"`
	Query     string `json:"query" binding:"required"`
}

type CleanupRequest struct {
	SessionID string `json:"sessionId"`
}
