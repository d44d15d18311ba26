package models

type UploadResponse struct {
	SessionID string `json:"sessionId"`
}

type AskResponse struct {
	Response string `json:"response"`
}

type CleanupResponse struct {
	Success bool `json:"success"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusResponse is returned by the root and fallback routes.
type StatusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
