package api

// ErrorResponse is the JSON body of every error the server returns.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Backend string `json:"backend,omitempty"`
}

// WhoAmIResponse is returned by GET /whoami.
type WhoAmIResponse struct {
	Email string `json:"email"`
}
