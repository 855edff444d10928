package handlers

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type HealthResponse struct {
	Status   string              `json:"status"`
	Backends map[string][]string `json:"backends"`
}
