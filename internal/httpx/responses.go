package httpx

import (
	"encoding/json"
	"net/http"
	"time"
)

// Problem is the uniform error response shape: status, title and detail, with
// field errors attached on validation failures. Internal detail such as stack
// traces never reaches the client.
type Problem struct {
	Status    int               `json:"status"`
	Title     string            `json:"title"`
	Detail    string            `json:"detail,omitempty"`
	Errors    map[string]string `json:"errors,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	RequestID string            `json:"request_id,omitempty"`
}

// PageMeta describes one page of a collection response.
type PageMeta struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// PagedResponse is the envelope for list endpoints.
type PagedResponse struct {
	Data  any               `json:"data"`
	Meta  PageMeta          `json:"meta"`
	Links map[string]string `json:"_links,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func WriteProblem(r *http.Request, w http.ResponseWriter, status int, title, detail string) {
	WriteJSON(w, status, Problem{
		Status:    status,
		Title:     title,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
		RequestID: RequestIDFrom(r),
	})
}

// WriteValidationProblem enumerates the field violations of a rejected request.
func WriteValidationProblem(r *http.Request, w http.ResponseWriter, errors map[string]string) {
	WriteJSON(w, http.StatusBadRequest, Problem{
		Status:    http.StatusBadRequest,
		Title:     "Validation Error",
		Detail:    "Validation failed",
		Errors:    errors,
		Timestamp: time.Now().UTC(),
		RequestID: RequestIDFrom(r),
	})
}
