package book

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"bookstore/internal/async"
	"bookstore/internal/auth"
	"bookstore/internal/httpx"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type HTTPHandler struct {
	svc *Service
}

func NewHTTPHandler(svc *Service) *HTTPHandler {
	return &HTTPHandler{svc: svc}
}

// Register wires the book routes onto the mux. Literal segments (search,
// low-stock, category) take precedence over the {id} wildcard.
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET "+BasePath, h.List)
	mux.HandleFunc("POST "+BasePath, h.Create)
	mux.HandleFunc("GET "+BasePath+"/search", h.Search)
	mux.HandleFunc("GET "+BasePath+"/low-stock", h.LowStock)
	mux.HandleFunc("GET "+BasePath+"/category/{category}", h.ListByCategory)
	mux.HandleFunc("GET "+BasePath+"/{id}", h.GetByID)
	mux.HandleFunc("PUT "+BasePath+"/{id}", h.Update)
	mux.HandleFunc("DELETE "+BasePath+"/{id}", h.Delete)
}

// Resource is a book plus its navigation links.
type Resource struct {
	Book
	Links map[string]string `json:"_links"`
}

func resource(b Book) Resource {
	return Resource{Book: b, Links: Links(b.ID)}
}

func resources(books []Book) []Resource {
	out := make([]Resource, 0, len(books))
	for _, b := range books {
		out = append(out, resource(b))
	}
	return out
}

func pagedBody(page Page, p PageRequest) httpx.PagedResponse {
	return httpx.PagedResponse{
		Data: resources(page.Content),
		Meta: httpx.PageMeta{
			Page:       page.Page,
			PageSize:   page.Size,
			Total:      page.TotalElements,
			TotalPages: page.TotalPages,
		},
		Links: CollectionLinks(p, page.TotalPages),
	}
}

// pageRequest parses page (0-based), size and sort query parameters with the
// conventional defaults: page 0, size 20, sort by title.
func pageRequest(r *http.Request) PageRequest {
	query := r.URL.Query()

	page, _ := strconv.Atoi(query.Get("page"))
	if page < 0 {
		page = 0
	}
	size, _ := strconv.Atoi(query.Get("size"))
	if size <= 0 || size > maxPageSize {
		size = defaultPageSize
	}
	return PageRequest{Page: page, Size: size, Sort: query.Get("sort")}
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

func (h *HTTPHandler) List(w http.ResponseWriter, r *http.Request) {
	p := pageRequest(r)

	page, err := h.svc.GetAll(r.Context(), p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, pagedBody(page, p))
}

func (h *HTTPHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.WriteProblem(r, w, http.StatusBadRequest, "Bad Request", "invalid book id")
		return
	}

	b, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, resource(b))
}

func (h *HTTPHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	b, err := h.svc.Create(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, resource(b))
}

func (h *HTTPHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.WriteProblem(r, w, http.StatusBadRequest, "Bad Request", "invalid book id")
		return
	}

	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	b, err := h.svc.Update(r.Context(), id, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, resource(b))
}

func (h *HTTPHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.WriteProblem(r, w, http.StatusBadRequest, "Bad Request", "invalid book id")
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteNoContent(w)
}

func (h *HTTPHandler) Search(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("q")
	p := pageRequest(r)

	page, err := h.svc.Search(r.Context(), term, p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, pagedBody(page, p))
}

func (h *HTTPHandler) ListByCategory(w http.ResponseWriter, r *http.Request) {
	category := r.PathValue("category")
	p := pageRequest(r)

	page, err := h.svc.GetByCategory(r.Context(), category, p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, pagedBody(page, p))
}

func (h *HTTPHandler) LowStock(w http.ResponseWriter, r *http.Request) {
	threshold, err := strconv.Atoi(r.URL.Query().Get("threshold"))
	if err != nil || threshold < 1 {
		httpx.WriteProblem(r, w, http.StatusBadRequest, "Bad Request", "threshold must be at least 1")
		return
	}

	res, err := h.svc.GetLowStockAsync(r.Context(), threshold)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	books, err := res.Wait(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"data": resources(books)})
}

func (h *HTTPHandler) decodeRequest(w http.ResponseWriter, r *http.Request) (Request, bool) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteProblem(r, w, http.StatusBadRequest, "Bad Request", "malformed request body")
		return Request{}, false
	}

	req.Normalize()
	if violations := req.Validate(); violations != nil {
		fields := make(map[string]string, len(violations))
		for _, v := range violations {
			fields[v.Field] = v.Message
		}
		httpx.WriteValidationProblem(r, w, fields)
		return Request{}, false
	}
	return req, true
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.WriteProblem(r, w, http.StatusNotFound, "Book Not Found", err.Error())
	case errors.Is(err, ErrDuplicateISBN):
		httpx.WriteProblem(r, w, http.StatusConflict, "Duplicate ISBN", err.Error())
	case errors.Is(err, ErrVersionConflict):
		httpx.WriteProblem(r, w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrThresholdTooLow):
		httpx.WriteProblem(r, w, http.StatusBadRequest, "Bad Request", err.Error())
	case errors.Is(err, auth.ErrUnauthenticated):
		httpx.WriteProblem(r, w, http.StatusUnauthorized, "Unauthorized", "authentication required")
	case errors.Is(err, auth.ErrAccessDenied):
		httpx.WriteProblem(r, w, http.StatusForbidden, "Access Denied", "insufficient role")
	case errors.Is(err, async.ErrQueueFull):
		httpx.WriteProblem(r, w, http.StatusServiceUnavailable, "Service Busy", "try again later")
	default:
		log.Printf("error request failed request_id=%s err=%v", httpx.RequestIDFrom(r), err)
		httpx.WriteProblem(r, w, http.StatusInternalServerError, "Internal Server Error", "An unexpected error occurred")
	}
}
