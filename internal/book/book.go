package book

import (
	"errors"
	"time"
)

// Domain failures raised by the service and repository. Handlers translate
// these into problem responses at the API boundary.
var (
	ErrNotFound        = errors.New("book not found")
	ErrDuplicateISBN   = errors.New("isbn already in use")
	ErrVersionConflict = errors.New("book was modified concurrently")
	ErrThresholdTooLow = errors.New("threshold must be at least 1")
)

// Book is the sole entity of the service. ID, Version and the timestamps are
// server-assigned; clients never supply them.
type Book struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	Author        string    `json:"author"`
	ISBN          string    `json:"isbn"`
	Price         float64   `json:"price"`
	Category      string    `json:"category,omitempty"`
	Description   string    `json:"description,omitempty"`
	StockQuantity int       `json:"stock_quantity"`
	Version       int64     `json:"version"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// PageRequest selects a page of books. Page is 0-based.
type PageRequest struct {
	Page int
	Size int
	Sort string
}

// Page is one page of results plus totals.
type Page struct {
	Content       []Book `json:"content"`
	Page          int    `json:"page"`
	Size          int    `json:"size"`
	TotalElements int    `json:"total_elements"`
	TotalPages    int    `json:"total_pages"`
}

// NewPage assembles a Page from repository output.
func NewPage(content []Book, req PageRequest, total int) Page {
	pages := 0
	if req.Size > 0 {
		pages = (total + req.Size - 1) / req.Size
	}
	return Page{
		Content:       content,
		Page:          req.Page,
		Size:          req.Size,
		TotalElements: total,
		TotalPages:    pages,
	}
}
