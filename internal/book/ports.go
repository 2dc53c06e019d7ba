package book

import "context"

//go:generate mockgen -destination=mocks/mocks.go -package=mocks bookstore/internal/book Repository,Cache

// Cache scopes. Each logical dataset carries its own TTL; writes evict whole
// scopes rather than individual keys.
const (
	ScopeBooks    = "books"
	ScopeBook     = "book"
	ScopeCategory = "booksByCategory"
)

// Repository is the persistence gateway for books. Lookups that miss return
// ErrNotFound; Create and Update surface unique-ISBN violations as
// ErrDuplicateISBN and stale-version writes as ErrVersionConflict.
type Repository interface {
	FindByID(ctx context.Context, id int64) (Book, error)
	FindByISBN(ctx context.Context, isbn string) (Book, error)
	ExistsByID(ctx context.Context, id int64) (bool, error)
	ExistsByISBN(ctx context.Context, isbn string) (bool, error)
	List(ctx context.Context, p PageRequest) (Page, error)
	ListByCategory(ctx context.Context, category string, p PageRequest) (Page, error)
	Search(ctx context.Context, term string, p PageRequest) (Page, error)
	ListLowStock(ctx context.Context, threshold int) ([]Book, error)
	Create(ctx context.Context, b *Book) error
	Update(ctx context.Context, b *Book) error
	Delete(ctx context.Context, id int64) error
}

// Cache is a best-effort, TTL-bounded mirror of read results. Get reports a
// hit via its boolean; a miss is not an error. Only the service populates or
// evicts entries.
type Cache interface {
	Get(ctx context.Context, scope, key string, dest any) (bool, error)
	Set(ctx context.Context, scope, key string, value any) error
	EvictScope(ctx context.Context, scopes ...string) error
}
