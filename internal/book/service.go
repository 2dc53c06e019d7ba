package book

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"

	"bookstore/internal/async"
	"bookstore/internal/auth"
)

// Service orchestrates validation results, duplicate checks, cache policy,
// role gates and the async low-stock query. It is the only component allowed
// to populate or evict cache entries.
type Service struct {
	repo  Repository
	cache Cache
	pool  *async.Pool
}

func NewService(repo Repository, cache Cache, pool *async.Pool) *Service {
	return &Service{repo: repo, cache: cache, pool: pool}
}

func listKey(p PageRequest) string {
	return fmt.Sprintf("%d-%d-%s", p.Page, p.Size, p.Sort)
}

func categoryKey(category string, p PageRequest) string {
	return fmt.Sprintf("%s-%d-%d", category, p.Page, p.Size)
}

// GetAll returns a cached page of books. Any authenticated caller may read.
func (s *Service) GetAll(ctx context.Context, p PageRequest) (Page, error) {
	if err := auth.Require(ctx); err != nil {
		return Page{}, err
	}

	key := listKey(p)
	var cached Page
	if hit := s.cacheGet(ctx, ScopeBooks, key, &cached); hit {
		return cached, nil
	}

	page, err := s.repo.List(ctx, p)
	if err != nil {
		return Page{}, err
	}
	s.cacheSet(ctx, ScopeBooks, key, page)
	return page, nil
}

// GetByID returns a cached single book. Misses are never cached.
func (s *Service) GetByID(ctx context.Context, id int64) (Book, error) {
	if err := auth.Require(ctx); err != nil {
		return Book{}, err
	}

	key := strconv.FormatInt(id, 10)
	var cached Book
	if hit := s.cacheGet(ctx, ScopeBook, key, &cached); hit {
		return cached, nil
	}

	b, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Printf("warn book not found id=%d", id)
		}
		return Book{}, err
	}
	s.cacheSet(ctx, ScopeBook, key, b)
	return b, nil
}

// Create inserts a new book. Requires ADMIN or LIBRARIAN; a known ISBN fails
// with ErrDuplicateISBN before the insert is attempted, and the data store's
// unique constraint backstops concurrent creates.
func (s *Service) Create(ctx context.Context, req Request) (Book, error) {
	if err := auth.Require(ctx, auth.RoleAdmin, auth.RoleLibrarian); err != nil {
		return Book{}, err
	}

	exists, err := s.repo.ExistsByISBN(ctx, req.ISBN)
	if err != nil {
		return Book{}, err
	}
	if exists {
		log.Printf("warn duplicate isbn on create isbn=%s", req.ISBN)
		return Book{}, ErrDuplicateISBN
	}

	var b Book
	req.apply(&b)
	if err := s.repo.Create(ctx, &b); err != nil {
		return Book{}, err
	}

	s.evict(ctx, ScopeBooks, ScopeBook)
	log.Printf("book created id=%d isbn=%s", b.ID, b.ISBN)
	return b, nil
}

// Update replaces all mutable fields of an existing book. The request ISBN may
// not belong to a different book; the book's own unchanged ISBN is fine. The
// current version is carried into the write predicate, so a concurrent update
// loses with ErrVersionConflict.
func (s *Service) Update(ctx context.Context, id int64, req Request) (Book, error) {
	if err := auth.Require(ctx, auth.RoleAdmin, auth.RoleLibrarian); err != nil {
		return Book{}, err
	}

	b, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Printf("warn book not found on update id=%d", id)
		}
		return Book{}, err
	}

	owner, err := s.repo.FindByISBN(ctx, req.ISBN)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Book{}, err
	}
	if err == nil && owner.ID != id {
		log.Printf("warn isbn owned by another book isbn=%s owner=%d id=%d", req.ISBN, owner.ID, id)
		return Book{}, ErrDuplicateISBN
	}

	req.apply(&b)
	if err := s.repo.Update(ctx, &b); err != nil {
		return Book{}, err
	}

	s.evict(ctx, ScopeBooks, ScopeBook, ScopeCategory)
	log.Printf("book updated id=%d version=%d", b.ID, b.Version)
	return b, nil
}

// Delete hard-deletes a book. ADMIN only.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := auth.Require(ctx, auth.RoleAdmin); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Printf("warn book not found on delete id=%d", id)
		}
		return err
	}

	s.evict(ctx, ScopeBooks, ScopeBook, ScopeCategory)
	log.Printf("book deleted id=%d", id)
	return nil
}

// Search matches the term against title or author, case-insensitive. Search
// results are not cached.
func (s *Service) Search(ctx context.Context, term string, p PageRequest) (Page, error) {
	if err := auth.Require(ctx); err != nil {
		return Page{}, err
	}
	return s.repo.Search(ctx, term, p)
}

// GetByCategory returns a cached page of books within a category.
func (s *Service) GetByCategory(ctx context.Context, category string, p PageRequest) (Page, error) {
	if err := auth.Require(ctx); err != nil {
		return Page{}, err
	}

	key := categoryKey(category, p)
	var cached Page
	if hit := s.cacheGet(ctx, ScopeCategory, key, &cached); hit {
		return cached, nil
	}

	page, err := s.repo.ListByCategory(ctx, category, p)
	if err != nil {
		return Page{}, err
	}
	s.cacheSet(ctx, ScopeCategory, key, page)
	return page, nil
}

// LowStockResult is the future value of an async low-stock query, resolved
// exactly once.
type LowStockResult struct {
	once  sync.Once
	done  chan struct{}
	books []Book
	err   error
}

func newLowStockResult() *LowStockResult {
	return &LowStockResult{done: make(chan struct{})}
}

func (r *LowStockResult) resolve(books []Book, err error) {
	r.once.Do(func() {
		r.books = books
		r.err = err
		close(r.done)
	})
}

// Wait blocks until the query resolves or the caller's context expires.
func (r *LowStockResult) Wait(ctx context.Context) ([]Book, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-r.done:
		return r.books, r.err
	}
}

// GetLowStockAsync submits the low-stock query to the worker pool and returns
// a future. ADMIN only; threshold must be at least 1. A full backlog rejects
// the request instead of queueing indefinitely.
func (s *Service) GetLowStockAsync(ctx context.Context, threshold int) (*LowStockResult, error) {
	if err := auth.Require(ctx, auth.RoleAdmin); err != nil {
		return nil, err
	}
	if threshold < 1 {
		return nil, ErrThresholdTooLow
	}

	res := newLowStockResult()
	task := func(taskCtx context.Context) {
		books, err := s.repo.ListLowStock(taskCtx, threshold)
		if err != nil {
			log.Printf("error low stock query failed threshold=%d err=%v", threshold, err)
		} else {
			log.Printf("low stock query done threshold=%d found=%d", threshold, len(books))
		}
		res.resolve(books, err)
	}
	if err := s.pool.Submit(task); err != nil {
		log.Printf("warn low stock task rejected err=%v", err)
		return nil, err
	}
	return res, nil
}

// cacheGet is best-effort: a cache failure degrades to a store read.
func (s *Service) cacheGet(ctx context.Context, scope, key string, dest any) bool {
	hit, err := s.cache.Get(ctx, scope, key, dest)
	if err != nil {
		log.Printf("warn cache get failed scope=%s key=%s err=%v", scope, key, err)
		return false
	}
	return hit
}

func (s *Service) cacheSet(ctx context.Context, scope, key string, value any) {
	if err := s.cache.Set(ctx, scope, key, value); err != nil {
		log.Printf("warn cache set failed scope=%s key=%s err=%v", scope, key, err)
	}
}

func (s *Service) evict(ctx context.Context, scopes ...string) {
	if err := s.cache.EvictScope(ctx, scopes...); err != nil {
		log.Printf("warn cache evict failed scopes=%v err=%v", scopes, err)
	}
}
