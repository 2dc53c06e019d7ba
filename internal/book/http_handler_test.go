package book_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookstore/internal/async"
	"bookstore/internal/auth"
	"bookstore/internal/book"
	"bookstore/internal/book/mocks"
	"bookstore/internal/httpx"
	"bookstore/internal/testutil"
)

// identityMiddleware injects a fixed identity, standing in for the token
// filter in handler-level tests.
func identityMiddleware(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := auth.ContextWithIdentity(r.Context(), auth.Identity{Subject: "tester", Roles: roles})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func newHandlerMux(t *testing.T, roles ...string) (http.Handler, *mocks.MockRepository, *mocks.MockCache) {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	repo := mocks.NewMockRepository(ctrl)
	cache := mocks.NewMockCache(ctrl)
	pool := async.NewPool(1, 4, time.Second)
	t.Cleanup(pool.Stop)

	handler := book.NewHTTPHandler(book.NewService(repo, cache, pool))
	mux := http.NewServeMux()
	handler.Register(mux)
	return identityMiddleware(roles...)(mux), repo, cache
}

func requestBody() map[string]any {
	return map[string]any{
		"title":          "Clean Code",
		"author":         "Robert C. Martin",
		"isbn":           "978-0-13-235088-4",
		"price":          42.99,
		"category":       "Technology",
		"stock_quantity": 25,
	}
}

func TestHTTPHandler_GetByID(t *testing.T) {
	t.Run("invalid id yields 400", func(t *testing.T) {
		mux, _, _ := newHandlerMux(t, auth.RoleUser)

		w := httptest.NewRecorder()
		mux.ServeHTTP(w, testutil.NewRequest(http.MethodGet, "/api/v1/books/abc", nil))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing book yields 404 problem", func(t *testing.T) {
		mux, repo, cache := newHandlerMux(t, auth.RoleUser)

		cache.EXPECT().Get(gomock.Any(), book.ScopeBook, "42", gomock.Any()).Return(false, nil)
		repo.EXPECT().FindByID(gomock.Any(), int64(42)).Return(book.Book{}, book.ErrNotFound)

		w := httptest.NewRecorder()
		mux.ServeHTTP(w, testutil.NewRequest(http.MethodGet, "/api/v1/books/42", nil))

		resp := testutil.RecordHTTPResponse(w)
		assert.Equal(t, http.StatusNotFound, resp.Code)
		assert.Equal(t, "Book Not Found", resp.Body["title"])
	})

	t.Run("found book carries navigation links", func(t *testing.T) {
		mux, repo, cache := newHandlerMux(t, auth.RoleUser)

		b := book.Book{ID: 7, Title: "Clean Code", ISBN: "9780132350884"}
		cache.EXPECT().Get(gomock.Any(), book.ScopeBook, "7", gomock.Any()).Return(false, nil)
		repo.EXPECT().FindByID(gomock.Any(), int64(7)).Return(b, nil)
		cache.EXPECT().Set(gomock.Any(), book.ScopeBook, "7", b).Return(nil)

		w := httptest.NewRecorder()
		mux.ServeHTTP(w, testutil.NewRequest(http.MethodGet, "/api/v1/books/7", nil))

		resp := testutil.RecordHTTPResponse(w)
		require.Equal(t, http.StatusOK, resp.Code)
		links, ok := resp.Body["_links"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "/api/v1/books/7", links["self"])
		assert.Equal(t, "/api/v1/books", links["collection"])
	})
}

func TestHTTPHandler_Create(t *testing.T) {
	t.Run("validation failure enumerates fields", func(t *testing.T) {
		mux, _, _ := newHandlerMux(t, auth.RoleLibrarian)

		body := requestBody()
		body["title"] = ""
		body["price"] = 10000.0

		w := httptest.NewRecorder()
		mux.ServeHTTP(w, testutil.NewRequest(http.MethodPost, "/api/v1/books", body))

		resp := testutil.RecordHTTPResponse(w)
		assert.Equal(t, http.StatusBadRequest, resp.Code)
		errs, ok := resp.Body["errors"].(map[string]any)
		require.True(t, ok)
		assert.Contains(t, errs, "title")
		assert.Contains(t, errs, "price")
	})

	t.Run("malformed body yields 400", func(t *testing.T) {
		mux, _, _ := newHandlerMux(t, auth.RoleLibrarian)

		r := httptest.NewRequest(http.MethodPost, "/api/v1/books", strings.NewReader("{not json"))
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("duplicate isbn yields 409", func(t *testing.T) {
		mux, repo, _ := newHandlerMux(t, auth.RoleLibrarian)

		repo.EXPECT().ExistsByISBN(gomock.Any(), "9780132350884").Return(true, nil)

		w := httptest.NewRecorder()
		mux.ServeHTTP(w, testutil.NewRequest(http.MethodPost, "/api/v1/books", requestBody()))

		resp := testutil.RecordHTTPResponse(w)
		assert.Equal(t, http.StatusConflict, resp.Code)
		assert.Equal(t, "Duplicate ISBN", resp.Body["title"])
	})

	t.Run("created book returns normalized isbn and 201", func(t *testing.T) {
		mux, repo, cache := newHandlerMux(t, auth.RoleLibrarian)

		repo.EXPECT().ExistsByISBN(gomock.Any(), "9780132350884").Return(false, nil)
		repo.EXPECT().Create(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, b *book.Book) error {
				b.ID = 1
				return nil
			})
		cache.EXPECT().EvictScope(gomock.Any(), book.ScopeBooks, book.ScopeBook).Return(nil)

		w := httptest.NewRecorder()
		mux.ServeHTTP(w, testutil.NewRequest(http.MethodPost, "/api/v1/books", requestBody()))

		resp := testutil.RecordHTTPResponse(w)
		require.Equal(t, http.StatusCreated, resp.Code)
		assert.Equal(t, "9780132350884", resp.Body["isbn"])
	})
}

func TestHTTPHandler_LowStock(t *testing.T) {
	t.Run("missing threshold yields 400", func(t *testing.T) {
		mux, _, _ := newHandlerMux(t, auth.RoleAdmin)

		w := httptest.NewRecorder()
		mux.ServeHTTP(w, testutil.NewRequest(http.MethodGet, "/api/v1/books/low-stock", nil))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("non-admin yields 403", func(t *testing.T) {
		mux, _, _ := newHandlerMux(t, auth.RoleLibrarian)

		w := httptest.NewRecorder()
		mux.ServeHTTP(w, testutil.NewRequest(http.MethodGet, "/api/v1/books/low-stock?threshold=10", nil))

		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

// --- end-to-end over an in-memory store ---

type memRepo struct {
	nextID int64
	byID   map[int64]book.Book
}

func newMemRepo() *memRepo {
	return &memRepo{nextID: 1, byID: make(map[int64]book.Book)}
}

func (m *memRepo) FindByID(_ context.Context, id int64) (book.Book, error) {
	b, ok := m.byID[id]
	if !ok {
		return book.Book{}, book.ErrNotFound
	}
	return b, nil
}

func (m *memRepo) FindByISBN(_ context.Context, isbn string) (book.Book, error) {
	for _, b := range m.byID {
		if b.ISBN == isbn {
			return b, nil
		}
	}
	return book.Book{}, book.ErrNotFound
}

func (m *memRepo) ExistsByID(ctx context.Context, id int64) (bool, error) {
	_, err := m.FindByID(ctx, id)
	return err == nil, nil
}

func (m *memRepo) ExistsByISBN(ctx context.Context, isbn string) (bool, error) {
	_, err := m.FindByISBN(ctx, isbn)
	return err == nil, nil
}

func (m *memRepo) all() []book.Book {
	out := make([]book.Book, 0, len(m.byID))
	for _, b := range m.byID {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out
}

func (m *memRepo) List(_ context.Context, p book.PageRequest) (book.Page, error) {
	all := m.all()
	return book.NewPage(all, p, len(all)), nil
}

func (m *memRepo) ListByCategory(_ context.Context, category string, p book.PageRequest) (book.Page, error) {
	var out []book.Book
	for _, b := range m.all() {
		if b.Category == category {
			out = append(out, b)
		}
	}
	return book.NewPage(out, p, len(out)), nil
}

func (m *memRepo) Search(_ context.Context, term string, p book.PageRequest) (book.Page, error) {
	term = strings.ToLower(term)
	var out []book.Book
	for _, b := range m.all() {
		if strings.Contains(strings.ToLower(b.Title), term) || strings.Contains(strings.ToLower(b.Author), term) {
			out = append(out, b)
		}
	}
	return book.NewPage(out, p, len(out)), nil
}

func (m *memRepo) ListLowStock(_ context.Context, threshold int) ([]book.Book, error) {
	var out []book.Book
	for _, b := range m.byID {
		if b.StockQuantity < threshold {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StockQuantity < out[j].StockQuantity })
	return out, nil
}

func (m *memRepo) Create(_ context.Context, b *book.Book) error {
	for _, existing := range m.byID {
		if existing.ISBN == b.ISBN {
			return book.ErrDuplicateISBN
		}
	}
	b.ID = m.nextID
	m.nextID++
	b.Version = 0
	b.CreatedAt = time.Now()
	b.UpdatedAt = b.CreatedAt
	m.byID[b.ID] = *b
	return nil
}

func (m *memRepo) Update(_ context.Context, b *book.Book) error {
	cur, ok := m.byID[b.ID]
	if !ok {
		return book.ErrNotFound
	}
	if cur.Version != b.Version {
		return book.ErrVersionConflict
	}
	b.Version++
	b.UpdatedAt = time.Now()
	m.byID[b.ID] = *b
	return nil
}

func (m *memRepo) Delete(_ context.Context, id int64) error {
	if _, ok := m.byID[id]; !ok {
		return book.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

// fakeCache is a scope-keyed map cache so eviction visibility can be observed.
type fakeCache struct {
	scopes map[string]map[string]any
}

func newFakeCache() *fakeCache {
	return &fakeCache{scopes: make(map[string]map[string]any)}
}

func (c *fakeCache) Get(_ context.Context, scope, key string, dest any) (bool, error) {
	v, ok := c.scopes[scope][key]
	if !ok {
		return false, nil
	}
	switch d := dest.(type) {
	case *book.Page:
		*d = v.(book.Page)
	case *book.Book:
		*d = v.(book.Book)
	}
	return true, nil
}

func (c *fakeCache) Set(_ context.Context, scope, key string, value any) error {
	if c.scopes[scope] == nil {
		c.scopes[scope] = make(map[string]any)
	}
	switch v := value.(type) {
	case book.Page:
		c.scopes[scope][key] = v
	case book.Book:
		c.scopes[scope][key] = v
	}
	return nil
}

func (c *fakeCache) EvictScope(_ context.Context, scopes ...string) error {
	for _, s := range scopes {
		delete(c.scopes, s)
	}
	return nil
}

func newAPIServer(t *testing.T) (http.Handler, *memRepo) {
	t.Helper()
	repo := newMemRepo()
	pool := async.NewPool(2, 8, time.Second)
	t.Cleanup(pool.Stop)

	handler := book.NewHTTPHandler(book.NewService(repo, newFakeCache(), pool))
	mux := http.NewServeMux()
	handler.Register(mux)
	return httpx.AuthMiddleware(testutil.TestSecret)(mux), repo
}

func TestBookAPI_EndToEndScenario(t *testing.T) {
	mux, _ := newAPIServer(t)

	librarian := testutil.GenerateTestToken(testutil.TestSecret, "lib-1", auth.RoleLibrarian)
	user := testutil.GenerateTestToken(testutil.TestSecret, "user-1", auth.RoleUser)
	admin := testutil.GenerateTestToken(testutil.TestSecret, "admin-1", auth.RoleAdmin)

	body := map[string]any{
		"title":          "T",
		"author":         "A",
		"isbn":           "9780132350884",
		"price":          10.00,
		"stock_quantity": 5,
	}

	// POST as LIBRARIAN -> 201, id assigned, version 0
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, testutil.NewRequestWithAuth(http.MethodPost, "/api/v1/books", body, librarian))
	created := testutil.RecordHTTPResponse(w)
	require.Equal(t, http.StatusCreated, created.Code)
	assert.Equal(t, float64(1), created.Body["id"])
	assert.Equal(t, float64(0), created.Body["version"])

	// GET as USER -> 200, same fields
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, testutil.NewRequestWithAuth(http.MethodGet, "/api/v1/books/1", nil, user))
	fetched := testutil.RecordHTTPResponse(w)
	require.Equal(t, http.StatusOK, fetched.Code)
	assert.Equal(t, "T", fetched.Body["title"])
	assert.Equal(t, "9780132350884", fetched.Body["isbn"])

	// DELETE as USER -> 403
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, testutil.NewRequestWithAuth(http.MethodDelete, "/api/v1/books/1", nil, user))
	assert.Equal(t, http.StatusForbidden, w.Code)

	// DELETE as ADMIN -> 204
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, testutil.NewRequestWithAuth(http.MethodDelete, "/api/v1/books/1", nil, admin))
	assert.Equal(t, http.StatusNoContent, w.Code)

	// GET again -> 404
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, testutil.NewRequestWithAuth(http.MethodGet, "/api/v1/books/1", nil, user))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBookAPI_NoToken(t *testing.T) {
	mux, _ := newAPIServer(t)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, testutil.NewRequest(http.MethodGet, "/api/v1/books", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBookAPI_DuplicateISBNOnSecondCreate(t *testing.T) {
	mux, _ := newAPIServer(t)
	librarian := testutil.GenerateTestToken(testutil.TestSecret, "lib-1", auth.RoleLibrarian)

	body := requestBody()

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, testutil.NewRequestWithAuth(http.MethodPost, "/api/v1/books", body, librarian))
	require.Equal(t, http.StatusCreated, w.Code)

	// same ISBN after normalization
	body["isbn"] = "978-0-13-235088-4"
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, testutil.NewRequestWithAuth(http.MethodPost, "/api/v1/books", body, librarian))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestBookAPI_UpdateIncrementsVersion(t *testing.T) {
	mux, _ := newAPIServer(t)
	librarian := testutil.GenerateTestToken(testutil.TestSecret, "lib-1", auth.RoleLibrarian)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, testutil.NewRequestWithAuth(http.MethodPost, "/api/v1/books", requestBody(), librarian))
	require.Equal(t, http.StatusCreated, w.Code)

	body := requestBody()
	body["title"] = "Clean Code, Second Edition"
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, testutil.NewRequestWithAuth(http.MethodPut, "/api/v1/books/1", body, librarian))
	updated := testutil.RecordHTTPResponse(w)
	require.Equal(t, http.StatusOK, updated.Code)
	assert.Equal(t, float64(1), updated.Body["version"])
	assert.Equal(t, "Clean Code, Second Edition", updated.Body["title"])
}

func TestBookAPI_SearchMatchesTitleOrAuthor(t *testing.T) {
	mux, _ := newAPIServer(t)
	librarian := testutil.GenerateTestToken(testutil.TestSecret, "lib-1", auth.RoleLibrarian)
	user := testutil.GenerateTestToken(testutil.TestSecret, "user-1", auth.RoleUser)

	corpus := []map[string]any{
		{"title": "Spring Boot Guide", "author": "Craig Walls", "isbn": "9781617292545", "price": 44.99, "stock_quantity": 12},
		{"title": "Java Fundamentals", "author": "Herbert Schildt", "isbn": "9781260440232", "price": 35.00, "stock_quantity": 30},
	}
	for _, b := range corpus {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, testutil.NewRequestWithAuth(http.MethodPost, "/api/v1/books", b, librarian))
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, testutil.NewRequestWithAuth(http.MethodGet, "/api/v1/books/search?q=Spring", nil, user))
	resp := testutil.RecordHTTPResponse(w)
	require.Equal(t, http.StatusOK, resp.Code)

	data, ok := resp.Body["data"].([]any)
	require.True(t, ok)
	require.Len(t, data, 1)
	item := data[0].(map[string]any)
	assert.Equal(t, "Spring Boot Guide", item["title"])
}

func TestBookAPI_LowStockStrictlyBelowThreshold(t *testing.T) {
	mux, _ := newAPIServer(t)
	librarian := testutil.GenerateTestToken(testutil.TestSecret, "lib-1", auth.RoleLibrarian)
	admin := testutil.GenerateTestToken(testutil.TestSecret, "admin-1", auth.RoleAdmin)

	stocks := []int{25, 15, 12, 30}
	for i, stock := range stocks {
		body := map[string]any{
			"title":          "Book",
			"author":         "Author",
			"isbn":           []string{"9780132350884", "9780201616224", "9781617292545", "9780134190440"}[i],
			"price":          10.00,
			"stock_quantity": stock,
		}
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, testutil.NewRequestWithAuth(http.MethodPost, "/api/v1/books", body, librarian))
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, testutil.NewRequestWithAuth(http.MethodGet, "/api/v1/books/low-stock?threshold=15", nil, admin))
	resp := testutil.RecordHTTPResponse(w)
	require.Equal(t, http.StatusOK, resp.Code)

	data, ok := resp.Body["data"].([]any)
	require.True(t, ok)
	require.Len(t, data, 1) // stock 15 itself is excluded
	item := data[0].(map[string]any)
	assert.Equal(t, float64(12), item["stock_quantity"])
}

func TestBookAPI_WriteInvalidatesCachedListing(t *testing.T) {
	mux, _ := newAPIServer(t)
	librarian := testutil.GenerateTestToken(testutil.TestSecret, "lib-1", auth.RoleLibrarian)
	user := testutil.GenerateTestToken(testutil.TestSecret, "user-1", auth.RoleUser)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, testutil.NewRequestWithAuth(http.MethodPost, "/api/v1/books", requestBody(), librarian))
	require.Equal(t, http.StatusCreated, w.Code)

	// prime the listing cache
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, testutil.NewRequestWithAuth(http.MethodGet, "/api/v1/books", nil, user))
	first := testutil.RecordHTTPResponse(w)
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, float64(1), first.Body["meta"].(map[string]any)["total"])

	// another write must evict the cached listing
	body := requestBody()
	body["isbn"] = "9780201616224"
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, testutil.NewRequestWithAuth(http.MethodPost, "/api/v1/books", body, librarian))
	require.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, testutil.NewRequestWithAuth(http.MethodGet, "/api/v1/books", nil, user))
	second := testutil.RecordHTTPResponse(w)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, float64(2), second.Body["meta"].(map[string]any)["total"])
}
