package book

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

const bookColumns = `id, title, author, isbn, price, category, description, stock_quantity, version, created_at, updated_at`

type PostgresRepo struct {
	db      *pgxpool.Pool
	timeout time.Duration
}

func NewPostgresRepo(db *pgxpool.Pool, timeout time.Duration) *PostgresRepo {
	return &PostgresRepo{db: db, timeout: timeout}
}

func (r *PostgresRepo) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

// sortColumn whitelists sortable fields; anything else falls back to title.
func sortColumn(sort string) string {
	switch sort {
	case "author", "price", "created_at", "stock_quantity":
		return sort
	default:
		return "title"
	}
}

func scanBook(row pgx.Row) (Book, error) {
	var b Book
	err := row.Scan(
		&b.ID, &b.Title, &b.Author, &b.ISBN, &b.Price, &b.Category, &b.Description,
		&b.StockQuantity, &b.Version, &b.CreatedAt, &b.UpdatedAt,
	)
	return b, err
}

func (r *PostgresRepo) FindByID(ctx context.Context, id int64) (Book, error) {
	query := fmt.Sprintf(`SELECT %s FROM books WHERE id = $1`, bookColumns)

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	b, err := scanBook(r.db.QueryRow(timeoutCtx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Book{}, ErrNotFound
		}
		return Book{}, err
	}
	return b, nil
}

func (r *PostgresRepo) FindByISBN(ctx context.Context, isbn string) (Book, error) {
	query := fmt.Sprintf(`SELECT %s FROM books WHERE isbn = $1`, bookColumns)

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	b, err := scanBook(r.db.QueryRow(timeoutCtx, query, isbn))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Book{}, ErrNotFound
		}
		return Book{}, err
	}
	return b, nil
}

func (r *PostgresRepo) ExistsByID(ctx context.Context, id int64) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM books WHERE id = $1)`

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	var exists bool
	if err := r.db.QueryRow(timeoutCtx, query, id).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *PostgresRepo) ExistsByISBN(ctx context.Context, isbn string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM books WHERE isbn = $1)`

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	var exists bool
	if err := r.db.QueryRow(timeoutCtx, query, isbn).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *PostgresRepo) List(ctx context.Context, p PageRequest) (Page, error) {
	return r.page(ctx, p, "", nil)
}

func (r *PostgresRepo) ListByCategory(ctx context.Context, category string, p PageRequest) (Page, error) {
	return r.page(ctx, p, "WHERE category = $1", []any{category})
}

func (r *PostgresRepo) Search(ctx context.Context, term string, p PageRequest) (Page, error) {
	where := "WHERE (title ILIKE $1 OR author ILIKE $1)"
	return r.page(ctx, p, where, []any{"%" + term + "%"})
}

func (r *PostgresRepo) page(ctx context.Context, p PageRequest, where string, args []any) (Page, error) {
	countSQL := fmt.Sprintf(`SELECT COUNT(*) FROM books %s`, where)

	var total int
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	if err := r.db.QueryRow(timeoutCtx, countSQL, args...).Scan(&total); err != nil {
		return Page{}, err
	}

	argn := len(args)
	dataSQL := fmt.Sprintf(`SELECT %s FROM books %s ORDER BY %s ASC LIMIT $%d OFFSET $%d`,
		bookColumns, where, sortColumn(p.Sort), argn+1, argn+2)

	pagedArgs := append(append([]any{}, args...), p.Size, p.Page*p.Size)
	timeoutCtx2, cancel2 := r.withTimeout(ctx)
	defer cancel2()
	rows, err := r.db.Query(timeoutCtx2, dataSQL, pagedArgs...)
	if err != nil {
		return Page{}, err
	}
	defer rows.Close()

	var books []Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return Page{}, err
		}
		books = append(books, b)
	}
	if err := rows.Err(); err != nil {
		return Page{}, err
	}
	return NewPage(books, p, total), nil
}

// ListLowStock returns books strictly below the threshold, lowest stock first.
func (r *PostgresRepo) ListLowStock(ctx context.Context, threshold int) ([]Book, error) {
	query := fmt.Sprintf(`SELECT %s FROM books WHERE stock_quantity < $1 ORDER BY stock_quantity ASC`, bookColumns)

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	rows, err := r.db.Query(timeoutCtx, query, threshold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var books []Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

func (r *PostgresRepo) Create(ctx context.Context, b *Book) error {
	const query = `
		INSERT INTO books (title, author, isbn, price, category, description, stock_quantity, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, NOW(), NOW())
		RETURNING id, version, created_at, updated_at
	`
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	err := r.db.QueryRow(timeoutCtx, query,
		b.Title, b.Author, b.ISBN, b.Price, b.Category, b.Description, b.StockQuantity,
	).Scan(&b.ID, &b.Version, &b.CreatedAt, &b.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateISBN
	}
	return err
}

// Update writes all mutable fields with a compare-and-swap on version. A write
// matching no row means the book is gone or the version is stale.
func (r *PostgresRepo) Update(ctx context.Context, b *Book) error {
	const query = `
		UPDATE books
		SET title = $1, author = $2, isbn = $3, price = $4, category = $5,
		    description = $6, stock_quantity = $7, version = version + 1, updated_at = NOW()
		WHERE id = $8 AND version = $9
		RETURNING version, updated_at
	`
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	err := r.db.QueryRow(timeoutCtx, query,
		b.Title, b.Author, b.ISBN, b.Price, b.Category, b.Description, b.StockQuantity,
		b.ID, b.Version,
	).Scan(&b.Version, &b.UpdatedAt)
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return ErrDuplicateISBN
	}
	if errors.Is(err, pgx.ErrNoRows) {
		exists, existsErr := r.ExistsByID(ctx, b.ID)
		if existsErr != nil {
			return existsErr
		}
		if !exists {
			return ErrNotFound
		}
		return ErrVersionConflict
	}
	return err
}

func (r *PostgresRepo) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM books WHERE id = $1`

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	tag, err := r.db.Exec(timeoutCtx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
