package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bblohar/MyBook-project/internal/models"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// SQLStore implements BookStore over database/sql for SQLite and PostgreSQL.
// Queries are written with ? placeholders and rebound per dialect.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	timeout time.Duration
	path    string
}

func newSQLStore(db *sql.DB, d dialect, timeout time.Duration, path string) *SQLStore {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &SQLStore{db: db, dialect: d, timeout: timeout, path: path}
}

func runMigrations(db *sql.DB, fs embed.FS, name string) error {
	data, err := fs.ReadFile(name)
	if err != nil {
		return fmt.Errorf("read migration: %w", err)
	}
	if _, err := db.Exec(string(data)); err != nil {
		return fmt.Errorf("exec migration: %w", err)
	}
	return nil
}

const bookColumns = `id, title, author, location, section, category_name, description, available, embedding, created_at, updated_at`

// rebind rewrites ? placeholders to $1, $2, ... for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// wrapErr maps driver errors onto the package sentinels.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}

// Path returns the SQLite database file, or "" for PostgreSQL and in-memory databases.
func (s *SQLStore) Path() string {
	return s.path
}

// CreateBook inserts book and sets its ID and timestamps.
func (s *SQLStore) CreateBook(ctx context.Context, book *models.Book) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	now := time.Now().UTC()
	emb, err := encodeEmbedding(book.Embedding)
	if err != nil {
		return err
	}
	err = s.db.QueryRowContext(ctx, s.rebind(
		`INSERT INTO books (title, author, location, section, category_name, description, available, embedding, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		book.Title, book.Author, book.Location, book.Section, book.CategoryName,
		nullableText(book.Description), book.Available, emb, now, now,
	).Scan(&book.ID)
	if err != nil {
		return wrapErr("create book", err)
	}
	book.CreatedAt = now
	book.UpdatedAt = now
	return nil
}

// GetBook returns a book by ID.
func (s *SQLStore) GetBook(ctx context.Context, id int64) (*models.Book, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+bookColumns+` FROM books WHERE id = ?`), id)
	book, err := scanBook(row)
	if err != nil {
		return nil, wrapErr("get book", err)
	}
	return book, nil
}

// UpdateBook overwrites the catalog fields of an existing book. The cached
// embedding column is left alone; only UpdateEmbedding(s) write it.
func (s *SQLStore) UpdateBook(ctx context.Context, book *models.Book) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	book.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE books SET title = ?, author = ?, location = ?, section = ?, category_name = ?,
		 description = ?, available = ?, updated_at = ? WHERE id = ?`),
		book.Title, book.Author, book.Location, book.Section, book.CategoryName,
		nullableText(book.Description), book.Available, book.UpdatedAt, book.ID,
	)
	if err != nil {
		return wrapErr("update book", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteBook removes a book by ID.
func (s *SQLStore) DeleteBook(ctx context.Context, id int64) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM books WHERE id = ?`), id)
	if err != nil {
		return wrapErr("delete book", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListBooks returns books ordered by ID with offset and limit.
func (s *SQLStore) ListBooks(ctx context.Context, offset, limit int) ([]*models.Book, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT `+bookColumns+` FROM books ORDER BY id LIMIT ? OFFSET ?`), limit, offset)
	if err != nil {
		return nil, wrapErr("list books", err)
	}
	defer rows.Close()
	return scanBooks(rows)
}

// ListIndexable returns the id and description of every book whose description
// is non-empty after trimming.
func (s *SQLStore) ListIndexable(ctx context.Context) ([]models.BookText, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, description FROM books
		 WHERE description IS NOT NULL AND TRIM(description) <> '' ORDER BY id`)
	if err != nil {
		return nil, wrapErr("list indexable", err)
	}
	defer rows.Close()

	out := make([]models.BookText, 0)
	for rows.Next() {
		var bt models.BookText
		if err := rows.Scan(&bt.ID, &bt.Description); err != nil {
			return nil, wrapErr("scan indexable", err)
		}
		// SQL TRIM only strips spaces.
		if strings.TrimSpace(bt.Description) == "" {
			continue
		}
		out = append(out, bt)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list indexable", err)
	}
	return out, nil
}

// GetBooksByIDs fetches the given books in one query. The result order is
// unspecified and missing ids are omitted.
func (s *SQLStore) GetBooksByIDs(ctx context.Context, ids []int64) ([]*models.Book, error) {
	if len(ids) == 0 {
		return []*models.Book{}, nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT `+bookColumns+` FROM books WHERE id IN (`+placeholders+`)`), args...)
	if err != nil {
		return nil, wrapErr("get books by ids", err)
	}
	defer rows.Close()
	return scanBooks(rows)
}

// UpdateEmbedding writes only the cached embedding column of one book.
// A nil embedding clears the column.
func (s *SQLStore) UpdateEmbedding(ctx context.Context, id int64, embedding []float32) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	emb, err := encodeEmbedding(embedding)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, s.rebind(`UPDATE books SET embedding = ? WHERE id = ?`), emb, id)
	if err != nil {
		return wrapErr("update embedding", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateEmbeddings writes the cached embedding column for many books in one
// transaction. Ids without a row are skipped.
func (s *SQLStore) UpdateEmbeddings(ctx context.Context, embeddings map[int64][]float32) error {
	if len(embeddings) == 0 {
		return nil
	}
	// Bulk writes get a longer budget than single-row calls.
	ctx, cancel := context.WithTimeout(ctx, s.timeout*time.Duration(1+len(embeddings)/1000))
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("begin bulk embedding update", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, s.rebind(`UPDATE books SET embedding = ? WHERE id = ?`))
	if err != nil {
		return wrapErr("prepare bulk embedding update", err)
	}
	defer stmt.Close()

	for id, vec := range embeddings {
		emb, err := encodeEmbedding(vec)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, emb, id); err != nil {
			return wrapErr(fmt.Sprintf("update embedding %d", id), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return wrapErr("commit bulk embedding update", err)
	}
	return nil
}

// ListEmbedded returns the ids of books whose cached embedding column is set.
func (s *SQLStore) ListEmbedded(ctx context.Context) ([]int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM books WHERE embedding IS NOT NULL ORDER BY id`)
	if err != nil {
		return nil, wrapErr("list embedded", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, wrapErr("scan embedded", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list embedded", err)
	}
	return ids, nil
}

// CountBooks returns the total number of books.
func (s *SQLStore) CountBooks(ctx context.Context) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM books`)
}

// CountIndexable returns the number of books with a non-blank description.
func (s *SQLStore) CountIndexable(ctx context.Context) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM books WHERE description IS NOT NULL AND TRIM(description) <> ''`)
}

func (s *SQLStore) count(ctx context.Context, query string) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var n int64
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, wrapErr("count", err)
	}
	return n, nil
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(row rowScanner) (*models.Book, error) {
	var (
		b           models.Book
		description sql.NullString
		embedding   sql.NullString
		created     timeValue
		updated     timeValue
	)
	if err := row.Scan(&b.ID, &b.Title, &b.Author, &b.Location, &b.Section, &b.CategoryName,
		&description, &b.Available, &embedding, &created, &updated); err != nil {
		return nil, err
	}
	b.Description = description.String
	b.CreatedAt = created.Time
	b.UpdatedAt = updated.Time
	if embedding.Valid && embedding.String != "" {
		if err := json.Unmarshal([]byte(embedding.String), &b.Embedding); err != nil {
			return nil, fmt.Errorf("decode embedding for book %d: %w", b.ID, err)
		}
	}
	return &b, nil
}

func scanBooks(rows *sql.Rows) ([]*models.Book, error) {
	books := make([]*models.Book, 0)
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, wrapErr("scan book", err)
		}
		books = append(books, b)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("scan books", err)
	}
	return books, nil
}

// encodeEmbedding stores the vector as a JSON array of floats; nil maps to NULL.
func encodeEmbedding(v []float32) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode embedding: %w", err)
	}
	return string(data), nil
}

func nullableText(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// timeValue scans timestamps from drivers that return time.Time, text or bytes.
type timeValue struct {
	Time time.Time
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	// time.Time.String form, which some drivers store verbatim
	"2006-01-02 15:04:05.999999999 -0700 MST",
}

func (t *timeValue) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	case int64:
		t.Time = time.Unix(v, 0).UTC()
		return nil
	default:
		return fmt.Errorf("unsupported timestamp type %T", src)
	}
}

func (t *timeValue) parse(s string) error {
	if i := strings.Index(s, " m="); i >= 0 {
		s = s[:i]
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unparseable timestamp %q", s)
}
