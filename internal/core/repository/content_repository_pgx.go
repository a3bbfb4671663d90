package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/duynhne/travel-portal/internal/core/domain"
)

// PgxContentRepository implements domain.ContentRepository on the documents table.
type PgxContentRepository struct {
	pool *pgxpool.Pool
}

// NewContentRepository creates a new PgxContentRepository.
func NewContentRepository(pool *pgxpool.Pool) *PgxContentRepository {
	return &PgxContentRepository{pool: pool}
}

const documentColumns = `id, collection, data, position, created_at, updated_at`

func scanDocument(row pgx.Row) (*domain.Document, error) {
	var doc domain.Document
	err := row.Scan(&doc.ID, &doc.Collection, &doc.Data, &doc.Position, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &doc, nil
}

// List returns the documents of a collection ordered by position, then creation time.
func (r *PgxContentRepository) List(ctx context.Context, collection string) ([]domain.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE collection = $1 ORDER BY position, created_at`

	rows, err := r.pool.Query(ctx, query, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := make([]domain.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// Get returns a single document.
// Returns (nil, nil) when no document is found.
func (r *PgxContentRepository) Get(ctx context.Context, collection, id string) (*domain.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE collection = $1 AND id = $2`
	return scanDocument(r.pool.QueryRow(ctx, query, collection, id))
}

// Insert stores a new document and returns it with timestamps set.
func (r *PgxContentRepository) Insert(ctx context.Context, doc domain.Document) (*domain.Document, error) {
	query := `
		INSERT INTO documents (id, collection, data, position)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + documentColumns
	return scanDocument(r.pool.QueryRow(ctx, query, doc.ID, doc.Collection, doc.Data, doc.Position))
}

// Update replaces data and position of an existing document.
// Returns (nil, nil) when no document is found.
func (r *PgxContentRepository) Update(ctx context.Context, collection, id string, in domain.DocumentInput) (*domain.Document, error) {
	query := `
		UPDATE documents SET data = $3, position = $4, updated_at = CURRENT_TIMESTAMP
		WHERE collection = $1 AND id = $2
		RETURNING ` + documentColumns
	return scanDocument(r.pool.QueryRow(ctx, query, collection, id, in.Data, in.Position))
}

// Upsert inserts or replaces the document with the given id.
func (r *PgxContentRepository) Upsert(ctx context.Context, doc domain.Document) (*domain.Document, error) {
	query := `
		INSERT INTO documents (id, collection, data, position)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (collection, id) DO UPDATE
		SET data = EXCLUDED.data, position = EXCLUDED.position, updated_at = CURRENT_TIMESTAMP
		RETURNING ` + documentColumns
	return scanDocument(r.pool.QueryRow(ctx, query, doc.ID, doc.Collection, doc.Data, doc.Position))
}

// Delete removes a document and reports whether it existed.
func (r *PgxContentRepository) Delete(ctx context.Context, collection, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
