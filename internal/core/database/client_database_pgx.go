package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
	"unicode"

	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/markdave123-py/spacechat/internal/config"
	"github.com/markdave123-py/spacechat/internal/core"
	"github.com/markdave123-py/spacechat/internal/models"
)

var _ core.DbClient = (*DatabaseClient)(nil)

type DatabaseClient struct {
	db *sql.DB
}

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	dsn := cfg.DatabaseURL
	if cfg.SslCertPath != "" {
		if _, err := os.Stat(cfg.SslCertPath); err != nil {
			return nil, fmt.Errorf("ssl cert not accessible at %q: %w", cfg.SslCertPath, err)
		}
		// Append SSL params to the provided DATABASE_URL safely.
		u, err := url.Parse(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid DATABASE_URL: %w", err)
		}
		q := u.Query()
		q.Set("sslmode", "verify-ca")
		q.Set("sslrootcert", cfg.SslCertPath)
		u.RawQuery = q.Encode()
		dsn = u.String()
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Sensible pool settings for an API service; adjust as needed.
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	// Ensure bootstrap once
	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Spaces

func (c *DatabaseClient) CreateSpace(ctx context.Context, space *models.Space) error {
	if space == nil {
		return errors.New("nil space")
	}
	const q = `
		INSERT INTO spaces
			(id, owner_id, name, description, persona, tone, audience, fallback_message, index_handle, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
	`
	_, err := c.db.ExecContext(ctx, q,
		space.ID, space.OwnerID, space.Name, space.Description, space.Persona, space.Tone,
		space.Audience, space.FallbackMessage, space.IndexHandle)
	return err
}

func (c *DatabaseClient) GetSpace(ctx context.Context, id string) (*models.Space, error) {
	const q = `
		SELECT id, owner_id, name, description, persona, tone, audience, fallback_message, index_handle, created_at, updated_at
		FROM spaces WHERE id = $1
	`
	var s models.Space
	err := c.db.QueryRowContext(ctx, q, id).Scan(
		&s.ID, &s.OwnerID, &s.Name, &s.Description, &s.Persona, &s.Tone, &s.Audience,
		&s.FallbackMessage, &s.IndexHandle, &s.CreatedAt, &s.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ClaimSpaceIndexHandle is a conditional single-row update; the first writer wins
// and later callers read the winner back.
func (c *DatabaseClient) ClaimSpaceIndexHandle(ctx context.Context, spaceID, handle string) (string, error) {
	const claim = `
		UPDATE spaces
		SET index_handle = $2, updated_at = now()
		WHERE id = $1 AND index_handle IS NULL
	`
	if _, err := c.db.ExecContext(ctx, claim, spaceID, handle); err != nil {
		return "", err
	}

	var current sql.NullString
	err := c.db.QueryRowContext(ctx, `SELECT index_handle FROM spaces WHERE id = $1`, spaceID).Scan(&current)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("space not found: %s", spaceID)
	}
	if err != nil {
		return "", err
	}
	return current.String, nil
}

// Documents

const documentColumns = `id, space_id, owner_id, file_name, kind, storage_path, source_url, content, content_type,
	extracted_text, status, error_message, index_file_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var d models.Document
	err := row.Scan(
		&d.ID, &d.SpaceID, &d.OwnerID, &d.FileName, &d.Kind, &d.StoragePath, &d.SourceURL, &d.Content,
		&d.ContentType, &d.ExtractedText, &d.Status, &d.ErrorMessage, &d.IndexFileID, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *DatabaseClient) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	const q = `
		INSERT INTO documents
			(id, space_id, owner_id, file_name, kind, storage_path, source_url, content, content_type, status, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
	`
	_, err := c.db.ExecContext(ctx, q,
		doc.ID, doc.SpaceID, doc.OwnerID, doc.FileName, doc.Kind, doc.StoragePath, doc.SourceURL,
		doc.Content, doc.ContentType, doc.Status)
	return err
}

func (c *DatabaseClient) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	d, err := scanDocument(c.db.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return d, err
}

func (c *DatabaseClient) ListDocumentsBySpace(ctx context.Context, spaceID string) ([]models.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE space_id = $1 ORDER BY created_at DESC`
	rows, err := c.db.QueryContext(ctx, q, spaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) ListPendingDocuments(ctx context.Context) ([]models.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE status IN ('uploading', 'indexing') ORDER BY created_at ASC`
	rows, err := c.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) UpdateDocumentStatus(ctx context.Context, id string, upd models.StatusUpdate) error {
	const q = `
		UPDATE documents
		SET status = $2, error_message = $3, extracted_text = COALESCE($4, extracted_text),
			index_file_id = $5, updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, upd.Status, upd.ErrorMessage, upd.ExtractedText, upd.IndexFileID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("document not found: %s", id)
	}
	return nil
}

func (c *DatabaseClient) DeleteDocument(ctx context.Context, id string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	return err
}

// Document chunks

// InsertDocumentChunks inserts chunks in a single transaction.
func (c *DatabaseClient) InsertDocumentChunks(ctx context.Context, chunks []models.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO document_chunks
			(id, document_id, space_id, position, text, embedding, token_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range chunks {
		ch := &chunks[i]

		// Chunks stored without an embedder keep a NULL vector.
		var vec any
		if len(ch.Embedding) > 0 {
			vec = pgvector.NewVector(ch.Embedding)
		}

		if _, err := stmt.ExecContext(ctx,
			ch.ID, ch.DocumentID, ch.SpaceID, ch.Position, ch.Text, vec, ch.TokenCount,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

const chunkColumns = `id, document_id, space_id, position, text, token_count, created_at`

func scanChunks(rows *sql.Rows) ([]models.DocumentChunk, error) {
	defer rows.Close()

	var out []models.DocumentChunk
	for rows.Next() {
		var ch models.DocumentChunk
		if err := rows.Scan(
			&ch.ID, &ch.DocumentID, &ch.SpaceID, &ch.Position, &ch.Text, &ch.TokenCount, &ch.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) DeleteChunksByDocument(ctx context.Context, documentID string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID)
	return err
}

func (c *DatabaseClient) CountSpaceChunks(ctx context.Context, spaceID string) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, `SELECT count(*) FROM document_chunks WHERE space_id = $1`, spaceID).Scan(&n)
	return n, err
}

// SearchSpaceChunks finds the top chunks of a space for a question. With a query
// embedding it orders by vector distance; otherwise it uses Postgres full-text
// search over any of the question's words. When nothing matches, the leading
// chunks are returned so small spaces still get context.
func (c *DatabaseClient) SearchSpaceChunks(ctx context.Context, spaceID, query string, queryVec []float32, limit int) ([]models.DocumentChunk, error) {
	if limit <= 0 {
		limit = 5
	}

	if len(queryVec) > 0 {
		q := `SELECT ` + chunkColumns + `
			FROM document_chunks
			WHERE space_id = $1 AND embedding IS NOT NULL
			ORDER BY embedding <-> $2
			LIMIT $3`
		rows, err := c.db.QueryContext(ctx, q, spaceID, pgvector.NewVector(queryVec), limit)
		if err != nil {
			return nil, err
		}
		out, err := scanChunks(rows)
		if err != nil || len(out) > 0 {
			return out, err
		}
	}

	if tsq := orTSQuery(query); tsq != "" {
		q := `SELECT ` + chunkColumns + `
			FROM document_chunks
			WHERE space_id = $1 AND to_tsvector('simple', text) @@ to_tsquery('simple', $2)
			ORDER BY ts_rank(to_tsvector('simple', text), to_tsquery('simple', $2)) DESC, position ASC
			LIMIT $3`
		rows, err := c.db.QueryContext(ctx, q, spaceID, tsq, limit)
		if err != nil {
			return nil, err
		}
		out, err := scanChunks(rows)
		if err != nil || len(out) > 0 {
			return out, err
		}
	}

	q := `SELECT ` + chunkColumns + `
		FROM document_chunks
		WHERE space_id = $1
		ORDER BY created_at ASC, position ASC
		LIMIT $2`
	rows, err := c.db.QueryContext(ctx, q, spaceID, limit)
	if err != nil {
		return nil, err
	}
	return scanChunks(rows)
}

// orTSQuery turns free text into a to_tsquery expression matching any word.
// Only letters and digits survive, so the expression is always well formed.
func orTSQuery(query string) string {
	return strings.Join(queryWords(query), " | ")
}

func queryWords(query string) []string {
	return strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Share links

const linkColumns = `id, space_id, token, label, revoked, view_count, last_used_at, created_at`

func scanLink(row rowScanner) (*models.ShareLink, error) {
	var l models.ShareLink
	if err := row.Scan(&l.ID, &l.SpaceID, &l.Token, &l.Label, &l.Revoked, &l.ViewCount, &l.LastUsedAt, &l.CreatedAt); err != nil {
		return nil, err
	}
	return &l, nil
}

func (c *DatabaseClient) CreateShareLink(ctx context.Context, link *models.ShareLink) error {
	if link == nil {
		return errors.New("nil share link")
	}
	const q = `
		INSERT INTO share_links (id, space_id, token, label, revoked, view_count, created_at)
		VALUES ($1, $2, $3, $4, $5, 0, now())
	`
	_, err := c.db.ExecContext(ctx, q, link.ID, link.SpaceID, link.Token, link.Label, link.Revoked)
	return err
}

func (c *DatabaseClient) GetShareLink(ctx context.Context, id string) (*models.ShareLink, error) {
	l, err := scanLink(c.db.QueryRowContext(ctx, `SELECT `+linkColumns+` FROM share_links WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return l, err
}

func (c *DatabaseClient) GetActiveShareLinkByToken(ctx context.Context, token string) (*models.ShareLink, error) {
	q := `SELECT ` + linkColumns + ` FROM share_links WHERE token = $1 AND revoked = false`
	l, err := scanLink(c.db.QueryRowContext(ctx, q, token))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return l, err
}

func (c *DatabaseClient) RecordShareLinkUse(ctx context.Context, id string) error {
	const q = `
		UPDATE share_links
		SET view_count = view_count + 1, last_used_at = now()
		WHERE id = $1
	`
	_, err := c.db.ExecContext(ctx, q, id)
	return err
}

func (c *DatabaseClient) SetShareLinkRevoked(ctx context.Context, id string, revoked bool) error {
	res, err := c.db.ExecContext(ctx, `UPDATE share_links SET revoked = $2 WHERE id = $1`, id, revoked)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("share link not found: %s", id)
	}
	return nil
}
