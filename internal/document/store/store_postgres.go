package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"cadastra/internal/document/models"
	id "cadastra/pkg/domain"
	"cadastra/pkg/platform/sentinel"
	"cadastra/pkg/platform/tx"
)

// PostgresStore is the production Store.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const documentColumns = `
	id, human_readable_id, filename, original_filename, mime_type, size_bytes,
	storage_path, document_type, related_entity_type, related_entity_id,
	uploaded_by, content_hash, anchor_ref, verified, verified_by, verified_at,
	ocr_text, metadata, created_at`

func (s *PostgresStore) Insert(ctx context.Context, d *models.Document) error {
	metadata, err := json.Marshal(d.Metadata)
	if err != nil {
		return fmt.Errorf("marshal document metadata: %w", err)
	}

	var verifiedBy any
	if d.VerifiedBy != nil {
		verifiedBy = uuid.UUID(*d.VerifiedBy)
	}

	q := tx.QuerierFrom(ctx, s.db)
	_, err = q.ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`, uuid.UUID(d.ID), d.HumanReadableID, d.Filename, d.OriginalFilename, d.MimeType, d.SizeBytes,
		d.StoragePath, string(d.DocumentType), d.RelatedEntityType, d.RelatedEntityID,
		uuid.UUID(d.UploadedBy), d.ContentHash, d.AnchorRef, d.Verified, verifiedBy, d.VerifiedAt,
		d.OCRText, metadata, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, docID id.DocumentID) (*models.Document, error) {
	q := tx.QuerierFrom(ctx, s.db)
	row := q.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, uuid.UUID(docID))
	return scanDocument(row)
}

func (s *PostgresStore) ListByUploader(ctx context.Context, uploaderID id.UserID) ([]*models.Document, error) {
	q := tx.QuerierFrom(ctx, s.db)
	rows, err := q.QueryContext(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE uploaded_by = $1
		ORDER BY created_at DESC
	`, uuid.UUID(uploaderID))
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []*models.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Execute holds a FOR UPDATE row lock across validate and mutate.
func (s *PostgresStore) Execute(ctx context.Context, docID id.DocumentID,
	validate func(*models.Document) error,
	mutate func(*models.Document)) (*models.Document, error) {

	var result *models.Document
	err := tx.RunInTx(ctx, s.db, func(ctx context.Context) error {
		q := tx.QuerierFrom(ctx, s.db)
		row := q.QueryRowContext(ctx,
			`SELECT `+documentColumns+` FROM documents WHERE id = $1 FOR UPDATE`, uuid.UUID(docID))
		d, err := scanDocument(row)
		if err != nil {
			return err
		}

		if err := validate(d); err != nil {
			return err
		}
		mutate(d)

		var verifiedBy any
		if d.VerifiedBy != nil {
			verifiedBy = uuid.UUID(*d.VerifiedBy)
		}
		_, err = q.ExecContext(ctx, `
			UPDATE documents SET verified = $2, verified_by = $3, verified_at = $4
			WHERE id = $1
		`, uuid.UUID(d.ID), d.Verified, verifiedBy, d.VerifiedAt)
		if err != nil {
			return fmt.Errorf("update document: %w", err)
		}
		result = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *PostgresStore) Delete(ctx context.Context, docID id.DocumentID) error {
	q := tx.QuerierFrom(ctx, s.db)
	res, err := q.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, uuid.UUID(docID))
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var (
		d          models.Document
		docID      uuid.UUID
		uploadedBy uuid.UUID
		docType    string
		verifiedBy uuid.NullUUID
		verifiedAt sql.NullTime
		metadata   []byte
	)
	err := row.Scan(&docID, &d.HumanReadableID, &d.Filename, &d.OriginalFilename, &d.MimeType, &d.SizeBytes,
		&d.StoragePath, &docType, &d.RelatedEntityType, &d.RelatedEntityID,
		&uploadedBy, &d.ContentHash, &d.AnchorRef, &d.Verified, &verifiedBy, &verifiedAt,
		&d.OCRText, &metadata, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan document: %w", err)
	}

	d.ID = id.DocumentID(docID)
	d.UploadedBy = id.UserID(uploadedBy)
	d.DocumentType = models.Type(docType)
	if verifiedBy.Valid {
		v := id.UserID(verifiedBy.UUID)
		d.VerifiedBy = &v
	}
	if verifiedAt.Valid {
		t := verifiedAt.Time
		d.VerifiedAt = &t
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &d.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal document metadata: %w", err)
		}
	}
	return &d, nil
}
