package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/paperproof/paperproof-api/internal/models"
)

// DocumentRepository defines persistence operations for read-mode documents.
type DocumentRepository interface {
	Create(ctx context.Context, document *models.PaperDocument) error
	GetByShareableID(ctx context.Context, shareableID string) (models.PaperDocument, error)
	GetBySourceURL(ctx context.Context, sourceURL string) (models.PaperDocument, error)
}

type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository instantiates a GORM-backed repository.
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

func (r *documentRepository) Create(ctx context.Context, document *models.PaperDocument) error {
	return r.db.WithContext(ctx).Create(document).Error
}

func (r *documentRepository) GetByShareableID(ctx context.Context, shareableID string) (models.PaperDocument, error) {
	var document models.PaperDocument
	if err := r.db.WithContext(ctx).Where("shareable_id = ?", shareableID).First(&document).Error; err != nil {
		return models.PaperDocument{}, err
	}

	return document, nil
}

func (r *documentRepository) GetBySourceURL(ctx context.Context, sourceURL string) (models.PaperDocument, error) {
	var document models.PaperDocument
	if err := r.db.WithContext(ctx).Where("source_url = ?", sourceURL).First(&document).Error; err != nil {
		return models.PaperDocument{}, err
	}

	return document, nil
}
