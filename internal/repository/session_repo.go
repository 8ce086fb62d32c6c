package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/paperproof/paperproof-api/internal/models"
)

// SessionRepository defines persistence operations for fact-check sessions.
// The paper sub-tree is only ever written whole; there is no per-field patch.
type SessionRepository interface {
	Create(ctx context.Context, session *models.FactCheckSession) error
	GetByShareableID(ctx context.Context, shareableID string) (models.FactCheckSession, error)
	ReplacePapers(ctx context.Context, session *models.FactCheckSession) error
	Delete(ctx context.Context, shareableID string) error
}

type sessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository instantiates a GORM-backed repository.
func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) Create(ctx context.Context, session *models.FactCheckSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *sessionRepository) GetByShareableID(ctx context.Context, shareableID string) (models.FactCheckSession, error) {
	var session models.FactCheckSession
	err := r.db.WithContext(ctx).
		Preload("Papers", func(db *gorm.DB) *gorm.DB { return db.Order("candidate_papers.id ASC") }).
		Preload("Papers.Analysis").
		Where("shareable_id = ?", shareableID).
		First(&session).Error
	if err != nil {
		return models.FactCheckSession{}, err
	}

	return session, nil
}

// ReplacePapers swaps the session's entire paper sub-tree in one transaction.
// Re-saving the whole tree avoids partial-write inconsistency when deep
// analyses arrive in batches.
func (r *sessionRepository) ReplacePapers(ctx context.Context, session *models.FactCheckSession) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var paperIDs []uint
		if err := tx.Model(&models.CandidatePaper{}).
			Where("session_id = ?", session.ID).
			Pluck("id", &paperIDs).Error; err != nil {
			return err
		}

		if len(paperIDs) > 0 {
			if err := tx.Where("paper_id IN ?", paperIDs).Delete(&models.PaperAnalysis{}).Error; err != nil {
				return err
			}
			if err := tx.Where("session_id = ?", session.ID).Delete(&models.CandidatePaper{}).Error; err != nil {
				return err
			}
		}

		for i := range session.Papers {
			session.Papers[i].ID = 0
			session.Papers[i].SessionID = session.ID
			if session.Papers[i].Analysis != nil {
				session.Papers[i].Analysis.ID = 0
				session.Papers[i].Analysis.PaperID = 0
			}
		}

		if len(session.Papers) > 0 {
			if err := tx.Create(&session.Papers).Error; err != nil {
				return err
			}
		}

		return tx.Model(&models.FactCheckSession{}).
			Where("id = ?", session.ID).
			Update("final_verdict", session.FinalVerdict).Error
	})
}

func (r *sessionRepository) Delete(ctx context.Context, shareableID string) error {
	var session models.FactCheckSession
	if err := r.db.WithContext(ctx).Where("shareable_id = ?", shareableID).First(&session).Error; err != nil {
		return err
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var paperIDs []uint
		if err := tx.Model(&models.CandidatePaper{}).
			Where("session_id = ?", session.ID).
			Pluck("id", &paperIDs).Error; err != nil {
			return err
		}
		if len(paperIDs) > 0 {
			if err := tx.Where("paper_id IN ?", paperIDs).Delete(&models.PaperAnalysis{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("session_id = ?", session.ID).Delete(&models.CandidatePaper{}).Error; err != nil {
			return err
		}
		return tx.Delete(&session).Error
	})
}
