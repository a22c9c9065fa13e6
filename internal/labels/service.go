package labels

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/memopad-app/memopad-api/internal/ident"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrMissingField indicates name or color was empty.
	ErrMissingField = errors.New("label name and color are required")
	// ErrDuplicateName indicates the owner already has a label of that name.
	ErrDuplicateName = errors.New("label name is already in use")
	// ErrNotFound is returned when the label is absent or owned by another
	// user; the two cases are indistinguishable to the caller.
	ErrNotFound = errors.New("label not found")
)

// ServiceConfig describes the dependencies of the label catalog.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	IDs      ident.Provider
	Logger   *zap.Logger
}

// Service owns label records and their per-owner name uniqueness.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	ids    ident.Provider
	logger *zap.Logger
}

// NewService constructs the label catalog.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("labels: database handle is required")
	}
	if cfg.IDs == nil {
		return nil, fmt.Errorf("labels: id provider is required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, clock: clock, ids: cfg.IDs, logger: logger}, nil
}

// List returns the owner's labels in creation order.
func (s *Service) List(ctx context.Context, ownerID string) ([]Label, error) {
	const op = "labels.list"

	labels := make([]Label, 0)
	err := s.db.WithContext(ctx).
		Where("user_id = ?", ownerID).
		Order("created_at_s ASC").
		Find(&labels).Error
	if err != nil {
		s.logger.Error("label query failed", zap.String("operation", op), zap.Error(err))
		return nil, fmt.Errorf("%s: query: %w", op, err)
	}
	return labels, nil
}

// Create adds a label after checking the owner has no label of that name.
func (s *Service) Create(ctx context.Context, ownerID, name, color string) (Label, error) {
	const op = "labels.create"

	name = strings.TrimSpace(name)
	color = strings.TrimSpace(color)
	if name == "" || color == "" {
		return Label{}, ErrMissingField
	}

	taken, err := s.nameTaken(ctx, ownerID, name, "")
	if err != nil {
		s.logger.Error("duplicate check failed", zap.String("operation", op), zap.Error(err))
		return Label{}, fmt.Errorf("%s: duplicate check: %w", op, err)
	}
	if taken {
		return Label{}, ErrDuplicateName
	}

	id, err := s.ids.NewID()
	if err != nil {
		return Label{}, fmt.Errorf("%s: generate id: %w", op, err)
	}

	label := Label{
		ID:               id,
		UserID:           ownerID,
		Name:             name,
		Color:            color,
		CreatedAtSeconds: s.clock().UTC().Unix(),
	}
	if err := s.db.WithContext(ctx).Create(&label).Error; err != nil {
		s.logger.Error("label insert failed", zap.String("operation", op), zap.Error(err))
		return Label{}, fmt.Errorf("%s: insert: %w", op, err)
	}
	return label, nil
}

// Update renames or recolors the label. A rename re-checks uniqueness against
// the owner's other labels.
func (s *Service) Update(ctx context.Context, ownerID, labelID string, name, color *string) (Label, error) {
	const op = "labels.update"

	var label Label
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", labelID, ownerID).
		Take(&label).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Label{}, ErrNotFound
	}
	if err != nil {
		s.logger.Error("label lookup failed", zap.String("operation", op), zap.Error(err))
		return Label{}, fmt.Errorf("%s: lookup: %w", op, err)
	}

	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if trimmed == "" {
			return Label{}, ErrMissingField
		}
		if trimmed != label.Name {
			taken, err := s.nameTaken(ctx, ownerID, trimmed, label.ID)
			if err != nil {
				s.logger.Error("duplicate check failed", zap.String("operation", op), zap.Error(err))
				return Label{}, fmt.Errorf("%s: duplicate check: %w", op, err)
			}
			if taken {
				return Label{}, ErrDuplicateName
			}
		}
		label.Name = trimmed
	}
	if color != nil {
		trimmed := strings.TrimSpace(*color)
		if trimmed == "" {
			return Label{}, ErrMissingField
		}
		label.Color = trimmed
	}

	if err := s.db.WithContext(ctx).Save(&label).Error; err != nil {
		s.logger.Error("label save failed", zap.String("operation", op), zap.Error(err))
		return Label{}, fmt.Errorf("%s: save: %w", op, err)
	}
	return label, nil
}

// Delete removes the label and every note association that references it.
// Notes themselves are untouched.
func (s *Service) Delete(ctx context.Context, ownerID, labelID string) error {
	const op = "labels.delete"

	var label Label
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", labelID, ownerID).
		Take(&label).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if err != nil {
		s.logger.Error("label lookup failed", zap.String("operation", op), zap.Error(err))
		return fmt.Errorf("%s: lookup: %w", op, err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM note_labels WHERE label_id = ?", label.ID).Error; err != nil {
			return err
		}
		return tx.Delete(&label).Error
	})
	if err != nil {
		s.logger.Error("label delete failed", zap.String("operation", op), zap.Error(err))
		return fmt.Errorf("%s: delete: %w", op, err)
	}
	return nil
}

// nameTaken reports whether the owner already uses the name, optionally
// excluding one label id (self-exclusion on rename).
func (s *Service) nameTaken(ctx context.Context, ownerID, name, excludeID string) (bool, error) {
	query := s.db.WithContext(ctx).Model(&Label{}).
		Where("user_id = ? AND name = ?", ownerID, name)
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
