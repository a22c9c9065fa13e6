package notes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/memopad-app/memopad-api/internal/blob"
	"github.com/memopad-app/memopad-api/internal/ident"
	"github.com/memopad-app/memopad-api/internal/labels"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingBlobStore  = errors.New("blob store is not configured")
	noOpLogger           = zap.NewNop()

	// ErrEmptyContent indicates a create or update with no usable content.
	ErrEmptyContent = errors.New("note content is required")
	// ErrNotFound is returned when the note is absent or owned by another
	// user; the two cases are indistinguishable to the caller.
	ErrNotFound = errors.New("note not found")
)

// ServiceError carries a stable machine-readable code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew  = "notes.service.new"
	opCreateNote  = "notes.create"
	opGetNote     = "notes.get"
	opUpdateNote  = "notes.update"
	opDeleteNote  = "notes.delete"
	opAttachImage = "notes.attach_image"
	opListNotes   = "notes.list"
	opSearchNotes = "notes.search"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// ServiceConfig describes the dependencies of the note store.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	IDs      ident.Provider
	Blobs    blob.Store
	Logger   *zap.Logger
}

// Service owns note records, their manual ordering and label associations,
// and the listing/search queries over them.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	ids    ident.Provider
	blobs  blob.Store
	logger *zap.Logger
}

// NewService constructs the note store. The blob store may be nil when image
// attachment is not wired; AttachImage then fails cleanly.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDs == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:     cfg.Database,
		clock:  clock,
		ids:    cfg.IDs,
		blobs:  cfg.Blobs,
		logger: logger,
	}, nil
}

// Create persists a note for the owner. The position is one past the owner's
// current maximum, 0 for a first note. Label ids are verified against the
// owner's labels; unverified ids are dropped, not rejected.
func (s *Service) Create(ctx context.Context, ownerID string, input CreateNoteInput) (Note, error) {
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return Note{}, ErrEmptyContent
	}

	owned, err := s.ownedLabels(ctx, ownerID, input.LabelIDs)
	if err != nil {
		s.logError(opCreateNote, "label_verify_failed", err, zap.String("user_id", ownerID))
		return Note{}, newServiceError(opCreateNote, "label_verify_failed", err)
	}

	var position int64
	err = s.db.WithContext(ctx).Model(&Note{}).
		Where("user_id = ?", ownerID).
		Select("COALESCE(MAX(position) + 1, 0)").
		Scan(&position).Error
	if err != nil {
		s.logError(opCreateNote, "position_query_failed", err, zap.String("user_id", ownerID))
		return Note{}, newServiceError(opCreateNote, "position_query_failed", err)
	}

	id, err := s.ids.NewID()
	if err != nil {
		s.logError(opCreateNote, "id_generation_failed", err, zap.String("user_id", ownerID))
		return Note{}, newServiceError(opCreateNote, "id_generation_failed", err)
	}

	now := s.clock().UTC().Unix()
	note := Note{
		ID:               id,
		UserID:           ownerID,
		Title:            input.Title,
		Content:          content,
		ImageURL:         input.ImageURL,
		Position:         position,
		CreatedAtSeconds: now,
		UpdatedAtSeconds: now,
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&note).Error; err != nil {
			return err
		}
		return replaceAssociations(tx, note.ID, owned)
	})
	if txErr != nil {
		s.logError(opCreateNote, "insert_failed", txErr,
			zap.String("user_id", ownerID),
			zap.String("note_id", note.ID))
		return Note{}, newServiceError(opCreateNote, "insert_failed", txErr)
	}

	note.Labels = owned
	return note, nil
}

// Get returns the owner's note with its resolved labels.
func (s *Service) Get(ctx context.Context, ownerID, noteID string) (Note, error) {
	note, err := s.load(ctx, opGetNote, ownerID, noteID)
	if err != nil {
		return Note{}, err
	}
	loaded := []Note{note}
	if err := s.attachLabels(ctx, loaded); err != nil {
		s.logError(opGetNote, "label_fetch_failed", err,
			zap.String("user_id", ownerID),
			zap.String("note_id", noteID))
		return Note{}, newServiceError(opGetNote, "label_fetch_failed", err)
	}
	return loaded[0], nil
}

// Update applies the supplied fields only; omitted fields keep their prior
// values. A supplied label set replaces the stored set outright: an empty
// slice clears every association while nil leaves them untouched.
func (s *Service) Update(ctx context.Context, ownerID, noteID string, input UpdateNoteInput) (Note, error) {
	note, err := s.load(ctx, opUpdateNote, ownerID, noteID)
	if err != nil {
		return Note{}, err
	}

	if input.Content != nil {
		content := strings.TrimSpace(*input.Content)
		if content == "" {
			return Note{}, ErrEmptyContent
		}
		note.Content = content
	}
	if input.Title != nil {
		note.Title = input.Title
	}
	if input.ImageURL != nil {
		note.ImageURL = input.ImageURL
	}
	if input.Position != nil {
		note.Position = *input.Position
	}
	note.UpdatedAtSeconds = s.clock().UTC().Unix()

	var owned []labels.Label
	if input.LabelIDs != nil {
		owned, err = s.ownedLabels(ctx, ownerID, *input.LabelIDs)
		if err != nil {
			s.logError(opUpdateNote, "label_verify_failed", err,
				zap.String("user_id", ownerID),
				zap.String("note_id", noteID))
			return Note{}, newServiceError(opUpdateNote, "label_verify_failed", err)
		}
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(&note).Error; err != nil {
			return err
		}
		if input.LabelIDs == nil {
			return nil
		}
		if err := tx.Exec("DELETE FROM note_labels WHERE note_id = ?", note.ID).Error; err != nil {
			return err
		}
		return replaceAssociations(tx, note.ID, owned)
	})
	if txErr != nil {
		s.logError(opUpdateNote, "save_failed", txErr,
			zap.String("user_id", ownerID),
			zap.String("note_id", noteID))
		return Note{}, newServiceError(opUpdateNote, "save_failed", txErr)
	}

	if input.LabelIDs != nil {
		note.Labels = owned
		return note, nil
	}
	loaded := []Note{note}
	if err := s.attachLabels(ctx, loaded); err != nil {
		s.logError(opUpdateNote, "label_fetch_failed", err,
			zap.String("user_id", ownerID),
			zap.String("note_id", noteID))
		return Note{}, newServiceError(opUpdateNote, "label_fetch_failed", err)
	}
	return loaded[0], nil
}

// Delete removes the note and its association rows. Labels themselves and
// other notes are untouched.
func (s *Service) Delete(ctx context.Context, ownerID, noteID string) error {
	note, err := s.load(ctx, opDeleteNote, ownerID, noteID)
	if err != nil {
		return err
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM note_labels WHERE note_id = ?", note.ID).Error; err != nil {
			return err
		}
		return tx.Delete(&note).Error
	})
	if txErr != nil {
		s.logError(opDeleteNote, "delete_failed", txErr,
			zap.String("user_id", ownerID),
			zap.String("note_id", noteID))
		return newServiceError(opDeleteNote, "delete_failed", txErr)
	}
	return nil
}

// AttachImage stores the upload through the blob collaborator and overwrites
// the note's image URL with the returned address. The blob call may be slow;
// it takes the request context and is never retried here.
func (s *Service) AttachImage(ctx context.Context, ownerID, noteID string, upload blob.Upload) (string, error) {
	if s.blobs == nil {
		s.logError(opAttachImage, "missing_blob_store", errMissingBlobStore)
		return "", newServiceError(opAttachImage, "missing_blob_store", errMissingBlobStore)
	}

	note, err := s.load(ctx, opAttachImage, ownerID, noteID)
	if err != nil {
		return "", err
	}

	url, err := s.blobs.Put(ctx, ownerID, upload)
	if err != nil {
		// Policy errors (size, media type) pass through untranslated so the
		// boundary can map them.
		return "", err
	}

	err = s.db.WithContext(ctx).Model(&Note{}).
		Where("id = ?", note.ID).
		Updates(map[string]interface{}{
			"image_url":    url,
			"updated_at_s": s.clock().UTC().Unix(),
		}).Error
	if err != nil {
		s.logError(opAttachImage, "save_failed", err,
			zap.String("user_id", ownerID),
			zap.String("note_id", noteID))
		return "", newServiceError(opAttachImage, "save_failed", err)
	}

	return url, nil
}

func (s *Service) load(ctx context.Context, operation, ownerID, noteID string) (Note, error) {
	var note Note
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", noteID, ownerID).
		Take(&note).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Note{}, ErrNotFound
	}
	if err != nil {
		s.logError(operation, "lookup_failed", err,
			zap.String("user_id", ownerID),
			zap.String("note_id", noteID))
		return Note{}, newServiceError(operation, "lookup_failed", err)
	}
	return note, nil
}

// ownedLabels resolves the requested ids to labels owned by ownerID. Ids that
// are unknown or foreign-owned simply do not come back.
func (s *Service) ownedLabels(ctx context.Context, ownerID string, labelIDs []string) ([]labels.Label, error) {
	owned := make([]labels.Label, 0, len(labelIDs))
	if len(labelIDs) == 0 {
		return owned, nil
	}
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND id IN ?", ownerID, labelIDs).
		Order("created_at_s ASC").
		Find(&owned).Error
	if err != nil {
		return nil, err
	}
	return owned, nil
}

func replaceAssociations(tx *gorm.DB, noteID string, owned []labels.Label) error {
	if len(owned) == 0 {
		return nil
	}
	rows := make([]NoteLabel, 0, len(owned))
	for _, label := range owned {
		rows = append(rows, NoteLabel{NoteID: noteID, LabelID: label.ID})
	}
	return tx.Create(&rows).Error
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("notes service error", attrs...)
}
