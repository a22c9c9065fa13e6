package notes

import (
	"context"
	"strings"

	"github.com/memopad-app/memopad-api/internal/labels"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultPage  = 1
	defaultLimit = 20
)

// PageRequest selects a window of results. Zero or negative values fall back
// to page 1, limit 20.
type PageRequest struct {
	Page  int
	Limit int
}

func (r PageRequest) normalized() PageRequest {
	if r.Page < 1 {
		r.Page = defaultPage
	}
	if r.Limit < 1 {
		r.Limit = defaultLimit
	}
	return r
}

// SearchRequest combines the free-text and label-set predicates. Both are
// optional; when both are present they are ANDed.
type SearchRequest struct {
	PageRequest

	// Text matches as a case-insensitive substring against title, content,
	// and the names of associated labels.
	Text string

	// LabelIDs keeps notes carrying at least one of the given labels.
	LabelIDs []string
}

// Pagination is the envelope returned with every note listing.
type Pagination struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int64 `json:"totalPages"`
}

// NotePage is one window of notes plus the pagination envelope.
type NotePage struct {
	Notes      []Note     `json:"notes"`
	Pagination Pagination `json:"pagination"`
}

// List returns the owner's notes ordered by position ascending, newest-first
// on position ties. The same ordering applies to Search.
func (s *Service) List(ctx context.Context, ownerID string, page PageRequest) (NotePage, error) {
	return s.page(ctx, opListNotes, ownerID, SearchRequest{PageRequest: page})
}

// Search filters the owner's notes by the request predicates and returns the
// same envelope and ordering as List.
func (s *Service) Search(ctx context.Context, ownerID string, req SearchRequest) (NotePage, error) {
	return s.page(ctx, opSearchNotes, ownerID, req)
}

func (s *Service) page(ctx context.Context, operation, ownerID string, req SearchRequest) (NotePage, error) {
	req.PageRequest = req.PageRequest.normalized()

	// One scope builds the filter set; it runs twice, once for the count and
	// once for the page fetch. DISTINCT guards against the row fan-out the
	// label-name join introduces.
	scope := func(db *gorm.DB) *gorm.DB {
		query := db.Model(&Note{}).Where("notes.user_id = ?", ownerID)

		if text := strings.TrimSpace(req.Text); text != "" {
			pattern := "%" + escapeLike(strings.ToLower(text)) + "%"
			query = query.
				Joins("LEFT JOIN note_labels ON note_labels.note_id = notes.id").
				Joins("LEFT JOIN labels ON labels.id = note_labels.label_id").
				Where(`(lower(notes.title) LIKE ? ESCAPE '\' OR lower(notes.content) LIKE ? ESCAPE '\' OR lower(labels.name) LIKE ? ESCAPE '\')`,
					pattern, pattern, pattern)
		}
		if len(req.LabelIDs) > 0 {
			query = query.Where("notes.id IN (SELECT note_id FROM note_labels WHERE label_id IN ?)", req.LabelIDs)
		}
		return query
	}

	var total int64
	if err := scope(s.db.WithContext(ctx)).Distinct("notes.id").Count(&total).Error; err != nil {
		s.logError(operation, "count_failed", err, zap.String("user_id", ownerID))
		return NotePage{}, newServiceError(operation, "count_failed", err)
	}

	notes := make([]Note, 0)
	err := scope(s.db.WithContext(ctx)).
		Distinct("notes.*").
		Order("notes.position ASC, notes.created_at_s DESC").
		Offset((req.Page - 1) * req.Limit).
		Limit(req.Limit).
		Find(&notes).Error
	if err != nil {
		s.logError(operation, "query_failed", err, zap.String("user_id", ownerID))
		return NotePage{}, newServiceError(operation, "query_failed", err)
	}

	if err := s.attachLabels(ctx, notes); err != nil {
		s.logError(operation, "label_fetch_failed", err, zap.String("user_id", ownerID))
		return NotePage{}, newServiceError(operation, "label_fetch_failed", err)
	}

	limit := int64(req.Limit)
	return NotePage{
		Notes: notes,
		Pagination: Pagination{
			Total:      total,
			Page:       req.Page,
			Limit:      req.Limit,
			TotalPages: (total + limit - 1) / limit,
		},
	}, nil
}

type noteLabelRow struct {
	NoteID           string `gorm:"column:note_id"`
	LabelID          string `gorm:"column:id"`
	UserID           string `gorm:"column:user_id"`
	Name             string `gorm:"column:name"`
	Color            string `gorm:"column:color"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s"`
}

// attachLabels resolves the label objects for every note in place, in a
// single join query, so notes are never returned with bare label ids or a
// nil label slice.
func (s *Service) attachLabels(ctx context.Context, items []Note) error {
	for i := range items {
		items[i].Labels = make([]labels.Label, 0)
	}
	if len(items) == 0 {
		return nil
	}

	ids := make([]string, 0, len(items))
	for _, note := range items {
		ids = append(ids, note.ID)
	}

	var rows []noteLabelRow
	err := s.db.WithContext(ctx).
		Table("note_labels").
		Select("note_labels.note_id AS note_id, labels.id, labels.user_id, labels.name, labels.color, labels.created_at_s").
		Joins("JOIN labels ON labels.id = note_labels.label_id").
		Where("note_labels.note_id IN ?", ids).
		Order("labels.created_at_s ASC").
		Scan(&rows).Error
	if err != nil {
		return err
	}

	grouped := make(map[string][]labels.Label, len(items))
	for _, row := range rows {
		grouped[row.NoteID] = append(grouped[row.NoteID], labels.Label{
			ID:               row.LabelID,
			UserID:           row.UserID,
			Name:             row.Name,
			Color:            row.Color,
			CreatedAtSeconds: row.CreatedAtSeconds,
		})
	}
	for i := range items {
		if resolved, ok := grouped[items[i].ID]; ok {
			items[i].Labels = resolved
		}
	}
	return nil
}

// escapeLike neutralizes LIKE metacharacters in user-supplied search text.
func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
