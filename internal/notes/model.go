package notes

import "github.com/memopad-app/memopad-api/internal/labels"

// Note models a persisted note. Labels are resolved separately and never
// stored on this row; the slice is populated by the query layer so a note is
// never returned without its label list.
type Note struct {
	ID               string  `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	UserID           string  `gorm:"column:user_id;size:190;not null;index:idx_notes_user" json:"userId"`
	Title            *string `gorm:"column:title;size:500" json:"title"`
	Content          string  `gorm:"column:content;type:text;not null" json:"content"`
	ImageURL         *string `gorm:"column:image_url;size:2048" json:"imageUrl"`
	Position         int64   `gorm:"column:position;not null;default:0" json:"position"`
	CreatedAtSeconds int64   `gorm:"column:created_at_s;not null" json:"createdAt"`
	UpdatedAtSeconds int64   `gorm:"column:updated_at_s;not null" json:"updatedAt"`

	Labels []labels.Label `gorm:"-" json:"labels"`
}

// TableName provides the explicit table binding for GORM.
func (Note) TableName() string {
	return "notes"
}

// NoteLabel is the many-to-many association row between a note and a label.
// Both sides belong to the same owner; the services enforce that before a
// row is written.
type NoteLabel struct {
	NoteID  string `gorm:"column:note_id;primaryKey;size:190;not null"`
	LabelID string `gorm:"column:label_id;primaryKey;size:190;not null;index:idx_note_labels_label"`
}

// TableName provides the explicit table binding for GORM.
func (NoteLabel) TableName() string {
	return "note_labels"
}

// CreateNoteInput carries the fields accepted at note creation. Content is
// required non-empty; everything else is optional. Label ids that do not
// resolve to labels of the same owner are silently dropped.
type CreateNoteInput struct {
	Title    *string
	Content  string
	ImageURL *string
	LabelIDs []string
}

// UpdateNoteInput carries partial-update fields. Nil means "leave untouched";
// a non-nil pointer, including a pointer to an empty slice for LabelIDs,
// replaces the stored value.
type UpdateNoteInput struct {
	Title    *string
	Content  *string
	ImageURL *string
	Position *int64
	LabelIDs *[]string
}
