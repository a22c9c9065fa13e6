package notes

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/memopad-app/memopad-api/internal/blob"
	"github.com/memopad-app/memopad-api/internal/labels"
	"gorm.io/gorm"
)

type staticIDGenerator struct {
	prefix string
	next   int
}

func (g *staticIDGenerator) NewID() (string, error) {
	g.next++
	return fmt.Sprintf("%s-%d", g.prefix, g.next), nil
}

// fakeBlobStore records puts and hands back a canned URL.
type fakeBlobStore struct {
	urls []string
	puts int
}

func (s *fakeBlobStore) Put(_ context.Context, _ string, _ blob.Upload) (string, error) {
	url := s.urls[s.puts%len(s.urls)]
	s.puts++
	return url, nil
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	service, db := newTestServiceWithBlobs(t, nil)
	return service, db
}

func newTestServiceWithBlobs(t *testing.T, blobs blob.Store) (*Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:notes_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&labels.Label{}, &Note{}, &NoteLabel{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	clockSeconds := int64(1700000000)
	clock := func() time.Time {
		clockSeconds++
		return time.Unix(clockSeconds, 0).UTC()
	}

	service, err := NewService(ServiceConfig{
		Database: db,
		Clock:    clock,
		IDs:      &staticIDGenerator{prefix: "note"},
		Blobs:    blobs,
	})
	if err != nil {
		t.Fatalf("failed to construct notes service: %v", err)
	}
	return service, db
}

func seedLabel(t *testing.T, db *gorm.DB, id, ownerID, name string) labels.Label {
	t.Helper()
	label := labels.Label{
		ID:               id,
		UserID:           ownerID,
		Name:             name,
		Color:            "#cccccc",
		CreatedAtSeconds: 1690000000,
	}
	if err := db.Create(&label).Error; err != nil {
		t.Fatalf("failed to seed label: %v", err)
	}
	return label
}

func mustCreate(t *testing.T, service *Service, ownerID, content string, labelIDs ...string) Note {
	t.Helper()
	note, err := service.Create(context.Background(), ownerID, CreateNoteInput{
		Content:  content,
		LabelIDs: labelIDs,
	})
	if err != nil {
		t.Fatalf("failed to create note: %v", err)
	}
	return note
}

func labelNames(note Note) []string {
	names := make([]string, 0, len(note.Labels))
	for _, label := range note.Labels {
		names = append(names, label.Name)
	}
	return names
}
