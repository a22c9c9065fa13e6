package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/memopad-app/memopad-api/internal/auth"
	"github.com/memopad-app/memopad-api/internal/blob"
	"github.com/memopad-app/memopad-api/internal/ident"
	"github.com/memopad-app/memopad-api/internal/labels"
	"github.com/memopad-app/memopad-api/internal/notes"
	"github.com/memopad-app/memopad-api/internal/users"
	"gorm.io/gorm"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// newTestHandler wires the real services over an in-memory database, with a
// real token issuer and bcrypt hasher, the same way the entrypoint does.
func newTestHandler(t *testing.T) http.Handler {
	t.Helper()

	dsn := fmt.Sprintf("file:server_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&users.User{}, &labels.Label{}, &notes.Note{}, &notes.NoteLabel{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	ids := ident.NewUUIDProvider()
	issuer := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("server-test-secret"),
		Issuer:        "memopad-auth",
		Audience:      "memopad-api",
	})

	uploadDir := t.TempDir()
	blobs, err := blob.NewFileStore(uploadDir, "http://localhost:8888", nil)
	if err != nil {
		t.Fatalf("failed to construct file store: %v", err)
	}

	usersService, err := users.NewService(users.ServiceConfig{
		Database: db,
		IDs:      ids,
		Tokens:   issuer,
		Hasher:   auth.NewPasswordHasher(),
	})
	if err != nil {
		t.Fatalf("failed to construct users service: %v", err)
	}
	labelsService, err := labels.NewService(labels.ServiceConfig{Database: db, IDs: ids})
	if err != nil {
		t.Fatalf("failed to construct labels service: %v", err)
	}
	notesService, err := notes.NewService(notes.ServiceConfig{Database: db, IDs: ids, Blobs: blobs})
	if err != nil {
		t.Fatalf("failed to construct notes service: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		Users:     usersService,
		Labels:    labelsService,
		Notes:     notesService,
		UploadDir: uploadDir,
	})
	if err != nil {
		t.Fatalf("failed to construct handler: %v", err)
	}
	return handler
}

func performJSON(t *testing.T, handler http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}

	request := httptest.NewRequest(method, path, reader)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
}

type userDocument struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type authDocument struct {
	User  userDocument `json:"user"`
	Token string       `json:"token"`
}

type labelDocument struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

type noteDocument struct {
	ID       string          `json:"id"`
	Title    *string         `json:"title"`
	Content  string          `json:"content"`
	ImageURL *string         `json:"imageUrl"`
	Position int64           `json:"position"`
	Labels   []labelDocument `json:"labels"`
}

type notePageDocument struct {
	Notes      []noteDocument `json:"notes"`
	Pagination struct {
		Total      int64 `json:"total"`
		Page       int   `json:"page"`
		Limit      int   `json:"limit"`
		TotalPages int64 `json:"totalPages"`
	} `json:"pagination"`
}

func signupUser(t *testing.T, handler http.Handler, email string) string {
	t.Helper()
	recorder := performJSON(t, handler, http.MethodPost, "/auth/signup", "", gin.H{
		"name":     "Test User",
		"email":    email,
		"password": "long enough password",
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("signup failed with status %d: %s", recorder.Code, recorder.Body.String())
	}
	var document authDocument
	decodeBody(t, recorder, &document)
	if document.Token == "" {
		t.Fatalf("signup returned no token")
	}
	return document.Token
}

func createLabelViaAPI(t *testing.T, handler http.Handler, token, name, color string) labelDocument {
	t.Helper()
	recorder := performJSON(t, handler, http.MethodPost, "/labels", token, gin.H{"name": name, "color": color})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("label creation failed with status %d: %s", recorder.Code, recorder.Body.String())
	}
	var document labelDocument
	decodeBody(t, recorder, &document)
	return document
}

func createNoteViaAPI(t *testing.T, handler http.Handler, token string, body gin.H) noteDocument {
	t.Helper()
	recorder := performJSON(t, handler, http.MethodPost, "/notes", token, body)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("note creation failed with status %d: %s", recorder.Code, recorder.Body.String())
	}
	var document noteDocument
	decodeBody(t, recorder, &document)
	return document
}

// multipartBody assembles a multipart form with the given text fields and an
// optional file part named "image".
func multipartBody(t *testing.T, fields map[string]string, fileName, fileType string, fileContent []byte) (*bytes.Buffer, string) {
	t.Helper()

	buffer := &bytes.Buffer{}
	writer := multipart.NewWriter(buffer)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("failed to write form field: %v", err)
		}
	}
	if fileName != "" {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, fileName))
		header.Set("Content-Type", fileType)
		part, err := writer.CreatePart(header)
		if err != nil {
			t.Fatalf("failed to create file part: %v", err)
		}
		if _, err := part.Write(fileContent); err != nil {
			t.Fatalf("failed to write file part: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}
	return buffer, writer.FormDataContentType()
}

func performMultipart(t *testing.T, handler http.Handler, method, path, token string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	request := httptest.NewRequest(method, path, body)
	request.Header.Set("Content-Type", contentType)
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}
