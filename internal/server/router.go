package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/memopad-app/memopad-api/internal/blob"
	"github.com/memopad-app/memopad-api/internal/labels"
	"github.com/memopad-app/memopad-api/internal/notes"
	"github.com/memopad-app/memopad-api/internal/users"
	"go.uber.org/zap"
)

const ownerIDContextKey = "memopad_user_id"

var (
	errMissingUsersService  = errors.New("users service dependency required")
	errMissingLabelsService = errors.New("labels service dependency required")
	errMissingNotesService  = errors.New("notes service dependency required")
)

// Dependencies wires the HTTP boundary to the domain services.
type Dependencies struct {
	Users  *users.Service
	Labels *labels.Service
	Notes  *notes.Service
	Logger *zap.Logger

	// UploadDir, when set, is mounted under /uploads so locally stored
	// images resolve.
	UploadDir string
}

// NewHTTPHandler builds the full route surface.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Users == nil {
		return nil, errMissingUsersService
	}
	if deps.Labels == nil {
		return nil, errMissingLabelsService
	}
	if deps.Notes == nil {
		return nil, errMissingNotesService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		users:  deps.Users,
		labels: deps.Labels,
		notes:  deps.Notes,
		logger: logger,
	}

	router.POST("/auth/signup", handler.handleSignup)
	router.POST("/auth/signin", handler.handleSignin)
	router.GET("/auth/me", handler.handleMe)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/labels", handler.handleListLabels)
	protected.POST("/labels", handler.handleCreateLabel)
	protected.PUT("/labels/:id", handler.handleUpdateLabel)
	protected.DELETE("/labels/:id", handler.handleDeleteLabel)
	protected.GET("/notes", handler.handleListNotes)
	protected.GET("/notes/search", handler.handleSearchNotes)
	protected.GET("/notes/:id", handler.handleGetNote)
	protected.POST("/notes", handler.handleCreateNote)
	protected.PUT("/notes/:id", handler.handleUpdateNote)
	protected.DELETE("/notes/:id", handler.handleDeleteNote)

	if deps.UploadDir != "" {
		router.Static("/uploads", deps.UploadDir)
	}

	return router, nil
}

type httpHandler struct {
	users  *users.Service
	labels *labels.Service
	notes  *notes.Service
	logger *zap.Logger
}

// authorizeRequest is the access gate: every protected operation runs with
// the resolved caller id, or not at all.
func (h *httpHandler) authorizeRequest(c *gin.Context) {
	user, err := h.users.ResolveToken(c.Request.Context(), bearerToken(c))
	if err != nil {
		h.logger.Error("identity resolution failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	if user == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(ownerIDContextKey, user.ID)
	c.Next()
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

type signupPayload struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signinPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *httpHandler) handleSignup(c *gin.Context) {
	var payload signupPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	// Older clients send the display name as "username".
	name := payload.Name
	if name == "" {
		name = payload.Username
	}

	user, token, err := h.users.Register(c.Request.Context(), payload.Email, name, payload.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user, "token": token})
}

func (h *httpHandler) handleSignin(c *gin.Context) {
	var payload signinPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	user, token, err := h.users.Authenticate(c.Request.Context(), payload.Email, payload.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user, "token": token})
}

func (h *httpHandler) handleMe(c *gin.Context) {
	user, err := h.users.ResolveToken(c.Request.Context(), bearerToken(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	// Anonymous callers get an explicit null, not an error.
	c.JSON(http.StatusOK, user)
}

func (h *httpHandler) handleListLabels(c *gin.Context) {
	listed, err := h.labels.List(c.Request.Context(), c.GetString(ownerIDContextKey))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, listed)
}

type labelPayload struct {
	Name  *string `json:"name"`
	Color *string `json:"color"`
}

func (h *httpHandler) handleCreateLabel(c *gin.Context) {
	var payload labelPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	name, color := "", ""
	if payload.Name != nil {
		name = *payload.Name
	}
	if payload.Color != nil {
		color = *payload.Color
	}

	label, err := h.labels.Create(c.Request.Context(), c.GetString(ownerIDContextKey), name, color)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, label)
}

func (h *httpHandler) handleUpdateLabel(c *gin.Context) {
	var payload labelPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	label, err := h.labels.Update(c.Request.Context(), c.GetString(ownerIDContextKey), c.Param("id"), payload.Name, payload.Color)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, label)
}

func (h *httpHandler) handleDeleteLabel(c *gin.Context) {
	if err := h.labels.Delete(c.Request.Context(), c.GetString(ownerIDContextKey), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleListNotes(c *gin.Context) {
	page, err := h.notes.List(c.Request.Context(), c.GetString(ownerIDContextKey), pageRequest(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *httpHandler) handleSearchNotes(c *gin.Context) {
	request := notes.SearchRequest{
		PageRequest: pageRequest(c),
		Text:        c.Query("q"),
		LabelIDs:    splitCSV(c.Query("labels")),
	}
	page, err := h.notes.Search(c.Request.Context(), c.GetString(ownerIDContextKey), request)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *httpHandler) handleGetNote(c *gin.Context) {
	note, err := h.notes.Get(c.Request.Context(), c.GetString(ownerIDContextKey), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, note)
}

type createNotePayload struct {
	Title    *string  `json:"title"`
	Content  string   `json:"content"`
	ImageURL *string  `json:"imageUrl"`
	LabelIDs []string `json:"labelIds"`
}

func (h *httpHandler) handleCreateNote(c *gin.Context) {
	ownerID := c.GetString(ownerIDContextKey)

	var input notes.CreateNoteInput
	var upload *blob.Upload

	if isMultipart(c) {
		if title, ok := c.GetPostForm("title"); ok {
			input.Title = &title
		}
		if imageURL, ok := c.GetPostForm("imageUrl"); ok {
			input.ImageURL = &imageURL
		}
		input.Content = c.PostForm("content")

		ids, ok := formLabelIDs(c)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "labelIds must be a JSON array"})
			return
		}
		if ids != nil {
			input.LabelIDs = *ids
		}

		parsed, closeUpload, err := formUpload(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
			return
		}
		if closeUpload != nil {
			defer closeUpload()
		}
		upload = parsed
	} else {
		var payload createNotePayload
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
			return
		}
		input = notes.CreateNoteInput{
			Title:    payload.Title,
			Content:  payload.Content,
			ImageURL: payload.ImageURL,
			LabelIDs: payload.LabelIDs,
		}
	}

	// Reject a bad upload before the note row is written.
	if upload != nil {
		if err := blob.Validate(*upload); err != nil {
			h.writeError(c, err)
			return
		}
	}

	note, err := h.notes.Create(c.Request.Context(), ownerID, input)
	if err != nil {
		h.writeError(c, err)
		return
	}

	if upload != nil {
		url, err := h.notes.AttachImage(c.Request.Context(), ownerID, note.ID, *upload)
		if err != nil {
			h.writeError(c, err)
			return
		}
		note.ImageURL = &url
	}

	c.JSON(http.StatusCreated, note)
}

type updateNotePayload struct {
	Title    *string   `json:"title"`
	Content  *string   `json:"content"`
	ImageURL *string   `json:"imageUrl"`
	Position *int64    `json:"position"`
	LabelIDs *[]string `json:"labelIds"`
}

func (h *httpHandler) handleUpdateNote(c *gin.Context) {
	ownerID := c.GetString(ownerIDContextKey)

	var input notes.UpdateNoteInput
	var upload *blob.Upload

	if isMultipart(c) {
		if title, ok := c.GetPostForm("title"); ok {
			input.Title = &title
		}
		if content, ok := c.GetPostForm("content"); ok {
			input.Content = &content
		}
		if imageURL, ok := c.GetPostForm("imageUrl"); ok {
			input.ImageURL = &imageURL
		}
		if raw, ok := c.GetPostForm("position"); ok {
			position, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "position must be an integer"})
				return
			}
			input.Position = &position
		}
		ids, ok := formLabelIDs(c)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "labelIds must be a JSON array"})
			return
		}
		input.LabelIDs = ids

		parsed, closeUpload, err := formUpload(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
			return
		}
		if closeUpload != nil {
			defer closeUpload()
		}
		upload = parsed
	} else {
		var payload updateNotePayload
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
			return
		}
		input = notes.UpdateNoteInput{
			Title:    payload.Title,
			Content:  payload.Content,
			ImageURL: payload.ImageURL,
			Position: payload.Position,
			LabelIDs: payload.LabelIDs,
		}
	}

	if upload != nil {
		if err := blob.Validate(*upload); err != nil {
			h.writeError(c, err)
			return
		}
	}

	note, err := h.notes.Update(c.Request.Context(), ownerID, c.Param("id"), input)
	if err != nil {
		h.writeError(c, err)
		return
	}

	if upload != nil {
		url, err := h.notes.AttachImage(c.Request.Context(), ownerID, note.ID, *upload)
		if err != nil {
			h.writeError(c, err)
			return
		}
		note.ImageURL = &url
	}

	c.JSON(http.StatusOK, note)
}

func (h *httpHandler) handleDeleteNote(c *gin.Context) {
	if err := h.notes.Delete(c.Request.Context(), c.GetString(ownerIDContextKey), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// writeError translates domain failures into the HTTP error taxonomy.
// Anything unrecognized is logged and surfaced as a generic 500.
func (h *httpHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, users.ErrMissingField),
		errors.Is(err, users.ErrWeakPassword),
		errors.Is(err, users.ErrDuplicateEmail),
		errors.Is(err, labels.ErrMissingField),
		errors.Is(err, labels.ErrDuplicateName),
		errors.Is(err, notes.ErrEmptyContent):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, users.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, labels.ErrNotFound), errors.Is(err, notes.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, blob.ErrTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
	case errors.Is(err, blob.ErrUnsupportedMedia):
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": err.Error()})
	default:
		h.logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}

func pageRequest(c *gin.Context) notes.PageRequest {
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	return notes.PageRequest{Page: page, Limit: limit}
}

func splitCSV(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/form-data")
}

// formLabelIDs reads the labelIds form field, which carries a JSON-encoded
// array. Returns (nil, true) when the field is absent.
func formLabelIDs(c *gin.Context) (*[]string, bool) {
	raw, ok := c.GetPostForm("labelIds")
	if !ok {
		return nil, true
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, false
	}
	if ids == nil {
		ids = []string{}
	}
	return &ids, true
}

func formUpload(c *gin.Context) (*blob.Upload, func(), error) {
	header, err := c.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	file, err := header.Open()
	if err != nil {
		return nil, nil, err
	}
	upload := &blob.Upload{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Reader:      file,
	}
	return upload, func() { _ = file.Close() }, nil
}
