package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/simple-media/pkg/simplemedia"
	"github.com/tendant/simple-media/pkg/simplemedia/reconcile"
)

const (
	// DefaultMaxUploadBytes caps the multipart request body
	DefaultMaxUploadBytes = 10 << 20

	// uploadFormField is the multipart field carrying the image
	uploadFormField = "imageFile"

	maxIDsPerRequest = 100
)

// Sweeper runs the orphan sweep on demand
type Sweeper interface {
	Sweep(ctx context.Context, opts reconcile.SweepOptions) (*reconcile.SweepResult, error)
}

// MediaResponse is the response body for a media object
type MediaResponse struct {
	ID          int64     `json:"id"`
	MediaType   string    `json:"media_type"`
	StorageKey  string    `json:"storage_key"`
	URL         string    `json:"url"`
	FileName    string    `json:"file_name,omitempty"`
	ContentType string    `json:"content_type,omitempty"`
	Size        int64     `json:"size"`
	OwnerID     *int64    `json:"owner_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// OwnerMediaRequest is the request body for attaching media to an owner
type OwnerMediaRequest struct {
	ImageIDs []int64 `json:"image_ids"`
}

// ErrorResponse is the body of every JSON error
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// MediaHandler handles HTTP requests for images
type MediaHandler struct {
	service        simplemedia.Service
	sweeper        Sweeper
	logger         *slog.Logger
	maxUploadBytes int64
}

// HandlerOption configures the handler
type HandlerOption func(*MediaHandler)

// WithMaxUploadBytes overrides DefaultMaxUploadBytes
func WithMaxUploadBytes(n int64) HandlerOption {
	return func(h *MediaHandler) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

// WithHandlerLogger sets the structured logger
func WithHandlerLogger(logger *slog.Logger) HandlerOption {
	return func(h *MediaHandler) {
		h.logger = logger
	}
}

// NewMediaHandler creates a new media handler
func NewMediaHandler(service simplemedia.Service, sweeper Sweeper, opts ...HandlerOption) *MediaHandler {
	h := &MediaHandler{
		service:        service,
		sweeper:        sweeper,
		logger:         slog.Default(),
		maxUploadBytes: DefaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the routes for images. adminMiddleware guards the manual
// sweep only.
func (h *MediaHandler) Routes(adminMiddleware ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Post("/upload", h.Upload)
	r.With(adminMiddleware...).Delete("/delete", h.DeleteUnattached)
	r.Get("/{id}", h.GetMedia)

	r.Route("/owners/{ownerID}", func(r chi.Router) {
		r.Get("/", h.ListOwnerMedia)
		r.Post("/", h.ClaimOwnerMedia)
		r.Put("/", h.ReplaceOwnerMedia)
		r.Delete("/", h.ClearOwnerMedia)
	})

	return r
}

// Upload stores a new unattached image
func (h *MediaHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeJSONError(w, r, http.StatusRequestEntityTooLarge, "request_too_large", "Upload exceeds the size limit")
			return
		}
		h.writeJSONError(w, r, http.StatusBadRequest, "invalid_form", "Invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	mediaType, err := simplemedia.ParseMediaType(r.FormValue("type"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var upload *simplemedia.UploadFile
	file, header, err := r.FormFile(uploadFormField)
	switch {
	case errors.Is(err, http.ErrMissingFile):
		// Validation reports the missing file
	case err != nil:
		h.writeJSONError(w, r, http.StatusBadRequest, "invalid_form", "Invalid multipart form")
		return
	default:
		defer file.Close()
		upload = &simplemedia.UploadFile{
			FileName:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Reader:      file,
		}
	}

	media, err := h.service.Upload(r.Context(), upload, mediaType)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, h.toResponse(media))
}

// DeleteUnattached runs the orphan sweep now and reports the outcome as text.
// Query parameters:
//   - dry_run=true: only count what would be deleted
func (h *MediaHandler) DeleteUnattached(w http.ResponseWriter, r *http.Request) {
	var opts reconcile.SweepOptions
	if v := r.URL.Query().Get("dry_run"); v != "" {
		dryRun, err := strconv.ParseBool(v)
		if err != nil {
			render.Status(r, http.StatusBadRequest)
			render.PlainText(w, r, "Invalid dry_run parameter")
			return
		}
		opts.DryRun = dryRun
	}

	result, err := h.sweeper.Sweep(r.Context(), opts)
	if err != nil {
		h.logger.Error("Manual sweep failed", "error", err)
		render.Status(r, http.StatusInternalServerError)
		render.PlainText(w, r, "Failed to delete unattached images")
		return
	}

	render.PlainText(w, r, result.Message())
}

// GetMedia retrieves an image by ID
func (h *MediaHandler) GetMedia(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "id", "Invalid image ID")
	if !ok {
		return
	}

	media, err := h.service.GetMedia(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	render.JSON(w, r, h.toResponse(media))
}

// ListOwnerMedia lists the images attached to an owner
func (h *MediaHandler) ListOwnerMedia(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.parseID(w, r, "ownerID", "Invalid owner ID")
	if !ok {
		return
	}

	media, err := h.service.FindByOwner(r.Context(), ownerID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	render.JSON(w, r, h.toResponses(media))
}

// ClaimOwnerMedia attaches unattached images to a newly created owner
func (h *MediaHandler) ClaimOwnerMedia(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.parseID(w, r, "ownerID", "Invalid owner ID")
	if !ok {
		return
	}
	req, ok := h.decodeOwnerMedia(w, r)
	if !ok {
		return
	}
	if len(req.ImageIDs) == 0 {
		h.writeJSONError(w, r, http.StatusBadRequest, "missing_image_ids", "image_ids is required")
		return
	}

	media, err := h.service.ClaimForOwner(r.Context(), ownerID, req.ImageIDs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	render.JSON(w, r, h.toResponses(media))
}

// ReplaceOwnerMedia makes the given images the full set attached to an owner
func (h *MediaHandler) ReplaceOwnerMedia(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.parseID(w, r, "ownerID", "Invalid owner ID")
	if !ok {
		return
	}
	req, ok := h.decodeOwnerMedia(w, r)
	if !ok {
		return
	}

	media, err := h.service.ReplaceOwnerMedia(r.Context(), ownerID, req.ImageIDs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	render.JSON(w, r, h.toResponses(media))
}

// ClearOwnerMedia detaches every image from an owner
func (h *MediaHandler) ClearOwnerMedia(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.parseID(w, r, "ownerID", "Invalid owner ID")
	if !ok {
		return
	}

	if err := h.service.ClearOwner(r.Context(), ownerID); err != nil {
		h.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *MediaHandler) decodeOwnerMedia(w http.ResponseWriter, r *http.Request) (*OwnerMediaRequest, bool) {
	var req OwnerMediaRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.writeJSONError(w, r, http.StatusBadRequest, "invalid_body", "Invalid request body")
		return nil, false
	}
	if len(req.ImageIDs) > maxIDsPerRequest {
		h.writeJSONError(w, r, http.StatusBadRequest, "too_many_ids", "Too many image IDs requested")
		return nil, false
	}
	return &req, true
}

func (h *MediaHandler) parseID(w http.ResponseWriter, r *http.Request, param, message string) (int64, bool) {
	raw := chi.URLParam(r, param)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		h.logger.Debug(message, param, raw)
		h.writeJSONError(w, r, http.StatusBadRequest, "invalid_id", message)
		return 0, false
	}
	return id, true
}

func (h *MediaHandler) toResponse(m *simplemedia.MediaObject) MediaResponse {
	return MediaResponse{
		ID:          m.ID,
		MediaType:   string(m.MediaType),
		StorageKey:  m.StorageKey,
		URL:         h.service.URL(m),
		FileName:    m.FileName,
		ContentType: m.ContentType,
		Size:        m.Size,
		OwnerID:     m.OwnerID,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func (h *MediaHandler) toResponses(media []*simplemedia.MediaObject) []MediaResponse {
	resp := make([]MediaResponse, 0, len(media))
	for _, m := range media {
		resp = append(resp, h.toResponse(m))
	}
	return resp
}

// writeError maps domain errors to status codes. Anything unrecognised is a
// 500 with an opaque body; the cause only goes to the log.
func (h *MediaHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var validation *simplemedia.ValidationError
	switch {
	case errors.As(err, &validation):
		h.writeJSONError(w, r, http.StatusBadRequest, validation.Code, validation.Message)
	case errors.Is(err, simplemedia.ErrOwnerNotFound):
		h.writeJSONError(w, r, http.StatusNotFound, "owner_not_found", "Owner not found")
	case simplemedia.IsNotFound(err):
		h.writeJSONError(w, r, http.StatusNotFound, "not_found", "Image not found")
	default:
		h.logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		h.writeJSONError(w, r, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}

func (h *MediaHandler) writeJSONError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: message, Code: code})
}
