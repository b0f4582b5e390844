package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/scrypster/recall/internal/engine"
	"github.com/scrypster/recall/internal/logger"
	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// MaxAudioBytes caps uploaded recordings.
const MaxAudioBytes = 25 << 20

const maxJSONBytes = 1 << 20

// Engine is the part of the memory engine the API serves.
type Engine interface {
	Ingest(ctx context.Context, capture types.Capture) (*types.Memory, error)
	Get(ctx context.Context, userID, id string) (*types.Memory, error)
	List(ctx context.Context, userID string, opts storage.ListOptions) (*storage.PaginatedResult[types.Memory], error)
	Edit(ctx context.Context, userID, id string, fields engine.EditFields) (*types.Memory, error)
	Confirm(ctx context.Context, userID, id string, boost *float64) (*types.Memory, error)
	Flag(ctx context.Context, userID, id, reason string) (*types.Memory, error)
	Unflag(ctx context.Context, userID, id string) (*types.Memory, error)
	Query(ctx context.Context, userID, question string) (*engine.QueryResult, error)
	Converse(ctx context.Context, userID string, turns []types.Turn) (*engine.QueryResult, error)
	Previews(ctx context.Context, userID string) ([]engine.Preview, error)
	Summary(ctx context.Context, userID string) (*engine.Summary, error)
	DailyPrompt(ctx context.Context) (string, error)
	QueueLength() int
}

// APIHandlers contains HTTP handlers for the REST API.
type APIHandlers struct {
	engine   Engine
	validate *validator.Validate
	log      *logger.Logger
}

// NewAPIHandlers creates a new APIHandlers instance.
func NewAPIHandlers(e Engine, log *logger.Logger) *APIHandlers {
	if log == nil {
		log = logger.NewNop()
	}
	return &APIHandlers{
		engine:   e,
		validate: validator.New(),
		log:      log,
	}
}

// CreateMemory handles POST /api/memories. The memory is returned with status
// pending (202); processing continues asynchronously.
func (h *APIHandlers) CreateMemory(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var (
		capture types.Capture
		err     error
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		capture, err = parseAudioCapture(w, r)
	} else {
		capture, err = h.parseTextCapture(w, r)
	}
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid capture", err)
		return
	}
	capture.UserID = user

	memory, err := h.engine.Ingest(r.Context(), capture)
	if err != nil {
		if memory != nil {
			// Stored but not queued; the memory is already marked failed.
			h.log.Warn("capture stored but not queued", "memory_id", memory.ID, "error", err)
		}
		h.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, memory)
}

func (h *APIHandlers) parseTextCapture(w http.ResponseWriter, r *http.Request) (types.Capture, error) {
	var req CaptureRequest
	if err := h.decode(w, r, &req); err != nil {
		return types.Capture{}, err
	}
	return types.Capture{
		Title:      req.Title,
		Text:       req.Text,
		Tags:       req.Tags,
		Source:     types.Source(req.Source),
		MemoryType: types.MemoryType(req.MemoryType),
		Confidence: req.Confidence,
	}, nil
}

func parseAudioCapture(w http.ResponseWriter, r *http.Request) (types.Capture, error) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxAudioBytes+maxJSONBytes)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		return types.Capture{}, fmt.Errorf("parsing form: %w", err)
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		return types.Capture{}, fmt.Errorf("audio part is required: %w", err)
	}
	defer file.Close()

	audio, err := io.ReadAll(io.LimitReader(file, MaxAudioBytes+1))
	if err != nil {
		return types.Capture{}, fmt.Errorf("reading audio: %w", err)
	}
	if len(audio) > MaxAudioBytes {
		return types.Capture{}, errors.New("audio exceeds size limit")
	}

	capture := types.Capture{
		Title:      r.FormValue("title"),
		Audio:      audio,
		AudioMIME:  header.Header.Get("Content-Type"),
		Source:     types.Source(r.FormValue("source")),
		MemoryType: types.MemoryType(r.FormValue("memory_type")),
	}
	if tags := r.FormValue("tags"); tags != "" {
		for _, t := range strings.Split(tags, ",") {
			if t = strings.TrimSpace(t); t != "" {
				capture.Tags = append(capture.Tags, t)
			}
		}
	}
	if raw := r.FormValue("confidence"); raw != "" {
		c, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return types.Capture{}, fmt.Errorf("confidence: %w", err)
		}
		capture.Confidence = &c
	}
	return capture, nil
}

// ListMemories handles GET /api/memories with page, limit, status,
// memory_type, flagged, sort_by and sort_order query parameters.
func (h *APIHandlers) ListMemories(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	opts := storage.ListOptions{
		Page:      parseInt(q.Get("page"), 1),
		Limit:     parseInt(q.Get("limit"), 20),
		SortBy:    q.Get("sort_by"),
		SortOrder: q.Get("sort_order"),
	}
	if s := q.Get("status"); s != "" {
		status, ok := types.ParseStatus(s)
		if !ok {
			respondError(w, http.StatusBadRequest, "unknown status", nil)
			return
		}
		opts.Status = status
	}
	if mt := q.Get("memory_type"); mt != "" {
		memoryType, ok := types.ParseMemoryType(mt)
		if !ok {
			respondError(w, http.StatusBadRequest, "unknown memory type", nil)
			return
		}
		opts.MemoryType = memoryType
	}
	if f := q.Get("flagged"); f != "" {
		flagged, err := strconv.ParseBool(f)
		if err != nil {
			respondError(w, http.StatusBadRequest, "flagged must be a boolean", err)
			return
		}
		opts.Flagged = &flagged
	}

	result, err := h.engine.List(r.Context(), user, opts)
	if err != nil {
		h.respondEngineError(w, err)
		return
	}
	items := result.Items
	if items == nil {
		items = []types.Memory{}
	}
	respondJSON(w, http.StatusOK, ListResponse{
		Items:    items,
		Total:    result.Total,
		Page:     result.Page,
		PageSize: result.PageSize,
		HasMore:  result.HasMore,
	})
}

// GetMemory handles GET /api/memories/{id}.
func (h *APIHandlers) GetMemory(w http.ResponseWriter, r *http.Request) {
	user, id, ok := requireUserAndID(w, r)
	if !ok {
		return
	}
	memory, err := h.engine.Get(r.Context(), user, id)
	if err != nil {
		h.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, memory)
}

// UpdateMemory handles PATCH /api/memories/{id}.
func (h *APIHandlers) UpdateMemory(w http.ResponseWriter, r *http.Request) {
	user, id, ok := requireUserAndID(w, r)
	if !ok {
		return
	}
	var req EditRequest
	if err := h.decode(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid edit", err)
		return
	}
	memory, err := h.engine.Edit(r.Context(), user, id, req.fields())
	if err != nil {
		h.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, memory)
}

// ConfirmMemory handles POST /api/memories/{id}/confirm. The body is optional.
func (h *APIHandlers) ConfirmMemory(w http.ResponseWriter, r *http.Request) {
	user, id, ok := requireUserAndID(w, r)
	if !ok {
		return
	}
	var req ConfirmRequest
	if err := h.decodeOptional(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid confirmation", err)
		return
	}
	memory, err := h.engine.Confirm(r.Context(), user, id, req.Boost)
	if err != nil {
		h.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, memory)
}

// FlagMemory handles POST /api/memories/{id}/flag. The body is optional.
func (h *APIHandlers) FlagMemory(w http.ResponseWriter, r *http.Request) {
	user, id, ok := requireUserAndID(w, r)
	if !ok {
		return
	}
	var req FlagRequest
	if err := h.decodeOptional(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid flag", err)
		return
	}
	memory, err := h.engine.Flag(r.Context(), user, id, req.Reason)
	if err != nil {
		h.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, memory)
}

// UnflagMemory handles DELETE /api/memories/{id}/flag.
func (h *APIHandlers) UnflagMemory(w http.ResponseWriter, r *http.Request) {
	user, id, ok := requireUserAndID(w, r)
	if !ok {
		return
	}
	memory, err := h.engine.Unflag(r.Context(), user, id)
	if err != nil {
		h.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, memory)
}

// Query handles POST /api/query.
func (h *APIHandlers) Query(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req QueryRequest
	if err := h.decode(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid query", err)
		return
	}
	res, err := h.engine.Query(r.Context(), user, req.Question)
	if err != nil {
		h.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// Converse handles POST /api/converse.
func (h *APIHandlers) Converse(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req ConverseRequest
	if err := h.decode(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid conversation", err)
		return
	}
	res, err := h.engine.Converse(r.Context(), user, req.turns())
	if err != nil {
		h.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// Previews handles GET /api/insights/previews.
func (h *APIHandlers) Previews(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	previews, err := h.engine.Previews(r.Context(), user)
	if err != nil {
		h.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, previews)
}

// Summary handles GET /api/insights/summary.
func (h *APIHandlers) Summary(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	summary, err := h.engine.Summary(r.Context(), user)
	if err != nil {
		h.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// DailyPrompt handles GET /api/prompt/daily.
func (h *APIHandlers) DailyPrompt(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}
	prompt, err := h.engine.DailyPrompt(r.Context())
	if err != nil {
		h.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, DailyPromptResponse{Prompt: prompt})
}

// Health handles GET /api/health. It needs no authentication.
func (h *APIHandlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{Status: "healthy", QueueDepth: h.engine.QueueLength()})
}

// respondEngineError maps engine sentinels to status codes.
func (h *APIHandlers) respondEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrValidation):
		respondError(w, http.StatusBadRequest, "invalid request", err)
	case errors.Is(err, engine.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found", err)
	case errors.Is(err, engine.ErrRetrievalUnavailable):
		respondError(w, http.StatusServiceUnavailable, "retrieval unavailable", err)
	case errors.Is(err, engine.ErrIngestionFailure), errors.Is(err, engine.ErrNotStarted):
		respondError(w, http.StatusServiceUnavailable, "ingestion unavailable", err)
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to send.
	default:
		h.log.Error("request failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error", nil)
	}
}

// decode reads a JSON body into dst and validates it.
func (h *APIHandlers) decode(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("failed to parse request body: %w", err)
	}
	return h.validate.Struct(dst)
}

// decodeOptional is decode for endpoints whose body may be empty.
func (h *APIHandlers) decodeOptional(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	if r.ContentLength == 0 {
		return nil
	}
	err := h.decode(w, r, dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// Helper functions

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", nil)
	}
	return user, ok
}

func requireUserAndID(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	user, ok := requireUser(w, r)
	if !ok {
		return "", "", false
	}
	id := extractID(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "memory ID is required", nil)
		return "", "", false
	}
	return user, id, true
}

// extractID extracts a path parameter from the request.
func extractID(r *http.Request, key string) string {
	return r.PathValue(key)
}

// parseInt parses an integer from a string, returning defaultValue if parsing fails.
func parseInt(s string, defaultValue int) int {
	if s == "" {
		return defaultValue
	}
	val, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return val
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	// Headers are already sent if encoding fails.
	_ = json.NewEncoder(w).Encode(data)
}

// respondError writes an error response with the given status code.
func respondError(w http.ResponseWriter, statusCode int, message string, err error) {
	errResp := ErrorResponse{
		Error: message,
		Code:  http.StatusText(statusCode),
	}

	if err != nil {
		errResp.Details = map[string]interface{}{
			"error": err.Error(),
		}
	}

	respondJSON(w, statusCode, errResp)
}
