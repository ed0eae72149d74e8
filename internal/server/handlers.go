package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/zombor/scan-insight/internal/analysis"
	"github.com/zombor/scan-insight/internal/capture"
	"github.com/zombor/scan-insight/internal/fault"
	"github.com/zombor/scan-insight/internal/item"
	"github.com/zombor/scan-insight/internal/subject"
)

// maxUploadSize leaves room for high-resolution phone photos
const maxUploadSize = int64(50 << 20)

var errBadRequest = errors.New("bad request")

// errorResponse is the JSON body of every failed request
type errorResponse struct {
	Error     string    `json:"error"`
	Retryable bool      `json:"retryable"`
	Scan      *scanView `json:"scan,omitempty"`
}

// statusCode maps an error onto an HTTP status
func statusCode(err error) int {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, analysis.ErrEmptyQuestion):
		return http.StatusBadRequest
	case errors.Is(err, item.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, capture.ErrInvalidTransition), errors.Is(err, capture.ErrBusy), errors.Is(err, item.ErrDuplicateID):
		return http.StatusConflict
	case errors.Is(err, fault.ErrCancelled):
		return http.StatusRequestTimeout
	case fault.IsNetwork(err), fault.IsService(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func errorMessage(err error) string {
	switch {
	case errors.Is(err, errBadRequest):
		return strings.TrimSuffix(err.Error(), ": "+errBadRequest.Error())
	case errors.Is(err, analysis.ErrEmptyQuestion):
		return "Please enter a question."
	case errors.Is(err, item.ErrNotFound):
		return "Item not found."
	case errors.Is(err, capture.ErrBusy):
		return "This scan is still being processed."
	case errors.Is(err, capture.ErrInvalidTransition):
		return "That action is not available for this scan right now."
	}
	return fault.Message(err)
}

func retryable(err error) bool {
	return fault.Retryable(err) || errors.Is(err, capture.ErrBusy)
}

func badRequest(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, errBadRequest)...)
}

// writeError writes an error response with CORS headers set
func writeError(w http.ResponseWriter, err error, scan *scanView) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode(err))
	json.NewEncoder(w).Encode(errorResponse{
		Error:     errorMessage(err),
		Retryable: retryable(err),
		Scan:      scan,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// upload is an image file read from a multipart form
type upload struct {
	filename    string
	contentType string
	data        []byte
}

// readUpload parses the multipart form and reads the "file" field
func readUpload(r *http.Request) (*upload, error) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		if err.Error() == "http: request body too large" {
			return nil, badRequest("File is too large. Maximum size is 50MB. Please compress or resize your image.")
		}
		return nil, badRequest("Error parsing form")
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		return nil, badRequest("No file was selected. Please choose a file to upload.")
	}
	defer f.Close()

	if header.Size > maxUploadSize {
		return nil, badRequest("File is too large. Maximum size is 50MB. Please compress or resize your image.")
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	if len(data) == 0 {
		return nil, badRequest("The uploaded file is empty.")
	}

	return &upload{
		filename:    header.Filename,
		contentType: uploadContentType(header.Header.Get("Content-Type"), header.Filename),
		data:        data,
	}, nil
}

// uploadContentType falls back to the file extension when the client sent
// no content type
func uploadContentType(contentType, filename string) string {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	}
	return ""
}

// formSubject reads the subject field, defaulting to Math
func formSubject(r *http.Request) (subject.Tag, error) {
	raw := r.FormValue("subject")
	if strings.TrimSpace(raw) == "" {
		return subject.Default, nil
	}
	tag, ok := subject.Parse(raw)
	if !ok {
		return "", badRequest("Unknown subject %q", raw)
	}
	return tag, nil
}

// handleCreateScan stores an upload in the capture cache and runs a new
// pipeline over it
func (s *Server) handleCreateScan(w http.ResponseWriter, r *http.Request) {
	up, err := readUpload(r)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	tag, err := formSubject(r)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	origin := capture.OriginCamera
	if strings.EqualFold(r.FormValue("source"), string(capture.OriginGallery)) {
		origin = capture.OriginGallery
	}

	path, err := s.writeCapture(up)
	if err != nil {
		slog.Error("Error caching upload", "filename", up.filename, "error", err)
		writeError(w, fault.Persistence("caching upload", err), nil)
		return
	}

	img := &capture.CapturedImage{
		Path:        path,
		Origin:      origin,
		ContentType: up.contentType,
		Owned:       true,
	}
	pipeline, err := capture.NewPipeline(capture.Deps{
		Source: capture.SourceFunc(func(ctx context.Context) (*capture.CapturedImage, error) {
			return img, nil
		}),
		Recognizer: s.deps.Recognizer,
		Analyzer:   s.deps.Analyst,
		Saver:      s.deps.Library,
	}, tag)
	if err != nil {
		os.Remove(path)
		writeError(w, err, nil)
		return
	}

	id := s.scans.add(pipeline)
	runErr := pipeline.Run(r.Context())
	view := newScanView(id, pipeline)
	s.scans.settle(id, pipeline)
	if runErr != nil {
		slog.Error("Error processing scan", "scan", id, "filename", up.filename, "error", runErr)
		writeError(w, runErr, &view)
		return
	}

	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) writeCapture(up *upload) (string, error) {
	ext := strings.ToLower(filepath.Ext(up.filename))
	f, err := os.CreateTemp(s.deps.CacheDir, "capture-*"+ext)
	if err != nil {
		return "", err
	}
	if _, err := f.Write(up.data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// scanAction runs one pipeline action and reports the resulting state
func (s *Server) scanAction(w http.ResponseWriter, r *http.Request, action string, run func(*capture.Pipeline) error) {
	id := r.PathValue("id")
	pipeline, ok := s.scans.get(id)
	if !ok {
		writeError(w, fmt.Errorf("scan %s: %w", id, item.ErrNotFound), nil)
		return
	}

	err := run(pipeline)
	view := newScanView(id, pipeline)
	s.scans.settle(id, pipeline)
	if err != nil {
		slog.Error("Error running scan action", "scan", id, "action", action, "error", err)
		writeError(w, err, &view)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// handleGetScan returns the current state of a scan
func (s *Server) handleGetScan(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	pipeline, ok := s.scans.get(id)
	if !ok {
		writeError(w, fmt.Errorf("scan %s: %w", id, item.ErrNotFound), nil)
		return
	}
	s.scans.touch(id, pipeline)
	writeJSON(w, http.StatusOK, newScanView(id, pipeline))
}

func (s *Server) handleRetryScan(w http.ResponseWriter, r *http.Request) {
	s.scanAction(w, r, "retry", func(p *capture.Pipeline) error { return p.Retry(r.Context()) })
}

func (s *Server) handleSaveScan(w http.ResponseWriter, r *http.Request) {
	s.scanAction(w, r, "save", func(p *capture.Pipeline) error { return p.Save(r.Context()) })
}

func (s *Server) handleDiscardScan(w http.ResponseWriter, r *http.Request) {
	s.scanAction(w, r, "discard", func(p *capture.Pipeline) error { return p.Discard(r.Context()) })
}

// handleListItems returns saved items, optionally filtered by kind
func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	kind, err := item.ParseKind(r.URL.Query().Get("kind"))
	if err != nil {
		writeError(w, badRequest("Unknown kind %q", r.URL.Query().Get("kind")), nil)
		return
	}

	items, err := s.deps.Library.List(kind)
	if err != nil {
		slog.Error("Error listing items", "kind", kind, "error", err)
		writeError(w, err, nil)
		return
	}

	writeJSON(w, http.StatusOK, items)
}

// handleGetItem returns a single item
func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	it, err := s.deps.Library.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

// handleGetItemImage returns the stored image of an item
func (s *Server) handleGetItemImage(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.deps.Library.Image(r.Context(), r.PathValue("id"))
	if err != nil {
		if !errors.Is(err, item.ErrNotFound) {
			slog.Error("Error reading item image", "id", r.PathValue("id"), "error", err)
		}
		writeError(w, err, nil)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleShareItem returns the plain-text share message of an item
func (s *Server) handleShareItem(w http.ResponseWriter, r *http.Request) {
	text, err := s.deps.Library.Share(r.PathValue("id"))
	if err != nil {
		writeError(w, err, nil)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, text)
}

// handleDeleteItem deletes an item. Unknown ids succeed.
func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Library.Delete(r.Context(), r.PathValue("id")); err != nil {
		slog.Error("Error deleting item", "id", r.PathValue("id"), "error", err)
		writeError(w, err, nil)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleCreateItem saves a plain photo or document without analysis
func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	up, err := readUpload(r)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	tag, err := formSubject(r)
	if err != nil {
		writeError(w, err, nil)
		return
	}

	kind := item.KindPhoto
	switch raw := r.FormValue("kind"); raw {
	case "", string(item.KindPhoto):
	case string(item.KindDocument):
		kind = item.KindDocument
	default:
		writeError(w, badRequest("Kind must be photo or document"), nil)
		return
	}

	saved, err := s.deps.Library.Save(r.Context(), item.Draft{
		Kind:          kind,
		Filename:      up.filename,
		Data:          up.data,
		ExtractedText: r.FormValue("extractedText"),
		DomainTag:     tag,
	})
	if err != nil {
		slog.Error("Error saving item", "filename", up.filename, "error", err)
		writeError(w, err, nil)
		return
	}

	writeJSON(w, http.StatusCreated, saved)
}

// handleAsk answers a quick question without an image
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question string `json:"question"`
		Subject  string `json:"subject"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, badRequest("Invalid request body"), nil)
		return
	}

	tag := subject.Default
	if strings.TrimSpace(req.Subject) != "" {
		parsed, ok := subject.Parse(req.Subject)
		if !ok {
			writeError(w, badRequest("Unknown subject %q", req.Subject), nil)
			return
		}
		tag = parsed
	}

	answer, err := s.deps.Analyst.Ask(r.Context(), req.Question, tag)
	if err != nil {
		if !errors.Is(err, analysis.ErrEmptyQuestion) {
			slog.Error("Error answering question", "subject", tag, "error", err)
		}
		writeError(w, err, nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"subject": string(tag),
		"answer":  answer,
	})
}

// handleListSubjects returns the supported subjects in display order
func (s *Server) handleListSubjects(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, subject.All())
}
