package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/zombor/scan-insight/internal/fault"
	"github.com/zombor/scan-insight/internal/item"
	"github.com/zombor/scan-insight/internal/subject"
)

// ErrBusy is returned when a pipeline is asked to act while a stage is
// still running.
var ErrBusy = errors.New("pipeline is busy")

// Origin is where a captured image came from
type Origin string

const (
	OriginCamera  Origin = "camera"
	OriginGallery Origin = "gallery"
	OriginEdited  Origin = "edited-copy"
)

// CapturedImage is an image at rest on local disk. Owned images live in a
// cache the pipeline is responsible for cleaning up.
type CapturedImage struct {
	Path        string
	Origin      Origin
	ContentType string
	Owned       bool
}

// Source acquires an image, usually by waiting on the user. It returns
// fault.ErrCancelled when the user backs out.
type Source interface {
	Acquire(ctx context.Context) (*CapturedImage, error)
}

// SourceFunc adapts a function to the Source interface
type SourceFunc func(ctx context.Context) (*CapturedImage, error)

func (f SourceFunc) Acquire(ctx context.Context) (*CapturedImage, error) { return f(ctx) }

// Editor optionally edits an acquired image. A nil image means unchanged;
// fault.ErrCancelled means the user backed out of editing.
type Editor interface {
	Edit(ctx context.Context, img *CapturedImage) (*CapturedImage, error)
}

// Recognizer extracts text from image bytes
type Recognizer interface {
	ExtractText(ctx context.Context, imageData []byte, contentType string) (string, error)
}

// Analyzer produces an analysis of extracted text for a subject
type Analyzer interface {
	Analyze(ctx context.Context, text string, tag subject.Tag) (string, error)
}

// Saver records a finished scan
type Saver interface {
	NewID() string
	Save(ctx context.Context, d item.Draft) (item.SavedItem, error)
}

// Deps are the collaborators of a pipeline. Editor may be nil.
type Deps struct {
	Source     Source
	Editor     Editor
	Recognizer Recognizer
	Analyzer   Analyzer
	Saver      Saver
}

// Snapshot is a copy of a pipeline's observable state
type Snapshot struct {
	State         State
	Subject       subject.Tag
	Origin        Origin
	ExtractedText string
	AIResponse    string
	Item          *item.SavedItem
	Err           error
}

// Pipeline drives one capture from acquisition to a saved item. Each
// instance handles a single capture; create a new one for the next.
type Pipeline struct {
	deps Deps

	// run is held for the whole of a drive so a second caller gets ErrBusy
	run sync.Mutex

	mu          sync.Mutex
	state       State
	subject     subject.Tag
	analyzedTag subject.Tag
	image       *CapturedImage
	data        []byte
	contentType string
	text        string
	response    string
	itemID      string
	saved       *item.SavedItem
	err         error
}

// NewPipeline creates an idle pipeline analyzing for tag
func NewPipeline(deps Deps, tag subject.Tag) (*Pipeline, error) {
	if deps.Source == nil || deps.Recognizer == nil || deps.Analyzer == nil || deps.Saver == nil {
		return nil, fmt.Errorf("source, recognizer, analyzer and saver are required")
	}
	if !tag.Valid() {
		return nil, fmt.Errorf("invalid subject %q", tag)
	}
	return &Pipeline{deps: deps, subject: tag}, nil
}

// SetSubject changes the subject used by the next analysis
func (p *Pipeline) SetSubject(tag subject.Tag) error {
	if !tag.Valid() {
		return fmt.Errorf("invalid subject %q", tag)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subject = tag
	return nil
}

// Snapshot returns a copy of the current state and results
func (p *Pipeline) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Snapshot{
		State:         p.state,
		Subject:       p.subject,
		ExtractedText: p.text,
		AIResponse:    p.response,
		Err:           p.err,
	}
	if p.image != nil {
		s.Origin = p.image.Origin
	}
	if p.saved != nil {
		saved := *p.saved
		s.Item = &saved
	}
	return s
}

// Run acquires an image and takes it through extraction and analysis. It
// returns nil when the pipeline reaches Ready or the user cancels
// acquisition, and the stage error when it stops in Errored.
func (p *Pipeline) Run(ctx context.Context) error {
	return p.drive(ctx, EventStart)
}

// Retry re-enters the failed stage with the input it failed on
func (p *Pipeline) Retry(ctx context.Context) error {
	return p.drive(ctx, EventRetry)
}

// Save persists a Ready result. On failure the pipeline stays Ready and
// Save may be called again.
func (p *Pipeline) Save(ctx context.Context) error {
	return p.drive(ctx, EventSave)
}

// Discard drops the current capture. From Ready the pipeline ends in
// Discarded; from Errored it returns to Idle.
func (p *Pipeline) Discard(ctx context.Context) error {
	return p.drive(ctx, EventDiscard)
}

// drive feeds ev to the state machine and performs effects until no
// effect is left
func (p *Pipeline) drive(ctx context.Context, ev Event) error {
	if !p.run.TryLock() {
		return ErrBusy
	}
	defer p.run.Unlock()

	var stageErr error
	for {
		p.mu.Lock()
		next, effect, err := p.state.Next(ev)
		if err != nil {
			p.mu.Unlock()
			return err
		}
		p.state = next
		p.mu.Unlock()

		switch effect {
		case EffectNone:
			return stageErr
		case EffectRelease:
			p.release()
			return nil
		}

		ev, stageErr = p.perform(ctx, effect)
	}
}

func (p *Pipeline) perform(ctx context.Context, effect Effect) (Event, error) {
	p.setErr(nil)

	var err error
	switch effect {
	case EffectAcquire:
		var cancelled bool
		cancelled, err = p.acquire(ctx)
		if cancelled {
			return EventCancelled, nil
		}
	case EffectExtract:
		err = p.extract(ctx)
	case EffectAnalyze:
		err = p.analyze(ctx)
	case EffectPersist:
		err = p.persist(ctx)
	}

	if err != nil {
		if ctx.Err() != nil && !errors.Is(err, fault.ErrCancelled) {
			err = fmt.Errorf("%w: %w", fault.ErrCancelled, err)
		}
		p.setErr(err)
		return EventFailed, err
	}
	return EventSucceeded, nil
}

func (p *Pipeline) setErr(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

// acquire obtains an image from the source, runs the optional editor and
// loads the bytes every later stage works from
func (p *Pipeline) acquire(ctx context.Context) (bool, error) {
	img, err := p.deps.Source.Acquire(ctx)
	if err != nil {
		if errors.Is(err, fault.ErrCancelled) || ctx.Err() != nil {
			return true, nil
		}
		slog.Error("Failed to acquire image", "error", err)
		return false, fmt.Errorf("acquiring image: %w", err)
	}
	if img == nil {
		return false, fmt.Errorf("acquiring image: source returned no image")
	}

	if p.deps.Editor != nil {
		edited, err := p.deps.Editor.Edit(ctx, img)
		switch {
		case errors.Is(err, fault.ErrCancelled):
			// Editing was abandoned; keep the original.
		case err != nil:
			slog.Error("Failed to edit image", "path", img.Path, "error", err)
			removeOwned(img)
			return false, fmt.Errorf("editing image: %w", err)
		case edited != nil && edited.Path != img.Path:
			removeOwned(img)
			img = edited
		}
	}

	data, err := os.ReadFile(img.Path)
	if err != nil {
		slog.Error("Failed to read captured image", "path", img.Path, "error", err)
		removeOwned(img)
		return false, fault.Persistence("reading captured image", err)
	}
	if len(data) == 0 {
		removeOwned(img)
		return false, fmt.Errorf("captured image is empty")
	}

	contentType := img.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	p.mu.Lock()
	p.image = img
	p.data = data
	p.contentType = contentType
	p.mu.Unlock()
	return false, nil
}

func (p *Pipeline) extract(ctx context.Context) error {
	p.mu.Lock()
	data, contentType, tag := p.data, p.contentType, p.subject
	p.mu.Unlock()

	text, err := p.deps.Recognizer.ExtractText(ctx, data, contentType)
	if err != nil {
		slog.Error("Failed to extract text",
			"subject", tag,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		return err
	}

	p.mu.Lock()
	p.text = text
	p.mu.Unlock()
	return nil
}

func (p *Pipeline) analyze(ctx context.Context) error {
	p.mu.Lock()
	text, tag := p.text, p.subject
	p.mu.Unlock()

	response, err := p.deps.Analyzer.Analyze(ctx, text, tag)
	if err != nil {
		slog.Error("Failed to analyze text", "subject", tag, "text_length", len(text), "error", err)
		return err
	}

	p.mu.Lock()
	p.response = response
	p.analyzedTag = tag
	p.mu.Unlock()
	return nil
}

// persist saves the result under an id assigned on the first attempt, so
// repeated attempts can never record the capture twice
func (p *Pipeline) persist(ctx context.Context) error {
	p.mu.Lock()
	if p.itemID == "" {
		p.itemID = p.deps.Saver.NewID()
	}
	draft := item.Draft{
		ID:            p.itemID,
		Kind:          item.KindAnalyzed,
		Filename:      filepath.Base(p.image.Path),
		Data:          p.data,
		ExtractedText: p.text,
		AIResponse:    p.response,
		DomainTag:     p.analyzedTag,
	}
	p.mu.Unlock()

	saved, err := p.deps.Saver.Save(ctx, draft)
	if err != nil {
		slog.Error("Failed to save scan", "id", draft.ID, "subject", draft.DomainTag, "error", err)
		return err
	}

	p.mu.Lock()
	p.saved = &saved
	img := p.image
	p.mu.Unlock()

	// The durable copy replaces the capture
	removeOwned(img)
	return nil
}

// release drops the capture and everything derived from it
func (p *Pipeline) release() {
	p.mu.Lock()
	img := p.image
	p.image = nil
	p.data = nil
	p.contentType = ""
	p.text = ""
	p.response = ""
	p.analyzedTag = ""
	p.itemID = ""
	p.err = nil
	p.mu.Unlock()

	removeOwned(img)
}

func removeOwned(img *CapturedImage) {
	if img == nil || !img.Owned || img.Path == "" {
		return
	}
	if err := os.Remove(img.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to remove captured image", "path", img.Path, "error", err)
	}
}
