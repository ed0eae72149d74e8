package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/zombor/scan-insight/internal/capture"
	"github.com/zombor/scan-insight/internal/item"
	"github.com/zombor/scan-insight/internal/subject"
)

// DefaultScanTTL is how long an untouched scan is kept before it is
// discarded
const DefaultScanTTL = 30 * time.Minute

// registry tracks pipelines that can still make progress. Pipelines are
// independent; the registry only maps ids to them. A scan the client stops
// touching expires and is discarded, releasing its cached upload.
type registry struct {
	scans *expirable.LRU[string, *capture.Pipeline]
}

func newRegistry(ttl time.Duration) *registry {
	if ttl <= 0 {
		ttl = DefaultScanTTL
	}
	return &registry{scans: expirable.NewLRU[string, *capture.Pipeline](0, release, ttl)}
}

// release discards a pipeline that left the registry while it still held
// a capture
func release(id string, p *capture.Pipeline) {
	switch p.Snapshot().State.Status {
	case capture.Ready, capture.Errored:
	default:
		return
	}
	if err := p.Discard(context.Background()); err != nil {
		slog.Warn("Failed to release expired scan", "scan", id, "error", err)
		return
	}
	slog.Info("Released expired scan", "scan", id)
}

func (r *registry) add(p *capture.Pipeline) string {
	id := uuid.NewString()
	r.scans.Add(id, p)
	return id
}

func (r *registry) get(id string) (*capture.Pipeline, bool) {
	return r.scans.Get(id)
}

// touch restarts the expiry of a scan the client acted on
func (r *registry) touch(id string, p *capture.Pipeline) {
	if _, ok := r.scans.Peek(id); ok {
		r.scans.Add(id, p)
	}
}

func (r *registry) remove(id string) {
	r.scans.Remove(id)
}

// settle drops pipelines that can no longer move forward: terminal ones,
// and ones back in Idle whose upload has been released. Others get a
// fresh expiry.
func (r *registry) settle(id string, p *capture.Pipeline) {
	switch p.Snapshot().State.Status {
	case capture.Saved, capture.Discarded, capture.Idle:
		r.remove(id)
	default:
		r.touch(id, p)
	}
}

func (r *registry) len() int {
	return r.scans.Len()
}

// scanView is the JSON shape of a pipeline snapshot
type scanView struct {
	ID            string          `json:"id"`
	State         capture.State   `json:"state"`
	Subject       subject.Tag     `json:"subject"`
	Origin        capture.Origin  `json:"origin,omitempty"`
	ExtractedText string          `json:"extractedText,omitempty"`
	AIResponse    string          `json:"aiResponse,omitempty"`
	Item          *item.SavedItem `json:"item,omitempty"`
	Error         string          `json:"error,omitempty"`
	Retryable     bool            `json:"retryable,omitempty"`
}

func newScanView(id string, p *capture.Pipeline) scanView {
	snap := p.Snapshot()
	v := scanView{
		ID:            id,
		State:         snap.State,
		Subject:       snap.Subject,
		Origin:        snap.Origin,
		ExtractedText: snap.ExtractedText,
		AIResponse:    snap.AIResponse,
		Item:          snap.Item,
	}
	if snap.Err != nil {
		v.Error = errorMessage(snap.Err)
		v.Retryable = retryable(snap.Err)
	}
	return v
}
