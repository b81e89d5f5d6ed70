package archive

import (
	"context"
	"net/url"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/codes"
)

// FetchSpec describes how an entity type loads itself: where its
// document lives and a pure function turning that document into a field
// set.
type FetchSpec[F any] struct {
	Path  string
	Query url.Values
	Parse func(doc *goquery.Document) (F, error)
}

// Record holds an entity's field set behind an all-or-nothing swap.
// Readers never observe a half-populated entity: Fields returns the
// last published set and publish replaces the whole set in one critical
// section.
type Record[F any] struct {
	mu     sync.RWMutex
	loaded bool
	fields F
}

// Loaded reports whether at least one reload has completed.
func (r *Record[F]) Loaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded
}

// Fields returns the most recently published field set.
func (r *Record[F]) Fields() F {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fields
}

func (r *Record[F]) publish(fields F) {
	r.mu.Lock()
	r.fields = fields
	r.loaded = true
	r.mu.Unlock()
}

func (r *Record[F]) record() *Record[F] { return r }

// Entity is anything reloadable: it names its fetch spec and embeds a
// Record for its fields. Work, User and Series satisfy it.
type Entity[F any] interface {
	Spec() FetchSpec[F]
	record() *Record[F]
}

// Reload fetches the entity's document through the session, parses it
// and publishes the resulting field set. A repeat call fully replaces
// the previous fields. Reloading the same entity concurrently from two
// callers is undefined; distinct entities reload concurrently without
// restriction.
func Reload[F any](ctx context.Context, s *Session, e Entity[F]) error {
	spec := e.Spec()

	ctx, span := tracer.Start(ctx, "reload "+spec.Path)
	defer span.End()

	doc, err := s.Get(ctx, spec.Path, spec.Query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return err
	}
	if restricted(doc) {
		span.SetStatus(codes.Error, reasonRestricted)
		return &AuthError{Reason: reasonRestricted}
	}

	fields, err := spec.Parse(doc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "parse failed")
		return err
	}

	e.record().publish(fields)
	return nil
}

// restricted content bounces to the dedicated sign-in page instead of
// returning a 403
func restricted(doc *goquery.Document) bool {
	return doc.Find("#signin").Length() > 0
}

// Handle joins a background reload. Join blocks until the worker
// finishes and returns whatever error occurred inside it; a worker
// failure is never silently swallowed, it is simply held until joined.
type Handle struct {
	done chan struct{}
	err  error
}

// Join blocks until the background reload completes.
func (h *Handle) Join() error {
	<-h.done
	return h.err
}

// Done exposes the completion channel for callers that want to select.
func (h *Handle) Done() <-chan struct{} { return h.done }

// ReloadAsync runs Reload on a background goroutine and returns
// immediately. The worker runs to completion whether or not the handle
// is ever joined; cancel the context to cut it short at the next
// network call.
func ReloadAsync[F any](ctx context.Context, s *Session, e Entity[F]) *Handle {
	h := &Handle{done: make(chan struct{})}
	go func() {
		defer close(h.done)
		h.err = Reload(ctx, s, e)
	}()
	return h
}
