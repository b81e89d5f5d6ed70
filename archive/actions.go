package archive

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"fanarchive/lib/htmlutil"

	"go.opentelemetry.io/otel/codes"
)

// LeaveKudos leaves kudos on a work. State-mutating: requires an
// authenticated session and a fresh anti-forgery token; a stale token
// fails fast with an AuthError before any network call, at which point
// the caller should RefreshToken and retry.
func LeaveKudos(ctx context.Context, s *Session, workID int64) error {
	ctx, span := tracer.Start(ctx, "actions:LeaveKudos")
	defer span.End()

	doc, err := s.PostForm(ctx, "/kudos", map[string]string{
		"kudo[commentable_id]":   strconv.FormatInt(workID, 10),
		"kudo[commentable_type]": "Work",
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "kudos post failed")
		return err
	}
	if msg := htmlutil.Text(doc.Find("div.flash.error")); msg != "" {
		span.SetStatus(codes.Error, msg)
		return &AuthError{Reason: reasonStaleToken, Err: fmt.Errorf("%s", msg)}
	}
	return nil
}

// Subscribe subscribes the signed-in user to a work. Same token
// contract as LeaveKudos.
func Subscribe(ctx context.Context, s *Session, workID int64) error {
	ctx, span := tracer.Start(ctx, "actions:Subscribe")
	defer span.End()

	username := s.Username()
	if username == "" {
		return &AuthError{Reason: reasonNotAuthenticated}
	}

	_, err := s.PostForm(ctx, fmt.Sprintf("/users/%s/subscriptions", username), map[string]string{
		"subscription[subscribable_id]":   strconv.FormatInt(workID, 10),
		"subscription[subscribable_type]": "Work",
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "subscribe post failed")
	}
	return err
}

var bookmarkHeading = regexp.MustCompile(`(\d[\d,]*)\s+Bookmarks?`)

// Bookmarks reports how many bookmarks the signed-in user has. Requires
// an authenticated session; anonymous sessions fail before any network
// call is attempted.
func Bookmarks(ctx context.Context, s *Session) (int, error) {
	ctx, span := tracer.Start(ctx, "actions:Bookmarks")
	defer span.End()

	if err := s.requireAuthenticated(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	doc, err := s.Get(ctx, fmt.Sprintf("/users/%s/bookmarks", s.Username()), nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "bookmarks fetch failed")
		return 0, err
	}

	// the listing heading reads "7 Bookmarks" or "1 - 20 of 94 Bookmarks"
	heading := htmlutil.Text(doc.Find("div#main h2.heading").First())
	groups := bookmarkHeading.FindStringSubmatch(heading)
	if len(groups) < 2 {
		span.SetStatus(codes.Error, "bookmark heading missing")
		return 0, &ParseError{Missing: "bookmark count heading"}
	}
	count, err := htmlutil.Number(groups[1])
	if err != nil {
		return 0, &ParseError{Missing: "numeric bookmark count"}
	}
	return count, nil
}
