package archive

import (
	"context"
	"strings"
	"time"

	"fanarchive/lib/htmlutil"
	"fanarchive/lib/pagecache"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/codes"
)

// Category is one fandom category on the archive's media index.
type Category struct {
	Name string
	URL  string
}

const mediaIndexPath = "/media"

// the media index changes rarely, so cached copies live for a week
const mediaIndexLifetime = time.Hour * 24 * 7

// FandomCategories lists the archive's fandom categories. When the
// session was built with a cache, the index page is served from it
// until it expires; entity reloads never take this path.
func FandomCategories(ctx context.Context, s *Session) ([]Category, error) {
	ctx, span := tracer.Start(ctx, "resources:FandomCategories")
	defer span.End()

	if s.cache != nil {
		page, err := s.cache.Get(mediaIndexPath)
		if err == nil {
			doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(page.Contents)))
			if err == nil {
				span.SetStatus(codes.Ok, "CACHE HIT")
				return categoriesFromDoc(doc)
			}
		} else if err != pagecache.ErrNotFound {
			span.RecordError(err)
		}
	}

	doc, err := s.Get(ctx, mediaIndexPath, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch media index")
		return nil, err
	}

	if s.cache != nil {
		html, err := doc.Html()
		if err == nil {
			if err := s.cache.Set(mediaIndexPath, []byte(html), mediaIndexLifetime); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "failed to cache media index")
			}
		}
	}

	return categoriesFromDoc(doc)
}

func categoriesFromDoc(doc *goquery.Document) ([]Category, error) {
	anchors := htmlutil.GetAnchors(doc.Find("ul.media.fandom.index li.medium h3.heading a"))
	if len(anchors) == 0 {
		return nil, &ParseError{URL: mediaIndexPath, Missing: "fandom category listing"}
	}

	categories := make([]Category, len(anchors))
	for i, a := range anchors {
		categories[i] = Category{Name: a.Name, URL: a.Href}
	}
	return categories, nil
}
