package archive

import (
	"net/url"
	"strings"
	"time"

	"fanarchive/lib/htmlutil"
	"fanarchive/lib/urlutil"

	"github.com/PuerkitoBio/goquery"
)

const dateLayout = "2006-01-02"

// ChapterCount reports posted chapters against the author's plan.
// Planned is -1 when the author left the total open ("12/?").
type ChapterCount struct {
	Posted  int
	Planned int
}

type WorkFields struct {
	Title         string
	Authors       []string
	Summary       string
	Language      string
	Rating        string
	Warnings      []string
	Categories    []string
	Fandoms       []string
	Relationships []string
	Characters    []string
	Tags          []string
	Published     time.Time
	Updated       time.Time
	Words         int
	Chapters      ChapterCount
	Comments      int
	Kudos         int
	Bookmarks     int
	Hits          int
	Restricted    bool
	Complete      bool
}

// Work is a passive record keyed by the archive's work id. Fields only
// change through Reload.
type Work struct {
	Record[WorkFields]
	ID int64
}

func NewWork(id int64) *Work { return &Work{ID: id} }

// WorkFromURL builds a Work from a canonical work or chapter URL.
func WorkFromURL(raw string) (*Work, error) {
	id, err := urlutil.WorkID(raw)
	if err != nil {
		return nil, err
	}
	return NewWork(id), nil
}

func (w *Work) Spec() FetchSpec[WorkFields] {
	return FetchSpec[WorkFields]{
		Path:  urlutil.WorkPath(w.ID, 0),
		Query: url.Values{"view_adult": {"true"}},
		Parse: parseWork,
	}
}

func parseWork(doc *goquery.Document) (WorkFields, error) {
	var f WorkFields

	f.Title = htmlutil.Text(doc.Find("div.preface h2.title"))
	if f.Title == "" {
		return f, &ParseError{Missing: "work title"}
	}

	f.Authors = htmlutil.Texts(doc.Find("div.preface h3.byline a[rel=author]"))
	f.Summary = htmlutil.Text(doc.Find("div.preface div.summary blockquote.userstuff"))

	meta := doc.Find("dl.work.meta.group")
	f.Rating = htmlutil.Text(meta.Find("dd.rating a.tag").First())
	f.Warnings = htmlutil.Texts(meta.Find("dd.warning a.tag"))
	f.Categories = htmlutil.Texts(meta.Find("dd.category a.tag"))
	f.Fandoms = htmlutil.Texts(meta.Find("dd.fandom a.tag"))
	f.Relationships = htmlutil.Texts(meta.Find("dd.relationship a.tag"))
	f.Characters = htmlutil.Texts(meta.Find("dd.character a.tag"))
	f.Tags = htmlutil.Texts(meta.Find("dd.freeform a.tag"))
	f.Language = htmlutil.Text(meta.Find("dd.language"))

	stats := meta.Find("dl.stats")
	if published := htmlutil.Text(stats.Find("dd.published")); published != "" {
		t, err := time.Parse(dateLayout, published)
		if err != nil {
			return f, &ParseError{Missing: "parseable published date"}
		}
		f.Published = t
	}
	if updated := htmlutil.Text(stats.Find("dd.status")); updated != "" {
		t, err := time.Parse(dateLayout, updated)
		if err != nil {
			return f, &ParseError{Missing: "parseable updated date"}
		}
		f.Updated = t
	}

	var err error
	counts := []struct {
		dst *int
		sel string
	}{
		{&f.Words, "dd.words"},
		{&f.Comments, "dd.comments"},
		{&f.Kudos, "dd.kudos"},
		{&f.Bookmarks, "dd.bookmarks"},
		{&f.Hits, "dd.hits"},
	}
	for _, c := range counts {
		*c.dst, err = htmlutil.Number(stats.Find(c.sel).Text())
		if err != nil {
			return f, &ParseError{Missing: "numeric " + c.sel}
		}
	}

	f.Chapters, err = parseChapterCount(htmlutil.Text(stats.Find("dd.chapters")))
	if err != nil {
		return f, err
	}

	f.Restricted = doc.Find("img[title=Restricted]").Length() > 0
	f.Complete = f.Chapters.Planned > 0 && f.Chapters.Posted == f.Chapters.Planned

	return f, nil
}

// parseChapterCount parses the "12/20" or "12/?" stat.
func parseChapterCount(s string) (ChapterCount, error) {
	if s == "" {
		return ChapterCount{Posted: 1, Planned: 1}, nil
	}
	posted, planned, ok := strings.Cut(s, "/")
	if !ok {
		return ChapterCount{}, &ParseError{Missing: "chapter count of the form posted/planned"}
	}

	count := ChapterCount{Planned: -1}
	var err error
	count.Posted, err = htmlutil.Number(posted)
	if err != nil {
		return ChapterCount{}, &ParseError{Missing: "numeric posted chapter count"}
	}
	if planned != "?" {
		count.Planned, err = htmlutil.Number(planned)
		if err != nil {
			return ChapterCount{}, &ParseError{Missing: "numeric planned chapter count"}
		}
	}
	return count, nil
}
