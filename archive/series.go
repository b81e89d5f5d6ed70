package archive

import (
	"time"

	"fanarchive/lib/htmlutil"
	"fanarchive/lib/urlutil"

	"github.com/PuerkitoBio/goquery"
)

// WorkRef points at a work listed inside a series, in series order.
type WorkRef struct {
	ID    int64
	Title string
}

type SeriesFields struct {
	Title       string
	Creators    []string
	Begun       time.Time
	Updated     time.Time
	Description string
	Words       int
	WorkCount   int
	Bookmarks   int
	Complete    bool
	Works       []WorkRef
}

// Series is a passive record keyed by the archive's series id.
type Series struct {
	Record[SeriesFields]
	ID int64
}

func NewSeries(id int64) *Series { return &Series{ID: id} }

// SeriesFromURL builds a Series from a canonical series URL.
func SeriesFromURL(raw string) (*Series, error) {
	id, err := urlutil.SeriesID(raw)
	if err != nil {
		return nil, err
	}
	return NewSeries(id), nil
}

func (s *Series) Spec() FetchSpec[SeriesFields] {
	return FetchSpec[SeriesFields]{
		Path:  urlutil.SeriesPath(s.ID),
		Parse: parseSeries,
	}
}

func parseSeries(doc *goquery.Document) (SeriesFields, error) {
	var f SeriesFields

	f.Title = htmlutil.Text(doc.Find("div.series-show h2.heading"))
	if f.Title == "" {
		return f, &ParseError{Missing: "series title"}
	}

	f.Creators = htmlutil.Texts(doc.Find("dl.series.meta dd a[rel=author]"))
	f.Description = htmlutil.Text(doc.Find("dl.series.meta blockquote.userstuff"))

	meta := doc.Find("dl.series.meta")
	var parseErr error
	meta.Find("dt").Each(func(_ int, dt *goquery.Selection) {
		value := htmlutil.Text(dt.NextFiltered("dd"))
		switch htmlutil.CleanText(dt.Text()) {
		case "Series Begun:":
			if t, err := time.Parse(dateLayout, value); err == nil {
				f.Begun = t
			}
		case "Series Updated:":
			if t, err := time.Parse(dateLayout, value); err == nil {
				f.Updated = t
			}
		case "Complete:":
			f.Complete = value == "Yes"
		}
	})

	stats := meta.Find("dl.stats")
	counts := []struct {
		dst *int
		sel string
	}{
		{&f.Words, "dd.words"},
		{&f.WorkCount, "dd.works"},
		{&f.Bookmarks, "dd.bookmarks"},
	}
	for _, c := range counts {
		n, err := htmlutil.Number(stats.Find(c.sel).Text())
		if err != nil {
			parseErr = &ParseError{Missing: "numeric " + c.sel}
			break
		}
		*c.dst = n
	}
	if parseErr != nil {
		return f, parseErr
	}

	// works listed in series order; the first heading anchor is the
	// work link, later ones are authors
	doc.Find("ul.series li.work").Each(func(_ int, li *goquery.Selection) {
		a := li.Find("h4.heading a").First()
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		id, err := urlutil.WorkID(href)
		if err != nil {
			return
		}
		f.Works = append(f.Works, WorkRef{ID: id, Title: htmlutil.Text(a)})
	})

	return f, nil
}
