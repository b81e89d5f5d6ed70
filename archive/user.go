package archive

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"fanarchive/lib/htmlutil"
	"fanarchive/lib/urlutil"

	"github.com/PuerkitoBio/goquery"
)

type UserFields struct {
	Pseuds    []string
	JoinDate  time.Time
	UserID    int64
	Bio       string
	Works     int
	Series    int
	Bookmarks int
}

// User is a passive record keyed by user name.
type User struct {
	Record[UserFields]
	Name string
}

func NewUser(name string) *User { return &User{Name: name} }

// UserFromURL builds a User from a canonical user or pseud URL.
func UserFromURL(raw string) (*User, error) {
	name, err := urlutil.UserName(raw)
	if err != nil {
		return nil, err
	}
	return NewUser(name), nil
}

func (u *User) Spec() FetchSpec[UserFields] {
	return FetchSpec[UserFields]{
		Path:  urlutil.UserPath(u.Name),
		Parse: parseUser,
	}
}

var dashboardCount = regexp.MustCompile(`\((\d+)\)`)

func parseUser(doc *goquery.Document) (UserFields, error) {
	var f UserFields

	heading := htmlutil.Text(doc.Find("div.user.home div.header h2.heading"))
	if heading == "" {
		return f, &ParseError{Missing: "profile heading"}
	}

	f.Pseuds = htmlutil.Texts(doc.Find("dl.meta dd.pseuds a"))
	f.Bio = htmlutil.Text(doc.Find("div.bio blockquote.userstuff"))

	// the profile meta lists "I joined on:" and "My user ID is:" as
	// plain dt/dd pairs
	doc.Find("dl.meta dt").Each(func(_ int, dt *goquery.Selection) {
		value := htmlutil.Text(dt.NextFiltered("dd"))
		switch htmlutil.CleanText(dt.Text()) {
		case "I joined on:":
			if t, err := time.Parse(dateLayout, value); err == nil {
				f.JoinDate = t
			}
		case "My user ID is:":
			if id, err := strconv.ParseInt(value, 10, 64); err == nil {
				f.UserID = id
			}
		}
	})

	// sidebar entries read "Works (12)", "Series (3)", "Bookmarks (7)"
	doc.Find("#dashboard a").Each(func(_ int, a *goquery.Selection) {
		text := htmlutil.CleanText(a.Text())
		groups := dashboardCount.FindStringSubmatch(text)
		if len(groups) < 2 {
			return
		}
		n, err := strconv.Atoi(groups[1])
		if err != nil {
			return
		}
		switch {
		case strings.HasPrefix(text, "Works"):
			f.Works = n
		case strings.HasPrefix(text, "Series"):
			f.Series = n
		case strings.HasPrefix(text, "Bookmarks"):
			f.Bookmarks = n
		}
	})

	return f, nil
}
