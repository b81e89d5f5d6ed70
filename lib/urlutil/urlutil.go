// Package urlutil maps canonical archive URLs to entity identifiers and
// back. The archive embeds identifiers in path segments, e.g.
// /works/123/chapters/456 or /users/alice/profile.
package urlutil

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
)

var (
	workPattern    = regexp.MustCompile(`^/works/(\d+)`)
	chapterPattern = regexp.MustCompile(`^/works/\d+/chapters/(\d+)`)
	seriesPattern  = regexp.MustCompile(`^/series/(\d+)`)
	userPattern    = regexp.MustCompile(`^/users/([^/]+)`)
)

func pathOf(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	return u.Path, nil
}

func matchID(raw string, pattern *regexp.Regexp, what string) (int64, error) {
	path, err := pathOf(raw)
	if err != nil {
		return 0, err
	}
	groups := pattern.FindStringSubmatch(path)
	if len(groups) < 2 {
		return 0, fmt.Errorf("no %s id in %q", what, raw)
	}
	return strconv.ParseInt(groups[1], 10, 64)
}

// WorkID extracts the work identifier from a work or chapter URL.
func WorkID(raw string) (int64, error) {
	return matchID(raw, workPattern, "work")
}

// ChapterID extracts the chapter identifier from a chapter URL.
// Returns ok == false for a URL that addresses a whole work.
func ChapterID(raw string) (int64, bool) {
	id, err := matchID(raw, chapterPattern, "chapter")
	if err != nil {
		return 0, false
	}
	return id, true
}

// SeriesID extracts the series identifier from a series URL.
func SeriesID(raw string) (int64, error) {
	return matchID(raw, seriesPattern, "series")
}

// UserName extracts the user name from a user or pseud URL.
func UserName(raw string) (string, error) {
	path, err := pathOf(raw)
	if err != nil {
		return "", err
	}
	groups := userPattern.FindStringSubmatch(path)
	if len(groups) < 2 {
		return "", fmt.Errorf("no user name in %q", raw)
	}
	return groups[1], nil
}

// WorkPath builds the canonical path for a work, optionally scoped to a
// chapter.
func WorkPath(workID, chapterID int64) string {
	if chapterID > 0 {
		return fmt.Sprintf("/works/%d/chapters/%d", workID, chapterID)
	}
	return fmt.Sprintf("/works/%d", workID)
}

// SeriesPath builds the canonical path for a series.
func SeriesPath(seriesID int64) string {
	return fmt.Sprintf("/series/%d", seriesID)
}

// UserPath builds the canonical profile path for a user.
func UserPath(name string) string {
	return fmt.Sprintf("/users/%s/profile", url.PathEscape(name))
}
