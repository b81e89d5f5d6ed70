package archive

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func newWorkServer(t *testing.T, pages map[string]string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, page)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestReloadPopulatesAllFields(t *testing.T) {
	server := newWorkServer(t, map[string]string{"/works/77": workPage})
	s, err := NewSession(testOptions(server.URL))
	require.NoError(t, err)

	work := NewWork(77)
	require.False(t, work.Loaded())

	require.NoError(t, Reload(context.Background(), s, work))

	require.True(t, work.Loaded())
	fields := work.Fields()
	expected, err := parseWork(parseDoc(t, workPage))
	require.NoError(t, err)
	if diff := cmp.Diff(expected, fields); diff != "" {
		t.Fatal(diff)
	}
}

func TestReloadOverwritesPreviousFields(t *testing.T) {
	secondPage := `<html><body>
		<div class="preface group"><h2 class="title heading">Retitled</h2></div>
		<dl class="work meta group">
			<dd class="language">English</dd>
			<dl class="stats"><dd class="words">10</dd><dd class="chapters">1/1</dd></dl>
		</dl>
	</body></html>`

	pages := map[string]string{"/works/77": workPage}
	server := newWorkServer(t, pages)
	s, err := NewSession(testOptions(server.URL))
	require.NoError(t, err)

	work := NewWork(77)
	require.NoError(t, Reload(context.Background(), s, work))
	require.NotEmpty(t, work.Fields().Tags)

	// the remote document changed between reloads
	pages["/works/77"] = secondPage
	require.NoError(t, Reload(context.Background(), s, work))

	fields := work.Fields()
	require.Equal(t, "Retitled", fields.Title)
	require.Empty(t, fields.Tags, "fields absent from the second response must not carry over")
	require.Empty(t, fields.Authors)
	require.Equal(t, 10, fields.Words)
	require.True(t, fields.Complete)
}

func TestReloadAsyncMatchesSync(t *testing.T) {
	delay := 150 * time.Millisecond
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(delay)
		fmt.Fprint(w, workPage)
	}))
	t.Cleanup(server.Close)

	s, err := NewSession(testOptions(server.URL))
	require.NoError(t, err)

	syncWork := NewWork(77)
	require.NoError(t, Reload(context.Background(), s, syncWork))

	asyncWork := NewWork(77)
	start := time.Now()
	handle := ReloadAsync(context.Background(), s, asyncWork)
	require.Less(t, time.Since(start), delay/2, "async reload must return without blocking")

	require.NoError(t, handle.Join())
	require.True(t, asyncWork.Loaded())
	if diff := cmp.Diff(syncWork.Fields(), asyncWork.Fields()); diff != "" {
		t.Fatal(diff)
	}
}

func TestParallelReloadsOverlap(t *testing.T) {
	delay := 150 * time.Millisecond
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(delay)
		fmt.Fprint(w, workPage)
	}))
	t.Cleanup(server.Close)

	s, err := NewSession(testOptions(server.URL))
	require.NoError(t, err)

	const n = 5
	works := make([]*Work, n)
	handles := make([]*Handle, n)
	start := time.Now()
	for i := range works {
		works[i] = NewWork(int64(i + 1))
		handles[i] = ReloadAsync(context.Background(), s, works[i])
	}
	for i, h := range handles {
		require.NoError(t, h.Join())
		require.True(t, works[i].Loaded())
	}

	elapsed := time.Since(start)
	require.Less(t, elapsed, time.Duration(n)*delay/2,
		"joining %d reloads took %s, they appear serialized", n, elapsed)
}

func TestThreadedFailureSurfacesOnJoin(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	s, err := NewSession(testOptions(server.URL))
	require.NoError(t, err)

	work := NewWork(77)
	err = ReloadAsync(context.Background(), s, work).Join()

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, KindStatus, httpErr.Kind)
	require.False(t, work.Loaded())
}

func TestReloadRestrictedContent(t *testing.T) {
	server := newWorkServer(t, map[string]string{
		"/works/77": `<html><body><div id="signin">
			<form id="new_user" action="/users/login"><input name="authenticity_token" value="x"/></form>
		</div></body></html>`,
	})
	s, err := NewSession(testOptions(server.URL))
	require.NoError(t, err)

	err = Reload(context.Background(), s, NewWork(77))

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, reasonRestricted, authErr.Reason)
}

func TestReloadParseError(t *testing.T) {
	server := newWorkServer(t, map[string]string{
		"/works/77": "<html><body><p>layout changed</p></body></html>",
	})
	s, err := NewSession(testOptions(server.URL))
	require.NoError(t, err)

	err = Reload(context.Background(), s, NewWork(77))

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestReloadCountsOneRequest(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		fmt.Fprint(w, workPage)
	}))
	t.Cleanup(server.Close)

	s, err := NewSession(testOptions(server.URL))
	require.NoError(t, err)

	require.NoError(t, Reload(context.Background(), s, NewWork(77)))
	require.Equal(t, int64(1), requests.Load())
	require.Equal(t, 1, s.Limiter.Total())
}
