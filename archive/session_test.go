package archive

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"fanarchive/lib/telemetry"

	"github.com/stretchr/testify/require"
)

const (
	loginTokenValue = "login-token-abc"
	csrfTokenValue  = "csrf-token-xyz"
)

func loginPage() string {
	return fmt.Sprintf(`<html><body>
		<div id="signin">
			<form id="new_user" action="/users/login" method="post">
				<input type="hidden" name="authenticity_token" value="%s"/>
				<input name="user[login]"/><input name="user[password]"/>
			</form>
		</div>
	</body></html>`, loginTokenValue)
}

func dashboardPage() string {
	return fmt.Sprintf(`<html>
		<head><meta name="csrf-token" content="%s"/></head>
		<body><p>Hi, alice!</p></body>
	</html>`, csrfTokenValue)
}

func rejectedLoginPage() string {
	return fmt.Sprintf(`<html><body>
		<div class="flash error">The password or user name you entered doesn't match our records.</div>
		<div id="signin">
			<form id="new_user" action="/users/login" method="post">
				<input type="hidden" name="authenticity_token" value="%s"/>
			</form>
		</div>
	</body></html>`, loginTokenValue)
}

// newLoginServer mimics the archive's login flow and records mutating
// requests for assertions.
func newLoginServer(t *testing.T, acceptPassword string) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var mutations atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("GET /users/login", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, loginPage())
	})
	mux.HandleFunc("POST /users/login", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, loginTokenValue, r.PostForm.Get("authenticity_token"))
		if r.PostForm.Get("user[password]") != acceptPassword {
			fmt.Fprint(w, rejectedLoginPage())
			return
		}
		fmt.Fprint(w, dashboardPage())
	})
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, dashboardPage())
	})
	mux.HandleFunc("POST /kudos", func(w http.ResponseWriter, r *http.Request) {
		mutations.Add(1)
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("authenticity_token") != csrfTokenValue {
			fmt.Fprint(w, `<html><body><div class="flash error">invalid token</div></body></html>`)
			return
		}
		fmt.Fprint(w, `<html><body><p id="kudos_message">Thank you for leaving kudos!</p></body></html>`)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, &mutations
}

func testOptions(serverURL string) SessionOptions {
	return SessionOptions{
		BaseUrl:     serverURL,
		MaxRequests: -1, // tests exercise the limiter separately
	}
}

func TestLogin(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:archive")
	defer cleanup()

	server, _ := newLoginServer(t, "hunter2")

	s, err := Login(context.Background(), "alice", "hunter2", testOptions(server.URL))
	require.NoError(t, err)
	require.True(t, s.Authenticated())
	require.Equal(t, "alice", s.Username())
}

func TestLoginRejectedCredentials(t *testing.T) {
	server, _ := newLoginServer(t, "hunter2")

	_, err := Login(context.Background(), "alice", "wrong", testOptions(server.URL))

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, reasonBadCredentials, authErr.Reason)
}

func TestAnonymousSessionFailsFastWithoutNetwork(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	t.Cleanup(server.Close)

	s, err := NewSession(testOptions(server.URL))
	require.NoError(t, err)

	var authErr *AuthError

	_, err = Bookmarks(context.Background(), s)
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, reasonNotAuthenticated, authErr.Reason)

	err = LeaveKudos(context.Background(), s, 77)
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, reasonNotAuthenticated, authErr.Reason)

	require.Equal(t, int64(0), requests.Load(), "auth check must precede any network call")
}

func TestStaleTokenFailsFastThenRefreshRecovers(t *testing.T) {
	server, mutations := newLoginServer(t, "hunter2")

	s, err := Login(context.Background(), "alice", "hunter2", testOptions(server.URL))
	require.NoError(t, err)

	// age the token past its validity window
	s.mu.Lock()
	s.tokenFetchedAt = time.Now().Add(-tokenValidity - time.Minute)
	s.mu.Unlock()

	err = LeaveKudos(context.Background(), s, 77)
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, reasonStaleToken, authErr.Reason)
	require.Equal(t, int64(0), mutations.Load(), "stale token must fail before the POST")

	require.NoError(t, s.RefreshToken(context.Background()))
	require.NoError(t, LeaveKudos(context.Background(), s, 77))
	require.Equal(t, int64(1), mutations.Load())
}

func TestRefreshTokenRequiresAuthentication(t *testing.T) {
	server, _ := newLoginServer(t, "hunter2")

	s, err := NewSession(testOptions(server.URL))
	require.NoError(t, err)

	err = s.RefreshToken(context.Background())
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, reasonNotAuthenticated, authErr.Reason)
}

func TestRateLimitedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(server.Close)

	s, err := NewSession(testOptions(server.URL))
	require.NoError(t, err)

	_, err = s.Get(context.Background(), "/works/77", nil)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, KindRateLimit, httpErr.Kind)
	require.Equal(t, http.StatusTooManyRequests, httpErr.StatusCode)
	require.Equal(t, time.Second, httpErr.RetryAfter)

	// the hint is forwarded to the limiter: the next request waits it out
	start := time.Now()
	_, err = s.Get(context.Background(), "/works/77", nil)
	require.Error(t, err)
	require.GreaterOrEqual(t, time.Since(start), time.Second)
}

func TestTimeoutSurfacesAsHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	t.Cleanup(server.Close)

	opts := testOptions(server.URL)
	opts.Timeout = 50 * time.Millisecond
	s, err := NewSession(opts)
	require.NoError(t, err)

	_, err = s.Get(context.Background(), "/works/77", nil)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, KindTimeout, httpErr.Kind)
}

func TestStatusErrorCarriesCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	t.Cleanup(server.Close)

	s, err := NewSession(testOptions(server.URL))
	require.NoError(t, err)

	_, err = s.Get(context.Background(), "/works/0", nil)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, KindStatus, httpErr.Kind)
	require.Equal(t, http.StatusNotFound, httpErr.StatusCode)
}

func TestTransportErrorKind(t *testing.T) {
	s, err := NewSession(SessionOptions{BaseUrl: "http://127.0.0.1:1", MaxRequests: -1})
	require.NoError(t, err)

	_, err = s.Get(context.Background(), "/works/77", nil)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, KindTransport, httpErr.Kind)
	require.False(t, errors.Is(err, context.DeadlineExceeded))
}
