// Package archive is a client for a fanworks archive. A Session owns
// the cookie jar, the authentication state and the shared rate limiter;
// every outgoing request funnels through it. Entities (Work, User,
// Series) are passive records populated by Reload, and comment threads
// are assembled by FetchThreads.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"sync"
	"time"

	"fanarchive/lib/pagecache"
	"fanarchive/lib/ratelimit"
	"fanarchive/lib/restyutil"
	"fanarchive/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/dgraph-io/badger/v4"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("fanarchive/archive")

var transcriptOutput restyutil.TranscriptOutput

// SetTranscriptOutput routes full request/response transcripts of every
// session built afterwards to out. Used for debugging parser breakage
// against live pages; transcripts are only produced at debug log level.
func SetTranscriptOutput(out restyutil.TranscriptOutput) {
	transcriptOutput = out
}

const (
	DefaultBaseUrl = "https://archiveofourown.org"
	DefaultTimeout = time.Second * 30

	// how long an anti-forgery token is trusted before a state-mutating
	// call demands a RefreshToken
	tokenValidity = time.Minute * 25
)

type SessionOptions struct {
	// BaseUrl defaults to DefaultBaseUrl.
	BaseUrl string
	// Timeout applies per request. Defaults to DefaultTimeout.
	Timeout time.Duration
	// MaxRequests caps requests per Window. Zero means the archive's
	// observed ceiling (ratelimit.DefaultMaxRequests); a negative value
	// disables proactive throttling.
	MaxRequests int
	Window      time.Duration
	// Cache, when set, backs cached static-page fetches such as
	// FandomCategories. Entity reloads never read from it.
	Cache *badger.DB
}

// Session carries cookies, authentication state and the rate limiter
// shared by every request issued through it. Sessions are safe for
// concurrent use. Multiple independent sessions (say one authenticated,
// one anonymous) can coexist; nothing here is process-global.
type Session struct {
	BaseUrl *url.URL
	Http    *resty.Client
	Limiter *ratelimit.Limiter

	cache *pagecache.Cache

	mu             sync.Mutex
	authenticated  bool
	username       string
	token          string
	tokenFetchedAt time.Time
}

// NewSession builds an anonymous session. Anonymous sessions support
// read-style requests only; operations that need an identity fail with
// an AuthError before touching the network.
func NewSession(opts SessionOptions) (*Session, error) {
	if opts.BaseUrl == "" {
		opts.BaseUrl = DefaultBaseUrl
	}
	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxRequests := opts.MaxRequests
	if maxRequests == 0 {
		maxRequests = ratelimit.DefaultMaxRequests
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseUrl)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(baseUrl.Hostname()))
	client.SetTimeout(timeout)

	telemetry.InstrumentResty(client, "fanarchive/http")
	restyutil.DumpTranscripts(client, transcriptOutput)

	s := &Session{
		BaseUrl: baseUrl,
		Http:    client,
		Limiter: ratelimit.New(maxRequests, opts.Window),
	}
	if opts.Cache != nil {
		s.cache = pagecache.New(opts.Cache, baseUrl)
	}
	return s, nil
}

// Login builds a session and authenticates it. Rejected credentials
// yield an AuthError, distinct from transport failures.
func Login(ctx context.Context, username, password string, opts SessionOptions) (*Session, error) {
	ctx, span := tracer.Start(ctx, "session:Login")
	defer span.End()

	s, err := NewSession(opts)
	if err != nil {
		return nil, err
	}

	doc, err := s.Get(ctx, "/users/login", nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch login page")
		return nil, err
	}
	loginToken := doc.Find("input[name=authenticity_token]").AttrOr("value", "")
	if loginToken == "" {
		span.SetStatus(codes.Error, "failed to find login token")
		return nil, &ParseError{Missing: "authenticity_token input on login page"}
	}

	doc, err = s.do(ctx, resty.MethodPost, "/users/login", nil, map[string]string{
		"authenticity_token": loginToken,
		"user[login]":        username,
		"user[password]":     password,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to make login request")
		return nil, err
	}

	if doc.Find("div.flash.error").Length() > 0 || doc.Find("form#new_user input[name=authenticity_token]").Length() > 0 {
		span.SetStatus(codes.Error, reasonBadCredentials)
		return nil, &AuthError{Reason: reasonBadCredentials}
	}

	s.mu.Lock()
	s.authenticated = true
	s.username = username
	if token := doc.Find("meta[name=csrf-token]").AttrOr("content", ""); token != "" {
		s.token = token
		s.tokenFetchedAt = time.Now()
	}
	s.mu.Unlock()

	return s, nil
}

func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

// RefreshToken re-derives the anti-forgery token from a fresh page
// fetch, mutating the session in place. Call it before a state-mutating
// action whenever the token is unset or past its validity window.
func (s *Session) RefreshToken(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "session:RefreshToken")
	defer span.End()

	if err := s.requireAuthenticated(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	doc, err := s.Get(ctx, "/", nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch token page")
		return err
	}
	token := doc.Find("meta[name=csrf-token]").AttrOr("content", "")
	if token == "" {
		span.SetStatus(codes.Error, "csrf token missing")
		return &ParseError{Missing: "csrf-token meta tag"}
	}

	s.mu.Lock()
	s.token = token
	s.tokenFetchedAt = time.Now()
	s.mu.Unlock()
	return nil
}

func (s *Session) requireAuthenticated() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.authenticated {
		return &AuthError{Reason: reasonNotAuthenticated}
	}
	return nil
}

// currentToken fails fast when the session cannot perform a
// state-mutating action: anonymous mode, or a token that is unset or
// older than its validity window.
func (s *Session) currentToken() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.authenticated {
		return "", &AuthError{Reason: reasonNotAuthenticated}
	}
	if s.token == "" || time.Since(s.tokenFetchedAt) > tokenValidity {
		return "", &AuthError{Reason: reasonStaleToken}
	}
	return s.token, nil
}

// Get issues a read request through the rate limiter and returns the
// parsed document.
func (s *Session) Get(ctx context.Context, path string, query url.Values) (*goquery.Document, error) {
	return s.do(ctx, resty.MethodGet, path, query, nil)
}

// PostForm issues a state-mutating request. The current anti-forgery
// token is injected as the authenticity_token field; a missing or stale
// token fails before any network call is attempted.
func (s *Session) PostForm(ctx context.Context, path string, form map[string]string) (*goquery.Document, error) {
	token, err := s.currentToken()
	if err != nil {
		return nil, err
	}
	merged := make(map[string]string, len(form)+1)
	for k, v := range form {
		merged[k] = v
	}
	merged["authenticity_token"] = token
	return s.do(ctx, resty.MethodPost, path, nil, merged)
}

// do is the single choke point for outgoing calls: rate limiter, then
// transport, then status mapping into the error taxonomy.
func (s *Session) do(ctx context.Context, method, path string, query url.Values, form map[string]string) (*goquery.Document, error) {
	ctx, span := tracer.Start(ctx, fmt.Sprintf("session:%s %s", method, path))
	defer span.End()

	if err := s.Limiter.Wait(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rate limiter wait interrupted")
		return nil, &HTTPError{Kind: classifyTransport(err), Err: err}
	}

	req := s.Http.R().SetContext(ctx)
	if query != nil {
		req.SetQueryParamsFromValues(query)
	}
	if form != nil {
		req.SetFormData(form)
	}

	res, err := req.Execute(method, path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport failure")
		return nil, &HTTPError{Kind: classifyTransport(err), Err: err}
	}

	status := res.StatusCode()
	retryAfter := parseRetryAfter(res.Header().Get("Retry-After"))
	if status == 429 || (status == 503 && retryAfter > 0) {
		if retryAfter > 0 {
			s.Limiter.Defer(retryAfter)
		}
		span.SetStatus(codes.Error, "rate limited by remote host")
		return nil, &HTTPError{Kind: KindRateLimit, StatusCode: status, RetryAfter: retryAfter}
	}
	if res.IsError() {
		span.SetStatus(codes.Error, res.Status())
		return nil, &HTTPError{Kind: KindStatus, StatusCode: status}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse html")
		return nil, &ParseError{URL: res.Request.URL, Missing: "parseable html"}
	}
	return doc, nil
}

func classifyTransport(err error) HTTPErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return KindTimeout
	}
	return KindTransport
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
