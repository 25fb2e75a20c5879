package update

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"smartbudget/internal/cache"
	"smartbudget/internal/netcheck"
)

type recordedOutcomes struct {
	mu        sync.Mutex
	checks    []string
	downloads []string
}

func (r *recordedOutcomes) ObserveUpdateCheck(o string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks = append(r.checks, o)
}

func (r *recordedOutcomes) ObserveUpdateDownload(o string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.downloads = append(r.downloads, o)
}

func releaseJSON(tag string, body any, assets ...githubAsset) map[string]any {
	m := map[string]any{
		"tag_name": tag,
		"html_url": "https://github.com/owner/repo/releases/tag/" + tag,
		"assets":   assets,
	}
	if body != nil {
		m["body"] = body
	}
	return m
}

func newReleaseServer(t *testing.T, hits *int32, payload any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		if r.URL.Path != "/repos/owner/repo/releases/latest" {
			t.Errorf("unexpected path: %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Accept"); got != "application/vnd.github.v3+json" {
			t.Errorf("Accept = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(payload)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewChecker(t *testing.T) {
	c := NewChecker("owner", "repo")
	if c.owner != "owner" || c.repo != "repo" {
		t.Errorf("owner/repo = %q/%q", c.owner, c.repo)
	}
	if c.httpClient.Timeout != DefaultTimeout {
		t.Errorf("timeout = %v, want %v", c.httpClient.Timeout, DefaultTimeout)
	}
	if c.assetSuffix != ".apk" {
		t.Errorf("assetSuffix = %q", c.assetSuffix)
	}

	c = NewChecker("owner", "repo", WithTimeout(3*time.Second), WithBaseURL("http://example.test/"))
	if c.httpClient.Timeout != 3*time.Second {
		t.Errorf("WithTimeout not applied")
	}
	if c.baseURL != "http://example.test" {
		t.Errorf("baseURL = %q", c.baseURL)
	}
}

func TestCheck_UpdateAvailable(t *testing.T) {
	srv := newReleaseServer(t, nil, releaseJSON("v1.0.9", "Bug fixes",
		githubAsset{Name: "notes.txt", BrowserDownloadURL: "https://dl/notes.txt"},
		githubAsset{Name: "smartbudget-1.0.9.apk", BrowserDownloadURL: "https://dl/app.apk"},
		githubAsset{Name: "other.apk", BrowserDownloadURL: "https://dl/other.apk"},
	))

	rec := &recordedOutcomes{}
	c := NewChecker("owner", "repo", WithBaseURL(srv.URL), WithRecorder(rec))
	info, err := c.Check(context.Background(), "1.0.8")
	if err != nil {
		t.Fatalf("Check() error: %v", err)
	}
	if info == nil {
		t.Fatal("expected a release")
	}
	if info.VersionName != "1.0.9" {
		t.Errorf("VersionName = %q, want 1.0.9", info.VersionName)
	}
	if info.DownloadURL != "https://dl/app.apk" {
		t.Errorf("DownloadURL = %q, want first .apk asset", info.DownloadURL)
	}
	if info.ReleaseNotes != "Bug fixes" {
		t.Errorf("ReleaseNotes = %q", info.ReleaseNotes)
	}
	if info.ReleaseURL != "https://github.com/owner/repo/releases/tag/v1.0.9" {
		t.Errorf("ReleaseURL = %q", info.ReleaseURL)
	}
	if len(rec.checks) != 1 || rec.checks[0] != "update_available" {
		t.Errorf("recorded %v", rec.checks)
	}
}

func TestCheck_NoResult(t *testing.T) {
	tests := []struct {
		name    string
		current string
		payload any
	}{
		{"same version", "1.0.9", releaseJSON("v1.0.9", nil, githubAsset{Name: "a.apk", BrowserDownloadURL: "u"})},
		{"older remote", "2.0", releaseJSON("1.9.9", nil, githubAsset{Name: "a.apk", BrowserDownloadURL: "u"})},
		{"no installer asset", "1.0.0", releaseJSON("v9.0.0", nil, githubAsset{Name: "a.zip", BrowserDownloadURL: "u"})},
		{"suffix is case sensitive", "1.0.0", releaseJSON("v9.0.0", nil, githubAsset{Name: "A.APK", BrowserDownloadURL: "u"})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newReleaseServer(t, nil, tt.payload)
			c := NewChecker("owner", "repo", WithBaseURL(srv.URL))
			info, err := c.Check(context.Background(), tt.current)
			if err != nil {
				t.Fatalf("Check() error: %v", err)
			}
			if info != nil {
				t.Errorf("expected no release, got %+v", info)
			}
		})
	}
}

func TestCheck_DefaultReleaseNotes(t *testing.T) {
	srv := newReleaseServer(t, nil, releaseJSON("v2.0.0", nil, githubAsset{Name: "a.apk", BrowserDownloadURL: "u"}))
	c := NewChecker("owner", "repo", WithBaseURL(srv.URL))
	info, err := c.Check(context.Background(), "1.0.0")
	if err != nil || info == nil {
		t.Fatalf("Check() = %v, %v", info, err)
	}
	if info.ReleaseNotes != DefaultReleaseNotes {
		t.Errorf("ReleaseNotes = %q, want default", info.ReleaseNotes)
	}
}

func TestCheck_Offline(t *testing.T) {
	var hits int32
	srv := newReleaseServer(t, &hits, releaseJSON("v2.0.0", nil))
	rec := &recordedOutcomes{}
	c := NewChecker("owner", "repo",
		WithBaseURL(srv.URL),
		WithConnectivity(netcheck.Static(false)),
		WithRecorder(rec))

	_, err := c.Check(context.Background(), "1.0.0")
	if !errors.Is(err, netcheck.ErrNoConnectivity) {
		t.Errorf("err = %v, want ErrNoConnectivity", err)
	}
	if hits != 0 {
		t.Errorf("server was called %d times while offline", hits)
	}
	if c.CheckForUpdates(context.Background(), "1.0.0") != nil {
		t.Error("CheckForUpdates should return nil offline")
	}
	if rec.checks[0] != "offline" {
		t.Errorf("recorded %v", rec.checks)
	}
}

func TestCheck_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    error
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			want: ErrRequestFailed,
		},
		{
			name: "not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.NotFound(w, r)
			},
			want: ErrRequestFailed,
		},
		{
			name: "rate limited",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.WriteHeader(http.StatusForbidden)
			},
			want: ErrRateLimited,
		},
		{
			name: "invalid json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("{not json"))
			},
			want: ErrMalformedResponse,
		},
		{
			name: "missing tag",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"body":"x","assets":[]}`))
			},
			want: ErrMalformedResponse,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := NewChecker("owner", "repo", WithBaseURL(srv.URL))
			info, err := c.Check(context.Background(), "1.0.0")
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if info != nil {
				t.Errorf("info = %+v, want nil", info)
			}
			if c.CheckForUpdates(context.Background(), "1.0.0") != nil {
				t.Error("CheckForUpdates should swallow the error")
			}
		})
	}
}

func TestCheck_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewChecker("owner", "repo", WithBaseURL(url))
	if _, err := c.Check(context.Background(), "1.0.0"); !errors.Is(err, ErrRequestFailed) {
		t.Errorf("err = %v, want ErrRequestFailed", err)
	}
}

func TestCheck_ConcurrentCallsShareRequest(t *testing.T) {
	var hits int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		<-release
		_ = json.NewEncoder(w).Encode(releaseJSON("v2.0.0", "n", githubAsset{Name: "a.apk", BrowserDownloadURL: "u"}))
	}))
	defer srv.Close()

	c := NewChecker("owner", "repo", WithBaseURL(srv.URL))

	const callers = 5
	var wg sync.WaitGroup
	results := make(chan *ReleaseInfo, callers)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			info, err := c.Check(context.Background(), "1.0.0")
			if err != nil {
				t.Errorf("Check() error: %v", err)
			}
			results <- info
		}()
	}

	// give every caller time to join before the response is released
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	for info := range results {
		if info == nil || info.VersionName != "2.0.0" {
			t.Errorf("unexpected result %+v", info)
		}
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Errorf("server hit %d times, want 1", n)
	}
}

func TestCheck_ReleaseCache(t *testing.T) {
	var hits int32
	srv := newReleaseServer(t, &hits, releaseJSON("v2.0.0", nil, githubAsset{Name: "a.apk", BrowserDownloadURL: "u"}))

	c := NewChecker("owner", "repo",
		WithBaseURL(srv.URL),
		WithReleaseCache(cache.NewLRUCache[ReleaseInfo](4, time.Minute)))

	for range 3 {
		if info, err := c.Check(context.Background(), "1.0.0"); err != nil || info == nil {
			t.Fatalf("Check() = %v, %v", info, err)
		}
	}
	if hits != 1 {
		t.Errorf("server hit %d times, want 1", hits)
	}
}

func TestCheck_JoinedCallerOutlivesCancelledFirstCaller(t *testing.T) {
	var hits int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		<-release
		_ = json.NewEncoder(w).Encode(releaseJSON("v2.0.0", "n", githubAsset{Name: "a.apk", BrowserDownloadURL: "u"}))
	}))
	defer srv.Close()

	c := NewChecker("owner", "repo", WithBaseURL(srv.URL))

	firstCtx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := c.Check(firstCtx, "1.0.0")
		first <- err
	}()
	for atomic.LoadInt32(&hits) == 0 {
		time.Sleep(5 * time.Millisecond)
	}

	type result struct {
		info *ReleaseInfo
		err  error
	}
	second := make(chan result, 1)
	go func() {
		info, err := c.Check(context.Background(), "1.0.0")
		second <- result{info, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	if err := <-first; !errors.Is(err, context.Canceled) {
		t.Errorf("first caller err = %v, want context.Canceled", err)
	}

	close(release)
	got := <-second
	if got.err != nil {
		t.Fatalf("joined caller err = %v", got.err)
	}
	if got.info == nil || got.info.VersionName != "2.0.0" {
		t.Errorf("unexpected result %+v", got.info)
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Errorf("server hit %d times, want 1", n)
	}
}
