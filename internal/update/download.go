package update

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"smartbudget/internal/netcheck"

	"github.com/google/uuid"
)

const (
	DefaultFileName        = "smartbudget_update.apk"
	DefaultDownloadTimeout = 10 * time.Minute
)

// Outcome is the terminal state of a download: Succeeded or Failed.
type Outcome interface {
	isOutcome()
}

type Succeeded struct {
	Path string
}

type Failed struct {
	Reason string
}

func (Succeeded) isOutcome() {}
func (Failed) isOutcome()    {}

// Download tracks one background installer download.
type Download struct {
	ID      string
	Release ReleaseInfo
	Started time.Time

	once    sync.Once
	done    chan struct{}
	outcome Outcome
}

func newDownload(release ReleaseInfo) *Download {
	return &Download{
		ID:      uuid.NewString(),
		Release: release,
		Started: time.Now(),
		done:    make(chan struct{}),
	}
}

// Done is closed when the outcome is known.
func (d *Download) Done() <-chan struct{} { return d.done }

// Outcome returns the result once Done is closed.
func (d *Download) Outcome() (Outcome, bool) {
	select {
	case <-d.done:
		return d.outcome, true
	default:
		return nil, false
	}
}

// Wait blocks until the download finishes or ctx ends. Cancelling ctx does
// not stop the download.
func (d *Download) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-d.done:
		return d.outcome, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *Download) finish(o Outcome) {
	d.once.Do(func() {
		d.outcome = o
		close(d.done)
	})
}

// Downloader fetches installer assets into a private directory.
type Downloader struct {
	dir        string
	fileName   string
	timeout    time.Duration
	httpClient *http.Client
	network    netcheck.Checker
	perms      Permissions
	installer  Installer
	recorder   Recorder

	mu       sync.Mutex
	inflight map[string]*Download
}

type DownloaderOption func(*Downloader)

func WithDownloadClient(client *http.Client) DownloaderOption {
	return func(d *Downloader) {
		d.httpClient = client
	}
}

func WithFileName(name string) DownloaderOption {
	return func(d *Downloader) {
		d.fileName = name
	}
}

func WithDownloadTimeout(timeout time.Duration) DownloaderOption {
	return func(d *Downloader) {
		d.timeout = timeout
	}
}

func WithDownloadConnectivity(n netcheck.Checker) DownloaderOption {
	return func(d *Downloader) {
		d.network = n
	}
}

func WithPermissions(p Permissions) DownloaderOption {
	return func(d *Downloader) {
		d.perms = p
	}
}

func WithInstaller(i Installer) DownloaderOption {
	return func(d *Downloader) {
		d.installer = i
	}
}

func WithDownloadRecorder(r Recorder) DownloaderOption {
	return func(d *Downloader) {
		d.recorder = r
	}
}

// NewDownloader stores downloads under dir.
func NewDownloader(dir string, opts ...DownloaderOption) *Downloader {
	d := &Downloader{
		dir:        dir,
		fileName:   DefaultFileName,
		timeout:    DefaultDownloadTimeout,
		httpClient: &http.Client{},
		network:    netcheck.Static(true),
		perms:      AllowAll(),
		installer:  LogInstaller{},
		recorder:   nopRecorder{},
		inflight:   make(map[string]*Download),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DownloadAndInstall starts downloading release in the background and
// installs it once the file is complete. A second call for the same version
// while the first is running returns the same handle.
//
// When installing is not permitted the permission request is triggered and
// ErrInstallBlocked returned without downloading anything.
func (d *Downloader) DownloadAndInstall(ctx context.Context, release ReleaseInfo) (*Download, error) {
	if release.DownloadURL == "" {
		return nil, fmt.Errorf("%w: release %s has no installer asset", ErrMalformedResponse, release.VersionName)
	}
	if !d.network.Online(ctx) {
		d.recorder.ObserveUpdateDownload("offline")
		return nil, netcheck.ErrNoConnectivity
	}
	if !d.perms.HasLegacyStoragePermission() {
		return nil, fmt.Errorf("%w: storage permission required", ErrInstallBlocked)
	}
	if !d.perms.CanInstallUnknownApps() {
		if err := d.perms.RequestInstallPermission(ctx); err != nil {
			slog.WarnContext(ctx, "Failed to request install permission", "component", "update", "error", err)
		}
		return nil, ErrInstallBlocked
	}

	d.mu.Lock()
	if running, ok := d.inflight[release.VersionName]; ok {
		d.mu.Unlock()
		return running, nil
	}
	dl := newDownload(release)
	d.inflight[release.VersionName] = dl
	d.mu.Unlock()

	slog.InfoContext(ctx, "Download started",
		"component", "update",
		"download_id", dl.ID,
		"remote_version", release.VersionName)

	go d.run(context.WithoutCancel(ctx), dl)
	return dl, nil
}

func (d *Downloader) run(ctx context.Context, dl *Download) {
	defer func() {
		d.mu.Lock()
		delete(d.inflight, dl.Release.VersionName)
		d.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	path, err := d.fetch(ctx, dl.Release.DownloadURL)
	if err != nil {
		slog.ErrorContext(ctx, "Download failed",
			"component", "update",
			"download_id", dl.ID,
			"error", err)
		d.recorder.ObserveUpdateDownload("failure")
		dl.finish(Failed{Reason: err.Error()})
		return
	}

	if err := d.installer.Install(ctx, path); err != nil {
		slog.ErrorContext(ctx, "Install failed",
			"component", "update",
			"download_id", dl.ID,
			"file", path,
			"error", err)
		d.recorder.ObserveUpdateDownload("failure")
		dl.finish(Failed{Reason: fmt.Sprintf("install: %v", err)})
		return
	}

	slog.InfoContext(ctx, "Download complete",
		"component", "update",
		"download_id", dl.ID,
		"file", path,
		"duration_ms", time.Since(dl.Started).Milliseconds())
	d.recorder.ObserveUpdateDownload("success")
	dl.finish(Succeeded{Path: path})
}

// fetch writes the body to <name>.part and renames it over any stale file.
func (d *Downloader) fetch(ctx context.Context, url string) (string, error) {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return "", fmt.Errorf("create download directory: %w", err)
	}
	final := filepath.Join(d.dir, d.fileName)
	partial := final + ".part"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrRequestFailed, resp.StatusCode)
	}

	f, err := os.Create(partial)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		_ = os.Remove(partial)
		return "", fmt.Errorf("write file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(partial)
		return "", fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(partial, final); err != nil {
		return "", fmt.Errorf("rename download: %w", errors.Join(err, os.Remove(partial)))
	}
	return final, nil
}
