package update

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"smartbudget/internal/netcheck"
)

func TestCycle_Transitions(t *testing.T) {
	var c Cycle
	steps := []State{Checking, UpdateAvailable, Downloading, InstallPrompted, Idle, Checking, NoUpdate}
	for _, s := range steps {
		if err := c.Advance(s); err != nil {
			t.Fatalf("Advance(%s) error: %v", s, err)
		}
	}

	invalid := []struct {
		from, to State
	}{
		{Idle, Downloading},
		{Idle, UpdateAvailable},
		{Checking, Downloading},
		{Checking, Idle},
		{NoUpdate, Downloading},
		{Downloading, Idle},
		{UpdateAvailable, InstallPrompted},
	}
	for _, tt := range invalid {
		c := Cycle{State: tt.from}
		if err := c.Advance(tt.to); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("%s -> %s: err = %v, want ErrInvalidTransition", tt.from, tt.to, err)
		}
	}
}

func TestCycle_Status(t *testing.T) {
	tests := []struct {
		cycle Cycle
		want  string
	}{
		{Cycle{State: Idle}, ""},
		{Cycle{State: Checking}, "Checking..."},
		{Cycle{State: NoUpdate}, "Up to date"},
		{Cycle{State: UpdateAvailable, Release: &ReleaseInfo{VersionName: "1.0.9"}}, "Update Available (1.0.9)"},
		{Cycle{State: CheckFailed}, "Check failed"},
		{Cycle{State: CheckFailed, Reason: "No Internet Connection"}, "No Internet Connection"},
		{Cycle{State: Downloading}, "Downloading..."},
		{Cycle{State: DownloadFailed, Reason: "status 404"}, "Download failed: status 404"},
	}
	for _, tt := range tests {
		if got := tt.cycle.Status(); got != tt.want {
			t.Errorf("%s: Status() = %q, want %q", tt.cycle.State, got, tt.want)
		}
	}
}

func TestManager_FullCycle(t *testing.T) {
	mux := http.NewServeMux()
	var srvURL string
	mux.HandleFunc("/repos/owner/repo/releases/latest", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(releaseJSON("v1.1.0", "notes",
			githubAsset{Name: "app.apk", BrowserDownloadURL: srvURL + "/download/app.apk"}))
	})
	mux.HandleFunc("/download/app.apk", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("apk"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	srvURL = srv.URL

	inst := &recordingInstaller{}
	m := NewManager(
		NewChecker("owner", "repo", WithBaseURL(srv.URL)),
		NewDownloader(t.TempDir(), WithInstaller(inst)),
		"1.0.8",
	)

	if _, err := m.Install(context.Background()); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Install before Check: err = %v", err)
	}

	release, err := m.Check(context.Background())
	if err != nil || release == nil {
		t.Fatalf("Check() = %v, %v", release, err)
	}
	if got := m.Snapshot().Status(); got != "Update Available (1.1.0)" {
		t.Errorf("status = %q", got)
	}

	dl, err := m.Install(context.Background())
	if err != nil {
		t.Fatalf("Install() error: %v", err)
	}
	waitOutcome(t, dl)

	deadline := time.Now().Add(5 * time.Second)
	for m.Snapshot().State != InstallPrompted {
		if time.Now().After(deadline) {
			t.Fatalf("state = %s, want install_prompted", m.Snapshot().State)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if inst.calls.Load() != 1 {
		t.Errorf("installer calls = %d", inst.calls.Load())
	}
}

func TestManager_Offline(t *testing.T) {
	m := NewManager(
		NewChecker("owner", "repo", WithConnectivity(netcheck.Static(false))),
		NewDownloader(t.TempDir()),
		"1.0.0",
	)
	if _, err := m.Check(context.Background()); !errors.Is(err, netcheck.ErrNoConnectivity) {
		t.Errorf("err = %v", err)
	}
	snap := m.Snapshot()
	if snap.State != CheckFailed || snap.Status() != "No Internet Connection" {
		t.Errorf("snapshot = %+v status %q", snap, snap.Status())
	}
}
