package update

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"smartbudget/internal/netcheck"
)

type State int

const (
	Idle State = iota
	Checking
	NoUpdate
	UpdateAvailable
	CheckFailed
	Downloading
	InstallPrompted
	DownloadFailed
)

var ErrInvalidTransition = errors.New("invalid update state transition")

// ErrBusy is returned when a cycle is already checking or downloading.
var ErrBusy = errors.New("update already in progress")

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Checking:
		return "checking"
	case NoUpdate:
		return "no_update"
	case UpdateAvailable:
		return "update_available"
	case CheckFailed:
		return "check_failed"
	case Downloading:
		return "downloading"
	case InstallPrompted:
		return "install_prompted"
	case DownloadFailed:
		return "download_failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Busy reports whether work is running in this state.
func (s State) Busy() bool {
	return s == Checking || s == Downloading
}

var transitions = map[State][]State{
	Idle:            {Checking},
	Checking:        {NoUpdate, UpdateAvailable, CheckFailed},
	UpdateAvailable: {Downloading},
	Downloading:     {InstallPrompted, DownloadFailed},
}

// Cycle is one check-and-install pass. Every cycle starts Idle; any state
// that is not busy may be reset to Idle to begin a new one.
type Cycle struct {
	State   State
	Release *ReleaseInfo
	Reason  string
}

// Advance moves the cycle to next or returns ErrInvalidTransition.
func (c *Cycle) Advance(next State) error {
	if next == Idle && !c.State.Busy() {
		*c = Cycle{}
		return nil
	}
	for _, allowed := range transitions[c.State] {
		if allowed == next {
			c.State = next
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.State, next)
}

// Status is the user-facing line for the cycle.
func (c Cycle) Status() string {
	switch c.State {
	case Checking:
		return "Checking..."
	case NoUpdate:
		return "Up to date"
	case UpdateAvailable:
		return fmt.Sprintf("Update Available (%s)", c.Release.VersionName)
	case CheckFailed:
		if c.Reason != "" {
			return c.Reason
		}
		return "Check failed"
	case Downloading:
		return "Downloading..."
	case InstallPrompted:
		return "Installing update"
	case DownloadFailed:
		return "Download failed: " + c.Reason
	default:
		return ""
	}
}

// Manager runs update cycles for the running build.
type Manager struct {
	checker    *Checker
	downloader *Downloader
	current    string

	mu       sync.Mutex
	cycle    Cycle
	download *Download
}

func NewManager(checker *Checker, downloader *Downloader, currentVersion string) *Manager {
	return &Manager{
		checker:    checker,
		downloader: downloader,
		current:    currentVersion,
	}
}

func (m *Manager) CurrentVersion() string { return m.current }

// Snapshot returns a copy of the current cycle.
func (m *Manager) Snapshot() Cycle {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.cycle
	if c.Release != nil {
		r := *c.Release
		c.Release = &r
	}
	return c
}

// Check starts a new cycle and checks for a release.
func (m *Manager) Check(ctx context.Context) (*ReleaseInfo, error) {
	m.mu.Lock()
	if err := m.cycle.Advance(Idle); err != nil {
		m.mu.Unlock()
		return nil, ErrBusy
	}
	_ = m.cycle.Advance(Checking)
	m.mu.Unlock()

	release, err := m.checker.Check(ctx, m.current)

	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case errors.Is(err, netcheck.ErrNoConnectivity):
		m.cycle.Reason = "No Internet Connection"
		_ = m.cycle.Advance(CheckFailed)
	case err != nil:
		_ = m.cycle.Advance(CheckFailed)
	case release == nil:
		_ = m.cycle.Advance(NoUpdate)
	default:
		m.cycle.Release = release
		_ = m.cycle.Advance(UpdateAvailable)
	}
	return release, err
}

// Install downloads the release found by the last Check. The cycle moves to
// InstallPrompted or DownloadFailed in the background.
func (m *Manager) Install(ctx context.Context) (*Download, error) {
	m.mu.Lock()
	if m.cycle.State == Downloading && m.download != nil {
		d := m.download
		m.mu.Unlock()
		return d, nil
	}
	if m.cycle.State != UpdateAvailable {
		state := m.cycle.State
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: no update available (state %s)", ErrInvalidTransition, state)
	}
	release := *m.cycle.Release
	m.mu.Unlock()

	dl, err := m.downloader.DownloadAndInstall(ctx, release)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if err := m.cycle.Advance(Downloading); err != nil {
		m.mu.Unlock()
		return dl, nil
	}
	m.download = dl
	m.mu.Unlock()

	go m.await(dl)
	return dl, nil
}

func (m *Manager) await(dl *Download) {
	<-dl.Done()
	outcome, _ := dl.Outcome()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.download != dl {
		return
	}
	switch o := outcome.(type) {
	case Succeeded:
		_ = m.cycle.Advance(InstallPrompted)
	case Failed:
		m.cycle.Reason = o.Reason
		_ = m.cycle.Advance(DownloadFailed)
	}
	slog.Info("Update cycle finished",
		"component", "update",
		"download_id", dl.ID,
		"state", m.cycle.State.String())
}
