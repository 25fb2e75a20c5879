package http

import (
	"errors"
	"net/http"
	"strings"

	"smartbudget/internal/amqp"
	"smartbudget/internal/backup"
	"smartbudget/internal/identity"
	"smartbudget/internal/log"
	"smartbudget/internal/netcheck"
	"smartbudget/internal/update"
)

type backupResultDTO struct {
	Status string `json:"status"`
}

type updateCheckDTO struct {
	CurrentVersion  string              `json:"current_version"`
	UpdateAvailable bool                `json:"update_available"`
	Release         *update.ReleaseInfo `json:"release,omitempty"`
	Status          string              `json:"status,omitempty"`
}

type updateStatusDTO struct {
	CurrentVersion string              `json:"current_version"`
	State          string              `json:"state"`
	Status         string              `json:"status"`
	Release        *update.ReleaseInfo `json:"release,omitempty"`
	DownloadID     string              `json:"download_id,omitempty"`
}

type exportDTO struct {
	Status string `json:"status"`
	Rows   int    `json:"rows,omitempty"`
}

func unavailable(w http.ResponseWriter, what string) {
	ErrorResponse(http.StatusServiceUnavailable, what+" is not configured").Write(w)
}

// ---- backup ----

func (s *Server) handleBackupUpload(w http.ResponseWriter, r *http.Request) {
	s.runBackup(w, r, backup.OpUpload)
}

func (s *Server) handleBackupRestore(w http.ResponseWriter, r *http.Request) {
	s.runBackup(w, r, backup.OpDownload)
}

// runBackup answers with the same status line for success and failure so
// clients can show it as is.
func (s *Server) runBackup(w http.ResponseWriter, r *http.Request, op backup.Operation) {
	if s.backups == nil {
		unavailable(w, "backup")
		return
	}

	var err error
	if op == backup.OpDownload {
		err = s.backups.Download(r.Context())
	} else {
		err = s.backups.Upload(r.Context())
	}
	body := backupResultDTO{Status: backup.StatusMessage(op, err)}
	if err == nil {
		NewJSONResponse().Body(body).Write(w)
		return
	}

	status := statusFor(err)
	if status >= 500 && status != http.StatusServiceUnavailable {
		log.NewStructuredLogger(logFor(r)).LogError(r.Context(), "Backup request failed", err,
			log.ComponentBackup, string(op), log.NewFields().WithUser(identitySubject(r)))
	}
	NewJSONResponse().Status(status).Body(body).Write(w)
}

// ---- update ----

// handleUpdateCheck compares ?current= against the latest release. Without
// current it runs a tracked cycle for the running build.
func (s *Server) handleUpdateCheck(w http.ResponseWriter, r *http.Request) {
	current := strings.TrimSpace(r.URL.Query().Get("current"))

	var (
		release *update.ReleaseInfo
		err     error
	)
	switch {
	case current != "" && s.checker != nil:
		release, err = s.checker.Check(r.Context(), current)
	case current == "" && s.updates != nil:
		current = s.updates.CurrentVersion()
		release, err = s.updates.Check(r.Context())
	default:
		unavailable(w, "update checker")
		return
	}

	if errors.Is(err, netcheck.ErrNoConnectivity) {
		NewJSONResponse().Status(http.StatusServiceUnavailable).
			Body(updateCheckDTO{CurrentVersion: current, Status: "No Internet Connection"}).
			Write(w)
		return
	}
	if err != nil {
		writeError(w, r, log.OpCheck, err)
		return
	}

	NewJSONResponse().Body(updateCheckDTO{
		CurrentVersion:  current,
		UpdateAvailable: release != nil,
		Release:         release,
	}).Write(w)
}

func (s *Server) handleUpdateInstall(w http.ResponseWriter, r *http.Request) {
	if s.updates == nil {
		unavailable(w, "updater")
		return
	}
	dl, err := s.updates.Install(r.Context())
	if err != nil {
		writeError(w, r, log.OpInstall, err)
		return
	}

	c := s.updates.Snapshot()
	NewJSONResponse().Status(http.StatusAccepted).Body(updateStatusDTO{
		CurrentVersion: s.updates.CurrentVersion(),
		State:          c.State.String(),
		Status:         c.Status(),
		Release:        &dl.Release,
		DownloadID:     dl.ID,
	}).Write(w)
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	if s.updates == nil {
		unavailable(w, "updater")
		return
	}
	c := s.updates.Snapshot()
	NewJSONResponse().Body(updateStatusDTO{
		CurrentVersion: s.updates.CurrentVersion(),
		State:          c.State.String(),
		Status:         c.Status(),
		Release:        c.Release,
	}).Write(w)
}

// ---- export ----

// handleExportSheets exports synchronously when an exporter is wired and
// queues the export for the worker otherwise.
func (s *Server) handleExportSheets(w http.ResponseWriter, r *http.Request) {
	userID := identitySubject(r)

	switch {
	case s.exporter != nil:
		n, err := s.exporter.Export(r.Context(), userID)
		if err != nil {
			writeError(w, r, log.OpExport, err)
			return
		}
		NewJSONResponse().Body(exportDTO{Status: "exported", Rows: n}).Write(w)
	case s.queue != nil:
		if err := s.queue.PublishBackupRequest(r.Context(), userID, amqp.OpExport); err != nil {
			logFor(r).ErrorContext(r.Context(), "Failed to queue export",
				"user_id", userID,
				"error", err)
			ErrorResponse(http.StatusServiceUnavailable, "export queue unavailable").Write(w)
			return
		}
		NewJSONResponse().Status(http.StatusAccepted).Body(exportDTO{Status: "queued"}).Write(w)
	default:
		unavailable(w, "export")
	}
}

func identitySubject(r *http.Request) string {
	subject, err := identity.Subject(r.Context(), identity.ContextProvider{})
	if err != nil {
		return identity.AnonymousSubject
	}
	return subject
}
