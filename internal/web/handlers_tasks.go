package web

import (
	"io"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/tabledock/internal/logging"
)

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.service.ListTasks(r.Context(), intParam(r, "limit", 0))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.service.GetTask(r.Context(), chi.URLParam(r, "taskID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// handleAbortTask requests an abort. The task stops at its next check, so
// the returned status is usually still STARTED.
func (s *Server) handleAbortTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.service.AbortTask(r.Context(), chi.URLParam(r, "taskID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, task)
}

// handleDownloadExport streams a finished export file.
func (s *Server) handleDownloadExport(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	f, err := s.service.OpenExport(name)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	if _, err := io.Copy(w, f); err != nil {
		logging.FromContext(r.Context()).Warn("export download interrupted", "file", name, "error", err)
	}
}
