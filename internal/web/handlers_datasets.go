package web

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/tabledock/internal/core"
)

type createDatasetRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type importRequest struct {
	UploadID string `json:"upload_id"`
	core.ImportOptions
}

type exportRequest struct {
	Filename string `json:"filename"`
}

func (s *Server) handleCreateDataset(w http.ResponseWriter, r *http.Request) {
	var req createDatasetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		badRequest(w, "name is required")
		return
	}

	ds, err := s.service.CreateDataset(r.Context(), req.Name, req.Description)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ds)
}

// handleListDatasets lists every dataset, or with ?q= searches their names,
// descriptions and columns.
func (s *Server) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	var (
		datasets []core.Dataset
		err      error
	)
	if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" {
		datasets, err = s.service.SearchDatasets(r.Context(), q, intParam(r, "limit", 0))
	} else {
		datasets, err = s.service.ListDatasets(r.Context())
	}
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"datasets": datasets})
}

func (s *Server) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	ds, err := s.service.GetDataset(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

// handleDeleteDataset answers 202: index documents are purged in the
// background.
func (s *Server) handleDeleteDataset(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteDataset(r.Context(), chi.URLParam(r, "slug")); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if req.UploadID == "" {
		badRequest(w, "upload_id is required")
		return
	}

	task, err := s.service.ImportData(r.Context(), chi.URLParam(r, "slug"), req.UploadID, req.ImportOptions)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, task)
}

func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	var opts core.ImportOptions
	if err := decodeJSON(w, r, &opts); err != nil {
		badRequest(w, err.Error())
		return
	}

	task, err := s.service.ReindexData(r.Context(), chi.URLParam(r, "slug"), opts)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, task)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	task, err := s.service.ExportData(r.Context(), chi.URLParam(r, "slug"), req.Filename)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, task)
}
