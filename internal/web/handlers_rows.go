package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/tabledock/internal/core"
)

type addRowsRequest struct {
	Rows []core.RowInput `json:"rows"`
}

type putRowRequest struct {
	Data []string `json:"data"`
}

// handleSearchRows pages through a dataset's rows; ?q= filters by text.
func (s *Server) handleSearchRows(w http.ResponseWriter, r *http.Request) {
	page, err := s.service.SearchRows(r.Context(),
		chi.URLParam(r, "slug"),
		r.URL.Query().Get("q"),
		intParam(r, "offset", 0),
		intParam(r, "limit", 0),
	)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleGetRow(w http.ResponseWriter, r *http.Request) {
	row, err := s.service.GetRow(r.Context(), chi.URLParam(r, "slug"), chi.URLParam(r, "externalID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// handlePutRow adds or replaces the row with the external id in the path.
func (s *Server) handlePutRow(w http.ResponseWriter, r *http.Request) {
	var req putRowRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	row, err := s.service.AddRow(r.Context(), chi.URLParam(r, "slug"), core.RowInput{
		ExternalID: chi.URLParam(r, "externalID"),
		Data:       req.Data,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (s *Server) handleAddRows(w http.ResponseWriter, r *http.Request) {
	var req addRowsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	rows, err := s.service.AddManyRows(r.Context(), chi.URLParam(r, "slug"), req.Rows)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"rows": rows})
}

func (s *Server) handleDeleteRow(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteRow(r.Context(), chi.URLParam(r, "slug"), chi.URLParam(r, "externalID")); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteAllRows(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteAllRows(r.Context(), chi.URLParam(r, "slug")); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
