package web

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/tabledock/internal/core"
)

// multipartMemory is how much of a multipart form is held in memory before
// spilling to temporary files.
const multipartMemory = 32 << 20

// handleCreateUpload stores a multipart "file" field and sniffs it. The
// optional "encoding" field names the file's text encoding.
func (s *Server) handleCreateUpload(w http.ResponseWriter, r *http.Request) {
	// Room for the multipart envelope around a file of the maximum size.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Import.MaxFileSize+1<<20)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			s.respondError(w, r, fmt.Errorf("%w (%d bytes)", core.ErrFileTooLarge, s.cfg.Import.MaxFileSize))
			return
		}
		badRequest(w, "expected a multipart form with a file field")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		badRequest(w, "no file provided")
		return
	}
	defer file.Close()

	up, err := s.service.CreateUpload(r.Context(), header.Filename, file, r.FormValue("encoding"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, up)
}

func (s *Server) handleListUploads(w http.ResponseWriter, r *http.Request) {
	uploads, err := s.service.ListUploads(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"uploads": uploads})
}

func (s *Server) handleGetUpload(w http.ResponseWriter, r *http.Request) {
	up, err := s.service.GetUpload(r.Context(), chi.URLParam(r, "uploadID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, up)
}
