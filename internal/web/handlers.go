package web

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/JonMunkholm/ledger/internal/core"
	"github.com/JonMunkholm/ledger/internal/logging"
	"github.com/JonMunkholm/ledger/internal/storage"
)

// multipartOverhead is the allowance on top of UPLOAD_MAX_FILE_SIZE for
// multipart boundaries and the other form fields.
const multipartOverhead = 1 << 20

// maxFormMemory is how much of a multipart body is buffered in memory; the
// rest spills to temp files.
const maxFormMemory = 8 << 20

// upload is a parsed import request.
type upload struct {
	name           string
	content        []byte
	accountID      string
	allowDuplicate bool
}

// readUpload parses the multipart form and reads the statement file fully.
// The whole file is needed to hash it before anything is committed.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (upload, int, error) {
	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return upload{}, http.StatusRequestEntityTooLarge, err
		}
		return upload{}, http.StatusBadRequest, errNoFile
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		return upload{}, http.StatusBadRequest, errNoFile
	}
	defer file.Close()

	if header.Size > maxSize {
		return upload{}, http.StatusRequestEntityTooLarge, &http.MaxBytesError{Limit: maxSize}
	}
	content, err := io.ReadAll(io.LimitReader(file, maxSize+1))
	if err != nil {
		return upload{}, http.StatusBadRequest, err
	}
	if int64(len(content)) > maxSize {
		return upload{}, http.StatusRequestEntityTooLarge, &http.MaxBytesError{Limit: maxSize}
	}

	allowDup := false
	if v := r.FormValue("allow_duplicate"); v != "" {
		if allowDup, err = strconv.ParseBool(v); err != nil {
			return upload{}, http.StatusBadRequest, errors.New("allow_duplicate must be true or false")
		}
	}

	return upload{
		name:           header.Filename,
		content:        content,
		accountID:      r.FormValue("account_id"),
		allowDuplicate: allowDup,
	}, 0, nil
}

// handleCreateImport imports one uploaded statement in a single unit of work.
//
//	POST /api/imports  (multipart: file, account_id, allow_duplicate)
//
// Responds 201 with the ImportResult.
func (s *Server) handleCreateImport(w http.ResponseWriter, r *http.Request) {
	up, status, err := s.readUpload(w, r)
	if err != nil {
		respondError(w, r, err, status)
		return
	}
	if up.accountID == "" {
		respondError(w, r, errors.New("account_id is required"), http.StatusBadRequest)
		return
	}

	if err := s.limiter.Acquire(r.Context()); err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	defer s.limiter.Release()

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Import.Timeout)
	defer cancel()

	if !up.allowDuplicate {
		if err := core.CheckDuplicate(ctx, s.ledger, up.content); err != nil {
			respondError(w, r, err, statusFor(err))
			return
		}
	}

	result, err := s.importer.Import(ctx, up.name, up.content, up.accountID)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	logging.FromContext(r.Context()).Info("import committed",
		"import_id", result.ImportID,
		"source", result.SourceName,
		"rows", result.Rows,
	)
	writeJSON(w, http.StatusCreated, result)
}

// handlePreviewImport runs header resolution and normalization without writing.
//
//	POST /api/imports/preview  (multipart: file)
func (s *Server) handlePreviewImport(w http.ResponseWriter, r *http.Request) {
	up, status, err := s.readUpload(w, r)
	if err != nil {
		respondError(w, r, err, status)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Import.Timeout)
	defer cancel()

	preview, err := s.importer.Preview(ctx, up.content)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

// handleListImports lists recent imports, or the imports of one content hash.
//
//	GET /api/imports?limit=N
//	GET /api/imports?hash=H
func (s *Server) handleListImports(w http.ResponseWriter, r *http.Request) {
	var (
		imports []core.ImportRecord
		err     error
	)
	if hash := r.URL.Query().Get("hash"); hash != "" {
		imports, err = s.ledger.FindImportsByHash(r.Context(), hash)
	} else {
		imports, err = s.ledger.ListImports(r.Context(), parseIntParam(r, "limit", 50))
	}
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	if imports == nil {
		imports = []core.ImportRecord{}
	}
	writeJSON(w, http.StatusOK, imports)
}

func (s *Server) handleGetImport(w http.ResponseWriter, r *http.Request) {
	id, ok := parseImportID(w, r)
	if !ok {
		return
	}

	rec, err := s.ledger.GetImport(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		respondError(w, r, errors.New("import not found"), http.StatusNotFound)
		return
	}
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	id, ok := parseImportID(w, r)
	if !ok {
		return
	}

	if _, err := s.ledger.GetImport(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, r, errors.New("import not found"), http.StatusNotFound)
			return
		}
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	txns, err := s.ledger.ListTransactions(r.Context(), id)
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	if txns == nil {
		txns = []storage.StoredTransaction{}
	}
	writeJSON(w, http.StatusOK, txns)
}

// handleImportStatus reports import slot usage.
func (s *Server) handleImportStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.limiter.Status())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.Ping(r.Context()); err != nil {
		respondError(w, r, err, http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// parseIntParam parses a positive integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}

func parseImportID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "importID"))
	if err != nil {
		respondError(w, r, errors.New("invalid import id"), http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}
