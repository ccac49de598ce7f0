package adapthttp

import (
	"errors"
	"io"
	"net/http"

	"journal/internal/app"
)

// multipartOverhead is the slack allowed on top of the file size cap for
// multipart boundaries and headers.
const multipartOverhead = 1 << 20

var errUploadFailed = errors.New("failed to upload file")

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	caller := clientIP(r)
	a, err := s.guard.Admit(r.Context(), s.guard.UploadOperation(), caller, sessionToken(r))
	switch {
	case errors.Is(err, app.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, err)
		return
	case errors.Is(err, app.ErrThrottled):
		setQuotaHeaders(w, a.Quota, s.clock.Now())
		writeThrottled(w, err, a.Quota)
		return
	case err != nil:
		s.logger.Error(err, "upload admission failed", "caller", caller)
		writeError(w, http.StatusInternalServerError, errInternal)
		return
	}
	setQuotaHeaders(w, a.Quota, s.clock.Now())

	maxBytes := s.uploads.MaxBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusBadRequest, app.ErrFileTooLarge)
			return
		}
		writeError(w, http.StatusBadRequest, app.ErrNoFile)
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck

	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, app.ErrNoFile)
		return
	}
	defer file.Close() //nolint:errcheck

	if hdr.Size > maxBytes {
		writeError(w, http.StatusBadRequest, app.ErrFileTooLarge)
		return
	}
	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, app.ErrNoFile)
		return
	}

	media, err := s.uploads.Store(r.Context(), hdr.Filename, hdr.Header.Get("Content-Type"), data)
	switch {
	case errors.Is(err, app.ErrNoFile), errors.Is(err, app.ErrInvalidFileType), errors.Is(err, app.ErrFileTooLarge):
		writeError(w, http.StatusBadRequest, err)
		return
	case err != nil:
		s.logger.Error(err, "store upload", "userID", a.User.ID)
		writeError(w, http.StatusInternalServerError, errUploadFailed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"url":      media.URL,
		"filename": media.Filename,
		"type":     media.Type,
	})
}
