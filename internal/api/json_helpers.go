package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"coursecast/internal/apperr"
	"coursecast/internal/storage"
)

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, apperr.Status(err), map[string]string{"message": apperr.UserMessage(err)})
}

func decodeJSON(r *http.Request, dest interface{}) error {
	if r.Body == nil {
		return apperr.New(apperr.BadRequest, "request body is required")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return apperr.Wrapf(apperr.BadRequest, err, "invalid request body")
	}
	return nil
}

// pageParams reads page and size from the query string. Out-of-range values
// are clamped by the storage layer, non-numeric values are rejected.
func pageParams(r *http.Request) (int, int, error) {
	page := 1
	size := storage.DefaultPageSize
	if raw := r.URL.Query().Get("page"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return 0, 0, apperr.New(apperr.BadRequest, "page must be an integer")
		}
		page = parsed
	}
	if raw := r.URL.Query().Get("size"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return 0, 0, apperr.New(apperr.BadRequest, "size must be an integer")
		}
		size = parsed
	}
	page, size = storage.NormalizePage(page, size)
	return page, size, nil
}
