package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/UkralStul/crewfeed-service/internal/apperr"
	"github.com/UkralStul/crewfeed-service/internal/storage"

	"github.com/rs/zerolog/log"
)

const maxPageSize = 100

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Unable to write response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperr.CodeOf(err)
	message := err.Error()
	if code == apperr.CodeInternal {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("An error occurred when handling request.")
		message = "internal error"
	}
	writeJSON(w, apperr.HTTPStatus(code), map[string]errorBody{
		"error": {Code: code, Message: message},
	})
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.InvalidInput("malformed request body", err)
	}
	return nil
}

func intParam(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperr.InvalidInput("invalid "+name, err)
	}
	return n, nil
}

// pageArgs reads ?limit and ?cursor. The limit is capped at maxPageSize.
func pageArgs(r *http.Request, defaultLimit int) (storage.PaginationArgs, error) {
	limit, err := intParam(r, "limit", defaultLimit)
	if err != nil {
		return storage.PaginationArgs{}, err
	}
	if limit == 0 {
		return storage.PaginationArgs{}, apperr.InvalidInput("limit must be positive", nil)
	}
	args := storage.PaginationArgs{Limit: min(limit, maxPageSize)}
	if c := r.URL.Query().Get("cursor"); c != "" {
		args.Cursor = &c
	}
	return args, nil
}
