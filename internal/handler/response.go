package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	apperrors "github.com/podpairer/server/internal/errors"
	"github.com/podpairer/server/internal/httputil"
	"github.com/podpairer/server/internal/util"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

// writeError renders err and logs anything that is not a client error.
func writeError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	if httputil.StatusFromCode(apperrors.GetCode(err)) >= http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg(msg)
	}
	httputil.WriteError(w, err)
}

// uuidParam returns the named path parameter, or writes a 400 and returns
// false when it is not a UUID.
func uuidParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	value := chi.URLParam(r, name)
	if !util.IsValidUUID(value) {
		httputil.WriteError(w, apperrors.InvalidInput(name, "must be a UUID"))
		return "", false
	}
	return value, true
}
