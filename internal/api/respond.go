package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/quillsociety/auditions/internal/middleware"
	"github.com/quillsociety/auditions/internal/services"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeCSV(w http.ResponseWriter, filename string, data []byte) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	_, _ = w.Write(data)
}

func statusFor(code services.ErrorCode) int {
	switch code {
	case services.ErrorInvalid:
		return http.StatusBadRequest
	case services.ErrorUnauthorized:
		return http.StatusUnauthorized
	case services.ErrorForbidden:
		return http.StatusForbidden
	case services.ErrorNotFound:
		return http.StatusNotFound
	case services.ErrorConflict:
		return http.StatusConflict
	case services.ErrorTooManyRequests:
		return http.StatusTooManyRequests
	case services.ErrorUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeError maps service errors to statuses. Anything unclassified is a
// 500 with a generic message; the cause is logged.
func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if se, ok := services.AsServiceError(err); ok {
		status := statusFor(se.Code)
		if status >= 500 {
			rt.logger.Error("request failed", "path", r.URL.Path, "code", se.Code, "error", err)
			if se.Err != nil {
				rt.logger.Debug("request failure cause", "cause", se.Err)
			}
		}
		writeJSON(w, status, map[string]string{"error": se.Message, "code": string(se.Code)})
		return
	}
	rt.logger.Error("request failed", "path", r.URL.Path, "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

// decode reads a JSON body into v and runs struct validation on it.
func (rt *Router) decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return services.NewInvalidError("invalid json")
	}
	if err := rt.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return services.NewInvalidError(fmt.Sprintf("%s is %s", verrs[0].Field(), verrs[0].Tag()))
		}
		return services.NewInvalidError("invalid request")
	}
	return nil
}

// caller returns the authenticated caller or writes 401.
func (rt *Router) caller(w http.ResponseWriter, r *http.Request) (services.Caller, bool) {
	c, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		rt.writeError(w, r, services.NewUnauthorizedError("unauthorized"))
		return services.Caller{}, false
	}
	return c, true
}
