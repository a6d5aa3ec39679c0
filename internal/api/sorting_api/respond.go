package sorting_api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/BearBump/SortBox/internal/models"
	"github.com/BearBump/SortBox/internal/services/catalog"
	"github.com/BearBump/SortBox/internal/services/wizard"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type errorBody struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// requestError is a malformed request caught before any service call.
type requestError struct {
	msg    string
	fields map[string]string
}

func (e *requestError) Error() string { return e.msg }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, code, msg string, details any) {
	writeJSON(w, status, errorBody{Error: apiError{Code: code, Message: msg, Details: details}})
}

// fail maps a service error onto a status code. Unknown errors are logged and hidden.
func (a *SortingAPI) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		reqErr  *requestError
		valErr  *models.ValidationError
		missing *wizard.MissingPrerequisiteError
	)
	switch {
	case errors.As(err, &reqErr):
		var details any
		if len(reqErr.fields) > 0 {
			details = reqErr.fields
		}
		writeErr(w, http.StatusBadRequest, "validation", reqErr.msg, details)
	case errors.As(err, &valErr):
		writeErr(w, http.StatusBadRequest, "validation", "validation failed",
			map[string]string{valErr.Field: valErr.Reason})
	case errors.Is(err, models.ErrValidation):
		writeErr(w, http.StatusBadRequest, "validation", err.Error(), nil)
	case errors.As(err, &missing):
		// 303 to the draft view, the client re-reads next_step from there.
		id := chi.URLParam(r, "id")
		w.Header().Set("Location", fmt.Sprintf("/wizard/%s?step=%s", id, missing.Step))
		writeErr(w, http.StatusSeeOther, "missing_prerequisite", "Please complete previous steps first.",
			map[string]string{"step": string(missing.Step)})
	case errors.Is(err, catalog.ErrConfirmationRequired):
		writeErr(w, http.StatusConflict, "confirmation_required", err.Error(), nil)
	case errors.Is(err, models.ErrNotFound):
		writeErr(w, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, models.ErrReferenced):
		writeErr(w, http.StatusConflict, "referenced", err.Error(), nil)
	case errors.Is(err, models.ErrConflict):
		writeErr(w, http.StatusConflict, "conflict", err.Error(), nil)
	default:
		a.log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		writeErr(w, http.StatusInternalServerError, "internal", "internal error", nil)
	}
}

// decodeBody reads a JSON body into dst and runs struct validation on it.
// Unknown fields are rejected.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return &requestError{msg: "request body is empty"}
		}
		return &requestError{msg: "invalid json: " + err.Error()}
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return &requestError{msg: "validation failed", fields: fieldErrors(verrs)}
		}
		return &requestError{msg: err.Error()}
	}
	return nil
}

func fieldErrors(verrs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		name := fe.Field()
		if name == "" {
			name = fe.StructField()
		}
		out[name] = fieldMessage(fe)
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "hexcolor":
		return "must be #RRGGBB"
	}
	return "is invalid"
}

func idParam(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &requestError{msg: fmt.Sprintf("invalid %s %q", name, raw)}
	}
	return id, nil
}

// queryInt64 returns 0 when the parameter is absent.
func queryInt64(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, &requestError{msg: fmt.Sprintf("invalid %s %q", name, raw)}
	}
	return v, nil
}

func queryInt(r *http.Request, name string) (int, error) {
	v, err := queryInt64(r, name)
	return int(v), err
}

func queryBool(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, &requestError{msg: fmt.Sprintf("invalid %s %q", name, raw)}
	}
	return v, nil
}
