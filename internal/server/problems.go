package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/moogar0880/problems"

	"github.com/tjfontaine/formflow/internal/domain"
)

const problemContentType = "application/problem+json"

// problem is an RFC 7807 document with formflow extension members.
type problem struct {
	*problems.Problem
	ErrorCode  domain.Kind   `json:"error_code,omitempty"`
	LegacyCode string        `json:"legacy_code,omitempty"`
	Reason     domain.Reason `json:"reason,omitempty"`
	Field      string        `json:"field,omitempty"`
	RequestID  string        `json:"request_id,omitempty"`
}

func writeProblem(w http.ResponseWriter, r *http.Request, p *problem) {
	p.Problem = p.Problem.WithInstance(r.URL.Path)
	p.RequestID = GetRequestID(r.Context())

	w.Header().Set("Content-Type", problemContentType)
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// writeDomainError maps a tagged error onto its HTTP status.
func writeDomainError(w http.ResponseWriter, r *http.Request, err *domain.Error) {
	AddLogField(r.Context(), "error_code", string(err.Kind))
	AddError(r.Context(), err)

	writeProblem(w, r, &problem{
		Problem: problems.NewStatusProblem(err.HTTPStatusCode()).
			WithType(string(err.Kind)).
			WithDetail(err.Message),
		ErrorCode:  err.Kind,
		LegacyCode: err.LegacyCode(),
		Reason:     err.Reason,
		Field:      err.Field,
	})
}

func badRequest(w http.ResponseWriter, r *http.Request, detail string) {
	writeDomainError(w, r, domain.InvalidRequest("%s", detail))
}

func notFound(w http.ResponseWriter, r *http.Request, detail string) {
	AddLogField(r.Context(), "error", detail)
	writeProblem(w, r, &problem{
		Problem: problems.NewStatusProblem(http.StatusNotFound).
			WithType("not_found").
			WithDetail(detail),
	})
}

func internalError(w http.ResponseWriter, r *http.Request, err error) {
	writeDomainError(w, r, domain.Internal(err))
}

func serviceUnavailable(w http.ResponseWriter, r *http.Request, detail string) {
	writeProblem(w, r, &problem{
		Problem: problems.NewStatusProblem(http.StatusServiceUnavailable).
			WithType("unavailable").
			WithDetail(detail),
	})
}

// validationDetail flattens validator errors into "field: rule" pairs.
func validationDetail(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		parts = append(parts, fmt.Sprintf("%s: failed %s", fe.Field(), rule))
	}
	return strings.Join(parts, "; ")
}

func firstInvalidField(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return verrs[0].Field()
	}
	return ""
}
