package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/tjfontaine/formflow/internal/domain"
	"github.com/tjfontaine/formflow/internal/service"
	"github.com/tjfontaine/formflow/internal/taskstore"
)

const maxBodyBytes = 1 << 20

// ExtractionRequest is the body of POST /v1/form-extraction.
type ExtractionRequest struct {
	Utterance   string `json:"utterance" validate:"required,min=1,max=10000"`
	FormCode    string `json:"form_code" validate:"required,min=1,max=50"`
	AsyncMode   bool   `json:"async_mode"`
	CallbackURL string `json:"callback_url" validate:"omitempty,http_url,max=2048"`
}

// SyncResponse is returned for a successful synchronous extraction.
type SyncResponse struct {
	Status   domain.Status `json:"status"`
	FormCode string        `json:"form_code"`
	Result   domain.Record `json:"result"`
}

// AsyncResponse acknowledges a queued task.
type AsyncResponse struct {
	TaskID    string           `json:"task_id"`
	Status    taskstore.Status `json:"status"`
	ExpiresAt time.Time        `json:"expires_at"`
}

// TaskError describes why a task failed.
type TaskError struct {
	ErrorCode  domain.Kind   `json:"error_code"`
	LegacyCode string        `json:"legacy_code"`
	Message    string        `json:"message"`
	Reason     domain.Reason `json:"reason,omitempty"`
	Field      string        `json:"field,omitempty"`
}

// TaskStatus is returned by GET /v1/form-extraction/{task_id}.
type TaskStatus struct {
	TaskID    string           `json:"task_id"`
	FormCode  string           `json:"form_code"`
	Status    taskstore.Status `json:"status"`
	Result    domain.Record    `json:"result,omitempty"`
	Error     *TaskError       `json:"error,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
	ExpiresAt time.Time        `json:"expires_at"`
}

// CodesResponse lists the supported form codes.
type CodesResponse struct {
	SupportedFormCodes []string `json:"supported_form_codes"`
	Count              int      `json:"count"`
}

type handlers struct {
	svc      *service.Service
	async    *service.Async
	validate *validator.Validate
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *handlers) extract(w http.ResponseWriter, r *http.Request) {
	var req ExtractionRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		badRequest(w, r, fmt.Sprintf("invalid JSON body: %v", err))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeDomainError(w, r, domain.InvalidRequest("%s", validationDetail(err)).WithField(firstInvalidField(err)))
		return
	}

	ctx := r.Context()
	AddLogField(ctx, "form_code", req.FormCode)

	if req.AsyncMode {
		h.submit(w, r, req)
		return
	}

	res := h.svc.Execute(ctx, req.Utterance, req.FormCode)
	if !res.OK() {
		writeDomainError(w, r, res.Err())
		return
	}
	writeJSON(w, http.StatusOK, SyncResponse{Status: res.Status, FormCode: req.FormCode, Result: res.Record})
}

func (h *handlers) submit(w http.ResponseWriter, r *http.Request, req ExtractionRequest) {
	if h.async == nil {
		serviceUnavailable(w, r, "asynchronous extraction is not enabled")
		return
	}

	task, err := h.async.Submit(r.Context(), service.SubmitRequest{
		Utterance:   req.Utterance,
		FormID:      req.FormCode,
		CallbackURL: req.CallbackURL,
	})
	if err != nil {
		var derr *domain.Error
		if errors.As(err, &derr) {
			writeDomainError(w, r, derr)
			return
		}
		if errors.Is(err, service.ErrAsyncClosed) {
			serviceUnavailable(w, r, err.Error())
			return
		}
		internalError(w, r, err)
		return
	}

	AddLogField(r.Context(), "task_id", task.ID)
	w.Header().Set("Location", "/v1/form-extraction/"+task.ID)
	writeJSON(w, http.StatusAccepted, AsyncResponse{TaskID: task.ID, Status: task.Status, ExpiresAt: task.ExpiresAt})
}

func (h *handlers) taskStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "task_id")
	if _, err := uuid.Parse(id); err != nil {
		writeDomainError(w, r, domain.InvalidRequest("invalid task ID format").WithField("task_id"))
		return
	}
	if h.async == nil {
		notFound(w, r, "task not found")
		return
	}

	task, err := h.async.Get(r.Context(), id)
	if errors.Is(err, taskstore.ErrNotFound) {
		notFound(w, r, "task not found")
		return
	}
	if err != nil {
		internalError(w, r, err)
		return
	}

	AddLogField(r.Context(), "task_status", string(task.Status))
	writeJSON(w, http.StatusOK, toTaskStatus(task))
}

func toTaskStatus(task *taskstore.Task) TaskStatus {
	out := TaskStatus{
		TaskID:    task.ID,
		FormCode:  task.FormID,
		Status:    task.Status,
		CreatedAt: task.CreatedAt,
		UpdatedAt: task.UpdatedAt,
		ExpiresAt: task.ExpiresAt,
	}
	if res := task.Result; res != nil {
		if res.OK() {
			out.Result = res.Record
		} else {
			out.Error = &TaskError{
				ErrorCode:  res.ErrorCode,
				LegacyCode: res.Err().LegacyCode(),
				Message:    res.Message,
				Reason:     res.Reason,
				Field:      res.Field,
			}
		}
	}
	return out
}

func (h *handlers) codes(w http.ResponseWriter, r *http.Request) {
	ids := h.svc.Forms()
	writeJSON(w, http.StatusOK, CodesResponse{SupportedFormCodes: ids, Count: len(ids)})
}

func (h *handlers) formSchema(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "form_code")
	AddLogField(r.Context(), "form_code", code)

	s, err := h.svc.Schema(code)
	if errors.Is(err, service.ErrNoSchema) {
		notFound(w, r, err.Error())
		return
	}
	if err != nil {
		writeDomainError(w, r, domain.AsError(err))
		return
	}
	w.Header().Set("Content-Type", "application/schema+json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(s.JSONSchema())
}

func healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
