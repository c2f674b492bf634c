package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pesio-ai/be-compliance-workbooks/internal/platform/errors"
	"github.com/pesio-ai/be-compliance-workbooks/internal/platform/logger"
	"github.com/pesio-ai/be-compliance-workbooks/internal/platform/middleware"
	"github.com/pesio-ai/be-compliance-workbooks/internal/repository"
	"github.com/pesio-ai/be-compliance-workbooks/internal/service"
	"github.com/pesio-ai/be-compliance-workbooks/internal/workbook"
)

// maxBodyBytes caps posted step payloads.
const maxBodyBytes = 10 << 20

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// HTTPHandler serves the JSON API.
type HTTPHandler struct {
	wizard  *service.WizardService
	bundles *service.BundleService
	log     *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(wizard *service.WizardService, bundles *service.BundleService, log *logger.Logger) *HTTPHandler {
	return &HTTPHandler{
		wizard:  wizard,
		bundles: bundles,
		log:     log,
	}
}

// Routes builds the router. /health and the catalog are public; everything
// else needs the gateway identity headers.
func (h *HTTPHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/catalog/sections", h.ListCatalog)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Identity)

			r.Route("/workbooks", func(r chi.Router) {
				r.Post("/", h.StartWorkbook)
				r.Get("/", h.ListWorkbooks)
				r.Get("/{id}", h.ShowWorkbook)
				r.Delete("/{id}", h.DeleteWorkbook)
				r.Get("/{id}/steps/{step}", h.GetStep)
				r.Post("/{id}/steps/{step}", h.SaveStep)
				r.Get("/{id}/export", h.ExportWorkbook)
			})

			r.Route("/submissions", func(r chi.Router) {
				r.Post("/", h.StartSubmission)
				r.Get("/", h.ListSubmissions)
				r.Get("/{id}", h.GetSubmission)
				r.Delete("/{id}", h.DeleteSubmission)
				r.Post("/{id}/submit", h.SubmitSubmission)
				r.Post("/{id}/decision", h.DecideSubmission)
				r.Get("/{id}/audit", h.SubmissionAudit)
			})
		})
	})

	return r
}

// ── catalog ───────────────────────────────────────────────────────────────────

type catalogSectionResponse struct {
	ID     string `json:"id"`
	Column string `json:"column"`
	Parts  int    `json:"parts"`
	Rows   int    `json:"rows"`
}

// ListCatalog returns the seed catalog summary.
func (h *HTTPHandler) ListCatalog(w http.ResponseWriter, _ *http.Request) {
	ids := workbook.AllSections()
	out := make([]catalogSectionResponse, 0, len(ids))
	for _, id := range ids {
		sec, _ := workbook.Catalog(id)
		out = append(out, catalogSectionResponse{ID: string(id), Column: sec.Column, Parts: len(sec.Parts), Rows: sec.RowCount()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sections": out})
}

// ── workbooks ─────────────────────────────────────────────────────────────────

type workbookResponse struct {
	ID           int64     `json:"id"`
	UserID       string    `json:"userId"`
	CompanyID    string    `json:"companyId,omitempty"`
	Title        string    `json:"title"`
	Kind         string    `json:"kind"`
	Status       string    `json:"status"`
	Version      int       `json:"version"`
	SubmissionID string    `json:"submissionId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func toWorkbookResponse(wb *repository.Workbook) workbookResponse {
	return workbookResponse{
		ID:           wb.ID,
		UserID:       wb.UserID,
		CompanyID:    wb.CompanyID,
		Title:        wb.Title,
		Kind:         string(wb.Kind),
		Status:       string(wb.Status),
		Version:      wb.Version,
		SubmissionID: wb.SubmissionID,
		CreatedAt:    wb.CreatedAt,
		UpdatedAt:    wb.UpdatedAt,
	}
}

func toWorkbookResponses(list []*repository.Workbook) []workbookResponse {
	out := make([]workbookResponse, 0, len(list))
	for _, wb := range list {
		out = append(out, toWorkbookResponse(wb))
	}
	return out
}

type stepInfoResponse struct {
	Step     int    `json:"step"`
	Title    string `json:"title"`
	ReadOnly bool   `json:"readOnly"`
}

type stepResponse struct {
	Workbook workbookResponse `json:"workbook"`
	Step     int              `json:"step"`
	Steps    int              `json:"steps"`
	Title    string           `json:"title"`
	ReadOnly bool             `json:"readOnly"`
	Final    bool             `json:"final"`
	Section  any              `json:"section"`
	Derived  any              `json:"derived,omitempty"`
}

// StartWorkbook handles POST /workbooks.
func (h *HTTPHandler) StartWorkbook(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Kind      string `json:"kind"`
		CompanyID string `json:"companyId"`
	}
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	wb, err := h.wizard.StartWorkbook(r.Context(), &service.StartWorkbookRequest{Kind: req.Kind, CompanyID: req.CompanyID})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWorkbookResponse(wb))
}

// ListWorkbooks handles GET /workbooks.
func (h *HTTPHandler) ListWorkbooks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, offset := paging(r)
	list, total, err := h.wizard.ListWorkbooks(r.Context(), &service.ListWorkbooksRequest{
		CompanyID: q.Get("companyId"),
		Kind:      q.Get("kind"),
		Status:    q.Get("status"),
		Query:     q.Get("q"),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"workbooks": toWorkbookResponses(list),
		"total":     total,
	})
}

// ShowWorkbook handles GET /workbooks/{id}.
func (h *HTTPHandler) ShowWorkbook(w http.ResponseWriter, r *http.Request) {
	id, err := workbookID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	view, err := h.wizard.Show(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	steps := make([]stepInfoResponse, 0, len(view.Steps))
	for _, s := range view.Steps {
		steps = append(steps, stepInfoResponse{Step: s.Step, Title: s.Title, ReadOnly: s.ReadOnly})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"workbook": toWorkbookResponse(view.Workbook),
		"document": view.Document,
		"overview": view.Overview,
		"steps":    steps,
	})
}

// DeleteWorkbook handles DELETE /workbooks/{id}.
func (h *HTTPHandler) DeleteWorkbook(w http.ResponseWriter, r *http.Request) {
	id, err := workbookID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.wizard.DeleteWorkbook(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetStep handles GET /workbooks/{id}/steps/{step}.
func (h *HTTPHandler) GetStep(w http.ResponseWriter, r *http.Request) {
	id, err := workbookID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	step, err := stepNumber(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	res, err := h.wizard.GetStep(r.Context(), id, step)
	if err != nil {
		h.writeError(w, err)
		return
	}
	v := res.View
	writeJSON(w, http.StatusOK, stepResponse{
		Workbook: toWorkbookResponse(res.Workbook),
		Step:     v.Step,
		Steps:    v.Steps,
		Title:    v.Title,
		ReadOnly: v.ReadOnly,
		Final:    v.Final,
		Section:  v.Section,
		Derived:  v.Derived,
	})
}

// SaveStep handles POST /workbooks/{id}/steps/{step}?nav=. The body is the
// step's section.
func (h *HTTPHandler) SaveStep(w http.ResponseWriter, r *http.Request) {
	id, err := workbookID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	step, err := stepNumber(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, errors.InvalidInput("body", "request body too large or unreadable"))
		return
	}

	res, err := h.wizard.SaveStep(r.Context(), &service.SaveStepRequest{
		WorkbookID: id,
		Step:       step,
		Nav:        r.URL.Query().Get("nav"),
		Payload:    payload,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"workbook":  toWorkbookResponse(res.Workbook),
		"nextStep":  res.NextStep,
		"completed": res.Completed,
	})
}

// ExportWorkbook handles GET /workbooks/{id}/export.
func (h *HTTPHandler) ExportWorkbook(w http.ResponseWriter, r *http.Request) {
	id, err := workbookID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	file, err := h.wizard.Export(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+file.Name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(file.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(file.Data)
}

// ── submissions ───────────────────────────────────────────────────────────────

type submissionResponse struct {
	ID              string             `json:"id"`
	OwnerUserID     string             `json:"ownerUserId"`
	CompanyID       string             `json:"companyId,omitempty"`
	Status          string             `json:"status"`
	DecisionNote    *string            `json:"decisionNote,omitempty"`
	DecidedByUserID *string            `json:"decidedByUserId,omitempty"`
	DecidedAt       *time.Time         `json:"decidedAt,omitempty"`
	CreatedAt       time.Time          `json:"createdAt"`
	UpdatedAt       time.Time          `json:"updatedAt"`
	Workbooks       []workbookResponse `json:"workbooks,omitempty"`
}

func toSubmissionResponse(s *repository.Submission, workbooks []*repository.Workbook) submissionResponse {
	resp := submissionResponse{
		ID:              s.ID,
		OwnerUserID:     s.OwnerUserID,
		CompanyID:       s.CompanyID,
		Status:          string(s.Status),
		DecisionNote:    s.DecisionNote,
		DecidedByUserID: s.DecidedByUserID,
		DecidedAt:       s.DecidedAt,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
	if workbooks != nil {
		resp.Workbooks = toWorkbookResponses(workbooks)
	}
	return resp
}

type auditEntryResponse struct {
	ID           int64          `json:"id"`
	WorkbookID   *int64         `json:"workbookId,omitempty"`
	Action       string         `json:"action"`
	PerformedBy  string         `json:"performedBy"`
	PerformedAt  time.Time      `json:"performedAt"`
	StatusBefore *string        `json:"statusBefore,omitempty"`
	StatusAfter  *string        `json:"statusAfter,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// StartSubmission handles POST /submissions. An existing active bundle is
// returned with 200, a new one with 201.
func (h *HTTPHandler) StartSubmission(w http.ResponseWriter, r *http.Request) {
	view, created, err := h.bundles.StartSubmission(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	writeJSON(w, code, toSubmissionResponse(view.Submission, view.Workbooks))
}

// ListSubmissions handles GET /submissions.
func (h *HTTPHandler) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	limit, offset := paging(r)
	list, total, err := h.bundles.ListSubmissions(r.Context(), &service.ListSubmissionsRequest{
		Status:    r.URL.Query().Get("status"),
		CompanyID: r.URL.Query().Get("companyId"),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]submissionResponse, 0, len(list))
	for _, s := range list {
		out = append(out, toSubmissionResponse(s, nil))
	}
	writeJSON(w, http.StatusOK, map[string]any{"submissions": out, "total": total})
}

// GetSubmission handles GET /submissions/{id}.
func (h *HTTPHandler) GetSubmission(w http.ResponseWriter, r *http.Request) {
	view, err := h.bundles.GetSubmission(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubmissionResponse(view.Submission, view.Workbooks))
}

// SubmitSubmission handles POST /submissions/{id}/submit.
func (h *HTTPHandler) SubmitSubmission(w http.ResponseWriter, r *http.Request) {
	view, err := h.bundles.Submit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubmissionResponse(view.Submission, view.Workbooks))
}

// DecideSubmission handles POST /submissions/{id}/decision.
func (h *HTTPHandler) DecideSubmission(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Decision string `json:"decision"`
		Note     string `json:"note"`
	}
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	view, err := h.bundles.Decide(r.Context(), &service.DecideRequest{
		ID:       chi.URLParam(r, "id"),
		Decision: req.Decision,
		Note:     req.Note,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubmissionResponse(view.Submission, view.Workbooks))
}

// DeleteSubmission handles DELETE /submissions/{id}.
func (h *HTTPHandler) DeleteSubmission(w http.ResponseWriter, r *http.Request) {
	if err := h.bundles.DeleteSubmission(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SubmissionAudit handles GET /submissions/{id}/audit.
func (h *HTTPHandler) SubmissionAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := h.bundles.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]auditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditEntryResponse{
			ID:           e.ID,
			WorkbookID:   e.WorkbookID,
			Action:       e.Action,
			PerformedBy:  e.PerformedBy,
			PerformedAt:  e.PerformedAt,
			StatusBefore: e.StatusBefore,
			StatusAfter:  e.StatusAfter,
			Metadata:     e.Metadata,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}

// ── helpers ───────────────────────────────────────────────────────────────────

func workbookID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.NotFound("workbook", raw)
	}
	return id, nil
}

func stepNumber(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "step")
	step, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.NotFound("step", raw)
	}
	return step, nil
}

func paging(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst); err != nil && err != io.EOF {
		return errors.InvalidInput("body", "Invalid request body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Code    errors.Code `json:"code"`
	Message string      `json:"message"`
	Field   string      `json:"field,omitempty"`
}

// writeError maps a service error to its status. Internal errors are
// logged and their detail withheld.
func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	body := errorBody{Code: errors.CodeOf(err), Message: err.Error()}
	var appErr *errors.Error
	if errors.As(err, &appErr) {
		body.Message, body.Field = appErr.Message, appErr.Field
	}
	code := errors.HTTPStatus(err)
	if code == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Request failed")
		body.Message = "internal server error"
	}
	writeJSON(w, code, map[string]errorBody{"error": body})
}
