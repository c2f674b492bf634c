package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-compliance-workbooks/internal/platform/logger"
	"github.com/pesio-ai/be-compliance-workbooks/internal/platform/middleware"
	"github.com/pesio-ai/be-compliance-workbooks/internal/repository"
	"github.com/pesio-ai/be-compliance-workbooks/internal/service"
)

type identity struct {
	user, company string
	privileged    bool
}

var (
	owner = identity{user: "u1", company: "c1"}
	admin = identity{user: "admin", privileged: true}
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	stores := service.MemoryStores(repository.NewMemoryStore())
	log := logger.Nop()
	h := NewHTTPHandler(
		service.NewWizardService(stores, nil, log),
		service.NewBundleService(stores, nil, log),
		log,
	)
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, who *identity, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if who != nil {
		req.Header.Set(middleware.HeaderUserID, who.user)
		req.Header.Set(middleware.HeaderTenantID, who.company)
		if who.privileged {
			req.Header.Set(middleware.HeaderPrivileged, "true")
		}
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func TestHealthAndCatalogArePublic(t *testing.T) {
	srv := newTestServer(t)

	resp := do(t, srv, nil, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, srv, nil, http.MethodGet, "/api/v1/catalog/sections", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[struct {
		Sections []catalogSectionResponse `json:"sections"`
	}](t, resp)
	require.NotEmpty(t, body.Sections)
	for _, s := range body.Sections {
		assert.NotEmpty(t, s.ID)
		assert.Positive(t, s.Rows)
	}
}

func TestMissingIdentityIsUnauthorized(t *testing.T) {
	srv := newTestServer(t)
	resp := do(t, srv, nil, http.MethodGet, "/api/v1/workbooks", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWorkbookLifecycle(t *testing.T) {
	srv := newTestServer(t)

	resp := do(t, srv, &owner, http.MethodPost, "/api/v1/workbooks", `{"kind":"quality_assurance"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	wb := decode[workbookResponse](t, resp)
	assert.Equal(t, "quality_assurance", wb.Kind)
	assert.Equal(t, "c1", wb.CompanyID)
	assert.Equal(t, "draft", wb.Status)

	base := fmt.Sprintf("/api/v1/workbooks/%d", wb.ID)

	resp = do(t, srv, &owner, http.MethodGet, base+"/steps/3", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	step := decode[stepResponse](t, resp)
	assert.Equal(t, 3, step.Step)
	assert.Equal(t, 13, step.Steps)
	assert.False(t, step.Final)

	resp = do(t, srv, &owner, http.MethodPost, base+"/steps/3?nav=next", `{"HighLevelSummary":"fine"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	saved := decode[struct {
		Workbook  workbookResponse `json:"workbook"`
		NextStep  int              `json:"nextStep"`
		Completed bool             `json:"completed"`
	}](t, resp)
	assert.Equal(t, 4, saved.NextStep)
	assert.False(t, saved.Completed)

	resp = do(t, srv, &owner, http.MethodGet, base, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	shown := decode[map[string]json.RawMessage](t, resp)
	assert.Contains(t, shown, "overview")
	assert.Contains(t, shown, "steps")

	resp = do(t, srv, &owner, http.MethodGet, "/api/v1/workbooks?kind=quality_assurance", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[struct {
		Workbooks []workbookResponse `json:"workbooks"`
		Total     int64              `json:"total"`
	}](t, resp)
	assert.EqualValues(t, 1, list.Total)
	require.Len(t, list.Workbooks, 1)
	assert.Equal(t, wb.ID, list.Workbooks[0].ID)

	resp = do(t, srv, &owner, http.MethodGet, base+"/export", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, xlsxContentType, resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), fmt.Sprintf("quality_assurance-%d.xlsx", wb.ID))

	resp = do(t, srv, &owner, http.MethodDelete, base, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, srv, &owner, http.MethodGet, base, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSaveStepErrors(t *testing.T) {
	srv := newTestServer(t)
	resp := do(t, srv, &owner, http.MethodPost, "/api/v1/workbooks", `{"kind":"quality_assurance"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	wb := decode[workbookResponse](t, resp)
	base := fmt.Sprintf("/api/v1/workbooks/%d", wb.ID)

	resp = do(t, srv, &owner, http.MethodPost, base+"/steps/4?nav=next", `{"Email":"not-an-email"}`)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	env := decode[errorEnvelope](t, resp)
	assert.Equal(t, "INVALID_INPUT", string(env.Error.Code))
	assert.Equal(t, "Email", env.Error.Field)

	resp = do(t, srv, &owner, http.MethodGet, base+"/steps/99", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, srv, &owner, http.MethodGet, base+"/steps/abc", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, srv, &owner, http.MethodGet, "/api/v1/workbooks/xyz", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, srv, &owner, http.MethodPost, "/api/v1/workbooks", `{"kind":"tax_return"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	other := identity{user: "u2", company: "c2"}
	resp = do(t, srv, &other, http.MethodGet, base, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "other companies cannot see the workbook")
}

func TestSubmissionFlow(t *testing.T) {
	srv := newTestServer(t)

	resp := do(t, srv, &owner, http.MethodPost, "/api/v1/submissions", "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	sub := decode[submissionResponse](t, resp)
	require.Len(t, sub.Workbooks, 3)
	assert.Equal(t, "draft", sub.Status)

	resp = do(t, srv, &owner, http.MethodPost, "/api/v1/submissions", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, "an active bundle is reused")
	again := decode[submissionResponse](t, resp)
	assert.Equal(t, sub.ID, again.ID)

	base := "/api/v1/submissions/" + sub.ID

	resp = do(t, srv, &owner, http.MethodPost, base+"/submit", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "incomplete bundles cannot be submitted")

	resp = do(t, srv, &owner, http.MethodPost, base+"/decision", `{"decision":"approve"}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = do(t, srv, &admin, http.MethodPost, base+"/decision", `{"decision":"approve"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "only submitted bundles can be decided")

	resp = do(t, srv, &owner, http.MethodGet, "/api/v1/submissions?status=draft", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[struct {
		Submissions []submissionResponse `json:"submissions"`
		Total       int64                `json:"total"`
	}](t, resp)
	assert.EqualValues(t, 1, list.Total)

	resp = do(t, srv, &owner, http.MethodGet, "/api/v1/submissions?status=bogus", "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = do(t, srv, &owner, http.MethodGet, base+"/audit", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	audit := decode[struct {
		Entries []auditEntryResponse `json:"entries"`
	}](t, resp)
	require.NotEmpty(t, audit.Entries)
	assert.Equal(t, "started", audit.Entries[0].Action)

	resp = do(t, srv, &owner, http.MethodDelete, base, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, srv, &owner, http.MethodGet, base, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, srv, &owner, http.MethodGet, "/api/v1/submissions/not-a-uuid", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestErrorsWithholdInternalDetail(t *testing.T) {
	h := NewHTTPHandler(nil, nil, logger.Nop())
	rec := httptest.NewRecorder()
	h.writeError(rec, fmt.Errorf("dial tcp: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.False(t, strings.Contains(rec.Body.String(), "connection refused"))
}
