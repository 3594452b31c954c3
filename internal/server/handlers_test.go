package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fiscion/fiscion/internal/models"
	"github.com/fiscion/fiscion/internal/report"
	"github.com/fiscion/fiscion/internal/repository"
	"github.com/fiscion/fiscion/internal/storage"
	"github.com/fiscion/fiscion/internal/webhook"
	"github.com/fiscion/fiscion/internal/worker"
)

type fakeInvoices struct {
	created []*models.Invoice
	byID    map[string]*models.Invoice
	byUser  map[string][]models.Invoice
	reviews map[string]models.DeductibleStatus
	failed  []string
}

func newFakeInvoices() *fakeInvoices {
	return &fakeInvoices{
		byID:    make(map[string]*models.Invoice),
		byUser:  make(map[string][]models.Invoice),
		reviews: make(map[string]models.DeductibleStatus),
	}
}

func (f *fakeInvoices) Create(_ context.Context, invoice *models.Invoice) error {
	f.created = append(f.created, invoice)
	f.byID[invoice.ID] = invoice
	return nil
}

func (f *fakeInvoices) GetByID(_ context.Context, id string) (*models.Invoice, error) {
	inv, ok := f.byID[id]
	if !ok {
		return nil, fmt.Errorf("invoice %q: %w", id, repository.ErrNotFound)
	}
	return inv, nil
}

func (f *fakeInvoices) ListByUser(_ context.Context, userID string) ([]models.Invoice, error) {
	return f.byUser[userID], nil
}

func (f *fakeInvoices) UpdateReview(_ context.Context, id string, deductible models.DeductibleStatus, _ bool) error {
	if _, ok := f.byID[id]; !ok {
		return fmt.Errorf("invoice %q: %w", id, repository.ErrNotFound)
	}
	f.reviews[id] = deductible
	return nil
}

func (f *fakeInvoices) MarkFailed(_ context.Context, id string) error {
	f.failed = append(f.failed, id)
	return nil
}

type fakeCountries struct {
	rulesets map[string]*models.CountryRuleset
	updated  []*models.CountryRuleset
}

func (f *fakeCountries) GetByCode(_ context.Context, code string) (*models.CountryRuleset, error) {
	rs, ok := f.rulesets[code]
	if !ok {
		return nil, fmt.Errorf("country %q: %w", code, models.ErrUnknownCountry)
	}
	return rs, nil
}

func (f *fakeCountries) List(_ context.Context) ([]models.CountryRuleset, error) {
	var out []models.CountryRuleset
	for _, rs := range f.rulesets {
		out = append(out, *rs)
	}
	return out, nil
}

func (f *fakeCountries) Update(_ context.Context, ruleset *models.CountryRuleset) error {
	if _, ok := f.rulesets[ruleset.Code]; !ok {
		return fmt.Errorf("country %q: %w", ruleset.Code, models.ErrUnknownCountry)
	}
	f.rulesets[ruleset.Code] = ruleset
	f.updated = append(f.updated, ruleset)
	return nil
}

type fakeUsers struct {
	users map[string]*models.User
}

func (f *fakeUsers) Create(_ context.Context, user *models.User) error {
	f.users[user.ID] = user
	return nil
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, fmt.Errorf("user %q: %w", id, repository.ErrNotFound)
	}
	return u, nil
}

func (f *fakeUsers) UpdatePlan(context.Context, string, string, int, string) error {
	return nil
}

type fakeQueue struct {
	jobs []worker.ExtractionJob
	err  error
}

func (f *fakeQueue) Enqueue(job worker.ExtractionJob) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

type fakeSubs struct{}

func (fakeSubs) Upsert(context.Context, *models.Subscription) error { return nil }
func (fakeSubs) UpdateStatus(context.Context, string, string) error { return nil }
func (fakeSubs) GetByPaddleID(context.Context, string) (*models.Subscription, error) {
	return nil, fmt.Errorf("not found")
}

type testEnv struct {
	router    *gin.Engine
	invoices  *fakeInvoices
	countries *fakeCountries
	users     *fakeUsers
	queue     *fakeQueue
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()

	invoices := newFakeInvoices()
	countries := &fakeCountries{rulesets: map[string]*models.CountryRuleset{
		"NI": {
			Code:                "NI",
			Name:                "Nicaragua",
			Currency:            "NIO",
			VATName:             "IVA",
			VATRate:             15,
			DeductionPercentage: 30,
			Categories:          []string{"Transporte"},
		},
	}}
	users := &fakeUsers{users: map[string]*models.User{
		"user-1": {
			ID:                "user-1",
			Email:             "ana@example.com",
			CountryCode:       "NI",
			SubscriptionPlan:  models.PlanFree,
			InvoiceLimit:      10,
			InvoicesThisMonth: 0,
		},
	}}
	queue := &fakeQueue{}

	uploads := storage.NewLocalFileStorage(t.TempDir(), logger)
	exporter := report.NewExcelExporter(logger)
	handlers := NewHandlers(invoices, countries, users, uploads, queue, exporter, t.TempDir(), logger)

	verifier := webhook.NewVerifier("whsec_test", logger)
	webhooks := webhook.NewHandler(verifier, fakeSubs{}, users, logger)

	srv := New(Config{Host: "127.0.0.1", Port: 0}, handlers, webhooks, logger)
	return &testEnv{
		router:    srv.Router(),
		invoices:  invoices,
		countries: countries,
		users:     users,
		queue:     queue,
	}
}

func multipartUpload(t *testing.T, fields map[string]string, fileName string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	fw, err := w.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func postJSON(t *testing.T, router *gin.Engine, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRegisterUser(t *testing.T) {
	env := newTestEnv(t)

	rec := postJSON(t, env.router, "/api/v1/users", gin.H{
		"email":        "Maria@Example.com",
		"full_name":    "María \x00López",
		"tax_id":       "j0310000123456",
		"country_code": "ni",
	})

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Data models.User `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "maria@example.com", resp.Data.Email)
	assert.Equal(t, "María López", resp.Data.FullName)
	assert.Equal(t, "J0310000123456", resp.Data.TaxID)
	assert.Equal(t, "NI", resp.Data.CountryCode)
	assert.Equal(t, models.PlanFree, resp.Data.SubscriptionPlan)
	assert.Equal(t, 10, resp.Data.InvoiceLimit)

	stored, ok := env.users.users[resp.Data.ID]
	require.True(t, ok)
	assert.Equal(t, "maria@example.com", stored.Email)
}

func TestRegisterUser_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		payload gin.H
		wantErr string
	}{
		{
			name:    "missing email",
			payload: gin.H{"country_code": "NI"},
			wantErr: "required",
		},
		{
			name:    "bad email",
			payload: gin.H{"email": "not-an-email", "country_code": "NI"},
			wantErr: "invalid email format",
		},
		{
			name:    "bad country code",
			payload: gin.H{"email": "a@b.com", "country_code": "NIC"},
			wantErr: "invalid country code",
		},
		{
			name:    "unsupported country",
			payload: gin.H{"email": "a@b.com", "country_code": "US"},
			wantErr: "unsupported country",
		},
		{
			name:    "bad RUC",
			payload: gin.H{"email": "a@b.com", "country_code": "NI", "tax_id": "X123"},
			wantErr: "invalid RUC format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			rec := postJSON(t, env.router, "/api/v1/users", tt.payload)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantErr)
		})
	}
}

func TestUploadInvoice_Accepted(t *testing.T) {
	env := newTestEnv(t)

	body, contentType := multipartUpload(t,
		map[string]string{"user_id": "user-1"},
		"factura.pdf", []byte("%PDF-1.4 test"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, env.invoices.created, 1)
	created := env.invoices.created[0]
	assert.Equal(t, models.InvoiceStatusProcessing, created.Status)
	assert.Equal(t, "NI", created.CountryCode)
	assert.NotEmpty(t, created.FilePath)

	require.Len(t, env.queue.jobs, 1)
	job := env.queue.jobs[0]
	assert.Equal(t, created.ID, job.InvoiceID)
	assert.Equal(t, "application/pdf", job.Document.MimeType)
	assert.Equal(t, "user-1", job.Document.UserID)
}

func TestUploadInvoice_RejectsOverLimitUser(t *testing.T) {
	env := newTestEnv(t)
	env.users.users["user-1"].InvoicesThisMonth = 10

	body, contentType := multipartUpload(t,
		map[string]string{"user_id": "user-1"},
		"factura.pdf", []byte("%PDF-1.4"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, env.queue.jobs)
}

func TestUploadInvoice_RejectsBadExtension(t *testing.T) {
	env := newTestEnv(t)

	body, contentType := multipartUpload(t,
		map[string]string{"user_id": "user-1"},
		"malware.exe", []byte("MZ"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, env.invoices.created)
}

func TestUploadInvoice_UnknownUser(t *testing.T) {
	env := newTestEnv(t)

	body, contentType := multipartUpload(t,
		map[string]string{"user_id": "ghost"},
		"factura.pdf", []byte("%PDF-1.4"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUploadInvoice_QueueFullMarksFailed(t *testing.T) {
	env := newTestEnv(t)
	env.queue.err = fmt.Errorf("extraction queue full")

	body, contentType := multipartUpload(t,
		map[string]string{"user_id": "user-1"},
		"factura.pdf", []byte("%PDF-1.4"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Len(t, env.invoices.failed, 1)
}

func TestGetInvoice(t *testing.T) {
	env := newTestEnv(t)
	env.invoices.byID["inv-1"] = &models.Invoice{ID: "inv-1", VendorName: "ACME CORP"}

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/invoices/inv-1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ACME CORP")

	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/invoices/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReviewInvoice(t *testing.T) {
	env := newTestEnv(t)
	env.invoices.byID["inv-1"] = &models.Invoice{ID: "inv-1"}

	t.Run("accepts valid deductible", func(t *testing.T) {
		body := strings.NewReader(`{"deductible":"no_deducible","needs_review":false}`)
		req := httptest.NewRequest(http.MethodPatch, "/api/v1/invoices/inv-1/review", body)
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, models.NoDeducible, env.invoices.reviews["inv-1"])
	})

	t.Run("rejects invalid deductible", func(t *testing.T) {
		body := strings.NewReader(`{"deductible":"maybe"}`)
		req := httptest.NewRequest(http.MethodPatch, "/api/v1/invoices/inv-1/review", body)
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing invoice", func(t *testing.T) {
		body := strings.NewReader(`{"deductible":"deducible"}`)
		req := httptest.NewRequest(http.MethodPatch, "/api/v1/invoices/nope/review", body)
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestTaxSummary(t *testing.T) {
	env := newTestEnv(t)
	env.invoices.byUser["user-1"] = []models.Invoice{
		{CountryCode: "NI", Status: models.InvoiceStatusProcessed, TotalAmount: 1150, TaxAmount: 150, Deductible: models.Deducible},
		{CountryCode: "NI", Status: models.InvoiceStatusProcessed, TotalAmount: 2300, TaxAmount: 300, Deductible: models.Deducible},
		// Failed rows and other countries stay out of the summary.
		{CountryCode: "NI", Status: models.InvoiceStatusFailed, TotalAmount: 999},
		{CountryCode: "CR", Status: models.InvoiceStatusProcessed, TotalAmount: 500},
	}

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/v1/tax/summary?user_id=user-1&country_code=NI", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data struct {
			TotalExpenses  float64 `json:"total_expenses"`
			VATRecoverable float64 `json:"vat_recoverable"`
			InvoiceCount   int     `json:"invoice_count"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.InDelta(t, 3450.0, resp.Data.TotalExpenses, 0.01)
	assert.InDelta(t, 450.0, resp.Data.VATRecoverable, 0.01)
	assert.Equal(t, 2, resp.Data.InvoiceCount)
}

func TestTaxSummary_UnknownCountry(t *testing.T) {
	env := newTestEnv(t)

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/v1/tax/summary?user_id=user-1&country_code=XX", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExportReport(t *testing.T) {
	env := newTestEnv(t)
	env.invoices.byUser["user-1"] = []models.Invoice{
		{CountryCode: "NI", Status: models.InvoiceStatusProcessed, VendorName: "ACME CORP", TotalAmount: 1150, TaxAmount: 150},
	}

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/v1/reports/excel?user_id=user-1&country_code=NI", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotZero(t, rec.Body.Len())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".xlsx")
}

func TestCountries(t *testing.T) {
	env := newTestEnv(t)

	t.Run("list", func(t *testing.T) {
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/countries", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "Nicaragua")
	})

	t.Run("get lowercases code", func(t *testing.T) {
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/countries/ni", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("update", func(t *testing.T) {
		body := strings.NewReader(`{
			"name": "Nicaragua",
			"currency": "NIO",
			"vat_name": "IVA",
			"vat_rate": 15,
			"deduction_percentage": 35,
			"categories": ["Transporte", "Oficina"]
		}`)
		req := httptest.NewRequest(http.MethodPut, "/api/v1/countries/NI", body)
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, env.countries.updated, 1)
		assert.InDelta(t, 35.0, env.countries.updated[0].DeductionPercentage, 0.001)
	})

	t.Run("update rejects bad rate", func(t *testing.T) {
		body := strings.NewReader(`{"vat_rate": 150}`)
		req := httptest.NewRequest(http.MethodPut, "/api/v1/countries/NI", body)
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("update unknown country", func(t *testing.T) {
		body := strings.NewReader(`{"vat_rate": 10}`)
		req := httptest.NewRequest(http.MethodPut, "/api/v1/countries/XX", body)
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
