package worker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fiscion/fiscion/internal/models"
	"github.com/fiscion/fiscion/internal/ocr"
)

type fakeInvoiceStore struct {
	mu      sync.Mutex
	updated []*models.Invoice
	failed  []string
}

func (s *fakeInvoiceStore) Update(_ context.Context, invoice *models.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updated = append(s.updated, invoice)
	return nil
}

func (s *fakeInvoiceStore) MarkFailed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, id)
	return nil
}

type fakeLogStore struct {
	mu      sync.Mutex
	entries []string
}

func (s *fakeLogStore) Create(_ context.Context, invoiceID, _ string, _ []models.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, invoiceID)
	return nil
}

type fakeUsage struct {
	mu    sync.Mutex
	users []string
}

func (s *fakeUsage) IncrementInvoiceCount(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = append(s.users, userID)
	return nil
}

type stubExtractor struct {
	result *ocr.ExtractionResult
	err    error
}

func (s *stubExtractor) ProcessInvoice(context.Context, []byte, string) (*ocr.ExtractionResult, error) {
	return s.result, s.err
}

func (s *stubExtractor) ProcessText(context.Context, []byte, string) (string, error) {
	return "", fmt.Errorf("no text processor")
}

func (s *stubExtractor) Close() error { return nil }

type stubRulesets struct {
	ruleset *models.CountryRuleset
	err     error
}

func (s *stubRulesets) GetByCode(context.Context, string) (*models.CountryRuleset, error) {
	return s.ruleset, s.err
}

func testRuleset() *models.CountryRuleset {
	return &models.CountryRuleset{
		Code:                "NI",
		Name:                "Nicaragua",
		Currency:            "NIO",
		VATName:             "IVA",
		VATRate:             15,
		DeductionPercentage: 30,
		Categories:          []string{"Transporte"},
	}
}

func newTestProcessor(extractor ocr.EntityExtractor, rulesets ocr.RulesetStore) (*InvoiceProcessor, *fakeInvoiceStore, *fakeLogStore, *fakeUsage) {
	logger := zap.NewNop()
	pipeline := ocr.NewPipeline(extractor, rulesets, logger)
	invoices := &fakeInvoiceStore{}
	logs := &fakeLogStore{}
	usage := &fakeUsage{}
	p := NewInvoiceProcessor(pipeline, invoices, logs, usage, logger)
	p.retry.BaseBackoff = time.Millisecond
	p.retry.MaxBackoff = time.Millisecond
	p.retry.Jitter = false
	return p, invoices, logs, usage
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestInvoiceProcessor_ProcessesJob(t *testing.T) {
	extractor := &stubExtractor{
		result: &ocr.ExtractionResult{
			Text: "ACME CORP\nRUC: J0310000000001\nTOTAL NIO: 1,150.00",
			Entities: []models.Entity{
				{Type: "supplier_name", MentionText: "ACME CORP"},
				{Type: "total_amount", MentionText: "1,150.00", NormalizedText: "1150"},
			},
		},
	}
	p, invoices, logs, usage := newTestProcessor(extractor, &stubRulesets{ruleset: testRuleset()})

	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	require.NoError(t, p.Enqueue(ExtractionJob{
		InvoiceID: "inv-1",
		Document: ocr.Document{
			Content:     []byte("pdf"),
			MimeType:    "application/pdf",
			FileName:    "factura.pdf",
			UserID:      "user-1",
			CountryCode: "NI",
		},
	}))

	waitFor(t, func() bool {
		invoices.mu.Lock()
		defer invoices.mu.Unlock()
		return len(invoices.updated) == 1
	})

	invoice := invoices.updated[0]
	assert.Equal(t, "inv-1", invoice.ID)
	assert.Equal(t, "ACME CORP", invoice.VendorName)
	assert.Equal(t, models.InvoiceStatusProcessed, invoice.Status)

	waitFor(t, func() bool {
		logs.mu.Lock()
		defer logs.mu.Unlock()
		return len(logs.entries) == 1
	})
	waitFor(t, func() bool {
		usage.mu.Lock()
		defer usage.mu.Unlock()
		return len(usage.users) == 1 && usage.users[0] == "user-1"
	})

	status := p.Status()
	assert.Equal(t, 1, status.ProcessedCount)
	assert.Equal(t, 0, status.FailedCount)
}

func TestInvoiceProcessor_UnknownCountryMarksFailed(t *testing.T) {
	rulesets := &stubRulesets{err: fmt.Errorf("country XX: %w", models.ErrUnknownCountry)}
	p, invoices, _, usage := newTestProcessor(&stubExtractor{}, rulesets)

	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	require.NoError(t, p.Enqueue(ExtractionJob{
		InvoiceID: "inv-2",
		Document:  ocr.Document{UserID: "user-1", CountryCode: "XX"},
	}))

	waitFor(t, func() bool {
		invoices.mu.Lock()
		defer invoices.mu.Unlock()
		return len(invoices.failed) == 1
	})
	assert.Equal(t, []string{"inv-2"}, invoices.failed)
	assert.Empty(t, usage.users)
	assert.Equal(t, 1, p.Status().FailedCount)
}

func TestInvoiceProcessor_ExternalFailureStillProcesses(t *testing.T) {
	// The external extractor erroring is not fatal: the pipeline falls
	// back to patterns and the row is stored as needs-review.
	extractor := &stubExtractor{err: fmt.Errorf("permission denied")}
	p, invoices, logs, _ := newTestProcessor(extractor, &stubRulesets{ruleset: testRuleset()})

	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	require.NoError(t, p.Enqueue(ExtractionJob{
		InvoiceID: "inv-3",
		Document: ocr.Document{
			Content:     []byte("not a pdf"),
			MimeType:    "image/png",
			FileName:    "scan.png",
			UserID:      "user-1",
			CountryCode: "NI",
		},
	}))

	waitFor(t, func() bool {
		invoices.mu.Lock()
		defer invoices.mu.Unlock()
		return len(invoices.updated) == 1
	})

	invoice := invoices.updated[0]
	assert.True(t, invoice.NeedsReview)
	assert.Equal(t, "Proveedor Desconocido", invoice.VendorName)
	// No external result means no extraction log entry.
	assert.Empty(t, logs.entries)
}

func TestInvoiceProcessor_QueueFull(t *testing.T) {
	p, _, _, _ := newTestProcessor(&stubExtractor{}, &stubRulesets{ruleset: testRuleset()})
	p.jobs = make(chan ExtractionJob, 1)

	require.NoError(t, p.Enqueue(ExtractionJob{InvoiceID: "a"}))
	err := p.Enqueue(ExtractionJob{InvoiceID: "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue full")
}

func TestInvoiceProcessor_DoubleStart(t *testing.T) {
	p, _, _, _ := newTestProcessor(&stubExtractor{}, &stubRulesets{ruleset: testRuleset()})

	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	assert.Error(t, p.Start(context.Background()))
}
