package ocr

import (
	"context"
	"strings"
	"time"

	"github.com/fiscion/fiscion/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// unknownVendor is what we store when neither stage could name the supplier.
const unknownVendor = "Proveedor Desconocido"

// Document is one uploaded invoice file to run through the pipeline.
type Document struct {
	Content     []byte
	MimeType    string
	FileName    string
	FilePath    string
	UserID      string
	CountryCode string
}

// RulesetStore looks up the tax ruleset for a country code. An unknown code
// must yield an error wrapping models.ErrUnknownCountry.
type RulesetStore interface {
	GetByCode(ctx context.Context, code string) (*models.CountryRuleset, error)
}

// Pipeline is the single-pass field-extraction and reconciliation chain:
// (pattern extractor, external extractor) -> merge -> tax math. It holds no
// state across invocations; concurrent Process calls need no coordination.
type Pipeline struct {
	extractor EntityExtractor
	patterns  *PatternExtractor
	rulesets  RulesetStore
	logger    *zap.Logger
}

// NewPipeline creates a new extraction pipeline
func NewPipeline(extractor EntityExtractor, rulesets RulesetStore, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		extractor: extractor,
		patterns:  NewPatternExtractor(logger),
		rulesets:  rulesets,
		logger:    logger,
	}
}

// Process runs one document through the pipeline and returns the invoice to
// persist plus the raw external result for the extraction log (nil when the
// external call failed). Only a missing country ruleset is fatal; every other
// failure degrades to absent fields and a needs-review row.
func (p *Pipeline) Process(ctx context.Context, doc Document) (*models.Invoice, *ExtractionResult, error) {
	ruleset, err := p.rulesets.GetByCode(ctx, doc.CountryCode)
	if err != nil {
		return nil, nil, err
	}

	external, err := p.extractor.ProcessInvoice(ctx, doc.Content, doc.MimeType)
	if err != nil {
		p.logger.Warn("External entity extraction failed, continuing with patterns only",
			zap.String("file", doc.FileName),
			zap.Error(err))
		external = nil
	}

	rawText := ""
	if external != nil {
		rawText = external.Text
	}
	if rawText == "" {
		rawText = p.fallbackText(ctx, doc)
	}

	patternFields := p.patterns.Extract(rawText, ruleset)

	var externalFields models.FieldSet
	if external != nil {
		externalFields = FieldsFromEntities(external.Entities)
	}

	merged := Merge(externalFields, patternFields)
	merged = FillDerivedAmounts(merged, ruleset)

	return p.buildInvoice(doc, merged, ruleset, rawText), external, nil
}

// fallbackText tries the legacy plain-OCR processor, then the PDF's own text
// layer. Both failures are logged and swallowed; an unreadable document still
// produces a storable, reviewable row.
func (p *Pipeline) fallbackText(ctx context.Context, doc Document) string {
	text, err := p.extractor.ProcessText(ctx, doc.Content, doc.MimeType)
	if err != nil {
		p.logger.Warn("Fallback OCR failed", zap.String("file", doc.FileName), zap.Error(err))
	} else if text != "" {
		return text
	}

	if strings.EqualFold(doc.MimeType, "application/pdf") {
		text, err := TextFromPDF(doc.Content)
		if err != nil {
			p.logger.Warn("PDF text-layer extraction failed",
				zap.String("file", doc.FileName), zap.Error(err))
			return ""
		}
		return text
	}

	return ""
}

func (p *Pipeline) buildInvoice(doc Document, fields models.FieldSet, ruleset *models.CountryRuleset, rawText string) *models.Invoice {
	now := time.Now().UTC()

	invoice := &models.Invoice{
		ID:             uuid.NewString(),
		UserID:         doc.UserID,
		CountryCode:    ruleset.Code,
		FileName:       doc.FileName,
		FilePath:       doc.FilePath,
		Status:         models.InvoiceStatusProcessed,
		VendorName:     unknownVendor,
		Currency:       ruleset.Currency,
		Deductible:     models.Pendiente,
		NeedsReview:    fields.NeedsReview,
		RawText:        rawText,
		HasRetention:   fields.HasRetention,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if fields.InvoiceNumber != nil {
		invoice.InvoiceNumber = *fields.InvoiceNumber
	}
	if fields.InvoiceDate != nil {
		invoice.InvoiceDate = *fields.InvoiceDate
	}
	if fields.VendorName != nil {
		invoice.VendorName = *fields.VendorName
	}
	if fields.VendorTaxID != nil {
		invoice.VendorTaxID = *fields.VendorTaxID
	}
	if fields.ReceiverName != nil {
		invoice.ReceiverName = *fields.ReceiverName
	}
	if fields.ReceiverTaxID != nil {
		invoice.ReceiverTaxID = *fields.ReceiverTaxID
	}
	if fields.TotalAmount != nil {
		invoice.TotalAmount = *fields.TotalAmount
	}
	if fields.TaxAmount != nil {
		invoice.TaxAmount = *fields.TaxAmount
	}
	if fields.SubtotalAmount != nil {
		invoice.SubtotalAmount = *fields.SubtotalAmount
	}
	if fields.Currency != nil && len(*fields.Currency) == 3 {
		invoice.Currency = *fields.Currency
	}
	if fields.IsDeductible != nil && *fields.IsDeductible {
		invoice.Deductible = models.Deducible
	}

	return invoice
}
