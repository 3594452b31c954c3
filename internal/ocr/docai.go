package ocr

import (
	"context"
	"fmt"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/fiscion/fiscion/internal/models"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// ExtractionResult is the output of one external document-understanding call.
type ExtractionResult struct {
	Text     string
	Entities []models.Entity
}

// EntityExtractor is the contract for the external document-understanding
// service. Implementations may be slow or fail; the pipeline treats a failure
// as "no external fields available" and carries on.
type EntityExtractor interface {
	// ProcessInvoice runs the invoice-specialized processor and returns the
	// document text plus typed entities.
	ProcessInvoice(ctx context.Context, content []byte, mimeType string) (*ExtractionResult, error)

	// ProcessText runs the plain-OCR processor and returns raw text only.
	// Used as the legacy fallback when the invoice processor yields no text.
	ProcessText(ctx context.Context, content []byte, mimeType string) (string, error)

	Close() error
}

// DocumentAIConfig holds Google Document AI settings
type DocumentAIConfig struct {
	ProjectID          string
	Location           string
	InvoiceProcessorID string
	OCRProcessorID     string
	CredentialsFile    string
}

// DocumentAIExtractor implements EntityExtractor on Google Document AI. The
// client is constructed explicitly and injected into the pipeline by the
// caller, which owns its lifecycle.
type DocumentAIExtractor struct {
	client *documentai.DocumentProcessorClient
	cfg    DocumentAIConfig
	logger *zap.Logger
}

// NewDocumentAIExtractor creates a Document AI backed extractor
func NewDocumentAIExtractor(ctx context.Context, cfg DocumentAIConfig, logger *zap.Logger) (*DocumentAIExtractor, error) {
	opts := []option.ClientOption{
		option.WithEndpoint(fmt.Sprintf("%s-documentai.googleapis.com:443", cfg.Location)),
	}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := documentai.NewDocumentProcessorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create document AI client: %w", err)
	}

	return &DocumentAIExtractor{
		client: client,
		cfg:    cfg,
		logger: logger,
	}, nil
}

// ProcessInvoice sends the document to the invoice processor
func (x *DocumentAIExtractor) ProcessInvoice(ctx context.Context, content []byte, mimeType string) (*ExtractionResult, error) {
	doc, err := x.process(ctx, x.cfg.InvoiceProcessorID, content, mimeType)
	if err != nil {
		return nil, fmt.Errorf("invoice processing failed: %w", err)
	}

	result := &ExtractionResult{Text: doc.GetText()}
	for _, entity := range doc.GetEntities() {
		result.Entities = append(result.Entities, normalizeEntity(entity)...)
	}

	x.logger.Info("Document AI invoice processed",
		zap.Int("text_len", len(result.Text)),
		zap.Int("entities", len(result.Entities)))

	return result, nil
}

// ProcessText sends the document to the plain-OCR processor
func (x *DocumentAIExtractor) ProcessText(ctx context.Context, content []byte, mimeType string) (string, error) {
	doc, err := x.process(ctx, x.cfg.OCRProcessorID, content, mimeType)
	if err != nil {
		return "", fmt.Errorf("OCR processing failed: %w", err)
	}
	return doc.GetText(), nil
}

// Close releases the underlying client
func (x *DocumentAIExtractor) Close() error {
	return x.client.Close()
}

func (x *DocumentAIExtractor) process(ctx context.Context, processorID string, content []byte, mimeType string) (*documentaipb.Document, error) {
	name := fmt.Sprintf("projects/%s/locations/%s/processors/%s",
		x.cfg.ProjectID, x.cfg.Location, processorID)

	resp, err := x.client.ProcessDocument(ctx, &documentaipb.ProcessRequest{
		Name: name,
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  content,
				MimeType: mimeType,
			},
		},
	})
	if err != nil {
		return nil, err
	}
	return resp.GetDocument(), nil
}

// normalizeEntity converts one Document AI entity into our entity model.
// Money values also yield a synthetic currency entity when the service
// reports a currency code.
func normalizeEntity(entity *documentaipb.Document_Entity) []models.Entity {
	out := models.Entity{
		Type:        entity.GetType(),
		MentionText: entity.GetMentionText(),
	}

	entities := []models.Entity{out}
	nv := entity.GetNormalizedValue()
	if nv == nil {
		return entities
	}

	if mv := nv.GetMoneyValue(); mv != nil {
		amount := float64(mv.GetUnits()) + float64(mv.GetNanos())/1e9
		entities[0].NormalizedText = fmt.Sprintf("%.2f", amount)
		if code := mv.GetCurrencyCode(); code != "" {
			entities = append(entities, models.Entity{
				Type:           models.EntityCurrency,
				MentionText:    code,
				NormalizedText: code,
			})
		}
	} else if dv := nv.GetDateValue(); dv != nil {
		entities[0].NormalizedText = fmt.Sprintf("%04d-%02d-%02d",
			dv.GetYear(), dv.GetMonth(), dv.GetDay())
	} else if text := nv.GetText(); text != "" {
		entities[0].NormalizedText = text
	}

	return entities
}

// FieldsFromEntities maps the external processor's entity vocabulary onto a
// FieldSet. Unrecognized entity types are ignored. An amount entity that is
// present but garbled parses to 0 rather than being dropped, matching the
// lenient money-parsing policy.
func FieldsFromEntities(entities []models.Entity) models.FieldSet {
	var fields models.FieldSet

	for _, entity := range entities {
		value := entity.NormalizedText
		if value == "" {
			value = entity.MentionText
		}
		if value == "" && entity.Type != models.EntityRetentionTax {
			continue
		}

		switch entity.Type {
		case models.EntityInvoiceID:
			fields.InvoiceNumber = models.String(value)
		case models.EntitySupplierName:
			fields.VendorName = models.String(value)
		case models.EntitySupplierTaxID:
			fields.VendorTaxID = models.String(value)
		case models.EntityReceiverName:
			fields.ReceiverName = models.String(value)
		case models.EntityReceiverTaxID:
			fields.ReceiverTaxID = models.String(value)
		case models.EntityInvoiceDate:
			if entity.NormalizedText != "" {
				fields.InvoiceDate = models.String(entity.NormalizedText)
			} else if date, ok := ParseLatinDate(entity.MentionText); ok {
				fields.InvoiceDate = models.String(date)
			}
		case models.EntityNetAmount:
			fields.SubtotalAmount = models.Float(ParseAmount(value))
		case models.EntityTotalTax:
			fields.TaxAmount = models.Float(ParseAmount(value))
		case models.EntityTotalAmount:
			fields.TotalAmount = models.Float(ParseAmount(value))
		case models.EntityCurrency:
			fields.Currency = models.String(value)
		case models.EntityRetentionTax:
			fields.HasRetention = true
		}
	}

	return fields
}
