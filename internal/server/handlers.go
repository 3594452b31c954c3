package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fiscion/fiscion/internal/models"
	"github.com/fiscion/fiscion/internal/ocr"
	"github.com/fiscion/fiscion/internal/report"
	"github.com/fiscion/fiscion/internal/repository"
	"github.com/fiscion/fiscion/internal/storage"
	"github.com/fiscion/fiscion/internal/tax"
	"github.com/fiscion/fiscion/internal/worker"
	"github.com/fiscion/fiscion/pkg/utils"
)

// InvoiceStore is the invoice persistence surface the handlers need.
type InvoiceStore interface {
	Create(ctx context.Context, invoice *models.Invoice) error
	GetByID(ctx context.Context, id string) (*models.Invoice, error)
	ListByUser(ctx context.Context, userID string) ([]models.Invoice, error)
	UpdateReview(ctx context.Context, id string, deductible models.DeductibleStatus, needsReview bool) error
	MarkFailed(ctx context.Context, id string) error
}

// CountryStore serves and updates per-country tax rulesets.
type CountryStore interface {
	GetByCode(ctx context.Context, code string) (*models.CountryRuleset, error)
	List(ctx context.Context) ([]models.CountryRuleset, error)
	Update(ctx context.Context, ruleset *models.CountryRuleset) error
}

// UserStore looks up users for plan-limit enforcement and registers new
// accounts.
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// JobQueue accepts extraction jobs for asynchronous processing.
type JobQueue interface {
	Enqueue(job worker.ExtractionJob) error
}

// Handlers contains all HTTP request handlers
type Handlers struct {
	invoices  InvoiceStore
	countries CountryStore
	users     UserStore
	uploads   storage.FileStorage
	queue     JobQueue
	exporter  *report.ExcelExporter
	reportDir string
	logger    *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	invoices InvoiceStore,
	countries CountryStore,
	users UserStore,
	uploads storage.FileStorage,
	queue JobQueue,
	exporter *report.ExcelExporter,
	reportDir string,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		invoices:  invoices,
		countries: countries,
		users:     users,
		uploads:   uploads,
		queue:     queue,
		exporter:  exporter,
		reportDir: reportDir,
		logger:    logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: gin.H{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// RegisterRequest is the body for a new user account.
type RegisterRequest struct {
	Email       string `json:"email" binding:"required"`
	FullName    string `json:"full_name"`
	TaxID       string `json:"tax_id"`
	CountryCode string `json:"country_code" binding:"required"`
}

// RegisterUser handles POST /api/v1/users. New accounts start on the free
// plan; upgrades arrive through the billing webhook.
func (h *Handlers) RegisterUser(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: "email and country_code are required"})
		return
	}

	if err := utils.ValidateEmail(req.Email); err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: err.Error()})
		return
	}

	countryCode := strings.ToUpper(req.CountryCode)
	if err := utils.ValidateCountryCode(countryCode); err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: err.Error()})
		return
	}
	if _, err := h.countries.GetByCode(c.Request.Context(), countryCode); err != nil {
		if errors.Is(err, models.ErrUnknownCountry) {
			c.JSON(http.StatusBadRequest, Response{Error: "unsupported country: " + countryCode})
			return
		}
		h.logger.Error("Failed to load ruleset", zap.String("country", countryCode), zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Error: "failed to load country ruleset"})
		return
	}

	taxID := strings.ToUpper(strings.TrimSpace(req.TaxID))
	if taxID != "" && countryCode == "NI" {
		if err := utils.ValidateRUC(taxID); err != nil {
			c.JSON(http.StatusBadRequest, Response{Error: err.Error()})
			return
		}
	}

	user := &models.User{
		ID:               uuid.NewString(),
		Email:            strings.ToLower(strings.TrimSpace(req.Email)),
		FullName:         utils.SanitizeString(req.FullName),
		TaxID:            taxID,
		CountryCode:      countryCode,
		SubscriptionPlan: models.PlanFree,
		InvoiceLimit:     models.PlanInvoiceLimit(models.PlanFree),
		CreatedAt:        time.Now().UTC(),
	}
	if err := h.users.Create(c.Request.Context(), user); err != nil {
		h.logger.Error("Failed to create user", zap.String("email", user.Email), zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Error: "failed to create user"})
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: user})
}

// mimeTypes maps upload extensions to the MIME type the extractor expects.
var mimeTypes = map[string]string{
	".pdf":  "application/pdf",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

// UploadInvoice handles POST /api/v1/invoices. The file is stored and a
// pending row created synchronously; extraction happens on the worker.
func (h *Handlers) UploadInvoice(c *gin.Context) {
	userID := c.PostForm("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, Response{Error: "user_id is required"})
		return
	}

	user, err := h.users.GetByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, Response{Error: "user not found"})
			return
		}
		h.logger.Error("Failed to load user", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Error: "failed to load user"})
		return
	}

	if !user.CanUpload() {
		c.JSON(http.StatusForbidden, Response{
			Error: fmt.Sprintf("monthly invoice limit reached (%d)", user.InvoiceLimit),
		})
		return
	}

	countryCode := strings.ToUpper(c.PostForm("country_code"))
	if countryCode == "" {
		countryCode = user.CountryCode
	}
	if err := utils.ValidateCountryCode(countryCode); err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: err.Error()})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: "file is required"})
		return
	}

	if err := storage.ValidateUpload(fileHeader.Filename, fileHeader.Size); err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: err.Error()})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: "failed to open uploaded file"})
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: "failed to read uploaded file"})
		return
	}

	storedPath, err := h.uploads.SaveUpload(userID, fileHeader.Filename, content)
	if err != nil {
		h.logger.Error("Failed to store upload",
			zap.String("user_id", userID),
			zap.String("file", fileHeader.Filename),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Error: "failed to store file"})
		return
	}

	now := time.Now().UTC()
	invoice := &models.Invoice{
		ID:          uuid.NewString(),
		UserID:      userID,
		CountryCode: countryCode,
		FileName:    fileHeader.Filename,
		FilePath:    storedPath,
		Status:      models.InvoiceStatusProcessing,
		Deductible:  models.Pendiente,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := h.invoices.Create(c.Request.Context(), invoice); err != nil {
		h.logger.Error("Failed to create invoice row", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Error: "failed to create invoice"})
		return
	}

	job := worker.ExtractionJob{
		InvoiceID: invoice.ID,
		Document: ocr.Document{
			Content:     content,
			MimeType:    mimeTypes[strings.ToLower(filepath.Ext(fileHeader.Filename))],
			FileName:    fileHeader.Filename,
			FilePath:    storedPath,
			UserID:      userID,
			CountryCode: countryCode,
		},
	}
	if err := h.queue.Enqueue(job); err != nil {
		h.logger.Warn("Extraction queue rejected job",
			zap.String("invoice_id", invoice.ID), zap.Error(err))
		if markErr := h.invoices.MarkFailed(c.Request.Context(), invoice.ID); markErr != nil {
			h.logger.Error("Failed to mark rejected invoice",
				zap.String("invoice_id", invoice.ID), zap.Error(markErr))
		}
		c.JSON(http.StatusServiceUnavailable, Response{Error: "processing queue full, try again later"})
		return
	}

	c.JSON(http.StatusAccepted, Response{Success: true, Data: invoice})
}

// ListInvoices handles GET /api/v1/invoices?user_id=
func (h *Handlers) ListInvoices(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, Response{Error: "user_id is required"})
		return
	}

	invoices, err := h.invoices.ListByUser(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to list invoices", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Error: "failed to list invoices"})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: invoices})
}

// GetInvoice handles GET /api/v1/invoices/:id
func (h *Handlers) GetInvoice(c *gin.Context) {
	invoice, err := h.invoices.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, Response{Error: "invoice not found"})
			return
		}
		h.logger.Error("Failed to get invoice", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Error: "failed to get invoice"})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: invoice})
}

// ReviewRequest is the body for a manual review correction.
type ReviewRequest struct {
	Deductible  string `json:"deductible" binding:"required"`
	NeedsReview bool   `json:"needs_review"`
}

// ReviewInvoice handles PATCH /api/v1/invoices/:id/review
func (h *Handlers) ReviewInvoice(c *gin.Context) {
	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: "deductible is required"})
		return
	}

	deductible := models.DeductibleStatus(req.Deductible)
	switch deductible {
	case models.Deducible, models.NoDeducible, models.Pendiente:
	default:
		c.JSON(http.StatusBadRequest, Response{
			Error: fmt.Sprintf("invalid deductible value: %s", req.Deductible),
		})
		return
	}

	id := c.Param("id")
	if err := h.invoices.UpdateReview(c.Request.Context(), id, deductible, req.NeedsReview); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, Response{Error: "invoice not found"})
			return
		}
		h.logger.Error("Failed to update review", zap.String("invoice_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Error: "failed to update review"})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true})
}

// userInvoicesForCountry loads a user's processed invoices and the
// ruleset they should be summarized under.
func (h *Handlers) userInvoicesForCountry(c *gin.Context) ([]models.Invoice, *models.CountryRuleset, bool) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, Response{Error: "user_id is required"})
		return nil, nil, false
	}

	countryCode := strings.ToUpper(c.Query("country_code"))
	if countryCode == "" {
		user, err := h.users.GetByID(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusBadRequest, Response{Error: "country_code is required"})
			return nil, nil, false
		}
		countryCode = user.CountryCode
	}

	ruleset, err := h.countries.GetByCode(c.Request.Context(), countryCode)
	if err != nil {
		if errors.Is(err, models.ErrUnknownCountry) {
			c.JSON(http.StatusNotFound, Response{Error: "unknown country: " + countryCode})
			return nil, nil, false
		}
		h.logger.Error("Failed to load ruleset", zap.String("country", countryCode), zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Error: "failed to load country ruleset"})
		return nil, nil, false
	}

	all, err := h.invoices.ListByUser(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to list invoices", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Error: "failed to list invoices"})
		return nil, nil, false
	}

	invoices := make([]models.Invoice, 0, len(all))
	for _, inv := range all {
		if inv.CountryCode == countryCode && inv.Status == models.InvoiceStatusProcessed {
			invoices = append(invoices, inv)
		}
	}
	return invoices, ruleset, true
}

// TaxSummary handles GET /api/v1/tax/summary?user_id=&country_code=
func (h *Handlers) TaxSummary(c *gin.Context) {
	invoices, ruleset, ok := h.userInvoicesForCountry(c)
	if !ok {
		return
	}

	summary := tax.Summarize(invoices, ruleset)
	c.JSON(http.StatusOK, Response{Success: true, Data: summary})
}

// ExportReport handles GET /api/v1/reports/excel?user_id=&country_code=
func (h *Handlers) ExportReport(c *gin.Context) {
	invoices, ruleset, ok := h.userInvoicesForCountry(c)
	if !ok {
		return
	}

	fileName := fmt.Sprintf("fiscion_%s_%s.xlsx", ruleset.Code, time.Now().UTC().Format("20060102150405"))
	outputPath := filepath.Join(h.reportDir, fileName)
	if err := h.exporter.Export(invoices, ruleset, outputPath); err != nil {
		h.logger.Error("Failed to export report", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Error: "failed to export report"})
		return
	}

	c.FileAttachment(outputPath, fileName)
}

// ListCountries handles GET /api/v1/countries
func (h *Handlers) ListCountries(c *gin.Context) {
	countries, err := h.countries.List(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list countries", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Error: "failed to list countries"})
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: countries})
}

// GetCountry handles GET /api/v1/countries/:code
func (h *Handlers) GetCountry(c *gin.Context) {
	code := strings.ToUpper(c.Param("code"))
	ruleset, err := h.countries.GetByCode(c.Request.Context(), code)
	if err != nil {
		if errors.Is(err, models.ErrUnknownCountry) {
			c.JSON(http.StatusNotFound, Response{Error: "unknown country: " + code})
			return
		}
		h.logger.Error("Failed to get country", zap.String("code", code), zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Error: "failed to get country"})
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: ruleset})
}

// CountryRequest is the body for a country ruleset update.
type CountryRequest struct {
	Name                string   `json:"name"`
	Currency            string   `json:"currency"`
	VATName             string   `json:"vat_name"`
	VATRate             float64  `json:"vat_rate"`
	DeductionPercentage float64  `json:"deduction_percentage"`
	Categories          []string `json:"categories"`
}

// UpdateCountry handles PUT /api/v1/countries/:code
func (h *Handlers) UpdateCountry(c *gin.Context) {
	var req CountryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: "invalid request body"})
		return
	}

	if req.VATRate < 0 || req.VATRate > 100 {
		c.JSON(http.StatusBadRequest, Response{Error: "vat_rate must be between 0 and 100"})
		return
	}
	if req.DeductionPercentage < 0 || req.DeductionPercentage > 100 {
		c.JSON(http.StatusBadRequest, Response{Error: "deduction_percentage must be between 0 and 100"})
		return
	}

	ruleset := &models.CountryRuleset{
		Code:                strings.ToUpper(c.Param("code")),
		Name:                req.Name,
		Currency:            req.Currency,
		VATName:             req.VATName,
		VATRate:             req.VATRate,
		DeductionPercentage: req.DeductionPercentage,
		Categories:          req.Categories,
	}
	if err := h.countries.Update(c.Request.Context(), ruleset); err != nil {
		if errors.Is(err, models.ErrUnknownCountry) {
			c.JSON(http.StatusNotFound, Response{Error: "unknown country: " + ruleset.Code})
			return
		}
		h.logger.Error("Failed to update country", zap.String("code", ruleset.Code), zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Error: "failed to update country"})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: ruleset})
}
