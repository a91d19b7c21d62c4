package handler

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/prn-tf/bodleian-archive/internal/auth"
	"github.com/prn-tf/bodleian-archive/internal/domain"
	"github.com/prn-tf/bodleian-archive/internal/extract"
	"github.com/prn-tf/bodleian-archive/internal/repository"
	"github.com/prn-tf/bodleian-archive/internal/service"
)

// maxUploadBytes bounds the in-memory portion of multipart parsing.
const maxUploadBytes = 64 << 20

// DocumentHandler handles document CRUD, lifecycle and search requests.
type DocumentHandler struct {
	documents *service.DocumentService
	audit     *service.AuditService
	extractor *extract.Client
	logger    zerolog.Logger
}

// NewDocumentHandler creates a new DocumentHandler. extractor may be nil,
// in which case uploads skip the metadata suggestion step.
func NewDocumentHandler(documents *service.DocumentService, audit *service.AuditService, extractor *extract.Client, logger zerolog.Logger) *DocumentHandler {
	return &DocumentHandler{
		documents: documents,
		audit:     audit,
		extractor: extractor,
		logger:    logger.With().Str("handler", "document").Logger(),
	}
}

// Upload handles POST /api/v1/documents. The request is multipart form
// data with the file in the "file" field and metadata in plain fields.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, domain.NewDomainError(domain.ErrInvalidReference, "malformed multipart body", ""))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, domain.NewDomainError(domain.ErrInvalidReference, "missing file field", ""))
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", service.ErrInternalError, err))
		return
	}

	input, err := h.parseUploadForm(r)
	if err != nil {
		writeError(w, err)
		return
	}
	input.OriginalFilename = header.Filename
	input.MimeType = header.Header.Get("Content-Type")
	input.Content = bytes.NewReader(content)
	input.Meta = requestMeta(r)

	// The extraction service is advisory: a failed or disabled extraction
	// never blocks the upload.
	if h.extractor != nil {
		suggestion, err := h.extractor.Extract(r.Context(), header.Filename, bytes.NewReader(content))
		if err != nil {
			h.logger.Warn().Err(err).Str("filename", header.Filename).Msg("metadata extraction failed")
		} else {
			input.Suggestion = suggestion
		}
	}

	doc, err := h.documents.Create(r.Context(), id.Actor, input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

// parseUploadForm reads the metadata fields of an upload request.
func (h *DocumentHandler) parseUploadForm(r *http.Request) (service.CreateDocumentInput, error) {
	var input service.CreateDocumentInput

	typeID, err := strconv.ParseInt(r.FormValue("type_id"), 10, 64)
	if err != nil {
		return input, domain.NewDomainError(domain.ErrInvalidReference, "type_id is required", "")
	}
	locationID, err := strconv.ParseInt(r.FormValue("location_id"), 10, 64)
	if err != nil {
		return input, domain.NewDomainError(domain.ErrInvalidReference, "location_id is required", "")
	}

	input.TypeID = typeID
	input.LocationID = locationID
	input.Description = r.FormValue("description")
	input.Tags = r.FormValue("tags")
	input.DocumentNumber = r.FormValue("document_number")
	input.Draft = r.FormValue("draft") == "true"

	if v := r.FormValue("reference_year"); v != "" {
		year, err := strconv.Atoi(v)
		if err != nil {
			return input, domain.NewDomainError(domain.ErrInvalidReference, "malformed reference_year", "")
		}
		input.ReferenceYear = &year
	}
	if v := r.FormValue("reference_month"); v != "" {
		month, err := strconv.Atoi(v)
		if err != nil || month < 1 || month > 12 {
			return input, domain.NewDomainError(domain.ErrInvalidReference, "malformed reference_month", "")
		}
		input.ReferenceMonth = &month
	}
	if v := r.FormValue("amount"); v != "" {
		amount, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return input, domain.NewDomainError(domain.ErrInvalidReference, "malformed amount", "")
		}
		input.Amount = &amount
	}
	if v := r.FormValue("document_date"); v != "" {
		date, err := time.Parse("2006-01-02", v)
		if err != nil {
			return input, domain.NewDomainError(domain.ErrInvalidReference, "malformed document_date", "")
		}
		input.DocumentDate = date
	}

	return input, nil
}

// Get handles GET /api/v1/documents/{documentID}.
func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	documentID, err := pathID(r, "documentID")
	if err != nil {
		writeError(w, err)
		return
	}

	doc, err := h.documents.Get(r.Context(), id.Actor, documentID)
	if err != nil {
		writeError(w, err)
		return
	}

	entry := domain.NewActivityLogEntry(domain.ActionView, "viewed "+doc.OriginalFilename)
	userID := id.Actor.UserID()
	entry.UserID = &userID
	entry.DocumentID = &doc.ID
	meta := requestMeta(r)
	entry.RemoteAddr = meta.RemoteAddr
	entry.UserAgent = meta.UserAgent
	h.audit.Record(r.Context(), entry)

	writeJSON(w, http.StatusOK, doc)
}

// Download handles GET /api/v1/documents/{documentID}/content.
func (h *DocumentHandler) Download(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	documentID, err := pathID(r, "documentID")
	if err != nil {
		writeError(w, err)
		return
	}

	doc, content, err := h.documents.Open(r.Context(), id.Actor, documentID, requestMeta(r))
	if err != nil {
		writeError(w, err)
		return
	}
	defer content.Close()

	if doc.MimeType != "" {
		w.Header().Set("Content-Type", doc.MimeType)
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	w.Header().Set("Content-Length", strconv.FormatInt(doc.SizeBytes, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.OriginalFilename))

	if _, err := io.Copy(w, content); err != nil {
		h.logger.Warn().Err(err).Int64("document_id", doc.ID).Msg("download aborted")
	}
}

type updateDocumentRequest struct {
	Description    *string `json:"description"`
	Tags           *string `json:"tags"`
	TypeID         *int64  `json:"type_id"`
	LocationID     *int64  `json:"location_id"`
	ReferenceYear  *int    `json:"reference_year"`
	ReferenceMonth *int    `json:"reference_month"`
	DocumentNumber *string `json:"document_number"`
	Amount         *int64  `json:"amount"`
	DocumentDate   *string `json:"document_date"`
}

// Update handles PATCH /api/v1/documents/{documentID}. Absent fields keep
// their current values.
func (h *DocumentHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	documentID, err := pathID(r, "documentID")
	if err != nil {
		writeError(w, err)
		return
	}

	var req updateDocumentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, domain.NewDomainError(domain.ErrInvalidReference, "malformed request body", ""))
		return
	}

	input := service.UpdateDocumentInput{
		DocumentID:     documentID,
		Description:    req.Description,
		Tags:           req.Tags,
		TypeID:         req.TypeID,
		LocationID:     req.LocationID,
		ReferenceYear:  req.ReferenceYear,
		ReferenceMonth: req.ReferenceMonth,
		DocumentNumber: req.DocumentNumber,
		Amount:         req.Amount,
		Meta:           requestMeta(r),
	}
	if req.DocumentDate != nil {
		date, err := time.Parse("2006-01-02", *req.DocumentDate)
		if err != nil {
			writeError(w, domain.NewDomainError(domain.ErrInvalidReference, "malformed document_date", ""))
			return
		}
		input.DocumentDate = &date
	}

	doc, err := h.documents.Update(r.Context(), id.Actor, input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

type transitionRequest struct {
	Status string `json:"status"`
}

// Transition handles POST /api/v1/documents/{documentID}/transition.
func (h *DocumentHandler) Transition(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	documentID, err := pathID(r, "documentID")
	if err != nil {
		writeError(w, err)
		return
	}

	var req transitionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, domain.NewDomainError(domain.ErrInvalidReference, "malformed request body", ""))
		return
	}
	target, ok := domain.ParseDocumentStatus(req.Status)
	if !ok {
		writeError(w, domain.NewDomainError(domain.ErrInvalidReference, "unknown lifecycle state", req.Status))
		return
	}

	doc, err := h.documents.Transition(r.Context(), id.Actor, documentID, target, requestMeta(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// Delete handles DELETE /api/v1/documents/{documentID}.
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	documentID, err := pathID(r, "documentID")
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.documents.Delete(r.Context(), id.Actor, documentID, requestMeta(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// Restore handles POST /api/v1/documents/{documentID}/restore.
func (h *DocumentHandler) Restore(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	documentID, err := pathID(r, "documentID")
	if err != nil {
		writeError(w, err)
		return
	}

	doc, err := h.documents.Restore(r.Context(), id.Actor, documentID, requestMeta(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// Search handles GET /api/v1/documents.
func (h *DocumentHandler) Search(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	query := r.URL.Query()

	input := service.SearchInput{
		Query:          query.Get("q"),
		IncludeDeleted: query.Get("include_deleted") == "true",
		Limit:          queryInt(query.Get("limit")),
		Offset:         queryInt(query.Get("offset")),
		TypeID:         queryInt64(query.Get("type_id")),
		LocationID:     queryInt64(query.Get("location_id")),
		CreatedBy:      queryInt64(query.Get("created_by")),
		YearFrom:       queryInt(query.Get("year_from")),
		YearTo:         queryInt(query.Get("year_to")),
		MonthFrom:      queryInt(query.Get("month_from")),
		MonthTo:        queryInt(query.Get("month_to")),
	}
	if v := query.Get("status"); v != "" {
		status, ok := domain.ParseDocumentStatus(v)
		if !ok {
			writeError(w, domain.NewDomainError(domain.ErrInvalidReference, "unknown lifecycle state", v))
			return
		}
		input.Status = status
	}

	result, err := h.documents.Search(r.Context(), id.Actor, input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// History handles GET /api/v1/documents/{documentID}/history.
func (h *DocumentHandler) History(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	documentID, err := pathID(r, "documentID")
	if err != nil {
		writeError(w, err)
		return
	}

	query := r.URL.Query()
	result, err := h.audit.ListByDocument(r.Context(), id.Actor, documentID, repository.ListOptions{
		Limit:  queryInt(query.Get("limit")),
		Offset: queryInt(query.Get("offset")),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// pathID parses a numeric chi URL parameter.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.NewDomainError(domain.ErrInvalidReference, "malformed "+name, "")
	}
	return id, nil
}

func queryInt(v string) int {
	n, _ := strconv.Atoi(v)
	return n
}

func queryInt64(v string) int64 {
	n, _ := strconv.ParseInt(v, 10, 64)
	return n
}
