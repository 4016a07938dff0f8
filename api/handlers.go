/*
handlers.go - HTTP API handlers for the supply purchase ledger

PURPOSE:
  Exposes the ledger engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates every rule to ledger.Engine.

ENDPOINTS:
  Suppliers:
    GET    /api/suppliers                  List suppliers
    POST   /api/suppliers                  Create supplier
    GET    /api/suppliers/{id}             Get supplier

  Supplies:
    GET    /api/supplies                   List supplies
    POST   /api/supplies                   Create supply
    GET    /api/supplies/{id}              Get supply
    PUT    /api/supplies/{id}              Rename / change default supplier or unit
    DELETE /api/supplies/{id}              Delete supply and its purchases
    GET    /api/supplies/{id}/stock        Current stock
    GET    /api/supplies/{id}/purchases    Purchase history, newest first (offset/limit)
    POST   /api/supplies/{id}/purchases    Record a purchase
    GET    /api/supplies/{id}/periods      Consumption periods, newest first (offset/limit)
    GET    /api/supplies/{id}/integrity    Stored invariant violations

  Purchases:
    GET    /api/purchases/{id}             Get purchase
    PUT    /api/purchases/{id}             Edit purchase (anywhere in the chain)
    DELETE /api/purchases/{id}             Delete purchase (no neighbour recheck)

  Scenarios:
    GET    /api/scenarios                  List demo scenarios
    POST   /api/scenarios/load             Load a demo scenario

REQUEST FLOW:
  1. Decode JSON (400 on malformed body)
  2. Check struct tags, parse decimals and dates (422)
  3. Call the engine
  4. Serialize response

ERROR HANDLING:
  - 400: Malformed JSON
  - 404: Supply, supplier or purchase not found
  - 409: Chain lock not obtained, retry
  - 422: Validation errors, with the field list (and bound) in details
  - 500: Storage failures (logged, details not exposed)

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"github.com/warp/supply-ledger/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine *ledger.Engine

	log      *logrus.Logger
	validate *validator.Validate

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler around the engine.
func NewHandler(engine *ledger.Engine, log *logrus.Logger) *Handler {
	return &Handler{
		Engine:   engine,
		log:      log,
		validate: newValidator(),
	}
}

// =============================================================================
// SUPPLIER HANDLERS
// =============================================================================

// ListSuppliers returns all suppliers.
func (h *Handler) ListSuppliers(w http.ResponseWriter, r *http.Request) {
	suppliers, err := h.Engine.ListSuppliers(r.Context())
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	dtos := make([]SupplierDTO, len(suppliers))
	for i, s := range suppliers {
		dtos[i] = toSupplierDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetSupplier returns a single supplier.
func (h *Handler) GetSupplier(w http.ResponseWriter, r *http.Request) {
	id := ledger.SupplierID(chi.URLParam(r, "id"))

	s, err := h.Engine.GetSupplier(r.Context(), id)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSupplierDTO(*s))
}

// CreateSupplier creates a new supplier.
func (h *Handler) CreateSupplier(w http.ResponseWriter, r *http.Request) {
	var req CreateSupplierRequest
	if !h.decode(w, r, &req) {
		return
	}

	s, err := h.Engine.CreateSupplier(r.Context(), ledger.SupplierInput{Name: req.Name, Notes: req.Notes})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSupplierDTO(*s))
}

// =============================================================================
// SUPPLY HANDLERS
// =============================================================================

// ListSupplies returns all supplies.
func (h *Handler) ListSupplies(w http.ResponseWriter, r *http.Request) {
	supplies, err := h.Engine.ListSupplies(r.Context())
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	dtos := make([]SupplyDTO, len(supplies))
	for i, s := range supplies {
		dtos[i] = toSupplyDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetSupply returns a single supply.
func (h *Handler) GetSupply(w http.ResponseWriter, r *http.Request) {
	s, err := h.Engine.GetSupply(r.Context(), supplyParam(r))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSupplyDTO(*s))
}

// CreateSupply registers a supply with an empty purchase chain.
func (h *Handler) CreateSupply(w http.ResponseWriter, r *http.Request) {
	var req SupplyRequest
	if !h.decode(w, r, &req) {
		return
	}

	s, err := h.Engine.CreateSupply(r.Context(), req.toInput())
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSupplyDTO(*s))
}

// UpdateSupply replaces name, default supplier and unit.
func (h *Handler) UpdateSupply(w http.ResponseWriter, r *http.Request) {
	var req SupplyRequest
	if !h.decode(w, r, &req) {
		return
	}

	s, err := h.Engine.UpdateSupply(r.Context(), supplyParam(r), req.toInput())
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSupplyDTO(*s))
}

// DeleteSupply deletes the supply and every purchase of it.
func (h *Handler) DeleteSupply(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.DeleteSupply(r.Context(), supplyParam(r)); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetStock returns the current stock of a supply.
func (h *Handler) GetStock(w http.ResponseWriter, r *http.Request) {
	level, err := h.Engine.Stock(r.Context(), supplyParam(r))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	dto := StockDTO{
		SupplyID:     string(level.Supply.ID),
		CurrentStock: level.Quantity.String(),
		Unit:         level.Supply.Unit,
		Purchases:    level.Purchases,
	}
	if !level.AsOf.IsZero() {
		dto.AsOf = level.AsOf.String()
	}
	writeJSON(w, http.StatusOK, dto)
}

// GetIntegrity reports purchases whose stored remaining breaks the chain
// invariants, e.g. after a delete.
func (h *Handler) GetIntegrity(w http.ResponseWriter, r *http.Request) {
	id := supplyParam(r)

	violations, err := h.Engine.CheckChain(r.Context(), id)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	dto := IntegrityDTO{SupplyID: string(id), OK: len(violations) == 0, Violations: []ViolationDTO{}}
	for _, v := range violations {
		dto.Violations = append(dto.Violations, toViolationDTO(v))
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// PURCHASE HANDLERS
// =============================================================================

// ListPurchases returns one page of purchase history, newest first.
func (h *Handler) ListPurchases(w http.ResponseWriter, r *http.Request) {
	offset, limit, ok := h.pageParams(w, r)
	if !ok {
		return
	}

	page, err := h.Engine.ListPurchases(r.Context(), supplyParam(r), offset, limit)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPageDTO(page, toPurchaseDTO))
}

// ListPeriods returns one page of derived consumption periods, newest first.
func (h *Handler) ListPeriods(w http.ResponseWriter, r *http.Request) {
	offset, limit, ok := h.pageParams(w, r)
	if !ok {
		return
	}

	page, err := h.Engine.ListPeriods(r.Context(), supplyParam(r), offset, limit)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPageDTO(page, toPeriodDTO))
}

// CreatePurchase records a purchase for the supply in the URL.
func (h *Handler) CreatePurchase(w http.ResponseWriter, r *http.Request) {
	var req PurchaseRequest
	if !h.decode(w, r, &req) {
		return
	}
	in, verr := req.toInput(supplyParam(r))
	if err := verr.OrNil(); err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	p, err := h.Engine.AddPurchase(r.Context(), in)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPurchaseDTO(*p))
}

// GetPurchase returns a single purchase.
func (h *Handler) GetPurchase(w http.ResponseWriter, r *http.Request) {
	p, err := h.Engine.GetPurchase(r.Context(), purchaseParam(r))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPurchaseDTO(*p))
}

// UpdatePurchase edits a purchase. The purchase stays in its supply.
func (h *Handler) UpdatePurchase(w http.ResponseWriter, r *http.Request) {
	var req PurchaseRequest
	if !h.decode(w, r, &req) {
		return
	}
	// supply comes from the stored purchase
	in, verr := req.toInput("")
	if err := verr.OrNil(); err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	p, err := h.Engine.UpdatePurchase(r.Context(), purchaseParam(r), in)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPurchaseDTO(*p))
}

// DeletePurchase removes a purchase. Neighbours are not revalidated; see
// GET /api/supplies/{id}/integrity.
func (h *Handler) DeletePurchase(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.DeletePurchase(r.Context(), purchaseParam(r)); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// HELPERS
// =============================================================================

func supplyParam(r *http.Request) ledger.SupplyID {
	return ledger.SupplyID(chi.URLParam(r, "id"))
}

func purchaseParam(r *http.Request) ledger.PurchaseID {
	return ledger.PurchaseID(chi.URLParam(r, "id"))
}

// decode reads a JSON body into dst and checks its struct tags. It writes
// the error response and returns false on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if verr := checkStruct(h.validate, dst); verr != nil {
		h.writeEngineError(w, r, verr)
		return false
	}
	return true
}

// pageParams parses offset/limit. Missing values mean 0 and the default
// limit; range clamping is the engine's job.
func (h *Handler) pageParams(w http.ResponseWriter, r *http.Request) (int, int, bool) {
	verr := &ledger.ValidationError{}
	parse := func(name string) int {
		raw := r.URL.Query().Get(name)
		if raw == "" {
			return 0
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			verr.Add(ledger.FieldError{
				Field:   name,
				Code:    ledger.CodeNotNumeric,
				Message: name + " must be an integer",
				Value:   raw,
			})
		}
		return n
	}

	offset, limit := parse("offset"), parse("limit")
	if err := verr.OrNil(); err != nil {
		h.writeEngineError(w, r, err)
		return 0, 0, false
	}
	return offset, limit, true
}

// writeEngineError maps ledger errors to HTTP statuses.
func (h *Handler) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		vErr  *ledger.ValidationError
		nfErr *ledger.NotFoundError
	)
	switch {
	case errors.As(err, &vErr):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "Validation failed",
			Code:    "validation_failed",
			Details: toFieldErrorDTOs(vErr.Fields),
		})
	case errors.As(err, &nfErr):
		writeJSON(w, http.StatusNotFound, ErrorResponse{
			Error: nfErr.Error(),
			Code:  nfErr.Resource + "_not_found",
		})
	case errors.Is(err, ledger.ErrLockNotObtained):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error: "Supply is being modified, retry",
			Code:  "chain_locked",
		})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{
			Error: "Request cancelled",
			Code:  "cancelled",
		})
	default:
		h.log.WithFields(logrus.Fields{
			"module":     "api",
			"path":       r.URL.Path,
			"request_id": middleware.GetReqID(r.Context()),
		}).Error(err.Error())
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error: "Internal error",
			Code:  "storage_failure",
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
