/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication and converts them to
  and from ledger types. Decimals travel as strings so no precision is
  lost in JSON; dates travel as YYYY-MM-DD.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Catalog:
    SupplierDTO, CreateSupplierRequest
    SupplyDTO, SupplyRequest

  Ledger:
    PurchaseDTO, PurchaseRequest
    PeriodDTO, StockDTO
    PageDTO[T]

  Integrity:
    IntegrityDTO, ViolationDTO

  Scenarios:
    ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Structural rules (presence, lengths) are struct tags checked with
  go-playground/validator. Decimal and date parsing happens in toInput.
  Chain rules (carry-forward bound) belong to the ledger engine. All three
  report the same FieldError shape.

SEE ALSO:
  - handlers.go: Uses these types
  - ledger/errors.go: FieldError codes
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/supply-ledger/ledger"
)

// =============================================================================
// CATALOG
// =============================================================================

// SupplierDTO represents a supplier in API responses.
type SupplierDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Notes     string `json:"notes,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// CreateSupplierRequest is the request to create a supplier.
type CreateSupplierRequest struct {
	Name  string `json:"name" validate:"required,max=200"`
	Notes string `json:"notes" validate:"max=2000"`
}

// SupplyDTO represents a supply in API responses.
type SupplyDTO struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	DefaultSupplierID string `json:"default_supplier_id"`
	Unit              string `json:"unit"`
	CreatedAt         string `json:"created_at"`
	UpdatedAt         string `json:"updated_at"`
}

// SupplyRequest creates or updates a supply.
type SupplyRequest struct {
	Name              string `json:"name" validate:"required,max=200"`
	DefaultSupplierID string `json:"default_supplier_id" validate:"required"`
	Unit              string `json:"unit" validate:"required,max=32"`
}

func (r SupplyRequest) toInput() ledger.SupplyInput {
	return ledger.SupplyInput{
		Name:              r.Name,
		DefaultSupplierID: ledger.SupplierID(r.DefaultSupplierID),
		Unit:              r.Unit,
	}
}

// =============================================================================
// LEDGER
// =============================================================================

// PurchaseDTO represents a purchase in API responses.
type PurchaseDTO struct {
	ID             string `json:"id"`
	SupplyID       string `json:"supply_id"`
	SupplierID     string `json:"supplier_id"`
	PurchaseDate   string `json:"purchase_date"`
	Seq            int64  `json:"seq"`
	Quantity       string `json:"quantity"`
	Unit           string `json:"unit"`
	UnitPrice      string `json:"unit_price"`
	TotalPrice     string `json:"total_price"`
	Remaining      string `json:"remaining"`
	TotalAvailable string `json:"total_available"`
	Notes          string `json:"notes,omitempty"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

// PurchaseRequest adds or edits a purchase. supplier_id defaults to the
// supply's default supplier. remaining may be omitted only for the oldest
// purchase of a chain.
type PurchaseRequest struct {
	SupplierID   string  `json:"supplier_id"`
	PurchaseDate string  `json:"purchase_date" validate:"required"`
	Quantity     string  `json:"quantity" validate:"required"`
	Unit         string  `json:"unit" validate:"required,max=32"`
	UnitPrice    string  `json:"unit_price" validate:"required"`
	TotalPrice   *string `json:"total_price"`
	Remaining    *string `json:"remaining"`
	Notes        string  `json:"notes" validate:"max=2000"`
}

// toInput parses decimals and the date, collecting every failure.
func (r PurchaseRequest) toInput(supplyID ledger.SupplyID) (ledger.PurchaseInput, *ledger.ValidationError) {
	verr := &ledger.ValidationError{}
	in := ledger.PurchaseInput{
		SupplyID:   supplyID,
		SupplierID: ledger.SupplierID(r.SupplierID),
		Unit:       r.Unit,
		Notes:      r.Notes,
	}

	if r.PurchaseDate != "" {
		date, err := ledger.ParseDate(r.PurchaseDate)
		if err != nil {
			verr.Add(ledger.FieldError{
				Field:   "purchase_date",
				Code:    ledger.CodeInvalidDate,
				Message: "purchase date must be YYYY-MM-DD",
				Value:   r.PurchaseDate,
			})
		}
		in.Date = date
	}

	in.Quantity = parseDecimal(verr, "quantity", r.Quantity)
	in.UnitPrice = parseDecimal(verr, "unit_price", r.UnitPrice)
	if r.TotalPrice != nil {
		d := parseDecimal(verr, "total_price", *r.TotalPrice)
		in.TotalPrice = &d
	}
	if r.Remaining != nil {
		d := parseDecimal(verr, "remaining", *r.Remaining)
		in.Remaining = &d
	}
	return in, verr
}

func parseDecimal(verr *ledger.ValidationError, field, raw string) decimal.Decimal {
	if raw == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		verr.Add(ledger.FieldError{
			Field:   field,
			Code:    ledger.CodeNotNumeric,
			Message: field + " must be a decimal number",
			Value:   raw,
		})
		return decimal.Zero
	}
	return d
}

// PeriodDTO is one derived consumption period.
type PeriodDTO struct {
	StartDate         string `json:"start_date"`
	EndDate           string `json:"end_date"`
	Days              int    `json:"days"`
	PurchaseID        string `json:"purchase_id"`
	ClosingPurchaseID string `json:"closing_purchase_id"`
	TotalAvailable    string `json:"total_available"`
	Consumed          string `json:"consumed"`
	RemainingAtEnd    string `json:"remaining_at_end"`
	IsCurrent         bool   `json:"is_current"`
	IsConsistent      bool   `json:"is_consistent"`
}

// StockDTO is the current stock of a supply.
type StockDTO struct {
	SupplyID     string `json:"supply_id"`
	CurrentStock string `json:"current_stock"`
	Unit         string `json:"unit"`
	// AsOf is the date of the newest purchase, empty when there is none.
	AsOf      string `json:"as_of,omitempty"`
	Purchases int    `json:"purchases"`
}

// PageDTO wraps one page of a list.
type PageDTO[T any] struct {
	Items   []T  `json:"items"`
	Total   int  `json:"total"`
	Offset  int  `json:"offset"`
	Limit   int  `json:"limit"`
	HasMore bool `json:"has_more"`
}

// =============================================================================
// INTEGRITY
// =============================================================================

// ViolationDTO is one purchase breaking a chain invariant.
type ViolationDTO struct {
	Kind          string `json:"kind"`
	PurchaseID    string `json:"purchase_id"`
	PurchaseDate  string `json:"purchase_date"`
	Remaining     string `json:"remaining"`
	PredecessorID string `json:"predecessor_id,omitempty"`
	Bound         string `json:"bound"`
}

// IntegrityDTO is the integrity report of one chain.
type IntegrityDTO struct {
	SupplyID   string         `json:"supply_id"`
	OK         bool           `json:"ok"`
	Violations []ViolationDTO `json:"violations"`
}

// =============================================================================
// SCENARIOS AND ERRORS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category,omitempty"`
}

// LoadScenarioRequest selects the scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// FieldErrorDTO is one offending field of a 422 response.
type FieldErrorDTO struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Value   string `json:"value,omitempty"`
	Bound   string `json:"bound,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func toSupplierDTO(s ledger.Supplier) SupplierDTO {
	return SupplierDTO{
		ID:        string(s.ID),
		Name:      s.Name,
		Notes:     s.Notes,
		CreatedAt: formatTime(s.CreatedAt),
		UpdatedAt: formatTime(s.UpdatedAt),
	}
}

func toSupplyDTO(s ledger.Supply) SupplyDTO {
	return SupplyDTO{
		ID:                string(s.ID),
		Name:              s.Name,
		DefaultSupplierID: string(s.DefaultSupplierID),
		Unit:              s.Unit,
		CreatedAt:         formatTime(s.CreatedAt),
		UpdatedAt:         formatTime(s.UpdatedAt),
	}
}

func toPurchaseDTO(p ledger.Purchase) PurchaseDTO {
	return PurchaseDTO{
		ID:             string(p.ID),
		SupplyID:       string(p.SupplyID),
		SupplierID:     string(p.SupplierID),
		PurchaseDate:   p.Date.String(),
		Seq:            p.Seq,
		Quantity:       p.Quantity.String(),
		Unit:           p.Unit,
		UnitPrice:      p.UnitPrice.String(),
		TotalPrice:     p.TotalPrice.String(),
		Remaining:      p.Remaining.String(),
		TotalAvailable: ledger.TotalAvailable(p).String(),
		Notes:          p.Notes,
		CreatedAt:      formatTime(p.CreatedAt),
		UpdatedAt:      formatTime(p.UpdatedAt),
	}
}

func toPeriodDTO(p ledger.Period) PeriodDTO {
	return PeriodDTO{
		StartDate:         p.StartDate.String(),
		EndDate:           p.EndDate.String(),
		Days:              p.Days(),
		PurchaseID:        string(p.Purchase.ID),
		ClosingPurchaseID: string(p.Closing.ID),
		TotalAvailable:    p.TotalAvailable.String(),
		Consumed:          p.Consumed.String(),
		RemainingAtEnd:    p.RemainingAtEnd.String(),
		IsCurrent:         p.IsCurrent,
		IsConsistent:      p.IsConsistent(),
	}
}

func toViolationDTO(v ledger.Violation) ViolationDTO {
	dto := ViolationDTO{
		Kind:         string(v.Kind),
		PurchaseID:   string(v.Purchase.ID),
		PurchaseDate: v.Purchase.Date.String(),
		Remaining:    v.Purchase.Remaining.String(),
		Bound:        v.Bound.String(),
	}
	if v.Predecessor != nil {
		dto.PredecessorID = string(v.Predecessor.ID)
	}
	return dto
}

func toFieldErrorDTOs(fields []ledger.FieldError) []FieldErrorDTO {
	out := make([]FieldErrorDTO, len(fields))
	for i, f := range fields {
		out[i] = FieldErrorDTO{Field: f.Field, Code: f.Code, Message: f.Message, Value: f.Value}
		if f.Bound != nil {
			out[i].Bound = f.Bound.String()
		}
	}
	return out
}

func toPageDTO[T, D any](page ledger.Page[T], convert func(T) D) PageDTO[D] {
	items := make([]D, len(page.Items))
	for i, item := range page.Items {
		items[i] = convert(item)
	}
	return PageDTO[D]{
		Items:   items,
		Total:   page.Total,
		Offset:  page.Offset,
		Limit:   page.Limit,
		HasMore: page.HasMore(),
	}
}
