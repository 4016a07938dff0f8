/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with a small
	bakery's supply purchases. Every purchase goes through the engine, so
	scenario data satisfies the same validation as user input.

AVAILABLE SCENARIOS:

	bakery:        Flour, corn and oil with several weeks of purchases
	back-dated:    A purchase recorded late that became the oldest of its chain
	deletion-gap:  A deleted purchase leaves a successor above its new bound
	empty-catalog: Suppliers and supplies without purchases

HOW SCENARIOS WORK:
 1. Reset the store (clear all data)
 2. Create suppliers
 3. Create supplies
 4. Record purchases oldest first, carrying remaining forward

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "bakery"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler struct
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/warp/supply-ledger/ledger"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "bakery",
		Name:        "Bakery",
		Description: "Flour, corn and oil with weekly purchases and consistent carry-forward",
		Category:    "ledger",
	},
	{
		ID:          "back-dated",
		Name:        "Back-Dated Purchase",
		Description: "A forgotten invoice entered late becomes the oldest purchase of the chain",
		Category:    "ledger",
	},
	{
		ID:          "deletion-gap",
		Name:        "Deletion Gap",
		Description: "Deleting a purchase leaves its successor above the new bound (see integrity)",
		Category:    "integrity",
	},
	{
		ID:          "empty-catalog",
		Name:        "Empty Catalog",
		Description: "Suppliers and supplies with no purchases yet",
		Category:    "catalog",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the store and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}

	var load func(context.Context) error
	switch req.ScenarioID {
	case "bakery":
		load = h.loadBakeryScenario
	case "back-dated":
		load = h.loadBackDatedScenario
	case "deletion-gap":
		load = h.loadDeletionGapScenario
	case "empty-catalog":
		load = h.loadEmptyCatalogScenario
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	h.currentScenario = ""
	if err := h.Engine.Reset(ctx); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	if err := load(ctx); err != nil {
		h.writeEngineError(w, r, fmt.Errorf("load scenario %s: %w", req.ScenarioID, err))
		return
	}
	h.currentScenario = req.ScenarioID

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// bakeryCatalog creates the suppliers and supplies shared by scenarios.
type bakeryCatalog struct {
	mill, farm, press *ledger.Supplier
	flour, corn, oil  *ledger.Supply
}

func (h *Handler) createBakeryCatalog(ctx context.Context) (*bakeryCatalog, error) {
	var (
		c   bakeryCatalog
		err error
	)
	if c.mill, err = h.Engine.CreateSupplier(ctx, ledger.SupplierInput{Name: "Northern Mill", Notes: "Delivers Mondays"}); err != nil {
		return nil, err
	}
	if c.farm, err = h.Engine.CreateSupplier(ctx, ledger.SupplierInput{Name: "Valley Farms"}); err != nil {
		return nil, err
	}
	if c.press, err = h.Engine.CreateSupplier(ctx, ledger.SupplierInput{Name: "Golden Press", Notes: "Sunflower oil, 5 L cans"}); err != nil {
		return nil, err
	}

	if c.flour, err = h.Engine.CreateSupply(ctx, ledger.SupplyInput{Name: "Flour", DefaultSupplierID: c.mill.ID, Unit: "kg"}); err != nil {
		return nil, err
	}
	if c.corn, err = h.Engine.CreateSupply(ctx, ledger.SupplyInput{Name: "Corn", DefaultSupplierID: c.farm.ID, Unit: "kg"}); err != nil {
		return nil, err
	}
	if c.oil, err = h.Engine.CreateSupply(ctx, ledger.SupplyInput{Name: "Oil", DefaultSupplierID: c.press.ID, Unit: "L"}); err != nil {
		return nil, err
	}
	return &c, nil
}

// buy records one purchase. remaining "" means "not submitted".
func (h *Handler) buy(ctx context.Context, supply *ledger.Supply, date ledger.Date, qty, price, remaining string) (*ledger.Purchase, error) {
	in := ledger.PurchaseInput{
		SupplyID:  supply.ID,
		Date:      date,
		Quantity:  decimal.RequireFromString(qty),
		Unit:      supply.Unit,
		UnitPrice: decimal.RequireFromString(price),
	}
	if remaining != "" {
		rem := decimal.RequireFromString(remaining)
		in.Remaining = &rem
	}
	return h.Engine.AddPurchase(ctx, in)
}

type buyStep struct {
	daysAgo   int
	qty       string
	price     string
	remaining string
}

func (h *Handler) buyAll(ctx context.Context, supply *ledger.Supply, steps []buyStep) error {
	today := ledger.Today()
	for _, s := range steps {
		if _, err := h.buy(ctx, supply, today.AddDays(-s.daysAgo), s.qty, s.price, s.remaining); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadBakeryScenario(ctx context.Context) error {
	c, err := h.createBakeryCatalog(ctx)
	if err != nil {
		return err
	}

	// Flour: weekly 100 kg sacks, ~70 kg used per week
	if err := h.buyAll(ctx, c.flour, []buyStep{
		{35, "100", "0.85", ""},
		{28, "100", "0.85", "30"},
		{21, "100", "0.88", "55"},
		{14, "80", "0.90", "62.5"},
		{7, "100", "0.90", "40"},
	}); err != nil {
		return err
	}

	// Corn: bought every other week
	if err := h.buyAll(ctx, c.corn, []buyStep{
		{42, "50", "0.40", ""},
		{28, "50", "0.42", "12"},
		{14, "40", "0.42", "20"},
	}); err != nil {
		return err
	}

	// Oil: one purchase only, no period yet
	return h.buyAll(ctx, c.oil, []buyStep{
		{10, "20", "2.10", ""},
	})
}

func (h *Handler) loadBackDatedScenario(ctx context.Context) error {
	c, err := h.createBakeryCatalog(ctx)
	if err != nil {
		return err
	}

	if err := h.buyAll(ctx, c.flour, []buyStep{
		{21, "100", "0.85", ""},
		{14, "100", "0.85", "25"},
		{7, "100", "0.85", "40"},
	}); err != nil {
		return err
	}

	// A forgotten invoice from five weeks ago: it becomes the oldest purchase
	// (remaining forced to 0) and the former oldest keeps its stored 0.
	_, err = h.buy(ctx, c.flour, ledger.Today().AddDays(-35), "60", "0.80", "")
	return err
}

func (h *Handler) loadDeletionGapScenario(ctx context.Context) error {
	c, err := h.createBakeryCatalog(ctx)
	if err != nil {
		return err
	}

	today := ledger.Today()
	if _, err := h.buy(ctx, c.oil, today.AddDays(-30), "10", "2.00", ""); err != nil {
		return err
	}
	big, err := h.buy(ctx, c.oil, today.AddDays(-20), "40", "1.90", "4")
	if err != nil {
		return err
	}
	// 44 L were available after the big purchase; 30 L still left.
	if _, err := h.buy(ctx, c.oil, today.AddDays(-10), "10", "2.05", "30"); err != nil {
		return err
	}

	// Without the big purchase the last one claims 30 L left out of 10 L.
	return h.Engine.DeletePurchase(ctx, big.ID)
}

func (h *Handler) loadEmptyCatalogScenario(ctx context.Context) error {
	_, err := h.createBakeryCatalog(ctx)
	return err
}
