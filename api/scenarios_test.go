package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarios_LoadEveryScenario(t *testing.T) {
	router := newTestRouter(t)

	for _, s := range scenarios {
		t.Run(s.ID, func(t *testing.T) {
			rec := do(t, router, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: s.ID})
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			rec = do(t, router, http.MethodGet, "/api/scenarios/current", nil)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, s.ID, decodeBody[ScenarioDTO](t, rec).ID)

			rec = do(t, router, http.MethodGet, "/api/supplies", nil)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Len(t, decodeBody[[]SupplyDTO](t, rec), 3, "load resets before seeding")
		})
	}
}

func TestScenarios_Bakery_ChainsAreConsistent(t *testing.T) {
	router := newTestRouter(t)
	rec := do(t, router, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "bakery"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodGet, "/api/supplies", nil)
	for _, supply := range decodeBody[[]SupplyDTO](t, rec) {
		rec = do(t, router, http.MethodGet, "/api/supplies/"+supply.ID+"/integrity", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, decodeBody[IntegrityDTO](t, rec).OK, supply.Name)
	}
}

func TestScenarios_DeletionGap_ShowsViolation(t *testing.T) {
	router := newTestRouter(t)
	rec := do(t, router, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "deletion-gap"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodGet, "/api/supplies", nil)
	var found bool
	for _, supply := range decodeBody[[]SupplyDTO](t, rec) {
		if supply.Name != "Oil" {
			continue
		}
		found = true
		rec = do(t, router, http.MethodGet, "/api/supplies/"+supply.ID+"/integrity", nil)
		report := decodeBody[IntegrityDTO](t, rec)
		require.Len(t, report.Violations, 1)
		assert.Equal(t, "10", report.Violations[0].Bound)
	}
	assert.True(t, found)
}

func TestScenarios_Unknown(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
