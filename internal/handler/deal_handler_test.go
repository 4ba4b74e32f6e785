package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"crm-service/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedDeal(t *testing.T, db *gorm.DB, userID, customerID uint, title, stage string, amount float64, probability int) model.Deal {
	t.Helper()
	deal := model.Deal{
		UserID:      userID,
		CustomerID:  customerID,
		Title:       title,
		Amount:      &amount,
		Stage:       stage,
		Probability: probability,
		Status:      "active",
	}
	require.NoError(t, db.Create(&deal).Error)
	return deal
}

func TestCreateDeal_StageDefaultProbability(t *testing.T) {
	db := setupTestDB(t)
	customer := seedCustomer(t, db, 1, "Acme Industries")

	body := fmt.Sprintf(`{"customer_id":%d,"title":"New system rollout","stage":"proposal"}`, customer.ID)
	c, rec := newAuthedContext(t, 1, http.MethodPost, "/api/deals", body)
	require.NoError(t, CreateDeal(c))
	requireJSONStatus(t, rec, http.StatusCreated)

	var deal model.Deal
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &deal))
	assert.Equal(t, 60, deal.Probability)
	assert.Equal(t, model.StageProposal, deal.Stage)
	assert.Equal(t, uint(1), deal.UserID)
}

func TestCreateDeal_ExplicitProbabilityClamped(t *testing.T) {
	db := setupTestDB(t)
	customer := seedCustomer(t, db, 1, "Acme Industries")

	body := fmt.Sprintf(`{"customer_id":%d,"title":"Overconfident","stage":"proposal","probability":150}`, customer.ID)
	c, rec := newAuthedContext(t, 1, http.MethodPost, "/api/deals", body)
	require.NoError(t, CreateDeal(c))
	requireJSONStatus(t, rec, http.StatusCreated)

	var deal model.Deal
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &deal))
	assert.Equal(t, 100, deal.Probability)
}

func TestCreateDeal_UnknownStageRejected(t *testing.T) {
	db := setupTestDB(t)
	customer := seedCustomer(t, db, 1, "Acme Industries")

	body := fmt.Sprintf(`{"customer_id":%d,"title":"Bad stage","stage":"daydreaming"}`, customer.ID)
	c, rec := newAuthedContext(t, 1, http.MethodPost, "/api/deals", body)
	require.NoError(t, CreateDeal(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateDeal_ForeignCustomerIsNotFound(t *testing.T) {
	db := setupTestDB(t)
	foreign := seedCustomer(t, db, 2, "Belongs To B")

	body := fmt.Sprintf(`{"customer_id":%d,"title":"Poaching attempt"}`, foreign.ID)
	c, rec := newAuthedContext(t, 1, http.MethodPost, "/api/deals", body)
	require.NoError(t, CreateDeal(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var count int64
	db.Model(&model.Deal{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestUpdateDeal_StageChangeReappliesDefault(t *testing.T) {
	db := setupTestDB(t)
	customer := seedCustomer(t, db, 1, "Acme Industries")
	deal := seedDeal(t, db, 1, customer.ID, "Rollout", model.StageProspecting, 5000000, 30)

	c, rec := newAuthedContext(t, 1, http.MethodPut, "/", `{"stage":"negotiation"}`)
	setPathID(c, "/api/deals/:id", deal.ID)
	require.NoError(t, UpdateDeal(c))
	requireJSONStatus(t, rec, http.StatusOK)

	var stored model.Deal
	require.NoError(t, db.First(&stored, deal.ID).Error)
	assert.Equal(t, model.StageNegotiation, stored.Stage)
	assert.Equal(t, 75, stored.Probability)
}

func TestUpdateDeal_ExplicitProbabilityWinsOverStageDefault(t *testing.T) {
	db := setupTestDB(t)
	customer := seedCustomer(t, db, 1, "Acme Industries")
	deal := seedDeal(t, db, 1, customer.ID, "Rollout", model.StageProspecting, 5000000, 30)

	c, rec := newAuthedContext(t, 1, http.MethodPut, "/", `{"stage":"negotiation","probability":50}`)
	setPathID(c, "/api/deals/:id", deal.ID)
	require.NoError(t, UpdateDeal(c))
	requireJSONStatus(t, rec, http.StatusOK)

	var stored model.Deal
	require.NoError(t, db.First(&stored, deal.ID).Error)
	assert.Equal(t, 50, stored.Probability)
}

func TestUpdateDeal_CrossOwnerIsNotFound(t *testing.T) {
	db := setupTestDB(t)
	customer := seedCustomer(t, db, 2, "Belongs To B")
	deal := seedDeal(t, db, 2, customer.ID, "Their deal", model.StageProposal, 1000, 60)

	c, rec := newAuthedContext(t, 1, http.MethodPut, "/", `{"title":"Hijacked"}`)
	setPathID(c, "/api/deals/:id", deal.ID)
	require.NoError(t, UpdateDeal(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var stored model.Deal
	require.NoError(t, db.First(&stored, deal.ID).Error)
	assert.Equal(t, "Their deal", stored.Title)
}

func TestDeleteDeal_OwnerScope(t *testing.T) {
	db := setupTestDB(t)
	customer := seedCustomer(t, db, 2, "Belongs To B")
	deal := seedDeal(t, db, 2, customer.ID, "Their deal", model.StageProposal, 1000, 60)

	c, rec := newAuthedContext(t, 1, http.MethodDelete, "/", "")
	setPathID(c, "/api/deals/:id", deal.ID)
	require.NoError(t, DeleteDeal(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	c, rec = newAuthedContext(t, 2, http.MethodDelete, "/", "")
	setPathID(c, "/api/deals/:id", deal.ID)
	require.NoError(t, DeleteDeal(c))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetDealStats_WeightedPipeline(t *testing.T) {
	db := setupTestDB(t)
	customer := seedCustomer(t, db, 1, "Acme Industries")

	seedDeal(t, db, 1, customer.ID, "Open A", model.StageProposal, 5000000, 60)
	seedDeal(t, db, 1, customer.ID, "Open B", model.StageNegotiation, 8000000, 75)
	// Closed deals stay out of the pipeline numbers
	seedDeal(t, db, 1, customer.ID, "Won", model.StageWon, 2800000, 100)
	seedDeal(t, db, 1, customer.ID, "Lost", model.StageLost, 900000, 0)
	// Another user's deal must not leak in
	other := seedCustomer(t, db, 2, "Globex Corp")
	seedDeal(t, db, 2, other.ID, "Foreign", model.StageProposal, 7000000, 60)

	c, rec := newAuthedContext(t, 1, http.MethodGet, "/api/deals/stats", "")
	require.NoError(t, GetDealStats(c))
	requireJSONStatus(t, rec, http.StatusOK)

	var stats DealStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.OpenCount)
	assert.InDelta(t, 13000000, stats.TotalAmount, 0.01)
	// 5M*0.60 + 8M*0.75 = 9M
	assert.InDelta(t, 9000000, stats.WeightedAmount, 0.01)
	assert.InDelta(t, 67.5, stats.AverageProbability, 0.01)
}

func TestListDeals_StageFilter(t *testing.T) {
	db := setupTestDB(t)
	customer := seedCustomer(t, db, 1, "Acme Industries")
	seedDeal(t, db, 1, customer.ID, "Proposal deal", model.StageProposal, 100, 60)
	seedDeal(t, db, 1, customer.ID, "Closing deal", model.StageClosing, 100, 90)

	c, rec := newAuthedContext(t, 1, http.MethodGet, "/api/deals?stage=closing", "")
	require.NoError(t, ListDeals(c))
	requireJSONStatus(t, rec, http.StatusOK)

	var resp struct {
		Deals []model.Deal `json:"deals"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Deals, 1)
	assert.Equal(t, "Closing deal", resp.Deals[0].Title)
}
