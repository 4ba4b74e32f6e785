package handler

import (
	"encoding/json"
	"net/http"
	"testing"

	"crm-service/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDashboardStats_ScopedAggregates(t *testing.T) {
	db := setupTestDB(t)

	mine := seedCustomer(t, db, 1, "Acme Industries")
	seedCustomer(t, db, 1, "Globex Corp")
	inactive := model.Customer{UserID: 1, CompanyName: "Dormant Ltd", Status: "inactive"}
	require.NoError(t, db.Create(&inactive).Error)

	seedDeal(t, db, 1, mine.ID, "Open deal", model.StageProposal, 5000000, 60)

	seedInvoice(t, db, 1, mine.ID, "INV-2026-0001", model.InvoiceStatusPaid, 165000, 165000)
	seedInvoice(t, db, 1, mine.ID, "INV-2026-0002", model.InvoiceStatusPaid, 35000, 35000)
	seedInvoice(t, db, 1, mine.ID, "INV-2026-0003", model.InvoiceStatusPending, 88000, 30000)

	// Another user's world must not bleed into the stats
	theirs := seedCustomer(t, db, 2, "Foreign Co")
	seedDeal(t, db, 2, theirs.ID, "Foreign deal", model.StageProposal, 9000000, 60)
	seedInvoice(t, db, 2, theirs.ID, "INV-2026-0004", model.InvoiceStatusPaid, 500000, 500000)

	c, rec := newAuthedContext(t, 1, http.MethodGet, "/api/dashboard/stats", "")
	require.NoError(t, GetDashboardStats(c))
	requireJSONStatus(t, rec, http.StatusOK)

	var stats DashboardStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(2), stats.ActiveCustomers)
	assert.Equal(t, int64(1), stats.ActiveDeals)
	assert.InDelta(t, 200000, stats.PaidRevenue, 0.01)
	assert.InDelta(t, 58000, stats.PendingAmount, 0.01)
}

func TestGetDashboardStats_EmptyWorld(t *testing.T) {
	setupTestDB(t)

	c, rec := newAuthedContext(t, 1, http.MethodGet, "/api/dashboard/stats", "")
	require.NoError(t, GetDashboardStats(c))
	requireJSONStatus(t, rec, http.StatusOK)

	var stats DashboardStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Zero(t, stats.ActiveCustomers)
	assert.Zero(t, stats.ActiveDeals)
	assert.Zero(t, stats.PaidRevenue)
	assert.Zero(t, stats.PendingAmount)
}
