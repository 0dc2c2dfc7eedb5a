package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/gestionequipos/activos-api/internal/middleware"
	"github.com/gestionequipos/activos-api/internal/models"
	"github.com/gestionequipos/activos-api/internal/service"
)

type fakeDashboardRepo struct {
	summary    *models.DashboardSummary
	err        error
	lastSiteID *string
}

func (f *fakeDashboardRepo) Summary(_ context.Context, siteID *string, _ time.Time) (*models.DashboardSummary, error) {
	f.lastSiteID = siteID
	return f.summary, f.err
}

type fakeUpcomingLister struct {
	records []models.MaintenanceRecord
}

func (f *fakeUpcomingLister) Upcoming(context.Context, *string, time.Time, int) ([]models.MaintenanceRecord, error) {
	return f.records, nil
}

func newDashboardTestHandler(repo *fakeDashboardRepo, lister *fakeUpcomingLister) *DashboardHandler {
	svc := service.NewDashboardService(repo, lister, nil, time.Minute, nil)
	return NewDashboardHandler(svc)
}

func TestDashboardHandlerSummaryRequiresScope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newDashboardTestHandler(&fakeDashboardRepo{}, &fakeUpcomingLister{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/dashboard/summary", nil)

	handler.Summary(c)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDashboardHandlerSummaryAdminSeesEverything(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &fakeDashboardRepo{summary: &models.DashboardSummary{
		Equipment:   models.EquipmentCounters{Total: 12, Available: 5},
		Peripherals: 30,
	}}
	handler := newDashboardTestHandler(repo, &fakeUpcomingLister{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/dashboard/summary", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1", Role: models.RoleAdmin})

	handler.Summary(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, repo.lastSiteID)

	var envelope responseEnvelope
	_ = json.Unmarshal(rec.Body.Bytes(), &envelope)
	assert.Equal(t, false, envelope.Meta["cache_hit"])
	equipment, ok := envelope.Data["equipment"].(map[string]interface{})
	assert.True(t, ok)
	assert.Equal(t, float64(12), equipment["total"])
}

func TestDashboardHandlerSummaryScopedToHomeSite(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &fakeDashboardRepo{summary: &models.DashboardSummary{}}
	handler := newDashboardTestHandler(repo, &fakeUpcomingLister{})

	siteID := "site-1"
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/dashboard/summary", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-2", Role: models.RoleUser, SiteID: &siteID})

	handler.Summary(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	if assert.NotNil(t, repo.lastSiteID) {
		assert.Equal(t, "site-1", *repo.lastSiteID)
	}
}

func TestDashboardHandlerUpcomingMaintenance(t *testing.T) {
	gin.SetMode(gin.TestMode)
	lister := &fakeUpcomingLister{records: []models.MaintenanceRecord{{ID: "mnt-1"}}}
	handler := newDashboardTestHandler(&fakeDashboardRepo{}, lister)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/dashboard/upcoming-maintenance?days=15", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1", Role: models.RoleAdmin})

	handler.UpcomingMaintenance(c)

	assert.Equal(t, http.StatusOK, rec.Code)
}

type responseEnvelope struct {
	Data map[string]interface{} `json:"data"`
	Meta map[string]interface{} `json:"meta"`
}
