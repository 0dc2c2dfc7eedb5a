package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestionequipos/activos-api/internal/authz"
	"github.com/gestionequipos/activos-api/internal/models"
	"github.com/gestionequipos/activos-api/pkg/config"
	appErrors "github.com/gestionequipos/activos-api/pkg/errors"
	"github.com/gestionequipos/activos-api/pkg/export"
	"github.com/gestionequipos/activos-api/pkg/storage"
)

type clearanceRepoMock struct {
	inserted []models.Clearance
}

func (m *clearanceRepoMock) Insert(ctx context.Context, clearance *models.Clearance) error {
	m.inserted = append(m.inserted, *clearance)
	return nil
}

func (m *clearanceRepoMock) FindByID(ctx context.Context, id string) (*models.Clearance, error) {
	for i := range m.inserted {
		if m.inserted[i].ID == id {
			return &m.inserted[i], nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *clearanceRepoMock) List(ctx context.Context, filter models.ClearanceFilter) ([]models.Clearance, int, error) {
	return m.inserted, len(m.inserted), nil
}

type clearanceEmployeeMock struct {
	employee *models.Employee
}

func (m *clearanceEmployeeMock) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Employee, error) {
	if m.employee == nil || m.employee.ID != id {
		return nil, sql.ErrNoRows
	}
	return m.employee, nil
}

type openCounterMock struct {
	count int
}

func (m *openCounterMock) CountOpenByEmployee(ctx context.Context, employeeID string) (int, error) {
	return m.count, nil
}

type rendererMock struct {
	rendered int
}

func (m *rendererMock) RenderDocument(title string, sections []export.DocumentSection) ([]byte, error) {
	m.rendered++
	return []byte("%PDF-fake"), nil
}

type clearanceFixture struct {
	service  *ClearanceService
	repo     *clearanceRepoMock
	counter  *openCounterMock
	renderer *rendererMock
	store    *evidenceStoreMock
}

func newClearanceFixture(t *testing.T) *clearanceFixture {
	t.Helper()
	site := "site-1"
	repo := &clearanceRepoMock{}
	counter := &openCounterMock{}
	renderer := &rendererMock{}
	store := &evidenceStoreMock{}
	employees := &clearanceEmployeeMock{employee: &models.Employee{
		ID:       "emp-1",
		Document: "1020304050",
		FullName: "Ana Gomez",
		SiteID:   &site,
		Active:   true,
	}}
	signer := storage.NewSignedURLSigner("test-secret", 0)
	service := NewClearanceService(repo, employees, counter, renderer, store, signer, config.ClearanceConfig{}, nil)
	return &clearanceFixture{service: service, repo: repo, counter: counter, renderer: renderer, store: store}
}

func TestClearanceIssuedWhenNothingPending(t *testing.T) {
	f := newClearanceFixture(t)

	clearance, err := f.service.Request(context.Background(), adminActor(), "emp-1")
	require.NoError(t, err)
	assert.Equal(t, models.ClearanceIssued, clearance.Status)
	assert.Equal(t, 0, clearance.PendingAssets)
	require.NotNil(t, clearance.DocumentPath)
	assert.Equal(t, 1, f.renderer.rendered)
	require.Len(t, f.store.saved, 1)
	require.Len(t, f.repo.inserted, 1)
}

func TestClearanceRejectedWithPendingAssets(t *testing.T) {
	f := newClearanceFixture(t)
	f.counter.count = 2

	clearance, err := f.service.Request(context.Background(), adminActor(), "emp-1")
	require.NoError(t, err)
	assert.Equal(t, models.ClearanceRejected, clearance.Status)
	assert.Equal(t, 2, clearance.PendingAssets)
	assert.Nil(t, clearance.DocumentPath)
	assert.Zero(t, f.renderer.rendered, "a rejection must not produce a certificate")
	require.Len(t, f.repo.inserted, 1, "rejections are stored too")
}

func TestClearanceRequestDeniedOutsideScope(t *testing.T) {
	f := newClearanceFixture(t)
	other := "site-2"
	actor := authz.Actor{UserID: "user-1", FullName: "Usuario Sede 2", SiteID: &other}

	_, err := f.service.Request(context.Background(), actor, "emp-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestClearanceDocumentURLOnlyForIssued(t *testing.T) {
	f := newClearanceFixture(t)
	f.counter.count = 1

	clearance, err := f.service.Request(context.Background(), adminActor(), "emp-1")
	require.NoError(t, err)

	_, _, err = f.service.DocumentURL(context.Background(), adminActor(), clearance.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestClearanceDocumentURLSignsPath(t *testing.T) {
	f := newClearanceFixture(t)

	clearance, err := f.service.Request(context.Background(), adminActor(), "emp-1")
	require.NoError(t, err)

	token, expiresAt, err := f.service.DocumentURL(context.Background(), adminActor(), clearance.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.False(t, expiresAt.IsZero())
}
