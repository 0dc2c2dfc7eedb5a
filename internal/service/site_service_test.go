package service

import (
	"context"
	"database/sql"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestionequipos/activos-api/internal/models"
	appErrors "github.com/gestionequipos/activos-api/pkg/errors"
)

type siteRepoMock struct {
	site        *models.Site
	deactivated []string
}

func (m *siteRepoMock) List(ctx context.Context, filter models.SiteFilter) ([]models.Site, int, error) {
	if m.site == nil {
		return []models.Site{}, 0, nil
	}
	return []models.Site{*m.site}, 1, nil
}

func (m *siteRepoMock) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Site, error) {
	if m.site == nil || m.site.ID != id {
		return nil, sql.ErrNoRows
	}
	clone := *m.site
	return &clone, nil
}

func (m *siteRepoMock) Create(ctx context.Context, exec sqlx.ExtContext, site *models.Site) error {
	site.ID = "site-new"
	stored := *site
	m.site = &stored
	return nil
}

func (m *siteRepoMock) Update(ctx context.Context, exec sqlx.ExtContext, site *models.Site) error {
	stored := *site
	m.site = &stored
	return nil
}

func (m *siteRepoMock) Deactivate(ctx context.Context, exec sqlx.ExtContext, id string) error {
	m.deactivated = append(m.deactivated, id)
	return nil
}

func newSiteTestService(t *testing.T) (*SiteService, *siteRepoMock, *changeWriterMock, sqlmock.Sqlmock) {
	tx, mock := newTxProviderMock(t)
	repo := &siteRepoMock{}
	changes := &changeWriterMock{}
	svc := NewSiteService(tx, repo, changes, nil, nil)
	mock.ExpectBegin()
	mock.ExpectCommit()
	return svc, repo, changes, mock
}

func TestSiteCreateWritesChangeRecords(t *testing.T) {
	svc, _, changes, mock := newSiteTestService(t)

	city := "Bogota"
	site, err := svc.Create(context.Background(), adminActor(), CreateSiteRequest{Name: "Sede Norte", City: &city})
	require.NoError(t, err)
	assert.Equal(t, "site-new", site.ID)
	assert.True(t, site.Active)

	require.Len(t, changes.batches, 1)
	records := changes.batches[0]
	assert.Equal(t, models.ChangeCreated, records[0].Action)
	assert.Equal(t, "SITE", records[0].EntityType)
	assert.Equal(t, "Sede Norte", records[0].EntityLabel)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSiteUpdateDiffsAuditedFields(t *testing.T) {
	svc, repo, changes, mock := newSiteTestService(t)
	repo.site = &models.Site{ID: "site-1", Name: "Sede Norte", Active: true}

	name := "Sede Norte Renovada"
	site, err := svc.Update(context.Background(), adminActor(), "site-1", UpdateSiteRequest{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, site.Name)

	require.Len(t, changes.batches, 1)
	records := changes.batches[0]
	require.Len(t, records, 1)
	assert.Equal(t, models.ChangeUpdated, records[0].Action)
	assert.Equal(t, "name", records[0].FieldName)
	assert.Equal(t, "Sede Norte", *records[0].OldValue)
	assert.Equal(t, name, *records[0].NewValue)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSiteDeactivateWritesDeletionRecord(t *testing.T) {
	svc, repo, changes, mock := newSiteTestService(t)
	repo.site = &models.Site{ID: "site-1", Name: "Sede Norte", Active: true}

	err := svc.Deactivate(context.Background(), adminActor(), "site-1")
	require.NoError(t, err)
	require.Len(t, repo.deactivated, 1)

	require.Len(t, changes.batches, 1)
	records := changes.batches[0]
	require.Len(t, records, 1)
	assert.Equal(t, models.ChangeDeleted, records[0].Action)
	assert.Contains(t, *records[0].OldValue, "Sede Norte")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSiteUpdateNotFound(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	svc := NewSiteService(tx, &siteRepoMock{}, &changeWriterMock{}, nil, nil)
	mock.ExpectBegin()
	mock.ExpectRollback()

	name := "Sede Fantasma"
	_, err := svc.Update(context.Background(), adminActor(), "site-404", UpdateSiteRequest{Name: &name})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
