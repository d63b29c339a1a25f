package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/mailleopard-backend/internal/model"
	"github.com/unclebandit/mailleopard-backend/internal/repository/memory"
	"github.com/unclebandit/mailleopard-backend/internal/service"
)

func TestPagination(t *testing.T) {
	store := memory.New()
	for i := 0; i < 5; i++ {
		store.AddCampaign(model.Campaign{Name: "C", AudienceType: model.AudienceAllClients})
	}
	svc := &service.CampaignService{CampaignRepo: store.Campaigns()}

	pageSize := 2
	page1, pagination1, err := svc.ListCampaigns(context.Background(), 1, pageSize, "", "")
	require.NoError(t, err)
	page2, _, err := svc.ListCampaigns(context.Background(), 2, pageSize, "", "")
	require.NoError(t, err)
	page3, _, err := svc.ListCampaigns(context.Background(), 3, pageSize, "", "")
	require.NoError(t, err)

	assert.Equal(t, 5, pagination1["total_count"])
	assert.Equal(t, 3, pagination1["total_pages"])
	require.Len(t, page1, 2)
	require.Len(t, page2, 2)
	require.Len(t, page3, 1)

	assert.Greater(t, page1[0].ID, page1[1].ID, "newest first")
	assert.Greater(t, page1[1].ID, page2[0].ID, "pages do not overlap")
}

func TestPaginationClampsPageSize(t *testing.T) {
	store := memory.New()
	store.AddCampaign(model.Campaign{Status: model.CampaignStatusSent})
	store.AddCampaign(model.Campaign{})
	svc := &service.CampaignService{CampaignRepo: store.Campaigns()}

	_, pagination, err := svc.ListCampaigns(context.Background(), 0, 1000, "", model.CampaignStatusSent)
	require.NoError(t, err)
	assert.Equal(t, 1, pagination["page"])
	assert.Equal(t, 100, pagination["page_size"])
	assert.Equal(t, 1, pagination["total_count"])

	_, pagination, err = svc.ListCampaigns(context.Background(), 1, 0, "", "")
	require.NoError(t, err)
	assert.Equal(t, 20, pagination["page_size"])
}
