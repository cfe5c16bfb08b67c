package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/packfinderz-ads/pkg/db/models"
	"github.com/angelmondragon/packfinderz-ads/pkg/enums"
	"github.com/angelmondragon/packfinderz-ads/pkg/logger"
)

type emitterRepo struct {
	Repository
	created   []*models.Notification
	createErr error
}

func (r *emitterRepo) Create(_ context.Context, notification *models.Notification) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.created = append(r.created, notification)
	return nil
}

type fakePublishResult struct {
	err error
}

func (r *fakePublishResult) Get(context.Context) (string, error) {
	return "m1", r.err
}

type fakePublisher struct {
	msgs []*gcppubsub.Message
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	p.msgs = append(p.msgs, msg)
	return &fakePublishResult{err: p.err}
}

func newTestEmitter(repo *emitterRepo, pub publisher) *emitter {
	return &emitter{
		repo: repo,
		pub:  pub,
		logg: logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		now:  time.Now,
	}
}

func emitterCampaign() *models.Campaign {
	return &models.Campaign{
		ID:         uuid.New(),
		BusinessID: uuid.New(),
		Name:       "weekend push",
		Type:       enums.CampaignTypeSponsoredListing,
		Status:     enums.CampaignStatusActive,
	}
}

func TestEmitterStoresRowAndPublishes(t *testing.T) {
	repo := &emitterRepo{}
	pub := &fakePublisher{}
	em := newTestEmitter(repo, pub)
	campaign := emitterCampaign()

	em.BudgetExhausted(context.Background(), campaign)

	require.Len(t, repo.created, 1)
	row := repo.created[0]
	assert.Equal(t, enums.NotificationTypeBudgetExhausted, row.Type)
	assert.Equal(t, campaign.BusinessID, row.BusinessID)
	require.NotNil(t, row.CampaignID)
	assert.Equal(t, campaign.ID, *row.CampaignID)
	assert.Contains(t, row.Message, campaign.Name)

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, string(enums.NotificationTypeBudgetExhausted), pub.msgs[0].Attributes["type"])
	assert.Equal(t, campaign.BusinessID.String(), pub.msgs[0].Attributes["business_id"])
}

func TestEmitterBidAdjustedCarriesBids(t *testing.T) {
	repo := &emitterRepo{}
	em := newTestEmitter(repo, &fakePublisher{})
	campaign := emitterCampaign()

	em.BidAdjusted(context.Background(), campaign,
		decimal.NewFromInt(5), decimal.RequireFromString("4.5"), "return on ad spend below target")

	require.Len(t, repo.created, 1)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(repo.created[0].Payload, &payload))
	assert.Equal(t, "5", payload["old_bid"])
	assert.Equal(t, "4.5", payload["new_bid"])
}

func TestEmitterWithoutPublisherStillStoresRow(t *testing.T) {
	repo := &emitterRepo{}
	em := newTestEmitter(repo, nil)

	em.BudgetWarning(context.Background(), emitterCampaign(), 0.92)

	require.Len(t, repo.created, 1)
	assert.Equal(t, enums.NotificationTypeBudgetWarning, repo.created[0].Type)
}

func TestEmitterSwallowsFailures(t *testing.T) {
	campaign := emitterCampaign()

	// Publish failure: the row is still written.
	repo := &emitterRepo{}
	em := newTestEmitter(repo, &fakePublisher{err: errors.New("broker down")})
	em.DailyCapReached(context.Background(), campaign)
	assert.Len(t, repo.created, 1)

	// Store failure: nothing is published and nothing panics.
	failing := &emitterRepo{createErr: errors.New("db down")}
	pub := &fakePublisher{}
	em = newTestEmitter(failing, pub)
	em.CampaignResumed(context.Background(), campaign)
	assert.Empty(t, pub.msgs)
}
