package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach/internal/dispatch"
	"github.com/ignite/outreach/internal/domain"
)

func setupMock(t *testing.T) (sqlmock.Sqlmock, *CampaignRepo, *MessageRepo) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return mock, NewCampaignRepo(db), NewMessageRepo(db)
}

func TestCampaignClaim(t *testing.T) {
	mock, campaigns, _ := setupMock(t)

	mock.ExpectExec("UPDATE campaigns").
		WithArgs("c1", string(domain.CampaignStatusSending), string(domain.CampaignStatusScheduled)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	claimed, err := campaigns.Claim(context.Background(), "c1")
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestCampaignClaimAlreadyTaken(t *testing.T) {
	mock, campaigns, _ := setupMock(t)

	mock.ExpectExec("UPDATE campaigns").
		WithArgs("c1", string(domain.CampaignStatusSending), string(domain.CampaignStatusScheduled)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	claimed, err := campaigns.Claim(context.Background(), "c1")
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestCampaignGetNotFound(t *testing.T) {
	mock, campaigns, _ := setupMock(t)

	mock.ExpectQuery("SELECT (.+) FROM campaigns").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := campaigns.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, dispatch.ErrNotFound)
}

func TestCampaignDueCampaigns(t *testing.T) {
	mock, campaigns, _ := setupMock(t)

	now := time.Now()
	sched := now.Add(-time.Minute)
	rows := sqlmock.NewRows([]string{
		"id", "name", "channel", "subject", "body_template", "status",
		"scheduled_at", "audience_filter",
		"total_recipients", "total_sent", "total_delivered", "total_failed",
		"total_opened", "total_clicked", "total_bounced",
		"started_at", "completed_at", "created_at", "updated_at",
	}).AddRow(
		"c1", "August promo", "sms", "", "Hi {{firstName}}", "scheduled",
		sched, "",
		0, 0, 0, 0, 0, 0, 0,
		nil, nil, now, now,
	)

	mock.ExpectQuery("SELECT (.+) FROM campaigns").
		WithArgs(string(domain.CampaignStatusScheduled), now).
		WillReturnRows(rows)

	due, err := campaigns.DueCampaigns(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "c1", due[0].ID)
	assert.Equal(t, domain.ChannelSMS, due[0].Channel)
}

func TestCampaignIncrementCounterWhitelist(t *testing.T) {
	mock, campaigns, _ := setupMock(t)

	err := campaigns.IncrementCounter(context.Background(), "c1", "status; DROP TABLE campaigns")
	require.Error(t, err)

	mock.ExpectExec("UPDATE campaigns SET total_sent = total_sent").
		WithArgs("c1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, campaigns.IncrementCounter(context.Background(), "c1", "total_sent"))
}

func TestMessageCreateBatch(t *testing.T) {
	mock, _, messages := setupMock(t)

	msgs := []*domain.Message{
		{CampaignID: "c1", MemberID: "m1", Channel: domain.ChannelSMS, RecipientAddress: "+14155551234"},
		{CampaignID: "c1", MemberID: "m2", Channel: domain.ChannelSMS, RecipientAddress: "+14155556789"},
	}

	mock.ExpectExec("INSERT INTO messages").
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, messages.CreateBatch(context.Background(), msgs))
	assert.NotEmpty(t, msgs[0].ID)
	assert.Equal(t, domain.MessageQueued, msgs[0].Status)
}

func TestMessageApplyStatusApplied(t *testing.T) {
	mock, _, messages := setupMock(t)

	mock.ExpectExec("UPDATE messages").
		WithArgs("m1", string(domain.MessageDelivered), "delivered", domain.MessageDelivered.Rank()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	applied, err := messages.ApplyStatus(context.Background(), "m1", domain.MessageDelivered, "delivered")
	require.NoError(t, err)
	assert.True(t, applied)
}

func TestMessageApplyStatusReplayIsNoop(t *testing.T) {
	mock, _, messages := setupMock(t)

	// The rank guard in the WHERE clause matches no row on replay.
	mock.ExpectExec("UPDATE messages").
		WithArgs("m1", string(domain.MessageDelivered), "delivered", domain.MessageDelivered.Rank()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	applied, err := messages.ApplyStatus(context.Background(), "m1", domain.MessageDelivered, "delivered")
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestMessageApplyStatusClickedBackfillsOpened(t *testing.T) {
	mock, _, messages := setupMock(t)

	mock.ExpectExec(`clicked_at = COALESCE\(clicked_at, NOW\(\)\), opened_at = COALESCE\(opened_at, NOW\(\)\)`).
		WithArgs("m1", string(domain.MessageClicked), "click", domain.MessageClicked.Rank()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	applied, err := messages.ApplyStatus(context.Background(), "m1", domain.MessageClicked, "click")
	require.NoError(t, err)
	assert.True(t, applied)
}

func TestMessageApplyStatusDeliveredHasNoOpenedBackfill(t *testing.T) {
	mock, _, messages := setupMock(t)

	mock.ExpectExec(`delivered_at = COALESCE\(delivered_at, NOW\(\)\), updated_at = NOW\(\)`).
		WithArgs("m1", string(domain.MessageDelivered), "delivered", domain.MessageDelivered.Rank()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	applied, err := messages.ApplyStatus(context.Background(), "m1", domain.MessageDelivered, "delivered")
	require.NoError(t, err)
	assert.True(t, applied)
}

func TestMessageApplyStatusUnknown(t *testing.T) {
	_, _, messages := setupMock(t)

	_, err := messages.ApplyStatus(context.Background(), "m1", domain.MessageStatus("exploded"), "")
	assert.Error(t, err)
}

func TestMessageFindByExternalIDNotFound(t *testing.T) {
	mock, _, messages := setupMock(t)

	mock.ExpectQuery("SELECT (.+) FROM messages").
		WithArgs("SMnope").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := messages.FindByExternalID(context.Background(), "SMnope")
	assert.ErrorIs(t, err, dispatch.ErrNotFound)
}
