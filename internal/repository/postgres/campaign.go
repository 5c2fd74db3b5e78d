// Package postgres implements the persistence interfaces against PostgreSQL
// using database/sql and lib/pq. All status changes that gate concurrent
// workers are expressed as conditional UPDATEs so the row itself is the
// arbiter, not the process.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/outreach/internal/dispatch"
	"github.com/ignite/outreach/internal/domain"
)

// CampaignRepo implements dispatch.CampaignStore against PostgreSQL.
type CampaignRepo struct{ db *sql.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

const campaignColumns = `
	id, name, channel, COALESCE(subject,''), body_template, status,
	COALESCE(scheduled_at, to_timestamp(0)), COALESCE(audience_filter,''),
	total_recipients, total_sent, total_delivered, total_failed,
	total_opened, total_clicked, total_bounced,
	started_at, completed_at, created_at, updated_at`

func scanCampaign(row interface{ Scan(...interface{}) error }) (*domain.Campaign, error) {
	c := &domain.Campaign{}
	err := row.Scan(
		&c.ID, &c.Name, &c.Channel, &c.Subject, &c.BodyTemplate, &c.Status,
		&c.ScheduledAt, &c.AudienceFilter,
		&c.TotalRecipients, &c.TotalSent, &c.TotalDelivered, &c.TotalFailed,
		&c.TotalOpened, &c.TotalClicked, &c.TotalBounced,
		&c.StartedAt, &c.CompletedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepo) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	c, err := scanCampaign(r.db.QueryRowContext(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, dispatch.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

func (r *CampaignRepo) Create(ctx context.Context, c *domain.Campaign) (string, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Status == "" {
		c.Status = domain.CampaignStatusDraft
	}
	scheduledAt := sql.NullTime{Time: c.ScheduledAt, Valid: !c.ScheduledAt.IsZero()}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO campaigns
			(id, name, channel, subject, body_template, status,
			 scheduled_at, audience_filter, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
	`, c.ID, c.Name, c.Channel, c.Subject, c.BodyTemplate, c.Status,
		scheduledAt, c.AudienceFilter)
	if err != nil {
		return "", fmt.Errorf("create campaign: %w", err)
	}
	return c.ID, nil
}

// DueCampaigns returns scheduled campaigns whose send time has arrived,
// oldest first so a backlog drains in order.
func (r *CampaignRepo) DueCampaigns(ctx context.Context, now time.Time) ([]domain.Campaign, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns
		WHERE status = $1 AND scheduled_at <= $2
		ORDER BY scheduled_at ASC
	`, domain.CampaignStatusScheduled, now)
	if err != nil {
		return nil, fmt.Errorf("due campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// Claim is the scheduled -> sending transition. The WHERE clause makes it a
// compare-and-set: exactly one concurrent caller sees RowsAffected == 1.
func (r *CampaignRepo) Claim(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = $2, started_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = $3
	`, id, domain.CampaignStatusSending, domain.CampaignStatusScheduled)
	if err != nil {
		return false, fmt.Errorf("claim campaign: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim campaign: %w", err)
	}
	return n == 1, nil
}

func (r *CampaignRepo) Finalize(ctx context.Context, id string, status domain.CampaignStatus) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = $2, completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = $3
	`, id, status, domain.CampaignStatusSending)
	if err != nil {
		return fmt.Errorf("finalize campaign: %w", err)
	}
	return nil
}

func (r *CampaignRepo) SetTotalRecipients(ctx context.Context, id string, total int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET total_recipients = $2, updated_at = NOW() WHERE id = $1
	`, id, total)
	if err != nil {
		return fmt.Errorf("set total recipients: %w", err)
	}
	return nil
}

// counterColumns whitelists the columns IncrementCounter may touch. The
// column name is interpolated into SQL, so it must never come from input.
var counterColumns = map[string]bool{
	"total_sent":      true,
	"total_delivered": true,
	"total_failed":    true,
	"total_opened":    true,
	"total_clicked":   true,
	"total_bounced":   true,
}

func (r *CampaignRepo) IncrementCounter(ctx context.Context, id, field string) error {
	if !counterColumns[field] {
		return fmt.Errorf("increment counter: unknown column %q", field)
	}
	_, err := r.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE campaigns SET %s = %s + 1, updated_at = NOW() WHERE id = $1
	`, field, field), id)
	if err != nil {
		return fmt.Errorf("increment %s: %w", field, err)
	}
	return nil
}

// Cancel moves a draft or scheduled campaign to cancelled. Campaigns that
// already started sending cannot be cancelled.
func (r *CampaignRepo) Cancel(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status IN ($3, $4)
	`, id, domain.CampaignStatusCancelled,
		domain.CampaignStatusDraft, domain.CampaignStatusScheduled)
	if err != nil {
		return false, fmt.Errorf("cancel campaign: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("cancel campaign: %w", err)
	}
	return n == 1, nil
}
