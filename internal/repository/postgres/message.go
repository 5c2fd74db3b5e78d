package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/outreach/internal/dispatch"
	"github.com/ignite/outreach/internal/domain"
)

// MessageRepo implements dispatch.MessageStore and the webhook
// reconciliation surface against PostgreSQL.
type MessageRepo struct{ db *sql.DB }

// NewMessageRepo creates a Postgres-backed message repository.
func NewMessageRepo(db *sql.DB) *MessageRepo { return &MessageRepo{db: db} }

const messageColumns = `
	id, campaign_id, member_id, channel, recipient_address, status,
	queued_at, sent_at, delivered_at, opened_at, clicked_at, failed_at,
	COALESCE(external_id,''), COALESCE(provider_status,''), COALESCE(error_message,'')`

func scanMessage(row interface{ Scan(...interface{}) error }) (*domain.Message, error) {
	m := &domain.Message{}
	err := row.Scan(
		&m.ID, &m.CampaignID, &m.MemberID, &m.Channel, &m.RecipientAddress, &m.Status,
		&m.QueuedAt, &m.SentAt, &m.DeliveredAt, &m.OpenedAt, &m.ClickedAt, &m.FailedAt,
		&m.ExternalID, &m.ProviderStatus, &m.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// CreateBatch inserts the queued message rows for a campaign in one
// multi-row statement.
func (r *MessageRepo) CreateBatch(ctx context.Context, msgs []*domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	var (
		placeholders []string
		args         []interface{}
	)
	for i, m := range msgs {
		if m.ID == "" {
			m.ID = uuid.New().String()
		}
		if m.Status == "" {
			m.Status = domain.MessageQueued
		}
		base := i * 6
		placeholders = append(placeholders, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, NOW(), NOW(), NOW())",
			base+1, base+2, base+3, base+4, base+5, base+6))
		args = append(args, m.ID, m.CampaignID, m.MemberID, m.Channel, m.RecipientAddress, m.Status)
	}

	query := `
		INSERT INTO messages
			(id, campaign_id, member_id, channel, recipient_address, status,
			 queued_at, created_at, updated_at)
		VALUES ` + strings.Join(placeholders, ", ")

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("create messages: %w", err)
	}
	return nil
}

// MarkSent records a successful gateway handoff for a queued message.
func (r *MessageRepo) MarkSent(ctx context.Context, id, externalID, providerStatus string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE messages
		SET status = $2, external_id = $3, provider_status = $4,
		    sent_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = $5
	`, id, domain.MessageSent, externalID, providerStatus, domain.MessageQueued)
	if err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	return nil
}

// MarkFailed records a terminal pre-send or send failure.
func (r *MessageRepo) MarkFailed(ctx context.Context, id, errorMessage string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE messages
		SET status = $2, error_message = $3, failed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = $4
	`, id, domain.MessageFailed, errorMessage, domain.MessageQueued)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// statusRankSQL mirrors domain's status ordering so the forward-only guard
// runs inside the UPDATE itself. Keep in sync with domain.MessageStatus.Rank.
const statusRankSQL = `
	CASE status
		WHEN 'queued'    THEN 0
		WHEN 'sent'      THEN 1
		WHEN 'delivered' THEN 2
		WHEN 'opened'    THEN 3
		WHEN 'clicked'   THEN 4
		ELSE 5
	END`

// ApplyStatus performs a rank-guarded transition to the given status. It
// reports whether the transition was applied: replays and out-of-order
// events leave the row untouched and return false, which is what keeps the
// campaign counters from double counting.
func (r *MessageRepo) ApplyStatus(ctx context.Context, id string, to domain.MessageStatus, providerStatus string) (bool, error) {
	tsCol := to.TimestampColumn()
	if tsCol == "" || to.Rank() < 0 {
		return false, fmt.Errorf("apply status: unknown status %q", to)
	}

	// A click implies the message was opened even if the open pixel never
	// fired, so opened_at is backfilled on the clicked transition.
	openedBackfill := ""
	if to == domain.MessageClicked {
		openedBackfill = ", opened_at = COALESCE(opened_at, NOW())"
	}

	query := fmt.Sprintf(`
		UPDATE messages
		SET status = $2, provider_status = $3,
		    %s = COALESCE(%s, NOW())%s, updated_at = NOW()
		WHERE id = $1
		  AND status NOT IN ('failed', 'bounced')
		  AND %s < $4
	`, tsCol, tsCol, openedBackfill, statusRankSQL)

	res, err := r.db.ExecContext(ctx, query, id, to, providerStatus, to.Rank())
	if err != nil {
		return false, fmt.Errorf("apply status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("apply status: %w", err)
	}
	return n == 1, nil
}

// FindByExternalID looks up a message by its gateway identifier.
func (r *MessageRepo) FindByExternalID(ctx context.Context, externalID string) (*domain.Message, error) {
	m, err := scanMessage(r.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE external_id = $1`, externalID))
	if err == sql.ErrNoRows {
		return nil, dispatch.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find message by external id: %w", err)
	}
	return m, nil
}

// ListByCampaign returns a campaign's messages, optionally filtered by
// status, newest first.
func (r *MessageRepo) ListByCampaign(ctx context.Context, campaignID string, statuses []domain.MessageStatus, limit, offset int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + messageColumns + ` FROM messages WHERE campaign_id = $1`
	args := []interface{}{campaignID}
	idx := 2

	if len(statuses) > 0 {
		strs := make([]string, len(statuses))
		for i, s := range statuses {
			strs[i] = string(s)
		}
		query += fmt.Sprintf(" AND status = ANY($%d)", idx)
		args = append(args, pq.Array(strs))
		idx++
	}

	query += fmt.Sprintf(" ORDER BY queued_at DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}
