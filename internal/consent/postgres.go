package consent

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PostgresStore reads consent flags from the member_consent table and
// records opt-outs in email_opt_outs. Members without a row have granted
// nothing.
type PostgresStore struct{ db *sql.DB }

// NewPostgresStore creates a Postgres-backed consent store.
func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

func (s *PostgresStore) SMSConsent(ctx context.Context, memberID string) (bool, bool, error) {
	var granted, optedOut bool
	err := s.db.QueryRowContext(ctx, `
		SELECT sms_granted, sms_opted_out FROM member_consent WHERE member_id = $1
	`, memberID).Scan(&granted, &optedOut)
	if err == sql.ErrNoRows {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("sms consent: %w", err)
	}
	return granted, optedOut, nil
}

func (s *PostgresStore) EmailConsent(ctx context.Context, memberID string) (bool, bool, error) {
	var granted, unsubscribed bool
	var email string
	err := s.db.QueryRowContext(ctx, `
		SELECT email_granted, email_unsubscribed, COALESCE(email,'')
		FROM member_consent WHERE member_id = $1
	`, memberID).Scan(&granted, &unsubscribed, &email)
	if err == sql.ErrNoRows {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("email consent: %w", err)
	}
	if unsubscribed || email == "" {
		return granted, unsubscribed, nil
	}

	// Opt-outs arrive keyed by address via the unsubscribe webhook, so the
	// flag on the member row alone is not enough.
	var n int
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM email_opt_outs WHERE email = $1
	`, strings.ToLower(email)).Scan(&n)
	if err != nil {
		return false, false, fmt.Errorf("email opt-out lookup: %w", err)
	}
	return granted, n > 0, nil
}

func (s *PostgresStore) RecordEmailOptOut(ctx context.Context, email, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO email_opt_outs (email, reason, recorded_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (email) DO UPDATE SET reason = EXCLUDED.reason
	`, strings.ToLower(email), reason)
	if err != nil {
		return fmt.Errorf("record opt-out: %w", err)
	}
	return nil
}
