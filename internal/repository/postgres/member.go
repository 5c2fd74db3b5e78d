package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/outreach/internal/domain"
)

// MemberRepo resolves campaign audiences from the members table. It
// implements dispatch.Directory.
type MemberRepo struct{ db *sql.DB }

// NewMemberRepo creates a Postgres-backed member directory.
func NewMemberRepo(db *sql.DB) *MemberRepo { return &MemberRepo{db: db} }

// Audience returns the recipients a campaign targets. An empty audience
// filter selects every member; otherwise it matches the member's segment
// tag.
func (r *MemberRepo) Audience(ctx context.Context, c *domain.Campaign) ([]domain.Recipient, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, COALESCE(first_name,''), COALESCE(last_name,''),
		       COALESCE(email,''), COALESCE(phone,''), COALESCE(timezone,'')
		FROM members
		WHERE ($1 = '' OR segment = $1)
		ORDER BY id
	`, c.AudienceFilter)
	if err != nil {
		return nil, fmt.Errorf("resolve audience: %w", err)
	}
	defer rows.Close()

	var out []domain.Recipient
	for rows.Next() {
		var m domain.Recipient
		if err := rows.Scan(&m.MemberID, &m.FirstName, &m.LastName, &m.Email, &m.Phone, &m.Timezone); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
