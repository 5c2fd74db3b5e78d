package domain

// Recipient is the ephemeral per-run view of a campaign target, produced by
// the recipient directory. It is never persisted by this system; the
// message row snapshots the address instead.
type Recipient struct {
	MemberID  string `json:"member_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Timezone  string `json:"timezone"`
}

// Address returns the contact address for the given channel.
func (r Recipient) Address(ch Channel) string {
	if ch == ChannelSMS {
		return r.Phone
	}
	return r.Email
}

// TemplateVars returns the substitution variables available to campaign
// templates for this recipient.
func (r Recipient) TemplateVars() map[string]any {
	return map[string]any{
		"firstName": r.FirstName,
		"lastName":  r.LastName,
		"email":     r.Email,
		"phone":     r.Phone,
	}
}
