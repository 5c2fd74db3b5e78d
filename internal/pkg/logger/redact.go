// Package logger holds logging helpers shared across components.
// Recipient addresses never appear unmasked in logs.
package logger

import "strings"

// RedactEmail masks an email address for safe logging:
// "john.doe@example.com" becomes "jo***@example.com". Local parts of two
// characters or fewer are fully masked.
func RedactEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "***@***"
	}
	name := parts[0]
	if len(name) > 2 {
		return name[:2] + "***@" + parts[1]
	}
	return "***@" + parts[1]
}

// RedactPhone masks a phone number, keeping the country prefix and the last
// two digits: "+14155551234" becomes "+1*******34". Anything too short to
// mask meaningfully is fully masked.
func RedactPhone(phone string) string {
	if len(phone) < 6 {
		return "***"
	}
	keepHead := 2
	if strings.HasPrefix(phone, "+") {
		keepHead = 3
	}
	masked := strings.Repeat("*", len(phone)-keepHead-2)
	return phone[:keepHead] + masked + phone[len(phone)-2:]
}

// RedactAddress masks a recipient address of either channel.
func RedactAddress(addr string) string {
	if strings.Contains(addr, "@") {
		return RedactEmail(addr)
	}
	return RedactPhone(addr)
}
