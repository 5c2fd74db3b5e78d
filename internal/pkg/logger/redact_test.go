package logger

import "testing"

func TestRedactEmail(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"john.doe@example.com", "jo***@example.com"},
		{"ab@example.com", "***@example.com"},
		{"not-an-email", "***@***"},
	}
	for _, tt := range tests {
		if got := RedactEmail(tt.in); got != tt.want {
			t.Errorf("RedactEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRedactPhone(t *testing.T) {
	got := RedactPhone("+14155551234")
	if got != "+14*******34" {
		t.Errorf("RedactPhone = %q", got)
	}
	if RedactPhone("123") != "***" {
		t.Error("short numbers should be fully masked")
	}
}

func TestRedactAddress(t *testing.T) {
	if got := RedactAddress("sam@example.com"); got != "sa***@example.com" {
		t.Errorf("RedactAddress(email) = %q", got)
	}
	if got := RedactAddress("+14155551234"); got != "+14*******34" {
		t.Errorf("RedactAddress(phone) = %q", got)
	}
}
