package consent

import (
	"context"
	"testing"
	"time"
)

func fixedClock(hour, min int, loc *time.Location) func() time.Time {
	return func() time.Time {
		return time.Date(2026, 3, 10, hour, min, 0, 0, loc)
	}
}

func grantedStore(memberID string) *MemoryStore {
	s := NewMemoryStore()
	s.Set(memberID, MemberConsent{SMSGranted: true, EmailGranted: true, Email: "m@example.com"})
	return s
}

func TestQuietHoursBoundaries(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		hour, min int
		want      bool
	}{
		{7, 59, false},
		{8, 0, true},
		{12, 30, true},
		{20, 59, true},
		{21, 0, false},
		{23, 15, false},
		{0, 0, false},
	}

	for _, tt := range tests {
		gate := NewGate(grantedStore("m1")).WithClock(fixedClock(tt.hour, tt.min, time.UTC))
		d, err := gate.CanSendSMS(ctx, "m1", "UTC")
		if err != nil {
			t.Fatalf("%02d:%02d: %v", tt.hour, tt.min, err)
		}
		if d.CanSend != tt.want {
			t.Errorf("at %02d:%02d local: CanSend = %v, want %v (reason %q)",
				tt.hour, tt.min, d.CanSend, tt.want, d.Reason)
		}
	}
}

func TestQuietHoursUseRecipientTimezone(t *testing.T) {
	ctx := context.Background()
	// 02:00 UTC is 18:00 the previous day in America/Los_Angeles (UTC-8):
	// blocked in UTC, allowed locally.
	gate := NewGate(grantedStore("m1")).WithClock(func() time.Time {
		return time.Date(2026, 1, 10, 2, 0, 0, 0, time.UTC)
	})

	d, err := gate.CanSendSMS(ctx, "m1", "America/Los_Angeles")
	if err != nil {
		t.Fatal(err)
	}
	if !d.CanSend {
		t.Errorf("18:00 in recipient timezone should be allowed, got reason %q", d.Reason)
	}

	d, _ = gate.CanSendSMS(ctx, "m1", "UTC")
	if d.CanSend {
		t.Error("02:00 UTC should be blocked for a UTC recipient")
	}
}

func TestUnknownTimezoneFallsBackToUTC(t *testing.T) {
	gate := NewGate(grantedStore("m1")).WithClock(fixedClock(12, 0, time.UTC))
	d, err := gate.CanSendSMS(context.Background(), "m1", "Not/AZone")
	if err != nil {
		t.Fatal(err)
	}
	if !d.CanSend {
		t.Errorf("unknown timezone at midday UTC should be allowed, got %q", d.Reason)
	}
}

func TestSMSConsentFlags(t *testing.T) {
	ctx := context.Background()
	clock := fixedClock(12, 0, time.UTC)

	s := NewMemoryStore()
	gate := NewGate(s).WithClock(clock)

	d, _ := gate.CanSendSMS(ctx, "unknown", "UTC")
	if d.CanSend {
		t.Error("member without consent should be denied")
	}

	s.Set("m1", MemberConsent{SMSGranted: true, SMSOptedOut: true})
	d, _ = gate.CanSendSMS(ctx, "m1", "UTC")
	if d.CanSend {
		t.Error("opted-out member should be denied")
	}
	if d.Reason == "" {
		t.Error("denial must carry a reason")
	}
}

func TestEmailConsent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	gate := NewGate(s)

	s.Set("m1", MemberConsent{EmailGranted: true, Email: "sam@example.com"})
	d, err := gate.CanSendEmail(ctx, "m1")
	if err != nil || !d.CanSend {
		t.Fatalf("expected allowed, got %+v err=%v", d, err)
	}

	// An opt-out recorded by the webhook handler is honored on the next check.
	if err := gate.RecordEmailOptOut(ctx, "Sam@Example.com", "unsubscribe"); err != nil {
		t.Fatal(err)
	}
	d, _ = gate.CanSendEmail(ctx, "m1")
	if d.CanSend {
		t.Error("unsubscribed member should be denied")
	}
}
