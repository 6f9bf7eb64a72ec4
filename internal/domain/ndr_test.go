package domain

import "testing"

func TestClassifyNDRSeverity(t *testing.T) {
	cases := []struct {
		name   string
		reason string
		count  int
		want   NDRSeverity
	}{
		{name: "default medium", reason: NDRReasonCustomerNotAvailable, count: 1, want: NDRSeverityMedium},
		{name: "refused is high", reason: NDRReasonCustomerRefused, count: 1, want: NDRSeverityHigh},
		{name: "not reachable is high", reason: NDRReasonPhoneNotReachable, count: 2, want: NDRSeverityHigh},
		{name: "count rule dominates reason rule", reason: NDRReasonRescheduled, count: 3, want: NDRSeverityCritical},
		{name: "unknown reason defaults to medium", reason: "Dog ate the parcel", count: 0, want: NDRSeverityMedium},
		{name: "high count with high reason stays critical", reason: NDRReasonCustomerRefused, count: 5, want: NDRSeverityCritical},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyNDRSeverity(tc.reason, tc.count); got != tc.want {
				t.Fatalf("ClassifyNDRSeverity(%q, %d) = %q, want %q", tc.reason, tc.count, got, tc.want)
			}
		})
	}
}

func TestAutoResolutionRuleFor(t *testing.T) {
	rule, ok := AutoResolutionRuleFor(NDRReasonPhoneNotReachable)
	if !ok {
		t.Fatal("expected a rule for the phone-not-reachable reason")
	}
	if rule.Action != "Send SMS and email notifications" {
		t.Fatalf("unexpected action %q", rule.Action)
	}
	if len(rule.Channels) != 2 || rule.Channels[0] != ChannelEmail || rule.Channels[1] != ChannelSMS {
		t.Fatalf("unexpected channels %v", rule.Channels)
	}

	if _, ok := AutoResolutionRuleFor("Unknown reason"); ok {
		t.Fatal("unknown reasons must not map to a rule")
	}

	// Mutating the returned slice must not leak into the fixed table.
	rule.Channels[0] = ChannelWhatsApp
	again, _ := AutoResolutionRuleFor(NDRReasonPhoneNotReachable)
	if again.Channels[0] != ChannelEmail {
		t.Fatal("rule table must be immutable to callers")
	}
}
