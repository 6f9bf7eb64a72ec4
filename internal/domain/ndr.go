package domain

import "strings"

// Known NDR reason taxonomy. Free-text reasons outside this set are accepted
// but have no auto-resolution mapping.
const (
	NDRReasonCustomerNotAvailable = "Customer not available"
	NDRReasonAddressNotFound      = "Address not found"
	NDRReasonCustomerRefused      = "Customer refused delivery"
	NDRReasonIncompleteAddress    = "Incomplete address"
	NDRReasonPhoneNotReachable    = "Phone not reachable"
	NDRReasonRescheduled          = "Rescheduled by customer"
)

// NDRSeverity grades how urgently a non-delivery report needs attention.
type NDRSeverity string

const (
	// NDRSeverityCritical marks orders with repeated failed attempts.
	NDRSeverityCritical NDRSeverity = "critical"
	// NDRSeverityHigh marks reasons that usually need direct customer contact.
	NDRSeverityHigh NDRSeverity = "high"
	// NDRSeverityMedium is the default grade.
	NDRSeverityMedium NDRSeverity = "medium"
)

// AutoResolutionRule pairs the recommended action for a known reason with the
// customer message sent when the rule fires.
type AutoResolutionRule struct {
	Action   string
	Message  string
	Channels []Channel
}

var autoResolutionRules = map[string]AutoResolutionRule{
	NDRReasonCustomerNotAvailable: {
		Action:   "Schedule callback and retry delivery",
		Message:  "We missed you during delivery. Our courier will retry shortly; please keep your phone reachable.",
		Channels: []Channel{ChannelEmail, ChannelSMS},
	},
	NDRReasonAddressNotFound: {
		Action:   "Contact customer for address verification",
		Message:  "Our courier could not locate your address. Please verify your delivery address so we can retry.",
		Channels: []Channel{ChannelEmail, ChannelSMS},
	},
	NDRReasonCustomerRefused: {
		Action:   "Contact customer to understand concerns",
		Message:  "We noticed the delivery was refused. Our support team will reach out to understand your concerns.",
		Channels: []Channel{ChannelEmail, ChannelSMS},
	},
	NDRReasonIncompleteAddress: {
		Action:   "Request complete address details",
		Message:  "Your delivery address appears incomplete. Please share the full address so we can retry delivery.",
		Channels: []Channel{ChannelEmail, ChannelSMS},
	},
	NDRReasonPhoneNotReachable: {
		Action:   "Send SMS and email notifications",
		Message:  "We could not reach you by phone about your delivery. Please check your messages for next steps.",
		Channels: []Channel{ChannelEmail, ChannelSMS},
	},
	NDRReasonRescheduled: {
		Action:   "Confirm new delivery slot",
		Message:  "Your delivery was rescheduled as requested. We will confirm the new slot shortly.",
		Channels: []Channel{ChannelEmail, ChannelSMS},
	},
}

// AutoResolutionRuleFor returns the fixed rule for a known reason. Reasons
// outside the taxonomy have no rule and require a human.
func AutoResolutionRuleFor(reason string) (AutoResolutionRule, bool) {
	rule, ok := autoResolutionRules[strings.TrimSpace(reason)]
	if !ok {
		return AutoResolutionRule{}, false
	}
	rule.Channels = append([]Channel(nil), rule.Channels...)
	return rule, true
}

// ClassifyNDRSeverity grades a report from its reason and the order's
// cumulative NDR count. The count rule dominates the reason rule.
func ClassifyNDRSeverity(reason string, ndrCount int) NDRSeverity {
	if ndrCount >= 3 {
		return NDRSeverityCritical
	}
	lowered := strings.ToLower(reason)
	if strings.Contains(lowered, "refused") || strings.Contains(lowered, "not reachable") {
		return NDRSeverityHigh
	}
	return NDRSeverityMedium
}
