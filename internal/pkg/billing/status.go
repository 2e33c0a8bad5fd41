package billing

import "strings"

// Outcome is the classification of a gateway-reported status.
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailed  Outcome = "FAILED"
	OutcomePending Outcome = "PENDING"
)

// ClassifyGatewayStatus maps the many spellings gateways use for one
// payment outcome onto the three states the engine distinguishes.
// Anything unrecognized counts as pending, never as failed.
func ClassifyGatewayStatus(status string) Outcome {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "SUCCESS", "PAID", "COMPLETED":
		return OutcomeSuccess
	case "FAILED", "CANCELLED", "CHARGED_BACK", "EXPIRED", "VOID":
		return OutcomeFailed
	default:
		return OutcomePending
	}
}

// NormalizeWebhookStatus maps the lower-case synonym set used by webhook
// payloads onto a canonical status hint. Unknown values map to the empty
// string and are ignored by the caller.
func NormalizeWebhookStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "completed", "succeeded", "paid", "success":
		return "SUCCESS"
	case "failed", "cancelled", "declined":
		return "FAILED"
	default:
		return ""
	}
}
