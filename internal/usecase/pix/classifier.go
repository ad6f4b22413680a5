package pix

import (
	"strings"

	"pix-gateway/internal/domain"
)

var permissionDeniedMarkers = []string{
	"operation not permitted",
	"operação não permitida",
	"operacao nao permitida",
}

// Classify maps a failed provider response to a reason and an operator hint.
// Rows are checked in order and the first match wins.
func Classify(status int, body string) domain.Classification {
	lower := strings.ToLower(body)
	switch {
	case status == 401 && strings.Contains(lower, "unauthenticated"):
		return domain.Classification{
			Reason: "Invalid or missing token",
			Hint:   "Check client_id/client_secret and bearer token.",
		}
	case status == 401 && containsAny(lower, permissionDeniedMarkers):
		return domain.Classification{
			Reason: "Permission denied for operation",
			Hint:   "Pix key likely not linked to supplied Account-Id, or client lacks permission.",
		}
	case status == 401:
		return domain.Classification{
			Reason: "401 — Unauthorized",
			Hint:   "Check token/scopes/account_id/key.",
		}
	case status == 404:
		return domain.Classification{
			Reason: "Route not found",
			Hint:   "Check endpoint and base URL.",
		}
	case status == 422 || status == 400:
		return domain.Classification{
			Reason: "Invalid data",
			Hint:   "Check required fields: schedule, debtor, value.original, key.",
		}
	case status >= 500:
		return domain.Classification{
			Reason: "Remote server internal error",
			Hint:   "Retry; if persistent, contact provider support.",
		}
	default:
		return domain.Classification{Reason: "Unknown API error"}
	}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
