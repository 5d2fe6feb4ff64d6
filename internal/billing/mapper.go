package billing

import (
	"strings"
	"time"

	sq "github.com/square/square-go-sdk"

	"github.com/tecnoshop/storefront-backend/pkg/db/models"
	"github.com/tecnoshop/storefront-backend/pkg/enums"
)

// Square reports subscription state in its own vocabulary; everything the
// gateway can emit collapses onto the local enum here.
var squareStatusAliases = map[string]enums.SubscriptionStatus{
	"PENDING":     enums.SubscriptionStatusTrialing,
	"TRIAL":       enums.SubscriptionStatusTrialing,
	"ACTIVE":      enums.SubscriptionStatusActive,
	"PAUSED":      enums.SubscriptionStatusPastDue,
	"SUSPENDED":   enums.SubscriptionStatusPastDue,
	"PAST_DUE":    enums.SubscriptionStatusPastDue,
	"DELINQUENT":  enums.SubscriptionStatusPastDue,
	"DEACTIVATED": enums.SubscriptionStatusCanceled,
	"CANCELED":    enums.SubscriptionStatusCanceled,
	"CANCELLED":   enums.SubscriptionStatusCanceled,
	"CANCELING":   enums.SubscriptionStatusCanceled,
	"COMPLETED":   enums.SubscriptionStatusCanceled,
}

func statusFromSquare(raw string) enums.SubscriptionStatus {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	normalized = strings.ReplaceAll(normalized, " ", "_")
	if normalized == "" {
		return enums.SubscriptionStatusActive
	}
	if mapped, ok := squareStatusAliases[normalized]; ok {
		return mapped
	}
	if parsed, err := enums.ParseSubscriptionStatus(strings.ToLower(normalized)); err == nil {
		return parsed
	}
	// Unknown statuses deny entitlement until reconciliation sorts them out.
	return enums.SubscriptionStatusUnpaid
}

// applySquareState copies gateway fields onto the local row. Zero or missing
// fields on the Square side leave the local value untouched.
func applySquareState(target *models.Subscription, squareSub *sq.Subscription) {
	if target == nil || squareSub == nil {
		return
	}
	if id := stringValue(squareSub.GetID()); id != "" {
		target.SquareSubscriptionID = id
	}
	target.Status = statusFromSquare(subscriptionStatusString(squareSub.GetStatus()))
	if start := parseSquareDate(squareSub.GetStartDate()); start != nil {
		target.CurrentPeriodStart = start
	}
	if end := parseSquareDate(squareSub.GetChargedThroughDate()); end != nil {
		target.CurrentPeriodEnd = *end
	}
	if canceled := parseSquareDate(squareSub.GetCanceledDate()); canceled != nil {
		target.CanceledAt = canceled
		target.CancelAtPeriodEnd = true
	}
}

// parseSquareDate accepts the formats Square uses across endpoints:
// RFC3339 timestamps and bare YYYY-MM-DD dates.
func parseSquareDate(value *string) *time.Time {
	if value == nil {
		return nil
	}
	raw := strings.TrimSpace(*value)
	if raw == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			utc := ts.UTC()
			return &utc
		}
	}
	return nil
}

func stringValue(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func subscriptionStatusString(status *sq.SubscriptionStatus) string {
	if status == nil {
		return ""
	}
	return string(*status)
}
