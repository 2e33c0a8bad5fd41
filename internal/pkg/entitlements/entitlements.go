package entitlements

import (
	"fmt"

	"github.com/parkorbit/parkorbit/app/models"
)

// Feature identifies one countable resource a subscription grants.
type Feature string

const (
	FeatureGateways    Feature = "gateways"
	FeatureParkingLots Feature = "parking_lots"
	FeatureFloors      Feature = "floors"
	FeatureSlots       Feature = "slots"
	FeatureUsers       Feature = "users"
)

// UsageCounter reports how many units of a feature an admin currently
// has. The repository layer implements it; keeping it an interface means
// limit checks never depend on the exact schema the counts come from.
type UsageCounter interface {
	CountFeature(adminID uint, feature Feature) (int64, error)
}

// NoSubscriptionError means the admin has no active or trial subscription
// backing the requested resource.
type NoSubscriptionError struct{}

func (e *NoSubscriptionError) Error() string {
	return "no active subscription"
}

// LimitExceededError carries the limit the admin ran into.
type LimitExceededError struct {
	Feature Feature
	Limit   int
	Current int64
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("%s limit reached (%d of %d used)", e.Feature, e.Current, e.Limit)
}

// LimitFor reads a feature's limit from the subscription's snapshotted
// plan limits. -1 means unlimited.
func LimitFor(sub *models.Subscription, feature Feature) int {
	switch feature {
	case FeatureGateways:
		return sub.MaxGateways
	case FeatureParkingLots:
		return sub.MaxParkingLots
	case FeatureFloors:
		return sub.MaxFloors
	case FeatureSlots:
		return sub.MaxSlots
	case FeatureUsers:
		return sub.MaxUsers
	default:
		return 0
	}
}

// CheckFeatureLimit verifies the admin may create one more unit of the
// feature. Limits are evaluated against the subscription snapshot, so a
// later plan edit never changes what a live subscription allows.
func CheckFeatureLimit(sub *models.Subscription, counter UsageCounter, adminID uint, feature Feature) error {
	if sub == nil || !sub.IsEntitling() {
		return &NoSubscriptionError{}
	}

	limit := LimitFor(sub, feature)
	if limit < 0 {
		return nil
	}

	current, err := counter.CountFeature(adminID, feature)
	if err != nil {
		return err
	}
	if current >= int64(limit) {
		return &LimitExceededError{Feature: feature, Limit: limit, Current: current}
	}
	return nil
}
