package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/franklinacm/synapse/internal/activity"
)

var lookupPredicates = map[string]struct{}{
	"MEMBER_HAS_ROLE":      {},
	"MEMBER_NOT_HAS_ROLE":  {},
	"MIN_SERVER_AGE_DAYS":  {},
	"MIN_ACCOUNT_AGE_DAYS": {},
	"MEMBER_IS_FIRST_JOIN": {},
	"MEMBER_IS_REJOIN":     {},
	"ROLE_WAS_ADDED":       {},
	"ROLE_WAS_REMOVED":     {},
}

const day = 24 * time.Hour

// LookupEvaluator answers predicates that need a fresh store read.
type LookupEvaluator struct {
	store LookupStore
	clock Clock
}

// NewLookupEvaluator creates a LookupEvaluator reading from s.
func NewLookupEvaluator(s LookupStore, clock Clock) *LookupEvaluator {
	return &LookupEvaluator{store: s, clock: clock}
}

func (e *LookupEvaluator) Handles(predicateType string) bool {
	_, ok := lookupPredicates[predicateType]
	return ok
}

func (e *LookupEvaluator) Evaluate(ctx context.Context, predicateType string, rc *Context, params json.RawMessage) (bool, error) {
	switch predicateType {
	case "MEMBER_HAS_ROLE", "MEMBER_NOT_HAS_ROLE":
		roleID, err := idParam(predicateType, params, "role_ext_id")
		if err != nil {
			return false, err
		}
		roles, err := e.store.MemberRoleExtIDs(ctx, rc.MemberID)
		if err != nil {
			return false, fmt.Errorf("member roles: %w", err)
		}
		has := slices.Contains(roles, roleID)
		return has == (predicateType == "MEMBER_HAS_ROLE"), nil

	case "MIN_SERVER_AGE_DAYS":
		threshold, err := thresholdParam(predicateType, params)
		if err != nil {
			return false, err
		}
		joined := rc.MemberJoinedAt
		if joined == nil {
			if joined, err = e.store.MemberJoinedAt(ctx, rc.MemberID); err != nil {
				return false, fmt.Errorf("member joined at: %w", err)
			}
		}
		if joined == nil {
			return false, nil
		}
		return wholeDays(*joined, rc.ReferenceTime(e.clock.Now())) >= threshold, nil

	case "MIN_ACCOUNT_AGE_DAYS":
		threshold, err := thresholdParam(predicateType, params)
		if err != nil {
			return false, err
		}
		var extID int64
		if rc.MemberExtID != nil {
			extID = *rc.MemberExtID
		} else {
			m, err := e.store.Member(ctx, rc.MemberID)
			if err != nil {
				return false, fmt.Errorf("member: %w", err)
			}
			extID = m.ExtID
		}
		created, err := activity.SnowflakeTime(extID)
		if err != nil {
			return false, predicateErrorf(ErrCodeMissingField, predicateType, "member id %d: %v", extID, err)
		}
		return wholeDays(created, rc.ReferenceTime(e.clock.Now())) >= threshold, nil

	case "MEMBER_IS_FIRST_JOIN", "MEMBER_IS_REJOIN":
		n, err := e.store.CountEvents(ctx, rc.MemberID, activity.EventMemberJoin)
		if err != nil {
			return false, fmt.Errorf("count joins: %w", err)
		}
		first := n <= 1
		return first == (predicateType == "MEMBER_IS_FIRST_JOIN"), nil

	case "ROLE_WAS_ADDED", "ROLE_WAS_REMOVED":
		roleID, err := idParam(predicateType, params, "role_ext_id")
		if err != nil {
			return false, err
		}
		list := rc.RolesAdded
		if predicateType == "ROLE_WAS_REMOVED" {
			list = rc.RolesRemoved
		}
		if list == nil {
			return false, nil
		}
		return slices.Contains(list, roleID), nil
	}
	return false, predicateErrorf(ErrCodeUnknownPredicate, predicateType, "not a lookup predicate")
}

// wholeDays counts complete days from since to now; negative spans are zero.
func wholeDays(since, now time.Time) float64 {
	d := now.Sub(since)
	if d < 0 {
		return 0
	}
	return float64(d / day)
}
