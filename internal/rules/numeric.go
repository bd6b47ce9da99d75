package rules

import (
	"context"
	"encoding/json"
)

type numericPredicate struct {
	field    string
	operator string
}

var numericPredicates = map[string]numericPredicate{
	"MIN_CONTENT_LENGTH":           {"content_length", ">="},
	"MAX_CONTENT_LENGTH":           {"content_length", "<="},
	"MIN_ATTACHMENT_COUNT":         {"attachment_count", ">="},
	"MIN_REACTION_COUNT":           {"reaction_count", ">="},
	"MENTION_USER_COUNT_MAX":       {"mention_user_count", "<="},
	"MEMBER_P_CURRENCY_MIN":        {"p_currency", ">="},
	"MEMBER_P_CURRENCY_MAX":        {"p_currency", "<="},
	"MEMBER_S_CURRENCY_MIN":        {"s_currency", ">="},
	"MIN_EMBED_COUNT":              {"embed_count", ">="},
	"MIN_SESSION_DURATION_MINUTES": {"session_duration_minutes", ">="},
}

// NumericEvaluator compares a numeric context field to a required
// "threshold". Optional "field" and "operator" params override the
// predicate's defaults.
type NumericEvaluator struct{}

func (NumericEvaluator) Handles(predicateType string) bool {
	_, ok := numericPredicates[predicateType]
	return ok
}

func (NumericEvaluator) Evaluate(_ context.Context, predicateType string, rc *Context, params json.RawMessage) (bool, error) {
	def, ok := numericPredicates[predicateType]
	if !ok {
		return false, predicateErrorf(ErrCodeUnknownPredicate, predicateType, "not a numeric predicate")
	}

	threshold, err := thresholdParam(predicateType, params)
	if err != nil {
		return false, err
	}

	var p struct {
		Field    *string `json:"field"`
		Operator *string `json:"operator"`
	}
	if err := decodeParams(predicateType, params, &p); err != nil {
		return false, err
	}
	field, operator := def.field, def.operator
	if p.Field != nil {
		field = *p.Field
	}
	if p.Operator != nil {
		operator = *p.Operator
	}

	v, ok := rc.NumberField(field)
	if !ok {
		return false, nil
	}
	return compare(predicateType, v, operator, threshold)
}

func compare(predicateType string, v float64, operator string, threshold float64) (bool, error) {
	switch operator {
	case ">=":
		return v >= threshold, nil
	case "<=":
		return v <= threshold, nil
	case ">":
		return v > threshold, nil
	case "<":
		return v < threshold, nil
	case "==":
		return v == threshold, nil
	case "!=":
		return v != threshold, nil
	}
	return false, predicateErrorf(ErrCodeUnsupportedOperator, predicateType, "operator %q", operator)
}
