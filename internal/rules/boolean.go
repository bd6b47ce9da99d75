package rules

import (
	"context"
	"encoding/json"
)

type boolPredicate struct {
	field    string
	expected bool
}

var booleanPredicates = map[string]boolPredicate{
	"AUTHOR_NOT_BOT":        {"author_is_bot", false},
	"IS_REPLY":              {"is_reply", true},
	"IS_NOT_REPLY":          {"is_reply", false},
	"HAS_ATTACHMENT":        {"has_attachments", true},
	"NO_ATTACHMENT":         {"has_attachments", false},
	"IS_NOT_TTS":            {"is_tts", false},
	"HAS_EMBED":             {"has_embed", true},
	"HAS_POLL":              {"has_poll", true},
	"HAS_STICKER":           {"has_stickers", true},
	"IS_VOICE_MESSAGE":      {"is_voice_message", true},
	"NOT_MENTIONS_EVERYONE": {"mention_everyone", false},
	"MEMBER_IS_BOOSTING":    {"member_is_boosting", true},
	"IS_PINNED":             {"is_pinned", true},
}

// BooleanEvaluator compares a boolean context field to an expected value.
// An optional "expected" param overrides the predicate's default.
type BooleanEvaluator struct{}

func (BooleanEvaluator) Handles(predicateType string) bool {
	_, ok := booleanPredicates[predicateType]
	return ok
}

func (BooleanEvaluator) Evaluate(_ context.Context, predicateType string, rc *Context, params json.RawMessage) (bool, error) {
	def, ok := booleanPredicates[predicateType]
	if !ok {
		return false, predicateErrorf(ErrCodeUnknownPredicate, predicateType, "not a boolean predicate")
	}

	var p struct {
		Expected *bool `json:"expected"`
	}
	if err := decodeParams(predicateType, params, &p); err != nil {
		return false, err
	}
	expected := def.expected
	if p.Expected != nil {
		expected = *p.Expected
	}

	v, ok := rc.BoolField(def.field)
	if !ok {
		return false, nil
	}
	return v == expected, nil
}
