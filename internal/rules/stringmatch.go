package rules

import (
	"context"
	"encoding/json"
	"strings"
)

type matchKind int

const (
	matchExact matchKind = iota
	matchFold
	matchExtension
	matchPrefix
)

type stringPredicate struct {
	field  string
	param  string // empty for matchPrefix, which uses prefix
	prefix string
	kind   matchKind
	negate bool
	// owner is the field whose presence means an unset field is empty
	// rather than absent.
	owner string
}

var stringPredicates = map[string]stringPredicate{
	"IN_CHANNEL":                 {field: "channel_ext_id", param: "channel_ext_id"},
	"NOT_IN_CHANNEL":             {field: "channel_ext_id", param: "channel_ext_id", negate: true},
	"IN_CATEGORY":                {field: "category_ext_id", param: "category_ext_id", owner: "channel_ext_id"},
	"NOT_IN_CATEGORY":            {field: "category_ext_id", param: "category_ext_id", owner: "channel_ext_id", negate: true},
	"CHANNEL_TYPE_IS":            {field: "channel_type", param: "type", kind: matchFold},
	"MESSAGE_TYPE_IS":            {field: "message_type", param: "type"},
	"IN_VOICE_CHANNEL":           {field: "voice_channel_ext_id", param: "channel_ext_id"},
	"ATTACHMENT_EXTENSION_IS":    {field: "attachment_filename", param: "extension", kind: matchExtension},
	"ATTACHMENT_CONTENT_TYPE_IS": {field: "attachment_content_type", param: "content_type", kind: matchFold},
	"ATTACHMENT_IS_IMAGE":        {field: "attachment_content_type", prefix: "image/", kind: matchPrefix},
	"ATTACHMENT_IS_VIDEO":        {field: "attachment_content_type", prefix: "video/", kind: matchPrefix},
	"ATTACHMENT_IS_AUDIO":        {field: "attachment_content_type", prefix: "audio/", kind: matchPrefix},
}

// StringEvaluator matches a string context field against a parameter.
//
// An absent field fails both the positive and the negated form: a member
// event carries no channel, so NOT_IN_CHANNEL does not match it either.
// A channel outside any category is different: its category is empty, so
// NOT_IN_CATEGORY matches it.
type StringEvaluator struct{}

func (StringEvaluator) Handles(predicateType string) bool {
	_, ok := stringPredicates[predicateType]
	return ok
}

func (StringEvaluator) Evaluate(_ context.Context, predicateType string, rc *Context, params json.RawMessage) (bool, error) {
	def, ok := stringPredicates[predicateType]
	if !ok {
		return false, predicateErrorf(ErrCodeUnknownPredicate, predicateType, "not a string predicate")
	}

	want := def.prefix
	if def.kind != matchPrefix {
		var err error
		if want, err = stringParam(predicateType, params, def.param); err != nil {
			return false, err
		}
	}

	got, ok := rc.StringField(def.field)
	if !ok {
		if def.owner == "" {
			return false, nil
		}
		_, owned := rc.StringField(def.owner)
		return owned && def.negate, nil
	}

	var matched bool
	switch def.kind {
	case matchExact:
		matched = got == want
	case matchFold:
		matched = strings.EqualFold(got, want)
	case matchExtension:
		ext := strings.TrimPrefix(want, ".")
		matched = ext != "" && strings.HasSuffix(strings.ToLower(got), "."+strings.ToLower(ext))
	case matchPrefix:
		matched = strings.HasPrefix(strings.ToLower(got), want)
	}
	return matched != def.negate, nil
}
