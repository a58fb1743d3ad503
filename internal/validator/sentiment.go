package validator

import (
	"encoding/json"
	"fmt"
	"strings"

	"cbsent/internal/domain"
)

// Reason codes recorded for rejected results.
const (
	ReasonRequestFailed      = "request_failed"
	ReasonMalformedJSON      = "malformed_json"
	ReasonMissingField       = "missing_field"
	ReasonWrongType          = "wrong_type"
	ReasonOutOfRange         = "out_of_range"
	ReasonInvalidEnum        = "invalid_enum"
	ReasonEmptyField         = "empty_field"
	ReasonUnknownCorrelation = "unknown_correlation_id"
	ReasonDuplicateResult    = "duplicate_result"
	ReasonMissingResult      = "missing_result"
)

// Issue is one reason a result was rejected.
type Issue struct {
	Reason  string `json:"reason"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	if i.Field == "" {
		return i.Reason + ": " + i.Message
	}
	return i.Reason + ": " + i.Field + ": " + i.Message
}

type fieldKind int

const (
	kindNumber fieldKind = iota
	kindDirection
	kindText
	kindTextList
)

// fieldRule describes one required field of a sentiment response.
type fieldRule struct {
	path       string
	kind       fieldKind
	min, max   float64
	allowEmpty bool
}

func scoreRule(path string, lo, hi float64) fieldRule {
	return fieldRule{path: path, kind: kindNumber, min: lo, max: hi}
}

var sentimentRules = []fieldRule{
	scoreRule("hawkish_dovish_score", -100, 100),
	scoreRule("topics.inflation", 0, 100),
	scoreRule("topics.growth", 0, 100),
	scoreRule("topics.financial_stability", 0, 100),
	scoreRule("topics.labor_market", 0, 100),
	scoreRule("topics.international", 0, 100),
	scoreRule("uncertainty", 0, 100),
	scoreRule("forward_guidance_strength", 0, 100),
	{path: "key_sentences", kind: kindTextList},
	{path: "market_impact.stocks", kind: kindDirection},
	{path: "market_impact.bonds", kind: kindDirection},
	{path: "market_impact.currency", kind: kindDirection},
	{path: "market_impact.reasoning", kind: kindText, allowEmpty: true},
	{path: "summary", kind: kindText},
}

// ValidateSentiment checks raw model output against the response schema. It
// returns the typed response only when no issue was found.
func ValidateSentiment(content string) (*domain.SentimentResponse, []Issue) {
	var doc map[string]interface{}
	dec := json.NewDecoder(strings.NewReader(content))
	if err := dec.Decode(&doc); err != nil || doc == nil {
		msg := "response is not a JSON object"
		if err != nil {
			msg = err.Error()
		}
		return nil, []Issue{{Reason: ReasonMalformedJSON, Message: msg}}
	}

	var issues []Issue
	for _, rule := range sentimentRules {
		if issue, ok := checkField(doc, rule); !ok {
			issues = append(issues, issue)
		}
	}
	if len(issues) > 0 {
		return nil, issues
	}

	var resp domain.SentimentResponse
	if err := json.Unmarshal([]byte(content), &resp); err != nil {
		return nil, []Issue{{Reason: ReasonMalformedJSON, Message: err.Error()}}
	}
	return &resp, nil
}

func checkField(doc map[string]interface{}, rule fieldRule) (Issue, bool) {
	val, present := lookup(doc, rule.path)
	if !present || val == nil {
		return Issue{Reason: ReasonMissingField, Field: rule.path, Message: "field is required"}, false
	}

	switch rule.kind {
	case kindNumber:
		n, ok := val.(float64)
		if !ok {
			return wrongType(rule.path, "number", val), false
		}
		if n < rule.min || n > rule.max {
			return Issue{
				Reason:  ReasonOutOfRange,
				Field:   rule.path,
				Message: fmt.Sprintf("%g is outside [%g, %g]", n, rule.min, rule.max),
			}, false
		}
	case kindDirection:
		s, ok := val.(string)
		if !ok {
			return wrongType(rule.path, "string", val), false
		}
		if !domain.MarketDirection(s).IsValid() {
			return Issue{
				Reason:  ReasonInvalidEnum,
				Field:   rule.path,
				Message: fmt.Sprintf("%q is not one of rise, fall, neutral", s),
			}, false
		}
	case kindText:
		s, ok := val.(string)
		if !ok {
			return wrongType(rule.path, "string", val), false
		}
		if !rule.allowEmpty && strings.TrimSpace(s) == "" {
			return Issue{Reason: ReasonEmptyField, Field: rule.path, Message: "must not be empty"}, false
		}
	case kindTextList:
		list, ok := val.([]interface{})
		if !ok {
			return wrongType(rule.path, "list of strings", val), false
		}
		if len(list) == 0 {
			return Issue{Reason: ReasonEmptyField, Field: rule.path, Message: "must contain at least one entry"}, false
		}
		for i, item := range list {
			if _, ok := item.(string); !ok {
				return wrongType(fmt.Sprintf("%s[%d]", rule.path, i), "string", item), false
			}
		}
	}
	return Issue{}, true
}

func wrongType(path, want string, got interface{}) Issue {
	return Issue{Reason: ReasonWrongType, Field: path, Message: fmt.Sprintf("expected %s, got %T", want, got)}
}

// lookup resolves a dotted path through nested objects.
func lookup(doc map[string]interface{}, path string) (interface{}, bool) {
	var cur interface{} = doc
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
