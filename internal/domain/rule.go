package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ThresholdOperator compares one column value against a fixed bound.
// Params: none.
// Returns: closed set of threshold comparison operators.
type ThresholdOperator string

const (
	// OpGreaterThan fires when a value exceeds the bound.
	OpGreaterThan ThresholdOperator = "greater_than"
	// OpLessThan fires when a value is below the bound.
	OpLessThan ThresholdOperator = "less_than"
	// OpEquals fires when a value equals the bound.
	OpEquals ThresholdOperator = "equals"
	// OpNotEquals fires when a value differs from the bound.
	OpNotEquals ThresholdOperator = "not_equals"
)

// TrendDirection selects which drift direction a trend rule watches.
// Params: none.
// Returns: closed set of trend directions.
type TrendDirection string

const (
	// TrendIncreasing fires when the last value rises above the mean band.
	TrendIncreasing TrendDirection = "increasing"
	// TrendDecreasing fires when the last value falls below the mean band.
	TrendDecreasing TrendDirection = "decreasing"
)

// ConditionKind names one rule condition variant.
// Params: none.
// Returns: closed set of condition discriminators.
type ConditionKind string

const (
	// ConditionThreshold compares values against a fixed bound.
	ConditionThreshold ConditionKind = "threshold"
	// ConditionAnomaly flags values outside the interquartile fence.
	ConditionAnomaly ConditionKind = "anomaly"
	// ConditionTrend compares the latest value against the column mean.
	ConditionTrend ConditionKind = "trend"
)

// Condition is the closed variant type carried by one alert rule.
// Params: none.
// Returns: condition kind discriminator.
type Condition interface {
	Kind() ConditionKind
	sealed()
}

// ThresholdCondition fires when at least one value satisfies operator vs bound.
// Params: operator and numeric bound.
// Returns: threshold variant.
type ThresholdCondition struct {
	Operator ThresholdOperator `json:"operator"`
	Value    float64           `json:"value"`
}

// Kind returns the threshold discriminator.
// Params: none.
// Returns: ConditionThreshold.
func (ThresholdCondition) Kind() ConditionKind { return ConditionThreshold }

func (ThresholdCondition) sealed() {}

// AnomalyCondition fires when values escape the 1.5 IQR fence.
// Params: none.
// Returns: anomaly variant.
type AnomalyCondition struct{}

// Kind returns the anomaly discriminator.
// Params: none.
// Returns: ConditionAnomaly.
func (AnomalyCondition) Kind() ConditionKind { return ConditionAnomaly }

func (AnomalyCondition) sealed() {}

// TrendCondition fires when the last value drifts past mean by a percentage.
// Params: watched direction and percent band width.
// Returns: trend variant.
type TrendCondition struct {
	Direction TrendDirection `json:"direction"`
	Percent   float64        `json:"percent"`
}

// Kind returns the trend discriminator.
// Params: none.
// Returns: ConditionTrend.
func (TrendCondition) Kind() ConditionKind { return ConditionTrend }

func (TrendCondition) sealed() {}

// AlertRule is one user-defined condition over a dataset column.
// Params: identity/grouping fields, condition variant, delivery address, and trigger bookkeeping.
// Returns: durable alert rule record.
type AlertRule struct {
	ID              string     `json:"id"`
	Owner           string     `json:"owner"`
	DashboardID     string     `json:"dashboard_id"`
	Name            string     `json:"name"`
	Column          string     `json:"column"`
	Condition       Condition  `json:"-"`
	NotifyAddress   string     `json:"notify_address,omitempty"`
	Active          bool       `json:"active"`
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`
	TriggerCount    int        `json:"trigger_count"`
}

// conditionEnvelope flattens a condition variant for JSON round trips.
// Params: discriminator plus union of variant fields.
// Returns: storage shape of one condition.
type conditionEnvelope struct {
	Type      ConditionKind     `json:"type"`
	Operator  ThresholdOperator `json:"operator,omitempty"`
	Value     *float64          `json:"value,omitempty"`
	Direction TrendDirection    `json:"direction,omitempty"`
	Percent   *float64          `json:"percent,omitempty"`
}

// ruleAlias avoids marshal recursion on AlertRule.
type ruleAlias AlertRule

// ruleEnvelope is the serialized rule shape with flattened condition.
type ruleEnvelope struct {
	ruleAlias
	Condition conditionEnvelope `json:"condition"`
}

// MarshalJSON serializes the rule with its condition discriminator.
// Params: none.
// Returns: JSON document or marshal error.
func (r AlertRule) MarshalJSON() ([]byte, error) {
	envelope := ruleEnvelope{ruleAlias: ruleAlias(r)}
	switch cond := r.Condition.(type) {
	case ThresholdCondition:
		value := cond.Value
		envelope.Condition = conditionEnvelope{Type: ConditionThreshold, Operator: cond.Operator, Value: &value}
	case AnomalyCondition:
		envelope.Condition = conditionEnvelope{Type: ConditionAnomaly}
	case TrendCondition:
		percent := cond.Percent
		envelope.Condition = conditionEnvelope{Type: ConditionTrend, Direction: cond.Direction, Percent: &percent}
	case nil:
		return nil, fmt.Errorf("rule %q has no condition", r.ID)
	default:
		return nil, fmt.Errorf("rule %q has unsupported condition %T", r.ID, r.Condition)
	}
	return json.Marshal(envelope)
}

// UnmarshalJSON restores the rule and rebuilds its condition variant.
// Params: serialized rule document.
// Returns: decode error for malformed or unknown condition types.
func (r *AlertRule) UnmarshalJSON(body []byte) error {
	var envelope ruleEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return err
	}
	*r = AlertRule(envelope.ruleAlias)
	cond, err := buildCondition(envelope.Condition)
	if err != nil {
		return fmt.Errorf("rule %q: %w", r.ID, err)
	}
	r.Condition = cond
	return nil
}

// ParseCondition decodes a serialized condition document into its variant.
// Params: JSON condition object with a type discriminator.
// Returns: condition variant or validation error.
func ParseCondition(body []byte) (Condition, error) {
	var envelope conditionEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, err
	}
	return buildCondition(envelope)
}

// buildCondition converts one envelope into its closed variant.
// Params: decoded condition envelope.
// Returns: condition variant or validation error.
func buildCondition(envelope conditionEnvelope) (Condition, error) {
	switch envelope.Type {
	case ConditionThreshold:
		operator, err := parseThresholdOperator(string(envelope.Operator))
		if err != nil {
			return nil, err
		}
		if envelope.Value == nil {
			return nil, fmt.Errorf("threshold condition requires value")
		}
		return ThresholdCondition{Operator: operator, Value: *envelope.Value}, nil
	case ConditionAnomaly:
		return AnomalyCondition{}, nil
	case ConditionTrend:
		direction, err := parseTrendDirection(string(envelope.Direction))
		if err != nil {
			return nil, err
		}
		if envelope.Percent == nil {
			return nil, fmt.Errorf("trend condition requires percent")
		}
		return TrendCondition{Direction: direction, Percent: *envelope.Percent}, nil
	default:
		return nil, fmt.Errorf("unknown condition type %q", envelope.Type)
	}
}

// parseThresholdOperator validates one raw threshold operator.
// Params: raw operator string.
// Returns: normalized operator or error.
func parseThresholdOperator(raw string) (ThresholdOperator, error) {
	switch ThresholdOperator(strings.TrimSpace(raw)) {
	case OpGreaterThan:
		return OpGreaterThan, nil
	case OpLessThan:
		return OpLessThan, nil
	case OpEquals:
		return OpEquals, nil
	case OpNotEquals:
		return OpNotEquals, nil
	default:
		return "", fmt.Errorf("unknown threshold operator %q", raw)
	}
}

// parseTrendDirection validates one raw trend direction.
// Params: raw direction string.
// Returns: normalized direction or error.
func parseTrendDirection(raw string) (TrendDirection, error) {
	switch TrendDirection(strings.TrimSpace(raw)) {
	case TrendIncreasing:
		return TrendIncreasing, nil
	case TrendDecreasing:
		return TrendDecreasing, nil
	default:
		return "", fmt.Errorf("unknown trend direction %q", raw)
	}
}

// RuleSpec carries user-supplied fields for rule registration.
// Params: display name, column, condition variant, and optional delivery address.
// Returns: validated input for RegisterAlertRule.
type RuleSpec struct {
	Name          string
	Column        string
	Condition     Condition
	NotifyAddress string
}

// Validate checks the rule spec for required fields.
// Params: none.
// Returns: first validation error or nil.
func (s RuleSpec) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("rule name is required")
	}
	if strings.TrimSpace(s.Column) == "" {
		return fmt.Errorf("rule column is required")
	}
	if s.Condition == nil {
		return fmt.Errorf("rule condition is required")
	}
	return nil
}

// NewRuleID builds an alert rule identifier from owner, dashboard, and creation time.
// Params: owner, dashboard id, and creation instant.
// Returns: identifier in owner_dashboard_timestamp form.
func NewRuleID(owner, dashboardID string, now time.Time) string {
	return fmt.Sprintf("%s_%s_%s", owner, dashboardID, now.Format("20060102_150405"))
}
