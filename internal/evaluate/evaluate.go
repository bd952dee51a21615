package evaluate

import (
	"fmt"
	"log/slog"
	"time"

	"dashsync/internal/domain"
)

// maxSamples caps offending values carried on one fired alert.
const maxSamples = 5

// Evaluator checks alert rules against dataset snapshots.
// Params: logger for per-rule skip/failure records.
// Returns: evaluator shared by all scheduler ticks.
type Evaluator struct {
	logger *slog.Logger
}

// New creates an evaluator.
// Params: logger.
// Returns: evaluator instance.
func New(logger *slog.Logger) *Evaluator {
	return &Evaluator{logger: logger}
}

// Evaluate runs every active rule against the table and updates trigger bookkeeping.
// Params: mutable rules, dataset snapshot, and evaluation instant.
// Returns: fired alerts for rules whose condition held. A failure inside one
// rule is logged and treated as not met for that rule only.
func (e *Evaluator) Evaluate(rules []*domain.AlertRule, table domain.Table, now time.Time) []domain.FiredAlert {
	fired := make([]domain.FiredAlert, 0)
	for _, rule := range rules {
		if rule == nil || !rule.Active {
			continue
		}
		alert, met := e.evaluateRule(rule, table, now)
		if !met {
			continue
		}
		rule.TriggerCount++
		triggeredAt := now
		rule.LastTriggeredAt = &triggeredAt
		fired = append(fired, alert)
	}
	return fired
}

// evaluateRule checks one rule with panic containment.
// Params: rule, table, and evaluation instant.
// Returns: fired alert and condition-met flag.
func (e *Evaluator) evaluateRule(rule *domain.AlertRule, table domain.Table, now time.Time) (alert domain.FiredAlert, met bool) {
	defer func() {
		if cause := recover(); cause != nil {
			met = false
			if e.logger != nil {
				e.logger.Error("rule evaluation failed", "rule_id", rule.ID, "error", fmt.Sprint(cause))
			}
		}
	}()

	values, ok := table.NumericColumn(rule.Column)
	if !ok {
		if e.logger != nil {
			e.logger.Debug("rule column absent", "rule_id", rule.ID, "column", rule.Column)
		}
		return domain.FiredAlert{}, false
	}

	var samples []float64
	var detail string
	switch cond := rule.Condition.(type) {
	case domain.ThresholdCondition:
		samples = thresholdMatches(values, cond)
		detail = fmt.Sprintf("%s %s %g matched %d of %d values",
			rule.Column, cond.Operator, cond.Value, len(samples), len(values))
	case domain.AnomalyCondition:
		if len(values) < 2 {
			return domain.FiredAlert{}, false
		}
		lower, upper, iqr := iqrBounds(values)
		if iqr == 0 {
			return domain.FiredAlert{}, false
		}
		for _, value := range values {
			if value < lower || value > upper {
				samples = append(samples, value)
			}
		}
		detail = fmt.Sprintf("%s has %d values outside [%g, %g]",
			rule.Column, len(samples), lower, upper)
	case domain.TrendCondition:
		if len(values) < 2 {
			return domain.FiredAlert{}, false
		}
		average := mean(values)
		last := values[len(values)-1]
		band := average * (1 + cond.Percent/100)
		if cond.Direction == domain.TrendDecreasing {
			band = average * (1 - cond.Percent/100)
			if last < band {
				samples = append(samples, last)
			}
		} else if last > band {
			samples = append(samples, last)
		}
		detail = fmt.Sprintf("%s last value %g vs mean %g, %s band %g",
			rule.Column, last, average, cond.Direction, band)
	default:
		if e.logger != nil {
			e.logger.Error("rule has no usable condition", "rule_id", rule.ID)
		}
		return domain.FiredAlert{}, false
	}

	if len(samples) == 0 {
		return domain.FiredAlert{}, false
	}
	if len(samples) > maxSamples {
		samples = samples[:maxSamples]
	}
	return domain.FiredAlert{
		RuleID:        rule.ID,
		RuleName:      rule.Name,
		Owner:         rule.Owner,
		ConditionKind: rule.Condition.Kind(),
		Column:        rule.Column,
		TriggeredAt:   now,
		Samples:       samples,
		RowCount:      table.RowCount(),
		Detail:        detail,
	}, true
}

// thresholdMatches collects values satisfying the threshold comparison.
// Params: column values and threshold condition.
// Returns: matching values in row order.
func thresholdMatches(values []float64, cond domain.ThresholdCondition) []float64 {
	var matches []float64
	for _, value := range values {
		var met bool
		switch cond.Operator {
		case domain.OpGreaterThan:
			met = value > cond.Value
		case domain.OpLessThan:
			met = value < cond.Value
		case domain.OpEquals:
			met = value == cond.Value
		case domain.OpNotEquals:
			met = value != cond.Value
		}
		if met {
			matches = append(matches, value)
		}
	}
	return matches
}
