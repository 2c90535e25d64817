// Package condition implements the condition evaluator: event
// conditions (simple and sequence mode), property conditions, and
// their combination into a rule's overall match result.
package condition

import (
	"math"

	"fluxflag/internal/compare"
	"fluxflag/internal/constants"
	"fluxflag/internal/jsonval"
	"fluxflag/internal/logger"
	"fluxflag/pkg/models"
)

type Evaluator struct {
	cmp *compare.Comparator
	log logger.Logger
}

func New(cmp *compare.Comparator, log logger.Logger) *Evaluator {
	if log == nil {
		log = logger.NopLogger()
	}
	return &Evaluator{cmp: cmp, log: log}
}

// EvaluateRule composes the three independent predicates with logical
// AND: event-config result, user-properties result, device-properties
// result. An absent block evaluates to true (vacuous).
func (e *Evaluator) EvaluateRule(rc models.RuleConditions, events []models.EventRecord, userProps, deviceProps map[string]string, nowMillis int64) bool {
	if !e.evaluateEventsConfig(rc.Events, events, nowMillis) {
		return false
	}

	op := rc.UserPropertiesOperator
	if !e.evaluatePropertyConditions(rc.UserProperties, op, userProps) {
		return false
	}

	op = rc.DeviceOperator
	if !e.evaluatePropertyConditions(rc.Device, op, deviceProps) {
		return false
	}

	return true
}

func combine(op string, results []bool) bool {
	if len(results) == 0 {
		return true
	}
	if op == models.BoolOperatorOR {
		for _, r := range results {
			if r {
				return true
			}
		}
		return false
	}
	// default AND
	for _, r := range results {
		if !r {
			return false
		}
	}
	return true
}

func (e *Evaluator) evaluatePropertyConditions(conds []models.PropertyCondition, op string, bag map[string]string) bool {
	if len(conds) == 0 {
		return true
	}

	results := make([]bool, len(conds))
	for i, c := range conds {
		results[i] = e.evaluatePropertyCondition(c, bag)
	}
	return combine(op, results)
}

func (e *Evaluator) evaluatePropertyCondition(c models.PropertyCondition, bag map[string]string) bool {
	v, ok := bag[c.Key]
	result := false
	if ok {
		result = e.cmp.Compare(jsonval.String(v), compare.Operator(c.Value.Operator), c.Value.Value)
	}
	if c.Not {
		return !result
	}
	return result
}

func (e *Evaluator) evaluateEventsConfig(cfg *models.EventsConfig, events []models.EventRecord, nowMillis int64) bool {
	if cfg == nil || len(cfg.Events) == 0 {
		return true
	}

	if cfg.Mode == models.EventsModeSequence {
		return e.evaluateSequence(*cfg, events, nowMillis)
	}

	results := make([]bool, len(cfg.Events))
	for i, ec := range cfg.Events {
		results[i] = e.evaluateSimpleEventCondition(ec, events, nowMillis)
	}
	return combine(cfg.Operator, results)
}

func nameOperator(ec models.EventCondition) string {
	if ec.Operator == "" {
		return string(compare.OpEqual)
	}
	return ec.Operator
}

func withinWindow(ts, now int64, days int) bool {
	if days < constants.MinWithinLastDays {
		days = constants.MinWithinLastDays
	}
	if days > constants.MaxWithinLastDays {
		days = constants.MaxWithinLastDays
	}
	cutoff := now - int64(days)*86_400_000
	return ts >= cutoff
}

func (e *Evaluator) matchesEventName(ev models.EventRecord, ec models.EventCondition) bool {
	return e.cmp.Compare(jsonval.String(ev.Name), compare.Operator(nameOperator(ec)), jsonval.String(ec.Key))
}

func (e *Evaluator) matchesParams(ev models.EventRecord, ec models.EventCondition) bool {
	if len(ec.Param) == 0 {
		return true
	}
	for key, operand := range ec.Param {
		v, ok := ev.Parameters[key]
		if !ok {
			return false
		}
		if !e.cmp.Compare(jsonval.String(v), compare.Operator(operand.Operator), operand.Value) {
			return false
		}
	}
	return true
}

// matchingSublist returns M, the sublist of events whose name matches
// the condition's key/operator and whose timestamp falls within
// within_last_days when specified.
func (e *Evaluator) matchingSublist(ec models.EventCondition, events []models.EventRecord, nowMillis int64) []models.EventRecord {
	out := make([]models.EventRecord, 0, len(events))
	for _, ev := range events {
		if !e.matchesEventName(ev, ec) {
			continue
		}
		if ec.WithinLastDays != nil && !withinWindow(ev.Timestamp, nowMillis, *ec.WithinLastDays) {
			continue
		}
		out = append(out, ev)
	}
	return out
}

func (e *Evaluator) evaluateSimpleEventCondition(ec models.EventCondition, events []models.EventRecord, nowMillis int64) bool {
	matches := e.matchingSublist(ec, events, nowMillis)

	var result bool
	switch {
	case ec.Count != nil:
		result = e.cmp.Compare(jsonval.Number(float64(len(matches))), compare.Operator(ec.Count.Operator), ec.Count.Value)
	case len(ec.Param) > 0:
		result = false
		for _, ev := range matches {
			if e.matchesParams(ev, ec) {
				result = true
				break
			}
		}
	default:
		result = len(matches) > 0
	}

	if ec.Not {
		return !result
	}
	return result
}

// saturatingAdd protects sequence-mode count accumulation against
// integer overflow.
func saturatingAdd(a, b int) int {
	if a > math.MaxInt-b {
		return math.MaxInt
	}
	return a + b
}

// stepCap returns the maximum number of events a direct-sequence step
// may consume, derived from its count operator.
func stepCap(count *models.ValueOperand, fallback int) int {
	if count == nil {
		return fallback
	}
	n, ok := count.Value.AsNumber()
	if !ok {
		return fallback
	}
	k := int(n)
	switch compare.Operator(count.Operator) {
	case compare.OpEqual, compare.OpLessOrEqual:
		return k
	case compare.OpLessThan:
		if k-1 < 0 {
			return 0
		}
		return k - 1
	default: // >=, >, or anything else: unbounded
		return fallback
	}
}

func (e *Evaluator) evaluateSequence(cfg models.EventsConfig, events []models.EventRecord, nowMillis int64) bool {
	if cfg.Ordering == models.OrderingIndirect {
		return e.evaluateIndirectSequence(cfg.Events, events, nowMillis)
	}
	return e.evaluateDirectSequence(cfg.Events, events, nowMillis)
}

// evaluateDirectSequence assigns consecutive events to consecutive
// steps starting from the very first event. For events [A,B,C,A,D], a
// direct [A,D] sequence is false: it is B, not D, that must follow the
// leading A. Direct sequences are anchored at index 0, not matched at
// an arbitrary start index; scanning every start index would let a
// later, unrelated adjacent pair (the A at index 3 and D at index 4)
// satisfy the sequence, which is exactly what "direct" rules out.
func (e *Evaluator) evaluateDirectSequence(steps []models.EventCondition, events []models.EventRecord, nowMillis int64) bool {
	n := len(events)
	idx := 0

	for _, step := range steps {
		stepMax := stepCap(step.Count, n-idx)
		consumed := 0

		for idx < n && consumed < stepMax {
			ev := events[idx]
			if !e.matchesEventName(ev, step) {
				break
			}
			if step.WithinLastDays != nil && !withinWindow(ev.Timestamp, nowMillis, *step.WithinLastDays) {
				break
			}
			if !e.matchesParams(ev, step) {
				break
			}
			consumed = saturatingAdd(consumed, 1)
			idx++
		}

		var stepOK bool
		if step.Count != nil {
			stepOK = e.cmp.Compare(jsonval.Number(float64(consumed)), compare.Operator(step.Count.Operator), step.Count.Value)
		} else {
			stepOK = consumed > 0
		}

		if !stepOK {
			return false
		}
	}

	return true
}

// evaluateIndirectSequence requires steps to match in order, allowing
// arbitrary events between successive step matches: a forward scan
// from the previous match, advancing past it on each step.
func (e *Evaluator) evaluateIndirectSequence(steps []models.EventCondition, events []models.EventRecord, nowMillis int64) bool {
	pos := 0

	for _, step := range steps {
		if step.Count == nil {
			found := -1
			for i := pos; i < len(events); i++ {
				ev := events[i]
				if e.matchesEventName(ev, step) &&
					(step.WithinLastDays == nil || withinWindow(ev.Timestamp, nowMillis, *step.WithinLastDays)) &&
					e.matchesParams(ev, step) {
					found = i
					break
				}
			}
			if found < 0 {
				return false
			}
			pos = found + 1
			continue
		}

		count := 0
		last := -1
		for i := pos; i < len(events); i++ {
			ev := events[i]
			if e.matchesEventName(ev, step) &&
				(step.WithinLastDays == nil || withinWindow(ev.Timestamp, nowMillis, *step.WithinLastDays)) &&
				e.matchesParams(ev, step) {
				count = saturatingAdd(count, 1)
				last = i
			}
		}

		if !e.cmp.Compare(jsonval.Number(float64(count)), compare.Operator(step.Count.Operator), step.Count.Value) {
			return false
		}
		if last < 0 {
			return false
		}
		pos = last + 1
	}

	return true
}
