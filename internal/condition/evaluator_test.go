package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"fluxflag/internal/compare"
	"fluxflag/internal/jsonval"
	"fluxflag/pkg/models"
)

func newEvaluator() *Evaluator {
	return New(compare.New(nil), nil)
}

func eq(v string) models.ValueOperand {
	return models.ValueOperand{Operator: "==", Value: jsonval.String(v)}
}

func countAtLeast(n int) *models.ValueOperand {
	return &models.ValueOperand{Operator: ">=", Value: jsonval.Number(float64(n))}
}

func TestEvaluateRuleVacuousWhenEmpty(t *testing.T) {
	e := newEvaluator()
	assert.True(t, e.EvaluateRule(models.RuleConditions{}, nil, nil, nil, 0))
}

func TestEvaluatePropertyConditions(t *testing.T) {
	e := newEvaluator()

	rc := models.RuleConditions{
		UserProperties: []models.PropertyCondition{
			{Key: "plan", Value: eq("pro")},
		},
	}
	assert.True(t, e.EvaluateRule(rc, nil, map[string]string{"plan": "pro"}, nil, 0))
	assert.False(t, e.EvaluateRule(rc, nil, map[string]string{"plan": "free"}, nil, 0))
	assert.False(t, e.EvaluateRule(rc, nil, nil, nil, 0))
}

func TestEvaluatePropertyConditionNotFlag(t *testing.T) {
	e := newEvaluator()
	rc := models.RuleConditions{
		UserProperties: []models.PropertyCondition{
			{Key: "plan", Value: eq("pro"), Not: true},
		},
	}
	assert.False(t, e.EvaluateRule(rc, nil, map[string]string{"plan": "pro"}, nil, 0))
	assert.True(t, e.EvaluateRule(rc, nil, map[string]string{"plan": "free"}, nil, 0))
}

func TestEvaluatePropertyConditionsORCombinator(t *testing.T) {
	e := newEvaluator()
	rc := models.RuleConditions{
		UserProperties: []models.PropertyCondition{
			{Key: "plan", Value: eq("pro")},
			{Key: "plan", Value: eq("enterprise")},
		},
		UserPropertiesOperator: models.BoolOperatorOR,
	}
	assert.True(t, e.EvaluateRule(rc, nil, map[string]string{"plan": "enterprise"}, nil, 0))
	assert.False(t, e.EvaluateRule(rc, nil, map[string]string{"plan": "free"}, nil, 0))
}

func TestEvaluateSimpleEventConditionPresence(t *testing.T) {
	e := newEvaluator()
	events := []models.EventRecord{{Name: "purchase", Timestamp: 100}}

	cfg := &models.EventsConfig{
		Mode:   models.EventsModeSimple,
		Events: []models.EventCondition{{Key: "purchase"}},
	}
	rc := models.RuleConditions{Events: cfg}
	assert.True(t, e.EvaluateRule(rc, events, nil, nil, 1000))

	cfg.Events[0].Key = "refund"
	assert.False(t, e.EvaluateRule(rc, events, nil, nil, 1000))
}

func TestEvaluateSimpleEventConditionCount(t *testing.T) {
	e := newEvaluator()
	events := []models.EventRecord{
		{Name: "purchase", Timestamp: 1},
		{Name: "purchase", Timestamp: 2},
		{Name: "purchase", Timestamp: 3},
	}
	cfg := &models.EventsConfig{
		Events: []models.EventCondition{{Key: "purchase", Count: countAtLeast(3)}},
	}
	rc := models.RuleConditions{Events: cfg}
	assert.True(t, e.EvaluateRule(rc, events, nil, nil, 10))

	cfg.Events[0].Count = countAtLeast(4)
	assert.False(t, e.EvaluateRule(rc, events, nil, nil, 10))
}

func TestEvaluateSimpleEventConditionWithinLastDays(t *testing.T) {
	e := newEvaluator()
	const day = int64(86_400_000)
	events := []models.EventRecord{{Name: "purchase", Timestamp: 0}}

	within := 1
	cfg := &models.EventsConfig{
		Events: []models.EventCondition{{Key: "purchase", WithinLastDays: &within}},
	}
	rc := models.RuleConditions{Events: cfg}

	assert.True(t, e.EvaluateRule(rc, events, nil, nil, day/2))
	assert.False(t, e.EvaluateRule(rc, events, nil, nil, day*3))
}

func TestEvaluateSimpleEventConditionParams(t *testing.T) {
	e := newEvaluator()
	events := []models.EventRecord{
		{Name: "purchase", Timestamp: 1, Parameters: map[string]string{"sku": "widget"}},
	}
	cfg := &models.EventsConfig{
		Events: []models.EventCondition{{
			Key:   "purchase",
			Param: map[string]models.ValueOperand{"sku": eq("widget")},
		}},
	}
	rc := models.RuleConditions{Events: cfg}
	assert.True(t, e.EvaluateRule(rc, events, nil, nil, 10))

	cfg.Events[0].Param["sku"] = eq("gadget")
	assert.False(t, e.EvaluateRule(rc, events, nil, nil, 10))
}

func TestEvaluateDirectSequence(t *testing.T) {
	e := newEvaluator()
	events := []models.EventRecord{
		{Name: "signup", Timestamp: 1},
		{Name: "purchase", Timestamp: 2},
	}
	cfg := &models.EventsConfig{
		Mode:     models.EventsModeSequence,
		Ordering: models.OrderingDirect,
		Events: []models.EventCondition{
			{Key: "signup"},
			{Key: "purchase"},
		},
	}
	rc := models.RuleConditions{Events: cfg}
	assert.True(t, e.EvaluateRule(rc, events, nil, nil, 10))

	reordered := []models.EventRecord{
		{Name: "purchase", Timestamp: 1},
		{Name: "signup", Timestamp: 2},
	}
	assert.False(t, e.EvaluateRule(rc, reordered, nil, nil, 10))
}

// Events [A,B,C,A,D] must NOT satisfy a direct [A,D] sequence, even
// though the second A and the D happen to be adjacent, because direct
// sequences anchor at the first event.
func TestEvaluateDirectSequenceRejectsNonLeadingAdjacentMatch(t *testing.T) {
	e := newEvaluator()
	events := []models.EventRecord{
		{Name: "A", Timestamp: 1},
		{Name: "B", Timestamp: 2},
		{Name: "C", Timestamp: 3},
		{Name: "A", Timestamp: 4},
		{Name: "D", Timestamp: 5},
	}
	cfg := &models.EventsConfig{
		Mode:     models.EventsModeSequence,
		Ordering: models.OrderingDirect,
		Events: []models.EventCondition{
			{Key: "A"},
			{Key: "D"},
		},
	}
	rc := models.RuleConditions{Events: cfg}
	assert.False(t, e.EvaluateRule(rc, events, nil, nil, 10))
}

func TestEvaluateIndirectSequenceAllowsGaps(t *testing.T) {
	e := newEvaluator()
	events := []models.EventRecord{
		{Name: "signup", Timestamp: 1},
		{Name: "view_page", Timestamp: 2},
		{Name: "view_page", Timestamp: 3},
		{Name: "purchase", Timestamp: 4},
	}
	cfg := &models.EventsConfig{
		Mode:     models.EventsModeSequence,
		Ordering: models.OrderingIndirect,
		Events: []models.EventCondition{
			{Key: "signup"},
			{Key: "purchase"},
		},
	}
	rc := models.RuleConditions{Events: cfg}
	assert.True(t, e.EvaluateRule(rc, events, nil, nil, 10))
}

func TestEvaluateIndirectSequenceWithCountStep(t *testing.T) {
	e := newEvaluator()
	events := []models.EventRecord{
		{Name: "view_page", Timestamp: 1},
		{Name: "view_page", Timestamp: 2},
		{Name: "view_page", Timestamp: 3},
	}
	cfg := &models.EventsConfig{
		Mode:     models.EventsModeSequence,
		Ordering: models.OrderingIndirect,
		Events: []models.EventCondition{
			{Key: "view_page", Count: countAtLeast(3)},
		},
	}
	rc := models.RuleConditions{Events: cfg}
	assert.True(t, e.EvaluateRule(rc, events, nil, nil, 10))

	cfg.Events[0].Count = countAtLeast(4)
	assert.False(t, e.EvaluateRule(rc, events, nil, nil, 10))
}
