package parser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/grcflow/grcflow/model"
)

const structuredDefinition = `<?xml version="1.0"?>
<process id="vendor-review" name="Vendor Review" defaultAssignee="compliance-lead" created="2024-03-01T09:00:00Z">
  <step id="start" name="Start" kind="Start" sequence="0"/>
  <step id="collect" name="Collect Evidence" kind="Task" sequence="2" priority="1" dueInDays="5">
    <assignee>evidence-team</assignee>
    <description>Gather vendor evidence</description>
  </step>
  <step id="review" name="Review" kind="Task" sequence="1">
    <assignee>=riskLevel == "high" ? "ciso" : "analyst"</assignee>
  </step>
  <step id="end" name="End" kind="End" sequence="3"/>
</process>`

func TestParseStructured(t *testing.T) {
	ctx := context.Background()
	def := &model.ProcessDefinition{Id: "vendor-review", RawDefinition: []byte(structuredDefinition)}
	steps := Parse(ctx, def)
	require.Len(t, steps, 4)

	// ordered by declared sequence, not document order
	assert.Equal(t, "start", steps[0].Id)
	assert.Equal(t, "review", steps[1].Id)
	assert.Equal(t, "collect", steps[2].Id)
	assert.Equal(t, "end", steps[3].Id)

	assert.Equal(t, model.StepKindStart, steps[0].Kind)
	assert.Equal(t, model.StepKindTask, steps[2].Kind)
	assert.Equal(t, model.StepKindEnd, steps[3].Kind)

	assert.Equal(t, "evidence-team", steps[2].AssigneeRule)
	assert.Equal(t, 5, steps[2].DueDateOffsetDays)
	assert.Equal(t, 1, steps[2].Priority)
	assert.Equal(t, "Gather vendor evidence", steps[2].Description)

	// unspecified priority takes the default
	assert.Equal(t, 2, steps[1].Priority)
	assert.Equal(t, `=riskLevel == "high" ? "ciso" : "analyst"`, steps[1].AssigneeRule)
}

func TestParseFallbackFlatList(t *testing.T) {
	ctx := context.Background()
	def := &model.ProcessDefinition{
		Id: "flat",
		StepsJson: []byte(`[
			{"id":"s2","name":"Approve","type":"task","stepNumber":2,"assignee":"approver","daysToComplete":3},
			{"id":"s1","name":"Prepare","type":"task","stepNumber":1,"assignee":"preparer","priority":4,"description":"Prepare the report"}
		]`),
	}
	steps := Parse(ctx, def)
	require.Len(t, steps, 2)
	assert.Equal(t, "s1", steps[0].Id)
	assert.Equal(t, 4, steps[0].Priority)
	assert.Equal(t, "Prepare the report", steps[0].Description)
	assert.Equal(t, "s2", steps[1].Id)
	assert.Equal(t, 2, steps[1].Priority)
	assert.Equal(t, 3, steps[1].DueDateOffsetDays)
}

func TestParseStructuredPreferredOverFlat(t *testing.T) {
	ctx := context.Background()
	def := &model.ProcessDefinition{
		Id:            "both",
		RawDefinition: []byte(structuredDefinition),
		StepsJson:     []byte(`[{"id":"ignored","name":"x","type":"task","stepNumber":1}]`),
	}
	steps := Parse(ctx, def)
	require.Len(t, steps, 4)
	assert.Equal(t, "start", steps[0].Id)
}

func TestParseMalformedNeverFails(t *testing.T) {
	ctx := context.Background()
	def := &model.ProcessDefinition{
		Id:            "broken",
		RawDefinition: []byte(`<process><step id="x"`),
		StepsJson:     []byte(`{"not":"a list"}`),
	}
	steps := Parse(ctx, def)
	assert.NotNil(t, steps)
	assert.Empty(t, steps)
}

func TestParseEmptyPayloads(t *testing.T) {
	ctx := context.Background()
	steps := Parse(ctx, &model.ProcessDefinition{Id: "empty"})
	assert.NotNil(t, steps)
	assert.Empty(t, steps)
}

func TestMeta(t *testing.T) {
	ctx := context.Background()
	meta := Meta(ctx, []byte(structuredDefinition))
	assert.Equal(t, "Vendor Review", meta.Name)
	assert.Equal(t, "compliance-lead", meta.DefaultAssignee)
	require.NotNil(t, meta.Created)
	assert.Equal(t, 2024, meta.Created.Year())
}
