package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threeStepPlan() *Plan {
	return &Plan{
		ID:      "p1",
		Mission: "test mission",
		Steps: []Step{
			{Position: 1, Description: "first", Status: StepPending},
			{Position: 2, Description: "second", Status: StepPending, DependsOn: []int{1}},
			{Position: 3, Description: "third", Status: StepPending, DependsOn: []int{1, 2}},
		},
	}
}

func TestPlanValidate(t *testing.T) {
	require.NoError(t, threeStepPlan().Validate())

	gap := threeStepPlan()
	gap.Steps[2].Position = 5
	assert.Error(t, gap.Validate())

	badDep := threeStepPlan()
	badDep.Steps[1].DependsOn = []int{9}
	assert.Error(t, badDep.Validate())

	selfDep := threeStepPlan()
	selfDep.Steps[1].DependsOn = []int{2}
	assert.Error(t, selfDep.Validate())
}

func TestIsCompleteRequiresNonEmptySteps(t *testing.T) {
	empty := &Plan{ID: "p0", Mission: "m"}
	assert.False(t, empty.IsComplete(), "empty plan is freshly created, not finished")

	p := threeStepPlan()
	assert.False(t, p.IsComplete())

	for i := range p.Steps {
		p.Steps[i].Status = StepDone
	}
	assert.True(t, p.IsComplete())

	p.Steps[1].Status = StepFailed
	assert.False(t, p.IsComplete())
}

func TestDependencyGate(t *testing.T) {
	p := threeStepPlan()

	// Step 2 depends on step 1, which is still pending.
	err := p.SetStatus(2, StepInProgress)
	require.Error(t, err)

	require.NoError(t, p.SetStatus(1, StepInProgress))
	require.NoError(t, p.SetStatus(1, StepDone))
	require.NoError(t, p.SetStatus(2, StepInProgress))
	require.NoError(t, p.SetStatus(2, StepDone))
	require.NoError(t, p.SetStatus(3, StepDone))

	assert.True(t, p.IsComplete())
}

func TestSetStatusFailedBypassesGate(t *testing.T) {
	p := threeStepPlan()
	// Marking failed is always allowed; only forward progress is gated.
	require.NoError(t, p.SetStatus(3, StepFailed))
}

func TestNextRunnable(t *testing.T) {
	p := threeStepPlan()

	next := p.NextRunnable()
	require.NotNil(t, next)
	assert.Equal(t, 1, next.Position)

	p.Steps[0].Status = StepDone
	next = p.NextRunnable()
	require.NotNil(t, next)
	assert.Equal(t, 2, next.Position)

	// Step 3 is blocked until both 1 and 2 are done.
	p.Steps[1].Status = StepFailed
	assert.Nil(t, p.NextRunnable())
}

func TestStepLookup(t *testing.T) {
	p := threeStepPlan()
	assert.Nil(t, p.Step(0))
	assert.Nil(t, p.Step(4))
	require.NotNil(t, p.Step(2))
	assert.Equal(t, "second", p.Step(2).Description)
}
