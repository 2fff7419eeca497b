package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahul/kestrel/internal/convo"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPlanRoundTrip(t *testing.T) {
	s := newTestStore(t)

	plan, err := s.CreatePlan("research topic A", []Step{
		{Description: "search the web"},
		{Description: "summarize findings", DependsOn: []int{1}},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, plan.ID)
	assert.Equal(t, 1, plan.Steps[0].Position)
	assert.Equal(t, StepPending, plan.Steps[0].Status)

	loaded, err := s.LoadPlan(plan.ID)
	require.NoError(t, err)
	assert.Equal(t, "research topic A", loaded.Mission)
	require.Len(t, loaded.Steps, 2)
	assert.Equal(t, []int{1}, loaded.Steps[1].DependsOn)

	require.NoError(t, loaded.SetStatus(1, StepDone))
	loaded.Steps[0].Result = "found three sources"
	require.NoError(t, s.SavePlan(loaded))

	again, err := s.LoadPlan(plan.ID)
	require.NoError(t, err)
	assert.Equal(t, StepDone, again.Steps[0].Status)
	assert.Equal(t, "found three sources", again.Steps[0].Result)
}

func TestLoadPlanNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.LoadPlan("no-such-plan")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSavePlanNotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.SavePlan(&Plan{ID: "ghost", Mission: "m"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSessionRoundTrip(t *testing.T) {
	s := newTestStore(t)

	_, err := s.LoadSession("chat-1")
	require.ErrorIs(t, err, ErrNotFound)

	st := &SessionState{
		SessionID:       "chat-1",
		PlanID:          "p1",
		Mission:         "explain topic A",
		PendingQuestion: "which audience?",
		Answers:         map[string]string{"which audience?": "beginners"},
	}
	require.NoError(t, s.SaveSession(st))

	loaded, err := s.LoadSession("chat-1")
	require.NoError(t, err)
	assert.Equal(t, "p1", loaded.PlanID)
	assert.Equal(t, "which audience?", loaded.PendingQuestion)
	assert.Equal(t, "beginners", loaded.Answers["which audience?"])

	// Save is an upsert: clearing the plan linkage persists.
	loaded.PlanID = ""
	loaded.PendingQuestion = ""
	require.NoError(t, s.SaveSession(loaded))

	again, err := s.LoadSession("chat-1")
	require.NoError(t, err)
	assert.Empty(t, again.PlanID)
	assert.Empty(t, again.PendingQuestion)
	// Answers survive resets.
	assert.Equal(t, "beginners", again.Answers["which audience?"])
}

func TestHistoryChronologicalOrder(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.AddMessage("chat-1", convo.RoleUser, "first"))
	require.NoError(t, s.AddMessage("chat-1", convo.RoleAssistant, "second"))
	require.NoError(t, s.AddMessage("chat-1", convo.RoleUser, "third"))
	require.NoError(t, s.AddMessage("chat-2", convo.RoleUser, "other session"))

	history, err := s.GetHistory("chat-1", 10)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "first", history[0].Content)
	assert.Equal(t, "third", history[2].Content)
	assert.Equal(t, convo.RoleAssistant, history[1].Role)

	limited, err := s.GetHistory("chat-1", 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "second", limited[0].Content)
}

func TestScheduledTasks(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.AddTask("chat-1", "check the news", 60*time.Second))

	tasks, err := s.GetPendingTasks()
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "check the news", tasks[0].Description)
	assert.Equal(t, time.Minute, tasks[0].Interval)

	require.NoError(t, s.UpdateTaskLastRun(tasks[0].ID))
	tasks, err = s.GetPendingTasks()
	require.NoError(t, err)
	assert.Empty(t, tasks)

	require.NoError(t, s.ClearTasks("chat-1"))
}
