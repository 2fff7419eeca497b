package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/rahul/kestrel/internal/convo"
	"github.com/rahul/kestrel/internal/governance"
	"github.com/rahul/kestrel/internal/model"
	"github.com/rahul/kestrel/internal/observability"
	"github.com/rahul/kestrel/internal/store"
	"github.com/rahul/kestrel/internal/tools"
	"github.com/rahul/kestrel/pkg/config"
)

// Config tunes the engine. Alias names select which configured model handles
// each role.
type Config struct {
	MaxSteps          int
	CompressThreshold int
	CompressKeep      int
	HistoryLimit      int
	Clarify           bool
	PlannerAlias      string
	ExecutorAlias     string
	SummarizerAlias   string
}

// FromEngineConfig builds an engine Config from the loaded file config.
func FromEngineConfig(ec config.EngineConfig) Config {
	return Config{
		MaxSteps:          ec.MaxSteps,
		CompressThreshold: ec.CompressThreshold,
		CompressKeep:      ec.CompressKeep,
		HistoryLimit:      ec.HistoryLimit,
		Clarify:           ec.Clarify,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxSteps < 1 {
		c.MaxSteps = 12
	}
	if c.CompressThreshold < 4 {
		c.CompressThreshold = 40
	}
	if c.CompressKeep < 1 {
		c.CompressKeep = 10
	}
	if c.HistoryLimit < 1 {
		c.HistoryLimit = 20
	}
	if c.PlannerAlias == "" {
		c.PlannerAlias = "planner"
	}
	if c.ExecutorAlias == "" {
		c.ExecutorAlias = "executor"
	}
	if c.SummarizerAlias == "" {
		c.SummarizerAlias = "summarizer"
	}
	return c
}

// Engine drives one session at a time through the mission lifecycle:
// decide whether the incoming message answers a question, resets a finished
// mission or continues the current one, make sure a plan exists, then loop
// think/act until the model produces a final response.
type Engine struct {
	client   ModelClient
	store    *store.Store
	registry *tools.Registry
	policy   governance.PolicyEngine
	prompts  *PromptManager
	logger   *observability.Logger
	planner  *Planner
	cfg      Config

	mu   sync.Mutex
	logs map[string]*convo.Log
}

func NewEngine(client ModelClient, st *store.Store, registry *tools.Registry, policy governance.PolicyEngine, prompts *PromptManager, logger *observability.Logger, cfg Config) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		client:   client,
		store:    st,
		registry: registry,
		policy:   policy,
		prompts:  prompts,
		logger:   logger,
		planner:  &Planner{Client: client, Prompts: prompts, Alias: cfg.PlannerAlias},
		cfg:      cfg,
		logs:     make(map[string]*convo.Log),
	}
}

// Execute processes one user message for a session and streams lifecycle
// events. The channel is closed when the turn reaches a terminal state.
// Callers must drain the channel or cancel ctx; an abandoned stream blocks
// the turn once the event buffer fills.
func (e *Engine) Execute(ctx context.Context, sessionID, userMessage string) <-chan Event {
	events := make(chan Event, 32)
	go func() {
		defer close(events)
		e.run(ctx, sessionID, userMessage, events)
	}()
	return events
}

func (e *Engine) run(ctx context.Context, sessionID, userMessage string, events chan<- Event) {
	emit := func(t EventType, data map[string]any) {
		evt := Event{Type: t, SessionID: sessionID, Data: data, Timestamp: time.Now()}
		select {
		case events <- evt:
		case <-ctx.Done():
		}
	}

	st := e.loadSession(sessionID)
	cl := e.conversation(sessionID)

	cl.Append(convo.RoleUser, userMessage)
	e.persist(sessionID, convo.RoleUser, userMessage)

	if st.PendingQuestion != "" {
		// The message answers the open question. The plan decision carries
		// over from the turn that asked, so the mission is never reset here.
		st.Answers[st.PendingQuestion] = userMessage
		st.PendingQuestion = ""
		e.saveSession(st)
		e.logger.LogState(sessionID, map[string]any{"event": "clarification_answered"})
	} else if prev := e.maybeResetMission(st); prev != "" {
		emit(EventStateUpdated, map[string]any{"mission_reset": true, "previous_plan_id": prev})
		e.logger.LogState(sessionID, map[string]any{"event": "mission_reset", "previous_plan_id": prev})
	}

	plan, terminal := e.ensurePlan(ctx, st, cl, userMessage, emit)
	if terminal {
		return
	}

	e.thinkAct(ctx, st, plan, cl, emit)
}

// maybeResetMission clears the session's plan linkage when the current plan
// is fully done, returning the superseded plan id. A dangling plan id whose
// record is gone is cleared without a reset: the next message simply starts
// a fresh mission.
func (e *Engine) maybeResetMission(st *store.SessionState) string {
	if st.PlanID == "" {
		return ""
	}
	plan, err := e.store.LoadPlan(st.PlanID)
	if err != nil {
		log.Printf("engine: session %s references missing plan %s: %v", st.SessionID, st.PlanID, err)
		st.PlanID = ""
		st.Mission = ""
		e.saveSession(st)
		return ""
	}
	if !plan.IsComplete() {
		return ""
	}
	prev := st.PlanID
	st.PlanID = ""
	st.Mission = ""
	e.saveSession(st)
	return prev
}

// ensurePlan loads the active plan or creates one for a fresh mission,
// possibly pausing to ask the user a clarification question first. The bool
// reports whether the turn ended here.
func (e *Engine) ensurePlan(ctx context.Context, st *store.SessionState, cl *convo.Log, userMessage string, emit func(EventType, map[string]any)) (*store.Plan, bool) {
	if st.PlanID != "" {
		plan, err := e.store.LoadPlan(st.PlanID)
		if err == nil {
			return plan, false
		}
		log.Printf("engine: session %s lost plan %s mid-mission: %v", st.SessionID, st.PlanID, err)
		st.PlanID = ""
		e.saveSession(st)
	}

	if st.Mission == "" {
		st.Mission = userMessage
		e.saveSession(st)
	}
	observability.SetStatus(observability.PhasePlanning, st.Mission)
	catalog := e.registry.Catalog()

	if e.cfg.Clarify {
		questions, err := e.planner.Clarify(ctx, st.Mission, catalog, st.Answers)
		if err != nil {
			e.fail(emit, err)
			return nil, true
		}
		if len(questions) > 0 {
			q := questions[0]
			st.PendingQuestion = q
			e.saveSession(st)
			cl.Append(convo.RoleAssistant, q)
			e.persist(st.SessionID, convo.RoleAssistant, q)
			emit(EventClarificationRequested, map[string]any{"question": q})
			observability.SetStatus(observability.PhaseAwaiting, st.Mission)
			return nil, true
		}
	}

	steps, err := e.planner.BuildPlan(ctx, st.Mission, catalog, st.Answers)
	if err != nil {
		e.fail(emit, err)
		return nil, true
	}
	plan, err := e.store.CreatePlan(st.Mission, steps)
	if err != nil {
		e.fail(emit, fmt.Errorf("persisting plan: %w", err))
		return nil, true
	}
	st.PlanID = plan.ID
	e.saveSession(st)

	e.logger.Log(observability.Event{
		Type:      observability.EventTypePlan,
		SessionID: st.SessionID,
		PlanID:    plan.ID,
		Data:      map[string]any{"steps": len(plan.Steps)},
		Timestamp: time.Now(),
	})
	emit(EventStateUpdated, map[string]any{"plan_created": plan.ID, "steps": len(plan.Steps)})
	return plan, false
}

// thinkAct is the bounded reasoning loop: ask the executor model for the next
// move, run the tool it picks, feed the observation back, repeat.
func (e *Engine) thinkAct(ctx context.Context, st *store.SessionState, plan *store.Plan, cl *convo.Log, emit func(EventType, map[string]any)) {
	observability.SetStatus(observability.PhaseExecuting, st.Mission)
	defer observability.SetStatus(observability.PhaseIdle, "")

	defs := e.toolDefinitions()

	for i := 0; i < e.cfg.MaxSteps; i++ {
		cl.CompressIfNeeded(ctx)

		messages := append(cl.ModelMessages(), humanMessage(renderPlan(plan)))
		res := e.client.Complete(ctx, model.CompleteRequest{
			Messages: messages,
			Alias:    e.cfg.ExecutorAlias,
			Tools:    defs,
		})
		if !res.Success {
			e.fail(emit, res.Err)
			return
		}

		if len(res.ToolCalls) == 0 {
			final := strings.TrimSpace(res.Content)
			cl.Append(convo.RoleAssistant, final)
			e.persist(st.SessionID, convo.RoleAssistant, final)
			emit(EventComplete, map[string]any{"response": final, "plan_complete": plan.IsComplete()})
			return
		}

		if c := strings.TrimSpace(res.Content); c != "" {
			cl.Append(convo.RoleAssistant, c)
			e.persist(st.SessionID, convo.RoleAssistant, c)
			e.logger.LogReasoning(st.SessionID, st.PlanID, fmt.Sprintf("%d chars", len(c)))
		}

		for _, tc := range res.ToolCalls {
			if tc.FunctionCall == nil {
				continue
			}
			name := tc.FunctionCall.Name
			args := tc.FunctionCall.Arguments

			emit(EventThought, map[string]any{"tool": name})
			e.logger.LogToolCall(st.SessionID, st.PlanID, name)

			output, failed, question := e.invokeTool(ctx, st.SessionID, name, args)
			if question != "" {
				st.PendingQuestion = question
				e.saveSession(st)
				cl.Append(convo.RoleAssistant, question)
				e.persist(st.SessionID, convo.RoleAssistant, question)
				emit(EventClarificationRequested, map[string]any{"question": question, "tool": name})
				observability.SetStatus(observability.PhaseAwaiting, st.Mission)
				return
			}

			e.recordStep(st, plan, name, args, output, failed, emit)
			cl.Append(convo.RoleTool, output)
			e.persist(st.SessionID, convo.RoleTool, output)
		}
	}

	emit(EventError, map[string]any{"kind": "step_limit", "message": ErrStepBudget.Error()})
}

// invokeTool resolves, authorizes and runs one tool call. A non-empty
// question means the tool needs user input before the step can run; failed
// distinguishes a step failure from a regular observation.
func (e *Engine) invokeTool(ctx context.Context, sessionID, name, args string) (output string, failed bool, question string) {
	tool := e.registry.Get(name)
	if tool == nil {
		return "Error: unknown tool " + name, true, ""
	}
	if err := validateArguments(tool, args); err != nil {
		return "Error: invalid arguments for " + name + ": " + err.Error(), true, ""
	}

	verdict, err := e.policy.Evaluate(ctx, governance.Request{Tool: name, Arguments: args, SessionID: sessionID})
	if err != nil {
		return "Error: policy evaluation failed: " + err.Error(), true, ""
	}
	e.logger.Log(observability.Event{
		Type:      observability.EventTypePolicyCheck,
		SessionID: sessionID,
		Data:      map[string]any{"tool": name, "effect": string(verdict.Effect)},
		Timestamp: time.Now(),
	})
	if verdict.Effect == governance.EffectDeny {
		return "Policy denied: " + verdict.Reason, true, ""
	}

	out, err := tool.Execute(tools.WithSessionID(ctx, sessionID), args)
	var clarify *tools.ClarificationError
	if errors.As(err, &clarify) {
		return "", false, clarify.Question
	}
	if err != nil {
		execErr := &ToolExecutionError{Tool: name, Err: err}
		return "Error: " + execErr.Error(), true, ""
	}
	return out, false, ""
}

// recordStep binds a tool observation to the next runnable plan step and
// persists the plan. The model can call tools past the planned step count;
// those extras update nothing.
func (e *Engine) recordStep(st *store.SessionState, plan *store.Plan, name, args, output string, failed bool, emit func(EventType, map[string]any)) {
	status := store.StepDone
	if failed {
		status = store.StepFailed
	}
	data := map[string]any{"tool": name, "status": string(status)}

	if step := plan.NextRunnable(); step != nil {
		if err := plan.SetStatus(step.Position, store.StepInProgress); err == nil {
			_ = plan.SetStatus(step.Position, status)
		}
		step.ToolCall = &store.ToolCall{Tool: name, Arguments: args}
		step.Result = truncate(output, 2000)
		if err := e.store.SavePlan(plan); err != nil {
			log.Printf("engine: saving plan %s: %v", plan.ID, err)
		}
		e.logger.LogStep(st.SessionID, plan.ID, step.Position, string(status))
		data["step"] = step.Position
	}

	emit(EventToolResult, data)
}

func (e *Engine) fail(emit func(EventType, map[string]any), err error) {
	data := map[string]any{"message": err.Error()}
	var callErr *model.CallError
	var contractErr *ModelContractError
	switch {
	case errors.As(err, &callErr):
		data["kind"] = string(callErr.Kind)
	case errors.As(err, &contractErr):
		data["kind"] = "model_contract"
	default:
		data["kind"] = "internal"
	}
	emit(EventError, data)
	observability.SetStatus(observability.PhaseIdle, "")
}

func (e *Engine) loadSession(sessionID string) *store.SessionState {
	st, err := e.store.LoadSession(sessionID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("engine: loading session %s: %v", sessionID, err)
		}
		st = &store.SessionState{SessionID: sessionID}
	}
	if st.Answers == nil {
		st.Answers = make(map[string]string)
	}
	return st
}

func (e *Engine) saveSession(st *store.SessionState) {
	if err := e.store.SaveSession(st); err != nil {
		log.Printf("engine: saving session %s: %v", st.SessionID, err)
	}
}

func (e *Engine) persist(sessionID string, role convo.Role, content string) {
	if err := e.store.AddMessage(sessionID, role, content); err != nil {
		log.Printf("engine: persisting %s message: %v", role, err)
	}
}

// conversation returns the in-memory log for a session, seeding it from
// stored history on first use so restarts keep recent context.
func (e *Engine) conversation(sessionID string) *convo.Log {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cl, ok := e.logs[sessionID]; ok {
		return cl
	}
	summarizer := &gatewaySummarizer{
		client: e.client,
		prompt: e.prompts.SummaryPrompt(),
		alias:  e.cfg.SummarizerAlias,
	}
	cl := convo.New(e.prompts.SystemPrompt(), e.cfg.CompressThreshold, e.cfg.CompressKeep, summarizer)
	history, err := e.store.GetHistory(sessionID, e.cfg.HistoryLimit)
	if err != nil {
		log.Printf("engine: loading history for %s: %v", sessionID, err)
	}
	for _, m := range history {
		if m.Role == convo.RoleSystem {
			continue
		}
		cl.Append(m.Role, m.Content)
	}
	e.logs[sessionID] = cl
	return cl
}

func (e *Engine) toolDefinitions() []llms.Tool {
	names := make([]string, 0, len(e.registry.Tools))
	for name := range e.registry.Tools {
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make([]llms.Tool, 0, len(names))
	for _, name := range names {
		t := e.registry.Tools[name]
		defs = append(defs, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}

// validateArguments checks that the payload is a JSON object carrying every
// key the tool's schema marks required.
func validateArguments(t tools.Tool, args string) error {
	var payload map[string]any
	if err := json.Unmarshal([]byte(args), &payload); err != nil {
		return fmt.Errorf("not a JSON object: %w", err)
	}
	schema := t.Parameters()
	required, _ := schema["required"].([]string)
	if required == nil {
		if raw, ok := schema["required"].([]any); ok {
			for _, r := range raw {
				if s, ok := r.(string); ok {
					required = append(required, s)
				}
			}
		}
	}
	for _, key := range required {
		if _, ok := payload[key]; !ok {
			return fmt.Errorf("missing required field %q", key)
		}
	}
	return nil
}

func renderPlan(p *store.Plan) string {
	var sb strings.Builder
	sb.WriteString("Current plan status:\n")
	for _, s := range p.Steps {
		fmt.Fprintf(&sb, "%d. [%s] %s\n", s.Position, s.Status, s.Description)
	}
	if p.IsComplete() {
		sb.WriteString("\nEvery step is done. Reply with the final answer and do not call more tools.")
	} else if next := p.NextRunnable(); next != nil {
		fmt.Fprintf(&sb, "\nWork on step %d next.", next.Position)
	}
	return sb.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "... (truncated)"
}

// gatewaySummarizer compresses transcript chunks through the summarizer
// alias so conversation compression reuses the same retry and telemetry
// path as every other model call.
type gatewaySummarizer struct {
	client ModelClient
	prompt string
	alias  string
}

func (s *gatewaySummarizer) Summarize(ctx context.Context, transcript string) (string, error) {
	res := s.client.Generate(ctx, s.prompt+"\n\n"+transcript, s.alias, nil)
	if !res.Success {
		return "", res.Err
	}
	return strings.TrimSpace(res.Content), nil
}
