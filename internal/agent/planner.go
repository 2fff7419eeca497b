package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/rahul/kestrel/internal/model"
	"github.com/rahul/kestrel/internal/store"
)

// ModelClient is the slice of the model gateway the engine depends on.
// Keeping it an interface lets tests substitute a scripted double.
type ModelClient interface {
	Complete(ctx context.Context, req model.CompleteRequest) model.Result
	Generate(ctx context.Context, prompt, alias string, params *model.Params) model.Result
}

// Planner derives clarification questions and structured plans from a
// mission, using function-call tools so the model's answer arrives as JSON
// rather than prose.
type Planner struct {
	Client  ModelClient
	Prompts *PromptManager
	Alias   string
}

const (
	clarifyToolName = "request_clarification"
	proposeToolName = "propose_plan"
)

var clarifyTool = llms.Tool{
	Type: "function",
	Function: &llms.FunctionDefinition{
		Name:        clarifyToolName,
		Description: "Ask the user up to three short questions needed before a plan can be made.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"questions": map[string]any{
					"type":  "array",
					"items": map[string]any{"type": "string"},
				},
			},
			"required": []string{"questions"},
		},
	},
}

var proposeTool = llms.Tool{
	Type: "function",
	Function: &llms.FunctionDefinition{
		Name:        proposeToolName,
		Description: "Submit a structured plan consisting of ordered, dependent steps.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"steps": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"position":    map[string]any{"type": "integer"},
							"description": map[string]any{"type": "string"},
							"depends_on": map[string]any{
								"type":  "array",
								"items": map[string]any{"type": "integer"},
							},
							"rationale": map[string]any{"type": "string"},
							"tool":      map[string]any{"type": "string"},
						},
						"required": []string{"position", "description"},
					},
				},
			},
			"required": []string{"steps"},
		},
	},
}

// Clarify asks for clarification questions about the mission. Questions the
// user already answered in earlier turns are filtered out. A nil slice means
// the mission is actionable as stated.
func (p *Planner) Clarify(ctx context.Context, mission, toolCatalog string, answered map[string]string) ([]string, error) {
	prompt := p.Prompts.ClarifierPrompt() + "\n\n## Available Tools:\n" + toolCatalog

	res := p.Client.Complete(ctx, model.CompleteRequest{
		Messages: []llms.MessageContent{
			systemMessage(prompt),
			humanMessage("Mission: " + mission + answersBlock(answered)),
		},
		Alias: p.Alias,
		Tools: []llms.Tool{clarifyTool},
	})
	if !res.Success {
		return nil, res.Err
	}

	for _, tc := range res.ToolCalls {
		if tc.FunctionCall == nil || tc.FunctionCall.Name != clarifyToolName {
			continue
		}
		var payload struct {
			Questions []string `json:"questions"`
		}
		if err := json.Unmarshal([]byte(tc.FunctionCall.Arguments), &payload); err != nil {
			return nil, &ModelContractError{
				Reason: fmt.Sprintf("unparseable %s arguments: %v", clarifyToolName, err),
				Raw:    tc.FunctionCall.Arguments,
			}
		}
		var open []string
		for _, q := range payload.Questions {
			q = strings.TrimSpace(q)
			if q == "" {
				continue
			}
			if _, ok := answered[q]; ok {
				continue
			}
			open = append(open, q)
		}
		return open, nil
	}

	// No tool call: the model judged the mission actionable.
	return nil, nil
}

// BuildPlan asks for a structured plan and converts it into store steps.
// Positions are normalized by order of appearance; the store enforces the
// contiguity invariant on create.
func (p *Planner) BuildPlan(ctx context.Context, mission, toolCatalog string, answers map[string]string) ([]store.Step, error) {
	prompt := p.Prompts.PlannerPrompt() + "\n\n## Available Tools:\n" + toolCatalog

	res := p.Client.Complete(ctx, model.CompleteRequest{
		Messages: []llms.MessageContent{
			systemMessage(prompt),
			humanMessage("Mission: " + mission + answersBlock(answers)),
		},
		Alias: p.Alias,
		Tools: []llms.Tool{proposeTool},
	})
	if !res.Success {
		return nil, res.Err
	}

	for _, tc := range res.ToolCalls {
		if tc.FunctionCall == nil || tc.FunctionCall.Name != proposeToolName {
			continue
		}
		var payload struct {
			Steps []struct {
				Position    int    `json:"position"`
				Description string `json:"description"`
				DependsOn   []int  `json:"depends_on"`
				Rationale   string `json:"rationale"`
				Tool        string `json:"tool"`
			} `json:"steps"`
		}
		if err := json.Unmarshal([]byte(tc.FunctionCall.Arguments), &payload); err != nil {
			return nil, &ModelContractError{
				Reason: fmt.Sprintf("unparseable %s arguments: %v", proposeToolName, err),
				Raw:    tc.FunctionCall.Arguments,
			}
		}
		if len(payload.Steps) == 0 {
			return nil, &ModelContractError{Reason: "plan has no steps", Raw: tc.FunctionCall.Arguments}
		}

		steps := make([]store.Step, 0, len(payload.Steps))
		for _, s := range payload.Steps {
			step := store.Step{
				Description: strings.TrimSpace(s.Description),
				DependsOn:   s.DependsOn,
				Rationale:   s.Rationale,
				Status:      store.StepPending,
			}
			if step.Description == "" {
				return nil, &ModelContractError{Reason: "step with empty description", Raw: tc.FunctionCall.Arguments}
			}
			if s.Tool != "" {
				step.ToolCall = &store.ToolCall{Tool: s.Tool}
			}
			steps = append(steps, step)
		}
		return steps, nil
	}

	return nil, &ModelContractError{
		Reason: "model returned prose instead of a " + proposeToolName + " call",
		Raw:    res.Content,
	}
}

func systemMessage(text string) llms.MessageContent {
	return llms.MessageContent{
		Role:  llms.ChatMessageTypeSystem,
		Parts: []llms.ContentPart{llms.TextPart(text)},
	}
}

func humanMessage(text string) llms.MessageContent {
	return llms.MessageContent{
		Role:  llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{llms.TextPart(text)},
	}
}

// answersBlock renders accumulated clarifications in a stable order, so a
// retried planning call sees the identical prompt.
func answersBlock(answers map[string]string) string {
	if len(answers) == 0 {
		return ""
	}
	questions := make([]string, 0, len(answers))
	for q := range answers {
		questions = append(questions, q)
	}
	sort.Strings(questions)

	var sb strings.Builder
	sb.WriteString("\n\n## Clarifications from the user:\n")
	for _, q := range questions {
		sb.WriteString(fmt.Sprintf("- Q: %s\n  A: %s\n", q, answers[q]))
	}
	return sb.String()
}
