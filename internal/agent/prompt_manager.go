package agent

import (
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Reserved prompt files that are not part of the composed system prompt.
const (
	plannerPromptFile   = "planner.md"
	clarifierPromptFile = "clarifier.md"
	summaryPromptFile   = "summary.md"
)

const defaultSystemPrompt = `You are Kestrel, an autonomous task-execution agent.
You pursue the user's current goal by planning and invoking tools, one step at
a time, and you report clearly when you are done. You never invent tool output.`

const defaultPlannerPrompt = `Break the mission below into a short ordered plan.
Call the propose_plan function exactly once. Each step needs a position
(starting at 1), a concise description, and the positions it depends on.
Prefer few steps over many.`

const defaultClarifierPrompt = `Before planning, decide whether the mission is
ambiguous enough to need clarification. If so, call request_clarification with
at most three short questions. If the mission is actionable as stated, answer
with the single word: proceed.`

const defaultSummaryPrompt = `Summarize the conversation transcript below in a
few sentences. Keep goals, decisions, results and open items. Drop pleasantries.`

// PromptManager loads prompt text from a directory, falling back to embedded
// defaults when files are absent. The system prompt is composed from every
// non-reserved .md file, in a deterministic order.
type PromptManager struct {
	Directory string
}

func NewPromptManager(dir string) *PromptManager {
	return &PromptManager{Directory: dir}
}

// SystemPrompt composes the stable, mission-agnostic system message. Mission
// text never belongs here; it enters the conversation as a user message.
func (pm *PromptManager) SystemPrompt() string {
	files, err := os.ReadDir(pm.Directory)
	if err != nil {
		return defaultSystemPrompt
	}

	var contents []string

	// Sort files to ensure deterministic prompt order:
	// identity first, then capabilities, then anything else.
	order := map[string]int{
		"identity.md":     1,
		"soul.md":         2,
		"capabilities.md": 3,
		"user.md":         4,
	}
	reserved := map[string]bool{
		plannerPromptFile:   true,
		clarifierPromptFile: true,
		summaryPromptFile:   true,
	}

	sorted := make([]os.DirEntry, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool {
		oi, okI := order[sorted[i].Name()]
		oj, okJ := order[sorted[j].Name()]
		if okI && okJ {
			return oi < oj
		}
		if okI {
			return true
		}
		if okJ {
			return false
		}
		return sorted[i].Name() < sorted[j].Name()
	})

	for _, f := range sorted {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".md") || reserved[f.Name()] {
			continue
		}
		path := filepath.Join(pm.Directory, f.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("Warning: Failed to read prompt file %s: %v", path, err)
			continue
		}
		contents = append(contents, string(data))
	}

	if len(contents) == 0 {
		return defaultSystemPrompt
	}
	return strings.Join(contents, "\n\n---\n\n")
}

func (pm *PromptManager) PlannerPrompt() string {
	return pm.readOrDefault(plannerPromptFile, defaultPlannerPrompt)
}

func (pm *PromptManager) ClarifierPrompt() string {
	return pm.readOrDefault(clarifierPromptFile, defaultClarifierPrompt)
}

func (pm *PromptManager) SummaryPrompt() string {
	return pm.readOrDefault(summaryPromptFile, defaultSummaryPrompt)
}

func (pm *PromptManager) readOrDefault(name, fallback string) string {
	data, err := os.ReadFile(filepath.Join(pm.Directory, name))
	if err != nil {
		return fallback
	}
	return string(data)
}
