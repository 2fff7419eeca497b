package agent

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPromptManager_SystemPrompt(t *testing.T) {
	tempDir := t.TempDir()

	files := map[string]string{
		"identity.md":     "Identity Content",
		"soul.md":         "Soul Content",
		"capabilities.md": "Capabilities Content",
		"user.md":         "User Content",
		"extra.md":        "Extra Content",
		"planner.md":      "Planner Content",
	}

	for name, content := range files {
		err := os.WriteFile(filepath.Join(tempDir, name), []byte(content), 0644)
		if err != nil {
			t.Fatal(err)
		}
	}

	pm := NewPromptManager(tempDir)
	prompt := pm.SystemPrompt()

	expectedParts := []string{
		"Identity Content",
		"Soul Content",
		"Capabilities Content",
		"User Content",
		"Extra Content",
	}

	for _, part := range expectedParts {
		if !strings.Contains(prompt, part) {
			t.Errorf("Prompt missing expected part: %s", part)
		}
	}

	// Reserved files are never composed into the system prompt.
	if strings.Contains(prompt, "Planner Content") {
		t.Error("planner.md must not leak into the system prompt")
	}

	// Verify order
	if strings.Index(prompt, "Identity Content") >= strings.Index(prompt, "Soul Content") {
		t.Error("Identity should be before Soul")
	}
	if strings.Index(prompt, "Soul Content") >= strings.Index(prompt, "Capabilities Content") {
		t.Error("Soul should be before Capabilities")
	}
	if strings.Index(prompt, "Capabilities Content") >= strings.Index(prompt, "User Content") {
		t.Error("Capabilities should be before User")
	}
}

func TestPromptManager_Defaults(t *testing.T) {
	pm := NewPromptManager(filepath.Join(t.TempDir(), "missing"))

	if pm.SystemPrompt() == "" {
		t.Error("expected embedded default system prompt")
	}
	if pm.PlannerPrompt() == "" {
		t.Error("expected embedded default planner prompt")
	}
	if pm.ClarifierPrompt() == "" {
		t.Error("expected embedded default clarifier prompt")
	}
	if pm.SummaryPrompt() == "" {
		t.Error("expected embedded default summary prompt")
	}
}

func TestPromptManager_FileOverride(t *testing.T) {
	tempDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tempDir, "planner.md"), []byte("Custom Planner"), 0644); err != nil {
		t.Fatal(err)
	}

	pm := NewPromptManager(tempDir)
	if pm.PlannerPrompt() != "Custom Planner" {
		t.Errorf("expected file override, got %q", pm.PlannerPrompt())
	}
}
