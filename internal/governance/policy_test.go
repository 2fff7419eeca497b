package governance

import (
	"context"
	"testing"
)

func TestDefaultPolicyEngine_Evaluate(t *testing.T) {
	engine := NewDefaultPolicyEngine()
	ctx := context.Background()

	// Test Allow (Default)
	req1 := Request{Tool: "search"}
	res1, err := engine.Evaluate(ctx, req1)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if res1.Effect != EffectAllow {
		t.Errorf("Expected EffectAllow, got %s", res1.Effect)
	}

	// Test Deny
	engine.DenyTool("shell")
	req2 := Request{Tool: "shell"}
	res2, err := engine.Evaluate(ctx, req2)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if res2.Effect != EffectDeny {
		t.Errorf("Expected EffectDeny, got %s", res2.Effect)
	}
}

func TestDefaultPolicyEngine_DenyArguments(t *testing.T) {
	engine := NewDefaultPolicyEngine()
	if err := engine.DenyArguments(`rm\s+-rf`); err != nil {
		t.Fatal(err)
	}

	res, err := engine.Evaluate(context.Background(), Request{Tool: "shell", Arguments: `{"command":"rm -rf /"}`})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if res.Effect != EffectDeny {
		t.Errorf("Expected EffectDeny, got %s", res.Effect)
	}

	if err := engine.DenyArguments(`[`); err == nil {
		t.Error("Expected error for invalid pattern")
	}
}

func TestDefaultPolicyEngine_DenyArgumentsForTool(t *testing.T) {
	engine := NewDefaultPolicyEngine()
	if err := engine.DenyArgumentsForTool("shell", `mkfs`); err != nil {
		t.Fatal(err)
	}

	// Same text through another tool is allowed.
	res, err := engine.Evaluate(context.Background(), Request{Tool: "filesystem", Arguments: "notes about mkfs"})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if res.Effect != EffectAllow {
		t.Errorf("Expected EffectAllow for other tool, got %s", res.Effect)
	}

	res, err = engine.Evaluate(context.Background(), Request{Tool: "shell", Arguments: `{"command":"mkfs /dev/sda"}`})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if res.Effect != EffectDeny {
		t.Errorf("Expected EffectDeny for shell, got %s", res.Effect)
	}
}
