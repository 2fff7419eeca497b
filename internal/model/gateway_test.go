package model

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rahul/kestrel/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

// fakeModel fails a fixed number of times before succeeding.
type fakeModel struct {
	failures int
	err      error
	calls    int
	response *llms.ContentResponse
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	if f.response != nil {
		return f.response, nil
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{
				Content: "ok",
				GenerationInfo: map[string]any{
					"PromptTokens":     12,
					"CompletionTokens": 3,
					"TotalTokens":      15,
				},
			},
		},
	}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	resp, err := f.GenerateContent(ctx, nil, options...)
	if err != nil {
		return "", err
	}
	return resp.Choices[0].Content, nil
}

func testModelsConfig(maxAttempts int) config.ModelsConfig {
	return config.ModelsConfig{
		Aliases: map[string]config.ModelAlias{
			"executor": {Model: "gpt-4o", Family: "legacy", Temperature: 0.7},
			"planner":  {Model: "o3-mini", Family: "reasoning", Temperature: 0.2},
		},
		Retry: config.RetryConfig{
			MaxAttempts:  maxAttempts,
			InitialDelay: config.Duration(time.Millisecond),
			MaxDelay:     config.Duration(2 * time.Millisecond),
		},
	}
}

func newTestGateway(llm llms.Model, maxAttempts int) *Gateway {
	gw := NewGateway(llm, testModelsConfig(maxAttempts), nil)
	gw.sleep = func(time.Duration) {}
	return gw
}

func TestCompleteSuccess(t *testing.T) {
	fake := &fakeModel{}
	gw := newTestGateway(fake, 3)

	res := gw.Generate(context.Background(), "hello", "executor", nil)
	require.True(t, res.Success)
	assert.Equal(t, "ok", res.Content)
	assert.Equal(t, 12, res.Usage.PromptTokens)
	assert.Equal(t, 3, res.Usage.CompletionTokens)
	assert.Equal(t, 15, res.Usage.TotalTokens)
	assert.Equal(t, 1, fake.calls)
}

func TestCompleteRetriesTransientThenSucceeds(t *testing.T) {
	// Fails max_attempts-1 times, then succeeds: must come back successful.
	fake := &fakeModel{failures: 3, err: errors.New("429 too many requests")}
	gw := newTestGateway(fake, 4)

	res := gw.Generate(context.Background(), "hello", "executor", nil)
	assert.True(t, res.Success)
	assert.Equal(t, 4, fake.calls)
}

func TestCompleteExhaustsRetries(t *testing.T) {
	fake := &fakeModel{failures: 10, err: errors.New("connection refused")}
	gw := newTestGateway(fake, 4)

	res := gw.Generate(context.Background(), "hello", "executor", nil)
	require.False(t, res.Success)
	require.NotNil(t, res.Err)
	assert.Equal(t, KindConnection, res.Err.Kind)
	assert.Contains(t, res.Err.Message, "connection refused")
	assert.Equal(t, 4, fake.calls)
}

func TestCompleteDoesNotRetryNonTransient(t *testing.T) {
	fake := &fakeModel{failures: 10, err: errors.New("invalid api key")}
	gw := newTestGateway(fake, 4)

	res := gw.Generate(context.Background(), "hello", "executor", nil)
	require.False(t, res.Success)
	assert.Equal(t, KindOther, res.Err.Kind)
	assert.Equal(t, 1, fake.calls)
}

func TestCompleteUnresolvableAlias(t *testing.T) {
	gw := newTestGateway(&fakeModel{}, 2)

	res := gw.Generate(context.Background(), "hello", "nonexistent", nil)
	require.False(t, res.Success)
	assert.Equal(t, KindConfig, res.Err.Kind)
}

func TestValidateAliases(t *testing.T) {
	gw := newTestGateway(&fakeModel{}, 2)

	require.NoError(t, gw.ValidateAliases("executor", "planner"))

	err := gw.ValidateAliases("executor", "ghost")
	require.Error(t, err)
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestClassifyError(t *testing.T) {
	cases := []struct {
		err  error
		kind ErrorKind
	}{
		{errors.New("rate limit exceeded"), KindRateLimit},
		{errors.New("HTTP 429"), KindRateLimit},
		{errors.New("request timeout"), KindTimeout},
		{context.DeadlineExceeded, KindTimeout},
		{context.Canceled, KindCanceled},
		{errors.New("connection reset by peer"), KindConnection},
		{errors.New("malformed request"), KindOther},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.kind, classifyError(tc.err), "err %v", tc.err)
	}
}

func TestBackoffDelayBounded(t *testing.T) {
	for attempt := 0; attempt < 10; attempt++ {
		d := backoffDelay(time.Second, attempt, 5*time.Second)
		assert.GreaterOrEqual(t, d, time.Second)
		// cap plus max jitter of 25%
		assert.LessOrEqual(t, d, 5*time.Second+5*time.Second/4)
	}
}
