package model

import (
	"context"
	"log"
	"math/rand"
	"time"

	"github.com/rahul/kestrel/internal/observability"
	"github.com/rahul/kestrel/pkg/config"
	"github.com/tmc/langchaingo/llms"
)

// Usage reports token accounting for one successful call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Result is the normalized envelope every gateway call returns. Failures are
// reported in-band so callers decide whether to surface, retry or abort.
type Result struct {
	Success   bool
	Content   string
	ToolCalls []llms.ToolCall
	Usage     Usage
	Err       *CallError
}

// CompleteRequest describes one chat-completion call against an alias.
type CompleteRequest struct {
	Messages []llms.MessageContent
	Alias    string
	Params   *Params // nil means the alias's configured defaults
	Tools    []llms.Tool
}

// Gateway wraps a langchaingo model with alias resolution, family-specific
// parameter mapping and bounded retries for transient failures.
type Gateway struct {
	llm     llms.Model
	aliases map[string]config.ModelAlias
	retry   config.RetryConfig
	retryOn map[ErrorKind]bool
	logger  *observability.Logger
	sleep   func(time.Duration)
}

func NewGateway(llm llms.Model, cfg config.ModelsConfig, logger *observability.Logger) *Gateway {
	retryOn := map[ErrorKind]bool{
		KindRateLimit:  true,
		KindConnection: true,
		KindTimeout:    true,
	}
	if len(cfg.Retry.RetryOn) > 0 {
		retryOn = make(map[ErrorKind]bool, len(cfg.Retry.RetryOn))
		for _, kind := range cfg.Retry.RetryOn {
			retryOn[ErrorKind(kind)] = true
		}
	}
	retry := cfg.Retry
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}
	return &Gateway{
		llm:     llm,
		aliases: cfg.Aliases,
		retry:   retry,
		retryOn: retryOn,
		logger:  logger,
		sleep:   time.Sleep,
	}
}

// ValidateAliases resolves the given aliases eagerly so a bad configuration
// fails at startup instead of mid-mission.
func (g *Gateway) ValidateAliases(names ...string) error {
	for _, name := range names {
		if _, ok := g.aliases[name]; !ok {
			return &ConfigError{Message: "unresolvable model alias: " + name}
		}
	}
	return nil
}

// Complete runs one chat completion against the alias's backend model.
func (g *Gateway) Complete(ctx context.Context, req CompleteRequest) Result {
	alias, ok := g.aliases[req.Alias]
	if !ok {
		return failure(KindConfig, "unresolvable model alias: "+req.Alias)
	}

	mapper, ok := mapperFor(alias.Family)
	if !ok {
		return failure(KindConfig, "no parameter mapper for family: "+alias.Family)
	}

	params := paramsFromAlias(alias)
	if req.Params != nil {
		params = *req.Params
	}
	backend := mapper.Map(params)
	backend.Model = alias.Model

	for _, dropped := range backend.Dropped {
		log.Printf("model %s (%s family): dropping unsupported parameter %s", alias.Model, alias.Family, dropped)
	}

	opts := callOptions(backend, req.Tools)
	return g.attempt(ctx, alias.Model, req.Messages, opts)
}

// Generate is the single-prompt convenience form of Complete, used for
// planning, clarification and summarization sub-steps.
func (g *Gateway) Generate(ctx context.Context, prompt, aliasName string, params *Params) Result {
	return g.Complete(ctx, CompleteRequest{
		Messages: []llms.MessageContent{
			{
				Role:  llms.ChatMessageTypeHuman,
				Parts: []llms.ContentPart{llms.TextPart(prompt)},
			},
		},
		Alias:  aliasName,
		Params: params,
	})
}

func (g *Gateway) attempt(ctx context.Context, modelName string, messages []llms.MessageContent, opts []llms.CallOption) Result {
	var lastKind ErrorKind
	var lastErr error

	for attempt := 1; attempt <= g.retry.MaxAttempts; attempt++ {
		start := time.Now()
		resp, err := g.llm.GenerateContent(ctx, messages, opts...)
		latency := time.Since(start)

		if err == nil {
			result := resultFromResponse(resp)
			if g.logger != nil {
				g.logger.LogModelCall(modelName, attempt, latency, result.Usage.PromptTokens, result.Usage.CompletionTokens, "")
			}
			return result
		}

		kind := classifyError(err)
		if g.logger != nil {
			g.logger.LogModelCall(modelName, attempt, latency, 0, 0, string(kind))
		}

		lastKind, lastErr = kind, err
		if !g.retryOn[kind] || attempt == g.retry.MaxAttempts {
			break
		}
		g.sleep(backoffDelay(g.retry.InitialDelay.Std(), attempt-1, g.retry.MaxDelay.Std()))
	}

	return failure(lastKind, lastErr.Error())
}

func failure(kind ErrorKind, message string) Result {
	return Result{Err: &CallError{Kind: kind, Message: message}}
}

func callOptions(bp BackendParams, tools []llms.Tool) []llms.CallOption {
	opts := []llms.CallOption{llms.WithModel(bp.Model)}
	if bp.Temperature != nil {
		opts = append(opts, llms.WithTemperature(*bp.Temperature))
	}
	if bp.TopP != nil {
		opts = append(opts, llms.WithTopP(*bp.TopP))
	}
	if bp.FrequencyPenalty != nil {
		opts = append(opts, llms.WithFrequencyPenalty(*bp.FrequencyPenalty))
	}
	if bp.PresencePenalty != nil {
		opts = append(opts, llms.WithPresencePenalty(*bp.PresencePenalty))
	}
	if bp.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(bp.MaxTokens))
	}
	if bp.Effort != "" {
		opts = append(opts, llms.WithMetadata(map[string]any{"reasoning_effort": bp.Effort}))
	}
	if len(tools) > 0 {
		opts = append(opts, llms.WithTools(tools))
	}
	return opts
}

func resultFromResponse(resp *llms.ContentResponse) Result {
	if resp == nil || len(resp.Choices) == 0 {
		return failure(KindOther, "empty response from model")
	}
	choice := resp.Choices[0]
	return Result{
		Success:   true,
		Content:   choice.Content,
		ToolCalls: choice.ToolCalls,
		Usage:     usageFromInfo(choice.GenerationInfo),
	}
}

func usageFromInfo(info map[string]any) Usage {
	return Usage{
		PromptTokens:     intFromInfo(info, "PromptTokens"),
		CompletionTokens: intFromInfo(info, "CompletionTokens"),
		TotalTokens:      intFromInfo(info, "TotalTokens"),
	}
}

func intFromInfo(info map[string]any, key string) int {
	switch v := info[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// backoffDelay computes exponential backoff with jitter so parallel sessions
// retrying against the same provider do not stampede.
func backoffDelay(initial time.Duration, attempt int, max time.Duration) time.Duration {
	if initial <= 0 {
		initial = time.Second
	}
	delay := initial * time.Duration(1<<uint(attempt))
	if max > 0 && delay > max {
		delay = max
	}
	if jitterMax := delay / 4; jitterMax > 0 {
		delay += time.Duration(rand.Int63n(int64(jitterMax)))
	}
	return delay
}
