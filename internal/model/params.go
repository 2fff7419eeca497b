package model

import "github.com/rahul/kestrel/pkg/config"

// Params are the generic, provider-agnostic sampling controls callers supply.
// Nil pointer fields mean "not set" so mappers can tell an explicit zero from
// an omitted value.
type Params struct {
	Temperature      *float64
	TopP             *float64
	FrequencyPenalty *float64
	PresencePenalty  *float64
	Effort           string
	MaxTokens        int
}

// BackendParams is what actually goes out on the wire for one model family.
// Dropped lists the generic parameters the family does not support.
type BackendParams struct {
	Model            string
	Temperature      *float64
	TopP             *float64
	FrequencyPenalty *float64
	PresencePenalty  *float64
	Effort           string
	MaxTokens        int
	Dropped          []string
}

// ParamMapper translates generic Params into the parameter scheme of one
// model family. New families register a new mapper, call sites stay unchanged.
type ParamMapper interface {
	Family() string
	Map(p Params) BackendParams
}

var mappers = map[string]ParamMapper{
	"legacy":    legacyMapper{},
	"reasoning": reasoningMapper{},
}

func mapperFor(family string) (ParamMapper, bool) {
	m, ok := mappers[family]
	return m, ok
}

// legacyMapper serves the traditional chat-completion families that accept
// direct numeric sampling controls.
type legacyMapper struct{}

func (legacyMapper) Family() string { return "legacy" }

func (legacyMapper) Map(p Params) BackendParams {
	return BackendParams{
		Temperature:      p.Temperature,
		TopP:             p.TopP,
		FrequencyPenalty: p.FrequencyPenalty,
		PresencePenalty:  p.PresencePenalty,
		MaxTokens:        p.MaxTokens,
	}
}

// reasoningMapper serves families that take a qualitative effort level
// instead of numeric sampling knobs. Unsupported parameters are dropped,
// not rejected.
type reasoningMapper struct{}

func (reasoningMapper) Family() string { return "reasoning" }

func (reasoningMapper) Map(p Params) BackendParams {
	out := BackendParams{
		Effort:    p.Effort,
		MaxTokens: p.MaxTokens,
	}
	if out.Effort == "" && p.Temperature != nil {
		out.Effort = effortFromTemperature(*p.Temperature)
	}
	if p.TopP != nil {
		out.Dropped = append(out.Dropped, "top_p")
	}
	if p.FrequencyPenalty != nil {
		out.Dropped = append(out.Dropped, "frequency_penalty")
	}
	if p.PresencePenalty != nil {
		out.Dropped = append(out.Dropped, "presence_penalty")
	}
	return out
}

// effortFromTemperature maps numeric temperature onto effort bands.
func effortFromTemperature(t float64) string {
	switch {
	case t < 0.35:
		return "low"
	case t < 0.75:
		return "medium"
	default:
		return "high"
	}
}

// paramsFromAlias lifts an alias's configured defaults into Params.
// Zero-valued knobs stay unset so family mappers do not see phantom values.
func paramsFromAlias(alias config.ModelAlias) Params {
	p := Params{
		Effort:    alias.Effort,
		MaxTokens: alias.MaxTokens,
	}
	if alias.Temperature != 0 {
		t := alias.Temperature
		p.Temperature = &t
	}
	if alias.TopP != 0 {
		v := alias.TopP
		p.TopP = &v
	}
	if alias.FrequencyPenalty != 0 {
		v := alias.FrequencyPenalty
		p.FrequencyPenalty = &v
	}
	if alias.PresencePenalty != 0 {
		v := alias.PresencePenalty
		p.PresencePenalty = &v
	}
	return p
}
