package llm

import "github.com/BaSui01/drama/prompt"

// ModelConfig holds the sampling parameters sent with every job, plus the
// chat template and prompt budget that go with the model. Template and
// Prompt never leave the process.
type ModelConfig struct {
	Model             string  `json:"model" yaml:"model" env:"NAME"`
	N                 int     `json:"n" yaml:"n"`
	PresencePenalty   float64 `json:"presence_penalty" yaml:"presence_penalty"`
	FrequencyPenalty  float64 `json:"frequency_penalty" yaml:"frequency_penalty"`
	RepetitionPenalty float64 `json:"repetition_penalty" yaml:"repetition_penalty"`

	Temperature float64 `json:"temperature" yaml:"temperature" env:"TEMPERATURE"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens" env:"MAX_TOKENS"`
	TopP        float64 `json:"top_p" yaml:"top_p"`
	TopK        int     `json:"top_k" yaml:"top_k"`

	Stop                       []string `json:"stop" yaml:"stop"`
	StopTokenIDs               []int    `json:"stop_token_ids" yaml:"stop_token_ids"`
	IgnoreEOS                  bool     `json:"ignore_eos" yaml:"ignore_eos"`
	SkipSpecialTokens          bool     `json:"skip_special_tokens" yaml:"skip_special_tokens"`
	SpacesBetweenSpecialTokens bool     `json:"spaces_between_special_tokens" yaml:"spaces_between_special_tokens"`
	Stream                     bool     `json:"stream" yaml:"stream" env:"STREAM"`

	Template prompt.Template `json:"-" yaml:"template"`
	Prompt   prompt.Config   `json:"-" yaml:"prompt"`
}

// DefaultModelConfig returns the parameters of the default chat model.
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		Model:             "teknium/openhermes-2.5-mistral-7b",
		N:                 1,
		RepetitionPenalty: 1.2,

		Temperature: 0.93,
		MaxTokens:   200,
		TopP:        0.93,
		TopK:        4,

		StopTokenIDs:               []int{0},
		SkipSpecialTokens:          true,
		SpacesBetweenSpecialTokens: true,

		Template: prompt.ChatML,
		Prompt:   prompt.DefaultConfig(),
	}
}

// LargeContextModelConfig returns the parameters used for long documents.
func LargeContextModelConfig() ModelConfig {
	cfg := DefaultModelConfig()
	cfg.Model = "Nous-Hermes-2-Mixtral-8x7B-DPO"
	cfg.MaxTokens = 512
	return cfg
}

// WithTemperature returns a copy with the given temperature.
func (m ModelConfig) WithTemperature(t float64) ModelConfig {
	m = m.Clone()
	m.Temperature = t
	return m
}

// Clone returns a deep copy.
func (m ModelConfig) Clone() ModelConfig {
	if m.Stop != nil {
		m.Stop = append([]string(nil), m.Stop...)
	}
	if m.StopTokenIDs != nil {
		m.StopTokenIDs = append([]int(nil), m.StopTokenIDs...)
	}
	return m
}
