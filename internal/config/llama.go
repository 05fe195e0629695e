// Package config reads the model and model-parallel configuration consumed
// when building Llama normalization layers.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"

	"github.com/goccy/go-json"
)

// LlamaConfig is the subset of a Hugging Face Llama config.json used here.
type LlamaConfig struct {
	ModelType     string   `json:"model_type"`
	Architectures []string `json:"architectures"`

	// HiddenSize keeps the raw JSON value so that 4096.0 or "4096" can be
	// told apart from the integer 4096.
	HiddenSize            json.RawMessage `json:"hidden_size"`
	RMSNormEps            float64         `json:"rms_norm_eps"`
	NumHiddenLayers       int             `json:"num_hidden_layers"`
	IntermediateSize      int             `json:"intermediate_size"`
	NumAttentionHeads     int             `json:"num_attention_heads"`
	NumKeyValueHeads      int             `json:"num_key_value_heads"`
	MaxPositionEmbeddings int             `json:"max_position_embeddings"`
	VocabSize             int             `json:"vocab_size"`
	TorchDtype            string          `json:"torch_dtype"`

	// Multimodal checkpoints nest the language model under text_config.
	TextConfig *LlamaConfig `json:"text_config,omitempty"`
}

// HiddenDim returns hidden_size and whether it is a JSON integer literal.
// Floats (4096.0), exponents (4e3), strings ("4096"), null and a missing
// key all report false.
func (c *LlamaConfig) HiddenDim() (int, bool) {
	raw := bytes.TrimSpace(c.HiddenSize)
	if len(raw) == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, false
	}
	return n, true
}

// ParseLlamaConfig decodes config.json contents.
func ParseLlamaConfig(data []byte) (*LlamaConfig, error) {
	var cfg LlamaConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode llama config: %w", err)
	}
	if len(cfg.HiddenSize) == 0 && cfg.TextConfig != nil {
		text := *cfg.TextConfig
		if text.ModelType == "" {
			text.ModelType = cfg.ModelType
		}
		text.Architectures = cfg.Architectures
		text.TextConfig = nil
		return &text, nil
	}
	return &cfg, nil
}

// LoadLlamaConfig reads a Hugging Face config.json file.
func LoadLlamaConfig(path string) (*LlamaConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := ParseLlamaConfig(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}
