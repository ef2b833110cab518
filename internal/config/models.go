package config

import "sort"

// DefaultModel is used when an agent is created without an explicit model.
const DefaultModel = "gpt-4.1"

// ModelInfo describes one supported chat model variant.
type ModelInfo struct {
	Name           string `json:"name"`
	DisplayName    string `json:"display_name"`
	Description    string `json:"description"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	MaxTokens      int    `json:"max_tokens"`
	CostTier       string `json:"cost_tier"`
}

var supportedModels = map[string]ModelInfo{
	"gpt-4.1": {
		Name:           "gpt-4.1",
		DisplayName:    "GPT-4.1",
		Description:    "Advanced GPT-4.1 model with comprehensive capabilities",
		TimeoutSeconds: 300,
		MaxTokens:      32768,
		CostTier:       "premium",
	},
	"gpt-4.1-mini": {
		Name:           "gpt-4.1-mini",
		DisplayName:    "GPT-4.1 Mini",
		Description:    "Compact GPT-4.1-mini model balancing performance and efficiency",
		TimeoutSeconds: 180,
		MaxTokens:      32768,
		CostTier:       "standard",
	},
	"gpt-4.1-nano": {
		Name:           "gpt-4.1-nano",
		DisplayName:    "GPT-4.1 Nano",
		Description:    "Lightweight GPT-4.1 model optimized for speed",
		TimeoutSeconds: 120,
		MaxTokens:      32768,
		CostTier:       "economy",
	},
}

// LookupModel returns registry details for a model name.
func LookupModel(model string) (ModelInfo, bool) {
	info, ok := supportedModels[model]
	return info, ok
}

// IsValidModel reports whether the model name is supported.
func IsValidModel(model string) bool {
	_, ok := supportedModels[model]
	return ok
}

// DisplayName resolves the human-readable name, falling back to the raw
// model string for unknown entries.
func DisplayName(model string) string {
	if info, ok := supportedModels[model]; ok {
		return info.DisplayName
	}
	return model
}

// ListModels returns the supported model names in stable order.
func ListModels() []string {
	names := make([]string, 0, len(supportedModels))
	for name := range supportedModels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
