package modelclient

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/danshapiro/telescribe/internal/modelmeta"
)

// ModelInfo is normalized model cost/capability metadata, sourced from an
// OpenRouter-shaped catalog payload. Used by the retry orchestrator's budget
// accounting ("budget cutoff").
type ModelInfo struct {
	ID                   string   `json:"id"`
	Provider             string   `json:"provider"`
	ContextWindow        int      `json:"context_window"`
	InputCostPerMillion  *float64 `json:"input_cost_per_million,omitempty"`
	OutputCostPerMillion *float64 `json:"output_cost_per_million,omitempty"`
}

type ModelCatalog struct {
	Models []ModelInfo
	byID   map[string]ModelInfo
}

func (c *ModelCatalog) GetModelInfo(modelID string) *ModelInfo {
	if c == nil {
		return nil
	}
	if c.byID == nil {
		c.buildIndex()
	}
	if mi, ok := c.byID[strings.TrimSpace(modelID)]; ok {
		out := mi
		return &out
	}
	return nil
}

func (c *ModelCatalog) buildIndex() {
	by := make(map[string]ModelInfo, len(c.Models))
	for _, m := range c.Models {
		if _, exists := by[m.ID]; exists {
			continue
		}
		by[m.ID] = m
	}
	c.byID = by
}

// EstimateCostUSD returns the dollar cost of a completion given token counts,
// or 0 if the model's pricing is unknown (budget tracking degrades to
// token-count-only in that case rather than failing the run).
func (c *ModelCatalog) EstimateCostUSD(modelID string, inputTokens, outputTokens int) float64 {
	mi := c.GetModelInfo(modelID)
	if mi == nil {
		return 0
	}
	var total float64
	if mi.InputCostPerMillion != nil {
		total += float64(inputTokens) / 1_000_000 * *mi.InputCostPerMillion
	}
	if mi.OutputCostPerMillion != nil {
		total += float64(outputTokens) / 1_000_000 * *mi.OutputCostPerMillion
	}
	return total
}

type openRouterCatalogPayload struct {
	Data []openRouterCatalogModel `json:"data"`
}

type openRouterCatalogModel struct {
	ID            string `json:"id"`
	ContextLength int    `json:"context_length"`
	Pricing       struct {
		Prompt     string `json:"prompt"`
		Completion string `json:"completion"`
	} `json:"pricing"`
}

// LoadModelCatalogFromOpenRouterJSON loads cost metadata from OpenRouter's
// /api/v1/models payload shape.
func LoadModelCatalogFromOpenRouterJSON(path string) (*ModelCatalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var payload openRouterCatalogPayload
	if err := json.Unmarshal(b, &payload); err != nil {
		return nil, err
	}
	if len(payload.Data) == 0 {
		return nil, fmt.Errorf("model catalog is empty: %s", path)
	}

	var models []ModelInfo
	for _, v := range payload.Data {
		id := strings.TrimSpace(v.ID)
		if id == "" {
			continue
		}
		inCost := modelmeta.ParseFloatStringPtr(v.Pricing.Prompt)
		outCost := modelmeta.ParseFloatStringPtr(v.Pricing.Completion)
		models = append(models, ModelInfo{
			ID:                   id,
			Provider:             modelmeta.ProviderFromModelID(id),
			ContextWindow:        v.ContextLength,
			InputCostPerMillion:  scalePerMillion(inCost),
			OutputCostPerMillion: scalePerMillion(outCost),
		})
	}
	sort.Slice(models, func(i, j int) bool {
		if models[i].Provider != models[j].Provider {
			return models[i].Provider < models[j].Provider
		}
		return models[i].ID < models[j].ID
	})
	return &ModelCatalog{Models: models}, nil
}

func scalePerMillion(perToken *float64) *float64 {
	if perToken == nil {
		return nil
	}
	v := *perToken * 1_000_000
	return &v
}
