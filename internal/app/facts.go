package app

import (
	"fmt"
	"os"

	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// LoadFacts reads node facts from a JSON file. The document must be a JSON
// object; each top-level key becomes a fact. An empty path yields no facts.
func LoadFacts(path string) (map[string]cty.Value, error) {
	if path == "" {
		return nil, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read facts file: %w", err)
	}

	implied, err := ctyjson.ImpliedType(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse facts file %s: %w", path, err)
	}
	value, err := ctyjson.Unmarshal(raw, implied)
	if err != nil {
		return nil, fmt.Errorf("failed to decode facts file %s: %w", path, err)
	}
	if !value.Type().IsObjectType() && !value.Type().IsMapType() {
		return nil, fmt.Errorf("facts file %s must contain a JSON object", path)
	}

	facts := make(map[string]cty.Value)
	for name, fact := range value.AsValueMap() {
		facts[name] = fact
	}
	return facts, nil
}
