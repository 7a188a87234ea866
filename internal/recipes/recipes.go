// Package recipes loads a YAML production-recipe table and exposes a
// collab.ProductionFunction backed by it — the default production
// implementation a simulation uses when its config doesn't supply a
// custom one.
//
// Grounded on the teacher's internal/sim/tuning/tuning.go load pattern
// (yaml.Unmarshal into a typed struct read once at startup). The recipe
// data file's own format is out of scope per spec.md; this package only
// supplies the ambient loader idiom, with a table shape derived from
// original_source/EconAgent.py's ProductionFunction (per-output recipe of
// input quantities plus a ticks-per-unit labor cost).
package recipes

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Recipe describes how to produce one unit of an output item: the input
// items consumed per unit produced, the labor ticks required per unit
// produced, and optionally the land allocation and hired-labor skill
// level the output also draws on (spec §4.3.6/§4.6). LandAllocation and
// LaborSkillLevel are ignored when HectaresPerUnit/LaborTicksPerUnit are
// left at zero, so existing recipes that need neither keep working
// unchanged.
type Recipe struct {
	Output            string             `yaml:"output"`
	Inputs            map[string]float64 `yaml:"inputs"`
	TicksPerUnit      float64            `yaml:"ticksPerUnit"`
	LandAllocation    string             `yaml:"landAllocation"`
	HectaresPerUnit   float64            `yaml:"hectaresPerUnit"`
	LaborSkillLevel   float64            `yaml:"laborSkillLevel"`
	LaborTicksPerUnit float64            `yaml:"laborTicksPerUnit"`
}

// Table is a loaded recipe file: one Recipe per producible item.
type Table struct {
	Recipes []Recipe `yaml:"recipes"`
	byOutput map[string]Recipe
}

// Load reads and parses a recipe table from path.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("recipes: read %s: %w", path, err)
	}
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("recipes: parse %s: %w", path, err)
	}
	t.index()
	return &t, nil
}

func (t *Table) index() {
	t.byOutput = make(map[string]Recipe, len(t.Recipes))
	for _, r := range t.Recipes {
		t.byOutput[r.Output] = r
	}
}

// MaxProduction implements collab.ProductionFunction: the output is
// bounded by whichever of (ticks / ticksPerUnit), (input quantity / input
// requirement per unit), (free hectares of the recipe's land allocation /
// hectaresPerUnit), or (banked labor at the recipe's skill level /
// laborTicksPerUnit) is scarcest.
func (t *Table) MaxProduction(itemID string, ticksAvailable float64, inputs map[string]float64, landAvailable map[string]float64, laborAvailable map[float64]float64) float64 {
	r, ok := t.byOutput[itemID]
	if !ok || r.TicksPerUnit <= 0 {
		return 0
	}
	max := ticksAvailable / r.TicksPerUnit
	for input, perUnit := range r.Inputs {
		if perUnit <= 0 {
			continue
		}
		have := inputs[input]
		bound := have / perUnit
		if bound < max {
			max = bound
		}
	}
	if r.HectaresPerUnit > 0 {
		bound := landAvailable[r.LandAllocation] / r.HectaresPerUnit
		if bound < max {
			max = bound
		}
	}
	if r.LaborTicksPerUnit > 0 {
		bound := laborAvailable[r.LaborSkillLevel] / r.LaborTicksPerUnit
		if bound < max {
			max = bound
		}
	}
	if max < 0 {
		return 0
	}
	return max
}

// Produce implements collab.ProductionFunction: it scales the requested
// quantity down to what MaxProduction allows, then reports exactly how
// much of each input, how many ticks, how many hectares, and how much
// banked labor that production consumed.
func (t *Table) Produce(itemID string, requestedQuantity, ticksAvailable float64, inputs map[string]float64, landAvailable map[string]float64, laborAvailable map[float64]float64) (float64, float64, map[string]float64, map[string]float64, map[float64]float64) {
	r, ok := t.byOutput[itemID]
	if !ok {
		return 0, 0, nil, nil, nil
	}
	max := t.MaxProduction(itemID, ticksAvailable, inputs, landAvailable, laborAvailable)
	produced := math.Min(requestedQuantity, max)
	if produced <= 0 {
		return 0, 0, map[string]float64{}, map[string]float64{}, map[float64]float64{}
	}
	used := make(map[string]float64, len(r.Inputs))
	for input, perUnit := range r.Inputs {
		used[input] = perUnit * produced
	}
	var landUsed map[string]float64
	if r.HectaresPerUnit > 0 {
		landUsed = map[string]float64{r.LandAllocation: r.HectaresPerUnit * produced}
	} else {
		landUsed = map[string]float64{}
	}
	var laborUsed map[float64]float64
	if r.LaborTicksPerUnit > 0 {
		laborUsed = map[float64]float64{r.LaborSkillLevel: r.LaborTicksPerUnit * produced}
	} else {
		laborUsed = map[float64]float64{}
	}
	return produced, r.TicksPerUnit * produced, used, landUsed, laborUsed
}
