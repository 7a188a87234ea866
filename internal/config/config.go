// Package config loads and validates the simulation's JSON configuration
// document: the top-level description, the settings block (step count,
// ticks per step, agent spawns), and the statistics output paths.
//
// Grounded on original_source/runSim.py / SimulationRunner.py for the
// document shape (description + settings + AgentSpawns), and on the
// teacher's internal/protocol/schemas_test.go for using
// github.com/santhosh-tekuri/jsonschema/v5 to validate a document against
// an embedded schema at load time rather than only in tests.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// AgentSpawn describes one named group of agents to instantiate, keyed by
// a caller-chosen agent type (original_source's AgentSpawns[agentName][agentType]).
type AgentSpawn struct {
	Count    int             `json:"count"`
	Settings json.RawMessage `json:"settings"`
}

// Settings is the simulation's settings block.
type Settings struct {
	SimulationSteps    int                              `json:"SimulationSteps"`
	TicksPerStep       float64                           `json:"TicksPerStep"`
	AgentNumProcesses  int                              `json:"AgentNumProcesses"`
	AgentSpawns        map[string]map[string]AgentSpawn `json:"AgentSpawns"`
	CheckpointEvery    int                              `json:"CheckpointEvery"`
	CheckpointDir      string                           `json:"CheckpointDir"`
	StallBudgetSeconds float64                          `json:"StallBudgetSeconds"`
}

// Statistics names the tracker outputs to enable and where to write them,
// grounded on original_source/StatisticsGatherer.py's per-tracker
// OutputPath setting.
type Statistics struct {
	OutputDir string            `json:"OutputDir"`
	Trackers  map[string]string `json:"Trackers"` // tracker name -> relative CSV path
}

// Document is the full top-level JSON configuration file.
type Document struct {
	Description string     `json:"description"`
	Settings    Settings   `json:"settings"`
	Statistics  Statistics `json:"statistics"`
}

// schemaJSON is the embedded JSON Schema a loaded document must satisfy.
// Kept intentionally permissive on the nested AgentSpawns/Trackers shapes
// (validated structurally by encoding/json's own unmarshal instead) and
// strict on the fields the Simulation Manager cannot run without.
const schemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["settings"],
  "properties": {
    "description": {"type": "string"},
    "settings": {
      "type": "object",
      "required": ["SimulationSteps", "TicksPerStep"],
      "properties": {
        "SimulationSteps": {"type": "integer", "minimum": 1},
        "TicksPerStep": {"type": "number", "exclusiveMinimum": 0},
        "AgentNumProcesses": {"type": "integer", "minimum": 1},
        "CheckpointEvery": {"type": "integer", "minimum": 0},
        "CheckpointDir": {"type": "string"},
        "StallBudgetSeconds": {"type": "number", "minimum": 0}
      }
    },
    "statistics": {
      "type": "object",
      "properties": {
        "OutputDir": {"type": "string"}
      }
    }
  }
}`

const schemaURL = "agoria://config.schema.json"

// Load reads path, validates it against the embedded schema, and decodes
// it into a Document.
func Load(path string) (Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := validate(raw); err != nil {
		return Document{}, fmt.Errorf("config: %s failed schema validation: %w", path, err)
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Document{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return doc, nil
}

func validate(raw []byte) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, strings.NewReader(schemaJSON)); err != nil {
		return fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("not valid JSON: %w", err)
	}
	return schema.Validate(doc)
}
