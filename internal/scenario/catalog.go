package scenario

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// Step is one entry of a scenario timeline: a display label plus an
// opaque payload that is flattened into the scenario_update event.
type Step struct {
	Label   string                 `yaml:"label" json:"label"`
	Payload map[string]interface{} `yaml:"payload" json:"payload"`
}

// Definition is an immutable, ordered scripted incident timeline
type Definition struct {
	ID    string `yaml:"id" json:"id"`
	Name  string `yaml:"name" json:"name"`
	Steps []Step `yaml:"steps" json:"steps"`
}

// definitionFile represents the root YAML structure of a scenario file
type definitionFile struct {
	Scenario Definition `yaml:"scenario"`
}

// Summary describes a catalog entry for the REST API
type Summary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Steps int    `json:"steps"`
}

// Catalog holds the loaded scenario definitions, keyed by id
type Catalog struct {
	defs map[string]*Definition
	mu   sync.RWMutex
}

// NewCatalog creates an empty catalog
func NewCatalog() *Catalog {
	return &Catalog{defs: make(map[string]*Definition)}
}

// Add validates and registers a definition. A duplicate id replaces the
// previous definition.
func (c *Catalog) Add(def Definition) error {
	if def.ID == "" {
		return fmt.Errorf("scenario definition missing id")
	}
	if len(def.Steps) == 0 {
		return fmt.Errorf("scenario %q has no steps", def.ID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.defs[def.ID] = &def
	return nil
}

// Get retrieves a definition by id
func (c *Catalog) Get(id string) (*Definition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	def, exists := c.defs[id]
	return def, exists
}

// List returns summaries for all loaded definitions, sorted by id
func (c *Catalog) List() []Summary {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]Summary, 0, len(c.defs))
	for _, def := range c.defs {
		result = append(result, Summary{ID: def.ID, Name: def.Name, Steps: len(def.Steps)})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// LoadBytes parses a scenario definition from YAML bytes and adds it
func (c *Catalog) LoadBytes(data []byte) error {
	var file definitionFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return c.Add(file.Scenario)
}

// LoadFile loads one scenario definition from a YAML file
func (c *Catalog) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read scenario file: %w", err)
	}
	if err := c.LoadBytes(data); err != nil {
		return fmt.Errorf("scenario file %s: %w", path, err)
	}
	return nil
}

// LoadDir loads every *.yaml / *.yml file in dir. Returns the number of
// definitions loaded.
func (c *Catalog) LoadDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read scenario directory: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		if err := c.LoadFile(filepath.Join(dir, entry.Name())); err != nil {
			return loaded, err
		}
		loaded++
	}
	return loaded, nil
}

// DefaultCatalog returns the built-in demo scenarios used when no
// scenario directory is configured.
func DefaultCatalog() *Catalog {
	c := NewCatalog()
	for _, def := range builtinDefinitions() {
		// Built-in definitions are well-formed, Add cannot fail here.
		_ = c.Add(def)
	}
	return c
}

func builtinDefinitions() []Definition {
	return []Definition{
		{
			ID:   "trading-crisis",
			Name: "Trading Platform Crisis",
			Steps: []Step{
				{Label: "Baseline operations", Payload: map[string]interface{}{
					"severity": "info", "description": "All trading systems nominal", "affected": []string{},
				}},
				{Label: "Order latency climbing", Payload: map[string]interface{}{
					"severity": "warning", "description": "p99 order latency up 4x on matching engine", "affected": []string{"matching-engine"},
				}},
				{Label: "Market data feed degraded", Payload: map[string]interface{}{
					"severity": "warning", "description": "Market data gateway dropping ticks", "affected": []string{"market-data-gateway", "matching-engine"},
				}},
				{Label: "Order flow halted", Payload: map[string]interface{}{
					"severity": "critical", "description": "Matching engine rejecting new orders", "affected": []string{"matching-engine", "order-router", "market-data-gateway"},
				}},
				{Label: "Failover to standby region", Payload: map[string]interface{}{
					"severity": "warning", "description": "Traffic shifted to standby matching cluster", "affected": []string{"order-router"},
				}},
				{Label: "Recovery confirmed", Payload: map[string]interface{}{
					"severity": "info", "description": "Order flow restored, latency back to baseline", "affected": []string{},
				}},
			},
		},
		{
			ID:   "datacenter-outage",
			Name: "Datacenter Power Outage",
			Steps: []Step{
				{Label: "Utility power lost", Payload: map[string]interface{}{
					"severity": "warning", "description": "DC-east running on UPS", "affected": []string{"payment-db"},
				}},
				{Label: "Generators failed to start", Payload: map[string]interface{}{
					"severity": "critical", "description": "UPS at 40%, generators offline", "affected": []string{"payment-db", "auth-service", "message-broker"},
				}},
				{Label: "Graceful shutdown initiated", Payload: map[string]interface{}{
					"severity": "critical", "description": "Non-essential workloads drained from DC-east", "affected": []string{"payment-db", "auth-service"},
				}},
				{Label: "Power restored", Payload: map[string]interface{}{
					"severity": "info", "description": "Utility power back, workloads rebalancing", "affected": []string{},
				}},
			},
		},
		{
			ID:   "security-breach",
			Name: "Credential Stuffing Attack",
			Steps: []Step{
				{Label: "Login anomaly detected", Payload: map[string]interface{}{
					"severity": "warning", "description": "Failed login rate 20x baseline from new ASN", "affected": []string{"auth-service"},
				}},
				{Label: "Rate limiting engaged", Payload: map[string]interface{}{
					"severity": "warning", "description": "Per-IP throttles active on the edge", "affected": []string{"api-gateway", "auth-service"},
				}},
				{Label: "Credential reset wave", Payload: map[string]interface{}{
					"severity": "critical", "description": "Forced resets for 1,204 compromised accounts", "affected": []string{"auth-service", "notification-service"},
				}},
				{Label: "Attack subsided", Payload: map[string]interface{}{
					"severity": "info", "description": "Malicious traffic blocked at the edge", "affected": []string{},
				}},
			},
		},
	}
}
