package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"wmsforge/internal/domain"
	"wmsforge/internal/risk"
)

// Analysis types the suggestion catalog is keyed by.
const (
	AnalysisLifting   = "lifting"
	AnalysisTransport = "transport"
	AnalysisOcean     = "ocean"
	AnalysisGeneral   = "general"
)

// Config models wmsforge.yml.
type Config struct {
	Author struct {
		ID string `yaml:"id"`
	} `yaml:"author"`
	Suggestions struct {
		DelayMS int                     `yaml:"delay_ms"`
		Catalog map[string][]Suggestion `yaml:"catalog"`
	} `yaml:"suggestions"`
}

// Suggestion is one canned catalog entry. StepRef is the 1-based index of the
// step a suggestion attaches to; 0 means general.
type Suggestion struct {
	Category    string `yaml:"category"`
	Description string `yaml:"description"`
	Severity    int    `yaml:"severity"`
	Likelihood  int    `yaml:"likelihood"`
	Mitigation  string `yaml:"mitigation"`
	StepRef     int    `yaml:"step_ref"`
}

// Load reads and validates config from the workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Suggestions.DelayMS < 0 {
		return fmt.Errorf("config.suggestions.delay_ms must not be negative")
	}
	for analysis, entries := range c.Suggestions.Catalog {
		switch analysis {
		case AnalysisLifting, AnalysisTransport, AnalysisOcean, AnalysisGeneral:
		default:
			return fmt.Errorf("unknown suggestion analysis type %s", analysis)
		}
		for i, s := range entries {
			if s.Description == "" {
				return fmt.Errorf("catalog %s[%d] has empty description", analysis, i)
			}
			if s.Mitigation == "" {
				return fmt.Errorf("catalog %s[%d] has empty mitigation", analysis, i)
			}
			if !risk.ValidRating(s.Severity) || !risk.ValidRating(s.Likelihood) {
				return fmt.Errorf("catalog %s[%d] severity/likelihood out of range", analysis, i)
			}
			if !domain.ValidRiskCategory(domain.RiskCategory(s.Category)) {
				return fmt.Errorf("catalog %s[%d] has unknown risk category %s", analysis, i, s.Category)
			}
			if s.StepRef < 0 {
				return fmt.Errorf("catalog %s[%d] step_ref must not be negative", analysis, i)
			}
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "wmsforge.yml")
}

// Default returns the built-in config.
func Default() *Config {
	cfg, err := FromYAML([]byte(defaultTemplate))
	if err != nil {
		panic(fmt.Sprintf("default config invalid: %v", err))
	}
	return cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Author.ID == "" {
		cfg.Author.ID = "local-user"
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `author:
  id: local-user

suggestions:
  delay_ms: 1500
  catalog:
    lifting:
      - category: Lifting
        description: "Crane tipping due to soft ground"
        severity: 5
        likelihood: 3
        mitigation: "Conduct soil bearing analysis and use mats if necessary"
        step_ref: 1
      - category: Lifting
        description: "Overhead obstruction during lift"
        severity: 3
        likelihood: 2
        mitigation: "Use spotter and check clearances prior to lift"
        step_ref: 2
      - category: Lifting
        description: "Sling failure"
        severity: 4
        likelihood: 2
        mitigation: "Use certified rigging and double-check load limits"
        step_ref: 1

    transport:
      - category: Transport
        description: "Load shifting during transport"
        severity: 4
        likelihood: 3
        mitigation: "Secure load with appropriate restraints and check regularly"
        step_ref: 1
      - category: Transport
        description: "Collision with other vehicles"
        severity: 5
        likelihood: 2
        mitigation: "Use escort vehicles and maintain safe speed"
        step_ref: 2
      - category: Transport
        description: "Route restrictions (bridges, tunnels)"
        severity: 3
        likelihood: 3
        mitigation: "Pre-plan route and obtain necessary permits"

    ocean:
      - category: OceanFreight
        description: "Cargo shifting in rough seas"
        severity: 4
        likelihood: 3
        mitigation: "Proper lashing and securing according to maritime standards"
        step_ref: 1
      - category: OceanFreight
        description: "Corrosion damage from sea water"
        severity: 3
        likelihood: 4
        mitigation: "Apply protective coatings and use proper packaging"
      - category: OceanFreight
        description: "Delays due to port congestion"
        severity: 2
        likelihood: 4
        mitigation: "Plan for buffer time and have contingency plans"

    general:
      - category: General
        description: "Personnel injury from manual handling"
        severity: 3
        likelihood: 3
        mitigation: "Provide training on proper lifting techniques and PPE"
      - category: General
        description: "Slips, trips and falls"
        severity: 3
        likelihood: 3
        mitigation: "Keep work area clean and free of obstacles"
      - category: General
        description: "Adverse weather conditions"
        severity: 4
        likelihood: 2
        mitigation: "Monitor weather forecasts and have stop-work criteria"
`
