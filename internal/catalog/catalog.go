// Package catalog loads the static seed data for the progression engine:
// mission templates, drill archetypes and achievement definitions. The data
// is immutable after load; a YAML file deployed next to the binary can
// override the embedded defaults.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/praxislms/progression-engine/internal/progression"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// MissionTemplate is an archetype from which daily missions are instantiated.
// Description is a format string taking the rolled target count.
type MissionTemplate struct {
	Type               progression.ActivityType `yaml:"type"`
	Description        string                   `yaml:"description"`
	TargetMin          int                      `yaml:"target_min"`
	TargetMax          int                      `yaml:"target_max"`
	RewardCoinsPerUnit float64                  `yaml:"reward_coins_per_unit"`
	RewardXPPerUnit    float64                  `yaml:"reward_xp_per_unit"`
}

// DrillArchetype is a fixed-duration timed activity with a flat reward.
type DrillArchetype struct {
	Name            string `yaml:"name"`
	DurationSeconds int    `yaml:"duration_seconds"`
	RewardCoins     int64  `yaml:"reward_coins"`
	RewardXP        int64  `yaml:"reward_xp"`
}

// Duration returns the drill's run time.
func (d *DrillArchetype) Duration() time.Duration {
	return time.Duration(d.DurationSeconds) * time.Second
}

// Achievement defines a one-time-unlockable milestone. Metric names a
// cumulative user statistic; the achievement unlocks on the first crossing
// of Threshold.
type Achievement struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Metric      string `yaml:"metric"`
	Threshold   int64  `yaml:"threshold"`
	RewardCoins int64  `yaml:"reward_coins"`
	RewardXP    int64  `yaml:"reward_xp"`
}

// Metrics that achievement predicates may reference.
const (
	MetricDrillsCompleted  = "drills_completed"
	MetricMissionsClaimed  = "missions_claimed"
	MetricLessonsCompleted = "lessons_completed"
	MetricMatchesPlayed    = "matches_played"
	MetricLongestStreak    = "longest_streak"
	MetricCoinsEarned      = "coins_earned"
	MetricXPEarned         = "xp_earned"
)

func validMetric(name string) bool {
	switch name {
	case MetricDrillsCompleted, MetricMissionsClaimed, MetricLessonsCompleted,
		MetricMatchesPlayed, MetricLongestStreak, MetricCoinsEarned, MetricXPEarned:
		return true
	}
	return false
}

// Catalog is the full immutable seed set.
type Catalog struct {
	Missions     []MissionTemplate `yaml:"missions"`
	Drills       []DrillArchetype  `yaml:"drills"`
	Achievements []Achievement     `yaml:"achievements"`

	drillsByName map[string]*DrillArchetype
}

// Load reads the catalog from path, or the embedded defaults when path is
// empty, and validates it.
func Load(path string) (*Catalog, error) {
	data := defaultCatalogYAML
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read catalog file: %w", err)
		}
		data = b
	}

	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}

	c.drillsByName = make(map[string]*DrillArchetype, len(c.Drills))
	for i := range c.Drills {
		c.drillsByName[c.Drills[i].Name] = &c.Drills[i]
	}

	return &c, nil
}

// Validate checks the catalog's internal consistency.
func (c *Catalog) Validate() error {
	if len(c.Missions) == 0 {
		return fmt.Errorf("at least one mission template is required")
	}
	for i, m := range c.Missions {
		if !m.Type.Valid() {
			return fmt.Errorf("mission template %d: unknown type %q", i, m.Type)
		}
		if m.TargetMin <= 0 || m.TargetMax < m.TargetMin {
			return fmt.Errorf("mission template %d: invalid target range [%d,%d]", i, m.TargetMin, m.TargetMax)
		}
		if m.RewardCoinsPerUnit < 0 || m.RewardXPPerUnit < 0 {
			return fmt.Errorf("mission template %d: negative reward multiplier", i)
		}
	}

	seen := make(map[string]bool, len(c.Drills))
	for i, d := range c.Drills {
		if d.Name == "" {
			return fmt.Errorf("drill %d: name is required", i)
		}
		if seen[d.Name] {
			return fmt.Errorf("drill %d: duplicate name %q", i, d.Name)
		}
		seen[d.Name] = true
		if d.DurationSeconds <= 0 {
			return fmt.Errorf("drill %q: duration must be positive", d.Name)
		}
		if d.RewardCoins < 0 || d.RewardXP < 0 {
			return fmt.Errorf("drill %q: negative reward", d.Name)
		}
	}

	ids := make(map[string]bool, len(c.Achievements))
	for i, a := range c.Achievements {
		if a.ID == "" {
			return fmt.Errorf("achievement %d: id is required", i)
		}
		if ids[a.ID] {
			return fmt.Errorf("achievement %d: duplicate id %q", i, a.ID)
		}
		ids[a.ID] = true
		if !validMetric(a.Metric) {
			return fmt.Errorf("achievement %q: unknown metric %q", a.ID, a.Metric)
		}
		if a.Threshold <= 0 {
			return fmt.Errorf("achievement %q: threshold must be positive", a.ID)
		}
	}

	return nil
}

// Drill returns the archetype with the given name, or nil if unknown.
func (c *Catalog) Drill(name string) *DrillArchetype {
	return c.drillsByName[name]
}

// Achievement returns the definition with the given id, or nil if unknown.
func (c *Catalog) Achievement(id string) *Achievement {
	for i := range c.Achievements {
		if c.Achievements[i].ID == id {
			return &c.Achievements[i]
		}
	}
	return nil
}
