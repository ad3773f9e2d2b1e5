// Package plan defines the stratified sampling plan: regions, their business
// zones, and the shared price tiers with per-tier hotel targets. The plan is
// immutable configuration, loaded once per run.
package plan

import (
	_ "embed"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultPlanYAML []byte

// Tier is one price band with its sampling target.
type Tier struct {
	Level    string `yaml:"level"`
	MinPrice int    `yaml:"min_price"`
	MaxPrice int    `yaml:"max_price"`
	Target   int    `yaml:"target"`
	Weight   int    `yaml:"weight"`
}

// Zone is one business zone, addressed by the source site's zone code.
type Zone struct {
	Name string `yaml:"name"`
	Code string `yaml:"code"`
}

// Region groups zones that share a functional character (and hence a dedup
// scope). Weight feeds list-task priority.
type Region struct {
	Name   string `yaml:"name"`
	Weight int    `yaml:"weight"`
	Zones  []Zone `yaml:"zones"`
}

// Plan is the full sampling plan for one city.
type Plan struct {
	City     string   `yaml:"city"`
	CityCode string   `yaml:"city_code"`
	Tiers    []Tier   `yaml:"tiers"`
	Regions  []Region `yaml:"regions"`
}

// Default returns the embedded Guangzhou plan.
func Default() (*Plan, error) {
	return parse(defaultPlanYAML)
}

// Load reads a plan from a YAML file, falling back to the embedded default
// when path is empty.
func Load(path string) (*Plan, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "plan: read %s", path)
	}
	return parse(data)
}

func parse(data []byte) (*Plan, error) {
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, eris.Wrap(err, "plan: parse yaml")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate rejects plans that cannot drive a run.
func (p *Plan) Validate() error {
	if len(p.Regions) == 0 {
		return eris.New("plan: no regions")
	}
	if len(p.Tiers) == 0 {
		return eris.New("plan: no tiers")
	}
	for _, t := range p.Tiers {
		if t.Level == "" {
			return eris.New("plan: tier with empty level")
		}
		if t.Target <= 0 {
			return eris.Errorf("plan: tier %s has non-positive target", t.Level)
		}
		if t.MaxPrice <= t.MinPrice {
			return eris.Errorf("plan: tier %s has inverted price range", t.Level)
		}
	}
	for _, r := range p.Regions {
		if r.Name == "" {
			return eris.New("plan: region with empty name")
		}
		if len(r.Zones) == 0 {
			return eris.Errorf("plan: region %s has no zones", r.Name)
		}
		for _, z := range r.Zones {
			if z.Code == "" {
				return eris.Errorf("plan: zone %s has no code", z.Name)
			}
		}
	}
	return nil
}

// ZoneTarget is the per-zone hotel target: the sum of tier targets.
func (p *Plan) ZoneTarget() int {
	var n int
	for _, t := range p.Tiers {
		n += t.Target
	}
	return n
}

// ExpectedTotal is the plan-wide hotel target across all zones.
func (p *Plan) ExpectedTotal() int {
	var zones int
	for _, r := range p.Regions {
		zones += len(r.Zones)
	}
	return zones * p.ZoneTarget()
}

// Region returns the named region, or nil.
func (p *Plan) Region(name string) *Region {
	for i := range p.Regions {
		if p.Regions[i].Name == name {
			return &p.Regions[i]
		}
	}
	return nil
}

// RegionOfZone returns the region owning the given zone code, or nil.
func (p *Plan) RegionOfZone(zoneCode string) *Region {
	for i := range p.Regions {
		for _, z := range p.Regions[i].Zones {
			if z.Code == zoneCode {
				return &p.Regions[i]
			}
		}
	}
	return nil
}

// Tier returns the named tier, or nil.
func (p *Plan) Tier(level string) *Tier {
	for i := range p.Tiers {
		if p.Tiers[i].Level == level {
			return &p.Tiers[i]
		}
	}
	return nil
}

// ClassifyTier maps an observed nightly price onto the tier it actually
// belongs to. This classification is authoritative; the tier a hotel was
// fetched under is provenance only. Returns "" when price is nil or matches
// no tier.
func (p *Plan) ClassifyTier(price *int) string {
	if price == nil {
		return ""
	}
	for _, t := range p.Tiers {
		if *price >= t.MinPrice && *price < t.MaxPrice {
			return t.Level
		}
	}
	return ""
}
