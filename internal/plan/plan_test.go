package plan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPlan(t *testing.T) {
	t.Parallel()

	p, err := Default()
	require.NoError(t, err)

	assert.Equal(t, "Guangzhou", p.City)
	assert.Equal(t, "440100", p.CityCode)
	assert.Len(t, p.Regions, 6)
	assert.Len(t, p.Tiers, 4)

	// 6 regions x 3 zones x (4+6+3+2) hotels per zone.
	assert.Equal(t, 15, p.ZoneTarget())
	assert.Equal(t, 270, p.ExpectedTotal())
}

func TestLoadFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "plan.yaml")
	content := `
city: "Testville"
city_code: "000001"
tiers:
  - {level: low, min_price: 0, max_price: 100, target: 2, weight: 1}
  - {level: high, min_price: 100, max_price: 1000, target: 3, weight: 2}
regions:
  - name: "r1"
    weight: 5
    zones:
      - {name: "z1", code: "c1"}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Testville", p.City)
	assert.Equal(t, 5, p.ExpectedTotal())
}

func TestLoadEmptyPathUsesDefault(t *testing.T) {
	t.Parallel()

	p, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "Guangzhou", p.City)
}

func TestValidateRejections(t *testing.T) {
	t.Parallel()

	tier := Tier{Level: "l", MinPrice: 0, MaxPrice: 100, Target: 1}
	region := Region{Name: "r", Zones: []Zone{{Name: "z", Code: "c"}}}

	cases := map[string]Plan{
		"no regions":      {Tiers: []Tier{tier}},
		"no tiers":        {Regions: []Region{region}},
		"zero target":     {Tiers: []Tier{{Level: "l", MaxPrice: 10}}, Regions: []Region{region}},
		"inverted prices": {Tiers: []Tier{{Level: "l", MinPrice: 10, MaxPrice: 5, Target: 1}}, Regions: []Region{region}},
		"zone no code":    {Tiers: []Tier{tier}, Regions: []Region{{Name: "r", Zones: []Zone{{Name: "z"}}}}},
	}
	for name, p := range cases {
		assert.Error(t, p.Validate(), name)
	}
}

func TestClassifyTier(t *testing.T) {
	t.Parallel()

	p, err := Default()
	require.NoError(t, err)

	price := func(v int) *int { return &v }

	assert.Equal(t, "economy", p.ClassifyTier(price(299)))
	assert.Equal(t, "comfort", p.ClassifyTier(price(300))) // boundary goes up
	assert.Equal(t, "premium", p.ClassifyTier(price(750)))
	assert.Equal(t, "luxury", p.ClassifyTier(price(2400)))
	assert.Equal(t, "", p.ClassifyTier(nil))
}

func TestLookups(t *testing.T) {
	t.Parallel()

	p, err := Default()
	require.NoError(t, err)

	r := p.RegionOfZone("39584")
	require.NotNil(t, r)
	assert.Equal(t, "CBD business district", r.Name)
	assert.Nil(t, p.RegionOfZone("nope"))

	tier := p.Tier("comfort")
	require.NotNil(t, tier)
	assert.Equal(t, 6, tier.Target)

	assert.NotNil(t, p.Region("Convention district"))
	assert.Nil(t, p.Region("nope"))
}
