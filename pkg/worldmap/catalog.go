package worldmap

import (
	rpgtypes "github.com/ledgerquest/ledgerquest/pkg/rpg/types"
)

// City is one stage of world-map progression. The catalog is built once
// at startup and is read-only afterwards.
type City struct {
	Number int            `json:"number"`
	Name   string         `json:"name"`
	Tier   int            `json:"tier"`
	Enemy  rpgtypes.Enemy `json:"enemy"`
	Boss   rpgtypes.Enemy `json:"boss"`
}

// TierExperience maps a difficulty tier to the experience awarded for a
// regular victory. Boss victories award the boss's own experience.
var TierExperience = map[int]int{
	1: 40,
	2: 70,
	3: 110,
	4: 160,
	5: 220,
}

type Catalog struct {
	cities []City
}

// NewCatalog builds the default deployment catalog.
func NewCatalog() *Catalog {
	return &Catalog{cities: defaultCities()}
}

// NewCatalogFromCities builds a catalog from an explicit city list.
// Used by tests and non-default deployments.
func NewCatalogFromCities(cities []City) *Catalog {
	copied := make([]City, len(cities))
	copy(copied, cities)
	return &Catalog{cities: copied}
}

// Cities returns the full city list in progression order.
func (c *Catalog) Cities() []City {
	cities := make([]City, len(c.cities))
	copy(cities, c.cities)
	return cities
}

// City returns the catalog entry for a city number, or false if the
// number is out of range.
func (c *Catalog) City(number int) (City, bool) {
	if number < 1 || number > len(c.cities) {
		return City{}, false
	}
	return c.cities[number-1], true
}

// Size returns the number of cities in the catalog.
func (c *Catalog) Size() int {
	return len(c.cities)
}

func enemy(name string, health, strength, defense, speed, experience int) rpgtypes.Enemy {
	return rpgtypes.Enemy{
		Name:       name,
		Health:     health,
		MaxHealth:  health,
		Strength:   strength,
		Defense:    defense,
		Speed:      speed,
		Experience: experience,
	}
}

func boss(name string, health, strength, defense, speed, experience int) rpgtypes.Enemy {
	b := enemy(name, health, strength, defense, speed, experience)
	b.Boss = true
	return b
}

func defaultCities() []City {
	return []City{
		{Number: 1, Name: "Copper Village", Tier: 1, Enemy: enemy("Pickpocket", 45, 9, 3, 6, 25), Boss: boss("Debt Collector", 60, 11, 5, 5, 80)},
		{Number: 2, Name: "Silver Crossing", Tier: 1, Enemy: enemy("Highway Bandit", 60, 12, 5, 8, 35), Boss: boss("Bandit Chief", 85, 14, 7, 7, 110)},
		{Number: 3, Name: "Ledger Falls", Tier: 2, Enemy: enemy("Swamp Leech", 75, 15, 7, 6, 50), Boss: boss("Loan Shark", 110, 18, 9, 9, 150)},
		{Number: 4, Name: "Goldport", Tier: 2, Enemy: enemy("Harbor Smuggler", 90, 18, 9, 10, 65), Boss: boss("Smuggler Baron", 140, 21, 12, 10, 200)},
		{Number: 5, Name: "Vault Hollow", Tier: 3, Enemy: enemy("Vault Sentinel", 110, 22, 12, 8, 85), Boss: boss("Iron Treasurer", 170, 25, 15, 9, 260)},
		{Number: 6, Name: "Interest Peak", Tier: 3, Enemy: enemy("Mountain Wraith", 130, 26, 14, 12, 105), Boss: boss("Compound Wyrm", 210, 30, 17, 11, 330)},
		{Number: 7, Name: "Bullmarket", Tier: 4, Enemy: enemy("Rampaging Bull", 155, 31, 16, 14, 130), Boss: boss("Market Minotaur", 250, 35, 20, 13, 420)},
		{Number: 8, Name: "Bear Hollow", Tier: 4, Enemy: enemy("Cave Bear", 180, 36, 19, 12, 160), Boss: boss("Great Bear of Losses", 300, 41, 23, 12, 520)},
		{Number: 9, Name: "Inflation Wastes", Tier: 5, Enemy: enemy("Waste Specter", 210, 42, 22, 15, 195), Boss: boss("Hyperinflation Hydra", 360, 47, 26, 14, 650)},
		{Number: 10, Name: "Fortune Citadel", Tier: 5, Enemy: enemy("Citadel Guard", 250, 48, 26, 16, 240), Boss: boss("Baron of Bankruptcy", 430, 54, 30, 16, 800)},
	}
}
