// Package priority defines the closed set of priority tiers a classified
// notification can carry.
package priority

import "strconv"

type Tier int

const (
	Low    Tier = 1
	Medium Tier = 2
	High   Tier = 3
)

// Tiers lists every valid tier, lowest first.
var Tiers = []Tier{Low, Medium, High}

// Default is used whenever a tier is missing or out of range.
const Default = Medium

func Valid(n int) bool {
	for _, t := range Tiers {
		if int(t) == n {
			return true
		}
	}
	return false
}

// Coerce maps n onto the tier set; anything outside it becomes Default.
func Coerce(n int) Tier {
	if Valid(n) {
		return Tier(n)
	}
	return Default
}

func (t Tier) String() string {
	switch t {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	}
	return "tier(" + strconv.Itoa(int(t)) + ")"
}
