package game

import "strconv"

type Player struct {
	Slot int    `json:"slot"`
	Name string `json:"name"`
	Team string `json:"team,omitempty"`
}

// IsTeamPlayerOf reports whether both players carry the same non-empty team tag.
func (p Player) IsTeamPlayerOf(o Player) bool {
	return p.Team != "" && p.Team == o.Team
}

// side identifies the competitive side a player belongs to.
func (p Player) side() string {
	if p.Team == "" {
		return "solo:" + strconv.Itoa(p.Slot)
	}
	return "team:" + p.Team
}

// oneSideLeft reports whether at most one competitive side remains.
func oneSideLeft(players map[int]Player) bool {
	sides := make(map[string]struct{}, len(players))
	for _, p := range players {
		sides[p.side()] = struct{}{}
		if len(sides) > 1 {
			return false
		}
	}
	return true
}
