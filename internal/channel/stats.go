package channel

import (
	"fmt"
	"time"

	"github.com/tenorite/tenorite-server/internal/game"
)

// StatsLines renders the end of game summary, one line per ranked player
// followed by the total game time.
func StatsLines(ranking game.Ranking, duration time.Duration) []string {
	lines := make([]string, 0, len(ranking)+1)
	for _, st := range ranking {
		lines = append(lines, fmt.Sprintf(
			"<purple><b>%s</b></purple>: <aqua>%d blocks @ %.2f bpm</aqua>; <blue>%d/%d/%d specials</blue>; %d/%d/%d combos; lvl: %d, mxfh: %d",
			st.Player.Name,
			st.Blocks,
			st.BlocksPerMinute(),
			st.TotalSpecialsSent(),
			st.TotalSpecialsReceived(),
			st.TotalSpecialsOnSelf(),
			st.TwoLineCombos,
			st.ThreeLineCombos,
			st.FourLineCombos,
			st.Level,
			st.MaxFieldHeight,
		))
	}
	lines = append(lines, fmt.Sprintf("<brown>Total game time: <black>%.2f</black> seconds", duration.Seconds()))
	return lines
}
