package game

import (
	"time"

	"github.com/tenorite/tenorite-server/internal/field"
	"github.com/tenorite/tenorite-server/internal/protocol"
)

// Ranking is winner first: index 0 is the last player standing.
type Ranking []PlayingStats

func (r Ranking) Winner() (PlayingStats, bool) {
	if len(r) == 0 {
		return PlayingStats{}, false
	}
	return r[0], true
}

type counters struct {
	playingTime     time.Duration
	level           int
	twoLineCombos   int
	threeLineCombos int
	fourLineCombos  int
	lastFieldHeight int
	maxFieldHeight  int
	blocks          int
	field           field.Field

	received     map[protocol.Special]int
	onOpponent   map[protocol.Special]int
	onTeamPlayer map[protocol.Special]int
	onSelf       map[protocol.Special]int
}

type calculator struct {
	rules    Rules
	roster   []Player
	live     map[int]Player
	counters map[int]*counters
	ranking  Ranking
}

// CalculateRanking replays a finished game's timeline. Players who lost are
// ranked below everyone who outlasted them; players still alive at the end
// are ranked above all losers. Players who left are not ranked.
func CalculateRanking(rules Rules, roster []Player, duration time.Duration, timeline []TimedMessage) Ranking {
	c := &calculator{
		rules:    rules,
		roster:   roster,
		live:     make(map[int]Player, len(roster)),
		counters: make(map[int]*counters, len(roster)),
	}
	for _, p := range roster {
		c.live[p.Slot] = p
		c.counters[p.Slot] = &counters{
			playingTime:  duration,
			blocks:       -1,
			received:     protocol.NewSpecialCounts(),
			onOpponent:   protocol.NewSpecialCounts(),
			onTeamPlayer: protocol.NewSpecialCounts(),
			onSelf:       protocol.NewSpecialCounts(),
		}
	}

	for _, tm := range timeline {
		c.process(tm)
	}

	for _, p := range roster {
		if _, ok := c.live[p.Slot]; ok {
			c.finalize(p)
		}
	}
	return c.ranking
}

func (c *calculator) process(tm TimedMessage) {
	switch m := tm.Message.(type) {
	case protocol.PlayerLost:
		p, ok := c.live[m.Sender]
		if !ok {
			return
		}
		delete(c.live, m.Sender)
		c.counters[m.Sender].playingTime = tm.Elapsed
		c.finalize(p)

	case protocol.PlayerLeave:
		delete(c.live, m.Sender)

	case protocol.Lvl:
		if s, ok := c.counters[m.Sender]; ok {
			s.level = m.Level
		}

	case protocol.ClassicAdd:
		if s, ok := c.counters[m.Sender]; ok {
			switch m.Lines {
			case 1:
				s.twoLineCombos++
			case 2:
				s.threeLineCombos++
			case 4:
				s.fourLineCombos++
			}
		}
		c.correctClassicAdd(m.Sender)

	case protocol.SpecialBlock:
		c.correctBlocks(m.Target)
		if m.Target == m.Sender {
			if _, ok := c.live[m.Sender]; ok {
				c.counters[m.Sender].onSelf[m.Special]++
			}
			return
		}
		sender, ok := c.live[m.Sender]
		if !ok {
			return
		}
		target, ok := c.live[m.Target]
		if !ok {
			return
		}
		if sender.IsTeamPlayerOf(target) {
			c.counters[m.Sender].onTeamPlayer[m.Special]++
		} else {
			c.counters[m.Sender].onOpponent[m.Special]++
		}
		c.counters[m.Target].received[m.Special]++

	case protocol.Field:
		s, ok := c.counters[m.Sender]
		if !ok {
			return
		}
		s.field = s.field.Apply(m.Update)
		s.lastFieldHeight = s.field.Highest()
		s.maxFieldHeight = max(s.maxFieldHeight, s.lastFieldHeight)
		s.blocks++
	}
}

// correctClassicAdd takes back the block drop that the field update caused
// by an added line will count for every affected player.
func (c *calculator) correctClassicAdd(sender int) {
	if !c.rules.ClassicRules && sender != protocol.ServerSlot {
		return
	}
	if sender == protocol.ServerSlot {
		for slot := range c.live {
			c.correctBlocks(slot)
		}
		return
	}
	from, ok := c.live[sender]
	if !ok {
		return
	}
	for slot, p := range c.live {
		if slot != sender && !p.IsTeamPlayerOf(from) {
			c.correctBlocks(slot)
		}
	}
}

func (c *calculator) correctBlocks(slot int) {
	if _, ok := c.live[slot]; ok {
		c.counters[slot].blocks--
	}
}

func (c *calculator) finalize(p Player) {
	s := c.counters[p.Slot]
	stats := NewPlayingStats(
		p,
		s.playingTime,
		s.level,
		max(0, s.level-c.rules.StartingLevel)*c.rules.LinesPerLevel,
		s.twoLineCombos, s.threeLineCombos, s.fourLineCombos,
		s.lastFieldHeight, s.maxFieldHeight, s.blocks,
		s.received, s.onOpponent, s.onTeamPlayer, s.onSelf,
	)
	c.ranking = append(Ranking{stats}, c.ranking...)
}
