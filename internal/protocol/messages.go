package protocol

// Kind names a protocol message on the wire.
type Kind string

const (
	KindPline       Kind = "pline"
	KindPlineAct    Kind = "plineact"
	KindGmsg        Kind = "gmsg"
	KindTeam        Kind = "team"
	KindStartGame   Kind = "startgame"
	KindStopGame    Kind = "stopgame"
	KindPauseGame   Kind = "pause"
	KindResumeGame  Kind = "resume"
	KindLvl         Kind = "lvl"
	KindField       Kind = "f"
	KindSpecial     Kind = "sb"
	KindClassicAdd  Kind = "cs"
	KindPlayerLost  Kind = "playerlost"
	KindPlayerLeave Kind = "playerleave"
	KindPlayerWon   Kind = "playerwon"

	// server -> client only
	KindPlayerNum   Kind = "playernum"
	KindPlayerJoin  Kind = "playerjoin"
	KindNewGame     Kind = "newgame"
	KindEndGame     Kind = "endgame"
	KindIngame      Kind = "ingame"
	KindGamePaused  Kind = "gamepaused"
	KindGameRunning Kind = "gamerunning"
	KindWinlist     Kind = "winlist"
)

// Message is the closed set of protocol messages exchanged inside a channel.
type Message interface {
	Kind() Kind
	isMessage()
}

// ServerSlot is the sender number used for messages synthesized by the server.
const ServerSlot = 0

type Pline struct {
	Sender int
	Text   string
}

type PlineAct struct {
	Sender int
	Text   string
}

type Gmsg struct {
	Text string
}

type Team struct {
	Sender int
	Team   string
}

type StartGame struct{ Sender int }

type StopGame struct{ Sender int }

type PauseGame struct{ Sender int }

type ResumeGame struct{ Sender int }

type Lvl struct {
	Sender int
	Level  int
}

// Field carries a field update: either a full field or a diff.
// Server is set only for updates injected by the server itself.
type Field struct {
	Sender int
	Update string
	Server bool
}

type SpecialBlock struct {
	Sender  int
	Target  int
	Special Special
	Server  bool
}

// ClassicAdd is the classic-style "lines added to all" message sent on
// 2, 3 and 4 line clears (Lines is 1, 2 or 4).
type ClassicAdd struct {
	Sender int
	Lines  int
}

type PlayerLost struct{ Sender int }

type PlayerLeave struct{ Sender int }

type PlayerWon struct{ Sender int }

type PlayerNum struct{ Slot int }

type PlayerJoin struct {
	Slot int
	Name string
}

type NewGame struct{ Rules string }

type EndGame struct{}

type Ingame struct{}

type GamePaused struct{}

type GameRunning struct{}

type Winlist struct{ Entries []string }

func (Pline) Kind() Kind        { return KindPline }
func (PlineAct) Kind() Kind     { return KindPlineAct }
func (Gmsg) Kind() Kind         { return KindGmsg }
func (Team) Kind() Kind         { return KindTeam }
func (StartGame) Kind() Kind    { return KindStartGame }
func (StopGame) Kind() Kind     { return KindStopGame }
func (PauseGame) Kind() Kind    { return KindPauseGame }
func (ResumeGame) Kind() Kind   { return KindResumeGame }
func (Lvl) Kind() Kind          { return KindLvl }
func (Field) Kind() Kind        { return KindField }
func (SpecialBlock) Kind() Kind { return KindSpecial }
func (ClassicAdd) Kind() Kind   { return KindClassicAdd }
func (PlayerLost) Kind() Kind   { return KindPlayerLost }
func (PlayerLeave) Kind() Kind  { return KindPlayerLeave }
func (PlayerWon) Kind() Kind    { return KindPlayerWon }
func (PlayerNum) Kind() Kind    { return KindPlayerNum }
func (PlayerJoin) Kind() Kind   { return KindPlayerJoin }
func (NewGame) Kind() Kind      { return KindNewGame }
func (EndGame) Kind() Kind      { return KindEndGame }
func (Ingame) Kind() Kind       { return KindIngame }
func (GamePaused) Kind() Kind   { return KindGamePaused }
func (GameRunning) Kind() Kind  { return KindGameRunning }
func (Winlist) Kind() Kind      { return KindWinlist }

func (Pline) isMessage()        {}
func (PlineAct) isMessage()     {}
func (Gmsg) isMessage()         {}
func (Team) isMessage()         {}
func (StartGame) isMessage()    {}
func (StopGame) isMessage()     {}
func (PauseGame) isMessage()    {}
func (ResumeGame) isMessage()   {}
func (Lvl) isMessage()          {}
func (Field) isMessage()        {}
func (SpecialBlock) isMessage() {}
func (ClassicAdd) isMessage()   {}
func (PlayerLost) isMessage()   {}
func (PlayerLeave) isMessage()  {}
func (PlayerWon) isMessage()    {}
func (PlayerNum) isMessage()    {}
func (PlayerJoin) isMessage()   {}
func (NewGame) isMessage()      {}
func (EndGame) isMessage()      {}
func (Ingame) isMessage()       {}
func (GamePaused) isMessage()   {}
func (GameRunning) isMessage()  {}
func (Winlist) isMessage()      {}

// SenderOf returns the slot a message declares as its sender. Messages
// without a sender field report false.
func SenderOf(m Message) (int, bool) {
	switch m := m.(type) {
	case Pline:
		return m.Sender, true
	case PlineAct:
		return m.Sender, true
	case Team:
		return m.Sender, true
	case StartGame:
		return m.Sender, true
	case StopGame:
		return m.Sender, true
	case PauseGame:
		return m.Sender, true
	case ResumeGame:
		return m.Sender, true
	case Lvl:
		return m.Sender, true
	case Field:
		return m.Sender, true
	case SpecialBlock:
		return m.Sender, true
	case ClassicAdd:
		return m.Sender, true
	case PlayerLost:
		return m.Sender, true
	case PlayerLeave:
		return m.Sender, true
	case PlayerWon:
		return m.Sender, true
	}
	return 0, false
}
