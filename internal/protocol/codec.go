package protocol

import (
	"errors"
	"fmt"

	"github.com/tenorite/tenorite-server/pkg/types"
)

var ErrInvalidMessage = errors.New("invalid message")

// Encode converts a message into its wire envelope.
func Encode(m Message) types.Envelope {
	env := types.Envelope{Type: string(m.Kind())}
	switch msg := m.(type) {
	case Pline:
		env.Sender, env.Text = msg.Sender, msg.Text
	case PlineAct:
		env.Sender, env.Text = msg.Sender, msg.Text
	case Gmsg:
		env.Text = msg.Text
	case Team:
		env.Sender, env.Team = msg.Sender, msg.Team
	case StartGame:
		env.Sender = msg.Sender
	case StopGame:
		env.Sender = msg.Sender
	case PauseGame:
		env.Sender = msg.Sender
	case ResumeGame:
		env.Sender = msg.Sender
	case Lvl:
		env.Sender, env.Level = msg.Sender, msg.Level
	case Field:
		env.Sender, env.Update, env.Server = msg.Sender, msg.Update, msg.Server
	case SpecialBlock:
		env.Sender, env.Target, env.Special, env.Server = msg.Sender, msg.Target, string(msg.Special), msg.Server
	case ClassicAdd:
		env.Sender, env.Lines = msg.Sender, msg.Lines
	case PlayerLost:
		env.Sender = msg.Sender
	case PlayerLeave:
		env.Sender = msg.Sender
	case PlayerWon:
		env.Sender = msg.Sender
	case PlayerNum:
		env.Slot = msg.Slot
	case PlayerJoin:
		env.Slot, env.Name = msg.Slot, msg.Name
	case NewGame:
		env.Rules = msg.Rules
	case Winlist:
		env.Entries = msg.Entries
	}
	return env
}

// Decode converts a wire envelope back into a message. Every kind is accepted;
// use DecodeClient for input coming from a connected client.
func Decode(env types.Envelope) (Message, error) {
	switch Kind(env.Type) {
	case KindPline:
		return Pline{Sender: env.Sender, Text: env.Text}, nil
	case KindPlineAct:
		return PlineAct{Sender: env.Sender, Text: env.Text}, nil
	case KindGmsg:
		return Gmsg{Text: env.Text}, nil
	case KindTeam:
		return Team{Sender: env.Sender, Team: env.Team}, nil
	case KindStartGame:
		return StartGame{Sender: env.Sender}, nil
	case KindStopGame:
		return StopGame{Sender: env.Sender}, nil
	case KindPauseGame:
		return PauseGame{Sender: env.Sender}, nil
	case KindResumeGame:
		return ResumeGame{Sender: env.Sender}, nil
	case KindLvl:
		return Lvl{Sender: env.Sender, Level: env.Level}, nil
	case KindField:
		return Field{Sender: env.Sender, Update: env.Update, Server: env.Server}, nil
	case KindSpecial:
		sp, ok := ParseSpecial(env.Special)
		if !ok {
			return nil, fmt.Errorf("%w: unknown special %q", ErrInvalidMessage, env.Special)
		}
		return SpecialBlock{Sender: env.Sender, Target: env.Target, Special: sp, Server: env.Server}, nil
	case KindClassicAdd:
		return ClassicAdd{Sender: env.Sender, Lines: env.Lines}, nil
	case KindPlayerLost:
		return PlayerLost{Sender: env.Sender}, nil
	case KindPlayerLeave:
		return PlayerLeave{Sender: env.Sender}, nil
	case KindPlayerWon:
		return PlayerWon{Sender: env.Sender}, nil
	case KindPlayerNum:
		return PlayerNum{Slot: env.Slot}, nil
	case KindPlayerJoin:
		return PlayerJoin{Slot: env.Slot, Name: env.Name}, nil
	case KindNewGame:
		return NewGame{Rules: env.Rules}, nil
	case KindEndGame:
		return EndGame{}, nil
	case KindIngame:
		return Ingame{}, nil
	case KindGamePaused:
		return GamePaused{}, nil
	case KindGameRunning:
		return GameRunning{}, nil
	case KindWinlist:
		return Winlist{Entries: env.Entries}, nil
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, env.Type)
	}
}

// DecodeClient decodes a message sent by a client. Server-only kinds are
// rejected and the server-origin flag is never trusted.
func DecodeClient(env types.Envelope) (Message, error) {
	m, err := Decode(env)
	if err != nil {
		return nil, err
	}
	switch msg := m.(type) {
	case PlayerNum, PlayerJoin, NewGame, EndGame, Ingame, GamePaused, GameRunning, Winlist, PlayerLeave:
		return nil, fmt.Errorf("%w: %s is server only", ErrInvalidMessage, env.Type)
	case Field:
		msg.Server = false
		return msg, nil
	case SpecialBlock:
		msg.Server = false
		return msg, nil
	}
	return m, nil
}
