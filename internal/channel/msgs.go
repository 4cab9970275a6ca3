package channel

import (
	"errors"

	"github.com/tenorite/tenorite-server/internal/game"
	"github.com/tenorite/tenorite-server/internal/protocol"
	"github.com/tenorite/tenorite-server/pkg/types"
)

var (
	ErrChannelFull         = errors.New("channel is full")
	ErrChannelNotAvailable = errors.New("channel is not available")
)

// Endpoint is the outbound side of one connected client.
type Endpoint interface {
	// Send delivers a protocol message. It must not block.
	Send(protocol.Message)
	// Notify delivers a session notice. It must not block.
	Notify(Notice)
	// Done is closed when the client is gone.
	Done() <-chan struct{}
}

// Notice is a session reply addressed to an endpoint rather than a slot.
type Notice interface{ isNotice() }

type SlotReserved struct{ Session *Session }

type SlotReservationFailed struct {
	Channel string
	Reason  error
}

type ChannelLeft struct{ Session *Session }

type ChannelClosed struct{ Session *Session }

func (SlotReserved) isNotice()          {}
func (SlotReservationFailed) isNotice() {}
func (ChannelLeft) isNotice()           {}
func (ChannelClosed) isNotice()         {}

// Msg is anything a session processes in its loop.
type Msg interface{ isSessionMsg() }

type ReserveSlot struct {
	Endpoint Endpoint
	Name     string
}

type ConfirmSlot struct{ Endpoint Endpoint }

type LeaveChannel struct{ Endpoint Endpoint }

// disconnected is sent by the liveness watch of an endpoint.
type disconnected struct{ Endpoint Endpoint }

// FromClient is a protocol message sent by the client behind Endpoint.
type FromClient struct {
	Endpoint Endpoint
	Message  protocol.Message
}

// Inject routes a server-originated message; it skips the sender check.
type Inject struct{ Message protocol.Message }

type ListChannels struct{ Reply chan<- types.ChannelInfo }

type WinlistUpdated struct {
	Tempo   game.Tempo
	Mode    game.ModeID
	Entries []types.WinlistEntry
}

type GetState struct{ Reply chan View }

type closeIdle struct{ gen int }

type Shutdown struct{}

func (ReserveSlot) isSessionMsg()    {}
func (ConfirmSlot) isSessionMsg()    {}
func (LeaveChannel) isSessionMsg()   {}
func (disconnected) isSessionMsg()   {}
func (FromClient) isSessionMsg()     {}
func (Inject) isSessionMsg()         {}
func (ListChannels) isSessionMsg()   {}
func (WinlistUpdated) isSessionMsg() {}
func (GetState) isSessionMsg()       {}
func (closeIdle) isSessionMsg()      {}
func (Shutdown) isSessionMsg()       {}

type SlotView struct {
	Slot int
	Name string
	Team string
}

// View is a read-only copy of the session state, for tests and listings.
type View struct {
	Name      string
	Slots     []SlotView
	Pending   []int
	Free      []int
	Running   bool
	Paused    bool
	IdleArmed bool
}
