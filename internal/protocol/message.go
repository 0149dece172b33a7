// Package protocol defines the framed message set spoken between multiworld
// clients and the server. Each frame carries exactly one message kind; the set
// is closed, so dispatch sites can switch exhaustively over MsgType.
package protocol

import (
	"github.com/pixil98/go-multiworld/internal/rando"
)

type MsgType uint8

const (
	MsgInvalid MsgType = iota
	MsgConnect
	MsgDisconnect
	MsgJoin
	MsgJoinConfirm
	MsgLeave
	MsgReady
	MsgNumReady
	MsgUnready
	MsgStart
	MsgSave
	MsgItemSend
	MsgItemSendConfirm
	MsgItemReceive
	MsgItemReceiveConfirm
	MsgNotify
	MsgPing
	MsgResult
)

func (t MsgType) String() string {
	switch t {
	case MsgConnect:
		return "connect"
	case MsgDisconnect:
		return "disconnect"
	case MsgJoin:
		return "join"
	case MsgJoinConfirm:
		return "join_confirm"
	case MsgLeave:
		return "leave"
	case MsgReady:
		return "ready"
	case MsgNumReady:
		return "num_ready"
	case MsgUnready:
		return "unready"
	case MsgStart:
		return "start"
	case MsgSave:
		return "save"
	case MsgItemSend:
		return "item_send"
	case MsgItemSendConfirm:
		return "item_send_confirm"
	case MsgItemReceive:
		return "item_receive"
	case MsgItemReceiveConfirm:
		return "item_receive_confirm"
	case MsgNotify:
		return "notify"
	case MsgPing:
		return "ping"
	case MsgResult:
		return "result"
	default:
		return "invalid"
	}
}

// Message is implemented by every frame payload. SenderUID is filled by the
// client with the identity the server assigned it during the connect exchange
// (zero means "assign me one").
type Message interface {
	Type() MsgType
}

type Connect struct {
	SenderUID uint64 `json:"sender_uid"`
}

type Disconnect struct{}

// Join binds an identified connection to one player slot of an existing
// multiworld instance.
type Join struct {
	MultiworldID string `json:"multiworld_id"`
	PlayerID     int    `json:"player_id"`
	Nickname     string `json:"nickname"`
}

type JoinConfirm struct{}

type Leave struct{}

// Ready submits settings into a named room and asks to be counted toward the
// next generation started there.
type Ready struct {
	Room     string          `json:"room"`
	Nickname string          `json:"nickname"`
	Settings *rando.Settings `json:"settings"`
}

// NumReady is broadcast to every readied member of a room whenever its roster
// changes. Ready == -1 signals a denied ready-up, with the reason in Names.
type NumReady struct {
	Ready int    `json:"ready"`
	Names string `json:"names"`
}

type Unready struct{}

type Start struct{}

// Save reports that the sender has durably written its generation result.
type Save struct{}

// ItemSend reports that the sender picked up an item belonging to another
// player.
type ItemSend struct {
	Location string `json:"location"`
	Item     string `json:"item"`
	To       int    `json:"to"`
}

// ItemSendConfirm is the local acknowledgment echoed back to the sender of an
// ItemSend.
type ItemSendConfirm struct {
	Location string `json:"location"`
	Item     string `json:"item"`
	To       int    `json:"to"`
}

// ItemReceive delivers an item to its owning player. It stays queued for
// resend until the matching ItemReceiveConfirm arrives.
type ItemReceive struct {
	Item string `json:"item"`
	From string `json:"from"`
}

type ItemReceiveConfirm struct {
	Item string `json:"item"`
	From string `json:"from"`
}

type Notify struct {
	Text string `json:"text"`
}

type Ping struct{}

// Result carries one player's projected slice of a completed generation.
type Result struct {
	Result *rando.Result `json:"result"`
}

func (Connect) Type() MsgType            { return MsgConnect }
func (Disconnect) Type() MsgType         { return MsgDisconnect }
func (Join) Type() MsgType               { return MsgJoin }
func (JoinConfirm) Type() MsgType        { return MsgJoinConfirm }
func (Leave) Type() MsgType              { return MsgLeave }
func (Ready) Type() MsgType              { return MsgReady }
func (NumReady) Type() MsgType           { return MsgNumReady }
func (Unready) Type() MsgType            { return MsgUnready }
func (Start) Type() MsgType              { return MsgStart }
func (Save) Type() MsgType               { return MsgSave }
func (ItemSend) Type() MsgType           { return MsgItemSend }
func (ItemSendConfirm) Type() MsgType    { return MsgItemSendConfirm }
func (ItemReceive) Type() MsgType        { return MsgItemReceive }
func (ItemReceiveConfirm) Type() MsgType { return MsgItemReceiveConfirm }
func (Notify) Type() MsgType             { return MsgNotify }
func (Ping) Type() MsgType               { return MsgPing }
func (Result) Type() MsgType             { return MsgResult }
