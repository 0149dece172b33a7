package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Frame layout: a big-endian uint32 length followed by that many bytes, the
// first of which is the message kind and the rest the JSON payload.
const (
	headerSize   = 4
	maxFrameSize = 1 << 20
)

var (
	// ErrUnknownMessage marks a frame whose kind byte is outside the closed
	// message set. Receiving one is fatal for that connection.
	ErrUnknownMessage = errors.New("protocol: unknown message kind")
	ErrFrameTooLarge  = errors.New("protocol: frame exceeds size limit")
)

func Encode(msg Message) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshalling %s payload: %w", msg.Type(), err)
	}

	body := len(payload) + 1
	if body > maxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, body)
	}

	buf := make([]byte, headerSize+body)
	binary.BigEndian.PutUint32(buf, uint32(body))
	buf[headerSize] = byte(msg.Type())
	copy(buf[headerSize+1:], payload)

	return buf, nil
}

// Decode reads one frame from r. It blocks until a full frame arrives, the
// reader errors, or the underlying connection is closed.
func Decode(r io.Reader) (Message, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(header[:])
	if length == 0 {
		return nil, fmt.Errorf("protocol: empty frame")
	}
	if length > maxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}

	msg, err := newMessage(MsgType(body[0]))
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(body[1:], msg); err != nil {
		return nil, fmt.Errorf("unmarshalling %s payload: %w", MsgType(body[0]), err)
	}

	return msg, nil
}

func newMessage(t MsgType) (Message, error) {
	switch t {
	case MsgConnect:
		return &Connect{}, nil
	case MsgDisconnect:
		return &Disconnect{}, nil
	case MsgJoin:
		return &Join{}, nil
	case MsgJoinConfirm:
		return &JoinConfirm{}, nil
	case MsgLeave:
		return &Leave{}, nil
	case MsgReady:
		return &Ready{}, nil
	case MsgNumReady:
		return &NumReady{}, nil
	case MsgUnready:
		return &Unready{}, nil
	case MsgStart:
		return &Start{}, nil
	case MsgSave:
		return &Save{}, nil
	case MsgItemSend:
		return &ItemSend{}, nil
	case MsgItemSendConfirm:
		return &ItemSendConfirm{}, nil
	case MsgItemReceive:
		return &ItemReceive{}, nil
	case MsgItemReceiveConfirm:
		return &ItemReceiveConfirm{}, nil
	case MsgNotify:
		return &Notify{}, nil
	case MsgPing:
		return &Ping{}, nil
	case MsgResult:
		return &Result{}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownMessage, t)
	}
}
