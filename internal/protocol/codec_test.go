package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"reflect"
	"testing"

	"github.com/pixil98/go-multiworld/internal/rando"
	"github.com/pixil98/go-testutil"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{"connect", &Connect{SenderUID: 42}},
		{"disconnect", &Disconnect{}},
		{"join", &Join{MultiworldID: "abc-123", PlayerID: 2, Nickname: "kay"}},
		{"join_confirm", &JoinConfirm{}},
		{"leave", &Leave{}},
		{"ready", &Ready{
			Room:     "weekly",
			Nickname: "kay",
			Settings: &rando.Settings{
				RandomizePools: map[string]bool{"skills": true},
				ShadeSkips:     true,
				Seed:           991,
			},
		}},
		{"num_ready", &NumReady{Ready: 3, Names: "kay, lin, mo"}},
		{"num_ready_denied", &NumReady{Ready: -1, Names: "room has an unsaved game in progress"}},
		{"unready", &Unready{}},
		{"start", &Start{}},
		{"save", &Save{}},
		{"item_send", &ItemSend{Location: "Hidden_Grotto", Item: "Claw", To: 1}},
		{"item_send_confirm", &ItemSendConfirm{Location: "Hidden_Grotto", Item: "Claw", To: 1}},
		{"item_receive", &ItemReceive{Item: "Claw", From: "lin"}},
		{"item_receive_confirm", &ItemReceiveConfirm{Item: "Claw", From: "lin"}},
		{"notify", &Notify{Text: "generation failed"}},
		{"ping", &Ping{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.msg)
			if err != nil {
				t.Fatalf("unexpected encode error: %v", err)
			}

			got, err := Decode(bytes.NewReader(data))
			if err != nil {
				t.Fatalf("unexpected decode error: %v", err)
			}

			testutil.AssertEqual(t, "type", got.Type(), tt.msg.Type())
			if !reflect.DeepEqual(got, tt.msg) {
				t.Errorf("round trip mismatch: got %+v, want %+v", got, tt.msg)
			}
		})
	}
}

func TestEncodeDecode_Result(t *testing.T) {
	item := rando.NewWorldItem(0, "Claw")
	loc := rando.NewWorldItem(1, "Hidden_Grotto")

	msg := &Result{Result: &rando.Result{
		PlayerID:     0,
		Players:      2,
		MultiworldID: "abc-123",
		ItemPlacements: map[rando.WorldItem]rando.WorldItem{
			item: loc,
		},
		Nicknames:   []string{"kay", "lin"},
		DerivedSeed: 17,
	}}

	data, err := Encode(msg)
	if err != nil {
		t.Fatalf("unexpected encode error: %v", err)
	}

	decoded, err := Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}

	got, ok := decoded.(*Result)
	if !ok {
		t.Fatalf("decoded wrong type %T", decoded)
	}
	testutil.AssertEqual(t, "multiworld id", got.Result.MultiworldID, "abc-123")
	testutil.AssertEqual(t, "placement", got.Result.ItemPlacements[item], loc)
	testutil.AssertEqual(t, "derived seed", got.Result.DerivedSeed, int64(17))
}

func TestDecode_UnknownKind(t *testing.T) {
	var buf bytes.Buffer
	frame := []byte{0xee, '{', '}'}
	binary.Write(&buf, binary.BigEndian, uint32(len(frame)))
	buf.Write(frame)

	_, err := Decode(&buf)
	if !errors.Is(err, ErrUnknownMessage) {
		t.Errorf("expected ErrUnknownMessage, got %v", err)
	}
}

func TestDecode_FrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint32(maxFrameSize+1))

	_, err := Decode(&buf)
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestDecode_Truncated(t *testing.T) {
	data, err := Encode(&Notify{Text: "hello"})
	if err != nil {
		t.Fatalf("unexpected encode error: %v", err)
	}

	_, err = Decode(bytes.NewReader(data[:len(data)-2]))
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("expected ErrUnexpectedEOF, got %v", err)
	}
}

func TestDecode_EmptyFrame(t *testing.T) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint32(0))

	if _, err := Decode(&buf); err == nil {
		t.Error("expected error for empty frame")
	}
}
