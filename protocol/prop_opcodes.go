package protocol

import (
	"fmt"
	"sort"
)

// Opcode is one fixed command understood by the fan on the command port.
type Opcode struct {
	Name        string
	Bytes       []byte
	ExpectReply bool
	Help        string
}

const (
	OpcodeLen = 17

	playlistSlotHeader = "c31c39abe"
	opcodeTrailer      = "a4a8c2e3"
	MaxPlaylistSlot    = 99
)

var catalogue = map[string]Opcode{
	"play":          {Name: "play", Bytes: []byte("c31c34abca4a8c2e3"), Help: "Resume playing"},
	"pause":         {Name: "pause", Bytes: []byte("c31c35abca4a8c2e3"), Help: "Stop the animation at the current frame"},
	"next":          {Name: "next", Bytes: []byte("c31c32abca4a8c2e3"), Help: "Skip to the next playlist entry"},
	"last":          {Name: "last", Bytes: []byte("c31c33abca4a8c2e3"), Help: "Go back to the previous playlist entry"},
	"loop1":         {Name: "loop1", Bytes: []byte("c31c37abca4a8c2e3"), Help: "Loop the current entry"},
	"loop2":         {Name: "loop2", Bytes: []byte("c31c36abca4a8c2e3"), Help: "Loop the whole playlist"},
	"read_playlist": {Name: "read_playlist", Bytes: []byte("c31c38abca4a8c2e3"), ExpectReply: true, Help: "Read the playlist from the device"},
	"turn_on":       {Name: "turn_on", Bytes: []byte("c31c45abca4a8c2e3"), Help: "Start the motor and begin displaying images"},
	"turn_off":      {Name: "turn_off", Bytes: []byte("c31c89abca4a8c2e3"), Help: "Stop the motor and power off the LEDs"},
	"turn_on_ble":   {Name: "turn_on_ble", Bytes: []byte("c31c43abca4a8c2e3"), Help: "Enable Bluetooth LE on the device"},
}

// Lookup returns the catalogue entry for name. The returned bytes are a copy.
func Lookup(name string) (Opcode, bool) {
	op, ok := catalogue[name]
	if !ok {
		return Opcode{}, false
	}
	op.Bytes = append([]byte(nil), op.Bytes...)
	return op, true
}

// Opcodes returns the whole catalogue sorted by name.
func Opcodes() []Opcode {
	names := make([]string, 0, len(catalogue))
	for n := range catalogue {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]Opcode, 0, len(names))
	for _, n := range names {
		op, _ := Lookup(n)
		out = append(out, op)
	}
	return out
}

// PlaylistSlot renders the playlist slot command for index i (0-99).
func PlaylistSlot(i int) (Opcode, error) {
	if i < 0 || i > MaxPlaylistSlot {
		return Opcode{}, fmt.Errorf("playlist slot %d out of range [0,%d]", i, MaxPlaylistSlot)
	}
	b := make([]byte, 0, len(playlistSlotHeader)+2+len(opcodeTrailer))
	b = append(b, playlistSlotHeader...)
	b = fmt.Appendf(b, "%02d", i)
	b = append(b, opcodeTrailer...)
	return Opcode{Name: fmt.Sprintf("slot_%02d", i), Bytes: b, Help: "Select playlist slot"}, nil
}
