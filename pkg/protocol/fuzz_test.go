package protocol

import (
	"reflect"
	"testing"
)

// FuzzParseInput checks that arbitrary bytes never panic the parser and that
// anything it accepts survives a re-encode round trip.
func FuzzParseInput(f *testing.F) {
	f.Add([]byte("m17,4242,3,3,105,210,5,10,0"))
	f.Add([]byte("e1,1000,2,2,50,60,10,20,4,1"))
	f.Add([]byte("b5,2000,1,1,-7,30,3,4,256,1"))
	f.Add([]byte("k8,3000,65,1"))
	f.Add([]byte("w12,5000,6,10,20,300,200"))
	f.Add([]byte("q15,6001,42"))
	f.Add([]byte("S14,6000,1920,1080"))
	f.Add([]byte(""))
	f.Add([]byte("m"))
	f.Add([]byte("m,,,,"))
	f.Add([]byte("d-1,2,3"))

	f.Fuzz(func(t *testing.T, data []byte) {
		msg, err := ParseInput(data)
		if err != nil {
			return
		}
		line := msg.Append(nil)
		again, err := ParseInput(line)
		if err != nil {
			t.Fatalf("re-parse of %q (from %q) failed: %v", line, data, err)
		}
		if !reflect.DeepEqual(msg, again) {
			t.Fatalf("round trip mismatch: %+v vs %+v", msg, again)
		}
	})
}

// FuzzParseCommand checks that arbitrary bytes never panic the command parser.
func FuzzParseCommand(f *testing.F) {
	var o OutputBuffer
	o.CreateSurface(1, 10, 20, 300, 200, false)
	f.Add(append([]byte(nil), o.Bytes()...))
	o.Reset()
	o.PutImage(1, 0, 0, 2, 1, []byte{0xDE, 0xAD})
	f.Add(append([]byte(nil), o.Bytes()...))
	f.Add([]byte("D"))
	f.Add([]byte("q42"))
	f.Add([]byte("i1,0,0,2,1,!!!"))
	f.Add([]byte(""))

	f.Fuzz(func(t *testing.T, data []byte) {
		cmd, err := ParseCommand(data)
		if err != nil {
			return
		}
		if !cmd.Op.Valid() {
			t.Fatalf("accepted command with invalid op %q", byte(cmd.Op))
		}
	})
}
