package camera

import (
	"bytes"
	"testing"
)

func TestByteStuffing(t *testing.T) {
	in := []byte{0x10, 0xF0, 0xF1, 0xF2, 0xF3, 0xEF, 0xF4}
	stuffed := byteStuff(in)
	want := []byte{0x10, 0xF3, 0x00, 0xF3, 0x01, 0xF3, 0x02, 0xF3, 0x03, 0xEF, 0xF4}
	if !bytes.Equal(stuffed, want) {
		t.Fatalf("byteStuff = % x, want % x", stuffed, want)
	}
	back, err := byteUnstuff(stuffed)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(back, in) {
		t.Errorf("byteUnstuff = % x, want % x", back, in)
	}
}

func TestByteUnstuff_Errors(t *testing.T) {
	cases := map[string][]byte{
		"unescaped_start": {0x01, StartFrameFlag},
		"unescaped_stop":  {StopFrameFlag},
		"truncated":       {0x01, ByteStuffingFlag},
		"bad_escape":      {ByteStuffingFlag, 0x04},
	}
	for name, in := range cases {
		if _, err := byteUnstuff(in); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestEncodeDecodeFrame(t *testing.T) {
	ctl, err := longCommand(cmdControl, []byte{1, selectorFocusAuto, 0, selectorFocusAbsolute, 0xF2})
	if err != nil {
		t.Fatal(err)
	}
	frame := encodeFrame(ctl)
	if frame[0] != StartFrameFlag || frame[len(frame)-1] != StopFrameFlag {
		t.Fatalf("frame flags missing: % x", frame)
	}
	for _, b := range frame[1 : len(frame)-1] {
		if b == StartFrameFlag || b == StopFrameFlag {
			t.Fatalf("flag inside frame body: % x", frame)
		}
	}

	cmds, err := decodeFrame(frame)
	if err != nil {
		t.Fatal(err)
	}
	if len(cmds) != 1 || cmds[0].ID != cmdControl {
		t.Fatalf("decoded %+v", cmds)
	}
	if !bytes.Equal(cmds[0].Data, []byte{1, selectorFocusAuto, 0, selectorFocusAbsolute, 0xF2}) {
		t.Errorf("data = % x", cmds[0].Data)
	}
}

func TestDecodeFrame_Errors(t *testing.T) {
	good := encodeFrame([]byte{cmdControl, 1, 0x00})
	badChecksum := append([]byte{}, good...)
	badChecksum[len(badChecksum)-2] ^= 0x01

	cases := map[string][]byte{
		"short":        {StartFrameFlag, StopFrameFlag},
		"no_start":     good[1:],
		"bad_checksum": badChecksum,
		"truncated":    encodeFrame([]byte{cmdControl, 5, 0x00}),
		"lone_id":      encodeFrame([]byte{cmdControl}),
	}
	for name, frame := range cases {
		if _, err := decodeFrame(frame); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestLongCommand_TooLong(t *testing.T) {
	if _, err := longCommand(cmdBuildPipeline, make([]byte, 256)); err == nil {
		t.Error("expected error for 256 data bytes")
	}
}

func TestChecksum(t *testing.T) {
	if got := Checksum([]byte{0x01, 0x02, 0x04}); got != 0x07 {
		t.Errorf("Checksum = 0x%02X, want 0x07", got)
	}
	if got := Checksum(nil); got != 0 {
		t.Errorf("Checksum(nil) = 0x%02X", got)
	}
}

func TestEncodeFrameToString(t *testing.T) {
	if got := EncodeFrameToString([]byte{0xF1, 0x10, 0xF2}); got != "f1-10-f2" {
		t.Errorf("EncodeFrameToString = %q", got)
	}
}
