package camera

import (
	"bytes"
	"testing"
)

func TestNewControl(t *testing.T) {
	manual, _ := Manual(130)
	cases := []struct {
		name string
		mode FocusMode
		want []byte
		str  string
	}{
		{"auto", Auto(), []byte{selectorFocusAuto, byte(AutoFocusAuto)}, "{af=AUTO}"},
		{"manual", manual, []byte{selectorFocusAuto, byte(AutoFocusOff), selectorFocusAbsolute, 130}, "{af=OFF lens=130}"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := NewControl(tc.mode)
			if !bytes.Equal(c.Bytes(), tc.want) {
				t.Errorf("Bytes() = % x, want % x", c.Bytes(), tc.want)
			}
			if c.String() != tc.str {
				t.Errorf("String() = %q, want %q", c.String(), tc.str)
			}
		})
	}
}

func TestControl_Empty(t *testing.T) {
	var c Control
	if !c.Empty() || c.String() != "{}" {
		t.Errorf("zero Control: Empty=%v String=%q", c.Empty(), c.String())
	}
	c.SetAutoFocusMode(AutoFocusMacro)
	if c.Empty() {
		t.Error("Control with a selector should not be empty")
	}
}

func TestControl_BytesIsCopy(t *testing.T) {
	c := NewControl(Auto())
	b := c.Bytes()
	b[0] = 0xFF
	if c.Bytes()[0] == 0xFF {
		t.Error("Bytes() must not alias internal state")
	}
}
