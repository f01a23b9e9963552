package camera

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Frame flags. Contents between start and stop are byte-stuffed so the
// flags never appear inside a frame.
const (
	StartFrameFlag   = 0xF1
	StopFrameFlag    = 0xF2
	ByteStuffingFlag = 0xF3
)

// Command IDs carried in a frame.
const (
	cmdBuildPipeline byte = 0x01
	cmdControl       byte = 0x10
)

// command is one [id, len, data...] entry of a frame.
type command struct {
	ID   byte
	Data []byte
}

func longCommand(id byte, data []byte) ([]byte, error) {
	if len(data) > 0xFF {
		return nil, fmt.Errorf("command 0x%02X: %d data bytes exceed 255", id, len(data))
	}
	b := []byte{id, byte(len(data))}
	return append(b, data...), nil
}

// Checksum is the XOR of all bytes.
func Checksum(bytes []byte) byte {
	var checksum byte
	for _, b := range bytes {
		checksum ^= b
	}
	return checksum
}

// encodeFrame wraps concatenated commands with flags and checksum.
func encodeFrame(commands ...[]byte) []byte {
	var contents []byte
	for _, c := range commands {
		contents = append(contents, c...)
	}
	contents = append(contents, Checksum(contents))

	frame := []byte{StartFrameFlag}
	frame = append(frame, byteStuff(contents)...)
	frame = append(frame, StopFrameFlag)
	return frame
}

// decodeFrame validates flags and checksum and splits the commands.
func decodeFrame(frame []byte) ([]command, error) {
	if len(frame) < 3 || frame[0] != StartFrameFlag || frame[len(frame)-1] != StopFrameFlag {
		return nil, errors.New("missing frame flags")
	}
	contents, err := byteUnstuff(frame[1 : len(frame)-1])
	if err != nil {
		return nil, err
	}
	if len(contents) == 0 {
		return nil, errors.New("empty frame")
	}
	body, declared := contents[:len(contents)-1], contents[len(contents)-1]
	if computed := Checksum(body); computed != declared {
		return nil, fmt.Errorf("checksum mismatch: declared 0x%02X, computed 0x%02X", declared, computed)
	}

	var cmds []command
	for i := 0; i < len(body); {
		if i+1 >= len(body) {
			return nil, fmt.Errorf("truncated command at offset %d", i)
		}
		n := int(body[i+1])
		end := i + 2 + n
		if end > len(body) {
			return nil, fmt.Errorf("command 0x%02X: declared %d bytes, %d available", body[i], n, len(body)-i-2)
		}
		cmds = append(cmds, command{ID: body[i], Data: body[i+2 : end]})
		i = end
	}
	return cmds, nil
}

func byteStuff(input []byte) []byte {
	out := make([]byte, 0, len(input))
	for _, b := range input {
		if b >= 0xF0 && b <= ByteStuffingFlag {
			out = append(out, ByteStuffingFlag, b&0x03)
			continue
		}
		out = append(out, b)
	}
	return out
}

func byteUnstuff(input []byte) ([]byte, error) {
	out := make([]byte, 0, len(input))
	for i := 0; i < len(input); i++ {
		b := input[i]
		if b == StartFrameFlag || b == StopFrameFlag {
			return nil, fmt.Errorf("unescaped flag 0x%02X at offset %d", b, i)
		}
		if b != ByteStuffingFlag {
			out = append(out, b)
			continue
		}

		// Escape byte must be followed by a stuffing value
		if i+1 >= len(input) {
			return nil, errors.New("truncated escape sequence")
		}
		i++
		if input[i] > 0x03 {
			return nil, fmt.Errorf("invalid escape value 0x%02X", input[i])
		}
		out = append(out, 0xF0|input[i])
	}
	return out, nil
}

// EncodeFrameToString renders bytes as dash-separated hex for trace output.
func EncodeFrameToString(b []byte) string {
	hexDigits := hex.EncodeToString(b)
	var builder strings.Builder
	for i, r := range hexDigits {
		if i > 0 && i%2 == 0 {
			builder.WriteString("-")
		}
		builder.WriteRune(r)
	}
	return builder.String()
}
