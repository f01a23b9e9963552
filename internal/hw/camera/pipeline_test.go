package camera

import (
	"errors"
	"strings"
	"testing"
)

func TestNewControlPipeline(t *testing.T) {
	p := NewControlPipeline(CamA, "control")
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(p.Nodes) != 2 || len(p.Links) != 1 {
		t.Fatalf("got %d nodes, %d links", len(p.Nodes), len(p.Links))
	}
	n, ok := p.StreamNode("control")
	if !ok || n.Kind != NodeXLinkIn {
		t.Fatalf("StreamNode(control) = %+v, %v", n, ok)
	}
	l := p.Links[0]
	if l.From != n.ID || l.Out != PortOut || l.In != PortInputControl {
		t.Errorf("link = %+v", l)
	}
	if _, ok := p.StreamNode("missing"); ok {
		t.Error("StreamNode(missing) should not be found")
	}
}

func TestPipeline_ValidateErrors(t *testing.T) {
	cases := []struct {
		name string
		p    *Pipeline
		want string
	}{
		{"empty", &Pipeline{}, "no nodes"},
		{"empty_stream", NewControlPipeline(CamA, ""), "stream name"},
		{"long_stream", NewControlPipeline(CamA, strings.Repeat("s", 33)), "stream name"},
		{"no_camera", &Pipeline{Nodes: []Node{{ID: 1, Kind: NodeXLinkIn, Stream: "c"}}}, "no camera"},
		{"duplicate_id", &Pipeline{Nodes: []Node{
			{ID: 0, Kind: NodeColorCamera},
			{ID: 0, Kind: NodeXLinkIn, Stream: "c"},
		}}, "duplicate node id"},
		{"unknown_kind", &Pipeline{Nodes: []Node{{ID: 0, Kind: NodeKind(9)}}}, "unknown kind"},
		{"dangling_link", &Pipeline{
			Nodes: []Node{{ID: 0, Kind: NodeColorCamera}},
			Links: []Link{{From: 5, Out: PortOut, To: 0, In: PortInputControl}},
		}, "unknown node"},
		{"wrong_port", &Pipeline{
			Nodes: []Node{{ID: 0, Kind: NodeColorCamera}, {ID: 1, Kind: NodeXLinkIn, Stream: "c"}},
			Links: []Link{{From: 1, Out: PortOut, To: 0, In: "video"}},
		}, "has no input"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.p.Validate()
			if !errors.Is(err, ErrPipeline) {
				t.Fatalf("expected ErrPipeline, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q should contain %q", err, tc.want)
			}
		})
	}
}

func TestPipeline_Encode(t *testing.T) {
	p := NewControlPipeline(CamB, "ctl")
	want := []byte{
		2,
		0, byte(NodeColorCamera), byte(CamB), 0,
		1, byte(NodeXLinkIn), byte(CamA), 3, 'c', 't', 'l',
		1,
		1, 0x01, 0, 0x02,
	}
	got := p.encode()
	if string(got) != string(want) {
		t.Errorf("encode = % x, want % x", got, want)
	}
}

func TestParseBoardSocket(t *testing.T) {
	for _, s := range []BoardSocket{CamA, CamB, CamC} {
		got, err := ParseBoardSocket(s.String())
		if err != nil || got != s {
			t.Errorf("ParseBoardSocket(%q) = %v, %v", s.String(), got, err)
		}
	}
	if _, err := ParseBoardSocket("CAM_Z"); err == nil {
		t.Error("expected error for CAM_Z")
	}
}
