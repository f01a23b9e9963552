package camera

import (
	"fmt"
)

// BoardSocket identifies the camera sensor on the board.
type BoardSocket uint8

const (
	CamA BoardSocket = iota
	CamB
	CamC
)

func (s BoardSocket) String() string {
	switch s {
	case CamA:
		return "CAM_A"
	case CamB:
		return "CAM_B"
	case CamC:
		return "CAM_C"
	default:
		return fmt.Sprintf("CAM_%d", uint8(s))
	}
}

// ParseBoardSocket converts "CAM_A".."CAM_C" to a BoardSocket.
func ParseBoardSocket(s string) (BoardSocket, error) {
	for _, b := range []BoardSocket{CamA, CamB, CamC} {
		if b.String() == s {
			return b, nil
		}
	}
	return 0, fmt.Errorf("unknown board socket %q", s)
}

// NodeKind is the type of a pipeline node.
type NodeKind uint8

const (
	NodeColorCamera NodeKind = 0x01
	NodeXLinkIn     NodeKind = 0x02
)

func (k NodeKind) String() string {
	switch k {
	case NodeColorCamera:
		return "ColorCamera"
	case NodeXLinkIn:
		return "XLinkIn"
	default:
		return fmt.Sprintf("NodeKind(%d)", uint8(k))
	}
}

// Port names used when linking nodes.
const (
	PortOut          = "out"
	PortInputControl = "inputControl"
)

var portIDs = map[string]byte{
	PortOut:          0x01,
	PortInputControl: 0x02,
}

const maxStreamName = 32

// Node is one processing element of a pipeline.
type Node struct {
	ID     uint8
	Kind   NodeKind
	Socket BoardSocket // ColorCamera only
	Stream string      // XLinkIn only
}

// Link connects an output port of one node to an input port of another.
type Link struct {
	From uint8
	Out  string
	To   uint8
	In   string
}

// Pipeline is the processing graph uploaded to the device when it is opened.
type Pipeline struct {
	Nodes []Node
	Links []Link
}

// NewControlPipeline builds the minimal command-only graph: a camera on
// socket and an XLinkIn named stream feeding the camera's control input.
func NewControlPipeline(socket BoardSocket, stream string) *Pipeline {
	cam := Node{ID: 0, Kind: NodeColorCamera, Socket: socket}
	in := Node{ID: 1, Kind: NodeXLinkIn, Stream: stream}
	return &Pipeline{
		Nodes: []Node{cam, in},
		Links: []Link{{From: in.ID, Out: PortOut, To: cam.ID, In: PortInputControl}},
	}
}

func (p *Pipeline) node(id uint8) (Node, bool) {
	for _, n := range p.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// StreamNode returns the XLinkIn node publishing stream.
func (p *Pipeline) StreamNode(stream string) (Node, bool) {
	for _, n := range p.Nodes {
		if n.Kind == NodeXLinkIn && n.Stream == stream {
			return n, true
		}
	}
	return Node{}, false
}

// Validate checks node IDs, stream names and that every link targets an
// existing port. Errors wrap ErrPipeline.
func (p *Pipeline) Validate() error {
	if len(p.Nodes) == 0 {
		return fmt.Errorf("%w: no nodes", ErrPipeline)
	}
	seen := make(map[uint8]bool, len(p.Nodes))
	streams := make(map[string]bool)
	cameras := 0
	for _, n := range p.Nodes {
		if seen[n.ID] {
			return fmt.Errorf("%w: duplicate node id %d", ErrPipeline, n.ID)
		}
		seen[n.ID] = true
		switch n.Kind {
		case NodeColorCamera:
			cameras++
		case NodeXLinkIn:
			if n.Stream == "" || len(n.Stream) > maxStreamName {
				return fmt.Errorf("%w: node %d: stream name must be 1-%d bytes", ErrPipeline, n.ID, maxStreamName)
			}
			if streams[n.Stream] {
				return fmt.Errorf("%w: duplicate stream %q", ErrPipeline, n.Stream)
			}
			streams[n.Stream] = true
		default:
			return fmt.Errorf("%w: node %d: unknown kind %v", ErrPipeline, n.ID, n.Kind)
		}
	}
	if cameras == 0 {
		return fmt.Errorf("%w: no camera node", ErrPipeline)
	}

	for _, l := range p.Links {
		from, ok := p.node(l.From)
		if !ok {
			return fmt.Errorf("%w: link from unknown node %d", ErrPipeline, l.From)
		}
		to, ok := p.node(l.To)
		if !ok {
			return fmt.Errorf("%w: link to unknown node %d", ErrPipeline, l.To)
		}
		if from.Kind != NodeXLinkIn || l.Out != PortOut {
			return fmt.Errorf("%w: %v has no output %q", ErrPipeline, from.Kind, l.Out)
		}
		if to.Kind != NodeColorCamera || l.In != PortInputControl {
			return fmt.Errorf("%w: %v has no input %q", ErrPipeline, to.Kind, l.In)
		}
	}
	return nil
}

// encode serializes the graph as BUILD_PIPELINE command data:
// node count, nodes (id, kind, socket, stream length, stream),
// link count, links (from, out port, to, in port).
func (p *Pipeline) encode() []byte {
	b := []byte{byte(len(p.Nodes))}
	for _, n := range p.Nodes {
		b = append(b, n.ID, byte(n.Kind), byte(n.Socket), byte(len(n.Stream)))
		b = append(b, n.Stream...)
	}
	b = append(b, byte(len(p.Links)))
	for _, l := range p.Links {
		b = append(b, l.From, portIDs[l.Out], l.To, portIDs[l.In])
	}
	return b
}
