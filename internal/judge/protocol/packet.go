package protocol

import (
	"encoding/binary"
	"io"

	judgeerrors "judgeworker/pkg/errors"
)

// Command identifies the kind of packet body that follows.
type Command uint16

const (
	CommandHandshake            Command = 1
	CommandVerifyToken          Command = 2
	CommandReqVerifyToken       Command = 3
	CommandGetJudge             Command = 4
	CommandGetJudgev2           Command = 5
	CommandTestCaseUpdate       Command = 6
	CommandTestCaseEnd          Command = 7
	CommandGetJudgeStateUpdate  Command = 8
)

const packetMagic uint32 = 0x50524F54 // "PROT"

// Packet is one frame exchanged with the master: a command tag plus an
// opaque, already-encoded body.
type Packet struct {
	Command Command
	Body    []byte
}

// MakePacket wraps an already-encoded body with its command tag.
func MakePacket(cmd Command, body []byte) Packet {
	return Packet{Command: cmd, Body: body}
}

// WriteTo writes the packet as: magic(4) | command(2) | length(4) | body.
func (p Packet) WriteTo(w io.Writer) error {
	var header [10]byte
	binary.BigEndian.PutUint32(header[0:4], packetMagic)
	binary.BigEndian.PutUint16(header[4:6], uint16(p.Command))
	binary.BigEndian.PutUint32(header[6:10], uint32(len(p.Body)))
	if _, err := w.Write(header[:]); err != nil {
		return judgeerrors.Wrap(err, judgeerrors.DecodeFailed)
	}
	if len(p.Body) == 0 {
		return nil
	}
	if _, err := w.Write(p.Body); err != nil {
		return judgeerrors.Wrap(err, judgeerrors.DecodeFailed)
	}
	return nil
}

// maxBodyBytes bounds a single packet body to defend against a malformed or
// hostile length prefix forcing an unbounded allocation.
const maxBodyBytes = 256 << 20 // 256 MiB, comfortably above a grader archive

// ReadPacket reads one frame from r.
func ReadPacket(r io.Reader) (Packet, error) {
	var header [10]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Packet{}, judgeerrors.Wrap(err, judgeerrors.DecodeFailed)
	}
	magic := binary.BigEndian.Uint32(header[0:4])
	if magic != packetMagic {
		return Packet{}, judgeerrors.New(judgeerrors.DecodeFailed).WithDetail("reason", "bad magic")
	}
	cmd := Command(binary.BigEndian.Uint16(header[4:6]))
	length := binary.BigEndian.Uint32(header[6:10])
	if length > maxBodyBytes {
		return Packet{}, judgeerrors.New(judgeerrors.DecodeFailed).WithDetail("reason", "body too large")
	}
	body := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return Packet{}, judgeerrors.Wrap(err, judgeerrors.DecodeFailed)
		}
	}
	return Packet{Command: cmd, Body: body}, nil
}
