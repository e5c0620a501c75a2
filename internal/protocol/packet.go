// Package protocol defines the packets exchanged between mapsync clients
// and the server, their numeric ids and the framing used on the stream.
//
// A frame is a u16 packet id followed by the packet body. There is no
// length prefix, so every body codec must consume exactly what it wrote.
package protocol

import (
	"fmt"
	"io"
	"reflect"

	"mapsync/internal/errors"
	"mapsync/internal/wire"
)

const (
	// ProtocolVersion is sent in the login handshake and must match.
	ProtocolVersion uint16 = 1
	// DefaultPort is the TCP port servers listen on by default.
	DefaultPort = 34712
)

// SyncID correlates an accepted mutation with its confirmations. IDs wrap
// modulo 2^16 and carry no ordering beyond matching one mutation.
type SyncID uint16

// NoSyncID marks rejection echoes. It is never assigned to a mutation.
const NoSyncID SyncID = 0xFFFF

// Packet is a message with a fixed body layout.
type Packet interface {
	Read(r *wire.Reader) error
	Write(w *wire.Writer) error
}

// Serverbound packets travel from client to server.
type Serverbound interface {
	Packet
	serverbound()
}

// Clientbound packets travel from server to client.
type Clientbound interface {
	Packet
	clientbound()
}

type registration[P Packet] struct {
	id   uint16
	name string
	new  func() P
}

// Registry resolves packet ids of one direction. Registries are built once
// at package initialization and never modified afterwards.
type Registry[P Packet] struct {
	direction string
	byID      map[uint16]registration[P]
	byType    map[reflect.Type]registration[P]
}

func newRegistry[P Packet](direction string, regs ...registration[P]) *Registry[P] {
	r := &Registry[P]{
		direction: direction,
		byID:      make(map[uint16]registration[P], len(regs)),
		byType:    make(map[reflect.Type]registration[P], len(regs)),
	}
	for _, reg := range regs {
		if _, dup := r.byID[reg.id]; dup {
			panic(fmt.Sprintf("protocol: duplicate %s packet id %d", direction, reg.id))
		}
		r.byID[reg.id] = reg
		r.byType[reflect.TypeOf(reg.new())] = reg
	}
	return r
}

// New returns an empty packet for id.
func (r *Registry[P]) New(id uint16) (P, error) {
	reg, ok := r.byID[id]
	if !ok {
		var zero P
		return zero, errors.Newf(errors.UnknownPacket, "unknown %s packet id %d", r.direction, id)
	}
	return reg.new(), nil
}

// ID returns the id registered for p's concrete type.
func (r *Registry[P]) ID(p P) (uint16, bool) {
	reg, ok := r.byType[reflect.TypeOf(p)]
	return reg.id, ok
}

// Name returns a short name for p, used in logs and metrics.
func (r *Registry[P]) Name(p P) string {
	if reg, ok := r.byType[reflect.TypeOf(p)]; ok {
		return reg.name
	}
	return fmt.Sprintf("%T", p)
}

// Len returns the number of registered packets.
func (r *Registry[P]) Len() int { return len(r.byID) }

// Encode returns the complete frame for p. Nothing is produced when the
// body fails to encode, so a failed packet never desyncs the stream.
func (r *Registry[P]) Encode(p P) ([]byte, error) {
	id, ok := r.ID(p)
	if !ok {
		return nil, errors.Newf(errors.InternalError, "%T is not a registered %s packet", p, r.direction)
	}
	w := wire.NewWriter()
	w.Uint16(id)
	if err := p.Write(w); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// Read decodes the next frame from rd. A clean end of stream before the
// packet id is returned as io.EOF; everything else that goes wrong is a
// connection-fatal protocol error.
func (r *Registry[P]) Read(rd io.Reader) (P, error) {
	var zero P
	wr := wire.NewReader(rd)
	id, err := wr.Uint16()
	if err != nil {
		if err == io.EOF {
			return zero, io.EOF
		}
		return zero, errors.Protocol("read packet id", err)
	}
	p, err := r.New(id)
	if err != nil {
		return zero, err
	}
	if err := p.Read(wr); err != nil {
		return zero, errors.Protocol(fmt.Sprintf("decode %s", r.byID[id].name), err)
	}
	return p, nil
}

// WriteFrame writes an encoded frame with a single Write call.
func WriteFrame(w io.Writer, frame []byte) error {
	if _, err := w.Write(frame); err != nil {
		return errors.Transport("write frame", err)
	}
	return nil
}

// C2S is the client-to-server packet registry.
var C2S = newRegistry[Serverbound]("serverbound",
	registration[Serverbound]{0, "login", func() Serverbound { return &LoginC2S{} }},
	registration[Serverbound]{1, "confirm_change", func() Serverbound { return &ConfirmChangeC2S{} }},
	registration[Serverbound]{2, "rename", func() Serverbound { return &RenameC2S{} }},
	registration[Serverbound]{3, "remove_mapping", func() Serverbound { return &RemoveMappingC2S{} }},
	registration[Serverbound]{4, "change_docs", func() Serverbound { return &ChangeDocsC2S{} }},
	registration[Serverbound]{5, "mark_deobfuscated", func() Serverbound { return &MarkDeobfuscatedC2S{} }},
	registration[Serverbound]{6, "message", func() Serverbound { return &MessageC2S{} }},
)

// S2C is the server-to-client packet registry.
var S2C = newRegistry[Clientbound]("clientbound",
	registration[Clientbound]{0, "kick", func() Clientbound { return &KickS2C{} }},
	registration[Clientbound]{1, "sync_mappings", func() Clientbound { return &SyncMappingsS2C{} }},
	registration[Clientbound]{2, "rename", func() Clientbound { return &RenameS2C{} }},
	registration[Clientbound]{3, "remove_mapping", func() Clientbound { return &RemoveMappingS2C{} }},
	registration[Clientbound]{4, "change_docs", func() Clientbound { return &ChangeDocsS2C{} }},
	registration[Clientbound]{5, "mark_deobfuscated", func() Clientbound { return &MarkDeobfuscatedS2C{} }},
	registration[Clientbound]{6, "message", func() Clientbound { return &MessageS2C{} }},
	registration[Clientbound]{7, "user_list", func() Clientbound { return &UserListS2C{} }},
	registration[Clientbound]{8, "change_accepted", func() Clientbound { return &ChangeAcceptedS2C{} }},
)

// ReadServerbound reads one client-to-server frame.
func ReadServerbound(r io.Reader) (Serverbound, error) { return C2S.Read(r) }

// ReadClientbound reads one server-to-client frame.
func ReadClientbound(r io.Reader) (Clientbound, error) { return S2C.Read(r) }
