package voice

import "github.com/tinylib/msgp/msgp"

// RawVoicePacket is the cross-process envelope for one UDP voice datagram,
// carried over the internal ingress/egress pubsub topics (§4.9). Mirrors
// the teacher's models.RawDMRPacket: same three fields, same msgp wire
// encoding, generalised from DMR repeater packets to voice datagrams.
//
//go:generate msgp
type RawVoicePacket struct {
	Data       []byte `msg:"data"`
	RemoteIP   string `msg:"remote_ip"`
	RemotePort int    `msg:"remote_port"`
}

// MarshalMsg appends the msgpack encoding of z to b, returning the
// extended slice. Hand-written in the shape `go generate`'s msgp tool
// would produce for this struct (array encoding, one element per field).
func (z *RawVoicePacket) MarshalMsg(b []byte) (o []byte, err error) {
	o = msgp.Require(b, z.Msgsize())
	o = msgp.AppendArrayHeader(o, 3)
	o = msgp.AppendBytes(o, z.Data)
	o = msgp.AppendString(o, z.RemoteIP)
	o = msgp.AppendInt(o, z.RemotePort)
	return o, nil
}

// UnmarshalMsg decodes a RawVoicePacket from bts, returning any unconsumed
// trailing bytes.
func (z *RawVoicePacket) UnmarshalMsg(bts []byte) (o []byte, err error) {
	var arrSize uint32
	arrSize, bts, err = msgp.ReadArrayHeaderBytes(bts)
	if err != nil {
		return bts, msgp.WrapError(err)
	}
	if arrSize != 3 {
		return bts, msgp.ArrayError{Wanted: 3, Got: arrSize}
	}

	z.Data, bts, err = msgp.ReadBytesBytes(bts, z.Data)
	if err != nil {
		return bts, msgp.WrapError(err, "Data")
	}
	z.RemoteIP, bts, err = msgp.ReadStringBytes(bts)
	if err != nil {
		return bts, msgp.WrapError(err, "RemoteIP")
	}
	z.RemotePort, bts, err = msgp.ReadIntBytes(bts)
	if err != nil {
		return bts, msgp.WrapError(err, "RemotePort")
	}
	return bts, nil
}

// Msgsize returns an upper bound on the encoded size of z, in bytes.
func (z *RawVoicePacket) Msgsize() int {
	return 1 + msgp.BytesPrefixSize + len(z.Data) + msgp.StringPrefixSize + len(z.RemoteIP) + msgp.IntSize
}
