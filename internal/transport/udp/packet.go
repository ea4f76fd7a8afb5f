// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

/*
Packet layout, big endian:

|<- 4 ->|<--- 8 --->|<- 1 ->|<- 2 ->|<---- count * 4 ---->|
+-------+-----------+-------+-------+---------------------+
|  seq  | timestamp | kind  | count |   count * float32   |
| u32   | i64 (ns)  | u8    | u16   |                     |
+-------+-----------+-------+-------+---------------------+

Payload per kind:
  amplitude  min, max
  spectrum   magnitudes of bins 0..N/2
  bands      one level per band, in band order
  beat       swing
*/

// HeaderSize is the fixed size of a packet header in bytes.
const HeaderSize = 4 + 8 + 1 + 2

// MaxDatagramSize is the largest UDP payload over IPv4.
const MaxDatagramSize = 65535 - 8 - 20

// MaxValues is the largest value count that fits one datagram.
const MaxValues = (MaxDatagramSize - HeaderSize) / 4

// Kind identifies the payload of a packet.
type Kind uint8

const (
	KindAmplitude Kind = iota + 1
	KindSpectrum
	KindBands
	KindBeat
)

func (k Kind) String() string {
	switch k {
	case KindAmplitude:
		return "amplitude"
	case KindSpectrum:
		return "spectrum"
	case KindBands:
		return "bands"
	case KindBeat:
		return "beat"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Header is the fixed part of every packet.
type Header struct {
	Seq       uint32
	Timestamp int64 // Unix nanoseconds
	Kind      Kind
}

var errShortPacket = errors.New("udp: packet too short")

// Encode resets buf and writes one packet into it.
func Encode(buf *bytes.Buffer, h Header, values []float32) error {
	if len(values) > MaxValues {
		return fmt.Errorf("udp: %d values exceed packet limit %d", len(values), MaxValues)
	}
	buf.Reset()
	buf.Grow(HeaderSize + 4*len(values))

	var hdr [HeaderSize]byte
	binary.BigEndian.PutUint32(hdr[0:4], h.Seq)
	binary.BigEndian.PutUint64(hdr[4:12], uint64(h.Timestamp))
	hdr[12] = byte(h.Kind)
	binary.BigEndian.PutUint16(hdr[13:15], uint16(len(values)))
	buf.Write(hdr[:])

	var word [4]byte
	for _, v := range values {
		binary.BigEndian.PutUint32(word[:], math.Float32bits(v))
		buf.Write(word[:])
	}
	return nil
}

// Decode parses a packet, appending its values to dst.
func Decode(p []byte, dst []float32) (Header, []float32, error) {
	if len(p) < HeaderSize {
		return Header{}, dst, errShortPacket
	}
	h := Header{
		Seq:       binary.BigEndian.Uint32(p[0:4]),
		Timestamp: int64(binary.BigEndian.Uint64(p[4:12])),
		Kind:      Kind(p[12]),
	}
	count := int(binary.BigEndian.Uint16(p[13:15]))
	body := p[HeaderSize:]
	if len(body) != 4*count {
		return h, dst, fmt.Errorf("udp: header declares %d values, body holds %d bytes", count, len(body))
	}
	for i := range count {
		dst = append(dst, math.Float32frombits(binary.BigEndian.Uint32(body[4*i:])))
	}
	return h, dst, nil
}
