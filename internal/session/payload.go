package session

import (
	"encoding/binary"

	"arenasync/internal/syncerr"
)

// Envelope layouts, all little-endian, before compression:
//
//	full:  tick u64 | snapshot
//	delta: tick u64 | base tick u64 | delta
//	ack:   tick u64 | flags u8
const (
	fullHeaderSize  = 8
	deltaHeaderSize = 16
	ackSize         = 9

	ackFlagResync = 1 << 0
)

func encodeFull(tick uint64, snapshot []byte) []byte {
	buf := make([]byte, fullHeaderSize, fullHeaderSize+len(snapshot))
	binary.LittleEndian.PutUint64(buf, tick)
	return append(buf, snapshot...)
}

func decodeFull(payload []byte) (uint64, []byte, error) {
	if len(payload) < fullHeaderSize {
		return 0, nil, syncerr.Newf(syncerr.CodeCorruptData, "full envelope: %d bytes", len(payload))
	}
	return binary.LittleEndian.Uint64(payload), payload[fullHeaderSize:], nil
}

func encodeDelta(tick, baseTick uint64, body []byte) []byte {
	buf := make([]byte, deltaHeaderSize, deltaHeaderSize+len(body))
	binary.LittleEndian.PutUint64(buf, tick)
	binary.LittleEndian.PutUint64(buf[8:], baseTick)
	return append(buf, body...)
}

func decodeDelta(payload []byte) (tick, baseTick uint64, body []byte, err error) {
	if len(payload) < deltaHeaderSize {
		return 0, 0, nil, syncerr.Newf(syncerr.CodeCorruptData, "delta envelope: %d bytes", len(payload))
	}
	tick = binary.LittleEndian.Uint64(payload)
	baseTick = binary.LittleEndian.Uint64(payload[8:])
	if baseTick >= tick {
		return 0, 0, nil, syncerr.Newf(syncerr.CodeCorruptData, "delta tick %d not after base %d", tick, baseTick)
	}
	return tick, baseTick, payload[deltaHeaderSize:], nil
}

type ack struct {
	Tick   uint64
	Resync bool
}

func encodeAck(a ack) []byte {
	buf := make([]byte, ackSize)
	binary.LittleEndian.PutUint64(buf, a.Tick)
	if a.Resync {
		buf[8] |= ackFlagResync
	}
	return buf
}

func decodeAck(payload []byte) (ack, error) {
	if len(payload) != ackSize {
		return ack{}, syncerr.Newf(syncerr.CodeCorruptData, "ack envelope: %d bytes", len(payload))
	}
	flags := payload[8]
	if flags&^ackFlagResync != 0 {
		return ack{}, syncerr.Newf(syncerr.CodeCorruptData, "ack flags 0x%02x", flags)
	}
	return ack{Tick: binary.LittleEndian.Uint64(payload), Resync: flags&ackFlagResync != 0}, nil
}
