package transport

import (
	"fmt"

	"github.com/tinylib/msgp/msgp"
)

// Brokers that move opaque messages carry one batch per message. A frame is a
// msgpack array of bin samples; the end-of-stream marker is msgpack nil.

// EncodeBatch appends the frame for batch to dst.
func EncodeBatch(dst []byte, batch [][]byte) []byte {
	size := msgp.ArrayHeaderSize
	for _, sample := range batch {
		size += msgp.BytesPrefixSize + len(sample)
	}

	o := msgp.Require(dst, size)
	o = msgp.AppendArrayHeader(o, uint32(len(batch)))
	for _, sample := range batch {
		o = msgp.AppendBytes(o, sample)
	}
	return o
}

// EncodeEndOfStream appends the end-of-stream frame to dst.
func EncodeEndOfStream(dst []byte) []byte {
	return msgp.AppendNil(dst)
}

// DecodeFrame parses a frame. Samples alias frame.
func DecodeFrame(frame []byte) (batch [][]byte, eof bool, err error) {
	if msgp.IsNil(frame) {
		return nil, true, nil
	}

	n, rest, err := msgp.ReadArrayHeaderBytes(frame)
	if err != nil {
		return nil, false, fmt.Errorf("invalid batch frame: %w", err)
	}

	batch = make([][]byte, n)
	for i := range batch {
		batch[i], rest, err = msgp.ReadBytesZC(rest)
		if err != nil {
			return nil, false, fmt.Errorf("invalid sample %d in batch frame: %w", i, err)
		}
	}
	return batch, false, nil
}
