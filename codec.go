package chronicle

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/minio/blake2b-simd"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Codec serializes changes for a PersistentIndex.
type Codec[O any] interface {
	Marshal(c *Change[O]) ([]byte, error)
	Unmarshal(b []byte) (*Change[O], error)
}

// JSONCodec encodes changes as JSON. Operations must round-trip through
// encoding/json, as ot's operation types do.
type JSONCodec[O any] struct{}

func (JSONCodec[O]) Marshal(c *Change[O]) ([]byte, error) {
	return json.Marshal(c)
}

func (JSONCodec[O]) Unmarshal(b []byte) (*Change[O], error) {
	var c Change[O]
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ProtoCodec encodes changes as a protobuf google.protobuf.Value holding
// the change's JSON structure, for stores shared with protobuf tooling.
type ProtoCodec[O any] struct{}

func (ProtoCodec[O]) Marshal(c *Change[O]) ([]byte, error) {
	j, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	var generic interface{}
	if err := json.Unmarshal(j, &generic); err != nil {
		return nil, err
	}
	v, err := structpb.NewValue(generic)
	if err != nil {
		return nil, fmt.Errorf("structpb: %w", err)
	}
	return proto.Marshal(v)
}

func (ProtoCodec[O]) Unmarshal(b []byte) (*Change[O], error) {
	var v structpb.Value
	if err := proto.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("unmarshal proto: %w", err)
	}
	j, err := json.Marshal(v.AsInterface())
	if err != nil {
		return nil, err
	}
	return JSONCodec[O]{}.Unmarshal(j)
}

// A record is a length-prefixed blake2b digest followed by the
// length-prefixed payload it covers.

func appendLength(buf []byte, n int) []byte {
	var tmpbuf [binary.MaxVarintLen64]byte
	len := binary.PutUvarint(tmpbuf[:], uint64(n))
	return append(buf, tmpbuf[:len]...)
}

func decodeLength(buf []byte, n *int) ([]byte, error) {
	k, len := binary.Uvarint(buf)
	if len <= 0 {
		return nil, errors.New("bad length")
	}
	*n = int(k)
	return buf[len:], nil
}

func decodeBytes(buf []byte, body *[]byte) ([]byte, error) {
	var err error
	var n int
	buf, err = decodeLength(buf, &n)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return buf, nil
	}
	if len(buf) < n {
		return nil, errors.New("bad body length")
	}
	*body = buf[:n]
	return buf[n:], nil
}

func encodeRecord(payload []byte) []byte {
	sum := blake2b.Sum256(payload)
	buf := make([]byte, 0, len(sum)+len(payload)+2*binary.MaxVarintLen64)
	buf = appendLength(buf, len(sum))
	buf = append(buf, sum[:]...)
	buf = appendLength(buf, len(payload))
	return append(buf, payload...)
}

func decodeRecord(buf []byte) ([]byte, error) {
	var sum, payload []byte
	buf, err := decodeBytes(buf, &sum)
	if err != nil {
		return nil, fmt.Errorf("record digest: %w", err)
	}
	rest, err := decodeBytes(buf, &payload)
	if err != nil {
		return nil, fmt.Errorf("record payload: %w", err)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("record: %d trailing bytes", len(rest))
	}
	actual := blake2b.Sum256(payload)
	if !bytes.Equal(sum, actual[:]) {
		return nil, ErrChecksum
	}
	return payload, nil
}
