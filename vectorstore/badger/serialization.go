package badger

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/ragpipe/core"
	"github.com/poiesic/ragpipe/vectorstore"
)

// ErrCorruptRecord is returned when a stored value cannot be decoded.
var ErrCorruptRecord = errors.New("corrupt record")

// vectorRecord is the stored form of a vector. The id lives in the key.
type vectorRecord struct {
	Values   []float32
	Metadata core.Metadata
}

func sizeValue(v core.Value) int {
	size := varint.Int.Size(int(v.Kind()))
	switch v.Kind() {
	case core.KindString:
		s, _ := v.AsString()
		size += ord.String.Size(s)
	case core.KindNumber:
		n, _ := v.AsNumber()
		size += raw.Float64.Size(n)
	case core.KindBool:
		b, _ := v.AsBool()
		size += ord.Bool.Size(b)
	}
	return size
}

func marshalValue(v core.Value, bs []byte) int {
	n := varint.Int.Marshal(int(v.Kind()), bs)
	switch v.Kind() {
	case core.KindString:
		s, _ := v.AsString()
		n += ord.String.Marshal(s, bs[n:])
	case core.KindNumber:
		f, _ := v.AsNumber()
		n += raw.Float64.Marshal(f, bs[n:])
	case core.KindBool:
		b, _ := v.AsBool()
		n += ord.Bool.Marshal(b, bs[n:])
	}
	return n
}

func unmarshalValue(bs []byte) (core.Value, int, error) {
	kind, n, err := varint.Int.Unmarshal(bs)
	if err != nil {
		return core.Value{}, n, err
	}
	var m int
	switch core.ValueKind(kind) {
	case core.KindString:
		var s string
		s, m, err = ord.String.Unmarshal(bs[n:])
		return core.String(s), n + m, err
	case core.KindNumber:
		var f float64
		f, m, err = raw.Float64.Unmarshal(bs[n:])
		return core.Number(f), n + m, err
	case core.KindBool:
		var b bool
		b, m, err = ord.Bool.Unmarshal(bs[n:])
		return core.Bool(b), n + m, err
	}
	return core.Value{}, n, fmt.Errorf("%w: unknown value kind %d", ErrCorruptRecord, kind)
}

// Keys are written in sorted order so equal metadata encodes identically.
func sortedKeys(md core.Metadata) []string {
	return slices.Sorted(maps.Keys(md))
}

func sizeRecord(r vectorRecord) int {
	size := varint.Int.Size(len(r.Values))
	for _, f := range r.Values {
		size += raw.Float32.Size(f)
	}
	size += varint.Int.Size(len(r.Metadata))
	for k, v := range r.Metadata {
		size += ord.String.Size(k) + sizeValue(v)
	}
	return size
}

// marshalRecord serializes a vectorRecord to bytes.
func marshalRecord(r vectorRecord) []byte {
	bs := make([]byte, sizeRecord(r))
	n := varint.Int.Marshal(len(r.Values), bs)
	for _, f := range r.Values {
		n += raw.Float32.Marshal(f, bs[n:])
	}
	n += varint.Int.Marshal(len(r.Metadata), bs[n:])
	for _, k := range sortedKeys(r.Metadata) {
		n += ord.String.Marshal(k, bs[n:])
		n += marshalValue(r.Metadata[k], bs[n:])
	}
	return bs
}

// readCount decodes a collection length and rejects values the remaining
// input cannot possibly hold.
func readCount(bs []byte) (int, int, error) {
	count, n, err := varint.Int.Unmarshal(bs)
	if err != nil {
		return 0, n, err
	}
	if count < 0 || count > len(bs)-n {
		return 0, n, fmt.Errorf("%w: bad length %d", ErrCorruptRecord, count)
	}
	return count, n, nil
}

// unmarshalRecord deserializes a vectorRecord from bytes.
func unmarshalRecord(bs []byte) (vectorRecord, error) {
	var r vectorRecord

	count, n, err := readCount(bs)
	if err != nil {
		return r, err
	}
	r.Values = make([]float32, count)
	for i := range r.Values {
		f, m, err := raw.Float32.Unmarshal(bs[n:])
		if err != nil {
			return r, fmt.Errorf("%w: value %d: %w", ErrCorruptRecord, i, err)
		}
		r.Values[i] = f
		n += m
	}

	count, m, err := readCount(bs[n:])
	if err != nil {
		return r, err
	}
	n += m
	r.Metadata = make(core.Metadata, count)
	for range count {
		key, m, err := ord.String.Unmarshal(bs[n:])
		if err != nil {
			return r, fmt.Errorf("%w: metadata key: %w", ErrCorruptRecord, err)
		}
		n += m
		v, m, err := unmarshalValue(bs[n:])
		if err != nil {
			return r, fmt.Errorf("%w: metadata %q: %w", ErrCorruptRecord, key, err)
		}
		n += m
		r.Metadata[key] = v
	}
	return r, nil
}

// marshalCollection serializes a CollectionSpec to bytes.
func marshalCollection(spec vectorstore.CollectionSpec) []byte {
	size := ord.String.Size(spec.Name) +
		varint.Int.Size(spec.Dimension) +
		ord.String.Size(string(spec.Metric)) +
		ord.String.Size(spec.Cloud) +
		ord.String.Size(spec.Region)
	bs := make([]byte, size)
	n := ord.String.Marshal(spec.Name, bs)
	n += varint.Int.Marshal(spec.Dimension, bs[n:])
	n += ord.String.Marshal(string(spec.Metric), bs[n:])
	n += ord.String.Marshal(spec.Cloud, bs[n:])
	ord.String.Marshal(spec.Region, bs[n:])
	return bs
}

// unmarshalCollection deserializes a CollectionSpec from bytes.
func unmarshalCollection(bs []byte) (vectorstore.CollectionSpec, error) {
	var spec vectorstore.CollectionSpec
	var n, m int
	var err error
	var metric string

	if spec.Name, m, err = ord.String.Unmarshal(bs); err != nil {
		return spec, fmt.Errorf("%w: collection name: %w", ErrCorruptRecord, err)
	}
	n += m
	if spec.Dimension, m, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return spec, fmt.Errorf("%w: collection dimension: %w", ErrCorruptRecord, err)
	}
	n += m
	if metric, m, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return spec, fmt.Errorf("%w: collection metric: %w", ErrCorruptRecord, err)
	}
	spec.Metric = vectorstore.Metric(metric)
	n += m
	if spec.Cloud, m, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return spec, fmt.Errorf("%w: collection cloud: %w", ErrCorruptRecord, err)
	}
	n += m
	if spec.Region, _, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return spec, fmt.Errorf("%w: collection region: %w", ErrCorruptRecord, err)
	}
	return spec, nil
}
