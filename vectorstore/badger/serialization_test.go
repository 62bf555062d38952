package badger

import (
	"testing"

	"github.com/poiesic/ragpipe/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordEncoding(t *testing.T) {
	record := vectorRecord{
		Values: []float32{0.25, -1.5, 3},
		Metadata: core.Metadata{
			core.KeyText:       core.String("héllo"),
			core.KeyChunkIndex: core.Int(2),
			"draft":            core.Bool(true),
		},
	}

	bs := marshalRecord(record)
	assert.Equal(t, bs, marshalRecord(record), "encoding is deterministic")

	got, err := unmarshalRecord(bs)
	require.NoError(t, err)
	assert.Equal(t, record, got)

	t.Run("truncated input", func(t *testing.T) {
		_, err := unmarshalRecord(bs[:len(bs)-3])
		assert.Error(t, err)
	})

	t.Run("absurd length", func(t *testing.T) {
		_, err := unmarshalRecord([]byte{0xfe, 0xff, 0xff, 0x0f})
		assert.ErrorIs(t, err, ErrCorruptRecord)
	})
}
