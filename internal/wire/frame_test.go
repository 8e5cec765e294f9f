package wire

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameWriterReaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewFrameWriter(&buf)

	records := []Record{
		StreamStart{},
		Header{Version: 1, ID: "a", Cxt: DataContextStart},
		Data{Version: 1, ID: "a", Cxt: DataContextStdout, Payload: []byte("line one\n"), Utf8: true},
		Header{Version: 1, ID: "a", Cxt: DataContextEnd},
		StreamEnd{},
	}
	for _, r := range records {
		require.NoError(t, w.WriteRecord(r))
	}

	r := NewFrameReader(&buf)
	for _, want := range records {
		got, err := r.ReadRecord()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := r.ReadRecord()
	assert.ErrorIs(t, err, io.EOF)
}

func TestFrameReaderRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})

	r := NewFrameReader(&buf)
	_, err := r.ReadRecord()
	require.Error(t, err)
}

func TestFrameReaderRejectsTruncatedBody(t *testing.T) {
	var buf bytes.Buffer
	w := NewFrameWriter(&buf)
	require.NoError(t, w.WriteRecord(StreamStart{}))

	full := buf.Bytes()
	truncated := bytes.NewReader(full[:len(full)-1])

	r := NewFrameReader(truncated)
	_, err := r.ReadRecord()
	assert.Error(t, err)
}
