package wire

import (
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	cases := []Record{
		StreamStart{},
		StreamEnd{},
		Header{Version: 1, Time: 1000, ID: "abc", Pid: 42, Cxt: DataContextStart},
		Header{Version: 1, Time: 2000, ID: "abc", Pid: 42, Cxt: DataContextEnd},
		Data{Version: 1, Time: 1500, ID: "abc", Pid: 42, Cxt: DataContextStdout, Payload: []byte("hello\n"), Utf8: true},
		Data{Version: 1, Time: 1500, ID: "abc", Pid: 42, Cxt: DataContextStderr, Payload: []byte{0xff, 0x00, 0x10}},
		Log{Version: 1, Message: "debug info"},
		Error{Version: 1, Message: "boom"},
	}

	for _, want := range cases {
		b, err := Marshal(want)
		require.NoError(t, err)

		got, err := Unmarshal(b)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestUnmarshalRejectsInvalidHeaderContext(t *testing.T) {
	// Hand-build a header envelope with a context value that is legal for
	// Data but not for Header (stdout, 1).
	content := map[TagMarker]any{
		TagVersion:     uint32(1),
		TagTime:        int64(0),
		TagID:          "x",
		TagPid:         uint32(0),
		TagDataContext: DataContextStdout,
	}
	raw, err := cbor.Marshal(content)
	require.NoError(t, err)
	b, err := cbor.Marshal(envelope{T: KindHeader, C: raw})
	require.NoError(t, err)

	_, err = Unmarshal(b)
	assert.Error(t, err)
}

func TestUnmarshalRejectsInvalidDataContext(t *testing.T) {
	// Hand-build a data envelope with a context value that is legal for
	// Header but not for Data (start, 0).
	content := map[TagMarker]any{
		TagVersion:     uint32(1),
		TagTime:        int64(0),
		TagID:          "x",
		TagPid:         uint32(0),
		TagDataContext: DataContextStart,
	}
	raw, err := cbor.Marshal(content)
	require.NoError(t, err)
	b, err := cbor.Marshal(envelope{T: KindData, C: raw})
	require.NoError(t, err)

	_, err = Unmarshal(b)
	assert.Error(t, err)
}

func TestUnmarshalUnknownContentKeyIsIgnored(t *testing.T) {
	// Hand-build a log envelope carrying an extra, unassigned tag (99).
	content := map[TagMarker]any{
		TagVersion:    uint32(1),
		TagUtf8Data:   "ok",
		TagMarker(99): "extra",
	}
	raw, err := cbor.Marshal(content)
	require.NoError(t, err)
	b, err := cbor.Marshal(envelope{T: KindLog, C: raw})
	require.NoError(t, err)

	rec, err := Unmarshal(b)
	require.NoError(t, err)
	assert.Equal(t, Log{Version: 1, Message: "ok"}, rec)
}
