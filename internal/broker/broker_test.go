package broker

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/dolysis/recordbroker/internal/execlist"
	"github.com/dolysis/recordbroker/internal/filter"
	"github.com/dolysis/recordbroker/internal/join"
	"github.com/dolysis/recordbroker/internal/wire"
)

// startLoaderSink accepts exactly one connection and decodes every framed
// record off it into the returned channel until the connection closes.
func startLoaderSink(t *testing.T) (addr string, records <-chan wire.Record) {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	out := make(chan wire.Record, 64)
	go func() {
		conn, err := lis.Accept()
		if err != nil {
			close(out)
			return
		}
		defer conn.Close()
		fr := wire.NewFrameReader(conn)
		for {
			rec, err := fr.ReadRecord()
			if err != nil {
				close(out)
				return
			}
			out <- rec
		}
	}()
	return lis.Addr().String(), out
}

func buildExecList(t *testing.T, doc string) *execlist.ExecList {
	t.Helper()
	var cfg execlist.Config
	require.NoError(t, yaml.Unmarshal([]byte(doc), &cfg))
	el, err := execlist.New(cfg.Exec)
	require.NoError(t, err)
	return el
}

func TestBrokerJoinsAndFiltersEndToEnd(t *testing.T) {
	loaderAddr, records := startLoaderSink(t)

	exec := buildExecList(t, `
exec:
  - join
  - filter: keep-trace
  - load: "`+loaderAddr+`"
`)

	var fcfg filter.Config
	require.NoError(t, yaml.Unmarshal([]byte(`
filter:
  keep-trace:
    - re: "TRACE"
`), &fcfg))
	fs, _, err := filter.CompileConfig(fcfg)
	require.NoError(t, err)

	var jcfg join.Config
	require.NoError(t, yaml.Unmarshal([]byte(`
join:
  start:
    - re: "^BEGIN"
  end:
    - re: "^END"
`), &jcfg))
	jh, _, err := join.NewHandle(jcfg.Join)
	require.NoError(t, err)

	b, err := New(
		WithBindAddr("127.0.0.1:0"),
		WithFilters(fs),
		WithJoin(jh),
		WithExecList(exec),
		WithInactivityTimeout(2*time.Second),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = b.ListenAndServe(ctx) }()

	brokerAddr := b.Addr().String()
	conn, err := net.Dial("tcp", brokerAddr)
	require.NoError(t, err)
	defer conn.Close()

	fw := wire.NewFrameWriter(conn)
	require.NoError(t, fw.WriteRecord(wire.StreamStart{}))
	require.NoError(t, fw.WriteRecord(wire.Header{ID: "p1", Cxt: wire.DataContextStart}))
	require.NoError(t, fw.WriteRecord(wire.Data{ID: "p1", Cxt: wire.DataContextStdout, Payload: []byte("BEGIN TRACE"), Utf8: true}))
	require.NoError(t, fw.WriteRecord(wire.Data{ID: "p1", Cxt: wire.DataContextStdout, Payload: []byte("mid line"), Utf8: true}))
	require.NoError(t, fw.WriteRecord(wire.Data{ID: "p1", Cxt: wire.DataContextStdout, Payload: []byte("END TRACE"), Utf8: true}))
	require.NoError(t, fw.WriteRecord(wire.Data{ID: "p1", Cxt: wire.DataContextStdout, Payload: []byte("no trace here"), Utf8: true}))
	require.NoError(t, fw.WriteRecord(wire.Header{ID: "p1", Cxt: wire.DataContextEnd}))
	require.NoError(t, fw.WriteRecord(wire.StreamEnd{}))
	conn.Close()

	var got []wire.Record
	timeout := time.After(3 * time.Second)
collect:
	for {
		select {
		case rec, ok := <-records:
			if !ok {
				break collect
			}
			got = append(got, rec)
		case <-timeout:
			break collect
		}
	}

	require.NotEmpty(t, got)

	var dataRecords []wire.Data
	for _, r := range got {
		if d, ok := r.(wire.Data); ok {
			dataRecords = append(dataRecords, d)
		}
	}
	require.Len(t, dataRecords, 1)
	assert.Equal(t, "BEGIN TRACE\nmid line\nEND TRACE", string(dataRecords[0].Payload))
}

// TestSentinelViolationClosesConnection covers spec scenario 5: a session
// that begins with something other than StreamStart is rejected and the
// connection is closed without anything reaching the loader sink.
func TestSentinelViolationClosesConnection(t *testing.T) {
	loaderAddr, records := startLoaderSink(t)

	exec := buildExecList(t, `
exec:
  - load: "`+loaderAddr+`"
`)

	b, err := New(
		WithBindAddr("127.0.0.1:0"),
		WithExecList(exec),
		WithInactivityTimeout(2*time.Second),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = b.ListenAndServe(ctx) }()

	conn, err := net.Dial("tcp", b.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	fw := wire.NewFrameWriter(conn)
	require.NoError(t, fw.WriteRecord(wire.Header{ID: "p1", Cxt: wire.DataContextStart}))

	var got []wire.Record
	timeout := time.After(1 * time.Second)
collect:
	for {
		select {
		case rec, ok := <-records:
			if !ok {
				break collect
			}
			got = append(got, rec)
		case <-timeout:
			break collect
		}
	}
	assert.Empty(t, got)
}

// TestRecordAfterStreamEndIsRejected covers spec scenario: once StreamEnd
// has been observed, any further record on the same connection is a
// sentinel violation, not a record to forward.
func TestRecordAfterStreamEndIsRejected(t *testing.T) {
	loaderAddr, records := startLoaderSink(t)

	exec := buildExecList(t, `
exec:
  - load: "`+loaderAddr+`"
`)

	b, err := New(
		WithBindAddr("127.0.0.1:0"),
		WithExecList(exec),
		WithInactivityTimeout(2*time.Second),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = b.ListenAndServe(ctx) }()

	conn, err := net.Dial("tcp", b.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	fw := wire.NewFrameWriter(conn)
	require.NoError(t, fw.WriteRecord(wire.StreamStart{}))
	require.NoError(t, fw.WriteRecord(wire.Header{ID: "p1", Cxt: wire.DataContextStart}))
	require.NoError(t, fw.WriteRecord(wire.Header{ID: "p1", Cxt: wire.DataContextEnd}))
	require.NoError(t, fw.WriteRecord(wire.StreamEnd{}))
	require.NoError(t, fw.WriteRecord(wire.Header{ID: "p2", Cxt: wire.DataContextStart}))

	var got []wire.Record
	timeout := time.After(1 * time.Second)
collect:
	for {
		select {
		case rec, ok := <-records:
			if !ok {
				break collect
			}
			got = append(got, rec)
		case <-timeout:
			break collect
		}
	}
	for _, rec := range got {
		if h, ok := rec.(wire.Header); ok {
			assert.NotEqual(t, "p2", h.ID)
		}
	}
}
