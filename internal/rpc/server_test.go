package rpc_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/vaultd/internal/noteservice"
	"github.com/starford/vaultd/internal/rpc"
	"github.com/starford/vaultd/internal/storage"
	"github.com/starford/vaultd/internal/testutil"
)

type wireResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpc.Error      `json:"error"`
}

func newTestServer(t *testing.T) (string, *rpc.Server) {
	t.Helper()
	dir, vault, mgr := testutil.TestManager(t)
	svc := noteservice.NewService(vault, mgr, testutil.Logger())
	return dir, rpc.NewServer(rpc.NewMethods(svc), testutil.Logger())
}

// serveLines feeds input to a fresh server and returns every output line.
func serveLines(t *testing.T, srv *rpc.Server, input ...string) []wireResponse {
	t.Helper()
	var out bytes.Buffer
	err := srv.Serve(context.Background(), strings.NewReader(strings.Join(input, "\n")+"\n"), &out)
	require.NoError(t, err)

	var resps []wireResponse
	sc := bufio.NewScanner(&out)
	for sc.Scan() {
		var r wireResponse
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r), "line %q", sc.Text())
		resps = append(resps, r)
	}
	return resps
}

func TestServe_ReindexAndListTasks(t *testing.T) {
	dir, srv := newTestServer(t)
	testutil.WriteNote(t, dir, "2025-03-15.md", "## Tasks\n- [ ] [T-1] Write #work\n- [x] [T-2] Ship #work\n")

	resps := serveLines(t, srv,
		`{"jsonrpc":"2.0","id":1,"method":"core.reindex"}`,
		`{"jsonrpc":"2.0","id":2,"method":"core.list_tasks","params":{"status":"Open","tags":["work"]}}`,
	)
	require.Len(t, resps, 2)

	assert.JSONEq(t, `1`, string(resps[0].ID))
	assert.JSONEq(t, `{"status":"ok","indexed":1,"removed":0}`, string(resps[0].Result))

	var tasks []map[string]any
	require.NoError(t, json.Unmarshal(resps[1].Result, &tasks))
	require.Len(t, tasks, 1)
	assert.Equal(t, "T-1", tasks[0]["id"])
	assert.Equal(t, "Open", tasks[0]["status"])
}

func TestServe_NotificationsAreNotAnswered(t *testing.T) {
	_, srv := newTestServer(t)
	resps := serveLines(t, srv,
		`{"jsonrpc":"2.0","method":"core.reindex"}`,
		`{"jsonrpc":"2.0","id":null,"method":"core.task_detail","params":{"task_id":"T-404"}}`,
		`{"jsonrpc":"2.0","method":"no.such.method"}`,
		`{"jsonrpc":"2.0","id":"last","method":"core.list_tags"}`,
	)
	require.Len(t, resps, 1)
	assert.JSONEq(t, `"last"`, string(resps[0].ID))
	assert.JSONEq(t, `[]`, string(resps[0].Result))
}

func TestServe_ErrorCodes(t *testing.T) {
	dir, srv := newTestServer(t)
	testutil.WriteNote(t, dir, "a.md", "original")

	resps := serveLines(t, srv,
		`{not json`,
		`{"jsonrpc":"1.0","id":1,"method":"core.list_tags"}`,
		`{"jsonrpc":"2.0","id":2}`,
		`{"jsonrpc":"2.0","id":3,"method":"core.nope"}`,
		`{"jsonrpc":"2.0","id":4,"method":"core.notes_in_range","params":{"start":"2025-13-01","end":"2025-03-01"}}`,
		`{"jsonrpc":"2.0","id":5,"method":"core.list_tasks","params":{"status":"Sleeping"}}`,
		`{"jsonrpc":"2.0","id":6,"method":"core.task_detail","params":{"task_id":"T-404"}}`,
		`{"jsonrpc":"2.0","id":7,"method":"core.reindex"}`,
		`{"jsonrpc":"2.0","id":8,"method":"core.write_note","params":{"note_id":"a.md","content":"x","if_match":"stale"}}`,
		`{"jsonrpc":"2.0","id":9,"method":"core.read_note","params":{}}`,
		`[1,2,3]`,
	)
	require.Len(t, resps, 11)

	codes := make([]int, 0, len(resps))
	for _, r := range resps {
		if r.Error == nil {
			codes = append(codes, 0)
			continue
		}
		codes = append(codes, r.Error.Code)
	}
	assert.Equal(t, []int{
		rpc.CodeParseError,
		rpc.CodeInvalidRequest,
		rpc.CodeInvalidRequest,
		rpc.CodeMethodNotFound,
		rpc.CodeInvalidParams,
		rpc.CodeInvalidParams,
		rpc.CodeNotFound,
		0,
		rpc.CodeConflict,
		rpc.CodeInvalidParams,
		rpc.CodeInvalidRequest,
	}, codes)

	assert.JSONEq(t, `null`, string(resps[0].ID))
	assert.JSONEq(t, `1`, string(resps[1].ID))
	assert.Equal(t, `unknown method 'core.nope'`, resps[3].Error.Message)
}

func TestServe_OversizedLineDoesNotStopServing(t *testing.T) {
	_, srv := newTestServer(t)
	huge := `{"jsonrpc":"2.0","id":1,"method":"core.list_tags","params":{"pad":"` +
		strings.Repeat("x", 17<<20) + `"}}`

	resps := serveLines(t, srv,
		huge,
		`{"jsonrpc":"2.0","id":2,"method":"core.list_tags"}`,
	)
	require.Len(t, resps, 2)

	require.NotNil(t, resps[0].Error)
	assert.Equal(t, rpc.CodeInvalidRequest, resps[0].Error.Code)
	assert.JSONEq(t, `null`, string(resps[0].ID))

	require.Nil(t, resps[1].Error)
	assert.JSONEq(t, `2`, string(resps[1].ID))
	assert.JSONEq(t, `[]`, string(resps[1].Result))
}

func TestServe_MistypedMemberKeepsRequestID(t *testing.T) {
	_, srv := newTestServer(t)
	resps := serveLines(t, srv,
		`{"jsonrpc":"2.0","id":7,"method":5}`,
		`{"jsonrpc":"2.0","id":"x","method":"core.list_tags","params":{},"extra":[}`,
	)
	require.Len(t, resps, 2)

	require.NotNil(t, resps[0].Error)
	assert.Equal(t, rpc.CodeInvalidRequest, resps[0].Error.Code)
	assert.JSONEq(t, `7`, string(resps[0].ID))

	require.NotNil(t, resps[1].Error)
	assert.Equal(t, rpc.CodeParseError, resps[1].Error.Code)
	assert.JSONEq(t, `null`, string(resps[1].ID))
}

func TestServe_InvalidNotificationsAreDropped(t *testing.T) {
	_, srv := newTestServer(t)
	resps := serveLines(t, srv,
		`{"jsonrpc":"1.0","method":"core.list_tags"}`,
		`{"jsonrpc":"2.0"}`,
		`{"jsonrpc":"2.0","id":null,"method":5}`,
		`{"jsonrpc":"2.0","id":"last","method":"core.list_tags"}`,
	)
	require.Len(t, resps, 1)
	assert.JSONEq(t, `"last"`, string(resps[0].ID))
	assert.Nil(t, resps[0].Error)
}

func TestServe_TaskDetailIncludesLogEntries(t *testing.T) {
	dir, srv := newTestServer(t)
	testutil.WriteNote(t, dir, "2025-03-15.md", "## Tasks\n- [ ] [T-1] Thing\n\n## Log\n- 9:15 poked at [T-1]\n")

	resps := serveLines(t, srv,
		`{"jsonrpc":"2.0","id":1,"method":"core.reindex"}`,
		`{"jsonrpc":"2.0","id":2,"method":"core.task_detail","params":{"task_id":"T-1"}}`,
	)
	require.Len(t, resps, 2)
	require.Nil(t, resps[1].Error)

	var detail struct {
		Task       map[string]any   `json:"task"`
		Mentions   []map[string]any `json:"mentions"`
		LogEntries []map[string]any `json:"log_entries"`
	}
	require.NoError(t, json.Unmarshal(resps[1].Result, &detail))
	assert.Equal(t, "Thing", detail.Task["title"])
	require.Len(t, detail.Mentions, 1)
	assert.Equal(t, "2025-03-15.md:5", detail.Mentions[0]["log_entry_id"])
	require.Len(t, detail.LogEntries, 1)
	assert.Equal(t, "9:15", detail.LogEntries[0]["timestamp"])
}

func TestServe_OpenDailyAndWeeklySummary(t *testing.T) {
	dir, srv := newTestServer(t)
	testutil.WriteNote(t, dir, "2025-03-14.md", "## Tasks\n- [ ] [T-1] One #a\n- [ ] [T-2] Two #a #b\n")

	resps := serveLines(t, srv,
		`{"jsonrpc":"2.0","id":1,"method":"core.reindex"}`,
		`{"jsonrpc":"2.0","id":2,"method":"core.open_daily","params":{"date":"2025-03-15"}}`,
		`{"jsonrpc":"2.0","id":3,"method":"core.open_daily","params":{"date":"2025-03-15"}}`,
		`{"jsonrpc":"2.0","id":4,"method":"core.weekly_summary","params":{"start":"2025-03-10","end":"2025-03-16"}}`,
	)
	require.Len(t, resps, 4)

	var first, second map[string]any
	require.NoError(t, json.Unmarshal(resps[1].Result, &first))
	require.NoError(t, json.Unmarshal(resps[2].Result, &second))
	assert.Equal(t, "2025-03-15.md", first["id"])
	assert.Equal(t, "2025-03-15", first["date"])
	assert.Equal(t, first["checksum"], second["checksum"])

	var summary struct {
		NewTasks []any    `json:"new_tasks"`
		Notes    []any    `json:"notes"`
		TopTags  [][2]any `json:"top_tags"`
	}
	require.NoError(t, json.Unmarshal(resps[3].Result, &summary))
	assert.Len(t, summary.NewTasks, 2)
	assert.Len(t, summary.Notes, 2)
	require.Len(t, summary.TopTags, 2)
	assert.Equal(t, "a", summary.TopTags[0][0])
	assert.EqualValues(t, 2, summary.TopTags[0][1])
}

func TestServe_WriteNoteRoundTrip(t *testing.T) {
	dir, srv := newTestServer(t)
	testutil.WriteNote(t, dir, "a.md", "old")
	sum := storage.Checksum([]byte("old"))

	resps := serveLines(t, srv,
		`{"jsonrpc":"2.0","id":1,"method":"core.reindex"}`,
		`{"jsonrpc":"2.0","id":2,"method":"core.write_note","params":{"note_id":"a.md","content":"## Tasks\n- [ ] [T-7] New","if_match":"`+sum+`"}}`,
		`{"jsonrpc":"2.0","id":3,"method":"core.read_note","params":{"note_id":"a.md"}}`,
		`{"jsonrpc":"2.0","id":4,"method":"core.write_note","params":{"note_id":"a.md"}}`,
	)
	require.Len(t, resps, 4)
	require.Nil(t, resps[1].Error)

	var note map[string]any
	require.NoError(t, json.Unmarshal(resps[2].Result, &note))
	assert.Equal(t, "## Tasks\n- [ ] [T-7] New", note["content"])

	require.NotNil(t, resps[3].Error)
	assert.Equal(t, rpc.CodeInvalidParams, resps[3].Error.Code)
}

func TestServe_BlankLinesSkipped(t *testing.T) {
	_, srv := newTestServer(t)
	resps := serveLines(t, srv,
		``,
		`   `,
		`{"jsonrpc":"2.0","id":1,"method":"core.list_tags"}`,
	)
	assert.Len(t, resps, 1)
}

func TestServe_NotifyWritesServerNotification(t *testing.T) {
	_, srv := newTestServer(t)
	pr, pw := io.Pipe()
	var out bytes.Buffer

	done := make(chan error, 1)
	go func() { done <- srv.Serve(context.Background(), pr, &out) }()

	err := srv.Notify(context.Background(), rpc.MethodNoteChanged, rpc.NoteChange{Kind: "created", NoteID: "a.md"})
	require.NoError(t, err)
	_ = pw.Close()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after input closed")
	}

	assert.JSONEq(t,
		`{"jsonrpc":"2.0","method":"core.note_changed","params":{"kind":"created","note_id":"a.md"}}`,
		strings.TrimSpace(out.String()))
	assert.ErrorIs(t, srv.Notify(context.Background(), rpc.MethodNoteChanged, nil), rpc.ErrClosed)
}

func TestServe_StopsOnCancel(t *testing.T) {
	_, srv := newTestServer(t)
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, pr, io.Discard) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
}
