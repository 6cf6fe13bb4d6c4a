package tools

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hermitcrab/memfs"
	"hermitcrab/pscale"
	"hermitcrab/storage"
)

func TestExecuteUnknownTool(t *testing.T) {
	e := NewExecutor()
	assert.Equal(t, "Unknown tool: teleport", e.Execute(context.Background(), "teleport", json.RawMessage(`{}`)))
}

func TestExecuteConvertsFailuresToText(t *testing.T) {
	e := NewExecutor(
		Tool{Name: "boom", Function: func(context.Context, json.RawMessage) (string, error) {
			return "", errors.New("kaput")
		}},
		Tool{Name: "panics", Function: func(context.Context, json.RawMessage) (string, error) {
			panic("oh no")
		}},
	)

	assert.Equal(t, "Tool error (boom): kaput", e.Execute(context.Background(), "boom", nil))
	assert.Equal(t, "Tool error (panics): panic: oh no", e.Execute(context.Background(), "panics", nil))
}

func TestDateTimeTool(t *testing.T) {
	fixed := time.Date(2025, time.March, 5, 9, 7, 3, 0, time.UTC)
	e := NewExecutor(DateTimeTool(func() time.Time { return fixed }))

	var got DateTime
	require.NoError(t, json.Unmarshal([]byte(e.Execute(context.Background(), "get_datetime", nil)), &got))
	assert.Equal(t, "2025-03-05T09:07:03.000Z", got.ISO)
	assert.Equal(t, fixed.UnixMilli(), got.Unix)
	assert.Equal(t, "UTC", got.Timezone)
	assert.Equal(t, "202531391", got.PscaleT)
}

func TestGeolocationTool(t *testing.T) {
	e := NewExecutor(GeolocationTool())
	assert.Equal(t, GeolocationMessage, e.Execute(context.Background(), "get_geolocation", json.RawMessage(`{}`)))
}

func TestWebFetchTool(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		limit   int
		want    string
	}{
		{
			name: "success",
			handler: func(w http.ResponseWriter, r *http.Request) {
				var body map[string]string
				_ = json.NewDecoder(r.Body).Decode(&body)
				assert.Equal(t, "https://example.com", body["url"])
				_ = json.NewEncoder(w).Encode(FetchResult{Status: 200, ContentType: "text/html", Length: 5, Content: "hello"})
			},
			want: "HTTP 200 (text/html, 5 bytes):\nhello",
		},
		{
			name: "relay reports error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(FetchResult{Status: 0, Error: "dial tcp: no such host"})
			},
			want: "Fetch error: dial tcp: no such host",
		},
		{
			name: "truncates",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(FetchResult{Status: 200, ContentType: "text/plain", Length: 10, Content: "0123456789"})
			},
			limit: 4,
			want:  "HTTP 200 (text/plain, 10 bytes):\n0123" + TruncationMarker,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			f := NewFetcher(srv.URL+"/", tt.limit, time.Second)
			got := NewExecutor(f.Tool()).Execute(context.Background(), "web_fetch", json.RawMessage(`{"url":"https://example.com"}`))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWebFetchTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	f := NewFetcher(srv.URL, 0, time.Second)
	got := NewExecutor(f.Tool()).Execute(context.Background(), "web_fetch", json.RawMessage(`{"url":"https://example.com"}`))
	assert.True(t, strings.HasPrefix(got, "web_fetch failed: "), got)
}

func TestTruncateRuneBoundary(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "a"+TruncationMarker, Truncate("aé", 2))
}

func TestMemoryTool(t *testing.T) {
	e := NewExecutor(MemoryTool(memfs.New(storage.NewMemoryKV())))
	ctx := context.Background()

	assert.Equal(t, "Created /memories/x", e.Execute(ctx, "memory", json.RawMessage(`{"command":"create","path":"/memories/x","file_text":"hi"}`)))
	assert.Equal(t, "hi", e.Execute(ctx, "memory", json.RawMessage(`{"command":"view","path":"/memories/x"}`)))
	assert.True(t, strings.HasPrefix(e.Execute(ctx, "memory", json.RawMessage(`{"command":`)), "Memory error: "))
}

type fakeRecompiler struct {
	err    error
	source string
}

func (f *fakeRecompiler) Recompile(source string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.source = source
	return "S:0.21", nil
}

func newPscaleExecutor(t *testing.T, rc Recompiler) (*Executor, *pscale.Store, *pscale.Log) {
	t.Helper()
	kv, err := storage.OpenSQLiteKV(filepath.Join(t.TempDir(), "t.db"))
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	store := pscale.New(kv)
	changelog, err := pscale.OpenLog(kv.DB(), pscale.TableChangelog, "", nil)
	require.NoError(t, err)
	memories, err := pscale.OpenLog(kv.DB(), pscale.TableMemory, "", nil)
	require.NoError(t, err)

	e := NewDefaultExecutor(Deps{Pscale: store, Changelog: changelog, Memories: memories, Recompiler: rc})
	return e, store, changelog
}

func TestPscaleTools(t *testing.T) {
	e, store, _ := newPscaleExecutor(t, nil)
	ctx := context.Background()

	assert.Equal(t, "Written M:1 (3 chars)", e.Execute(ctx, "pscale_write", json.RawMessage(`{"coord":"M:1","content":"one"}`)))
	assert.Equal(t, "one", e.Execute(ctx, "pscale_read", json.RawMessage(`{"coord":"M:1"}`)))
	assert.Equal(t, "Error: M:2 not found", e.Execute(ctx, "pscale_read", json.RawMessage(`{"coord":"M:2"}`)))
	assert.Equal(t, "M:1", e.Execute(ctx, "pscale_list", json.RawMessage(`{"prefix":"M:"}`)))
	assert.Equal(t, memfs.Empty, e.Execute(ctx, "pscale_list", json.RawMessage(`{"prefix":"Z:"}`)))
	assert.Equal(t, "Error: coord required", e.Execute(ctx, "pscale_write", json.RawMessage(`{"content":"x"}`)))

	var next pscale.Next
	require.NoError(t, json.Unmarshal([]byte(e.Execute(ctx, "memory_next", nil)), &next))
	assert.Equal(t, "M:2", next.Coord)

	_, err := store.Write("M:300", "summary")
	require.NoError(t, err)
	var chain struct {
		Chain   []string          `json:"chain"`
		Content map[string]string `json:"content"`
	}
	require.NoError(t, json.Unmarshal([]byte(e.Execute(ctx, "pscale_context", json.RawMessage(`{"coord":"M:347"}`))), &chain))
	assert.Equal(t, []string{"M:300", "M:340"}, chain.Chain)
	assert.Equal(t, map[string]string{"M:300": "summary"}, chain.Content)

	assert.Equal(t, "[]", e.Execute(ctx, "memory_list", json.RawMessage(`{"level":0}`)))
}

func TestPscaleWriteInterfaceGoesThroughRecompile(t *testing.T) {
	rc := &fakeRecompiler{}
	e, store, changelog := newPscaleExecutor(t, rc)
	ctx := context.Background()

	got := e.Execute(ctx, "pscale_write", json.RawMessage(`{"coord":"S:0.2","content":"function App(){}"}`))
	assert.Equal(t, "Interface recompiled as S:0.21", got)
	assert.Equal(t, "function App(){}", rc.source)

	entries, err := changelog.Read(0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Shell updated (16 chars JSX)", entries[0].Content)

	rc.err = errors.New("SyntaxError: Unexpected token")
	got = e.Execute(ctx, "pscale_write", json.RawMessage(`{"coord":"S:0.2","content":"<<<"}`))
	assert.Equal(t, "Shell write rejected: SyntaxError: Unexpected token", got)
	_, ok, err := store.Read("S:0.2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStatusLine(t *testing.T) {
	long := "https://example.com/" + strings.Repeat("a", 80)
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"pscale_list", `{"prefix":"S:0"}`, "scanning pscale S:0..."},
		{"pscale_read", `{"coord":"S:0.12"}`, "reading S:0.12..."},
		{"pscale_write", `{"coord":"S:0.2","content":"abcd"}`, "writing shell (4 chars)"},
		{"pscale_write", `{"coord":"M:7","content":"ab"}`, "writing M:7 (2 chars)"},
		{"memory_list", `{}`, "scanning memory..."},
		{"memory_read", `{"number":12}`, "reading memory #12..."},
		{"memory_read", `{}`, "reading memory #all..."},
		{"get_datetime", `{}`, "checking time..."},
		{"web_fetch", `{"url":"` + long + `"}`, "fetching " + long[:50] + "..."},
		{"memory", `{"command":"view"}`, "tool: memory"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusLine(tt.name, json.RawMessage(tt.input)))
		})
	}
}

func TestDefinitions(t *testing.T) {
	e := NewDefaultExecutor(Deps{
		Memory:  memfs.New(storage.NewMemoryKV()),
		Pscale:  pscale.New(storage.NewMemoryKV()),
		Fetcher: NewFetcher("http://relay.test", 0, 0),
	})

	raw, err := json.Marshal(e.Definitions())
	require.NoError(t, err)

	var defs []map[string]any
	require.NoError(t, json.Unmarshal(raw, &defs))
	require.Len(t, defs, 5)
	assert.Equal(t, "web_search_20250305", defs[0]["type"])
	assert.Equal(t, "web_search", defs[0]["name"])
	assert.EqualValues(t, 5, defs[0]["max_uses"])
	assert.Equal(t, MemoryToolType, defs[1]["type"])
	assert.Equal(t, "web_fetch", defs[2]["name"])
	assert.Equal(t, "get_datetime", defs[3]["name"])
	assert.Equal(t, "get_geolocation", defs[4]["name"])

	schema := defs[2]["input_schema"].(map[string]any)
	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, []any{"url"}, schema["required"])

	all := e.PscaleDefinitions()
	assert.Len(t, all, 5+5)
}
