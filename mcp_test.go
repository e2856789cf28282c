package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/yaosenjutsu/yaoephemeris-mcp/internal/api"
	"github.com/yaosenjutsu/yaoephemeris-mcp/internal/locale"
	"github.com/yaosenjutsu/yaoephemeris-mcp/internal/params"
	"github.com/yaosenjutsu/yaoephemeris-mcp/internal/prefs"
	"github.com/yaosenjutsu/yaoephemeris-mcp/internal/tools"
	"github.com/yaosenjutsu/yaoephemeris-mcp/internal/usage"
)

const natalResponse = `{"name":"Hanako","planets":[{"name":"sun","sign":"Taurus","degree":54.2,"house":10}],"aspects":[]}`

type apiRequest struct {
	Path string
	Key  string
	Body map[string]any
}

type fakeAPI struct {
	mu       sync.Mutex
	requests []apiRequest
}

func (f *fakeAPI) Requests() []apiRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]apiRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

// startFakeAPI serves every POST with status and body and returns a client
// pointed at it.
func startFakeAPI(t *testing.T, key string, status int, body string) (*fakeAPI, *api.Client) {
	t.Helper()

	fake := &fakeAPI{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		fake.mu.Lock()
		fake.requests = append(fake.requests, apiRequest{Path: r.URL.Path, Key: r.Header.Get("X-API-Key"), Body: payload})
		fake.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(ts.Close)

	client, err := api.New(ts.URL, key, 5*time.Second)
	if err != nil {
		t.Fatalf("api.New: %v", err)
	}
	return fake, client
}

func newTestServer(caller apiCaller, lang locale.Lang, store *prefs.Store) *server {
	return newServer(serverDeps{
		API:     caller,
		Prefs:   store,
		Lang:    lang,
		Logger:  zerolog.Nop(),
		Version: "test",
	})
}

// serveLines runs Serve over lines until EOF and returns the raw output.
func serveLines(t *testing.T, srv *server, lines ...string) string {
	t.Helper()

	input := strings.Join(lines, "\n") + "\n"
	var out bytes.Buffer
	if err := srv.Serve(context.Background(), strings.NewReader(input), &out); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	return out.String()
}

func decodeResponses(t *testing.T, raw string) map[string]rpcResponse {
	t.Helper()

	out := map[string]rpcResponse{}
	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var resp rpcResponse
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			t.Fatalf("invalid response line %q: %v", line, err)
		}
		if resp.JSONRPC != "2.0" {
			t.Fatalf("jsonrpc = %q in %s", resp.JSONRPC, line)
		}
		out[string(resp.ID)] = resp
	}
	return out
}

func decodeArgs(t *testing.T, raw string) map[string]any {
	t.Helper()

	args, err := loadToolArgs(raw, "")
	if err != nil {
		t.Fatalf("loadToolArgs: %v", err)
	}
	return args
}

func TestServeLifecycleMethods(t *testing.T) {
	t.Parallel()

	srv := newTestServer(nil, locale.English, nil)
	raw := serveLines(t, srv,
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18"}}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
		`{"jsonrpc":"2.0","id":3,"method":"ping"}`,
		`{"jsonrpc":"2.0","id":4,"method":"resources/list"}`,
		`{"jsonrpc":"2.0","id":"five","method":"prompts/list"}`,
	)
	responses := decodeResponses(t, raw)
	if len(responses) != 5 {
		t.Fatalf("expected 5 responses, got %d: %s", len(responses), raw)
	}

	var initResult struct {
		ProtocolVersion string `json:"protocolVersion"`
		ServerInfo      struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"serverInfo"`
		Capabilities map[string]any `json:"capabilities"`
	}
	if err := json.Unmarshal(responses["1"].Result, &initResult); err != nil {
		t.Fatalf("initialize result: %v", err)
	}
	if initResult.ProtocolVersion != mcpProtocolVersion || initResult.ServerInfo.Name != serverName || initResult.ServerInfo.Version != "test" {
		t.Fatalf("initialize = %+v", initResult)
	}
	if _, ok := initResult.Capabilities["tools"]; !ok {
		t.Fatalf("tools capability missing: %+v", initResult.Capabilities)
	}

	var listResult struct {
		Tools []struct {
			Name        string         `json:"name"`
			Description string         `json:"description"`
			InputSchema map[string]any `json:"inputSchema"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(responses["2"].Result, &listResult); err != nil {
		t.Fatalf("tools/list result: %v", err)
	}
	if len(listResult.Tools) != 18 {
		t.Fatalf("expected 18 tools, got %d", len(listResult.Tools))
	}
	if listResult.Tools[0].Name != "natal_chart" || listResult.Tools[0].InputSchema["type"] != "object" {
		t.Fatalf("first tool = %+v", listResult.Tools[0])
	}

	if string(responses["3"].Result) != "{}" {
		t.Fatalf("ping result = %s", responses["3"].Result)
	}
	if !strings.Contains(string(responses["4"].Result), `"resources":[]`) {
		t.Fatalf("resources/list result = %s", responses["4"].Result)
	}
	if !strings.Contains(string(responses[`"five"`].Result), `"prompts":[]`) {
		t.Fatalf("prompts/list result = %s", responses[`"five"`].Result)
	}
}

func TestServeNotificationsGetNoResponse(t *testing.T) {
	t.Parallel()

	fake, client := startFakeAPI(t, "test-key-123456", http.StatusOK, natalResponse)
	srv := newTestServer(client, locale.English, nil)
	raw := serveLines(t, srv,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","method":"tools/list"}`,
		`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"natal_chart","arguments":{"name":"Hanako","datetime":"1990-05-15 14:30:00","location":"Tokyo"}}}`,
		`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"no_such_tool"}}`,
	)
	if raw != "" {
		t.Fatalf("notifications must not be answered, got %q", raw)
	}
	if got := len(fake.Requests()); got != 1 {
		t.Fatalf("tools/call notification should still run, API requests = %d", got)
	}
}

func TestServeProtocolErrors(t *testing.T) {
	t.Parallel()

	srv := newTestServer(nil, locale.English, nil)
	raw := serveLines(t, srv,
		`{this is not json`,
		``,
		`{"jsonrpc":"2.0","id":1,"method":"bogus/method"}`,
		`{"jsonrpc":"2.0","id":2}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"natal"}}`,
		`{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{}}`,
	)
	responses := decodeResponses(t, raw)
	if len(responses) != 4 {
		t.Fatalf("expected 4 responses, got %d: %s", len(responses), raw)
	}

	cases := []struct {
		id       string
		code     int
		contains []string
	}{
		{id: "1", code: codeMethodNotFound, contains: []string{"Method not found: bogus/method"}},
		{id: "2", code: codeInvalidRequest},
		{id: "3", code: codeInvalidParams, contains: []string{"Unknown tool: natal", "Similar tools: ", "natal_chart", "yaonatal"}},
		{id: "4", code: codeInvalidParams, contains: []string{"tool name required"}},
	}
	for _, tc := range cases {
		resp := responses[tc.id]
		if resp.Error == nil {
			t.Fatalf("id %s: expected error, got result %s", tc.id, resp.Result)
		}
		if resp.Error.Code != tc.code {
			t.Fatalf("id %s: code = %d, want %d", tc.id, resp.Error.Code, tc.code)
		}
		for _, want := range tc.contains {
			if !strings.Contains(resp.Error.Message, want) {
				t.Fatalf("id %s: message %q missing %q", tc.id, resp.Error.Message, want)
			}
		}
	}
}

func TestServeShutdownStopsReading(t *testing.T) {
	t.Parallel()

	srv := newTestServer(nil, locale.Japanese, nil)
	raw := serveLines(t, srv,
		`{"jsonrpc":"2.0","id":1,"method":"shutdown"}`,
		`{"jsonrpc":"2.0","id":2,"method":"ping"}`,
	)
	if strings.TrimSpace(raw) != `{"jsonrpc":"2.0","id":1,"result":null}` {
		t.Fatalf("unexpected output after shutdown: %q", raw)
	}
}

func TestServeToolCallSuccess(t *testing.T) {
	t.Parallel()

	fake, client := startFakeAPI(t, "test-key-123456", http.StatusOK, natalResponse)
	srv := newTestServer(client, locale.English, nil)
	raw := serveLines(t, srv,
		`{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"natal_chart","arguments":{"name":"Hanako","datetime":"1990-05-15 14:30:00","location":"Tokyo","latitude":35.68,"longitude":139.76}}}`,
	)
	responses := decodeResponses(t, raw)
	resp, ok := responses["7"]
	if !ok || resp.Error != nil {
		t.Fatalf("expected result for id 7, got %s", raw)
	}

	var result toolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.IsError || len(result.Content) != 1 || result.Content[0].Type != "text" || result.Content[0].Text == "" {
		t.Fatalf("result = %+v", result)
	}
	if result.Metadata == nil || result.Metadata.Format != "compact" || result.Metadata.CachedParams || result.Metadata.DurationMs < 0 {
		t.Fatalf("metadata = %+v", result.Metadata)
	}

	requests := fake.Requests()
	if len(requests) != 1 {
		t.Fatalf("API requests = %d", len(requests))
	}
	req := requests[0]
	if req.Path != "/api/v1/natal_chart" || req.Key != "test-key-123456" {
		t.Fatalf("request = %+v", req)
	}
	if req.Body["datetime"] != "1990-05-15T14:30:00" {
		t.Fatalf("datetime not normalized: %v", req.Body["datetime"])
	}
	if req.Body["location"] != "Tokyo" {
		t.Fatalf("location = %v", req.Body["location"])
	}
	if _, ok := req.Body["latitude"]; ok {
		t.Fatalf("latitude should be dropped when location is given: %v", req.Body)
	}
}

func TestServeReadsWhileToolCallInFlight(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entered <- struct{}{}
		<-release
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, natalResponse)
	}))
	t.Cleanup(ts.Close)
	var releaseOnce sync.Once
	unblock := func() { releaseOnce.Do(func() { close(release) }) }
	t.Cleanup(unblock)

	client, err := api.New(ts.URL, "test-key-123456", 5*time.Second)
	if err != nil {
		t.Fatalf("api.New: %v", err)
	}
	srv := newTestServer(client, locale.English, nil)

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	t.Cleanup(func() {
		_ = inW.Close()
		_ = outR.Close()
	})

	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(context.Background(), inR, outW)
		_ = outW.Close()
	}()

	lines := make(chan string, 4)
	go func() {
		scanner := bufio.NewScanner(outR)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	next := func(what string) string {
		t.Helper()
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatalf("output closed while waiting for %s", what)
			}
			return line
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for %s", what)
		}
		return ""
	}

	send := func(line string) {
		t.Helper()
		if _, err := io.WriteString(inW, line+"\n"); err != nil {
			t.Fatalf("write input: %v", err)
		}
	}

	send(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"natal_chart","arguments":{"name":"Hanako","datetime":"1990-05-15 14:30:00","location":"Tokyo"}}}`)
	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatalf("tool call never reached the API")
	}

	send(`{"jsonrpc":"2.0","id":2,"method":"ping"}`)
	if first := next("ping"); first != `{"jsonrpc":"2.0","id":2,"result":{}}` {
		t.Fatalf("first response = %q, want the ping reply", first)
	}

	unblock()
	var resp rpcResponse
	if err := json.Unmarshal([]byte(next("tool result")), &resp); err != nil {
		t.Fatalf("decode tool result: %v", err)
	}
	if string(resp.ID) != "1" || resp.Error != nil {
		t.Fatalf("tool response = %+v", resp)
	}
	var result toolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil || result.IsError {
		t.Fatalf("tool result = %s (%v)", resp.Result, err)
	}

	_ = inW.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Serve did not return after EOF")
	}
}

func TestServeWriteFailureIsFatal(t *testing.T) {
	t.Parallel()

	srv := newTestServer(nil, locale.English, nil)
	err := srv.Serve(context.Background(), strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`+"\n"), failingWriter{})
	if err == nil || !strings.Contains(err.Error(), "write response") {
		t.Fatalf("expected write error, got %v", err)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("broken pipe")
}

func TestCallToolAuthenticationHint(t *testing.T) {
	t.Parallel()

	_, client := startFakeAPI(t, "wrong-key", http.StatusUnauthorized, `{"detail":"Invalid API key"}`)
	srv := newTestServer(client, locale.English, nil)

	result, rpcErr := srv.callTool(context.Background(), "natal_chart", decodeArgs(t, `{"name":"Hanako","datetime":"1990-05-15T14:30:00"}`))
	if rpcErr != nil {
		t.Fatalf("unexpected rpc error: %v", rpcErr)
	}
	text := resultText(result)
	if !result.IsError || !strings.HasPrefix(text, "Error: API authentication failed") {
		t.Fatalf("result = %+v", result)
	}
	if !strings.Contains(text, "Hint: Please set your API key in YAOEPHEMERIS_API_KEY environment variable.") {
		t.Fatalf("missing authentication hint: %q", text)
	}
	if result.Metadata != nil {
		t.Fatalf("error results carry no metadata: %+v", result.Metadata)
	}
}

func TestCallToolValidationSkipsAPI(t *testing.T) {
	t.Parallel()

	fake, client := startFakeAPI(t, "test-key-123456", http.StatusOK, natalResponse)
	srv := newTestServer(client, locale.English, nil)

	result, rpcErr := srv.callTool(context.Background(), "natal_chart", map[string]any{})
	if rpcErr != nil {
		t.Fatalf("unexpected rpc error: %v", rpcErr)
	}
	text := resultText(result)
	if !result.IsError || !strings.Contains(text, "Name is required") {
		t.Fatalf("result = %q", text)
	}
	if !strings.Contains(text, "Hint: Please check required parameters. Example: name, datetime") || strings.Contains(text, "latitude, longitude") {
		t.Fatalf("missing required hint: %q", text)
	}
	if got := len(fake.Requests()); got != 0 {
		t.Fatalf("validation errors must not reach the API, requests = %d", got)
	}
}

func TestCallToolMissingRequiredNeverReachesAPI(t *testing.T) {
	t.Parallel()

	fake, client := startFakeAPI(t, "test-key-123456", http.StatusOK, natalResponse)
	srv := newTestServer(client, locale.English, nil)

	call := func(name tools.Name, args map[string]any, dropped string) {
		t.Helper()
		result, rpcErr := srv.callTool(context.Background(), string(name), args)
		if rpcErr != nil {
			t.Fatalf("%s without %q: rpc error %v", name, dropped, rpcErr)
		}
		text := resultText(result)
		if !result.IsError || !strings.Contains(text, "Hint: Please check required parameters.") {
			t.Fatalf("%s without %q: result = %q", name, dropped, text)
		}
	}

	defs := tools.NewRegistry(locale.English).List()
	if len(defs) != 18 {
		t.Fatalf("registry has %d tools", len(defs))
	}
	for _, def := range defs {
		call(def.Name, map[string]any{}, "everything")

		full := sampleToolArgs(def.InputSchema)
		for _, field := range def.Required() {
			args := cloneArgs(full)
			delete(args, field)
			call(def.Name, args, field)
		}
		for key, fields := range def.ObjectRequired() {
			for _, field := range fields {
				args := cloneArgs(full)
				obj := cloneArgs(args[key].(map[string]any))
				delete(obj, field)
				args[key] = obj
				call(def.Name, args, key+"."+field)
			}
		}
	}

	if got := len(fake.Requests()); got != 0 {
		t.Fatalf("calls with missing fields reached the API %d times", got)
	}
}

func TestCallToolInvalidSignHasNoRequiredHint(t *testing.T) {
	t.Parallel()

	fake, client := startFakeAPI(t, "test-key-123456", http.StatusOK, `{}`)
	srv := newTestServer(client, locale.English, nil)

	result, _ := srv.callTool(context.Background(), "horoscope", map[string]any{"sign": "Ophiuchus"})
	text := resultText(result)
	if !result.IsError || !strings.Contains(text, "Invalid sign: Ophiuchus") {
		t.Fatalf("result = %q", text)
	}
	if strings.Contains(text, "check required parameters") {
		t.Fatalf("invalid value should not get the required-field hint: %q", text)
	}
	if got := len(fake.Requests()); got != 0 {
		t.Fatalf("requests = %d", got)
	}
}

// sampleToolArgs fills every required property of schema, recursing into
// objects.
func sampleToolArgs(schema map[string]any) map[string]any {
	props, _ := schema["properties"].(map[string]any)
	required, _ := schema["required"].([]string)
	args := map[string]any{}
	for _, field := range required {
		prop, _ := props[field].(map[string]any)
		switch {
		case prop["type"] == "object":
			args[field] = sampleToolArgs(prop)
		case prop["type"] == "number":
			args[field] = 35.0
		case prop["type"] == "boolean":
			args[field] = true
		default:
			if enum, ok := prop["enum"].([]string); ok && len(enum) > 0 {
				args[field] = enum[0]
			} else {
				args[field] = "1990-03-15T14:30:00"
			}
		}
	}
	return args
}

func cloneArgs(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func TestCallToolMissingAPIKey(t *testing.T) {
	t.Parallel()

	fake, client := startFakeAPI(t, "", http.StatusOK, natalResponse)
	srv := newTestServer(client, locale.Japanese, nil)

	result, _ := srv.callTool(context.Background(), "natal_chart", decodeArgs(t, `{"name":"Hanako","datetime":"1990-05-15T14:30:00"}`))
	if !result.IsError || !strings.Contains(resultText(result), "YAOEPHEMERIS_API_KEY") {
		t.Fatalf("result = %+v", result)
	}
	if got := len(fake.Requests()); got != 0 {
		t.Fatalf("missing key must fail before the network, requests = %d", got)
	}
}

func TestCallToolUnknownToolJapanese(t *testing.T) {
	t.Parallel()

	srv := newTestServer(nil, locale.Japanese, nil)
	_, rpcErr := srv.callTool(context.Background(), "natal_chartt", nil)
	if rpcErr == nil || rpcErr.Code != codeInvalidParams {
		t.Fatalf("expected invalid params, got %+v", rpcErr)
	}
	if !strings.Contains(rpcErr.Message, "Unknown tool: natal_chartt\n似たツール: natal_chart") {
		t.Fatalf("message = %q", rpcErr.Message)
	}

	_, rpcErr = srv.callTool(context.Background(), "zzz", nil)
	if rpcErr == nil || rpcErr.Message != "Unknown tool: zzz" {
		t.Fatalf("message without suggestions = %+v", rpcErr)
	}
}

func TestCallToolReusesCachedLocation(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "prefs.json")
	store := prefs.New(path)
	fake, client := startFakeAPI(t, "test-key-123456", http.StatusOK, natalResponse)
	srv := newTestServer(client, locale.English, store)

	first, _ := srv.callTool(context.Background(), "natal_chart", decodeArgs(t,
		`{"name":"Hanako Yamada","datetime":"1990-05-15T14:30:00","latitude":35.6762,"longitude":139.6503,"timezone":"Asia/Tokyo"}`))
	if first.IsError || first.Metadata == nil || first.Metadata.CachedParams {
		t.Fatalf("first call = %+v", first)
	}

	pref, ok := store.Get("hanako   yamada")
	if !ok || pref.Latitude == nil || *pref.Latitude != 35.6762 || pref.Timezone != "Asia/Tokyo" {
		t.Fatalf("preference not stored: %+v (ok=%v)", pref, ok)
	}

	second, _ := srv.callTool(context.Background(), "transits", decodeArgs(t,
		`{"name":"HANAKO YAMADA","datetime":"1990-05-15T14:30:00"}`))
	if second.IsError || second.Metadata == nil || !second.Metadata.CachedParams {
		t.Fatalf("second call = %+v", second)
	}

	requests := fake.Requests()
	if len(requests) != 2 {
		t.Fatalf("API requests = %d", len(requests))
	}
	body := requests[1].Body
	if requests[1].Path != "/api/v1/transits" {
		t.Fatalf("path = %s", requests[1].Path)
	}
	if body["latitude"] != 35.6762 || body["longitude"] != 139.6503 || body["timezone"] != "Asia/Tokyo" {
		t.Fatalf("cached location not applied: %v", body)
	}

	reloaded, err := prefs.Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if _, ok := reloaded.Get("Hanako Yamada"); !ok {
		t.Fatalf("preference not persisted to %s", path)
	}
}

func TestCallToolExplicitLatitudeSkipsCache(t *testing.T) {
	t.Parallel()

	store := prefs.New("")
	lat, lon := 35.0, 135.0
	if err := store.Set("Hanako", prefs.Preference{Latitude: &lat, Longitude: &lon, Timezone: "Asia/Tokyo"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	fake, client := startFakeAPI(t, "test-key-123456", http.StatusOK, natalResponse)
	srv := newTestServer(client, locale.English, store)

	result, _ := srv.callTool(context.Background(), "natal_chart", decodeArgs(t,
		`{"name":"Hanako","datetime":"1990-05-15T14:30:00","latitude":43.06,"longitude":141.35}`))
	if result.IsError || result.Metadata.CachedParams {
		t.Fatalf("result = %+v", result)
	}
	body := fake.Requests()[0].Body
	if body["latitude"] != 43.06 {
		t.Fatalf("explicit latitude overwritten: %v", body)
	}
	if _, ok := body["timezone"]; ok {
		t.Fatalf("cache must not fill when latitude is given: %v", body)
	}
}

func TestCallToolDoesNotCacheTestNames(t *testing.T) {
	t.Parallel()

	store := prefs.New("")
	_, client := startFakeAPI(t, "test-key-123456", http.StatusOK, natalResponse)
	srv := newTestServer(client, locale.English, store)

	result, _ := srv.callTool(context.Background(), "natal_chart", decodeArgs(t,
		`{"name":"Test User","datetime":"1990-05-15T14:30:00","location":"Osaka"}`))
	if result.IsError {
		t.Fatalf("result = %+v", result)
	}
	if entries := store.Entries(); len(entries) != 0 {
		t.Fatalf("test names must not be cached: %+v", entries)
	}
}

func TestCallToolRecordsUsage(t *testing.T) {
	t.Parallel()

	recorder, err := usage.Open(usage.Options{Driver: "sqlite", DBPath: filepath.Join(t.TempDir(), "usage.db"), TimeZone: "UTC"})
	if err != nil {
		t.Fatalf("usage.Open: %v", err)
	}
	defer recorder.Close()

	_, client := startFakeAPI(t, "test-key-123456", http.StatusOK, natalResponse)
	srv := newServer(serverDeps{API: client, Usage: recorder, Lang: locale.English, Logger: zerolog.Nop(), Version: "test"})

	ctx := context.Background()
	srv.callTool(ctx, "natal_chart", decodeArgs(t, `{"name":"Hanako","datetime":"1990-05-15T14:30:00","location":"Tokyo"}`))
	srv.callTool(ctx, "natal_chart", map[string]any{})

	now := time.Now().UTC()
	summary, err := recorder.Summary(now.Add(-48*time.Hour), now.Add(48*time.Hour), "")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary.Calls != 2 || summary.Success != 1 || summary.Failure != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if summary.Tools["natal_chart"] != 2 {
		t.Fatalf("tool counts = %v", summary.Tools)
	}
}

func TestErrorResultHints(t *testing.T) {
	t.Parallel()

	missingName := &params.ValidationError{
		Result: params.Result{Errors: []string{"名前が必要です"}, Missing: []string{"name"}},
		Lang:   locale.Japanese,
	}
	badSign := &params.ValidationError{
		Result: params.Result{Errors: []string{"Invalid sign: Ophiuchus. Valid signs: Aries"}},
		Lang:   locale.English,
	}

	cases := []struct {
		name string
		err  error
		lang locale.Lang
		want string
	}{
		{name: "plain", err: errors.New("boom"), lang: locale.English, want: "Error: boom"},
		{name: "authentication", err: api.ErrAuthentication, lang: locale.Japanese,
			want: "Error: API authentication failed. Please check your API key.\n\nヒント: APIキーを環境変数 YAOEPHEMERIS_API_KEY に設定してください。"},
		{name: "required", err: errors.New("purpose is required"), lang: locale.English,
			want: "Error: purpose is required\n\nHint: Please check required parameters. Example: name, datetime"},
		{name: "missing field japanese", err: missingName, lang: locale.Japanese,
			want: "Error: " + missingName.Error() + "\n\nヒント: 必須パラメータをご確認ください。例: name, datetime"},
		{name: "invalid value", err: badSign, lang: locale.English,
			want: "Error: " + badSign.Error()},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			result := errorResult(tc.err, tc.lang)
			if !result.IsError || resultText(result) != tc.want {
				t.Fatalf("errorResult = %q", resultText(result))
			}
		})
	}
}

func TestLoadToolArgs(t *testing.T) {
	t.Parallel()

	args, err := loadToolArgs(`{"latitude":35.6762,"name":"Hanako"}`, "")
	if err != nil {
		t.Fatalf("loadToolArgs: %v", err)
	}
	if _, ok := args["latitude"].(json.Number); !ok {
		t.Fatalf("numbers should stay json.Number, got %T", args["latitude"])
	}
	if empty, err := loadToolArgs("  ", ""); err != nil || len(empty) != 0 {
		t.Fatalf("blank args = %v, %v", empty, err)
	}
	if _, err := loadToolArgs(`[1,2]`, ""); err == nil {
		t.Fatalf("expected error for non-object args")
	}
	if _, err := loadToolArgs(`{}`, "args.json"); err == nil {
		t.Fatalf("expected error when both sources are given")
	}
}
