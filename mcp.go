package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/yaosenjutsu/yaoephemeris-mcp/internal/locale"
	"github.com/yaosenjutsu/yaoephemeris-mcp/internal/output"
	"github.com/yaosenjutsu/yaoephemeris-mcp/internal/prefs"
	"github.com/yaosenjutsu/yaoephemeris-mcp/internal/tools"
	"github.com/yaosenjutsu/yaoephemeris-mcp/internal/usage"
)

const (
	mcpProtocolVersion = "2025-06-18"
	serverName         = "yaoephemeris-mcp"
	similarToolLimit   = 5
	rawLogLimit        = 200
)

const (
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternal       = -32603
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// isNotification reports whether the request carried no id member.
func (r rpcRequest) isNotification() bool {
	return len(r.ID) == 0
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *rpcError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message == "" {
		return fmt.Sprintf("rpc error %d", e.Code)
	}
	return e.Message
}

type toolCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type contentItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type callMetadata struct {
	DurationMs   int64  `json:"duration_ms"`
	Format       string `json:"format"`
	CachedParams bool   `json:"cached_params"`
}

type toolResult struct {
	Content  []contentItem `json:"content"`
	Metadata *callMetadata `json:"metadata,omitempty"`
	IsError  bool          `json:"isError,omitempty"`
}

// server is the stdio bridge. One instance owns the registry, the API
// caller, the preference cache and the usage recorder for the process.
type server struct {
	registry  *tools.Registry
	api       apiCaller
	prefs     *prefs.Store
	formatter *output.Formatter
	usage     *usage.Recorder
	lang      locale.Lang
	log       zerolog.Logger
	version   string

	writeMu sync.Mutex
	out     io.Writer
	closed  bool
	fatal   chan error

	calls sync.WaitGroup
}

type serverDeps struct {
	API       apiCaller
	Prefs     *prefs.Store
	Formatter *output.Formatter
	Usage     *usage.Recorder
	Lang      locale.Lang
	Logger    zerolog.Logger
	Version   string
}

func newServer(deps serverDeps) *server {
	store := deps.Prefs
	if store == nil {
		store = prefs.New("")
	}
	formatter := deps.Formatter
	if formatter == nil {
		formatter = output.NewFormatter(deps.Lang, output.ModeCompact)
	}
	return &server{
		registry:  tools.NewRegistry(deps.Lang),
		api:       deps.API,
		prefs:     store,
		formatter: formatter,
		usage:     deps.Usage,
		lang:      deps.Lang,
		log:       deps.Logger,
		version:   deps.Version,
		fatal:     make(chan error, 1),
	}
}

type readResult struct {
	line []byte
	err  error
}

// Serve reads newline-delimited JSON-RPC messages from r and writes
// responses to w until ctx is done, r reaches EOF or a shutdown request has
// been answered. tools/call requests run concurrently; at EOF Serve waits
// for them, on cancellation or shutdown it does not.
func (s *server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.writeMu.Lock()
	s.out = w
	s.closed = false
	s.writeMu.Unlock()
	defer s.close()

	lines := make(chan readResult)
	go readLines(ctx, r, lines)

	for {
		select {
		case <-ctx.Done():
			s.log.Debug().Msg("context done, stopping")
			return nil
		case err := <-s.fatal:
			return err
		case res, ok := <-lines:
			if !ok {
				s.log.Debug().Msg("stdin closed, waiting for in-flight calls")
				s.calls.Wait()
				select {
				case err := <-s.fatal:
					return err
				default:
				}
				return nil
			}
			if res.err != nil {
				s.calls.Wait()
				return fmt.Errorf("read input: %w", res.err)
			}
			stop, err := s.handleLine(ctx, res.line)
			if err != nil {
				return err
			}
			if stop {
				return nil
			}
		}
	}
}

func readLines(ctx context.Context, r io.Reader, out chan<- readResult) {
	defer close(out)
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			select {
			case out <- readResult{line: line}:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				select {
				case out <- readResult{err: err}:
				case <-ctx.Done():
				}
			}
			return
		}
	}
}

func (s *server) close() {
	s.writeMu.Lock()
	s.closed = true
	s.writeMu.Unlock()
}

// handleLine processes one input line. It reports stop after a shutdown
// request was answered.
func (s *server) handleLine(ctx context.Context, line []byte) (bool, error) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		return false, nil
	}

	var req rpcRequest
	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()
	if err := decoder.Decode(&req); err != nil {
		s.log.Error().Err(err).Str("raw", truncate(string(trimmed), rawLogLimit)).Msg("failed to parse message")
		return false, nil
	}

	s.log.Debug().Str("method", req.Method).RawJSON("id", idForLog(req.ID)).Msg("received")

	if req.Method == "" {
		if req.isNotification() {
			s.log.Warn().Msg("ignoring message without method or id")
			return false, nil
		}
		return false, s.writeError(req.ID, &rpcError{Code: codeInvalidRequest, Message: "Invalid Request: missing method"})
	}

	switch req.Method {
	case "initialize":
		return false, s.reply(req, map[string]any{
			"protocolVersion": mcpProtocolVersion,
			"serverInfo": map[string]any{
				"name":    serverName,
				"version": s.version,
			},
			"capabilities": map[string]any{
				"tools": map[string]any{},
			},
		})
	case "tools/list":
		return false, s.reply(req, map[string]any{"tools": s.registry.List()})
	case "tools/call":
		s.startToolCall(ctx, req)
		return false, nil
	case "resources/list":
		return false, s.reply(req, map[string]any{"resources": []any{}})
	case "prompts/list":
		return false, s.reply(req, map[string]any{"prompts": []any{}})
	case "ping":
		return false, s.reply(req, map[string]any{})
	case "shutdown":
		s.log.Debug().Msg("shutdown requested")
		return true, s.reply(req, nil)
	default:
		if req.isNotification() {
			s.log.Debug().Str("method", req.Method).Msg("ignored notification")
			return false, nil
		}
		s.log.Debug().Str("method", req.Method).Msg("unknown method")
		return false, s.writeError(req.ID, &rpcError{Code: codeMethodNotFound, Message: "Method not found: " + req.Method})
	}
}

// startToolCall runs one tools/call in its own goroutine. Protocol-level
// failures become JSON-RPC errors; everything else is a tool result.
func (s *server) startToolCall(ctx context.Context, req rpcRequest) {
	var params toolCallParams
	if len(req.Params) > 0 {
		decoder := json.NewDecoder(bytes.NewReader(req.Params))
		decoder.UseNumber()
		if err := decoder.Decode(&params); err != nil {
			s.sendError(req, &rpcError{Code: codeInvalidParams, Message: "invalid tool call params"})
			return
		}
	}
	if strings.TrimSpace(params.Name) == "" {
		s.sendError(req, &rpcError{Code: codeInvalidParams, Message: "tool name required"})
		return
	}
	if params.Arguments == nil {
		params.Arguments = map[string]any{}
	}

	s.calls.Add(1)
	go func() {
		defer s.calls.Done()
		result, rpcErr := s.callTool(ctx, params.Name, params.Arguments)
		if rpcErr != nil {
			s.sendError(req, rpcErr)
			return
		}
		if err := s.reply(req, result); err != nil {
			s.reportFatal(err)
		}
	}()
}

func (s *server) sendError(req rpcRequest, rpcErr *rpcError) {
	if req.isNotification() {
		return
	}
	if err := s.writeError(req.ID, rpcErr); err != nil {
		s.reportFatal(err)
	}
}

func (s *server) reportFatal(err error) {
	select {
	case s.fatal <- err:
	default:
	}
}

// reply writes a result for req unless req is a notification.
func (s *server) reply(req rpcRequest, result any) error {
	if req.isNotification() {
		return nil
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		return s.writeError(req.ID, &rpcError{Code: codeInternal, Message: err.Error()})
	}
	return s.write(rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: encoded})
}

func (s *server) writeError(id json.RawMessage, rpcErr *rpcError) error {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	return s.write(rpcResponse{JSONRPC: "2.0", ID: id, Error: rpcErr})
}

// write emits one response line. Lines from concurrent calls never
// interleave. Writes after Serve returned are dropped.
func (s *server) write(resp rpcResponse) error {
	encoded, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	encoded = append(encoded, '\n')

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed || s.out == nil {
		return nil
	}
	if _, err := s.out.Write(encoded); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	return nil
}

func idForLog(id json.RawMessage) []byte {
	if len(id) == 0 {
		return []byte("null")
	}
	return id
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit]) + "..."
}
