package rpc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

const (
	maxLineSize   = 16 << 20
	outboxSize    = 64
	readBufferLen = 64 << 10
)

// ErrClosed is returned by Notify once Serve has finished.
var ErrClosed = errors.New("rpc: server closed")

// Handler executes a single method call.
type Handler interface {
	Handle(ctx context.Context, method string, params json.RawMessage) (any, error)
}

// Server reads requests line by line, dispatches them one at a time in
// arrival order and writes each response as one line.
type Server struct {
	handler Handler
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
	out    chan []byte
}

// NewServer creates a server dispatching to h. A Server serves once.
func NewServer(h Handler, logger *slog.Logger) *Server {
	return &Server{
		handler: h,
		logger:  logger,
		out:     make(chan []byte, outboxSize),
	}
}

// Serve processes requests from r until r is exhausted or ctx is cancelled,
// then flushes pending output to w. A read blocked on r is abandoned on
// cancellation.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	in := make(chan inbound)
	readErr := make(chan error, 1)
	go s.readLoop(ctx, r, in, readErr)

	s.logger.Info("rpc: serving")

	var g errgroup.Group
	g.Go(func() error { return s.writeLoop(w) })
	g.Go(func() error {
		defer s.closeOutbox()
		return s.dispatchLoop(ctx, in, readErr)
	})
	err := g.Wait()

	s.logger.Info("rpc: stopped")
	return err
}

// Notify queues a server-initiated notification.
func (s *Server) Notify(ctx context.Context, method string, params any) error {
	msg, err := json.Marshal(Notification{JSONRPC: Version, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("rpc: encode notification: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	select {
	case s.out <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) closeOutbox() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.out)
	}
}

// inbound is one request line. Oversized lines arrive with tooLong set and
// no content.
type inbound struct {
	line    []byte
	tooLong bool
}

func (s *Server) readLoop(ctx context.Context, r io.Reader, in chan<- inbound, readErr chan<- error) {
	defer close(in)
	br := bufio.NewReaderSize(r, readBufferLen)
	for {
		line, tooLong, err := readLine(br, maxLineSize)
		line = bytes.TrimSpace(line)
		if tooLong || len(line) > 0 {
			select {
			case in <- inbound{line: line, tooLong: tooLong}:
			case <-ctx.Done():
				return
			}
		}
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			readErr <- fmt.Errorf("rpc: read: %w", err)
			return
		}
	}
}

// readLine reads up to the next newline. Past limit bytes the rest of the
// line is consumed and dropped, and tooLong is reported.
func readLine(br *bufio.Reader, limit int) ([]byte, bool, error) {
	var line []byte
	tooLong := false
	for {
		chunk, err := br.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(bytes.TrimSuffix(chunk, []byte{'\n'})) > limit {
				tooLong = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return line, tooLong, err
	}
}

func (s *Server) dispatchLoop(ctx context.Context, in <-chan inbound, readErr <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-in:
			if !ok {
				select {
				case err := <-readErr:
					return err
				default:
					s.logger.Info("rpc: input closed")
					return nil
				}
			}
			var resp *Response
			if msg.tooLong {
				s.logger.Warn("rpc: request too large", slog.Int("limit", maxLineSize))
				resp = errorResponse(nullID, NewError(CodeInvalidRequest, "request exceeds %d bytes", maxLineSize))
			} else {
				resp = s.handleLine(ctx, msg.line)
			}
			if resp == nil {
				continue
			}
			out, err := json.Marshal(resp)
			if err != nil {
				s.logger.Error("rpc: encode response", slog.String("error", err.Error()))
				continue
			}
			s.out <- out
		}
	}
}

// writeLoop drains the outbox. After a write failure remaining messages are
// discarded so producers never block.
func (s *Server) writeLoop(w io.Writer) error {
	bw := bufio.NewWriter(w)
	var werr error
	for msg := range s.out {
		if werr != nil {
			continue
		}
		if _, err := bw.Write(msg); err != nil {
			werr = err
			continue
		}
		if err := bw.WriteByte('\n'); err != nil {
			werr = err
			continue
		}
		if err := bw.Flush(); err != nil {
			werr = err
		}
	}
	if werr != nil {
		return fmt.Errorf("rpc: write: %w", werr)
	}
	return nil
}

// handleLine processes one raw line and returns the response to send, or nil
// when nothing is owed to the client.
func (s *Server) handleLine(ctx context.Context, line []byte) *Response {
	if !json.Valid(line) {
		s.logger.Warn("rpc: malformed JSON", slog.Int("bytes", len(line)))
		return errorResponse(nullID, NewError(CodeParseError, "parse error"))
	}

	// The id is decoded on its own so a malformed member still gets an
	// answer the caller can correlate.
	var envelope struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(line, &envelope); err != nil {
		return errorResponse(nullID, NewError(CodeInvalidRequest, "invalid request: %v", err))
	}

	req := Request{ID: envelope.ID}
	if err := json.Unmarshal(line, &req); err != nil {
		return s.reject(req, NewError(CodeInvalidRequest, "invalid request: %v", err))
	}
	if req.JSONRPC != Version {
		return s.reject(req, NewError(CodeInvalidRequest, `jsonrpc field must be "2.0"`))
	}
	if req.Method == "" {
		return s.reject(req, NewError(CodeInvalidRequest, "method is required"))
	}

	s.logger.Debug("rpc: request", slog.String("method", req.Method), slog.Bool("notification", req.IsNotification()))

	result, err := s.handler.Handle(ctx, req.Method, req.Params)
	if req.IsNotification() {
		if err != nil {
			s.logger.Warn("rpc: notification failed",
				slog.String("method", req.Method),
				slog.String("error", err.Error()))
		}
		return nil
	}
	if err != nil {
		rerr := toError(err)
		if rerr.Code == CodeServerError || rerr.Code == CodeInternalError {
			s.logger.Error("rpc: method failed",
				slog.String("method", req.Method),
				slog.String("error", err.Error()))
		}
		return errorResponse(req.ID, rerr)
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return errorResponse(req.ID, NewError(CodeInternalError, "encode result: %v", err))
	}
	return &Response{JSONRPC: Version, ID: req.ID, Result: raw}
}

// reject answers an invalid request. Notifications are only logged.
func (s *Server) reject(req Request, rerr *Error) *Response {
	if req.IsNotification() {
		s.logger.Warn("rpc: invalid notification dropped", slog.String("error", rerr.Message))
		return nil
	}
	return errorResponse(req.ID, rerr)
}
