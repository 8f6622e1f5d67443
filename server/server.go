// Package server exposes a mediator over TCP. Clients send one JSON request
// per line and receive one JSON response per line on the same connection.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/ipfs/go-datastore"
	logging "github.com/ipfs/go-log/v2"
	"github.com/votqanh/go-wikimediator/apierror"
	"github.com/votqanh/go-wikimediator/mediator"
	"github.com/votqanh/go-wikimediator/statestore"
)

var log = logging.Logger("server")

const (
	overflowMessage = "Client overflow"
	timeoutMessage  = "Operation timed out"
	stopMessage     = "bye"

	maxRequestSize = 1 << 20
)

// ErrOverflow is reported for requests received while the server is already
// serving its maximum number of connections.
var ErrOverflow = apierror.Unavailable(errors.New(overflowMessage))

// Server serves mediator requests.
type Server struct {
	cancel      context.CancelFunc
	closing     chan struct{}
	closeOnce   sync.Once
	closeErr    error
	clients     atomic.Int32
	conns       map[net.Conn]struct{}
	connsMu     sync.Mutex
	ctx         context.Context
	ds          datastore.Batching
	idleTimeout time.Duration
	listener    net.Listener
	maxClients  int
	med         *mediator.Mediator
	wg          sync.WaitGroup
}

// New creates a server listening on addr. If a datastore is configured and
// holds saved state, that state is loaded into med.
func New(addr string, med *mediator.Mediator, options ...Option) (*Server, error) {
	if med == nil {
		return nil, errors.New("nil mediator")
	}
	opts, err := getOpts(options)
	if err != nil {
		return nil, err
	}

	if opts.ds != nil {
		st, ok, err := statestore.Load(context.Background(), opts.ds)
		if err != nil {
			if !ok {
				return nil, fmt.Errorf("cannot load state: %w", err)
			}
			log.Errorw("Some saved state could not be loaded", "err", err)
		}
		if ok {
			if err = med.LoadState(st); err != nil {
				return nil, fmt.Errorf("cannot restore state: %w", err)
			}
		}
	}

	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cancel:      cancel,
		closing:     make(chan struct{}),
		conns:       make(map[net.Conn]struct{}),
		ctx:         ctx,
		ds:          opts.ds,
		idleTimeout: opts.idleTimeout,
		listener:    l,
		maxClients:  opts.maxClients,
		med:         med,
	}, nil
}

// Addr returns the address the server listens on.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Done returns a channel that is closed when the server stops accepting
// connections, either because of a stop request or a call to Close.
func (s *Server) Done() <-chan struct{} {
	return s.closing
}

// Serve accepts connections until the server is stopped. It returns nil when
// stopped by a stop request or Close.
func (s *Server) Serve() error {
	log.Infow("Server started", "addr", s.listener.Addr().String(), "maxClients", s.maxClients)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closing:
				s.closeConns()
				s.wg.Wait()
				log.Info("Server stopped")
				return nil
			default:
			}
			return err
		}
		if !s.track(conn) {
			conn.Close()
			continue
		}
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.handle(conn)
		}()
	}
}

// Close stops the server, closes all connections and waits for their
// handlers to return.
func (s *Server) Close() error {
	s.shutdown()
	err := multierror.Append(s.closeErr, s.closeConns())
	s.wg.Wait()
	return err.ErrorOrNil()
}

func (s *Server) shutdown() {
	s.closeOnce.Do(func() {
		s.connsMu.Lock()
		close(s.closing)
		s.connsMu.Unlock()
		s.cancel()
		s.closeErr = s.listener.Close()
	})
}

func (s *Server) track(conn net.Conn) bool {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	select {
	case <-s.closing:
		return false
	default:
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.connsMu.Lock()
	delete(s.conns, conn)
	s.connsMu.Unlock()
}

func (s *Server) closeConns() error {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()

	var errs error
	for conn := range s.conns {
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = multierror.Append(errs, err)
		}
	}
	return errs
}

// handle serves requests on one connection until the client closes it, the
// connection goes idle, or the server stops. A connection over the client
// limit gets one overflow response and is closed.
func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	overflow := int(s.clients.Add(1)) > s.maxClients
	defer s.clients.Add(-1)

	remote := conn.RemoteAddr().String()
	log.Debugw("Client connected", "remote", remote, "overflow", overflow)

	r := bufio.NewReaderSize(conn, 4096)
	enc := json.NewEncoder(conn)
	for {
		if s.idleTimeout != 0 {
			conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
		}
		line, err := readLine(r)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Debugw("Closing connection", "remote", remote, "err", err)
			}
			return
		}
		if len(line) == 0 {
			continue
		}

		var req Request
		var resp *Response
		stop := false
		if err = json.Unmarshal(line, &req); err != nil {
			resp = failed("", fmt.Sprintf("invalid request: %s", err))
		} else if overflow {
			log.Warnw("Rejected request", "id", req.ID, "type", req.Type, "err", ErrOverflow)
			resp = failed(req.ID, overflowMessage)
		} else {
			resp, stop = s.dispatch(req)
		}

		if err = enc.Encode(resp); err != nil {
			log.Warnw("Cannot write response", "remote", remote, "id", resp.ID, "err", err)
			return
		}
		if stop {
			s.stop()
			return
		}
		if overflow {
			return
		}
	}
}

// dispatch runs one request and builds its response. It returns true if the
// request was a stop request.
func (s *Server) dispatch(req Request) (*Response, bool) {
	op, err := parse(req)
	if err != nil {
		return failed(req.ID, err.Error()), false
	}
	if _, ok := op.(stopOp); ok {
		return &Response{ID: req.ID, Response: json.RawMessage(`"` + stopMessage + `"`)}, true
	}

	ctx := s.ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, seconds(req.Timeout))
		defer cancel()
	}

	type result struct {
		value any
		err   error
	}
	resCh := make(chan result, 1)
	go func() {
		v, err := execute(ctx, s.med, op)
		resCh <- result{v, err}
	}()

	select {
	case res := <-resCh:
		if res.err != nil {
			if apierror.StatusOf(res.err) == http.StatusGatewayTimeout {
				return failed(req.ID, timeoutMessage), false
			}
			return failed(req.ID, res.err.Error()), false
		}
		return newResponse(req.ID, StatusSuccess, res.value), false
	case <-ctx.Done():
		// The operation keeps running until it notices the canceled context.
		log.Infow("Request timed out", "id", req.ID, "type", req.Type, "timeout", req.Timeout)
		return failed(req.ID, timeoutMessage), false
	}
}

// stop saves mediator state, if there is somewhere to save it, and shuts the
// server down.
func (s *Server) stop() {
	log.Info("Stop requested")
	if s.ds != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := statestore.Save(ctx, s.ds, s.med.State()); err != nil {
			log.Errorw("Cannot save state", "err", err)
		}
	}
	s.shutdown()
}

// readLine reads one newline terminated line, without the newline.
func readLine(r *bufio.Reader) ([]byte, error) {
	var line []byte
	for {
		chunk, isPrefix, err := r.ReadLine()
		if err != nil {
			return nil, err
		}
		line = append(line, chunk...)
		if len(line) > maxRequestSize {
			return nil, fmt.Errorf("request exceeds %d bytes", maxRequestSize)
		}
		if !isPrefix {
			return line, nil
		}
	}
}
