package jsonline

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/orneryd/urddb/pkg/pool"
)

// Config holds protocol server configuration.
//
// All settings have sensible defaults via DefaultConfig().
//
// Example:
//
//	// Production configuration
//	config := &jsonline.Config{
//		Host:            "0.0.0.0",
//		Port:            9999,
//		MaxLineSize:     1 << 20, // 1 MiB request cap
//		MaxConnections:  500,
//		ReadBufferSize:  32768,
//		WriteBufferSize: 32768,
//	}
//
//	// Development configuration
//	config = jsonline.DefaultConfig()
type Config struct {
	Host            string
	Port            int
	MaxLineSize     int // longest accepted request line, in bytes
	MaxConnections  int
	ReadBufferSize  int
	WriteBufferSize int

	// Logger receives connection lifecycle events. nil uses the logrus
	// standard logger.
	Logger *logrus.Logger
}

// DefaultConfig returns the default protocol server configuration:
// 127.0.0.1:9999, 1 MiB line cap, 100 connections, 8KB buffers.
func DefaultConfig() *Config {
	return &Config{
		Host:            "127.0.0.1",
		Port:            9999,
		MaxLineSize:     1 << 20,
		MaxConnections:  100,
		ReadBufferSize:  8192,
		WriteBufferSize: 8192,
	}
}

// Server accepts TCP connections and serves the newline-JSON protocol.
//
// Each connection is handled by its own goroutine running a synchronous
// read-dispatch-write loop: one JSON line in, one JSON line out. The server
// holds no per-connection state beyond the socket itself, so clients are
// free to pipeline commands or reconnect per command.
//
// Example:
//
//	db, _ := urddb.Open(config.Default())
//	server := jsonline.New(jsonline.DefaultConfig(), jsonline.NewDispatcher(db))
//
//	// Start server (blocks until Close)
//	if err := server.ListenAndServe(); err != nil {
//		log.Fatal(err)
//	}
//
// Thread Safety:
//
//	The server is safe for concurrent connections; all shared state lives
//	behind the Executor.
type Server struct {
	config     *Config
	dispatcher *Dispatcher
	log        *logrus.Logger

	listener net.Listener
	closed   atomic.Bool
	active   atomic.Int64
}

// New creates a protocol server with the given configuration and
// dispatcher. A nil config uses DefaultConfig().
func New(config *Config, dispatcher *Dispatcher) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	log := config.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{
		config:     config,
		dispatcher: dispatcher,
		log:        log,
	}
}

// ListenAndServe binds the configured address and accepts connections until
// Close. Returns nil on clean shutdown.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.listener = listener

	s.log.WithField("addr", listener.Addr().String()).Info("urddb listening")
	return s.serve()
}

// Addr returns the bound listener address, or nil before ListenAndServe.
// Useful with Port 0 in tests.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// serve accepts connections in a loop.
func (s *Server) serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closed.Load() {
				return nil // Clean shutdown
			}
			s.log.WithError(err).Debug("accept failed")
			continue
		}

		if s.config.MaxConnections > 0 && s.active.Load() >= int64(s.config.MaxConnections) {
			s.log.WithField("remote", conn.RemoteAddr().String()).
				Warn("connection limit reached, rejecting")
			conn.Close()
			continue
		}

		s.active.Add(1)
		go func() {
			defer s.active.Add(-1)
			s.handleConnection(conn)
		}()
	}
}

// Close stops accepting connections. In-flight handlers finish their
// current command; their next read fails when the client hangs up.
func (s *Server) Close() error {
	s.closed.Store(true)
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

// ActiveConnections returns the number of connections currently served.
func (s *Server) ActiveConnections() int64 {
	return s.active.Load()
}

// handleConnection runs the read-dispatch-write loop for one client.
//
// Framing failures (a line that is not valid JSON, a line over the cap, or
// any socket error) terminate the connection without a reply, per the
// protocol contract. Failures inside a well-framed command come back as
// Error responses and the loop continues.
func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	// Disable Nagle's algorithm: replies are single small lines and the
	// strategy clients poll on tight cadences.
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetNoDelay(true)
	}

	// A panicking handler must not take the server down with it.
	defer func() {
		if r := recover(); r != nil {
			s.log.WithField("panic", r).Error("recovered from panic in connection handler")
		}
	}()

	remote := conn.RemoteAddr().String()
	s.log.WithField("remote", remote).Debug("connection opened")

	scanner := bufio.NewScanner(bufio.NewReaderSize(conn, s.config.ReadBufferSize))
	// bufio.Scanner caps tokens at the larger of max and the initial buffer's
	// capacity, so the initial buffer must not exceed MaxLineSize.
	bufSize := s.config.ReadBufferSize
	if bufSize > s.config.MaxLineSize {
		bufSize = s.config.MaxLineSize
	}
	scanner.Buffer(make([]byte, 0, bufSize), s.config.MaxLineSize)
	writer := bufio.NewWriterSize(conn, s.config.WriteBufferSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.log.WithField("remote", remote).WithError(err).
				Debug("malformed request line, closing connection")
			return
		}

		resp := s.dispatcher.Dispatch(&req)
		if err := s.writeResponse(writer, resp); err != nil {
			s.log.WithField("remote", remote).WithError(err).
				Debug("write failed, closing connection")
			return
		}
	}

	if err := scanner.Err(); err != nil {
		// Includes bufio.ErrTooLong for lines over MaxLineSize.
		s.log.WithField("remote", remote).WithError(err).Debug("read failed")
	}
	s.log.WithField("remote", remote).Debug("connection closed")
}

// writeResponse frames one response as a single line and flushes it, so the
// reply leaves in one segment whenever it fits the socket buffer.
func (s *Server) writeResponse(writer *bufio.Writer, resp *Response) error {
	encoded, err := json.Marshal(resp)
	if err != nil {
		// Marshaling our own payload types cannot fail with well-formed
		// float64s; anything here is a server bug worth surfacing.
		encoded, _ = json.Marshal(errorResponse(KindInternal, "response encoding failed"))
	}

	buf := pool.GetByteBuffer()
	defer pool.PutByteBuffer(buf)
	buf = append(buf, encoded...)
	buf = append(buf, '\n')

	if _, err := writer.Write(buf); err != nil {
		return err
	}
	return writer.Flush()
}
