package proxy

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/spyglass-proxy/spyglass/internal/httpwire"
	"github.com/spyglass-proxy/spyglass/internal/metrics"
	"github.com/spyglass-proxy/spyglass/internal/reqlog"
	"github.com/spyglass-proxy/spyglass/internal/upstream"
)

// Server accepts client connections and proxies one request per connection:
// non-CONNECT requests go out through the upstream client and come back
// through the response builder; CONNECT requests become opaque tunnels.
type Server struct {
	ctx     context.Context
	cfg     Config
	client  *upstream.Client
	reqlog  *reqlog.Logger
	m       *metrics.Metrics
	logger  *slog.Logger
	limiter *rate.Limiter
}

func NewServer(ctx context.Context, cfg Config, client *upstream.Client, rl *reqlog.Logger, m *metrics.Metrics, logger *slog.Logger) *Server {
	if ctx == nil {
		ctx = context.Background()
	}
	s := &Server{
		ctx:    ctx,
		cfg:    cfg,
		client: client,
		reqlog: rl,
		m:      m,
		logger: logger,
	}
	if cfg.AcceptRate > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.AcceptRate), 1)
	}
	return s
}

// Serve accepts connections on ln until ln is closed or the server context
// is canceled. Each connection is handled by its own goroutine; a failure
// on one connection never affects the others or the listener.
func (s *Server) Serve(ln net.Listener) error {
	for {
		if s.limiter != nil {
			if err := s.limiter.Wait(s.ctx); err != nil {
				return nil
			}
		}

		c, err := ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		s.m.ConnectionsTotal.Inc()
		go func() {
			defer c.Close()
			if err := s.handle(c); err != nil {
				s.logger.Debug("connection finished with error",
					"client", c.RemoteAddr().String(), "err", err)
			}
		}()
	}
}

func (s *Server) handle(c net.Conn) error {
	raw, err := readRequestBytes(c, s.cfg.ReceiveTimeout)
	if err != nil {
		// Timed out or broke mid-receive: the request is absent.
		return err
	}
	if len(raw) == 0 {
		return nil
	}

	req, err := httpwire.ParseRequest(raw)
	if err != nil {
		s.writeResponse(c, httpwire.BuildError(400, "Bad Request: Unable to parse request"))
		s.countRequest("other", 400)
		return err
	}

	if strings.EqualFold(req.Method, "CONNECT") {
		return s.handleConnect(c, req)
	}
	return s.handleHTTP(c, req)
}

func (s *Server) handleHTTP(c net.Conn, req *httpwire.Request) error {
	start := time.Now()
	method := metrics.NormalizeMethod(req.Method)
	defer func() {
		s.m.RequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	}()

	if req.Host == "" {
		s.writeResponse(c, httpwire.BuildError(400, "Bad Request: No Host header"))
		s.countRequest(method, 400)
		return nil
	}

	s.reqlog.Log(reqlog.FromRequest(req, c.RemoteAddr().String()))

	reply, err := s.client.Do(s.ctx, req)
	if err != nil {
		var ue *upstream.Error
		if errors.As(err, &ue) {
			s.writeResponse(c, httpwire.BuildError(ue.StatusCode(), ue.Message()))
			s.countRequest(method, ue.StatusCode())
			return nil
		}
		// Unexpected fault in forwarding or framing.
		s.writeResponse(c, httpwire.BuildError(500, "Internal Server Error: "+err.Error()))
		s.countRequest(method, 500)
		return err
	}

	s.writeResponse(c, httpwire.BuildResponse(reply))
	s.countRequest(method, reply.StatusCode)
	return nil
}

func (s *Server) handleConnect(c net.Conn, req *httpwire.Request) error {
	t := NewTunnel(c, s.cfg.Dialer, s.m)
	t.Established = func(target string) {
		rec := reqlog.FromRequest(req, c.RemoteAddr().String())
		rec.TargetHost = target
		established := true
		rec.TunnelEstablished = &established
		s.reqlog.Log(rec)

		s.m.TunnelsEstablished.Inc()
		s.countRequest("CONNECT", 200)
		s.logger.Info("tunnel established",
			"target", target, "client", c.RemoteAddr().String())
	}

	err := t.Run(s.ctx, req.Target)

	var te *TunnelError
	if errors.As(err, &te) {
		s.writeResponse(c, httpwire.BuildError(te.Code, te.Message))
		s.countRequest("CONNECT", te.Code)
		return err
	}
	return err
}

// writeResponse writes the full payload; net.Conn.Write blocks until
// everything is written or the connection breaks, which is fatal for this
// connection only.
func (s *Server) writeResponse(c net.Conn, b []byte) {
	if _, err := c.Write(b); err != nil {
		s.logger.Debug("response write failed",
			"client", c.RemoteAddr().String(), "err", err)
	}
}

func (s *Server) countRequest(method string, status int) {
	s.m.RequestsTotal.WithLabelValues(method, metrics.StatusLabel(status)).Inc()
}
