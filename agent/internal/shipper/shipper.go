package shipper

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"math/rand"
	"os"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/pulsewatch/pulsewatch/agent/internal/config"
	"github.com/pulsewatch/pulsewatch/pkg/logging"
	"github.com/pulsewatch/pulsewatch/pkg/rpc"
	"github.com/pulsewatch/pulsewatch/pkg/types"
)

const (
	backoffInitial    = 1 * time.Second
	backoffMax        = 60 * time.Second
	backoffMultiplier = 2.0
	sendTimeout       = 10 * time.Second
)

// Shipper buffers readings and ships them to pulsewatch-server via gRPC.
// Ship() is non-blocking; when the buffer is full the oldest reading is evicted.
// Run() must be called in a goroutine to drain the buffer and handle reconnection.
type Shipper struct {
	cfg    config.AgentConfig
	log    *zap.Logger
	buf    chan types.Reading
	dialFn dialFunc // injectable for tests
}

// dialFunc is the function signature used to open a gRPC connection.
// Abstracted so tests can inject an in-memory dialer.
type dialFunc func(ctx context.Context, endpoint string, cfg config.AgentConfig) (*grpc.ClientConn, error)

// New creates a Shipper using the given agent config.
func New(cfg config.AgentConfig, log *zap.Logger) *Shipper {
	return &Shipper{
		cfg:    cfg,
		log:    logging.OrNop(log),
		buf:    make(chan types.Reading, cfg.BufferSize),
		dialFn: defaultDial,
	}
}

// Ship enqueues r. If the buffer is full the oldest entry is evicted to make room.
func (s *Shipper) Ship(r types.Reading) {
	select {
	case s.buf <- r:
	default:
		select {
		case old := <-s.buf:
			s.log.Warn("shipper: buffer full, evicted oldest reading",
				zap.String("device", old.DeviceID), zap.Int("buffer_cap", cap(s.buf)))
		default:
		}
		// Another Ship may have refilled the slot; never block the poll loop.
		select {
		case s.buf <- r:
		default:
		}
	}
}

// Pending returns the number of buffered readings.
func (s *Shipper) Pending() int { return len(s.buf) }

// Run drains the buffer, sending readings to the server.
// It reconnects with exponential backoff when the connection is lost.
// Run blocks until ctx is cancelled.
func (s *Shipper) Run(ctx context.Context) {
	bo := newBackoff()

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := s.dialFn(ctx, s.cfg.ServerEndpoint, s.cfg)
		if err != nil {
			wait := bo.next()
			s.log.Error("shipper: dial failed, will retry",
				zap.String("endpoint", s.cfg.ServerEndpoint),
				zap.Error(err),
				zap.Duration("retry_in", wait))
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
				continue
			}
		}

		s.log.Info("shipper: connected", zap.String("endpoint", s.cfg.ServerEndpoint))
		bo.reset()

		err = s.drain(ctx, conn)
		conn.Close()

		if ctx.Err() != nil {
			return
		}

		wait := bo.next()
		s.log.Warn("shipper: connection lost, will reconnect",
			zap.String("endpoint", s.cfg.ServerEndpoint),
			zap.Error(err),
			zap.Duration("retry_in", wait))
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// drain reads from the buffer and sends readings until the connection fails
// or ctx is cancelled.
func (s *Shipper) drain(ctx context.Context, conn grpc.ClientConnInterface) error {
	client := rpc.NewIngestClient(conn)

	for {
		select {
		case <-ctx.Done():
			return nil

		case r := <-s.buf:
			sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
			resp, err := client.Ingest(sendCtx, &r)
			cancel()

			if err != nil {
				// A reading the server rejects will never be accepted.
				if isPermanentError(err) {
					s.log.Error("shipper: permanent send error, discarding reading",
						zap.String("device", r.DeviceID), zap.Error(err))
					continue
				}
				// Put the reading back if there's room; otherwise newer data wins.
				select {
				case s.buf <- r:
				default:
				}
				return fmt.Errorf("send: %w", err)
			}

			s.log.Debug("shipper: reading delivered",
				zap.String("device", r.DeviceID),
				zap.String("sample_id", resp.Sample.ID),
				zap.Int("alerts", len(resp.Alerts)))
		}
	}
}

// isPermanentError returns true for gRPC errors that indicate the reading
// itself is invalid and should not be retried.
func isPermanentError(err error) bool {
	switch status.Code(err) {
	case codes.InvalidArgument, codes.Unauthenticated, codes.PermissionDenied:
		return true
	}
	return false
}

// defaultDial opens a gRPC connection to endpoint with transport security from cfg.
func defaultDial(ctx context.Context, endpoint string, cfg config.AgentConfig) (*grpc.ClientConn, error) {
	opts, err := dialOptions(cfg)
	if err != nil {
		return nil, err
	}
	return grpc.DialContext(ctx, endpoint, opts...) //nolint:staticcheck // deprecated in 1.63 but DialContext is used for compat
}

// dialOptions builds grpc.DialOption slice based on the server TLS config.
func dialOptions(cfg config.AgentConfig) ([]grpc.DialOption, error) {
	if !cfg.ServerTLS.Enabled {
		return []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, nil
	}
	creds, err := buildTLSCreds(cfg.ServerTLS)
	if err != nil {
		return nil, fmt.Errorf("shipper: build tls creds: %w", err)
	}
	return []grpc.DialOption{grpc.WithTransportCredentials(creds)}, nil
}

// buildTLSCreds loads the optional client certificate and CA.
func buildTLSCreds(c config.ServerTLSConfig) (credentials.TransportCredentials, error) {
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}

	if c.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client cert: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}

	if c.CAFile != "" {
		caPEM, err := os.ReadFile(c.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("no valid certs in ca file %q", c.CAFile)
		}
		tlsCfg.RootCAs = pool
	}

	return credentials.NewTLS(tlsCfg), nil
}

// backoff implements truncated exponential backoff with jitter.
type backoff struct {
	current time.Duration
}

func newBackoff() *backoff {
	return &backoff{current: backoffInitial}
}

// next returns the current backoff duration and advances the internal state.
func (b *backoff) next() time.Duration {
	d := b.current
	// Apply ±25 % jitter.
	jitter := time.Duration(float64(b.current) * 0.25 * (rand.Float64()*2 - 1)) //nolint:gosec // not crypto
	d += jitter
	if d < 0 {
		d = 0
	}

	b.current = time.Duration(float64(b.current) * backoffMultiplier)
	if b.current > backoffMax {
		b.current = backoffMax
	}
	return d
}

func (b *backoff) reset() {
	b.current = backoffInitial
}
