package remote

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/delmic/odemis-sub003/config"
	"github.com/delmic/odemis-sub003/errors"
	"github.com/delmic/odemis-sub003/metric"
	"github.com/delmic/odemis-sub003/pkg/retry"
)

// ConnectionStatus represents the state of the NATS connection
type ConnectionStatus int

// Possible connection statuses
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
)

// String returns the string representation of ConnectionStatus
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// defaultSubjectPrefix namespaces channel identifiers on the wire.
const defaultSubjectPrefix = "odemis.channel"

// NATSTransport implements Transport over a NATS connection. Channel
// identifiers are mapped onto subjects under a configurable prefix; delivery
// is plain fire-and-forget pub/sub, matching the substrate's bounded
// staleness model.
type NATSTransport struct {
	cfg           config.NATSConfig
	subjectPrefix string
	forwardBound  int
	clientName    string
	logger        *slog.Logger
	metrics       *metric.Metrics

	status     atomic.Value // stores ConnectionStatus
	failures   atomic.Int32
	reconnects atomic.Int32
	closed     atomic.Bool

	mu   sync.RWMutex
	conn *nats.Conn
}

// NATSOption configures a NATSTransport.
type NATSOption func(*NATSTransport)

// WithNATSLogger sets the transport logger. Defaults to slog.Default().
func WithNATSLogger(logger *slog.Logger) NATSOption {
	return func(t *NATSTransport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithSubjectPrefix overrides the subject prefix channel identifiers are
// published under.
func WithSubjectPrefix(prefix string) NATSOption {
	return func(t *NATSTransport) {
		if prefix != "" {
			t.subjectPrefix = prefix
		}
	}
}

// WithForwardBacklog sets the discard bound applied to payloads forwarded to
// a slow local consumer (0 keeps everything).
func WithForwardBacklog(bound int) NATSOption {
	return func(t *NATSTransport) {
		if bound >= 0 {
			t.forwardBound = bound
		}
	}
}

// WithClientName sets the connection name reported to the NATS server.
func WithClientName(name string) NATSOption {
	return func(t *NATSTransport) {
		if name != "" {
			t.clientName = name
		}
	}
}

// WithTransportMetrics wires connection state into the registry's core
// transport metrics. A nil registry is ignored.
func WithTransportMetrics(registry *metric.MetricsRegistry) NATSOption {
	return func(t *NATSTransport) {
		if registry != nil {
			t.metrics = registry.CoreMetrics()
		}
	}
}

// NewNATSTransport creates a transport for the given connection settings.
// Connect must be called before Broadcast or ForwardToLocal.
func NewNATSTransport(cfg config.NATSConfig, opts ...NATSOption) (*NATSTransport, error) {
	if len(cfg.URLs) == 0 {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig,
			"NATSTransport", "NewNATSTransport", "nats.urls check")
	}

	t := &NATSTransport{
		cfg:           cfg,
		subjectPrefix: defaultSubjectPrefix,
		clientName:    "odemis-substrate",
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	t.status.Store(StatusDisconnected)
	return t, nil
}

// Status returns the current connection status.
func (t *NATSTransport) Status() ConnectionStatus {
	if v := t.status.Load(); v != nil {
		return v.(ConnectionStatus)
	}
	return StatusDisconnected
}

// Failures returns the number of connection failures observed so far.
func (t *NATSTransport) Failures() int32 {
	return t.failures.Load()
}

// Reconnects returns the number of successful reconnections.
func (t *NATSTransport) Reconnects() int32 {
	return t.reconnects.Load()
}

// subject maps a channel identifier onto its NATS subject.
func (t *NATSTransport) subject(channelID ChannelID) string {
	return fmt.Sprintf("%s.%s", t.subjectPrefix, channelID)
}

// Connect establishes the NATS connection, honoring the configured timeouts
// and reconnection policy. The dial is retried with backoff while the server
// is unreachable; ctx bounds the whole sequence.
func (t *NATSTransport) Connect(ctx context.Context) error {
	if t.closed.Load() {
		return errors.WrapInvalid(errors.ErrAlreadyStopped,
			"NATSTransport", "Connect", "transport closed")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil {
		return errors.WrapInvalid(errors.ErrAlreadyStarted,
			"NATSTransport", "Connect", "duplicate connect")
	}

	timeout := t.cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	opts := []nats.Option{
		nats.Name(t.clientName),
		nats.Timeout(timeout),
		nats.MaxReconnects(t.cfg.MaxReconnects),
		nats.ReconnectWait(t.cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			t.status.Store(StatusReconnecting)
			t.failures.Add(1)
			if t.metrics != nil {
				t.metrics.TransportConnected.Set(0)
			}
			t.logger.Warn("NATS connection lost", slog.Any("error", err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			t.status.Store(StatusConnected)
			t.reconnects.Add(1)
			if t.metrics != nil {
				t.metrics.TransportConnected.Set(1)
				t.metrics.TransportReconnects.Inc()
			}
			t.logger.Info("NATS reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			t.status.Store(StatusDisconnected)
			if t.metrics != nil {
				t.metrics.TransportConnected.Set(0)
			}
		}),
	}
	if t.cfg.Username != "" {
		opts = append(opts, nats.UserInfo(t.cfg.Username, t.cfg.Password))
	}
	if t.cfg.Token != "" {
		opts = append(opts, nats.Token(t.cfg.Token))
	}

	t.status.Store(StatusConnecting)
	conn, err := retry.DoWithResult(ctx, retry.Dial(), func() (*nats.Conn, error) {
		c, dialErr := nats.Connect(strings.Join(t.cfg.URLs, ","), opts...)
		if dialErr != nil {
			t.failures.Add(1)
			t.logger.Warn("NATS dial failed", slog.Any("error", dialErr))
		}
		return c, dialErr
	})
	if err != nil {
		t.status.Store(StatusDisconnected)
		return errors.WrapTransient(err, "NATSTransport", "Connect", "dial")
	}

	t.conn = conn
	t.status.Store(StatusConnected)
	if t.metrics != nil {
		t.metrics.TransportConnected.Set(1)
	}
	t.logger.Info("NATS connected", slog.String("url", conn.ConnectedUrl()))
	return nil
}

// connection returns the live connection or an error when not connected.
func (t *NATSTransport) connection() (*nats.Conn, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.conn == nil {
		return nil, errors.ErrNoConnection
	}
	return t.conn, nil
}

// Broadcast implements Transport.
func (t *NATSTransport) Broadcast(_ context.Context, channelID ChannelID, payload []byte) error {
	conn, err := t.connection()
	if err != nil {
		return errors.WrapTransient(err, "NATSTransport", "Broadcast", "connection check")
	}
	if err := conn.Publish(t.subject(channelID), payload); err != nil {
		return errors.WrapTransient(err, "NATSTransport", "Broadcast", "publish")
	}
	return nil
}

// ForwardToLocal implements Transport. The subscription lives until
// Unsubscribe is called or ctx ends.
func (t *NATSTransport) ForwardToLocal(ctx context.Context, channelID ChannelID) (Subscription, error) {
	conn, err := t.connection()
	if err != nil {
		return nil, errors.WrapTransient(err, "NATSTransport", "ForwardToLocal", "connection check")
	}

	var natsSub atomic.Pointer[nats.Subscription]
	sub := newPumpSubscription(ctx, t.forwardBound, func() {
		if ns := natsSub.Load(); ns != nil {
			if err := ns.Unsubscribe(); err != nil {
				t.logger.Debug("NATS unsubscribe failed", slog.Any("error", err))
			}
		}
	})

	ns, err := conn.Subscribe(t.subject(channelID), func(msg *nats.Msg) {
		sub.put(msg.Data)
	})
	if err != nil {
		_ = sub.Unsubscribe()
		return nil, errors.WrapTransient(
			fmt.Errorf("%w: %w", errors.ErrSubscriptionFailed, err),
			"NATSTransport", "ForwardToLocal", "subscribe")
	}
	natsSub.Store(ns)

	// The subscription may have ended (ctx cancelled) before the handle was
	// stored; clean up the wire-side subscription in that case.
	select {
	case <-sub.done:
		_ = ns.Unsubscribe()
	default:
	}
	return sub, nil
}

// Close drains the connection and releases it. Idempotent.
func (t *NATSTransport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}

	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	if conn != nil {
		if err := conn.Drain(); err != nil {
			t.logger.Warn("NATS drain failed, closing hard", slog.Any("error", err))
			conn.Close()
		}
	}
	t.status.Store(StatusDisconnected)
	return nil
}
