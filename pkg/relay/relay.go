// Package relay runs the TURN/STUN server of violet.
//
// A Server answers STUN Binding requests without authentication and, unless
// it runs in STUN-only mode, relays traffic for clients that authenticate
// with the long-term credentials it was configured with. Allocation quotas,
// per-client authentication throttling and peer permission expressions are
// enforced through the callbacks of the TURN library.
package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/pion/turn/v4"

	"github.com/inercia/violet/pkg/common"
	"github.com/inercia/violet/pkg/config"
)

// limiterIdleTTL is how long an idle client stays in the auth limiter.
const limiterIdleTTL = 10 * time.Minute

// ErrClosed is returned when starting a server that has been closed.
var ErrClosed = errors.New("relay server closed")

// Config contains the options for creating a new Server
type Config struct {
	Address  string // Listen address
	Port     int    // UDP listen port; zero picks a free port
	External string // Relay IP advertised in allocations

	Realm          string
	PortMin        int // Relay port range; zero means ephemeral ports
	PortMax        int
	MaxAllocations int  // Maximum live allocations; zero means unlimited
	STUNOnly       bool // Disable relaying

	Credentials []config.Credential
	Permissions []string // CEL expressions over the peer of a permission

	AuthRate  float64 // Authentication attempts per second per client IP
	AuthBurst int

	MetricsAddress string // host:port for /metrics, /live and /ready; empty disables

	Logger *common.Logger
}

// ConfigFrom builds the server options from a validated configuration.
func ConfigFrom(c *config.Config, logger *common.Logger) Config {
	return Config{
		Address:        c.Listen.Address,
		Port:           c.Listen.Port,
		External:       c.Listen.External,
		Realm:          c.Relay.Realm,
		PortMin:        c.Relay.PortMin,
		PortMax:        c.Relay.PortMax,
		MaxAllocations: c.Relay.MaxAllocations,
		STUNOnly:       c.Relay.STUNOnly,
		Credentials:    c.Credentials,
		Permissions:    c.Permissions,
		AuthRate:       c.Auth.Rate,
		AuthBurst:      c.Auth.Burst,
		MetricsAddress: c.Metrics.Address,
		Logger:         logger,
	}
}

// Server is a TURN/STUN relay bound to one UDP socket.
type Server struct {
	cfg    Config
	logger *common.Logger

	users       map[string]user
	permissions *common.CompiledConstraints
	limiter     *keyedLimiter
	tracker     *allocationTracker
	metrics     *Metrics
	readiness   Readiness

	mu         sync.Mutex
	conn       net.PacketConn
	turnServer *turn.Server
	metricsSrv *metricsServer
	closed     bool
	done       chan struct{}
}

// New creates a new Server from the provided configuration. Nothing is
// bound until Start is called.
//
// Parameters:
//   - cfg: The server configuration
//
// Returns:
//   - A new Server instance
//   - An error if a permission expression does not compile
func New(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = common.GetLogger()
	}
	if cfg.Realm == "" {
		cfg.Realm = config.DefaultRealm
	}

	permissions, err := CompilePermissions(cfg.Permissions, cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("invalid peer permissions: %w", err)
	}

	s := &Server{
		cfg:         cfg,
		logger:      cfg.Logger,
		users:       buildUsers(cfg.Credentials, cfg.Realm),
		permissions: permissions,
		limiter:     newKeyedLimiter(cfg.AuthRate, cfg.AuthBurst, limiterIdleTTL),
		tracker:     newAllocationTracker(),
		done:        make(chan struct{}),
	}
	s.metrics = newMetrics(s.tracker.Total)

	return s, nil
}

// Start binds the UDP socket and starts serving. The server is closed when
// ctx is done.
//
// Parameters:
//   - ctx: Controls the lifetime of the server
//
// Returns:
//   - An error if the socket, the TURN server or the metrics listener cannot be set up
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.turnServer != nil {
		return errors.New("relay server already started")
	}

	listenAddr := net.JoinHostPort(s.cfg.Address, strconv.Itoa(s.cfg.Port))
	conn, err := net.ListenPacket(udpNetwork(s.cfg.Address), listenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", listenAddr, err)
	}

	packetConfig := turn.PacketConnConfig{
		PacketConn:        conn,
		PermissionHandler: s.safePermissionHandler,
	}
	if s.cfg.STUNOnly {
		s.logger.Info("Running in STUN-only mode, relaying is disabled")
	} else {
		relayIP := selectRelayIP(s.cfg.External, s.cfg.Address)
		packetConfig.RelayAddressGenerator = s.relayAddressGenerator(relayIP)
		s.logger.Info("Relaying allocations at %s", relayIP)
		if len(s.users) == 0 {
			s.logger.Warn("No credentials configured: every allocation will be rejected")
		}
	}

	turnServer, err := turn.NewServer(turn.ServerConfig{
		Realm:             s.cfg.Realm,
		AuthHandler:       s.authenticate,
		QuotaHandler:      s.admitAllocation,
		EventHandler:      s.eventHandler(),
		LoggerFactory:     loggerFactory{logger: s.logger},
		PacketConnConfigs: []turn.PacketConnConfig{packetConfig},
	})
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to create TURN server: %w", err)
	}

	if s.cfg.MetricsAddress != "" {
		ms, err := startMetricsServer(s.cfg.MetricsAddress, newMetricsHandler(s.metrics, &s.readiness), s.logger)
		if err != nil {
			_ = turnServer.Close()
			return fmt.Errorf("failed to listen for metrics on %s: %w", s.cfg.MetricsAddress, err)
		}
		s.metricsSrv = ms
	}

	s.conn = conn
	s.turnServer = turnServer
	s.readiness.listenerBound.Store(true)

	s.logger.Info("Listening on udp %s (realm %q, %d users)", conn.LocalAddr(), s.cfg.Realm, len(s.users))

	go func() {
		select {
		case <-ctx.Done():
			s.logger.Info("Shutting down: %v", context.Cause(ctx))
			if err := s.Close(); err != nil {
				s.logger.Error("Failed to close relay: %v", err)
			}
		case <-s.done:
		}
	}()

	return nil
}

// Close stops the server and releases its sockets. It is safe to call more
// than once.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.readiness.closing.Store(true)
	close(s.done)

	var errs []error
	if s.turnServer != nil {
		if err := s.turnServer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close TURN server: %w", err))
		}
	}
	if s.metricsSrv != nil {
		if err := s.metricsSrv.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop metrics server: %w", err))
		}
	}

	s.logger.Info("Relay closed")
	return errors.Join(errs...)
}

// Done is closed once the server has been closed.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Addr returns the address of the UDP socket, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// MetricsAddr returns the address of the metrics listener, or nil when
// metrics are disabled.
func (s *Server) MetricsAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.metricsSrv == nil {
		return nil
	}
	return s.metricsSrv.Addr()
}

// AllocationCount returns the number of live allocations.
func (s *Server) AllocationCount() int {
	return s.tracker.Total()
}

// Metrics returns the collectors of the server.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Ready reports whether the server is bound and not shutting down.
func (s *Server) Ready() bool {
	return s.readiness.Ready()
}

// safePermissionHandler keeps a panicking policy from taking the TURN read
// loop down with it.
func (s *Server) safePermissionHandler(clientAddr net.Addr, peerIP net.IP) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Peer permission check panicked: %v", r)
			ok = false
		}
	}()
	return s.permissionHandler(clientAddr, peerIP)
}

func (s *Server) relayAddressGenerator(relayIP net.IP) turn.RelayAddressGenerator {
	bind := s.cfg.Address
	if bind == "" {
		bind = config.DefaultAddress
	}
	if s.cfg.PortMin > 0 && s.cfg.PortMax > 0 {
		return &turn.RelayAddressGeneratorPortRange{
			RelayAddress: relayIP,
			MinPort:      uint16(s.cfg.PortMin),
			MaxPort:      uint16(s.cfg.PortMax),
			Address:      bind,
		}
	}
	return &turn.RelayAddressGeneratorStatic{
		RelayAddress: relayIP,
		Address:      bind,
	}
}

// udpNetwork picks udp4 for IPv4 and unspecified bind addresses.
func udpNetwork(address string) string {
	ip := net.ParseIP(address)
	if ip == nil || ip.To4() != nil {
		return "udp4"
	}
	return "udp"
}

// selectRelayIP returns the IP advertised in allocations: the external
// address when set, else the bind address when it is specific, else the
// first non-loopback IPv4 address of the host.
func selectRelayIP(external, bind string) net.IP {
	if ip := net.ParseIP(external); ip != nil {
		return ip
	}
	if ip := net.ParseIP(bind); ip != nil && !ip.IsUnspecified() {
		return ip
	}
	if ip := firstHostIPv4(); ip != nil {
		return ip
	}
	return net.IPv4(127, 0, 0, 1)
}

func firstHostIPv4() net.IP {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil
	}
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil && !ip4.IsLinkLocalUnicast() {
			return ip4
		}
	}
	return nil
}
