package reachability

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/lanwake/internal/address"
)

// Prober defaults.
const (
	// DefaultTimeout is used when a non-positive timeout is passed.
	DefaultTimeout = 2 * time.Second

	// defaultConcurrency bounds simultaneous checks within one probe.
	defaultConcurrency = 8
)

// Outcome is the result of a probe.
type Outcome int

const (
	// Offline means no reply arrived within the timeout, for any reason.
	Offline Outcome = iota
	// Online means at least one address replied.
	Online
)

// String returns "online" or "offline".
func (o Outcome) String() string {
	if o == Online {
		return "online"
	}
	return "offline"
}

// Result describes a probe. Addr and RTT are set only when Online.
type Result struct {
	Outcome  Outcome
	Endpoint address.HostEndpoint
	Addr     netip.Addr
	RTT      time.Duration
}

// Online reports whether the probe got a reply.
func (r Result) Online() bool {
	return r.Outcome == Online
}

// Resolver looks up host addresses. *net.Resolver satisfies it.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// Checker performs a single check against one resolved address.
// A nil error means the address replied.
type Checker interface {
	Check(ctx context.Context, addr netip.Addr, port int) error
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context, addr netip.Addr, port int) error

// Check calls f.
func (f CheckerFunc) Check(ctx context.Context, addr netip.Addr, port int) error {
	return f(ctx, addr, port)
}

// Logger defines the logging interface used by the Prober.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Prober checks endpoint reachability. It is safe for concurrent use.
type Prober struct {
	resolver    Resolver
	tcp         Checker
	echo        Checker
	concurrency int
	logger      Logger

	// replied remembers the address of a named host that last answered,
	// so the next probe can try it before going to DNS.
	mu      sync.Mutex
	replied map[address.HostEndpoint]netip.Addr
}

// Option configures a Prober.
type Option func(*Prober)

// WithResolver replaces the DNS resolver.
func WithResolver(r Resolver) Option {
	return func(p *Prober) { p.resolver = r }
}

// WithTCPChecker replaces the TCP connect check.
func WithTCPChecker(c Checker) Option {
	return func(p *Prober) { p.tcp = c }
}

// WithEchoChecker replaces the ICMP echo check.
func WithEchoChecker(c Checker) Option {
	return func(p *Prober) { p.echo = c }
}

// WithConcurrency bounds how many addresses are checked at once.
func WithConcurrency(n int) Option {
	return func(p *Prober) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// NewProber creates a Prober using the system resolver, TCP connect and
// unprivileged ICMP echo.
func NewProber(opts ...Option) *Prober {
	p := &Prober{
		resolver:    net.DefaultResolver,
		tcp:         CheckerFunc(dialTCP),
		echo:        NewEchoChecker(),
		concurrency: defaultConcurrency,
		logger:      noopLogger{},
		replied:     make(map[address.HostEndpoint]netip.Addr),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetLogger sets the logger for the prober.
func (p *Prober) SetLogger(logger Logger) {
	p.logger = logger
}

// errReplied stops the remaining checks once one address has answered.
var errReplied = errors.New("reachability: replied")

// Probe checks a single endpoint within timeout.
func (p *Prober) Probe(ctx context.Context, ep address.HostEndpoint, timeout time.Duration) Result {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	checker := p.echo
	if ep.HasPort() {
		checker = p.tcp
	}

	if r, ok := p.probeLastReply(ctx, ep, checker, timeout/2); ok {
		return r
	}

	result := Result{Outcome: Offline, Endpoint: ep}

	addrs, err := p.resolve(ctx, ep.Host)
	if err != nil {
		p.logger.Debug("endpoint resolution failed", "endpoint", ep.String(), "error", err)
		return result
	}

	var once sync.Once
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for _, addr := range addrs {
		g.Go(func() error {
			if err := checker.Check(gctx, addr, ep.Port); err != nil {
				p.logger.Debug("probe failed", "endpoint", ep.String(), "addr", addr.String(), "error", err)
				return nil
			}
			once.Do(func() {
				result.Outcome = Online
				result.Addr = addr
				result.RTT = time.Since(start)
			})
			return errReplied
		})
	}
	_ = g.Wait() //nolint:errcheck // Only errReplied is ever returned

	if result.Online() {
		p.rememberReply(ep, result.Addr)
	}
	return result
}

// probeLastReply checks the address that last answered for ep, skipping
// DNS. A miss forgets it so the caller falls back to a full resolve.
func (p *Prober) probeLastReply(ctx context.Context, ep address.HostEndpoint, checker Checker, budget time.Duration) (Result, bool) {
	p.mu.Lock()
	addr, ok := p.replied[ep]
	p.mu.Unlock()
	if !ok {
		return Result{}, false
	}

	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	start := time.Now()
	if err := checker.Check(ctx, addr, ep.Port); err != nil {
		p.logger.Debug("last replying address did not answer", "endpoint", ep.String(), "addr", addr.String(), "error", err)
		p.mu.Lock()
		delete(p.replied, ep)
		p.mu.Unlock()
		return Result{}, false
	}
	return Result{Outcome: Online, Endpoint: ep, Addr: addr, RTT: time.Since(start)}, true
}

// rememberReply records addr for named hosts only; IP literals never
// touch the resolver anyway.
func (p *Prober) rememberReply(ep address.HostEndpoint, addr netip.Addr) {
	if _, err := netip.ParseAddr(ep.Host); err == nil {
		return
	}
	p.mu.Lock()
	p.replied[ep] = addr
	p.mu.Unlock()
}

// ProbeAll checks every endpoint concurrently and is Online if any is.
// The first endpoint to reply determines Endpoint, Addr and RTT.
func (p *Prober) ProbeAll(ctx context.Context, endpoints []address.HostEndpoint, timeout time.Duration) Result {
	if len(endpoints) == 0 {
		return Result{Outcome: Offline}
	}
	if len(endpoints) == 1 {
		return p.Probe(ctx, endpoints[0], timeout)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan Result, len(endpoints))
	for _, ep := range endpoints {
		go func() {
			results <- p.Probe(ctx, ep, timeout)
		}()
	}

	offline := Result{Outcome: Offline, Endpoint: endpoints[0]}
	for range endpoints {
		r := <-results
		if r.Online() {
			return r
		}
	}
	return offline
}

func (p *Prober) resolve(ctx context.Context, host string) ([]netip.Addr, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		return []netip.Addr{addr.Unmap()}, nil
	}

	addrs, err := p.resolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, &net.DNSError{Err: "no addresses", Name: host, IsNotFound: true}
	}
	for i := range addrs {
		addrs[i] = addrs[i].Unmap()
	}
	return addrs, nil
}

// dialTCP completes a TCP handshake and closes the connection.
func dialTCP(ctx context.Context, addr netip.Addr, port int) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", netip.AddrPortFrom(addr, uint16(port)).String()) //nolint:gosec // Port validated by address.ParseEndpoint
	if err != nil {
		return err
	}
	return conn.Close()
}
