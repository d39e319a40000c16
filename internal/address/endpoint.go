package address

import (
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"
)

// maxPort is the largest valid TCP/UDP port.
const maxPort = 65535

// HostEndpoint is a host to probe for reachability.
// Port is zero when the endpoint has no port; such endpoints are checked
// with an ICMP echo rather than a TCP connect.
type HostEndpoint struct {
	Host string
	Port int
}

// ParseEndpoint parses "host", "host:port", "[v6]", "[v6]:port" or a bare
// IPv6 literal. When the text carries no port, defaultPort is used (0 means
// no port). An empty host, a host containing whitespace or '/', or a port
// outside 1-65535 fails with ErrInvalidFormat.
func ParseEndpoint(text string, defaultPort int) (HostEndpoint, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return HostEndpoint{}, fmt.Errorf("%w: endpoint is empty", ErrInvalidFormat)
	}
	if defaultPort < 0 || defaultPort > maxPort {
		return HostEndpoint{}, fmt.Errorf("%w: default port %d out of range", ErrInvalidFormat, defaultPort)
	}

	host, portText, hasPort, err := splitEndpoint(s)
	if err != nil {
		return HostEndpoint{}, fmt.Errorf("%w: endpoint %q: %v", ErrInvalidFormat, text, err)
	}
	if err := validateHost(host); err != nil {
		return HostEndpoint{}, fmt.Errorf("%w: endpoint %q: %v", ErrInvalidFormat, text, err)
	}

	ep := HostEndpoint{Host: host, Port: defaultPort}
	if hasPort {
		port, err := strconv.Atoi(portText)
		if err != nil || port < 1 || port > maxPort {
			return HostEndpoint{}, fmt.Errorf("%w: endpoint %q: invalid port %q", ErrInvalidFormat, text, portText)
		}
		ep.Port = port
	}

	return ep, nil
}

// splitEndpoint separates host and port, tolerating bare IPv6 literals.
func splitEndpoint(s string) (host, port string, hasPort bool, err error) {
	switch {
	case strings.HasPrefix(s, "["):
		if !strings.Contains(s, "]:") {
			if !strings.HasSuffix(s, "]") {
				return "", "", false, fmt.Errorf("unterminated bracket")
			}
			return s[1 : len(s)-1], "", false, nil
		}
		h, p, splitErr := net.SplitHostPort(s)
		if splitErr != nil {
			return "", "", false, splitErr
		}
		return h, p, true, nil
	case strings.Count(s, ":") > 1:
		// Bare IPv6 literal; a port requires brackets.
		if _, parseErr := netip.ParseAddr(s); parseErr != nil {
			return "", "", false, fmt.Errorf("invalid IPv6 literal")
		}
		return s, "", false, nil
	case strings.Contains(s, ":"):
		h, p, splitErr := net.SplitHostPort(s)
		if splitErr != nil {
			return "", "", false, splitErr
		}
		return h, p, true, nil
	default:
		return s, "", false, nil
	}
}

func validateHost(host string) error {
	if host == "" {
		return fmt.Errorf("empty host")
	}
	if strings.ContainsAny(host, " \t\r\n/") {
		return fmt.Errorf("host contains invalid characters")
	}
	if strings.ContainsAny(host, "[]") {
		return fmt.Errorf("misplaced bracket")
	}
	if strings.Contains(host, ":") {
		if _, err := netip.ParseAddr(host); err != nil {
			return fmt.Errorf("invalid IPv6 literal")
		}
	}
	return nil
}

// HasPort reports whether the endpoint names a port.
func (e HostEndpoint) HasPort() bool {
	return e.Port > 0
}

// String formats the endpoint so that ParseEndpoint(e.String(), 0) == e.
func (e HostEndpoint) String() string {
	if e.Port > 0 {
		return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
	}
	if strings.Contains(e.Host, ":") {
		return "[" + e.Host + "]"
	}
	return e.Host
}

// MarshalText implements encoding.TextMarshaler.
func (e HostEndpoint) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *HostEndpoint) UnmarshalText(text []byte) error {
	parsed, err := ParseEndpoint(string(text), 0)
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}
