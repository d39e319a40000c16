// Package reachability answers one question about an endpoint: did it
// respond within the timeout?
//
// Endpoints with a port are checked with a TCP connect. Endpoints without a
// port are checked with an ICMP echo over an unprivileged datagram socket
// (Linux: net.ipv4.ping_group_range must include the process group).
// Hostnames are resolved first and every resolved address is tried
// concurrently; the first reply wins.
//
// Probes never return errors. Refused connections, unreachable hosts,
// resolution failures, socket permission problems and timeouts all collapse
// to Offline, and a probe always finishes shortly after its timeout.
package reachability
