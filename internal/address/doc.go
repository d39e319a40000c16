// Package address provides the value types lanwake uses to name network
// interfaces and hosts.
//
// Two types live here:
//
//   - HardwareAddress: the 6-byte link-layer (MAC) address a wake packet
//     targets. Wake packets are broadcast, so this is independent of the
//     host's current IP address.
//   - HostEndpoint: a hostname or IP literal, plus an optional port, used only
//     for reachability probing.
//
// # Usage
//
//	hw, err := address.ParseHardwareAddress("26-CE-55-A5-C2-33")
//	if err != nil {
//	    return err // errors.Is(err, address.ErrInvalidFormat)
//	}
//	fmt.Println(hw) // 26:ce:55:a5:c2:33
//
//	ep, err := address.ParseEndpoint("[fe80::1]:22", 0)
//
// Both types are immutable values and safe to share between goroutines.
// They implement encoding.TextMarshaler so they serialise as their canonical
// text in JSON and YAML.
package address
