package core

import (
	"fmt"
	"net"
	"net/netip"
)

// Peer identifies another statemesh instance as either a bare IPv4 address
// (the accepting instance's own gossip port is implied) or a full
// IPv4:port socket. The zero value is not a valid Peer.
type Peer struct {
	ip   netip.Addr
	port uint16
	has  bool // true when port carries a value (Endpoint form)
}

// ParsePeer parses s as either "A.B.C.D:P" or "A.B.C.D", preferring the
// socket form whenever a colon is present.
func ParsePeer(s string) (Peer, error) {
	if host, portStr, err := net.SplitHostPort(s); err == nil {
		ip, err := netip.ParseAddr(host)
		if err != nil || !ip.Is4() {
			return Peer{}, fmt.Errorf("peer: invalid ipv4 host %q", host)
		}
		var port uint16
		if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
			return Peer{}, fmt.Errorf("peer: invalid port %q", portStr)
		}
		return Peer{ip: ip, port: port, has: true}, nil
	}

	ip, err := netip.ParseAddr(s)
	if err != nil || !ip.Is4() {
		return Peer{}, fmt.Errorf("peer: invalid ipv4 address %q", s)
	}
	return Peer{ip: ip}, nil
}

// IP returns the peer's IPv4 address.
func (p Peer) IP() netip.Addr { return p.ip }

// Port returns the peer's explicit port and true, or (0, false) if this
// peer was parsed from a bare address.
func (p Peer) Port() (uint16, bool) { return p.port, p.has }

// String renders the peer back to its wire form.
func (p Peer) String() string {
	if p.has {
		return fmt.Sprintf("%s:%d", p.ip, p.port)
	}
	return p.ip.String()
}

// MarshalJSON renders the peer as an untagged scalar string, matching the
// wire form accepted by ParsePeer.
func (p Peer) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", p.String())), nil
}

// UnmarshalJSON parses the peer from an untagged scalar string.
func (p *Peer) UnmarshalJSON(data []byte) error {
	var s string
	if len(data) >= 2 && data[0] == '"' && data[len(data)-1] == '"' {
		s = string(data[1 : len(data)-1])
	} else {
		s = string(data)
	}
	parsed, err := ParsePeer(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// UnmarshalYAML parses the peer from a plain YAML scalar, so that a
// peer_provider's static peer list can be written as a simple string list.
func (p *Peer) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParsePeer(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// MarshalYAML renders the peer back to its wire form.
func (p Peer) MarshalYAML() (interface{}, error) {
	return p.String(), nil
}
