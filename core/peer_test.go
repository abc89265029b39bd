package core

import "testing"

func TestParsePeerBareAddress(t *testing.T) {
	p, err := ParsePeer("10.0.0.1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, has := p.Port(); has {
		t.Fatalf("expected no port on a bare address")
	}
	if p.String() != "10.0.0.1" {
		t.Fatalf("unexpected string form: %s", p.String())
	}
}

func TestParsePeerWithPort(t *testing.T) {
	p, err := ParsePeer("10.0.0.1:4097")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	port, has := p.Port()
	if !has || port != 4097 {
		t.Fatalf("expected port 4097, got %d (has=%v)", port, has)
	}
	if p.String() != "10.0.0.1:4097" {
		t.Fatalf("unexpected string form: %s", p.String())
	}
}

func TestParsePeerRejectsIPv6(t *testing.T) {
	if _, err := ParsePeer("::1"); err == nil {
		t.Fatalf("expected ipv6 address to be rejected")
	}
}

func TestParsePeerRejectsGarbage(t *testing.T) {
	if _, err := ParsePeer("not-an-address"); err == nil {
		t.Fatalf("expected garbage input to be rejected")
	}
}

func TestPeerJSONRoundTrip(t *testing.T) {
	p, err := ParsePeer("10.0.0.1:4097")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := p.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded Peer
	if err := decoded.UnmarshalJSON(data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.String() != p.String() {
		t.Fatalf("expected round trip to preserve value, got %s", decoded.String())
	}
}

func TestSampleReturnsAllWhenFewerThanN(t *testing.T) {
	items := []int{1, 2, 3}
	got := Sample(items, 10)
	if len(got) != 3 {
		t.Fatalf("expected all 3 items, got %d", len(got))
	}
}

func TestSampleBoundsCount(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	got := Sample(items, 4)
	if len(got) != 4 {
		t.Fatalf("expected exactly 4 items, got %d", len(got))
	}
}
