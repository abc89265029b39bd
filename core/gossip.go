package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"statemesh/internal/logging"
)

// concurrency bounds how many peers a single publish or pull tick talks to
// at once, regardless of how many were sampled for that tick.
const concurrency = 4

// Defaults for the gossip loops, used when a config value is left at zero.
const (
	defaultFanOut        = 3
	defaultPushInterval  = 1000 * time.Millisecond
	defaultPullInterval  = 60000 * time.Millisecond
	defaultPeerTimeout   = 1000 * time.Millisecond
)

// Gossip drives the anti-entropy loops: the publisher pushes this engine's
// delta against its last published snapshot to a sample of peers, and the
// receiver pulls from a sample of peers whenever its local version looks
// stale to them.
type Gossip struct {
	Engine PeerProviderEngine
	Peers  PeerProvider

	Port       uint16 // local listen port for peer traffic
	TargetPort uint16 // used when dialing a peer returned without a port; falls back to Port

	FanOut       int
	PushInterval time.Duration
	PullInterval time.Duration
	PeerTimeout  time.Duration

	httpClient *http.Client

	publishedMu      sync.Mutex
	lastPublished    []byte
	lastPublishedVer uint64
}

// PeerProviderEngine narrows DefaultEngine to the surface Gossip needs, so
// it can be exercised against a fake in tests without a real store.
type PeerProviderEngine interface {
	Set(key string, entry Entry)
	GetRoot() map[string]Entry
	Diff(remote map[string]Entry) map[string]Entry
	Version() uint64
}

// NewGossip builds a Gossip loop pair around an engine and peer provider,
// applying the spec's defaults for any zero-valued tuning parameter.
func NewGossip(engine PeerProviderEngine, peers PeerProvider, port uint16) *Gossip {
	return &Gossip{
		Engine:       engine,
		Peers:        peers,
		Port:         port,
		FanOut:       defaultFanOut,
		PushInterval: defaultPushInterval,
		PullInterval: defaultPullInterval,
		PeerTimeout:  defaultPeerTimeout,
		httpClient:   &http.Client{},
	}
}

// Run starts both the publisher and receiver loops and blocks until ctx is
// done.
func (g *Gossip) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		g.publishLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		g.receiveLoop(ctx)
	}()
	wg.Wait()
}

func (g *Gossip) fanOut() int {
	if g.FanOut <= 0 {
		return defaultFanOut
	}
	return g.FanOut
}

func (g *Gossip) pushInterval() time.Duration {
	if g.PushInterval <= 0 {
		return defaultPushInterval
	}
	return g.PushInterval
}

func (g *Gossip) pullInterval() time.Duration {
	if g.PullInterval <= 0 {
		return defaultPullInterval
	}
	return g.PullInterval
}

func (g *Gossip) peerTimeout() time.Duration {
	if g.PeerTimeout <= 0 {
		return defaultPeerTimeout
	}
	return g.PeerTimeout
}

// publishLoop implements §4.J's "sleep after work" cadence: each tick's
// fan-out time adds to, rather than eats into, the configured interval.
func (g *Gossip) publishLoop(ctx context.Context) {
	log := logging.For("gossip-publisher")
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		g.publishTick(ctx, log)

		select {
		case <-ctx.Done():
			return
		case <-time.After(g.pushInterval()):
		}
	}
}

func (g *Gossip) publishTick(ctx context.Context, log logger) {
	version := g.Engine.Version()

	g.publishedMu.Lock()
	if version == g.lastPublishedVer {
		g.publishedMu.Unlock()
		return
	}
	lastPublished := g.lastPublished
	g.publishedMu.Unlock()

	root := g.Engine.GetRoot()
	rootBytes, err := json.Marshal(root)
	if err != nil {
		log.Warnf("marshal root for publish: %v", err)
		return
	}
	if bytes.Equal(rootBytes, lastPublished) {
		return
	}

	var lastPublishedMap map[string]Entry
	if len(lastPublished) > 0 {
		if err := json.Unmarshal(lastPublished, &lastPublishedMap); err != nil {
			lastPublishedMap = nil
		}
	}

	// diff is a pure function over in-memory maps in this port, so it
	// cannot fail; §4.J's fallback-to-full-root branch has no failure
	// mode to trigger here and the payload is always the computed diff.
	payload := g.Engine.Diff(lastPublishedMap)
	body, err := json.Marshal(payload)
	if err != nil {
		log.Warnf("marshal diff payload: %v", err)
		return
	}

	peers := Sample(g.Peers.Get(), g.fanOut())
	g.forEachBounded(peers, func(p Peer) {
		if err := g.pushTo(ctx, p, body); err != nil {
			log.Warnf("push to %s failed: %v", p, err)
		}
	})

	g.publishedMu.Lock()
	g.lastPublished = rootBytes
	g.lastPublishedVer = version
	g.publishedMu.Unlock()
}

func (g *Gossip) receiveLoop(ctx context.Context) {
	log := logging.For("gossip-receiver")
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		peers := Sample(g.Peers.Get(), g.fanOut())
		g.forEachBounded(peers, func(p Peer) {
			if err := g.pullFrom(ctx, p); err != nil {
				log.Warnf("pull from %s failed: %v", p, err)
			}
		})

		select {
		case <-ctx.Done():
			return
		case <-time.After(g.pullInterval()):
		}
	}
}

// forEachBounded runs fn over peers with at most `concurrency` in flight,
// and waits for all of them to finish.
func (g *Gossip) forEachBounded(peers []Peer, fn func(Peer)) {
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	for _, p := range peers {
		p := p
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			fn(p)
		}()
	}
	wg.Wait()
}

// pushTo PUTs body (already-computed publish payload) to peer's
// connection-facing endpoint.
func (g *Gossip) pushTo(ctx context.Context, p Peer, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, g.peerTimeout())
	defer cancel()

	url := fmt.Sprintf("http://%s/", g.dialAddr(p))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("push request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("push rejected with status %d", resp.StatusCode)
	}
	return nil
}

// pullFrom issues a version-gated GET against peer and merges any non-empty
// response body into the local engine.
func (g *Gossip) pullFrom(ctx context.Context, p Peer) error {
	ctx, cancel := context.WithTimeout(ctx, g.peerTimeout())
	defer cancel()

	version := g.Engine.Version()
	url := fmt.Sprintf("http://%s/%d", g.dialAddr(p), version)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build pull request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("pull request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("pull rejected with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read peer response: %w", err)
	}
	if len(body) == 0 {
		return nil
	}

	var remoteRoot map[string]Entry
	if err := json.Unmarshal(body, &remoteRoot); err != nil {
		return fmt.Errorf("decode peer root: %w", err)
	}
	for k, e := range remoteRoot {
		g.Engine.Set(k, e)
	}
	return nil
}

// dialAddr picks the socket to dial for p: p's own port if it carries one,
// else TargetPort (falling back to the local listen Port).
func (g *Gossip) dialAddr(p Peer) string {
	if port, has := p.Port(); has {
		return fmt.Sprintf("%s:%d", p.IP(), port)
	}
	target := g.TargetPort
	if target == 0 {
		target = g.Port
	}
	return fmt.Sprintf("%s:%d", p.IP(), target)
}

// logger narrows the logrus.Entry surface gossip's tick functions need, so
// they can be unit tested against a no-op implementation.
type logger interface {
	Warnf(format string, args ...interface{})
}
