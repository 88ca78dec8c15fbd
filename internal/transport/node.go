// Package transport carries opaque frames between nodes. The default
// backend is an in-process bus; a go-waku relay backend is available behind
// the real_waku build tag.
package transport

import (
	"context"
	"errors"
	"sync"
	"time"
)

const (
	BackendMemory = "memory"
	BackendGoWaku = "go-waku"

	StateDisconnected = "disconnected"
	StateConnecting   = "connecting"
	StateConnected    = "connected"
)

type Config struct {
	Backend             string        `yaml:"backend"`
	Port                int           `yaml:"port"`
	AdvertiseAddress    string        `yaml:"advertiseAddress"`
	EnableRelay         bool          `yaml:"enableRelay"`
	EnableStore         bool          `yaml:"enableStore"`
	BootstrapNodes      []string      `yaml:"bootstrapNodes"`
	MinPeers            int           `yaml:"minPeers"`
	ReconnectInterval   time.Duration `yaml:"reconnectInterval"`
	ReconnectBackoffMax time.Duration `yaml:"reconnectBackoffMax"`
}

func DefaultConfig() Config {
	return Config{
		Backend:             BackendMemory,
		Port:                61000,
		EnableRelay:         true,
		EnableStore:         false,
		MinPeers:            1,
		ReconnectInterval:   1 * time.Second,
		ReconnectBackoffMax: 30 * time.Second,
	}
}

type Status struct {
	State     string
	PeerCount int
	LastSync  time.Time
}

type wakuBackend interface {
	Start(ctx context.Context, cfg Config) error
	Stop()
	PeerCount() int
	ListenAddresses() []string
	Subscribe(handler func(Frame)) error
	Publish(ctx context.Context, f Frame) error
}

// Node manages backend lifecycle and exposes per-identifier endpoints for
// the bond engine.
type Node struct {
	mu     sync.RWMutex
	cfg    Config
	status Status
	bus    *MemoryBus
	gw     wakuBackend
}

func NewNode(cfg Config) *Node {
	cfg = normalizeConfig(cfg)
	return &Node{
		cfg:    cfg,
		bus:    NewMemoryBus(),
		status: Status{State: StateDisconnected},
	}
}

func normalizeConfig(cfg Config) Config {
	def := DefaultConfig()
	if cfg.Backend == "" {
		cfg.Backend = def.Backend
	}
	if cfg.Port <= 0 {
		cfg.Port = def.Port
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = def.ReconnectInterval
	}
	if cfg.ReconnectBackoffMax < cfg.ReconnectInterval {
		cfg.ReconnectBackoffMax = def.ReconnectBackoffMax
	}
	if cfg.MinPeers < 0 {
		cfg.MinPeers = 0
	}
	return cfg
}

func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	n.status.State = StateConnecting
	n.status.LastSync = time.Now()
	n.mu.Unlock()

	if n.cfg.Backend == BackendGoWaku {
		backend := newGoWakuBackend()
		if backend == nil {
			n.setDisconnected()
			return errors.New("go-waku backend is not available in this build")
		}
		if err := backend.Start(ctx, n.cfg); err != nil {
			n.setDisconnected()
			return err
		}
		n.mu.Lock()
		n.gw = backend
		n.status.State = StateConnected
		n.status.PeerCount = backend.PeerCount()
		n.status.LastSync = time.Now()
		n.mu.Unlock()
		return nil
	}

	n.mu.Lock()
	n.status.State = StateConnected
	n.status.LastSync = time.Now()
	n.mu.Unlock()
	return nil
}

func (n *Node) Stop(_ context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.gw != nil {
		n.gw.Stop()
		n.gw = nil
	}
	n.status.State = StateDisconnected
	n.status.PeerCount = 0
	n.status.LastSync = time.Now()
	return nil
}

func (n *Node) Status() Status {
	n.mu.RLock()
	defer n.mu.RUnlock()
	s := n.status
	if n.gw != nil {
		s.PeerCount = n.gw.PeerCount()
	}
	return s
}

// Endpoint binds a node identifier to whichever backend is running.
func (n *Node) Endpoint(selfID string) *NodeEndpoint {
	return &NodeEndpoint{node: n, selfID: selfID}
}

type NodeEndpoint struct {
	node   *Node
	selfID string
}

func (e *NodeEndpoint) Transmit(ctx context.Context, peerID string, frame []byte) error {
	f := Frame{
		SenderID:  e.selfID,
		Recipient: peerID,
		Payload:   append([]byte(nil), frame...),
	}
	e.node.mu.RLock()
	gw := e.node.gw
	e.node.mu.RUnlock()
	if gw != nil {
		return gw.Publish(ctx, f)
	}
	e.node.bus.Publish(f)
	return nil
}

func (e *NodeEndpoint) OnReceive(handler func(senderID string, frame []byte)) {
	e.node.mu.RLock()
	gw := e.node.gw
	e.node.mu.RUnlock()
	if gw != nil {
		_ = gw.Subscribe(func(f Frame) {
			if f.Recipient != e.selfID {
				return
			}
			handler(f.SenderID, f.Payload)
		})
		return
	}
	e.node.bus.Subscribe(e.selfID, func(f Frame) {
		handler(f.SenderID, f.Payload)
	})
}

func (n *Node) setDisconnected() {
	n.mu.Lock()
	n.status.State = StateDisconnected
	n.status.LastSync = time.Now()
	n.mu.Unlock()
}
