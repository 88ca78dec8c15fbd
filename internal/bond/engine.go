// Package bond implements the bond negotiation state machine, the encrypted
// message channel, and the care-score bookkeeping for every peer this node
// is bonded with.
package bond

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"bond-mesh/go-node/internal/crypto"
	"bond-mesh/go-node/internal/observe"
	"bond-mesh/go-node/internal/platform/ratelimiter"
	"bond-mesh/go-node/internal/trust"
	"bond-mesh/go-node/pkg/models"
)

// Identity is the long-term key collaborator. An unprovisioned identity
// surfaces its own error, which the engine propagates unchanged.
type Identity interface {
	NodeID() (string, error)
	PublicKey() ([]byte, error)
	KeySequence() (uint8, error)
	Sign(payload []byte) ([]byte, error)
	Verify(payload, sig, compressedPublicKey []byte) (bool, error)
}

// Transport delivers fully reassembled frames; fragmentation and MTU are
// entirely its concern.
type Transport interface {
	Transmit(ctx context.Context, peerID string, frame []byte) error
	OnReceive(handler func(senderID string, frame []byte))
}

type Config struct {
	// HandshakeTimeout bounds each wait for an expected handshake message.
	HandshakeTimeout time.Duration
	// MaxActiveBonds caps simultaneously active bonds.
	MaxActiveBonds int
	HalfLifeDays   float64
	// HandshakeRatePerPeer / HandshakeBurst throttle inbound handshake
	// frames per sender; zero disables throttling.
	HandshakeRatePerPeer float64
	HandshakeBurst       int
}

func DefaultConfig() Config {
	return Config{
		HandshakeTimeout:     30 * time.Second,
		MaxActiveBonds:       4,
		HalfLifeDays:         trust.DefaultHalfLifeDays,
		HandshakeRatePerPeer: 8,
		HandshakeBurst:       16,
	}
}

type pendingKey struct {
	peerID  string
	msgType byte
}

// bondEntry is one arena slot. Slots are reused after a bond closes; the
// byPeer index is the only public addressing scheme.
type bondEntry struct {
	inUse    bool
	record   models.BondRecord
	secret   crypto.SharedSecret
	counters *trust.Counters
}

type Engine struct {
	cfg       Config
	id        Identity
	transport Transport
	log       *slog.Logger
	hub       *Hub
	metrics   *observe.Metrics
	limiter   *ratelimiter.MapLimiter

	mu      sync.RWMutex
	entries []*bondEntry
	free    []int
	byPeer  map[string]int

	pendingMu sync.Mutex
	pending   map[pendingKey]chan []byte

	listenerMu   sync.Mutex
	listeners    map[int]func(models.ChannelMessage)
	nextListener int
}

func NewEngine(cfg Config, id Identity, tr Transport, logger *slog.Logger, metrics *observe.Metrics) *Engine {
	def := DefaultConfig()
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.MaxActiveBonds <= 0 {
		cfg.MaxActiveBonds = def.MaxActiveBonds
	}
	if cfg.HalfLifeDays <= 0 {
		cfg.HalfLifeDays = def.HalfLifeDays
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		cfg:       cfg,
		id:        id,
		transport: tr,
		log:       logger,
		hub:       NewHub(256),
		metrics:   metrics,
		limiter:   ratelimiter.New(cfg.HandshakeRatePerPeer, cfg.HandshakeBurst, 10*time.Minute),
		byPeer:    make(map[string]int),
		pending:   make(map[pendingKey]chan []byte),
		listeners: make(map[int]func(models.ChannelMessage)),
	}
	tr.OnReceive(e.handleFrame)
	return e
}

// Notifications returns the engine's event hub.
func (e *Engine) Notifications() *Hub {
	return e.hub
}

// ActiveBondCount reports how many bonds are currently active.
func (e *Engine) ActiveBondCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.byPeer)
}

// ListBonds returns copies of every active bond record.
func (e *Engine) ListBonds() []models.BondRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]models.BondRecord, 0, len(e.byPeer))
	for _, handle := range e.byPeer {
		out = append(out, cloneRecord(e.entries[handle].record))
	}
	return out
}

// Bond returns a copy of the record for one peer.
func (e *Engine) Bond(peerID string) (models.BondRecord, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	handle, ok := e.byPeer[peerID]
	if !ok {
		return models.BondRecord{}, ErrBondNotFound
	}
	return cloneRecord(e.entries[handle].record), nil
}

func (e *Engine) CareScore(peerID string) (float64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	handle, ok := e.byPeer[peerID]
	if !ok {
		return 0, ErrBondNotFound
	}
	return e.entries[handle].record.Trust.CareScore, nil
}

func (e *Engine) CareScoreComponents(peerID string) (models.CareScoreComponents, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	handle, ok := e.byPeer[peerID]
	if !ok {
		return models.CareScoreComponents{}, ErrBondNotFound
	}
	return trust.Components(e.entries[handle].counters), nil
}

func (e *Engine) TrustTier(peerID string) (models.TrustTier, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	handle, ok := e.byPeer[peerID]
	if !ok {
		return models.TierGhost, ErrBondNotFound
	}
	return e.entries[handle].record.Trust.Tier, nil
}

// Recalculate recomputes the care score from raw counters, applies decay
// for the elapsed idle days, and replaces the trust sub-record wholesale.
// When to call this is the caller's scheduling decision; the engine never
// decays bonds on its own.
func (e *Engine) Recalculate(peerID string, elapsedDays float64) (models.TrustState, error) {
	e.mu.Lock()
	handle, ok := e.byPeer[peerID]
	if !ok {
		e.mu.Unlock()
		return models.TrustState{}, ErrBondNotFound
	}
	entry := e.entries[handle]
	components := trust.Components(entry.counters)
	score := trust.Decay(trust.Score(components), elapsedDays, e.cfg.HalfLifeDays)
	previous := entry.record.Trust.Tier
	tier := trust.TierFor(score, previous)
	state := models.TrustState{
		CareScore:  score,
		Components: components,
		Tier:       tier,
	}
	entry.record.Trust = state
	e.mu.Unlock()

	e.hub.Publish(EventCareScoreUpdated, CareScoreEvent{
		PeerID:     peerID,
		Score:      score,
		Components: components,
	})
	if tier != previous {
		e.metrics.TierChanged()
		e.hub.Publish(EventTrustTierChanged, TierChangedEvent{
			PeerID:   peerID,
			Previous: previous,
			Current:  tier,
		})
		e.log.Info("trust tier changed",
			"peer", peerID, "previous", previous.String(), "current", tier.String())
	}
	return state, nil
}

// Close terminates the bond: an authenticated termination notice is sent
// best-effort, then the record, counters, and channel secret are discarded.
func (e *Engine) Close(ctx context.Context, peerID string) error {
	e.mu.RLock()
	handle, ok := e.byPeer[peerID]
	var secret crypto.SharedSecret
	if ok {
		secret = e.entries[handle].secret
	}
	e.mu.RUnlock()
	if !ok {
		return ErrBondNotFound
	}

	if frame, err := e.sealDataFrame(secret, msgTerminate, nil); err == nil {
		if err := e.transport.Transmit(ctx, peerID, frame); err != nil {
			e.log.Warn("termination notice not delivered", "peer", peerID, "err", err)
		}
	}
	e.removeBond(peerID, "local request")
	return nil
}

// removeBond frees the arena slot and revokes the channel secret.
func (e *Engine) removeBond(peerID, reason string) {
	e.mu.Lock()
	handle, ok := e.byPeer[peerID]
	if !ok {
		e.mu.Unlock()
		return
	}
	entry := e.entries[handle]
	entry.inUse = false
	entry.record = models.BondRecord{}
	entry.secret = crypto.SharedSecret{}
	entry.counters = nil
	delete(e.byPeer, peerID)
	e.free = append(e.free, handle)
	active := len(e.byPeer)
	e.mu.Unlock()

	e.metrics.SetActiveBonds(active)
	e.hub.Publish(EventBondTerminated, BondTerminatedEvent{PeerID: peerID, Reason: reason})
	e.log.Info("bond terminated", "peer", peerID, "reason", reason)
}

// installBond publishes the completed negotiation as a new active bond.
// The topology ceiling is re-checked under the lock because independent
// negotiations may complete concurrently.
func (e *Engine) installBond(partner models.Partner, secret crypto.SharedSecret) error {
	now := time.Now().UTC()
	record := models.BondRecord{
		Partner: partner,
		Trust: models.TrustState{
			CareScore: 0.5,
			Tier:      models.TierStrut,
		},
		Channel: models.ChannelState{
			SharedSecret:    secret[:],
			LastInteraction: now,
			Status:          models.BondStatusActive,
		},
		Permissions: models.Permissions{
			GrantedScopes: []string{},
			Visibility:    "standard",
		},
		CreatedAt: now,
	}

	e.mu.Lock()
	if _, exists := e.byPeer[partner.NodeID]; exists {
		e.mu.Unlock()
		return ErrAlreadyBonded
	}
	if len(e.byPeer) >= e.cfg.MaxActiveBonds {
		active := len(e.byPeer)
		e.mu.Unlock()
		e.hub.Publish(EventTopologyViolation, TopologyEvent{PeerID: partner.NodeID, ActiveBonds: active})
		return ErrTopologyViolation
	}
	entry := &bondEntry{
		inUse:    true,
		record:   record,
		secret:   secret,
		counters: trust.NewCounters(),
	}
	var handle int
	if n := len(e.free); n > 0 {
		handle = e.free[n-1]
		e.free = e.free[:n-1]
		e.entries[handle] = entry
	} else {
		handle = len(e.entries)
		e.entries = append(e.entries, entry)
	}
	e.byPeer[partner.NodeID] = handle
	active := len(e.byPeer)
	e.mu.Unlock()

	e.metrics.SetActiveBonds(active)
	e.metrics.NegotiationFinished("success")
	e.hub.Publish(EventBondFormed, BondFormedEvent{PeerID: partner.NodeID, Tier: models.TierStrut})
	e.log.Info("bond formed", "peer", partner.NodeID, "active_bonds", active)
	return nil
}

// checkCanBond enforces the duplicate and topology rules before any bytes
// are sent.
func (e *Engine) checkCanBond(peerID string) error {
	e.mu.RLock()
	_, bonded := e.byPeer[peerID]
	active := len(e.byPeer)
	e.mu.RUnlock()
	if bonded {
		return ErrAlreadyBonded
	}
	if active >= e.cfg.MaxActiveBonds {
		e.hub.Publish(EventTopologyViolation, TopologyEvent{PeerID: peerID, ActiveBonds: active})
		e.metrics.NegotiationFinished("topology")
		return ErrTopologyViolation
	}
	return nil
}

func cloneRecord(r models.BondRecord) models.BondRecord {
	out := r
	out.Partner.PublicKey = append([]byte(nil), r.Partner.PublicKey...)
	out.Channel.SharedSecret = append([]byte(nil), r.Channel.SharedSecret...)
	out.Permissions.GrantedScopes = append([]string(nil), r.Permissions.GrantedScopes...)
	return out
}
