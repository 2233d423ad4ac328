package realtime

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// ChangePublisher, servis katmanının satır değişikliklerini yayınlamak için
// kullandığı interface. Servisler Hub'ın concrete struct'ına değil buna bağımlıdır.
type ChangePublisher interface {
	Publish(change Change)
}

// Relay, değişiklikleri diğer node'lara taşıyan opsiyonel fan-out katmanı.
// Presence node-local kalır; sadece Change'ler relay edilir.
type Relay interface {
	Publish(ctx context.Context, change Change) error
	// Subscribe, diğer node'lardan gelen değişiklikleri fn'e iletir ve
	// ctx iptal edilene kadar bloklar.
	Subscribe(ctx context.Context, fn func(Change)) error
}

// defaultSendBufferSize, peer.out channel'ının varsayılan kapasitesi.
// Buffer dolan bağlantı yavaş kabul edilip kapatılır.
const defaultSendBufferSize = 256

// Hub, tüm realtime bağlantılarını, topic aboneliklerini ve presence
// durumunu yöneten merkezi yapı.
//
// Bir kullanıcının birden fazla bağlantısı (tab, cihaz) olabilir; her bağlantı
// aynı topic'e birden fazla abonelik (farklı ref) açabilir.
type Hub struct {
	mu     sync.RWMutex
	peers  map[*peer]struct{}
	users  map[string]map[*peer]struct{}
	topics map[string]map[*subscription]struct{}

	seq    atomic.Int64
	nextID atomic.Uint64

	sendBufferSize int
	relay          Relay
	log            zerolog.Logger

	// Callback'ler main'de wire edilir (init_callbacks.go).
	onAuthorizeJoin         func(userID, topic string) error
	onAuthorizeChange       func(userID string, change Change) bool
	onUserFirstConnect      func(userID string)
	onUserFullyDisconnected func(userID string)
}

// peer, Hub tarafında tek bir bağlantı. subs ve closed hub.mu ile korunur.
type peer struct {
	id     uint64
	userID string
	out    chan Event
	subs   map[string]*subscription
	closed bool
}

// subscription, (bağlantı, ref, topic) üçlüsü. meta nil değilse bu abonelik
// presence track etmiştir.
type subscription struct {
	peer    *peer
	topic   string
	ref     string
	filters []ChangeFilter
	meta    PresenceMeta
}

// NewHub, yeni bir Hub oluşturur. sendBufferSize <= 0 ise varsayılan kullanılır.
func NewHub(log zerolog.Logger, sendBufferSize int) *Hub {
	if sendBufferSize <= 0 {
		sendBufferSize = defaultSendBufferSize
	}
	return &Hub{
		peers:          make(map[*peer]struct{}),
		users:          make(map[string]map[*peer]struct{}),
		topics:         make(map[string]map[*subscription]struct{}),
		sendBufferSize: sendBufferSize,
		log:            log.With().Str("component", "realtime").Logger(),
	}
}

// ─── Callback setter'ları ───

// OnAuthorizeJoin, join isteklerinde topic yetkisini kontrol eden fonksiyonu ayarlar.
// nil error izin demektir; dönen hatanın mesajı reply reason olarak client'a gider.
func (h *Hub) OnAuthorizeJoin(fn func(userID, topic string) error) { h.onAuthorizeJoin = fn }

// OnAuthorizeChange, satır seviyesinde yetkiyi kontrol eden fonksiyonu ayarlar.
// false dönerse değişiklik o kullanıcının aboneliklerine iletilmez.
func (h *Hub) OnAuthorizeChange(fn func(userID string, change Change) bool) {
	h.onAuthorizeChange = fn
}

// OnUserFirstConnect, kullanıcının ilk bağlantısında çağrılır (ayrı goroutine).
func (h *Hub) OnUserFirstConnect(fn func(userID string)) { h.onUserFirstConnect = fn }

// OnUserFullyDisconnected, kullanıcının son bağlantısı kapandığında çağrılır (ayrı goroutine).
func (h *Hub) OnUserFullyDisconnected(fn func(userID string)) { h.onUserFullyDisconnected = fn }

// SetRelay, multi-node fan-out katmanını ayarlar. Run'dan önce çağrılmalıdır.
func (h *Hub) SetRelay(r Relay) { h.relay = r }

// Run, relay aboneliğini yürütür ve ctx iptal edildiğinde Hub'ı kapatır.
// main'de errgroup içinde çalışır.
func (h *Hub) Run(ctx context.Context) error {
	if h.relay != nil {
		go func() {
			err := h.relay.Subscribe(ctx, h.deliverChange)
			if err != nil && !errors.Is(err, context.Canceled) {
				h.log.Error().Err(err).Msg("relay subscription stopped")
			}
		}()
	}

	<-ctx.Done()
	h.Shutdown()
	return nil
}

// ─── Bağlantı yaşam döngüsü ───

func (h *Hub) addPeer(userID string) *peer {
	p := &peer{
		id:     h.nextID.Add(1),
		userID: userID,
		out:    make(chan Event, h.sendBufferSize),
		subs:   make(map[string]*subscription),
	}

	h.mu.Lock()
	h.peers[p] = struct{}{}
	conns, ok := h.users[userID]
	if !ok {
		conns = make(map[*peer]struct{})
		h.users[userID] = conns
	}
	conns[p] = struct{}{}
	first := len(conns) == 1
	h.mu.Unlock()

	connectionsGauge.Inc()
	h.log.Debug().Str("user_id", userID).Uint64("peer", p.id).Msg("connection opened")

	if first && h.onUserFirstConnect != nil {
		go h.onUserFirstConnect(userID)
	}
	return p
}

// removePeer, bağlantıyı kapatır: tüm abonelikleri düşer, track edilen
// presence'lar için leave yayınlar ve out channel'ını kapatır. Tekrar çağrı no-op.
func (h *Hub) removePeer(p *peer) {
	h.mu.Lock()
	if p.closed {
		h.mu.Unlock()
		return
	}

	// closed önce işaretlenir; kapanan bağlantının kendi leave'leri kendisine kuyruklanmaz.
	p.closed = true
	for _, sub := range p.subs {
		h.removeSubscriptionLocked(sub)
	}
	close(p.out)

	delete(h.peers, p)
	last := false
	if conns, ok := h.users[p.userID]; ok {
		delete(conns, p)
		if len(conns) == 0 {
			delete(h.users, p.userID)
			last = true
		}
	}
	h.mu.Unlock()

	connectionsGauge.Dec()
	h.log.Debug().Str("user_id", p.userID).Uint64("peer", p.id).Msg("connection closed")

	if last && h.onUserFullyDisconnected != nil {
		go h.onUserFullyDisconnected(p.userID)
	}
}

// Shutdown, tüm bağlantıları presence yayını yapmadan kapatır.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for p := range h.peers {
		for _, sub := range p.subs {
			if sub.meta != nil {
				presenceEntriesGauge.Dec()
			}
			subscriptionsGauge.Dec()
		}
		p.subs = nil
		p.closed = true
		close(p.out)
		connectionsGauge.Dec()
	}
	h.peers = make(map[*peer]struct{})
	h.users = make(map[string]map[*peer]struct{})
	h.topics = make(map[string]map[*subscription]struct{})
	h.log.Info().Msg("hub shut down, all connections closed")
}

// IsOnline, kullanıcının en az bir açık bağlantısı var mı.
func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID]) > 0
}

// OnlineUserIDs, bağlı tüm kullanıcı ID'leri.
func (h *Hub) OnlineUserIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.users))
	for id := range h.users {
		ids = append(ids, id)
	}
	return ids
}

// ─── Client istekleri ───

// dispatch, bir bağlantıdan gelen event'i işler. Her isteğe aynı ref ile
// bir reply (heartbeat için heartbeat_ack) döner.
func (h *Hub) dispatch(p *peer, ev Event) {
	switch ev.Op {
	case OpHeartbeat:
		h.mu.RLock()
		h.enqueueLocked(p, Event{Op: OpHeartbeatAck, Ref: ev.Ref})
		h.mu.RUnlock()
	case OpJoin:
		h.handleJoin(p, ev)
	case OpLeave:
		h.handleLeave(p, ev)
	case OpTrack:
		h.handleTrack(p, ev)
	case OpUntrack:
		h.handleUntrack(p, ev)
	default:
		h.log.Warn().Str("user_id", p.userID).Str("op", ev.Op).Msg("unknown op")
		h.reply(p, ev, errors.New("unknown op"))
	}
}

func (h *Hub) handleJoin(p *peer, ev Event) {
	if ev.Topic == "" || ev.Ref == "" {
		h.reply(p, ev, errors.New("topic and ref are required"))
		return
	}

	var payload JoinPayload
	if err := decodeData(ev, &payload); err != nil {
		h.reply(p, ev, err)
		return
	}
	for _, f := range payload.Changes {
		if err := f.Validate(); err != nil {
			h.reply(p, ev, err)
			return
		}
	}

	// Yetki kontrolü DB'ye gidebilir; lock dışında yapılır.
	if h.onAuthorizeJoin != nil {
		if err := h.onAuthorizeJoin(p.userID, ev.Topic); err != nil {
			h.log.Debug().Str("user_id", p.userID).Str("topic", ev.Topic).Err(err).Msg("join rejected")
			h.reply(p, ev, err)
			return
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if p.closed {
		return
	}

	if existing, ok := p.subs[ev.Ref]; ok {
		if existing.topic != ev.Topic {
			h.replyLocked(p, ev, errors.New("ref already used for another topic"))
			return
		}
		// Yeniden join (ör: reconnect sonrası): filtreler güncellenir.
		existing.filters = payload.Changes
		h.replyLocked(p, ev, nil)
		h.sendPresenceStateLocked(existing)
		return
	}

	sub := &subscription{peer: p, topic: ev.Topic, ref: ev.Ref, filters: payload.Changes}
	p.subs[ev.Ref] = sub
	subs, ok := h.topics[ev.Topic]
	if !ok {
		subs = make(map[*subscription]struct{})
		h.topics[ev.Topic] = subs
	}
	subs[sub] = struct{}{}
	subscriptionsGauge.Inc()

	h.replyLocked(p, ev, nil)
	h.sendPresenceStateLocked(sub)
}

func (h *Hub) handleLeave(p *peer, ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if p.closed {
		return
	}

	if sub, ok := p.subs[ev.Ref]; ok {
		h.removeSubscriptionLocked(sub)
	}
	h.replyLocked(p, ev, nil)
}

func (h *Hub) handleTrack(p *peer, ev Event) {
	var meta PresenceMeta
	if err := decodeData(ev, &meta); err != nil {
		h.reply(p, ev, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if p.closed {
		return
	}

	sub, ok := p.subs[ev.Ref]
	if !ok {
		h.replyLocked(p, ev, errors.New("not joined"))
		return
	}

	tracked := make(PresenceMeta, len(meta)+1)
	for k, v := range meta {
		tracked[k] = v
	}
	tracked[PresenceRefKey] = sub.ref

	if sub.meta == nil {
		presenceEntriesGauge.Inc()
	}
	sub.meta = tracked

	h.replyLocked(p, ev, nil)
	h.broadcastLocked(sub.topic, OpPresenceDiff, PresenceDiff{
		Joins:  PresenceState{p.userID: {tracked}},
		Leaves: PresenceState{},
	})
}

func (h *Hub) handleUntrack(p *peer, ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if p.closed {
		return
	}

	sub, ok := p.subs[ev.Ref]
	if !ok || sub.meta == nil {
		h.replyLocked(p, ev, nil)
		return
	}

	left := sub.meta
	sub.meta = nil
	presenceEntriesGauge.Dec()

	h.replyLocked(p, ev, nil)
	h.broadcastLocked(sub.topic, OpPresenceDiff, PresenceDiff{
		Joins:  PresenceState{},
		Leaves: PresenceState{p.userID: {left}},
	})
}

// removeSubscriptionLocked, aboneliği topic'ten ve peer'dan çıkarır; meta
// varsa kalan abonelere leave yayınlar. hub.mu write lock tutulmalıdır.
func (h *Hub) removeSubscriptionLocked(sub *subscription) {
	delete(sub.peer.subs, sub.ref)
	if subs, ok := h.topics[sub.topic]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.topics, sub.topic)
		}
	}
	subscriptionsGauge.Dec()

	if sub.meta != nil {
		left := sub.meta
		sub.meta = nil
		presenceEntriesGauge.Dec()
		h.broadcastLocked(sub.topic, OpPresenceDiff, PresenceDiff{
			Joins:  PresenceState{},
			Leaves: PresenceState{sub.peer.userID: {left}},
		})
	}
}

// ─── Gönderim ───

func (h *Hub) reply(p *peer, req Event, err error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.replyLocked(p, req, err)
}

func (h *Hub) replyLocked(p *peer, req Event, err error) {
	payload := ReplyPayload{Status: ReplyOK}
	if err != nil {
		payload = ReplyPayload{Status: ReplyError, Reason: err.Error()}
	}
	ev, encErr := encodeEvent(OpReply, req.Topic, req.Ref, payload)
	if encErr != nil {
		h.log.Error().Err(encErr).Msg("failed to encode reply")
		return
	}
	h.enqueueLocked(p, ev)
}

func (h *Hub) sendPresenceStateLocked(sub *subscription) {
	ev, err := encodeEvent(OpPresenceState, sub.topic, sub.ref, h.presenceSnapshotLocked(sub.topic))
	if err != nil {
		h.log.Error().Err(err).Msg("failed to encode presence state")
		return
	}
	h.enqueueLocked(sub.peer, ev)
}

func (h *Hub) presenceSnapshotLocked(topic string) PresenceState {
	state := PresenceState{}
	for sub := range h.topics[topic] {
		if sub.meta != nil {
			state[sub.peer.userID] = append(state[sub.peer.userID], sub.meta)
		}
	}
	return state
}

// broadcastLocked, payload'ı topic'in tüm aboneliklerine kendi ref'leriyle gönderir.
func (h *Hub) broadcastLocked(topic, op string, payload any) {
	ev, err := encodeEvent(op, topic, "", payload)
	if err != nil {
		h.log.Error().Err(err).Str("op", op).Msg("failed to encode broadcast")
		return
	}
	for sub := range h.topics[topic] {
		out := ev
		out.Ref = sub.ref
		h.enqueueLocked(sub.peer, out)
	}
}

// enqueueLocked, event'i bağlantının buffer'ına bırakır. Buffer doluysa
// event düşer ve bağlantı ayrı goroutine'de kapatılır. En az hub.mu
// read lock tutulmalıdır; closed bayrağı sadece write lock altında değişir.
func (h *Hub) enqueueLocked(p *peer, ev Event) {
	if p.closed {
		return
	}
	ev.Seq = h.seq.Add(1)

	select {
	case p.out <- ev:
		eventsDelivered.WithLabelValues(ev.Op).Inc()
	default:
		eventsDropped.Inc()
		h.log.Warn().Str("user_id", p.userID).Uint64("peer", p.id).Msg("send buffer full, dropping connection")
		go h.removePeer(p)
	}
}

// ─── Change-feed ───

// Publish, değişikliği yerel abonelere iletir ve relay varsa diğer node'lara yayınlar.
func (h *Hub) Publish(change Change) {
	changesPublished.WithLabelValues(change.Table, change.Type).Inc()
	h.deliverChange(change)

	if h.relay != nil {
		go func() {
			if err := h.relay.Publish(context.Background(), change); err != nil {
				h.log.Error().Err(err).Str("table", change.Table).Msg("failed to relay change")
			}
		}()
	}
}

// deliverChange, filtresi eşleşen aboneliklere change event'i gönderir.
// Yetki kontrolü (DB'ye gidebilir) lock dışında, kullanıcı başına bir kez yapılır.
func (h *Hub) deliverChange(change Change) {
	h.mu.RLock()
	var targets []*subscription
	for _, subs := range h.topics {
		for sub := range subs {
			if sub.peer.closed {
				continue
			}
			for _, f := range sub.filters {
				if f.Matches(change) {
					targets = append(targets, sub)
					break
				}
			}
		}
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	data, err := encodeEvent(OpChange, "", "", change)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to encode change")
		return
	}

	allowed := make(map[string]bool)
	for _, sub := range targets {
		ok, seen := allowed[sub.peer.userID]
		if !seen {
			ok = h.onAuthorizeChange == nil || h.onAuthorizeChange(sub.peer.userID, change)
			allowed[sub.peer.userID] = ok
		}
		if !ok {
			continue
		}

		h.mu.RLock()
		if sub.peer.subs[sub.ref] == sub {
			ev := data
			ev.Topic = sub.topic
			ev.Ref = sub.ref
			h.enqueueLocked(sub.peer, ev)
		}
		h.mu.RUnlock()
	}
}
