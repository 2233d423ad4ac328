package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrNotSubscribed, join onaylanmadan yapılan Track çağrısının hatası.
	ErrNotSubscribed = errors.New("realtime: channel not subscribed")
	// ErrConnectionClosed, kapanmış bir bağlantı üzerinde yapılan istek.
	ErrConnectionClosed = errors.New("realtime: connection closed")
	// ErrNotConnected, RemoteConn yeniden bağlanırken yapılan istek.
	ErrNotConnected = errors.New("realtime: not connected")
)

// Client, Channel üretebilen bir realtime bağlantısı.
// Hub.Connect (in-process) ve Dial (WebSocket) bunu karşılar.
type Client interface {
	Channel(topic string) Channel
	Close() error
}

// Channel, client tarafında tek bir topic aboneliği.
//
// OnChange ve OnPresence Subscribe'dan önce çağrılmalıdır. Callback'ler
// bağlantının okuma goroutine'inde çalışır; içlerinden bloklayan Channel
// çağrıları (Track, Subscribe...) yapılmamalıdır.
type Channel interface {
	Topic() string
	OnChange(filter ChangeFilter, fn func(Change)) Channel
	OnPresence(fn func(PresenceEvent)) Channel
	Subscribe(ctx context.Context) error
	Track(ctx context.Context, meta PresenceMeta) error
	Untrack(ctx context.Context) error
	PresenceState() PresenceState
	Unsubscribe(ctx context.Context) error
}

// PresenceEventKind, client'a iletilen presence olay türü.
type PresenceEventKind string

const (
	PresenceJoin  PresenceEventKind = "join"
	PresenceLeave PresenceEventKind = "leave"
	PresenceSync  PresenceEventKind = "sync"
)

// PresenceEvent, key (kullanıcı ID'si) için join/leave olayı; her diff veya
// snapshot'tan sonra Key'i boş bir sync olayı gelir.
type PresenceEvent struct {
	Kind  PresenceEventKind
	Key   string
	Metas []PresenceMeta
}

// ─── core ───

// core, LocalConn ve RemoteConn'un paylaştığı istek/cevap ve kanal yönlendirmesi.
type core struct {
	send func(Event) error
	log  zerolog.Logger

	mu       sync.Mutex
	channels map[string]*channel
	pending  map[string]chan ReplyPayload
	closed   bool
}

func newCore(send func(Event) error, log zerolog.Logger) *core {
	return &core{
		send:     send,
		log:      log,
		channels: make(map[string]*channel),
		pending:  make(map[string]chan ReplyPayload),
	}
}

// Channel, topic için yeni bir abonelik nesnesi oluşturur. Her çağrı yeni bir
// ref üretir; aynı topic'e birden fazla bağımsız abonelik açılabilir.
func (c *core) Channel(topic string) Channel {
	return &channel{
		core:     c,
		topic:    topic,
		ref:      uuid.NewString(),
		presence: PresenceState{},
	}
}

// request, ev'i gönderir ve aynı ref ile gelen reply'ı bekler.
func (c *core) request(ctx context.Context, ev Event) error {
	wait := make(chan ReplyPayload, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrConnectionClosed
	}
	c.pending[ev.Ref] = wait
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.pending[ev.Ref] == wait {
			delete(c.pending, ev.Ref)
		}
		c.mu.Unlock()
	}()

	if err := c.send(ev); err != nil {
		return err
	}

	select {
	case reply, ok := <-wait:
		if !ok {
			return ErrConnectionClosed
		}
		if reply.Status != ReplyOK {
			return fmt.Errorf("realtime: %s %s rejected: %s", ev.Op, ev.Topic, reply.Reason)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *core) register(ch *channel) {
	c.mu.Lock()
	c.channels[ch.ref] = ch
	c.mu.Unlock()
}

func (c *core) unregister(ch *channel) {
	c.mu.Lock()
	if c.channels[ch.ref] == ch {
		delete(c.channels, ch.ref)
	}
	c.mu.Unlock()
}

func (c *core) channelByRef(ref string) *channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channels[ref]
}

// handle, bağlantıdan gelen tek bir event'i ilgili kanala yönlendirir.
func (c *core) handle(ev Event) {
	switch ev.Op {
	case OpReply:
		var reply ReplyPayload
		if err := decodeData(ev, &reply); err != nil {
			c.log.Warn().Err(err).Msg("invalid reply")
			return
		}
		c.mu.Lock()
		wait, ok := c.pending[ev.Ref]
		delete(c.pending, ev.Ref)
		c.mu.Unlock()
		if ok {
			wait <- reply
		}

	case OpHeartbeatAck:

	case OpChange:
		ch := c.channelByRef(ev.Ref)
		if ch == nil {
			return
		}
		var change Change
		if err := decodeData(ev, &change); err != nil {
			c.log.Warn().Err(err).Str("topic", ev.Topic).Msg("invalid change")
			return
		}
		ch.dispatchChange(change)

	case OpPresenceState:
		ch := c.channelByRef(ev.Ref)
		if ch == nil {
			return
		}
		var state PresenceState
		if err := decodeData(ev, &state); err != nil {
			c.log.Warn().Err(err).Str("topic", ev.Topic).Msg("invalid presence state")
			return
		}
		ch.applyPresenceState(state)

	case OpPresenceDiff:
		ch := c.channelByRef(ev.Ref)
		if ch == nil {
			return
		}
		var diff PresenceDiff
		if err := decodeData(ev, &diff); err != nil {
			c.log.Warn().Err(err).Str("topic", ev.Topic).Msg("invalid presence diff")
			return
		}
		ch.applyPresenceDiff(diff)

	default:
		c.log.Debug().Str("op", ev.Op).Msg("ignoring unknown op")
	}
}

// disconnected, bekleyen istekleri başarısız kılar ve kanalların presence
// görüntüsünü boşaltır. Kanallar joined durumda kalır; yeniden bağlanınca
// resubscribe edilir.
func (c *core) disconnected() {
	c.mu.Lock()
	for ref, wait := range c.pending {
		close(wait)
		delete(c.pending, ref)
	}
	channels := make([]*channel, 0, len(c.channels))
	for _, ch := range c.channels {
		channels = append(channels, ch)
	}
	c.mu.Unlock()

	for _, ch := range channels {
		ch.applyPresenceState(PresenceState{})
	}
}

// close, core'u kalıcı olarak kapatır.
func (c *core) close() {
	c.disconnected()
	c.mu.Lock()
	c.closed = true
	c.channels = make(map[string]*channel)
	c.mu.Unlock()
}

// resubscribe, yeniden bağlantı sonrası joined kanalları tekrar join eder
// ve track edilmiş meta'ları tekrar yayınlar.
func (c *core) resubscribe(ctx context.Context) {
	c.mu.Lock()
	channels := make([]*channel, 0, len(c.channels))
	for _, ch := range c.channels {
		channels = append(channels, ch)
	}
	c.mu.Unlock()

	for _, ch := range channels {
		if err := ch.rejoin(ctx); err != nil {
			c.log.Warn().Err(err).Str("topic", ch.topic).Msg("failed to rejoin channel")
		}
	}
}

// ─── channel ───

type chanState int

const (
	stateIdle chanState = iota
	stateJoining
	stateJoined
)

type changeBinding struct {
	filter ChangeFilter
	fn     func(Change)
}

type channel struct {
	core  *core
	topic string
	ref   string

	// opMu, aynı ref üzerindeki istekleri sıralar; reply eşleştirmesi ref ile yapılır.
	opMu sync.Mutex

	mu          sync.Mutex
	state       chanState
	bindings    []changeBinding
	presenceFns []func(PresenceEvent)
	presence    PresenceState
	tracked     PresenceMeta
}

func (ch *channel) Topic() string { return ch.topic }

func (ch *channel) OnChange(filter ChangeFilter, fn func(Change)) Channel {
	ch.mu.Lock()
	ch.bindings = append(ch.bindings, changeBinding{filter: filter, fn: fn})
	ch.mu.Unlock()
	return ch
}

func (ch *channel) OnPresence(fn func(PresenceEvent)) Channel {
	ch.mu.Lock()
	ch.presenceFns = append(ch.presenceFns, fn)
	ch.mu.Unlock()
	return ch
}

// Subscribe, join isteğini gönderir ve onayı bekler. Zaten joined ise no-op.
func (ch *channel) Subscribe(ctx context.Context) error {
	ch.opMu.Lock()
	defer ch.opMu.Unlock()

	ch.mu.Lock()
	if ch.state == stateJoined {
		ch.mu.Unlock()
		return nil
	}
	ch.state = stateJoining
	ch.mu.Unlock()

	// presence_state reply'ın hemen ardından gelir; kanal önceden kayıtlı olmalı.
	ch.core.register(ch)

	if err := ch.join(ctx); err != nil {
		ch.core.unregister(ch)
		ch.mu.Lock()
		ch.state = stateIdle
		ch.mu.Unlock()
		return err
	}

	ch.mu.Lock()
	ch.state = stateJoined
	ch.mu.Unlock()
	return nil
}

func (ch *channel) join(ctx context.Context) error {
	ch.mu.Lock()
	filters := make([]ChangeFilter, 0, len(ch.bindings))
	for _, b := range ch.bindings {
		filters = append(filters, b.filter)
	}
	ch.mu.Unlock()

	ev, err := encodeEvent(OpJoin, ch.topic, ch.ref, JoinPayload{Changes: filters})
	if err != nil {
		return err
	}
	return ch.core.request(ctx, ev)
}

// Track, bu abonelik için presence meta'sını yayınlar. Tekrar çağrı meta'yı değiştirir.
func (ch *channel) Track(ctx context.Context, meta PresenceMeta) error {
	ch.opMu.Lock()
	defer ch.opMu.Unlock()

	ch.mu.Lock()
	joined := ch.state == stateJoined
	ch.mu.Unlock()
	if !joined {
		return ErrNotSubscribed
	}

	ev, err := encodeEvent(OpTrack, ch.topic, ch.ref, meta)
	if err != nil {
		return err
	}
	if err := ch.core.request(ctx, ev); err != nil {
		return err
	}

	copied := make(PresenceMeta, len(meta))
	for k, v := range meta {
		copied[k] = v
	}
	ch.mu.Lock()
	ch.tracked = copied
	ch.mu.Unlock()
	return nil
}

// Untrack, bu aboneliğin presence meta'sını kaldırır. Joined değilse no-op.
func (ch *channel) Untrack(ctx context.Context) error {
	ch.opMu.Lock()
	defer ch.opMu.Unlock()

	ch.mu.Lock()
	joined := ch.state == stateJoined
	ch.tracked = nil
	ch.mu.Unlock()
	if !joined {
		return nil
	}

	ev, err := encodeEvent(OpUntrack, ch.topic, ch.ref, nil)
	if err != nil {
		return err
	}
	return ch.core.request(ctx, ev)
}

// Unsubscribe, aboneliği kapatır. Kapanmış bağlantıda hata döndürmez.
func (ch *channel) Unsubscribe(ctx context.Context) error {
	ch.opMu.Lock()
	defer ch.opMu.Unlock()

	ch.mu.Lock()
	wasJoined := ch.state == stateJoined
	ch.state = stateIdle
	ch.tracked = nil
	ch.presence = PresenceState{}
	ch.mu.Unlock()

	defer ch.core.unregister(ch)
	if !wasJoined {
		return nil
	}

	ev, err := encodeEvent(OpLeave, ch.topic, ch.ref, nil)
	if err != nil {
		return err
	}
	err = ch.core.request(ctx, ev)
	if errors.Is(err, ErrConnectionClosed) || errors.Is(err, ErrNotConnected) {
		return nil
	}
	return err
}

// PresenceState, kanalın güncel presence görüntüsünün kopyası.
func (ch *channel) PresenceState() PresenceState {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return copyState(ch.presence)
}

func (ch *channel) rejoin(ctx context.Context) error {
	ch.opMu.Lock()
	defer ch.opMu.Unlock()

	ch.mu.Lock()
	joined := ch.state == stateJoined
	tracked := ch.tracked
	ch.mu.Unlock()
	if !joined {
		return nil
	}

	if err := ch.join(ctx); err != nil {
		return err
	}
	if tracked == nil {
		return nil
	}
	ev, err := encodeEvent(OpTrack, ch.topic, ch.ref, tracked)
	if err != nil {
		return err
	}
	return ch.core.request(ctx, ev)
}

// ─── Gelen event'ler ───

func (ch *channel) dispatchChange(change Change) {
	ch.mu.Lock()
	bindings := make([]changeBinding, len(ch.bindings))
	copy(bindings, ch.bindings)
	ch.mu.Unlock()

	for _, b := range bindings {
		if b.filter.Matches(change) {
			b.fn(change)
		}
	}
}

// applyPresenceState, snapshot'ı mevcut görüntünün yerine koyar; farkları
// join/leave olarak, ardından sync olarak bildirir.
func (ch *channel) applyPresenceState(state PresenceState) {
	if state == nil {
		state = PresenceState{}
	}

	ch.mu.Lock()
	old := ch.presence
	ch.presence = copyState(state)
	fns := ch.listenersLocked()
	ch.mu.Unlock()

	var events []PresenceEvent
	for key, metas := range state {
		if joined := missingRefs(metas, old[key]); len(joined) > 0 {
			events = append(events, PresenceEvent{Kind: PresenceJoin, Key: key, Metas: joined})
		}
	}
	for key, metas := range old {
		if left := missingRefs(metas, state[key]); len(left) > 0 {
			events = append(events, PresenceEvent{Kind: PresenceLeave, Key: key, Metas: left})
		}
	}
	emitPresence(fns, events)
}

// applyPresenceDiff, diff'i uygular: join aynı presence_ref'li meta'yı
// değiştirir veya ekler, leave ref'e göre çıkarır.
func (ch *channel) applyPresenceDiff(diff PresenceDiff) {
	var events []PresenceEvent

	ch.mu.Lock()
	for key, metas := range diff.Joins {
		current := ch.presence[key]
		for _, m := range metas {
			current = upsertMeta(current, m)
		}
		ch.presence[key] = current
		events = append(events, PresenceEvent{Kind: PresenceJoin, Key: key, Metas: metas})
	}
	for key, metas := range diff.Leaves {
		current := ch.presence[key]
		for _, m := range metas {
			current = removeMeta(current, m.Ref())
		}
		if len(current) == 0 {
			delete(ch.presence, key)
		} else {
			ch.presence[key] = current
		}
		events = append(events, PresenceEvent{Kind: PresenceLeave, Key: key, Metas: metas})
	}
	fns := ch.listenersLocked()
	ch.mu.Unlock()

	emitPresence(fns, events)
}

func (ch *channel) listenersLocked() []func(PresenceEvent) {
	fns := make([]func(PresenceEvent), len(ch.presenceFns))
	copy(fns, ch.presenceFns)
	return fns
}

func emitPresence(fns []func(PresenceEvent), events []PresenceEvent) {
	for _, fn := range fns {
		for _, ev := range events {
			fn(ev)
		}
		fn(PresenceEvent{Kind: PresenceSync})
	}
}

func upsertMeta(metas []PresenceMeta, m PresenceMeta) []PresenceMeta {
	for i, existing := range metas {
		if existing.Ref() == m.Ref() {
			out := make([]PresenceMeta, len(metas))
			copy(out, metas)
			out[i] = m
			return out
		}
	}
	return append(append([]PresenceMeta(nil), metas...), m)
}

func removeMeta(metas []PresenceMeta, ref string) []PresenceMeta {
	out := make([]PresenceMeta, 0, len(metas))
	for _, m := range metas {
		if m.Ref() != ref {
			out = append(out, m)
		}
	}
	return out
}

// missingRefs, a'da olup b'de presence_ref'i bulunmayan meta'lar.
func missingRefs(a, b []PresenceMeta) []PresenceMeta {
	var out []PresenceMeta
	for _, m := range a {
		found := false
		for _, other := range b {
			if other.Ref() == m.Ref() {
				found = true
				break
			}
		}
		if !found {
			out = append(out, m)
		}
	}
	return out
}

func copyState(s PresenceState) PresenceState {
	out := make(PresenceState, len(s))
	for k, metas := range s {
		out[k] = append([]PresenceMeta(nil), metas...)
	}
	return out
}
