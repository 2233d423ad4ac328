package realtime

// LocalConn, Hub'a aynı process içinden açılan bağlantı.
//
// WebSocket ile aynı protokolü konuşur; fark sadece taşımadır. Event'ler
// JSON'a çevrilmeden doğrudan Hub.dispatch'e verilir, Hub'ın cevapları
// peer.out üzerinden okunur. Gömülü kullanım ve testler için.
type LocalConn struct {
	*core
	hub  *Hub
	peer *peer
	done chan struct{}
}

// Connect, userID adına yeni bir in-process bağlantı açar.
func (h *Hub) Connect(userID string) *LocalConn {
	p := h.addPeer(userID)
	lc := &LocalConn{
		hub:  h,
		peer: p,
		done: make(chan struct{}),
	}
	lc.core = newCore(lc.send, h.log.With().Str("user_id", userID).Str("conn", "local").Logger())

	go lc.pump()
	return lc
}

// UserID, bağlantının sahibi.
func (lc *LocalConn) UserID() string { return lc.peer.userID }

func (lc *LocalConn) send(ev Event) error {
	lc.hub.mu.RLock()
	closed := lc.peer.closed
	lc.hub.mu.RUnlock()
	if closed {
		return ErrConnectionClosed
	}

	lc.hub.dispatch(lc.peer, ev)
	return nil
}

// pump, Hub'ın bu bağlantıya kuyrukladığı event'leri sırayla işler.
// Hub out channel'ını kapattığında (Close, Shutdown, yavaş tüketici) biter.
func (lc *LocalConn) pump() {
	defer close(lc.done)
	for ev := range lc.peer.out {
		lc.core.handle(ev)
	}
	lc.core.close()
}

// Close, bağlantıyı kapatır; track edilen presence'lar için leave yayınlanır.
func (lc *LocalConn) Close() error {
	lc.hub.removePeer(lc.peer)
	<-lc.done
	return nil
}
