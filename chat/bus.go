package chat

// RefreshBus, read receipt yayıncısı ile konuşma listesi arasındaki açık
// bildirim kanalı. MarkMessagesAsRead başarılı olunca Publish çağrılır;
// ConversationList.Start bus'a abone olup Refresh tetikler.
type RefreshBus struct {
	subs listeners[struct{}]
}

func NewRefreshBus() *RefreshBus {
	return &RefreshBus{}
}

// Subscribe, fn'i kaydeder; dönen fonksiyon aboneliği kaldırır.
func (b *RefreshBus) Subscribe(fn func()) (cancel func()) {
	return b.subs.add(func(struct{}) { fn() })
}

// Publish, tüm aboneleri çağıran goroutine'de senkron çalıştırır.
func (b *RefreshBus) Publish() {
	b.subs.emit(struct{}{})
}
