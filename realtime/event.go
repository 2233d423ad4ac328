// Package realtime, topic tabanlı change-feed ve presence broker'ı.
//
// Mimari:
//   - Hub: tüm bağlantıları, topic aboneliklerini ve presence durumunu yönetir
//   - peer: Hub tarafında tek bir bağlantı (WebSocket client veya LocalConn)
//   - Channel: client tarafında bir topic aboneliği (join/track/untrack/leave)
//
// Akış:
//  1. Servis bir satır yazar ve Hub.Publish(Change) çağırır
//  2. Hub, filtresi eşleşen ve yetkisi olan her aboneliğe "change" event'i yollar
//  3. Client tarafındaki Channel, event'i filtresi eşleşen OnChange callback'lerine iletir
//
// Presence ise sadece bellekte yaşar: track/untrack/leave/disconnect
// "presence_diff" üretir, yeni katılan abone "presence_state" snapshot'ı alır.
package realtime

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event, bağlantı üzerinden iletilen tek mesaj.
//
// Ref, client'ın abonelik kimliğidir; reply'lar ve abonelik event'leri aynı
// ref ile döner. Seq, her outbound event'e Hub'ın verdiği artan sayıdır.
type Event struct {
	Op    string          `json:"op"`
	Topic string          `json:"topic,omitempty"`
	Ref   string          `json:"ref,omitempty"`
	Data  json.RawMessage `json:"d,omitempty"`
	Seq   int64           `json:"seq,omitempty"`
}

// Client → Server operasyonları
const (
	OpHeartbeat = "heartbeat"
	OpJoin      = "join"
	OpLeave     = "leave"
	OpTrack     = "track"
	OpUntrack   = "untrack"
)

// Server → Client operasyonları
const (
	OpHeartbeatAck  = "heartbeat_ack"
	OpReply         = "reply"
	OpChange        = "change"
	OpPresenceState = "presence_state"
	OpPresenceDiff  = "presence_diff"
)

// Change tipleri
const (
	ChangeInsert = "INSERT"
	ChangeUpdate = "UPDATE"
	ChangeDelete = "DELETE"
	ChangeAny    = "*"
)

// Change, bir tablo satırındaki değişiklik.
// Record JSON kolon adlarıyla tutulur; DELETE'te satır Old'dadır.
type Change struct {
	Table           string         `json:"table"`
	Type            string         `json:"type"`
	Record          map[string]any `json:"record"`
	Old             map[string]any `json:"old_record,omitempty"`
	CommitTimestamp time.Time      `json:"commit_timestamp"`
}

// NewChange, v'yi (json tag'li bir model) Record'a çevirerek Change üretir.
func NewChange(table, changeType string, v any) (Change, error) {
	record, err := RecordOf(v)
	if err != nil {
		return Change{}, err
	}
	return Change{
		Table:           table,
		Type:            changeType,
		Record:          record,
		CommitTimestamp: time.Now().UTC(),
	}, nil
}

// RecordOf, json tag'li bir struct'ı kolon haritasına çevirir.
func RecordOf(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode change record: %w", err)
	}
	var record map[string]any
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("failed to decode change record: %w", err)
	}
	return record, nil
}

// Decode, Record'u dst'ye (ör: *models.Message) çözer.
func (c Change) Decode(dst any) error {
	src := c.Record
	if c.Type == ChangeDelete && len(c.Old) > 0 {
		src = c.Old
	}
	raw, err := json.Marshal(src)
	if err != nil {
		return fmt.Errorf("failed to encode change record: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("failed to decode change record: %w", err)
	}
	return nil
}

// ─── Payload'lar ───

// JoinPayload, join isteğinin gövdesi: aboneliğin dinleyeceği satır değişiklikleri.
// Sadece presence için kullanılan topic'lerde boş olabilir.
type JoinPayload struct {
	Changes []ChangeFilter `json:"changes,omitempty"`
}

// Reply durumları
const (
	ReplyOK    = "ok"
	ReplyError = "error"
)

// ReplyPayload, bir client isteğine sunucunun cevabı.
type ReplyPayload struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// PresenceMeta, bir aboneliğin track ettiği serbest presence verisi.
// Sunucu her meta'ya aboneliğin ref'ini "presence_ref" olarak ekler.
type PresenceMeta map[string]any

// PresenceRefKey, meta içindeki abonelik ref'inin anahtarı.
const PresenceRefKey = "presence_ref"

// Ref, meta'nın presence_ref değeri.
func (m PresenceMeta) Ref() string {
	ref, _ := m[PresenceRefKey].(string)
	return ref
}

// String, key'in string değeri (yoksa "").
func (m PresenceMeta) String(key string) string {
	v, _ := m[key].(string)
	return v
}

// Bool, key'in bool değeri (yoksa false).
func (m PresenceMeta) Bool(key string) bool {
	v, _ := m[key].(bool)
	return v
}

// PresenceState, presence key'i (kullanıcı ID'si) → meta listesi.
// Bir kullanıcının birden fazla oturumu varsa birden fazla meta taşır.
type PresenceState map[string][]PresenceMeta

// PresenceDiff, presence_diff gövdesi.
type PresenceDiff struct {
	Joins  PresenceState `json:"joins"`
	Leaves PresenceState `json:"leaves"`
}

// encodeEvent, payload'ı JSON'a çevirip Event üretir.
func encodeEvent(op, topic, ref string, payload any) (Event, error) {
	ev := Event{Op: op, Topic: topic, Ref: ref}
	if payload == nil {
		return ev, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("failed to encode %s payload: %w", op, err)
	}
	ev.Data = raw
	return ev, nil
}

// decodeData, event gövdesini dst'ye çözer. Boş gövde hata değildir.
func decodeData(ev Event, dst any) error {
	if len(ev.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(ev.Data, dst); err != nil {
		return fmt.Errorf("invalid %s payload: %w", ev.Op, err)
	}
	return nil
}
