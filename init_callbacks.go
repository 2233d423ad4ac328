package main

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/akinalp/pitchline/pkg/cache"
	"github.com/akinalp/pitchline/realtime"
	"github.com/akinalp/pitchline/repository"
	"github.com/akinalp/pitchline/services"
)

// membershipLookupTimeout, yetki callback'lerinden yapılan tek DB sorgusunun üst süresi.
const membershipLookupTimeout = 3 * time.Second

var (
	errTopicForbidden = errors.New("forbidden")
	errUnknownTopic   = errors.New("unknown topic")
	errNotMember      = errors.New("not a member of this conversation")
)

// membershipChecker, realtime yetkilendirmesi için üyelik sorgusu.
//
// Sadece pozitif sonuçlar cache'lenir: üyelikler bu sistemde silinmez, bu
// yüzden "üye" cevabı hiç bayatlamaz. Negatif cevaplar her seferinde DB'ye
// gider; yeni katılan kullanıcı TTL beklemeden change almaya başlar.
type membershipChecker struct {
	convRepo repository.ConversationRepository
	cache    *cache.TTLCache[string, struct{}]
	log      zerolog.Logger
}

func newMembershipChecker(convRepo repository.ConversationRepository, ttl time.Duration, log zerolog.Logger) *membershipChecker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &membershipChecker{
		convRepo: convRepo,
		cache:    cache.New[string, struct{}](ttl, time.Minute),
		log:      log,
	}
}

func (m *membershipChecker) isMember(conversationID, userID string) bool {
	key := conversationID + ":" + userID
	if _, ok := m.cache.Get(key); ok {
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), membershipLookupTimeout)
	defer cancel()

	ok, err := m.convRepo.IsMember(ctx, conversationID, userID)
	if err != nil {
		m.log.Error().Err(err).Str("conversation_id", conversationID).Str("user_id", userID).Msg("membership lookup failed")
		return false
	}
	if ok {
		m.cache.Set(key, struct{}{})
	}
	return ok
}

// Close, cache'in cleanup goroutine'ini durdurur.
func (m *membershipChecker) Close() {
	m.cache.Close()
}

// authorizeJoin, topic türüne göre join yetkisi.
//
//   - presence:global herkese açık
//   - conversations:<user> sadece sahibine
//   - typing:<conv> konuşma üyelerine
//   - messages:<conv>:<user> sahibine ve sadece üyesi olduğu konuşmada
func (m *membershipChecker) authorizeJoin(userID, topic string) error {
	parsed := realtime.ParseTopic(topic)
	switch parsed.Kind {
	case realtime.TopicPresence:
		return nil
	case realtime.TopicConversations:
		if parsed.UserID != userID {
			return errTopicForbidden
		}
		return nil
	case realtime.TopicTyping:
		if !m.isMember(parsed.ConversationID, userID) {
			return errNotMember
		}
		return nil
	case realtime.TopicMessages:
		if parsed.UserID != userID {
			return errTopicForbidden
		}
		if !m.isMember(parsed.ConversationID, userID) {
			return errNotMember
		}
		return nil
	default:
		return errUnknownTopic
	}
}

// authorizeChange, satır seviyesinde yetki: kullanıcı satırın ait olduğu
// konuşmanın üyesiyse değişikliği görebilir.
func (m *membershipChecker) authorizeChange(userID string, change realtime.Change) bool {
	conversationID := conversationOf(change)
	if conversationID == "" {
		return false
	}
	return m.isMember(conversationID, userID)
}

// conversationOf, change kaydının ait olduğu konuşma ID'si.
func conversationOf(change realtime.Change) string {
	record := change.Record
	if change.Type == realtime.ChangeDelete && len(change.Old) > 0 {
		record = change.Old
	}

	column := "conversation_id"
	if change.Table == services.TableConversations {
		column = "id"
	}
	id, _ := record[column].(string)
	return id
}

// registerHubCallbacks, Hub'ın yetki ve bağlantı callback'lerini ayarlar.
//
// Hub realtime paketinde yaşar, üyelik bilgisi repository katmanındadır;
// Hub'ın repository'lere bağımlı olmaması için bağlama burada yapılır.
func registerHubCallbacks(hub *realtime.Hub, repos *Repositories, membershipTTL time.Duration, log zerolog.Logger) *membershipChecker {
	checker := newMembershipChecker(repos.Conversation, membershipTTL, log.With().Str("component", "realtime-auth").Logger())

	hub.OnAuthorizeJoin(checker.authorizeJoin)
	hub.OnAuthorizeChange(checker.authorizeChange)

	hub.OnUserFirstConnect(func(userID string) {
		log.Info().Str("user_id", userID).Msg("user connected")
	})
	hub.OnUserFullyDisconnected(func(userID string) {
		log.Info().Str("user_id", userID).Msg("user disconnected")
	})

	return checker
}
