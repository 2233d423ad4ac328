package realtime

import "strings"

// PresenceTopic, tüm çevrimiçi kullanıcıların paylaştığı tek presence kapsamı.
const PresenceTopic = "presence:global"

// Topic ön ekleri
const (
	typingPrefix        = "typing:"
	messagesPrefix      = "messages:"
	conversationsPrefix = "conversations:"
)

// TypingTopic, bir konuşmanın yazıyor göstergesi kapsamı.
func TypingTopic(conversationID string) string {
	return typingPrefix + conversationID
}

// MessagesTopic, bir kullanıcının açık konuşma akışı. Kullanıcı ID'si topic'e
// dahildir; aynı konuşmayı açan her kullanıcı kendi change-feed'ini alır.
func MessagesTopic(conversationID, userID string) string {
	return messagesPrefix + conversationID + ":" + userID
}

// ConversationsTopic, bir kullanıcının konuşma listesi change-feed'i.
func ConversationsTopic(userID string) string {
	return conversationsPrefix + userID
}

// TopicKind, ParseTopic sonucu.
type TopicKind int

const (
	TopicUnknown TopicKind = iota
	TopicPresence
	TopicTyping
	TopicMessages
	TopicConversations
)

// ParsedTopic, topic adından çıkarılan kapsam bilgisi.
type ParsedTopic struct {
	Kind           TopicKind
	ConversationID string
	UserID         string
}

// ParseTopic, topic adını türüne ve ID'lerine ayırır.
// Tanınmayan veya eksik ID'li topic'ler TopicUnknown döner.
func ParseTopic(topic string) ParsedTopic {
	switch {
	case topic == PresenceTopic:
		return ParsedTopic{Kind: TopicPresence}

	case strings.HasPrefix(topic, typingPrefix):
		conv := strings.TrimPrefix(topic, typingPrefix)
		if conv == "" {
			break
		}
		return ParsedTopic{Kind: TopicTyping, ConversationID: conv}

	case strings.HasPrefix(topic, messagesPrefix):
		conv, user, ok := strings.Cut(strings.TrimPrefix(topic, messagesPrefix), ":")
		if !ok || conv == "" || user == "" {
			break
		}
		return ParsedTopic{Kind: TopicMessages, ConversationID: conv, UserID: user}

	case strings.HasPrefix(topic, conversationsPrefix):
		user := strings.TrimPrefix(topic, conversationsPrefix)
		if user == "" {
			break
		}
		return ParsedTopic{Kind: TopicConversations, UserID: user}
	}
	return ParsedTopic{Kind: TopicUnknown}
}
