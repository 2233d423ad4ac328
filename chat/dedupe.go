package chat

import "github.com/akinalp/pitchline/models"

// IsSelfConversation, direct konuşmanın kullanıcının kendisiyle olup olmadığını
// belirler: 2'den az farklı üye, viewer dışında üye olmaması veya karşı tarafın
// adının viewer'ın adıyla aynı olması. Grup konuşmaları hiçbir zaman self değildir.
func IsSelfConversation(conv models.Conversation, members []models.ConversationMember, viewer Viewer) bool {
	if conv.IsGroup {
		return false
	}

	distinct := make(map[string]bool, len(members))
	for _, m := range members {
		distinct[m.ProfileID] = true
	}
	if len(distinct) < 2 {
		return true
	}

	other, ok := otherMember(members, viewer.ID)
	if !ok {
		return true
	}
	name := other.DisplayName
	if conv.Title != nil {
		name = *conv.Title
	}
	return viewer.DisplayName != "" && name == viewer.DisplayName
}

// otherMember, viewer dışındaki ilk üye.
func otherMember(members []models.ConversationMember, viewerID string) (models.ConversationMember, bool) {
	for _, m := range members {
		if m.ProfileID != viewerID {
			return m, true
		}
	}
	return models.ConversationMember{}, false
}

// DedupeCommunity, aynı başlıklı birden fazla topluluk kanalı satırından
// yalnızca birini bırakır.
//
// canonicalID biliniyorsa ve listede varsa o satır kalır; aksi halde ilk
// karşılaşılan satır kalır. Diğer kayıtların sırası korunur.
func DedupeCommunity(items []Conversation, title, canonicalID string) []Conversation {
	keep := ""
	for _, c := range items {
		if !isCommunity(c, title) {
			continue
		}
		if canonicalID != "" && c.ID == canonicalID {
			keep = c.ID
			break
		}
		if keep == "" {
			keep = c.ID
		}
	}

	out := make([]Conversation, 0, len(items))
	for _, c := range items {
		if isCommunity(c, title) && c.ID != keep {
			continue
		}
		out = append(out, c)
	}
	return out
}

func isCommunity(c Conversation, title string) bool {
	return c.Type == TypeChannel && c.Name == title
}
