package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/akinalp/pitchline/models"
	"github.com/akinalp/pitchline/pkg"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// communityLookupLimit, topluluk kanalı ararken okunan en fazla satır.
const communityLookupLimit = 10

// resolveTimeout, paylaşılan arama/oluşturma işleminin üst süresi. İşlem
// hiçbir çağıranın context'ine bağlı değildir; bir çağıranın iptali
// bekleyen diğerlerini düşürmez.
const resolveTimeout = 15 * time.Second

// CommunityRegistrar, tekil topluluk kanalını bulur veya oluşturur ve
// kullanıcıları üye yapar.
//
// Process içinde paylaşılır: çözülen kanal ID'si cache'lenir, aynı anda gelen
// çağrılar tek bir (singleflight) arama/oluşturma işlemini bekler. Process'ler
// arası yarış storage katmanındaki canonical_key UNIQUE kısıtıyla çözülür;
// kaybeden taraf ErrAlreadyExists alır ve tekrar sorgular.
type CommunityRegistrar struct {
	title string
	log   zerolog.Logger

	group singleflight.Group

	mu        sync.Mutex
	channelID string
	enrolled  map[string]bool
}

func NewCommunityRegistrar(title string, log zerolog.Logger) *CommunityRegistrar {
	if strings.TrimSpace(title) == "" {
		title = DefaultCommunityTitle
	}
	return &CommunityRegistrar{
		title:    title,
		log:      log.With().Str("component", "community").Logger(),
		enrolled: make(map[string]bool),
	}
}

// Title, topluluk kanalının başlığı.
func (r *CommunityRegistrar) Title() string { return r.title }

// ChannelID, cache'lenmiş kanal ID'si; henüz çözülmediyse "".
func (r *CommunityRegistrar) ChannelID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.channelID
}

// Eligible, rolün topluluk kanalına otomatik katılıp katılmadığı.
func Eligible(role models.Role) bool {
	return role.IsValid()
}

// Ensure, topluluk kanalının ID'sini döner ve userID'yi üye yapar.
// store, userID adına çalışan Store olmalıdır. Rol uygun değilse "" döner.
//
// Başarılı kayıt cache'lenir; aynı kullanıcı için sonraki çağrılar backend'e gitmez.
func (r *CommunityRegistrar) Ensure(ctx context.Context, store Store, userID string, role models.Role) (string, error) {
	if !Eligible(role) {
		return "", nil
	}

	r.mu.Lock()
	id := r.channelID
	done := id != "" && r.enrolled[userID]
	r.mu.Unlock()
	if done {
		return id, nil
	}

	if id == "" {
		ch := r.group.DoChan("resolve", func() (any, error) {
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), resolveTimeout)
			defer cancel()
			return r.resolve(rctx, store)
		})
		select {
		case res := <-ch:
			if res.Err != nil {
				return "", res.Err
			}
			id = res.Val.(string)
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if err := r.enroll(ctx, store, id, userID); err != nil {
		return "", err
	}
	return id, nil
}

// enroll, kullanıcıyı üye yapar. Zaten üye olması (eşzamanlı başka bir çağrı
// veya grubu oluşturan kişinin owner kaydı) hata sayılmaz.
func (r *CommunityRegistrar) enroll(ctx context.Context, store Store, channelID, userID string) error {
	err := store.JoinGroup(ctx, channelID)
	if err != nil && !errors.Is(err, pkg.ErrAlreadyExists) {
		r.log.Warn().Err(err).Str("conversation_id", channelID).Str("user_id", userID).Msg("failed to join community channel")
		return fmt.Errorf("failed to join community channel: %w", err)
	}

	r.mu.Lock()
	r.enrolled[userID] = true
	r.mu.Unlock()
	return nil
}

// resolve, mevcut kanalı arar; yoksa canonical işaretiyle oluşturur.
// Oluşturma çakışırsa (başka bir process kazandı) tekrar arar.
func (r *CommunityRegistrar) resolve(ctx context.Context, store Store) (string, error) {
	id, err := r.lookup(ctx, store)
	if err != nil {
		return "", err
	}

	if id == "" {
		key := models.CommunityCanonicalKey
		conv, err := store.CreateGroup(ctx, models.CreateGroupRequest{
			Title:        r.title,
			Metadata:     models.Metadata{models.MetadataCanonical: true},
			CanonicalKey: &key,
		})
		switch {
		case err == nil:
			id = conv.ID
			r.log.Info().Str("conversation_id", id).Msg("community channel created")
		case errors.Is(err, pkg.ErrAlreadyExists):
			r.log.Debug().Msg("community channel created concurrently, re-querying")
			if id, err = r.lookup(ctx, store); err != nil {
				return "", err
			}
			if id == "" {
				return "", fmt.Errorf("%w: community channel conflict but no row found", pkg.ErrInternal)
			}
		default:
			return "", fmt.Errorf("failed to create community channel: %w", err)
		}
	}

	r.mu.Lock()
	r.channelID = id
	r.mu.Unlock()
	return id, nil
}

// lookup, başlığa göre grupları en eskiden yeniye okur; canonical işaretli
// olanı, yoksa en eskisini seçer. Hiç yoksa "".
func (r *CommunityRegistrar) lookup(ctx context.Context, store Store) (string, error) {
	groups, err := store.FindGroups(ctx, r.title, communityLookupLimit)
	if err != nil {
		return "", fmt.Errorf("failed to look up community channel: %w", err)
	}
	return pickCommunity(groups), nil
}

func pickCommunity(groups []models.Conversation) string {
	for _, g := range groups {
		if g.IsGroup && g.Metadata.Bool(models.MetadataCanonical) {
			return g.ID
		}
	}
	for _, g := range groups {
		if g.IsGroup {
			return g.ID
		}
	}
	return ""
}
