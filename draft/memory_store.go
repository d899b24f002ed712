package draft

import (
	"context"
	"time"

	ttlworker "github.com/FloatTech/ttl"

	"github.com/moyoez/submitsession/types"
)

// DefaultMemoryTTL bounds how long an in-memory draft survives without being re-saved.
const DefaultMemoryTTL = 24 * time.Hour

// MemoryStore keeps the draft in a TTL cache; used when no durable path is configured and in tests.
type MemoryStore struct {
	cache *ttlworker.Cache[string, *types.Draft]
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultMemoryTTL
	}
	return &MemoryStore{cache: ttlworker.NewCache[string, *types.Draft](ttl)}
}

func (s *MemoryStore) Load(ctx context.Context) (types.Draft, bool, error) {
	d := s.cache.Get(Key)
	if d == nil {
		return types.Draft{}, false, nil
	}
	return cloneDraft(*d), true, nil
}

func (s *MemoryStore) Save(ctx context.Context, d types.Draft) error {
	c := cloneDraft(d)
	s.cache.Set(Key, &c)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context) error {
	s.cache.Delete(Key)
	return nil
}

func cloneDraft(d types.Draft) types.Draft {
	if d.ArticleType != nil {
		at := *d.ArticleType
		d.ArticleType = &at
	}
	return d
}
