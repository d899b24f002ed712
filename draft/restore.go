package draft

import (
	"context"
	"fmt"

	"github.com/moyoez/submitsession/session"
	"github.com/moyoez/submitsession/tool"
	"github.com/moyoez/submitsession/types"
)

// Restore loads the persisted draft and merges it into an idle record.
// Persisted values only fill fields that are currently empty. It reports whether anything was merged.
func Restore(ctx context.Context, store Store, record *session.Record) (bool, error) {
	d, ok, err := store.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("load draft: %w", err)
	}
	if !ok {
		return false, nil
	}

	merged := false
	record.Apply(func(s *types.Session) {
		if s.Status != types.StatusIdle {
			return
		}
		if s.TextContent == "" && d.TextContent != "" {
			s.TextContent = d.TextContent
			merged = true
		}
		if s.ArticleType == nil && d.ArticleType != nil {
			at := *d.ArticleType
			s.ArticleType = &at
			merged = true
		}
	})
	if merged {
		tool.DefaultLogger.Infof("[Draft] Restored draft saved at %s", d.LastSaved.Format("2006-01-02 15:04:05"))
	}
	return merged, nil
}
