package session

import (
	"errors"
	"net/url"
	"strings"

	"github.com/moyoez/submitsession/tool"
	"github.com/moyoez/submitsession/types"
)

var (
	// ErrNotIdle is returned by registry edits once a run has left idle.
	ErrNotIdle = errors.New("session is not idle")
	// ErrItemNotFound is returned when removing an unknown file or link.
	ErrItemNotFound = errors.New("item not found")
	// ErrInvalidLink is returned for empty or non-http(s) links.
	ErrInvalidLink = errors.New("invalid link")
)

// Registry is the only write path for user content.
type Registry struct {
	record *Record
	onEdit func()
	newID  func() string
}

// NewRegistry wraps record. onEdit (may be nil) is called after text or article type edits.
func NewRegistry(record *Record, onEdit func()) *Registry {
	return &Registry{record: record, onEdit: onEdit, newID: tool.GenerateRandomUUID}
}

func (r *Registry) edit(fn func(s *types.Session) error) error {
	var err error
	r.record.Apply(func(s *types.Session) {
		if s.Status != types.StatusIdle {
			err = ErrNotIdle
			return
		}
		err = fn(s)
	})
	return err
}

func (r *Registry) touched() {
	if r.onEdit != nil {
		r.onEdit()
	}
}

// SetText replaces the free-text content.
func (r *Registry) SetText(text string) error {
	err := r.edit(func(s *types.Session) error {
		s.TextContent = text
		return nil
	})
	if err == nil {
		r.touched()
	}
	return err
}

// SetArticleType sets (or clears, with nil) the classification tag.
func (r *Registry) SetArticleType(articleType *types.ArticleType) error {
	err := r.edit(func(s *types.Session) error {
		if articleType == nil {
			s.ArticleType = nil
			return nil
		}
		at := *articleType
		s.ArticleType = &at
		return nil
	})
	if err == nil {
		r.touched()
	}
	return err
}

// AddFiles appends one queued item per ref, in order.
func (r *Registry) AddFiles(refs []types.FileRef) ([]types.UploadItem, error) {
	added := make([]types.UploadItem, 0, len(refs))
	err := r.edit(func(s *types.Session) error {
		for _, ref := range refs {
			item := types.UploadItem{
				ID:     r.newID(),
				File:   ref,
				Status: types.ItemQueued,
			}
			s.Files = append(s.Files, item)
			added = append(added, item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}

// RemoveFile drops a file while idle.
func (r *Registry) RemoveFile(id string) error {
	return r.edit(func(s *types.Session) error {
		for i := range s.Files {
			if s.Files[i].ID == id {
				s.Files = append(s.Files[:i], s.Files[i+1:]...)
				return nil
			}
		}
		return ErrItemNotFound
	})
}

// AddLink validates rawURL and appends a queued link.
func (r *Registry) AddLink(rawURL string) (types.LinkItem, error) {
	rawURL = strings.TrimSpace(rawURL)
	u, err := url.Parse(rawURL)
	if rawURL == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return types.LinkItem{}, ErrInvalidLink
	}
	item := types.LinkItem{ID: r.newID(), URL: rawURL, Status: types.ItemQueued}
	err = r.edit(func(s *types.Session) error {
		s.Links = append(s.Links, item)
		return nil
	})
	if err != nil {
		return types.LinkItem{}, err
	}
	return item, nil
}

// RemoveLink drops a link while idle.
func (r *Registry) RemoveLink(id string) error {
	return r.edit(func(s *types.Session) error {
		for i := range s.Links {
			if s.Links[i].ID == id {
				s.Links = append(s.Links[:i], s.Links[i+1:]...)
				return nil
			}
		}
		return ErrItemNotFound
	})
}
