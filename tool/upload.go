package tool

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// NextAvailablePath returns the first path under dir that does not exist, using fileName
// and if it exists, trying base-2.ext, base-3.ext, ... (e.g. txt.txt -> txt-2.txt, txt-3.txt).
func NextAvailablePath(dir, fileName string) string {
	ext := filepath.Ext(fileName)
	base := strings.TrimSuffix(filepath.Base(fileName), ext)
	if base == "" {
		base = fileName
		ext = ""
	}
	try := filepath.Join(dir, fileName)
	if _, err := os.Stat(try); os.IsNotExist(err) {
		return try
	}
	for n := 2; ; n++ {
		try = filepath.Join(dir, fmt.Sprintf("%s-%d%s", base, n, ext))
		if _, err := os.Stat(try); os.IsNotExist(err) {
			return try
		}
	}
}

// ProgressReader reports integer percentages while the wrapped reader is consumed.
// It stops with ctx.Err() once ctx is done.
type ProgressReader struct {
	ctx        context.Context
	src        io.Reader
	total      int64
	read       int64
	last       int
	onProgress func(percent int)
	mu         sync.Mutex
}

func NewProgressReader(ctx context.Context, src io.Reader, total int64, onProgress func(percent int)) *ProgressReader {
	return &ProgressReader{ctx: ctx, src: src, total: total, last: -1, onProgress: onProgress}
}

func (r *ProgressReader) Read(p []byte) (int, error) {
	select {
	case <-r.ctx.Done():
		return 0, r.ctx.Err()
	default:
	}
	n, err := r.src.Read(p)
	if n > 0 {
		r.report(int64(n))
	}
	return n, err
}

func (r *ProgressReader) report(n int64) {
	r.mu.Lock()
	r.read += n
	percent := 100
	if r.total > 0 {
		percent = int(r.read * 100 / r.total)
	}
	percent = min(max(percent, 0), 100)
	changed := percent != r.last
	r.last = percent
	r.mu.Unlock()
	if changed && r.onProgress != nil {
		r.onProgress(percent)
	}
}
