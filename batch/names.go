package batch

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"unicode"
)

// DefaultFileName is used when a URL has no usable last path segment.
const DefaultFileName = "downloaded-file"

// FileName derives a local file name from the last path segment of rawURL,
// ignoring any query string. The segment is unescaped and otherwise kept as
// is; only path separators and control characters are replaced.
func FileName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return DefaultFileName
	}

	escaped := u.EscapedPath()
	if escaped == "" || strings.HasSuffix(escaped, "/") {
		return DefaultFileName
	}

	seg, err := url.PathUnescape(path.Base(escaped))
	if err != nil {
		return DefaultFileName
	}

	name := strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\':
			return '_'
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, seg)

	if strings.TrimSpace(name) == "" || name == "." || name == ".." {
		return DefaultFileName
	}

	return name
}

// destinations hands out paths inside dir. A path stays claimed until it
// is released, so tasks of concurrent jobs never share a destination or
// its ".part" file.
type destinations struct {
	dir string

	mu   sync.Mutex
	used map[string]struct{}
}

func newDestinations(dir string) *destinations {
	return &destinations{dir: dir, used: make(map[string]struct{})}
}

// resolve claims the path for spec, adding " (n)" before the extension
// when a running task already holds the name.
func (d *destinations) resolve(spec Spec) (string, error) {
	name := spec.Dest
	if name == "" {
		name = FileName(spec.URL)
	} else if !filepath.IsLocal(name) {
		return "", errors.New("must be a relative path inside the download directory")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	p := filepath.Join(d.dir, name)
	if _, ok := d.used[p]; ok {
		ext := filepath.Ext(p)
		base := strings.TrimSuffix(p, ext)
		for n := 1; ; n++ {
			candidate := fmt.Sprintf("%s (%d)%s", base, n, ext)
			if _, ok := d.used[candidate]; !ok {
				p = candidate
				break
			}
		}
	}

	d.used[p] = struct{}{}

	return p, nil
}

// release frees paths for later jobs. Empty paths are ignored.
func (d *destinations) release(paths ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, p := range paths {
		delete(d.used, p)
	}
}
