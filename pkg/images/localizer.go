// Package images localizes remote images referenced by chapter bodies:
// each distinct URL is downloaded once per run, stored under a
// content-addressed name, and every reference is rewritten to the local
// relative path.
package images

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// DefaultSiteBase resolves site-relative image references.
const DefaultSiteBase = "https://juejin.cn/"

const downloadTimeout = 30 * time.Second

// markdownImagePattern matches the inline form ![caption](url "title").
var markdownImagePattern = regexp.MustCompile(`!\[[^\]]*\]\(\s*([^)\s]+)(?:\s+"[^"]*")?\s*\)`)

var extByContentType = map[string]string{
	"image/png":     ".png",
	"image/jpeg":    ".jpg",
	"image/gif":     ".gif",
	"image/webp":    ".webp",
	"image/svg+xml": ".svg",
	"image/bmp":     ".bmp",
}

var knownExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".webp": true, ".svg": true, ".bmp": true,
}

// entry is one cache slot. The sync.Once is the atomic claim: whichever
// worker gets there first downloads, everyone else reuses the outcome.
// local stays empty on failure, which means "keep the remote reference".
type entry struct {
	once  sync.Once
	local string
}

// Localizer serves one run of one booklet. Safe for concurrent use by
// multiple chapter workers.
type Localizer struct {
	client *http.Client
	base   *url.URL
	dir    string
	rel    string
	logger *log.Logger

	mu    sync.Mutex
	cache map[string]*entry
	count int
}

// NewLocalizer builds a localizer writing into dir and rewriting
// references to rel/<name>. baseURL defaults to DefaultSiteBase.
func NewLocalizer(dir, rel, baseURL string, logger *log.Logger) (*Localizer, error) {
	if baseURL == "" {
		baseURL = DefaultSiteBase
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing site base %s: %w", baseURL, err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating image directory: %w", err)
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Localizer{
		client: &http.Client{Timeout: downloadTimeout},
		base:   base,
		dir:    dir,
		rel:    rel,
		logger: logger,
		cache:  make(map[string]*entry),
	}, nil
}

// Localize rewrites every remote image reference in body to a local
// relative path, downloading each distinct URL at most once. References
// whose download fails are left untouched. Already-local references are
// not remote, so running Localize on its own output changes nothing.
func (l *Localizer) Localize(ctx context.Context, body string) string {
	for _, raw := range l.discover(body) {
		local := l.claim(ctx, raw)
		if local == "" {
			continue
		}
		body = strings.ReplaceAll(body, raw, local)
	}
	return body
}

// Count reports how many image files this run has written.
func (l *Localizer) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// discover returns the distinct remote-looking references in body, first
// occurrence first, across both the markdown and the embedded-tag syntax.
func (l *Localizer) discover(body string) []string {
	seen := make(map[string]bool)
	var refs []string
	add := func(raw string) {
		if raw == "" || seen[raw] {
			return
		}
		seen[raw] = true
		refs = append(refs, raw)
	}

	for _, m := range markdownImagePattern.FindAllStringSubmatch(body, -1) {
		add(m[1])
	}

	// Booklet bodies embed raw <img> tags alongside markdown; the HTML
	// parser leaves the markdown text alone and still finds the tags.
	if strings.Contains(body, "<img") {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
		if err == nil {
			doc.Find("img[src]").Each(func(_ int, sel *goquery.Selection) {
				src, _ := sel.Attr("src")
				add(src)
			})
		}
	}
	return refs
}

// claim resolves raw to a local relative path, downloading on first use.
// Returns "" when the reference should stay remote.
func (l *Localizer) claim(ctx context.Context, raw string) string {
	canonical := l.canonicalize(raw)
	if canonical == "" {
		return ""
	}

	l.mu.Lock()
	e, ok := l.cache[canonical]
	if !ok {
		e = &entry{}
		l.cache[canonical] = e
	}
	l.mu.Unlock()

	e.once.Do(func() {
		local, err := l.download(ctx, canonical)
		if err != nil {
			l.logger.Printf("WARN: image %s not localized: %v", canonical, err)
			return
		}
		e.local = local
		l.mu.Lock()
		l.count++
		l.mu.Unlock()
	})
	return e.local
}

// canonicalize resolves raw against the site base and returns an absolute
// http(s) URL, or "" for references that are not remote images (local
// relative paths, data URIs, and the like).
func (l *Localizer) canonicalize(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	switch {
	case u.Scheme == "http" || u.Scheme == "https":
		return u.String()
	case u.Scheme == "" && (strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/")):
		return l.base.ResolveReference(u).String()
	default:
		return ""
	}
}

func (l *Localizer) download(ctx context.Context, src string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return "", err
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	name := localName(src, resp.Header.Get("Content-Type"))
	dest := filepath.Join(l.dir, name)

	f, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(dest)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	// Forward slashes regardless of platform: this goes into markdown.
	return path.Join(l.rel, name), nil
}

// localName derives the stored filename from a hash of the source URL and
// a sniffed extension, so the same remote asset always maps to the same
// local name and concurrent overwrites are byte-identical.
func localName(src, contentType string) string {
	sum := sha256.Sum256([]byte(src))
	return fmt.Sprintf("%x", sum[:8]) + extensionFor(contentType, src)
}

func extensionFor(contentType, src string) string {
	if contentType != "" {
		mt, _, err := mime.ParseMediaType(contentType)
		if err == nil {
			if ext, ok := extByContentType[mt]; ok {
				return ext
			}
		}
	}
	if u, err := url.Parse(src); err == nil {
		if ext := strings.ToLower(path.Ext(u.Path)); knownExts[ext] {
			return ext
		}
	}
	return ".png"
}
