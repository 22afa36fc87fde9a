// Package media acquires rendered clips and stitches them into one video.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/cuongbtq/avatar-podcast/internal/avatar"
)

const defaultClipExt = ".mp4"

var (
	renderIDPattern     = regexp.MustCompile(`^[a-fA-F0-9]{32}$`)
	dashboardURLPattern = regexp.MustCompile(`/videos/([a-fA-F0-9]{32})/?$`)
)

// RenderResolver turns a provider render reference into a downloadable URL.
type RenderResolver interface {
	ClipStatus(ctx context.Context, renderRef string) avatar.StatusResult
}

// AcquireError attributes an acquisition failure to one clip.
type AcquireError struct {
	Index int
	Ref   string
	Err   error
}

func (e *AcquireError) Error() string {
	return fmt.Sprintf("clip %d (%s): %v", e.Index, e.Ref, e.Err)
}

func (e *AcquireError) Unwrap() error {
	return e.Err
}

// AcquirerConfig configures clip acquisition.
type AcquirerConfig struct {
	// BaseDir anchors relative local refs. Its parent is tried once as a fallback.
	BaseDir         string
	DownloadTimeout time.Duration
	HTTPClient      *http.Client
	// Resolver is optional; without it render references cannot be acquired.
	Resolver RenderResolver
}

// Acquirer materializes clip refs as local files.
type Acquirer struct {
	cfg    AcquirerConfig
	http   *http.Client
	logger *slog.Logger
}

// NewAcquirer creates an Acquirer.
func NewAcquirer(cfg AcquirerConfig, logger *slog.Logger) *Acquirer {
	if cfg.BaseDir == "" {
		cfg.BaseDir = "."
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = 10 * time.Minute
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Acquirer{cfg: cfg, http: httpClient, logger: logger}
}

// Acquire downloads or copies ref into destDir as clip_NNN.<ext> and returns
// the local path. Local sources are copied, never moved.
func (a *Acquirer) Acquire(ctx context.Context, index int, ref, destDir string) (string, error) {
	return a.fetch(ctx, index, ref, destDir, clipName)
}

// Archive keeps a copy of a ready turn's video as destDir/turn-NNN.<ext>,
// creating destDir when needed, and returns the absolute archive path.
// Archiving a ref that already is the archive file is a no-op.
func (a *Acquirer) Archive(ctx context.Context, index int, ref, destDir string) (string, error) {
	dir, err := filepath.Abs(destDir)
	if err != nil {
		return "", &AcquireError{Index: index, Ref: ref, Err: err}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &AcquireError{Index: index, Ref: ref, Err: fmt.Errorf("failed to create archive directory: %w", err)}
	}
	return a.fetch(ctx, index, ref, dir, archiveName)
}

func (a *Acquirer) fetch(ctx context.Context, index int, ref, destDir string, name func(int, string) string) (string, error) {
	ref = strings.TrimSpace(ref)
	wrap := func(err error) error {
		return &AcquireError{Index: index, Ref: ref, Err: err}
	}
	if ref == "" {
		return "", wrap(errors.New("empty video ref"))
	}

	source := ref
	if id, ok := renderID(ref); ok {
		resolved, err := a.resolveRender(ctx, id)
		if err != nil {
			return "", wrap(err)
		}
		source = resolved
	}

	if u, ok := remoteURL(source); ok {
		dest := filepath.Join(destDir, name(index, path.Ext(u.Path)))
		if err := a.download(ctx, u.String(), dest); err != nil {
			return "", wrap(err)
		}
		return dest, nil
	}

	dest := filepath.Join(destDir, name(index, filepath.Ext(source)))
	if err := a.copyLocal(source, dest); err != nil {
		return "", wrap(err)
	}
	return dest, nil
}

// renderID extracts a provider render id from a bare 32-hex id or a
// dashboard URL ending in /videos/<id>.
func renderID(ref string) (string, bool) {
	if renderIDPattern.MatchString(ref) {
		return ref, true
	}
	u, ok := remoteURL(ref)
	if !ok {
		return "", false
	}
	if m := dashboardURLPattern.FindStringSubmatch(u.Path); m != nil {
		return m[1], true
	}
	return "", false
}

func remoteURL(ref string) (*url.URL, bool) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, false
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, false
	}
	return u, true
}

func clipName(index int, ext string) string {
	if ext == "" {
		ext = defaultClipExt
	}
	return fmt.Sprintf("clip_%03d%s", index, ext)
}

func archiveName(index int, ext string) string {
	if ext == "" {
		ext = defaultClipExt
	}
	return fmt.Sprintf("turn-%03d%s", index, ext)
}

func (a *Acquirer) resolveRender(ctx context.Context, id string) (string, error) {
	hint := fmt.Errorf("could not resolve render id %s to a video URL; supply the direct video download URL instead", id)
	if a.cfg.Resolver == nil {
		return "", hint
	}

	status := a.cfg.Resolver.ClipStatus(ctx, id)
	if !status.Resolved || status.VideoRef == "" {
		return "", hint
	}
	if _, ok := remoteURL(status.VideoRef); !ok {
		return "", fmt.Errorf("render id %s resolved to a non-URL video ref %q", id, status.VideoRef)
	}

	a.logger.Debug("Resolved render id",
		slog.String("render_id", id),
		slog.String("video_url", status.VideoRef),
	)
	return status.VideoRef, nil
}

func (a *Acquirer) download(ctx context.Context, rawURL, dest string) error {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.DownloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download video: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("failed to download video: HTTP %d", resp.StatusCode)
	}

	if err := writeFile(dest, resp.Body); err != nil {
		return fmt.Errorf("failed to download video: %w", err)
	}

	a.logger.Debug("Downloaded clip", slog.String("url", rawURL), slog.String("dest", dest))
	return nil
}

// localCandidates lists where a local ref may live: the ref itself when
// absolute or relative to BaseDir, then the same path under BaseDir's parent.
func (a *Acquirer) localCandidates(ref string) (primary, fallback string) {
	base, err := filepath.Abs(a.cfg.BaseDir)
	if err != nil {
		base = a.cfg.BaseDir
	}

	primary = ref
	if !filepath.IsAbs(ref) {
		primary = filepath.Join(base, ref)
	}
	fallback = filepath.Join(filepath.Dir(base), strings.TrimPrefix(filepath.ToSlash(ref), "/"))
	return primary, fallback
}

func (a *Acquirer) copyLocal(ref, dest string) error {
	primary, fallback := a.localCandidates(ref)

	source := primary
	if _, err := os.Stat(primary); err != nil {
		if _, ferr := os.Stat(fallback); ferr != nil {
			return fmt.Errorf("source file does not exist at %s or %s", primary, fallback)
		}
		source = fallback
	}
	if sameFile(source, dest) {
		return nil
	}

	in, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("failed to open local file %s: %w", source, err)
	}
	defer in.Close()

	if err := writeFile(dest, in); err != nil {
		return fmt.Errorf("failed to copy local file from %s: %w", source, err)
	}
	return nil
}

func sameFile(a, b string) bool {
	ai, err := os.Stat(a)
	if err != nil {
		return false
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ai, bi)
}

// writeFile streams r into path, removing the partial file on failure.
func writeFile(path string, r io.Reader) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		os.Remove(path)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(path)
		return err
	}
	return nil
}
