package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

const (
	lockFileName  = ".stitch.lock"
	workDirPrefix = "stitch-"
	manifestName  = "concat.txt"

	lockRetryDelay = 250 * time.Millisecond
)

// Stitch strategies
const (
	StrategyCopy     = "copy"
	StrategyReencode = "reencode"
)

// ErrNoInputs is returned when Stitch is called without clips.
var ErrNoInputs = errors.New("no clips to stitch")

// StitchError is returned when both the stream copy and the re-encode failed.
type StitchError struct {
	Copy     CommandLog `json:"copy"`
	Reencode CommandLog `json:"reencode"`
}

func (e *StitchError) Error() string {
	return fmt.Sprintf("ffmpeg concat failed: stream copy (exit %d): %s; re-encode (exit %d): %s",
		e.Copy.ExitCode, strings.TrimSpace(e.Copy.Stderr),
		e.Reencode.ExitCode, strings.TrimSpace(e.Reencode.Stderr))
}

// ClipSource materializes one clip ref as a local file inside destDir.
type ClipSource interface {
	Acquire(ctx context.Context, index int, ref, destDir string) (string, error)
}

// StitcherConfig configures the stitching engine.
type StitcherConfig struct {
	FFmpegPath string
	// FFprobePath enables validation of the stitched file when set.
	FFprobePath    string
	TempDir        string
	ReencodePreset string
	ReencodeCRF    int
}

// Result describes a stitched video.
type Result struct {
	OutputPath string
	Strategy   string
	Clips      int
	// Duration is in seconds; zero when the output was not inspected.
	Duration float64
}

// Stitcher concatenates clips with ffmpeg.
type Stitcher struct {
	cfg    StitcherConfig
	source ClipSource
	runner commandRunner
	logger *slog.Logger
	now    func() time.Time
}

// NewStitcher creates a Stitcher that runs ffmpeg through os/exec.
func NewStitcher(cfg StitcherConfig, source ClipSource, logger *slog.Logger) *Stitcher {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if cfg.ReencodePreset == "" {
		cfg.ReencodePreset = "medium"
	}
	if cfg.ReencodeCRF <= 0 {
		cfg.ReencodeCRF = 23
	}
	return &Stitcher{
		cfg:    cfg,
		source: source,
		runner: execRunner{},
		logger: logger,
		now:    time.Now,
	}
}

// Stitch acquires refs in order and concatenates them into outputPath. The
// output appears at outputPath only when stitching succeeded, and all
// intermediate files are removed on every exit.
func (s *Stitcher) Stitch(ctx context.Context, refs []string, outputPath string) (*Result, error) {
	if len(refs) == 0 {
		return nil, ErrNoInputs
	}

	outDir := filepath.Dir(outputPath)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", outDir, err)
	}

	lock := flock.New(filepath.Join(outDir, lockFileName))
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to lock output directory %s: %w", outDir, err)
	}
	if !locked {
		return nil, fmt.Errorf("output directory %s is locked by another stitch", outDir)
	}
	defer lock.Unlock()

	workDir, err := os.MkdirTemp(s.cfg.TempDir, workDirPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			s.logger.Warn("Failed to remove work directory",
				slog.String("dir", workDir),
				slog.Any("error", err),
			)
		}
	}()

	clips := make([]string, 0, len(refs))
	for i, ref := range refs {
		local, err := s.source.Acquire(ctx, i, ref, workDir)
		if err != nil {
			return nil, err
		}
		clips = append(clips, local)
	}

	manifest := filepath.Join(workDir, manifestName)
	if err := os.WriteFile(manifest, []byte(buildManifest(clips)), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write concat manifest: %w", err)
	}

	ext := filepath.Ext(outputPath)
	if ext == "" {
		ext = defaultClipExt
	}
	rendered := filepath.Join(workDir, "stitched"+ext)

	strategy, err := s.concat(ctx, manifest, rendered)
	if err != nil {
		return nil, err
	}

	result := &Result{OutputPath: outputPath, Strategy: strategy, Clips: len(clips)}
	if s.cfg.FFprobePath != "" {
		info, err := inspect(ctx, s.runner, s.cfg.FFprobePath, rendered)
		if err != nil {
			return nil, fmt.Errorf("stitched output failed validation: %w", err)
		}
		if info.VideoStreams() == 0 {
			return nil, errors.New("stitched output failed validation: no video stream")
		}
		result.Duration = info.DurationSeconds()
	}

	if err := moveFile(rendered, outputPath); err != nil {
		return nil, fmt.Errorf("failed to move stitched output into place: %w", err)
	}

	s.logger.Info("Clips stitched",
		slog.String("output", outputPath),
		slog.String("strategy", strategy),
		slog.Int("clips", len(clips)),
		slog.Float64("duration_seconds", result.Duration),
	)
	return result, nil
}

// concat tries a stream copy first and re-encodes when the clips'
// codec parameters do not line up.
func (s *Stitcher) concat(ctx context.Context, manifest, output string) (string, error) {
	input := []string{"-hide_banner", "-y", "-f", "concat", "-safe", "0", "-i", manifest}

	copyArgs := append(append([]string(nil), input...), "-c", "copy", output)
	res, err := s.runner.Run(ctx, s.cfg.FFmpegPath, copyArgs...)
	if err == nil {
		return StrategyCopy, nil
	}
	copyLog := newCommandLog(s.cfg.FFmpegPath, copyArgs, res, err)
	if ctx.Err() != nil {
		return "", fmt.Errorf("stitch canceled: %w", ctx.Err())
	}

	s.logger.Warn("Stream copy failed, re-encoding",
		slog.Int("exit_code", copyLog.ExitCode),
	)
	os.Remove(output)

	reencodeArgs := append(append([]string(nil), input...),
		"-c:v", "libx264",
		"-preset", s.cfg.ReencodePreset,
		"-crf", strconv.Itoa(s.cfg.ReencodeCRF),
		"-c:a", "aac",
		output,
	)
	res, err = s.runner.Run(ctx, s.cfg.FFmpegPath, reencodeArgs...)
	if err == nil {
		return StrategyReencode, nil
	}

	return "", &StitchError{
		Copy:     copyLog,
		Reencode: newCommandLog(s.cfg.FFmpegPath, reencodeArgs, res, err),
	}
}

// buildManifest renders an ffmpeg concat demuxer list.
func buildManifest(paths []string) string {
	var b strings.Builder
	for _, p := range paths {
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(p, "'", `'\''`))
		b.WriteString("'\n")
	}
	return b.String()
}

// moveFile renames src to dst, copying across filesystems. A copy lands in a
// sibling temp file first so dst is never left half written.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	partial := dst + ".partial"
	if err := writeFile(partial, in); err != nil {
		return err
	}
	if err := os.Rename(partial, dst); err != nil {
		os.Remove(partial)
		return err
	}
	return nil
}

// SweepStale removes work directories older than maxAge left behind by
// interrupted processes and reports how many were removed.
func (s *Stitcher) SweepStale(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.cfg.TempDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read temp directory: %w", err)
	}

	cutoff := s.now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), workDirPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		dir := filepath.Join(s.cfg.TempDir, entry.Name())
		if err := os.RemoveAll(dir); err != nil {
			s.logger.Warn("Failed to remove stale work directory",
				slog.String("dir", dir),
				slog.Any("error", err),
			)
			continue
		}
		removed++
	}

	if removed > 0 {
		s.logger.Info("Removed stale work directories", slog.Int("count", removed))
	}
	return removed, nil
}
