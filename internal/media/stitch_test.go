package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/avatar-podcast/shared/logger"
)

// fakeFFmpeg concatenates the files listed in the concat manifest so tests
// can check clip order in the output.
type fakeFFmpeg struct {
	mu        sync.Mutex
	calls     [][]string
	failCopy  bool
	failAll   bool
	infoJSON  string
	manifest  string
}

func (f *fakeFFmpeg) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{name}, args...))
	f.mu.Unlock()

	if name == "ffprobe" {
		return commandResult{Stdout: f.infoJSON}, nil
	}

	reencode := contains(args, "libx264")
	if f.failAll || (f.failCopy && !reencode) {
		return commandResult{Stderr: "Non-monotonous DTS in output stream", ExitCode: 1}, errors.New("exit status 1")
	}

	list := args[indexOf(args, "-i")+1]
	data, err := os.ReadFile(list)
	if err != nil {
		return commandResult{ExitCode: 1}, err
	}
	f.manifest = string(data)

	var out strings.Builder
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		path := strings.TrimSuffix(strings.TrimPrefix(line, "file '"), "'")
		path = strings.ReplaceAll(path, `'\''`, "'")
		clip, err := os.ReadFile(path)
		if err != nil {
			return commandResult{ExitCode: 1}, err
		}
		out.Write(clip)
		out.WriteString("|")
	}
	if err := os.WriteFile(args[len(args)-1], []byte(out.String()), 0o644); err != nil {
		return commandResult{ExitCode: 1}, err
	}
	return commandResult{}, nil
}

func contains(args []string, v string) bool {
	return indexOf(args, v) >= 0
}

func indexOf(args []string, v string) int {
	for i, a := range args {
		if a == v {
			return i
		}
	}
	return -1
}

type stitchFixture struct {
	stitcher *Stitcher
	runner   *fakeFFmpeg
	base     string
	temp     string
	out      string
}

func newStitchFixture(t *testing.T, withInfo bool) *stitchFixture {
	t.Helper()
	f := &stitchFixture{
		runner: &fakeFFmpeg{infoJSON: `{"streams":[{"codec_type":"video"},{"codec_type":"audio"}],"format":{"duration":"61.5"}}`},
		base:   t.TempDir(),
		temp:   t.TempDir(),
		out:    t.TempDir(),
	}
	cfg := StitcherConfig{TempDir: f.temp}
	if withInfo {
		cfg.FFprobePath = "ffprobe"
	}
	acq := NewAcquirer(AcquirerConfig{BaseDir: f.base}, logger.NewNop())
	f.stitcher = NewStitcher(cfg, acq, logger.NewNop())
	f.stitcher.runner = f.runner
	return f
}

func (f *stitchFixture) assertNoWorkDirs(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.temp)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStitcher_Stitch(t *testing.T) {
	srv := newClipServer(t)

	t.Run("local and remote clips in order", func(t *testing.T) {
		f := newStitchFixture(t, true)
		writeTestFile(t, filepath.Join(f.base, "outputs", "one.mp4"), "one")
		writeTestFile(t, filepath.Join(f.base, "outputs", "three.mp4"), "three")
		target := filepath.Join(f.out, "job-1", "stitched_job-1_1.mp4")

		res, err := f.stitcher.Stitch(context.Background(), []string{
			"outputs/one.mp4",
			srv.URL + "/clips/two.mp4",
			"outputs/three.mp4",
		}, target)
		require.NoError(t, err)

		assert.Equal(t, &Result{OutputPath: target, Strategy: StrategyCopy, Clips: 3, Duration: 61.5}, res)
		assert.Equal(t, "one|remote:two.mp4|three|", readTestFile(t, target))
		require.Len(t, f.runner.calls, 2)
		assert.Equal(t, []string{"-c", "copy"}, f.runner.calls[0][len(f.runner.calls[0])-3:len(f.runner.calls[0])-1])
		f.assertNoWorkDirs(t)
	})

	t.Run("falls back to re-encode", func(t *testing.T) {
		f := newStitchFixture(t, false)
		writeTestFile(t, filepath.Join(f.base, "a.mp4"), "a")
		f.runner.failCopy = true
		target := filepath.Join(f.out, "out.mp4")

		res, err := f.stitcher.Stitch(context.Background(), []string{"a.mp4"}, target)
		require.NoError(t, err)

		assert.Equal(t, StrategyReencode, res.Strategy)
		assert.Zero(t, res.Duration)
		reencode := f.runner.calls[1]
		assert.Equal(t, []string{"-c:v", "libx264", "-preset", "medium", "-crf", "23", "-c:a", "aac"}, reencode[len(reencode)-9:len(reencode)-1])
		assert.FileExists(t, target)
		f.assertNoWorkDirs(t)
	})

	t.Run("both strategies failing leaves no output", func(t *testing.T) {
		f := newStitchFixture(t, false)
		writeTestFile(t, filepath.Join(f.base, "a.mp4"), "a")
		f.runner.failAll = true
		target := filepath.Join(f.out, "out.mp4")

		_, err := f.stitcher.Stitch(context.Background(), []string{"a.mp4"}, target)
		require.Error(t, err)

		var stitchErr *StitchError
		require.True(t, errors.As(err, &stitchErr))
		assert.Equal(t, 1, stitchErr.Copy.ExitCode)
		assert.Contains(t, stitchErr.Reencode.Stderr, "Non-monotonous DTS")
		assert.Contains(t, stitchErr.Reencode.Args, "libx264")
		assert.NoFileExists(t, target)
		f.assertNoWorkDirs(t)
	})

	t.Run("acquisition failure aborts with the clip index", func(t *testing.T) {
		f := newStitchFixture(t, false)
		writeTestFile(t, filepath.Join(f.base, "a.mp4"), "a")
		target := filepath.Join(f.out, "out.mp4")

		_, err := f.stitcher.Stitch(context.Background(), []string{"a.mp4", srv.URL + "/missing.mp4"}, target)
		require.Error(t, err)

		var acqErr *AcquireError
		require.True(t, errors.As(err, &acqErr))
		assert.Equal(t, 1, acqErr.Index)
		assert.Empty(t, f.runner.calls)
		assert.NoFileExists(t, target)
		f.assertNoWorkDirs(t)
	})

	t.Run("output without video stream fails", func(t *testing.T) {
		f := newStitchFixture(t, true)
		f.runner.infoJSON = `{"streams":[{"codec_type":"audio"}],"format":{"duration":"3"}}`
		writeTestFile(t, filepath.Join(f.base, "a.mp4"), "a")
		target := filepath.Join(f.out, "out.mp4")

		_, err := f.stitcher.Stitch(context.Background(), []string{"a.mp4"}, target)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no video stream")
		assert.NoFileExists(t, target)
	})

	t.Run("no inputs", func(t *testing.T) {
		f := newStitchFixture(t, false)

		_, err := f.stitcher.Stitch(context.Background(), nil, filepath.Join(f.out, "out.mp4"))
		assert.ErrorIs(t, err, ErrNoInputs)
		assert.Empty(t, f.runner.calls)
	})

	t.Run("manifest escapes quotes in work paths", func(t *testing.T) {
		f := newStitchFixture(t, false)
		quoted := filepath.Join(f.temp, "it's")
		require.NoError(t, os.MkdirAll(quoted, 0o755))
		f.stitcher.cfg.TempDir = quoted
		writeTestFile(t, filepath.Join(f.base, "a.mp4"), "quoted")
		target := filepath.Join(f.out, "out.mp4")

		_, err := f.stitcher.Stitch(context.Background(), []string{"a.mp4"}, target)
		require.NoError(t, err)
		assert.Equal(t, "quoted|", readTestFile(t, target))
		assert.Contains(t, f.runner.manifest, `it'\''s`)
	})
}

func TestBuildManifest(t *testing.T) {
	got := buildManifest([]string{"/tmp/w/clip_000.mp4", "/tmp/it's/clip_001.mp4"})
	assert.Equal(t, "file '/tmp/w/clip_000.mp4'\nfile '/tmp/it'\\''s/clip_001.mp4'\n", got)
}

func TestStitcher_SweepStale(t *testing.T) {
	f := newStitchFixture(t, false)
	now := time.Now()
	f.stitcher.now = func() time.Time { return now }

	old := filepath.Join(f.temp, "stitch-old")
	fresh := filepath.Join(f.temp, "stitch-fresh")
	other := filepath.Join(f.temp, "unrelated")
	for _, dir := range []string{old, fresh, other} {
		require.NoError(t, os.MkdirAll(dir, 0o755))
	}
	past := now.Add(-7 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))
	require.NoError(t, os.Chtimes(other, past, past))

	removed, err := f.stitcher.SweepStale(6 * time.Hour)
	require.NoError(t, err)

	assert.Equal(t, 1, removed)
	assert.NoDirExists(t, old)
	assert.DirExists(t, fresh)
	assert.DirExists(t, other)
}

func TestStitchError_Error(t *testing.T) {
	err := &StitchError{
		Copy:     CommandLog{ExitCode: 1, Stderr: "bad copy\n"},
		Reencode: CommandLog{ExitCode: 234, Stderr: "bad encode"},
	}
	assert.Equal(t, fmt.Sprintf("ffmpeg concat failed: stream copy (exit %d): bad copy; re-encode (exit %d): bad encode", 1, 234), err.Error())
}
