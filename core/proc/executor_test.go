package proc

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/josephlewis42/jobsh/core/logger"
	"github.com/josephlewis42/jobsh/core/shell"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type eventLog struct {
	mu      sync.Mutex
	entries []logger.LogEntry
}

func (l *eventLog) Record(le *logger.LogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, *le)
	return nil
}

func (l *eventLog) kinds() (out []logger.Kind) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, le := range l.entries {
		out = append(out, le.Kind)
	}
	return
}

type executorFixture struct {
	*Executor
	dir     string
	stdout  *os.File
	stderr  *os.File
	notices *bytes.Buffer
	events  *eventLog
}

func newExecutorFixture(t *testing.T, maxJobs int) *executorFixture {
	t.Helper()

	dir := t.TempDir()
	stdout, err := os.Create(filepath.Join(dir, "stdout"))
	require.NoError(t, err)
	stderr, err := os.Create(filepath.Join(dir, "stderr"))
	require.NoError(t, err)
	stdin, err := os.Open(os.DevNull)
	require.NoError(t, err)

	reaper := NewReaper()
	reaper.Start()

	fixture := &executorFixture{
		dir:     dir,
		stdout:  stdout,
		stderr:  stderr,
		notices: &bytes.Buffer{},
		events:  &eventLog{},
	}
	fixture.Executor = &Executor{
		Launcher:    &Launcher{},
		Jobs:        NewJobTable(maxJobs),
		Reaper:      reaper,
		Events:      fixture.events,
		Stdin:       stdin,
		Stdout:      stdout,
		Stderr:      stderr,
		Notices:     fixture.notices,
		LabelLength: 511,
	}

	t.Cleanup(func() {
		reaper.Stop()
		stdin.Close()
		stdout.Close()
		stderr.Close()
	})

	return fixture
}

func (f *executorFixture) run(t *testing.T, line string) error {
	t.Helper()

	p, err := shell.Parse(shell.Tokenize(line))
	require.NoError(t, err)
	return f.Run(p)
}

func (f *executorFixture) path(name string) string {
	return filepath.Join(f.dir, name)
}

func countKind(kinds []logger.Kind, kind logger.Kind) (n int) {
	for _, k := range kinds {
		if k == kind {
			n++
		}
	}
	return
}

func readFile(t *testing.T, path string) string {
	t.Helper()

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestExecutor_Foreground(t *testing.T) {
	cases := map[string]struct {
		line   string
		want   string
		stages int
	}{
		"single stage": {
			line:   "echo hello world",
			want:   "hello world\n",
			stages: 1,
		},
		"two stages": {
			line:   "echo hi | wc -w",
			want:   "1",
			stages: 2,
		},
		"three stages": {
			line:   "printf b\\na\\nb\\n | sort | uniq",
			want:   "a\nb\n",
			stages: 3,
		},
		"long pipeline": {
			line:   "echo hi | cat | cat | cat | cat | cat | wc -c",
			want:   "3",
			stages: 7,
		},
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			f := newExecutorFixture(t, 0)

			require.NoError(t, f.run(t, tc.line))

			assert.Equal(t, strings.TrimSpace(tc.want), strings.TrimSpace(readFile(t, f.path("stdout"))))
			assert.Empty(t, readFile(t, f.path("stderr")))
			assert.Empty(t, f.notices.String())
			assert.Equal(t, 0, f.Jobs.Len())
			assert.Equal(t, tc.stages, countKind(f.events.kinds(), logger.KindStageLaunch))
		})
	}
}

func TestExecutor_ForegroundWaitsForEveryStage(t *testing.T) {
	f := newExecutorFixture(t, 0)
	marker := f.path("marker")
	script := fmt.Sprintf("sleep 0.3\ntouch %s\n", marker)
	require.NoError(t, os.WriteFile(f.path("slow.sh"), []byte(script), 0600))

	// The last stage exits right away, the first one finishes later.
	require.NoError(t, f.run(t, "sh "+f.path("slow.sh")+" | true"))

	assert.FileExists(t, marker)
	assert.Equal(t, 2, countKind(f.events.kinds(), logger.KindStageLaunch))

	out := &bytes.Buffer{}
	assert.Empty(t, f.Reconcile(out))
	assert.Empty(t, out.String())
}

func TestExecutor_Redirection(t *testing.T) {
	f := newExecutorFixture(t, 0)
	require.NoError(t, os.WriteFile(f.path("in"), []byte("b\na\nb\n"), 0600))

	require.NoError(t, f.run(t, fmt.Sprintf("sort < %s | uniq > %s", f.path("in"), f.path("out"))))

	assert.Equal(t, "a\nb\n", readFile(t, f.path("out")))
	assert.Empty(t, readFile(t, f.path("stdout")))
}

func TestExecutor_RedirectionTruncates(t *testing.T) {
	f := newExecutorFixture(t, 0)
	require.NoError(t, os.WriteFile(f.path("out"), []byte("a much longer previous content\n"), 0600))

	require.NoError(t, f.run(t, "echo out > "+f.path("out")))

	assert.Equal(t, "out\n", readFile(t, f.path("out")))
}

func TestExecutor_MissingInput(t *testing.T) {
	f := newExecutorFixture(t, 0)

	err := f.run(t, fmt.Sprintf("cat < %s | wc -l", f.path("missing")))

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRedirectionFailed))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	var launchErr *LaunchError
	require.True(t, errors.As(err, &launchErr))
	assert.Equal(t, 0, launchErr.Stage)
	assert.Equal(t, "cat", launchErr.Name)

	// Nothing after the failed stage is started.
	assert.Empty(t, readFile(t, f.path("stdout")))
	assert.Equal(t, []logger.Kind{logger.KindPipelineStart, logger.KindLaunchFailed}, f.events.kinds())
}

func TestExecutor_LaterStageRedirectionFails(t *testing.T) {
	f := newExecutorFixture(t, 0)
	output := filepath.Join(f.dir, "no", "such", "dir")

	start := time.Now()
	err := f.run(t, "sleep 0.3 | cat > "+output)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRedirectionFailed))

	var launchErr *LaunchError
	require.True(t, errors.As(err, &launchErr))
	assert.Equal(t, 1, launchErr.Stage)
	assert.Equal(t, "cat", launchErr.Name)

	// The stage that did start is still waited for.
	assert.GreaterOrEqual(t, int64(elapsed), int64(300*time.Millisecond))
	assert.Equal(t, []logger.Kind{
		logger.KindPipelineStart,
		logger.KindStageLaunch,
		logger.KindLaunchFailed,
	}, f.events.kinds())

	out := &bytes.Buffer{}
	assert.Empty(t, f.Reconcile(out))
	assert.Empty(t, out.String())
	assert.Equal(t, 0, f.Jobs.Len())
}

func TestExecutor_LaterStageRedirectionFailsInBackground(t *testing.T) {
	f := newExecutorFixture(t, 0)
	output := filepath.Join(f.dir, "no", "such", "dir")

	err := f.run(t, "sleep 0.1 | cat > "+output+" &")

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRedirectionFailed))
	assert.Equal(t, 0, f.Jobs.Len())
	assert.Empty(t, f.notices.String())
	assert.NotContains(t, f.events.kinds(), logger.KindJobRegistered)

	// The orphaned first stage is reaped without a completion notice.
	time.Sleep(300 * time.Millisecond)
	out := &bytes.Buffer{}
	assert.Empty(t, f.Reconcile(out))
	assert.Empty(t, out.String())
}

func TestExecutor_CommandNotFound(t *testing.T) {
	f := newExecutorFixture(t, 0)

	require.NoError(t, f.run(t, "no-such-command-jobsh | echo ok"))

	assert.Equal(t, "Error: Command not found - no-such-command-jobsh\n", readFile(t, f.path("stderr")))
	assert.Equal(t, "ok\n", readFile(t, f.path("stdout")))
	assert.Equal(t, []logger.Kind{
		logger.KindPipelineStart,
		logger.KindLaunchFailed,
		logger.KindStageLaunch,
	}, f.events.kinds())
}

func TestExecutor_CommandNotFoundLastStage(t *testing.T) {
	f := newExecutorFixture(t, 0)

	require.NoError(t, f.run(t, "echo hi | no-such-command-jobsh"))

	assert.Equal(t, "Error: Command not found - no-such-command-jobsh\n", readFile(t, f.path("stderr")))
}

func TestExecutor_Background(t *testing.T) {
	f := newExecutorFixture(t, 0)

	start := time.Now()
	require.NoError(t, f.run(t, "sleep 0.2 &"))
	assert.Less(t, int64(time.Since(start)), int64(time.Second), "background pipelines must not block")

	jobs := f.Jobs.List()
	require.Len(t, jobs, 1)
	assert.Equal(t, "sleep", jobs[0].Label)
	assert.Equal(t, fmt.Sprintf("[1] %d\n", jobs[0].PID), f.notices.String())

	out := &bytes.Buffer{}
	assert.Eventually(t, func() bool {
		f.Reconcile(out)
		return f.Jobs.Len() == 0
	}, 10*time.Second, 10*time.Millisecond)

	assert.Equal(t, fmt.Sprintf("Background process %d (sleep) completed\n", jobs[0].PID), out.String())
	assert.Contains(t, f.events.kinds(), logger.KindJobCompleted)
}

func TestExecutor_BackgroundPipeline(t *testing.T) {
	f := newExecutorFixture(t, 0)

	require.NoError(t, f.run(t, "echo hi | wc -c > "+f.path("out")+" &"))

	jobs := f.Jobs.List()
	require.Len(t, jobs, 1)
	assert.Equal(t, "echo", jobs[0].Label)

	out := &bytes.Buffer{}
	assert.Eventually(t, func() bool {
		f.Reconcile(out)
		return f.Jobs.Len() == 0
	}, 10*time.Second, 10*time.Millisecond)

	assert.Equal(t, "3", strings.TrimSpace(readFile(t, f.path("out"))))
	assert.Equal(t, fmt.Sprintf("Background process %d (echo) completed\n", jobs[0].PID), out.String())
}

func TestExecutor_TableFull(t *testing.T) {
	f := newExecutorFixture(t, 1)

	require.NoError(t, f.run(t, "sleep 0.1 &"))
	require.NoError(t, f.run(t, "sleep 0.1 &"))

	assert.Equal(t, 1, f.Jobs.Len())

	lines := strings.Split(strings.TrimSpace(f.notices.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "[1] "))
	assert.True(t, strings.HasPrefix(lines[1], "[2] "))
	assert.Contains(t, f.events.kinds(), logger.KindJobDropped)

	out := &bytes.Buffer{}
	assert.Eventually(t, func() bool {
		f.Reconcile(out)
		return f.Jobs.Len() == 0
	}, 10*time.Second, 10*time.Millisecond)

	// Give the untracked job time to finish, it must not be reported.
	time.Sleep(300 * time.Millisecond)
	f.Reconcile(out)

	assert.Equal(t, 1, strings.Count(out.String(), "completed"))
}

func TestExecutor_ReconcileWithoutJobs(t *testing.T) {
	f := newExecutorFixture(t, 0)

	out := &bytes.Buffer{}
	assert.Empty(t, f.Reconcile(out))
	assert.Empty(t, out.String())
}

func TestExecutor_NoDescriptorLeak(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("requires /proc")
	}

	f := newExecutorFixture(t, 0)
	countFds := func() int {
		entries, err := os.ReadDir("/proc/self/fd")
		require.NoError(t, err)
		return len(entries)
	}

	// Warm up lazily opened runtime descriptors such as the poller.
	require.NoError(t, f.run(t, "echo hi | cat"))

	before := countFds()
	require.NoError(t, f.run(t, "echo hi | cat | cat | wc -c"))
	require.NoError(t, f.run(t, "no-such-command-jobsh | cat"))
	require.Error(t, f.run(t, "cat < "+f.path("missing")+" | cat"))
	require.NoError(t, f.run(t, "echo hi > "+f.path("out")))

	assert.Equal(t, before, countFds())
}

func TestPipes(t *testing.T) {
	ps, err := newPipes(3)
	require.NoError(t, err)
	require.Len(t, ps, 3)

	ps.release(0)
	assert.Nil(t, ps[0].w)
	assert.NotNil(t, ps[0].r)

	ps.release(1)
	assert.Nil(t, ps[0].r)
	assert.Nil(t, ps[1].w)

	ps.release(3)
	assert.Nil(t, ps[2].r)

	ps.Close()
	for _, p := range ps {
		assert.Nil(t, p.r)
		assert.Nil(t, p.w)
	}
}
