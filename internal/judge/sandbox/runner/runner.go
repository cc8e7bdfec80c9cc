// Package runner wraps the external isolate sandbox tool. It never
// manipulates cgroups or namespaces itself; it only assembles isolate
// command lines, launches the subprocess, and parses the meta-file isolate
// leaves behind.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"

	"judgeworker/internal/judge/langregistry"
	"judgeworker/internal/judge/sandbox/observer"
	"judgeworker/internal/judge/sandbox/result"
	judgeerrors "judgeworker/pkg/errors"

	"github.com/BurntSushi/toml"
	"github.com/google/shlex"
)

// Config configures how the Runner invokes isolate.
type Config struct {
	IsolatePath string // defaults to "isolate" on PATH
	BoxID       int
	ScratchDir  string // root directory for per-run box directories
}

// Runner drives isolate through the cleanup/init/run lifecycle for the three
// run flavors described by the judge protocol: plain Program Run,
// Interactive Run (program + manager over pipes), and Checker Run. Every
// flavor bind-mounts a job's temp directory into the sandbox at /temp and a
// fresh per-run scratch directory at /box; callers pass host paths and the
// Runner remaps them to their in-sandbox form.
type Runner struct {
	cfg     Config
	metrics observer.MetricsRecorder
}

// New builds a Runner. A nil metrics recorder is replaced with a no-op one.
func New(cfg Config, metrics observer.MetricsRecorder) *Runner {
	if metrics == nil {
		metrics = observer.NoopMetricsRecorder{}
	}
	return &Runner{cfg: cfg, metrics: metrics}
}

func (r *Runner) isolatePath() string {
	if r.cfg.IsolatePath != "" {
		return r.cfg.IsolatePath
	}
	return isolateBinary
}

func (r *Runner) isolate(ctx context.Context, args ...string) *exec.Cmd {
	full := append([]string{"--cg", fmt.Sprintf("-b%d", r.cfg.BoxID)}, args...)
	return exec.CommandContext(ctx, r.isolatePath(), full...)
}

// cleanupAndInit resets and re-initializes the box. isolate's own exit
// status on --cleanup is not meaningful the first time a box is used, so
// only --init failures are treated as fatal.
func (r *Runner) cleanupAndInit(ctx context.Context) error {
	_ = r.isolate(ctx, "--cleanup").Run()
	if err := r.isolate(ctx, "--init").Run(); err != nil {
		return judgeerrors.Wrapf(err, judgeerrors.SandboxLaunchFailed, "isolate --init")
	}
	return nil
}

func (r *Runner) newBoxDir() (string, error) {
	dir, err := os.MkdirTemp(r.cfg.ScratchDir, "box-")
	if err != nil {
		return "", judgeerrors.Wrapf(err, judgeerrors.SandboxLaunchFailed, "create box dir")
	}
	return dir, nil
}

func (r *Runner) readMeta(path string) (result.Run, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return result.Run{}, judgeerrors.Wrapf(err, judgeerrors.SandboxMetaMissing, "read meta file")
	}
	return parseMeta(string(data))
}

// sandboxTempPath rewrites a host path living somewhere under tempDir into
// the in-sandbox form every run flavor sees once tempDir is bind-mounted at
// /temp (e.g. tempDir/main becomes /temp/main, tempDir/grader-x/a.out
// becomes /temp/grader-x/a.out). A path outside tempDir can never be visible
// to the sandboxed process, so that is a launch error rather than a silent
// host-path passthrough.
func sandboxTempPath(tempDir, hostPath string) (string, error) {
	rel, err := filepath.Rel(tempDir, hostPath)
	if err != nil {
		return "", judgeerrors.Wrapf(err, judgeerrors.SandboxLaunchFailed, "resolve %s relative to temp dir", hostPath)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", judgeerrors.Newf(judgeerrors.SandboxLaunchFailed, "%s is outside temp dir %s", hostPath, tempDir)
	}
	return path.Join(sandboxTempRoot, filepath.ToSlash(rel)), nil
}

// ProgramRunRequest describes a Simple-mode execution of a compiled program.
type ProgramRunRequest struct {
	BinaryPath  string
	Language    langregistry.Language
	StdinPath   string
	StdoutPath  string
	TempDir     string
	TimeLimitMs int64
	MemLimitKB  int64
}

// ProgramRun executes a compiled program against one test's stdin, capturing
// stdout to StdoutPath. BinaryPath, StdinPath, and StdoutPath must all live
// under TempDir; they are remapped to /temp/... before isolate ever sees
// them, since TempDir (not its host path) is what the sandboxed process can
// actually reach.
func (r *Runner) ProgramRun(ctx context.Context, req ProgramRunRequest) (result.Run, error) {
	if err := r.cleanupAndInit(ctx); err != nil {
		return result.Run{}, err
	}
	boxDir, err := r.newBoxDir()
	if err != nil {
		return result.Run{}, err
	}
	defer os.RemoveAll(boxDir)

	sandboxBinary, err := sandboxTempPath(req.TempDir, req.BinaryPath)
	if err != nil {
		return result.Run{}, err
	}
	sandboxStdin, err := sandboxTempPath(req.TempDir, req.StdinPath)
	if err != nil {
		return result.Run{}, err
	}
	sandboxStdout, err := sandboxTempPath(req.TempDir, req.StdoutPath)
	if err != nil {
		return result.Run{}, err
	}

	timeLimitSeconds := float64(req.TimeLimitMs)/1000.0 + float64(req.Language.AddTimeLimit)*0.001
	memLimitKB := req.MemLimitKB + int64(req.Language.AddMemLimit)
	metaPath := filepath.Join(boxDir, metaFileName)

	argv, err := shlex.Split(req.Language.ExecCommand(sandboxBinary))
	if err != nil {
		return result.Run{}, judgeerrors.Wrapf(err, judgeerrors.SandboxLaunchFailed, "split exec command")
	}

	args := []string{
		"--run",
		fmt.Sprintf("-t%f", timeLimitSeconds),
		fmt.Sprintf("-w%f", timeLimitSeconds),
		fmt.Sprintf("-m%d", memLimitKB),
		fmt.Sprintf("--cg-mem=%d", memLimitKB),
		"-s",
		fmt.Sprintf("--stdin=%s", sandboxStdin),
		fmt.Sprintf("--stdout=%s", sandboxStdout),
		fmt.Sprintf("--meta=%s", metaPath),
		fmt.Sprintf("--dir=temp=%s:rw", req.TempDir),
		fmt.Sprintf("--dir=box=%s:rw", boxDir),
		"--",
	}
	args = append(args, argv...)

	_ = r.isolate(ctx, args...).Run()

	run, err := r.readMeta(metaPath)
	if err != nil {
		return result.Run{}, err
	}
	r.metrics.ObserveRun(ctx, req.Language.UUID.String(), statusLabel(run), run.TimeMillis(), run.CgMemKB)
	return run, nil
}

// InteractiveRunRequest describes an Interactive-mode execution where the
// submission communicates with a problem-specific manager over pipes.
type InteractiveRunRequest struct {
	MainBinaryPath    string
	ManagerBinaryPath string
	MainLanguage      langregistry.Language
	ManagerLanguage   langregistry.Language
	StdinPath         string
	TempDir           string
	TimeLimitMs       int64
	MemLimitKB        int64
}

// InteractiveRun runs the dispatcher script, which forks the submission and
// the manager and connects them through a pair of named pipes. The
// dispatcher's own stdout, which carries a tee'd copy of everything the
// manager wrote, is captured and persisted at TempDir/output.txt for the
// checker step that follows.
func (r *Runner) InteractiveRun(ctx context.Context, req InteractiveRunRequest) (result.Run, error) {
	if err := r.cleanupAndInit(ctx); err != nil {
		return result.Run{}, err
	}
	boxDir, err := r.newBoxDir()
	if err != nil {
		return result.Run{}, err
	}
	defer os.RemoveAll(boxDir)

	sandboxMain, err := sandboxTempPath(req.TempDir, req.MainBinaryPath)
	if err != nil {
		return result.Run{}, err
	}
	sandboxManager, err := sandboxTempPath(req.TempDir, req.ManagerBinaryPath)
	if err != nil {
		return result.Run{}, err
	}
	sandboxStdin, err := sandboxTempPath(req.TempDir, req.StdinPath)
	if err != nil {
		return result.Run{}, err
	}

	mainCmd := req.MainLanguage.ExecCommand(sandboxMain)
	managerCmd := req.ManagerLanguage.ExecCommand(sandboxManager)

	if err := writeBoxScript(boxDir, execScriptName, fmt.Sprintf(execScriptTemplate, mainCmd)); err != nil {
		return result.Run{}, err
	}
	if err := writeBoxScript(boxDir, execManagerScript, fmt.Sprintf(execScriptTemplate, managerCmd)); err != nil {
		return result.Run{}, err
	}
	if err := writeBoxScript(boxDir, dispatcherScriptName, dispatcherScript); err != nil {
		return result.Run{}, err
	}
	if err := os.Chmod(boxDir, 0o777); err != nil {
		return result.Run{}, judgeerrors.Wrapf(err, judgeerrors.SandboxLaunchFailed, "chmod box dir")
	}

	timeLimitSeconds := float64(req.TimeLimitMs)/1000.0 + float64(req.MainLanguage.AddTimeLimit)*0.001
	memLimitKB := req.MemLimitKB + int64(req.MainLanguage.AddMemLimit)
	metaPath := filepath.Join(boxDir, metaFileName)

	args := []string{
		"--run",
		fmt.Sprintf("-t%f", timeLimitSeconds),
		fmt.Sprintf("-w%f", timeLimitSeconds),
		fmt.Sprintf("-m%d", memLimitKB),
		fmt.Sprintf("--cg-mem=%d", memLimitKB),
		"-s",
		fmt.Sprintf("--stdin=%s", sandboxStdin),
		fmt.Sprintf("--meta=%s", metaPath),
		fmt.Sprintf("--dir=temp=%s", req.TempDir),
		fmt.Sprintf("--dir=box=%s:rw", boxDir),
		"--",
		shellBinary, path.Join(sandboxBoxRoot, dispatcherScriptName),
	}

	cmd := r.isolate(ctx, args...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	_ = cmd.Run()

	if err := os.WriteFile(filepath.Join(req.TempDir, StdoutFileName), stdout.Bytes(), 0o666); err != nil {
		return result.Run{}, judgeerrors.Wrapf(err, judgeerrors.SandboxLaunchFailed, "persist captured stdout")
	}

	run, err := r.readMeta(metaPath)
	if err != nil {
		return result.Run{}, err
	}
	if run.Clean() {
		if graderCode, ok := readExitCode(filepath.Join(boxDir, "grader.ret")); ok && graderCode != 0 {
			status := result.StatusRuntimeErr
			run.Status = &status
			run.ExitCode = graderCode
		}
	}

	r.metrics.ObserveRun(ctx, req.MainLanguage.UUID.String(), statusLabel(run), run.TimeMillis(), run.CgMemKB)
	return run, nil
}

// CheckerRunRequest describes invoking a checker against a test's input,
// reference answer, and the program's produced output. All three files are
// expected to already exist in TempDir under the fixed names.
type CheckerRunRequest struct {
	CheckerBinaryPath string
	CheckerLanguage   langregistry.Language
	TempDir           string
}

type checkerOutcome struct {
	Outcome string   `toml:"outcome"`
	Points  *float64 `toml:"points"`
}

// CheckerRun invokes the checker and parses its result.toml.
func (r *Runner) CheckerRun(ctx context.Context, req CheckerRunRequest) (result.Checker, error) {
	if err := r.cleanupAndInit(ctx); err != nil {
		return result.Checker{}, err
	}
	boxDir, err := r.newBoxDir()
	if err != nil {
		return result.Checker{}, err
	}
	defer os.RemoveAll(boxDir)

	sandboxChecker, err := sandboxTempPath(req.TempDir, req.CheckerBinaryPath)
	if err != nil {
		return result.Checker{}, err
	}
	checkerCmd := req.CheckerLanguage.ExecCommand(sandboxChecker)
	script := fmt.Sprintf(checkerScript,
		checkerCmd, StdinFileName, ReferenceOutputName, StdoutFileName,
		checkerResultName, checkerResultName, checkerResultName)
	if err := writeBoxScript(boxDir, checkerScriptName, script); err != nil {
		return result.Checker{}, err
	}
	if err := os.Chmod(boxDir, 0o777); err != nil {
		return result.Checker{}, judgeerrors.Wrapf(err, judgeerrors.SandboxLaunchFailed, "chmod box dir")
	}

	metaPath := filepath.Join(boxDir, metaFileName)
	args := []string{
		"--run",
		fmt.Sprintf("-t%f", checkerTimeLimitSeconds),
		fmt.Sprintf("-w%f", checkerTimeLimitSeconds),
		fmt.Sprintf("-m%d", checkerMemLimitKB),
		"-s",
		fmt.Sprintf("--meta=%s", metaPath),
		fmt.Sprintf("--dir=temp=%s:rw", req.TempDir),
		fmt.Sprintf("--dir=box=%s:rw", boxDir),
		"--",
		shellBinary, path.Join(sandboxBoxRoot, checkerScriptName),
	}

	_ = r.isolate(ctx, args...).Run()

	run, err := r.readMeta(metaPath)
	if err != nil {
		return result.Checker{}, err
	}

	checker := result.Checker{Run: run}
	var outcome checkerOutcome
	resultPath := filepath.Join(boxDir, checkerResultName)
	if _, err := toml.DecodeFile(resultPath, &outcome); err == nil {
		if outcome.Outcome != "" && outcome.Outcome != "ok" && run.Clean() {
			status := result.StatusRuntimeErr
			checker.Status = &status
		}
		checker.Score = outcome.Points
	}

	r.metrics.ObserveRun(ctx, req.CheckerLanguage.UUID.String(), statusLabel(checker.Run), checker.TimeMillis(), checker.CgMemKB)
	return checker, nil
}

func writeBoxScript(boxDir, name, content string) error {
	path := filepath.Join(boxDir, name)
	if err := os.WriteFile(path, []byte(content), 0o777); err != nil {
		return judgeerrors.Wrapf(err, judgeerrors.SandboxLaunchFailed, "write %s", name)
	}
	return nil
}

func readExitCode(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	var code int
	if _, err := fmt.Sscanf(string(data), "%d", &code); err != nil {
		return 0, false
	}
	return code, true
}

func statusLabel(r result.Run) string {
	if r.Clean() {
		return ""
	}
	return string(*r.Status)
}
