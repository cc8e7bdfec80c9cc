// Package compiler turns judge sources into executable artifacts: a plain
// single-file compile for checkers, managers, and Simple-mode programs, and
// a grader-tree compile for Interactive-mode submissions built inside an
// unpacked grader project.
package compiler

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"

	"judgeworker/internal/judge/langregistry"
	judgeerrors "judgeworker/pkg/errors"

	"github.com/google/shlex"
)

// Result is the outcome of a single compile step.
type Result struct {
	Success bool
	Stdout  string
	Stderr  string
}

// Compiler runs compile_exec/compile_args commands and grader builds.
type Compiler struct {
	cache *Cache // optional; nil disables the grader result cache
}

// New builds a Compiler. A nil cache disables the optional grader cache.
func New(cache *Cache) *Compiler {
	return &Compiler{cache: cache}
}

// CompileSingleFile writes source under lang's entry filename into dir and
// invokes the language's compile command there.
func (c *Compiler) CompileSingleFile(ctx context.Context, dir string, lang langregistry.Language, source []byte) (Result, error) {
	if lang.EntrySource == "" || lang.CompileExec == "" {
		return Result{}, judgeerrors.New(judgeerrors.LanguageDescriptorBad).WithDetail("reason", "missing entry_source or compile_exec")
	}

	srcPath := filepath.Join(dir, lang.EntrySource)
	if err := os.MkdirAll(filepath.Dir(srcPath), 0o755); err != nil {
		return Result{}, judgeerrors.Wrapf(err, judgeerrors.CompileFailed, "create source dir")
	}
	if err := os.WriteFile(srcPath, source, 0o644); err != nil {
		return Result{}, judgeerrors.Wrapf(err, judgeerrors.CompileFailed, "write source file")
	}

	outPath := filepath.Join(dir, lang.EntrySource+".out")
	args := lang.CompileCommand(srcPath, outPath)
	return runCompileCommand(ctx, lang.CompileExec, args, dir)
}

// GraderCompileRequest describes an Interactive-mode grader build.
type GraderCompileRequest struct {
	GraderArchive []byte // Brotli-compressed tar of the grader project
	Source        []byte // user's main-program source
	Lang          langregistry.Language
	MainPath      string // relative path of the user source inside the tree
	ObjectPath    string // relative path of the expected compiled artifact
}

// GraderCompileOutcome reports the build result plus where the caller can
// find the expected artifact, so a caller (the session) can hand that path
// onward without re-deriving it.
type GraderCompileOutcome struct {
	Result
	ArtifactPath string
}

// CompileGrader unpacks the grader archive into a fresh directory under
// scratchDir, writes the user source at MainPath, and runs the project
// build. The cache (if configured) is consulted first.
func (c *Compiler) CompileGrader(ctx context.Context, scratchDir string, req GraderCompileRequest) (GraderCompileOutcome, error) {
	treeDir, err := os.MkdirTemp(scratchDir, "grader-")
	if err != nil {
		return GraderCompileOutcome{}, judgeerrors.Wrapf(err, judgeerrors.GraderBuildFailed, "create grader scratch dir")
	}

	if err := unpackGraderArchive(req.GraderArchive, treeDir); err != nil {
		return GraderCompileOutcome{}, err
	}

	mainPath := filepath.Join(treeDir, req.MainPath)
	if err := os.MkdirAll(filepath.Dir(mainPath), 0o755); err != nil {
		return GraderCompileOutcome{}, judgeerrors.Wrapf(err, judgeerrors.GraderBuildFailed, "create main source dir")
	}
	if err := os.WriteFile(mainPath, req.Source, 0o644); err != nil {
		return GraderCompileOutcome{}, judgeerrors.Wrapf(err, judgeerrors.GraderBuildFailed, "write main source")
	}

	artifactPath := filepath.Join(treeDir, req.ObjectPath)

	if c.cache != nil {
		if outcome, hit := c.tryCache(ctx, req, artifactPath); hit {
			return outcome, nil
		}
	}

	result, buildErr := c.runGraderBuild(ctx, treeDir, req.Lang)
	if buildErr != nil {
		return GraderCompileOutcome{}, buildErr
	}

	if result.Success {
		if _, statErr := os.Stat(artifactPath); statErr != nil {
			result.Success = false
			result.Stderr = "o_path is not exists"
		}
	}

	outcome := GraderCompileOutcome{Result: result, ArtifactPath: artifactPath}

	if c.cache != nil {
		go c.storeCacheAsync(req, artifactPath, result)
	}

	return outcome, nil
}

func (c *Compiler) runGraderBuild(ctx context.Context, treeDir string, lang langregistry.Language) (Result, error) {
	args := langregistry.MakeArgs(lang.CompileArgs)
	return runCompileCommand(ctx, lang.CompileExec, args, treeDir)
}

func runCompileCommand(ctx context.Context, compileExec, argLine, dir string) (Result, error) {
	args, err := shlex.Split(argLine)
	if err != nil {
		return Result{}, judgeerrors.Wrapf(err, judgeerrors.CompileFailed, "tokenize compile command")
	}

	cmd := exec.CommandContext(ctx, compileExec, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "CORES="+strconv.Itoa(runtime.NumCPU()))

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	success := runErr == nil
	if !success {
		var exitErr *exec.ExitError
		if !asExitError(runErr, &exitErr) {
			return Result{}, judgeerrors.Wrapf(runErr, judgeerrors.CompileFailed, "launch compiler")
		}
	}

	return Result{Success: success, Stdout: stdout.String(), Stderr: stderr.String()}, nil
}

func asExitError(err error, target **exec.ExitError) bool {
	ee, ok := err.(*exec.ExitError)
	if ok {
		*target = ee
	}
	return ok
}
