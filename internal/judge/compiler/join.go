package compiler

import (
	"context"

	"judgeworker/internal/judge/langregistry"

	"golang.org/x/sync/errgroup"
)

// SimpleJob compiles the checker and the main program concurrently, as
// required for Simple-mode GetJudge requests.
type SimpleJob struct {
	Checker Result
	Main    Result
}

// CompileSimple runs the checker and main single-file compiles concurrently
// in checkerDir and mainDir respectively, joining both before returning.
func (c *Compiler) CompileSimple(ctx context.Context, checkerDir, mainDir string, checkerLang, mainLang langregistry.Language, checkerSrc, mainSrc []byte) (SimpleJob, error) {
	var job SimpleJob
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		r, err := c.CompileSingleFile(gctx, checkerDir, checkerLang, checkerSrc)
		job.Checker = r
		return err
	})
	g.Go(func() error {
		r, err := c.CompileSingleFile(gctx, mainDir, mainLang, mainSrc)
		job.Main = r
		return err
	})

	if err := g.Wait(); err != nil {
		return job, err
	}
	return job, nil
}

// InteractiveJob compiles the main grader build, checker, and manager
// concurrently, as required for Interactive-mode GetJudgev2 requests.
type InteractiveJob struct {
	Main    GraderCompileOutcome
	Checker Result
	Manager Result
}

// CompileInteractive runs the grader-tree main compile alongside the
// checker and manager single-file compiles, joining all three.
func (c *Compiler) CompileInteractive(ctx context.Context, scratchDir string, graderReq GraderCompileRequest, checkerDir string, checkerLang langregistry.Language, checkerSrc []byte, managerDir string, managerLang langregistry.Language, managerSrc []byte) (InteractiveJob, error) {
	var job InteractiveJob
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		outcome, err := c.CompileGrader(gctx, scratchDir, graderReq)
		job.Main = outcome
		return err
	})
	g.Go(func() error {
		r, err := c.CompileSingleFile(gctx, checkerDir, checkerLang, checkerSrc)
		job.Checker = r
		return err
	})
	g.Go(func() error {
		r, err := c.CompileSingleFile(gctx, managerDir, managerLang, managerSrc)
		job.Manager = r
		return err
	})

	if err := g.Wait(); err != nil {
		return job, err
	}
	return job, nil
}
