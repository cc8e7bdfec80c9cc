package session

import (
	"context"
	"os"
	"path/filepath"

	"judgeworker/internal/judge/compiler"
	"judgeworker/internal/judge/protocol"
	"judgeworker/internal/judge/sandbox/result"
	"judgeworker/internal/judge/sandbox/runner"
	judgeerrors "judgeworker/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"judgeworker/pkg/utils/logger"
)

// handlePacket dispatches one decoded packet to its handler. It is always
// run in its own goroutine and takes the session mutex for the duration of
// any state mutation it performs.
func (s *Session) handlePacket(ctx context.Context, pkt protocol.Packet) {
	switch pkt.Command {
	case protocol.CommandHandshake:
		s.handleHandshakeResponse(ctx, pkt.Body)
	case protocol.CommandReqVerifyToken:
		s.handleReqVerifyToken(ctx, pkt.Body)
	case protocol.CommandGetJudge:
		s.handleGetJudge(ctx, pkt.Body)
	case protocol.CommandGetJudgev2:
		s.handleGetJudgev2(ctx, pkt.Body)
	case protocol.CommandTestCaseUpdate:
		s.handleTestCaseUpdate(ctx, pkt.Body)
	case protocol.CommandTestCaseEnd:
		s.handleTestCaseEnd(ctx, pkt.Body)
	default:
		logger.Warn(ctx, "dropping packet with unknown command", zap.Uint16("command", uint16(pkt.Command)))
	}
}

func (s *Session) handleHandshakeResponse(ctx context.Context, body []byte) {
	resp, err := protocol.DecodeHandshakeResponse(body)
	if err != nil {
		logger.Warn(ctx, "malformed handshake response", zap.Error(err))
		s.enqueue(actionReconnect{after: s.cfg.SleepTime})
		return
	}

	switch resp.Result {
	case protocol.HandshakeSuccess:
		s.mu.Lock()
		key, keyErr := s.keyPair.SharedKey(resp.ServerPubKey)
		if keyErr == nil {
			s.sharedKey = key
			s.nodeID = resp.NodeID
		}
		s.mu.Unlock()
		if keyErr != nil {
			logger.Warn(ctx, "shared key derivation failed", zap.Error(keyErr))
			s.enqueue(actionReconnect{after: s.cfg.SleepTime})
			return
		}
		logger.Info(ctx, "handshake succeeded", zap.String("node_id", resp.NodeID))
	case protocol.HandshakePasswordNotMatched:
		logger.Error(ctx, "master rejected password")
		s.enqueue(actionShutdown{})
	default:
		s.enqueue(actionReconnect{after: s.cfg.SleepTime})
	}
}

func (s *Session) handleReqVerifyToken(ctx context.Context, body []byte) {
	req, err := protocol.DecodeReqVerifyTokenBody(body)
	if err != nil {
		logger.Warn(ctx, "malformed verify-token body", zap.Error(err))
		s.enqueue(actionReconnect{after: s.cfg.SleepTime})
		return
	}
	if !req.Valid {
		s.enqueue(actionReconnect{after: 0})
	}
}

// lockForJob atomically checks the gating invariant and, if free, marks the
// session locked. Returns false if a job is already active.
func (s *Session) lockForJob() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked {
		return false
	}
	s.locked = true
	return true
}

func (s *Session) unlock() {
	s.mu.Lock()
	s.locked = false
	s.onJudge = nil
	s.mu.Unlock()
}

func (s *Session) setOnJudge(job *OnJudge) {
	s.mu.Lock()
	s.onJudge = job
	s.mu.Unlock()
}

func (s *Session) currentSharedKey() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sharedKey
}

func (s *Session) currentOnJudge() *OnJudge {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.onJudge
}

func (s *Session) isLocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked
}

func (s *Session) handleGetJudge(ctx context.Context, body []byte) {
	req, err := protocol.DecodeGetJudgeBody(body)
	if err != nil {
		logger.Warn(ctx, "malformed get-judge body", zap.Error(err))
		return
	}

	if !s.lockForJob() {
		s.sendVerdict(ctx, req.JudgeUUID, LockedSlave())
		return
	}

	checkerLang, ok := s.languages.Get(req.CheckerLang)
	if !ok {
		s.unlock()
		s.sendVerdict(ctx, req.JudgeUUID, LanguageNotFound())
		return
	}
	mainLang, ok := s.languages.Get(req.MainLang)
	if !ok {
		s.unlock()
		s.sendVerdict(ctx, req.JudgeUUID, LanguageNotFound())
		return
	}

	key := s.currentSharedKey()
	if key == nil {
		s.unlock()
		s.sendVerdict(ctx, req.JudgeUUID, GeneralError("shared key not established"))
		return
	}

	checkerSrc, err := protocol.Decrypt(key, req.CheckerCodeEnc)
	if err != nil {
		s.unlock()
		s.sendVerdict(ctx, req.JudgeUUID, GeneralError("checker source decrypt failed"))
		return
	}
	mainSrc, err := protocol.Decrypt(key, req.MainCodeEnc)
	if err != nil {
		s.unlock()
		s.sendVerdict(ctx, req.JudgeUUID, GeneralError("main source decrypt failed"))
		return
	}

	s.sendVerdict(ctx, req.JudgeUUID, DoCompile())

	jobDir, err := os.MkdirTemp(s.cfg.ScratchRoot, "job-")
	if err != nil {
		s.unlock()
		s.sendVerdict(ctx, req.JudgeUUID, GeneralError("create job dir failed"))
		return
	}

	checkerDir := filepath.Join(jobDir, "checker")
	mainDir := filepath.Join(jobDir, "main")
	_ = os.MkdirAll(checkerDir, 0o755)
	_ = os.MkdirAll(mainDir, 0o755)

	job, err := s.compiler.CompileSimple(ctx, checkerDir, mainDir, checkerLang, mainLang, checkerSrc, mainSrc)
	if err != nil {
		s.unlock()
		_ = os.RemoveAll(jobDir)
		s.sendVerdict(ctx, req.JudgeUUID, GeneralError("compile failed"))
		return
	}

	if !job.Checker.Success {
		s.unlock()
		_ = os.RemoveAll(jobDir)
		s.sendVerdict(ctx, req.JudgeUUID, GeneralError(job.Checker.Stderr))
		return
	}
	if !job.Main.Success {
		s.unlock()
		_ = os.RemoveAll(jobDir)
		s.sendVerdict(ctx, req.JudgeUUID, CompileError(job.Main.Stderr))
		return
	}

	// Runner invocations only ever see jobDir as mounted at /temp, so every
	// binary they reference has to live at a fixed name directly under
	// jobDir rather than in the per-kind subdirectory the compiler used.
	mainBinaryPath := filepath.Join(jobDir, runner.BinaryName)
	checkerBinaryPath := filepath.Join(jobDir, runner.CheckerName)
	if err := os.Rename(filepath.Join(mainDir, mainLang.EntrySource+".out"), mainBinaryPath); err != nil {
		s.unlock()
		_ = os.RemoveAll(jobDir)
		s.sendVerdict(ctx, req.JudgeUUID, GeneralError("place main binary failed"))
		return
	}
	if err := os.Rename(filepath.Join(checkerDir, checkerLang.EntrySource+".out"), checkerBinaryPath); err != nil {
		s.unlock()
		_ = os.RemoveAll(jobDir)
		s.sendVerdict(ctx, req.JudgeUUID, GeneralError("place checker binary failed"))
		return
	}
	_ = os.Chmod(mainBinaryPath, 0o777)
	_ = os.Chmod(checkerBinaryPath, 0o777)

	_ = os.Chmod(jobDir, 0o777)

	s.setOnJudge(&OnJudge{
		JudgeUUID:         req.JudgeUUID,
		MainLang:          mainLang,
		CheckerLang:       checkerLang,
		MainBinaryPath:    mainBinaryPath,
		CheckerBinaryPath: checkerBinaryPath,
		TimeLimitMs:       req.TimeLimitMs,
		MemLimitKB:        req.MemLimitKB,
		TempDir:           jobDir,
	})
	s.sendVerdict(ctx, req.JudgeUUID, CompleteCompile(job.Main.Stdout))
}

func (s *Session) handleGetJudgev2(ctx context.Context, body []byte) {
	req, err := protocol.DecodeGetJudgev2Body(body)
	if err != nil {
		logger.Warn(ctx, "malformed get-judge-v2 body", zap.Error(err))
		return
	}

	if !s.lockForJob() {
		s.sendVerdict(ctx, req.JudgeUUID, LockedSlave())
		return
	}

	checkerLang, ok := s.languages.Get(req.CheckerLang)
	if !ok {
		s.unlock()
		s.sendVerdict(ctx, req.JudgeUUID, LanguageNotFound())
		return
	}
	mainLang, ok := s.languages.Get(req.MainLang)
	if !ok {
		s.unlock()
		s.sendVerdict(ctx, req.JudgeUUID, LanguageNotFound())
		return
	}
	managerLang, ok := s.languages.Get(req.ManagerLang)
	if !ok {
		s.unlock()
		s.sendVerdict(ctx, req.JudgeUUID, LanguageNotFound())
		return
	}

	key := s.currentSharedKey()
	if key == nil {
		s.unlock()
		s.sendVerdict(ctx, req.JudgeUUID, GeneralError("shared key not established"))
		return
	}

	checkerSrc, err1 := protocol.Decrypt(key, req.CheckerCodeEnc)
	mainSrc, err2 := protocol.Decrypt(key, req.MainCodeEnc)
	managerSrc, err3 := protocol.Decrypt(key, req.ManagerCodeEnc)
	gradersArchive, err4 := protocol.Decrypt(key, req.GradersEnc)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		s.unlock()
		s.sendVerdict(ctx, req.JudgeUUID, GeneralError("payload decrypt failed"))
		return
	}

	s.sendVerdict(ctx, req.JudgeUUID, DoCompile())

	jobDir, err := os.MkdirTemp(s.cfg.ScratchRoot, "job-")
	if err != nil {
		s.unlock()
		s.sendVerdict(ctx, req.JudgeUUID, GeneralError("create job dir failed"))
		return
	}

	checkerDir := filepath.Join(jobDir, "checker")
	managerDir := filepath.Join(jobDir, "manager")
	_ = os.MkdirAll(checkerDir, 0o755)
	_ = os.MkdirAll(managerDir, 0o755)

	graderReq := compiler.GraderCompileRequest{
		GraderArchive: gradersArchive,
		Source:        mainSrc,
		Lang:          mainLang,
		MainPath:      req.MainPath,
		ObjectPath:    req.ObjectPath,
	}

	job, err := s.compiler.CompileInteractive(ctx, jobDir, graderReq, checkerDir, checkerLang, checkerSrc, managerDir, managerLang, managerSrc)
	if err != nil {
		s.unlock()
		_ = os.RemoveAll(jobDir)
		s.sendVerdict(ctx, req.JudgeUUID, GeneralError("compile failed"))
		return
	}

	if !job.Main.Success {
		s.unlock()
		_ = os.RemoveAll(jobDir)
		// CompileGrader reports a build that exited cleanly but left nothing at
		// ObjectPath as a failed outcome carrying exactly this message.
		if job.Main.Stderr == "o_path is not exists" {
			s.sendVerdict(ctx, req.JudgeUUID, GeneralError(job.Main.Stderr))
			return
		}
		s.sendVerdict(ctx, req.JudgeUUID, CompileError(job.Main.Stderr))
		return
	}
	if !job.Checker.Success || !job.Manager.Success {
		s.unlock()
		_ = os.RemoveAll(jobDir)
		s.sendVerdict(ctx, req.JudgeUUID, GeneralError("Checker or manager compile failed"))
		return
	}
	if _, statErr := os.Stat(job.Main.ArtifactPath); statErr != nil {
		s.unlock()
		_ = os.RemoveAll(jobDir)
		s.sendVerdict(ctx, req.JudgeUUID, GeneralError("o_path is not exists"))
		return
	}

	// job.Main.ArtifactPath already lives under jobDir (the grader tree is
	// unpacked into a subdirectory of it), so it maps to /temp/... as-is.
	// The checker and manager, compiled into their own sibling subdirs, are
	// moved to the fixed slots the runner expects at the jobDir root.
	checkerBinaryPath := filepath.Join(jobDir, runner.CheckerName)
	managerBinaryPath := filepath.Join(jobDir, runner.ManagerName)
	if err := os.Rename(filepath.Join(checkerDir, checkerLang.EntrySource+".out"), checkerBinaryPath); err != nil {
		s.unlock()
		_ = os.RemoveAll(jobDir)
		s.sendVerdict(ctx, req.JudgeUUID, GeneralError("place checker binary failed"))
		return
	}
	if err := os.Rename(filepath.Join(managerDir, managerLang.EntrySource+".out"), managerBinaryPath); err != nil {
		s.unlock()
		_ = os.RemoveAll(jobDir)
		s.sendVerdict(ctx, req.JudgeUUID, GeneralError("place manager binary failed"))
		return
	}
	_ = os.Chmod(job.Main.ArtifactPath, 0o777)
	_ = os.Chmod(checkerBinaryPath, 0o777)
	_ = os.Chmod(managerBinaryPath, 0o777)

	_ = os.Chmod(jobDir, 0o777)

	s.setOnJudge(&OnJudge{
		JudgeUUID:         req.JudgeUUID,
		MainLang:          mainLang,
		CheckerLang:       checkerLang,
		ManagerLang:       &managerLang,
		MainBinaryPath:    job.Main.ArtifactPath,
		CheckerBinaryPath: checkerBinaryPath,
		ManagerBinaryPath: managerBinaryPath,
		ObjectPath:        req.ObjectPath,
		TimeLimitMs:       req.TimeLimitMs,
		MemLimitKB:        req.MemLimitKB,
		TempDir:           jobDir,
	})
	s.sendVerdict(ctx, req.JudgeUUID, CompleteCompile(job.Main.Stdout))
}

func (s *Session) handleTestCaseUpdate(ctx context.Context, body []byte) {
	req, err := protocol.DecodeTestCaseUpdateBody(body)
	if err != nil {
		logger.Warn(ctx, "malformed test-case-update body", zap.Error(err))
		return
	}

	job := s.currentOnJudge()
	if job == nil || job.JudgeUUID != req.JudgeUUID {
		s.sendVerdict(ctx, req.JudgeUUID, JudgeNotFound())
		return
	}
	if !s.isLocked() {
		s.sendVerdict(ctx, req.JudgeUUID, UnlockedSlave())
		return
	}
	key := s.currentSharedKey()
	if key == nil {
		s.sendVerdict(ctx, req.JudgeUUID, GeneralError("shared key not established"))
		return
	}

	stdin, err1 := protocol.Decrypt(key, req.StdinEnc)
	refOutput, err2 := protocol.Decrypt(key, req.StdoutEnc)
	if err1 != nil || err2 != nil {
		s.sendVerdict(ctx, req.JudgeUUID, GeneralError("test case decrypt failed"))
		return
	}

	stdinPath := filepath.Join(job.TempDir, runner.StdinFileName)
	stdoutPath := filepath.Join(job.TempDir, runner.StdoutFileName)
	refPath := filepath.Join(job.TempDir, runner.ReferenceOutputName)

	if err := os.WriteFile(stdinPath, stdin, 0o666); err != nil {
		s.sendVerdict(ctx, req.JudgeUUID, GeneralError("write stdin failed"))
		return
	}
	if err := os.WriteFile(refPath, refOutput, 0o666); err != nil {
		s.sendVerdict(ctx, req.JudgeUUID, GeneralError("write reference output failed"))
		return
	}
	if err := os.WriteFile(stdoutPath, nil, 0o666); err != nil {
		s.sendVerdict(ctx, req.JudgeUUID, GeneralError("create stdout sink failed"))
		return
	}
	_ = os.Chmod(job.TempDir, 0o777)
	_ = os.Chmod(stdoutPath, 0o777)

	v := s.runTestCase(ctx, req.TestUUID, job, stdinPath, stdoutPath, refPath)
	s.sendVerdict(ctx, req.JudgeUUID, v)
}

func (s *Session) runTestCase(ctx context.Context, testID uuid.UUID, job *OnJudge, stdinPath, stdoutPath, refPath string) Verdict {
	var run result.Run
	var err error

	if job.ManagerLang != nil {
		run, err = s.runner.InteractiveRun(ctx, runner.InteractiveRunRequest{
			MainBinaryPath:    job.MainBinaryPath,
			ManagerBinaryPath: job.ManagerBinaryPath,
			MainLanguage:      job.MainLang,
			ManagerLanguage:   *job.ManagerLang,
			StdinPath:         stdinPath,
			TempDir:           job.TempDir,
			TimeLimitMs:       job.TimeLimitMs,
			MemLimitKB:        job.MemLimitKB,
		})
	} else {
		run, err = s.runner.ProgramRun(ctx, runner.ProgramRunRequest{
			BinaryPath:  job.MainBinaryPath,
			Language:    job.MainLang,
			StdinPath:   stdinPath,
			StdoutPath:  stdoutPath,
			TempDir:     job.TempDir,
			TimeLimitMs: job.TimeLimitMs,
			MemLimitKB:  job.MemLimitKB,
		})
	}
	if err != nil {
		logger.Error(ctx, "sandbox run failed", zap.Error(err))
		if judgeerrors.Is(err, judgeerrors.SandboxMetaInvalid) || judgeerrors.Is(err, judgeerrors.SandboxMetaMissing) {
			return UnknownErrorVerdict(testID)
		}
		return InternalErrorVerdict(testID)
	}

	if !run.Clean() {
		switch *run.Status {
		case result.StatusTimedOut:
			return TimeLimitExceed(testID)
		case result.StatusDiedOnSignal:
			return DiedOnSignal(testID, int64(run.ExitSignal))
		case result.StatusRuntimeErr:
			return RuntimeError(testID, int64(run.ExitCode))
		case result.StatusInternalErr:
			return InternalErrorVerdict(testID)
		default:
			return UnknownErrorVerdict(testID)
		}
	}

	checkerRun, err := s.runner.CheckerRun(ctx, runner.CheckerRunRequest{
		CheckerBinaryPath: job.CheckerBinaryPath,
		CheckerLanguage:   job.CheckerLang,
		TempDir:           job.TempDir,
	})
	if err != nil {
		logger.Error(ctx, "checker run failed", zap.Error(err))
		if judgeerrors.Is(err, judgeerrors.SandboxMetaInvalid) || judgeerrors.Is(err, judgeerrors.SandboxMetaMissing) {
			return UnknownErrorVerdict(testID)
		}
		return InternalErrorVerdict(testID)
	}

	timeMs := checkerRun.TimeMillis()
	memKB := checkerRun.CgMemKB

	if !checkerRun.Clean() {
		return WrongAnswer(testID, timeMs, memKB)
	}
	if checkerRun.Score != nil {
		return Complete(testID, *checkerRun.Score, timeMs, memKB)
	}
	return Accepted(testID, timeMs, memKB)
}

func (s *Session) handleTestCaseEnd(ctx context.Context, body []byte) {
	req, err := protocol.DecodeTestCaseEndBody(body)
	if err != nil {
		logger.Warn(ctx, "malformed test-case-end body", zap.Error(err))
		return
	}

	job := s.currentOnJudge()
	if job != nil {
		_ = os.RemoveAll(job.TempDir)
	}
	s.unlock()
}
