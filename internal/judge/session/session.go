// Package session drives the persistent, authenticated connection to the
// grading master: one reconnect-forever outer loop, an inner event loop
// that services incoming packets and internal control actions, and the
// packet handlers that turn judge requests into compiled artifacts,
// sandboxed runs, and verdicts.
package session

import (
	"context"
	"net"
	"os"
	"sync"
	"time"

	"judgeworker/internal/judge/compiler"
	"judgeworker/internal/judge/langregistry"
	"judgeworker/internal/judge/protocol"
	"judgeworker/internal/judge/sandbox/observer"
	"judgeworker/internal/judge/sandbox/runner"
	"judgeworker/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config holds the parameters for one worker's connection to its master.
type Config struct {
	MasterAddr     string
	MasterPassword string
	SleepTime      time.Duration // backoff before reconnecting after a soft failure
	CheckAliveTime time.Duration // keepalive probe interval
	ScratchRoot    string        // root directory for per-job temp directories
}

// OnJudge is the state of the job currently locked onto this worker.
type OnJudge struct {
	JudgeUUID         uuid.UUID
	MainLang          langregistry.Language
	CheckerLang       langregistry.Language
	ManagerLang       *langregistry.Language // non-nil iff Interactive mode
	MainBinaryPath    string
	CheckerBinaryPath string
	ManagerBinaryPath string // Interactive mode only
	ObjectPath        string // Interactive mode only
	TimeLimitMs       int64
	MemLimitKB        int64
	TempDir           string
}

// Session owns one worker's connection lifecycle. All mutable fields are
// guarded by mu; packet handlers run concurrently as goroutines and must
// take the lock before touching session state.
type Session struct {
	cfg Config

	languages *langregistry.Registry
	runner    *runner.Runner
	compiler  *compiler.Compiler
	metrics   observer.MetricsRecorder

	mu        sync.Mutex
	locked    bool
	onJudge   *OnJudge
	nodeID    string
	sharedKey []byte
	keyPair   *protocol.KeyPair
	conn      net.Conn

	actions chan action
}

// action is the inner loop's internal control-flow vocabulary.
type action interface{ isAction() }

type actionReconnect struct{ after time.Duration }
type actionShutdown struct{}

func (actionReconnect) isAction() {}
func (actionShutdown) isAction()  {}

// New builds a Session. The session does not connect until Run is called.
func New(cfg Config, languages *langregistry.Registry, r *runner.Runner, c *compiler.Compiler, metrics observer.MetricsRecorder) *Session {
	if metrics == nil {
		metrics = observer.NoopMetricsRecorder{}
	}
	return &Session{
		cfg:       cfg,
		languages: languages,
		runner:    r,
		compiler:  c,
		metrics:   metrics,
		actions:   make(chan action, 4),
	}
}

// Shutdown requests the session stop after its current inner loop iteration.
// Safe to call from any goroutine, including packet handlers.
func (s *Session) Shutdown() {
	s.enqueue(actionShutdown{})
}

func (s *Session) enqueue(a action) {
	select {
	case s.actions <- a:
	default:
		// the channel is buffered for exactly this case; a full buffer means
		// multiple reconnect/shutdown requests raced, which is harmless to drop
	}
}

// Run is the reconnect-forever outer loop. It blocks until ctx is canceled
// (returning ctx.Err()) or a shutdown is requested (returning nil).
func (s *Session) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := s.runOnce(ctx); err != nil {
			if _, ok := err.(shutdownError); ok {
				logger.Info(ctx, "session shutdown requested")
				return nil
			}
			logger.Warn(ctx, "session iteration ended", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.SleepTime):
		}
	}
}

func (s *Session) runOnce(ctx context.Context) error {
	conn, err := net.Dial("tcp", s.cfg.MasterAddr)
	if err != nil {
		return err
	}
	defer conn.Close()

	keyPair, err := protocol.NewKeyPair()
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.onJudge != nil {
		_ = os.RemoveAll(s.onJudge.TempDir)
	}
	s.conn = conn
	s.keyPair = keyPair
	s.sharedKey = nil
	s.nodeID = ""
	s.locked = false
	s.onJudge = nil
	s.mu.Unlock()

	innerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	keepaliveDone := make(chan struct{})
	go func() {
		defer close(keepaliveDone)
		s.runKeepalive(innerCtx, conn)
	}()

	handshake := protocol.HandshakeRequest{
		ClientPubKey:   keyPair.PublicBytes(),
		HashedPassword: protocol.HashPassword(s.cfg.MasterPassword),
	}
	if err := protocol.MakePacket(protocol.CommandHandshake, handshake.Encode()).WriteTo(conn); err != nil {
		return err
	}

	packets := make(chan protocol.Packet)
	readErrs := make(chan error, 1)
	go func() {
		for {
			pkt, err := protocol.ReadPacket(conn)
			if err != nil {
				readErrs <- err
				return
			}
			packets <- pkt
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErrs:
			return err
		case pkt := <-packets:
			go s.handlePacket(ctx, pkt)
		case act := <-s.actions:
			switch a := act.(type) {
			case actionReconnect:
				if a.after > 0 {
					time.Sleep(a.after)
				}
				return nil
			case actionShutdown:
				return errShutdown
			}
		}
	}
}

// errShutdown signals the outer loop to stop entirely rather than reconnect.
var errShutdown = shutdownError{}

type shutdownError struct{}

func (shutdownError) Error() string { return "session: shutdown requested" }

// send writes a packet to the live connection. Called concurrently from
// packet handler goroutines; a packet is written as two Write calls (header,
// then body), so mu is held for the whole write to keep frames from
// interleaving on the connection.
func (s *Session) send(cmd protocol.Command, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return protocol.MakePacket(cmd, body).WriteTo(s.conn)
}

func (s *Session) sendVerdict(ctx context.Context, judgeID uuid.UUID, v Verdict) {
	s.mu.Lock()
	nodeID := s.nodeID
	pubKey := []byte(nil)
	if s.keyPair != nil {
		pubKey = s.keyPair.PublicBytes()
	}
	s.mu.Unlock()

	body := protocol.JudgeStateUpdateBody{
		NodeID:       nodeID,
		ClientPubKey: pubKey,
		JudgeUUID:    judgeID,
		VerdictBytes: v.Encode(),
	}
	if err := s.send(protocol.CommandGetJudgeStateUpdate, body.Encode()); err != nil {
		logger.Warn(ctx, "send verdict failed", zap.String("verdict", v.Kind.String()), zap.Error(err))
	}
	s.metrics.ObserveVerdict(ctx, v.Kind.String())
}
