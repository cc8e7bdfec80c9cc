package session

import (
	"math"

	"judgeworker/internal/judge/protocol"

	"github.com/google/uuid"
)

// VerdictKind tags the variant of a Verdict. The numeric values are part of
// the wire format and must not be renumbered.
type VerdictKind uint8

const (
	VerdictDoCompile VerdictKind = iota
	VerdictCompileError
	VerdictCompleteCompile
	VerdictAccepted
	VerdictWrongAnswer
	VerdictComplete
	VerdictTimeLimitExceed
	VerdictRuntimeError
	VerdictDiedOnSignal
	VerdictInternalError
	VerdictUnknownError
	VerdictLanguageNotFound
	VerdictLockedSlave
	VerdictUnlockedSlave
	VerdictJudgeNotFound
	VerdictGeneralError
)

// String names the verdict kind, used in log fields and metrics labels.
func (k VerdictKind) String() string {
	switch k {
	case VerdictDoCompile:
		return "DoCompile"
	case VerdictCompileError:
		return "CompileError"
	case VerdictCompleteCompile:
		return "CompleteCompile"
	case VerdictAccepted:
		return "Accepted"
	case VerdictWrongAnswer:
		return "WrongAnswer"
	case VerdictComplete:
		return "Complete"
	case VerdictTimeLimitExceed:
		return "TimeLimitExceed"
	case VerdictRuntimeError:
		return "RuntimeError"
	case VerdictDiedOnSignal:
		return "DiedOnSignal"
	case VerdictInternalError:
		return "InternalError"
	case VerdictUnknownError:
		return "UnknownError"
	case VerdictLanguageNotFound:
		return "LanguageNotFound"
	case VerdictLockedSlave:
		return "LockedSlave"
	case VerdictUnlockedSlave:
		return "UnlockedSlave"
	case VerdictJudgeNotFound:
		return "JudgeNotFound"
	case VerdictGeneralError:
		return "GeneralError"
	default:
		return "Unknown"
	}
}

// Verdict is the tagged union reported to the master for every judge
// lifecycle event and every test case outcome. Only the fields relevant to
// Kind are populated; the rest are zero.
type Verdict struct {
	Kind     VerdictKind
	Message  string    // CompileError, CompleteCompile, GeneralError
	TestUUID uuid.UUID // all per-test verdicts
	TimeMs   int64     // Accepted, WrongAnswer, Complete
	MemKB    int64     // Accepted, WrongAnswer, Complete
	Score    float64   // Complete
	ExitCode int64     // RuntimeError
	Signal   int64     // DiedOnSignal
}

func DoCompile() Verdict                     { return Verdict{Kind: VerdictDoCompile} }
func CompileError(stderr string) Verdict     { return Verdict{Kind: VerdictCompileError, Message: stderr} }
func CompleteCompile(stdout string) Verdict  { return Verdict{Kind: VerdictCompleteCompile, Message: stdout} }
func LanguageNotFound() Verdict              { return Verdict{Kind: VerdictLanguageNotFound} }
func LockedSlave() Verdict                   { return Verdict{Kind: VerdictLockedSlave} }
func UnlockedSlave() Verdict                 { return Verdict{Kind: VerdictUnlockedSlave} }
func JudgeNotFound() Verdict                 { return Verdict{Kind: VerdictJudgeNotFound} }
func GeneralError(msg string) Verdict        { return Verdict{Kind: VerdictGeneralError, Message: msg} }

func UnknownErrorVerdict(test uuid.UUID) Verdict {
	return Verdict{Kind: VerdictUnknownError, TestUUID: test}
}

func Accepted(test uuid.UUID, timeMs, memKB int64) Verdict {
	return Verdict{Kind: VerdictAccepted, TestUUID: test, TimeMs: timeMs, MemKB: memKB}
}

func WrongAnswer(test uuid.UUID, timeMs, memKB int64) Verdict {
	return Verdict{Kind: VerdictWrongAnswer, TestUUID: test, TimeMs: timeMs, MemKB: memKB}
}

func Complete(test uuid.UUID, score float64, timeMs, memKB int64) Verdict {
	return Verdict{Kind: VerdictComplete, TestUUID: test, Score: score, TimeMs: timeMs, MemKB: memKB}
}

func TimeLimitExceed(test uuid.UUID) Verdict {
	return Verdict{Kind: VerdictTimeLimitExceed, TestUUID: test}
}

func RuntimeError(test uuid.UUID, exitCode int64) Verdict {
	return Verdict{Kind: VerdictRuntimeError, TestUUID: test, ExitCode: exitCode}
}

func DiedOnSignal(test uuid.UUID, signal int64) Verdict {
	return Verdict{Kind: VerdictDiedOnSignal, TestUUID: test, Signal: signal}
}

func InternalErrorVerdict(test uuid.UUID) Verdict {
	return Verdict{Kind: VerdictInternalError, TestUUID: test}
}

// Encode serializes the verdict using the protocol package's wire codec.
func (v Verdict) Encode() []byte {
	w := protocol.NewWriter()
	w.WriteUint8(uint8(v.Kind))
	w.WriteString(v.Message)
	w.WriteBytes(v.TestUUID[:])
	w.WriteInt64(v.TimeMs)
	w.WriteInt64(v.MemKB)
	w.WriteUint64(math.Float64bits(v.Score))
	w.WriteInt64(v.ExitCode)
	w.WriteInt64(v.Signal)
	return w.Bytes()
}

// DecodeVerdict parses a Verdict encoded by Encode.
func DecodeVerdict(body []byte) (Verdict, error) {
	r := protocol.NewReader(body)
	var v Verdict

	kind, err := r.ReadUint8()
	if err != nil {
		return v, err
	}
	v.Kind = VerdictKind(kind)

	if v.Message, err = r.ReadString(); err != nil {
		return v, err
	}
	idBytes, err := r.ReadBytes()
	if err != nil {
		return v, err
	}
	if len(idBytes) == 16 {
		copy(v.TestUUID[:], idBytes)
	}
	if v.TimeMs, err = r.ReadInt64(); err != nil {
		return v, err
	}
	if v.MemKB, err = r.ReadInt64(); err != nil {
		return v, err
	}
	scoreBits, err := r.ReadUint64()
	if err != nil {
		return v, err
	}
	v.Score = math.Float64frombits(scoreBits)
	if v.ExitCode, err = r.ReadInt64(); err != nil {
		return v, err
	}
	if v.Signal, err = r.ReadInt64(); err != nil {
		return v, err
	}
	return v, nil
}
