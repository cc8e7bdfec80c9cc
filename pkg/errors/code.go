package errors

// ErrorCode represents a unique error identifier.
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & session errors
// 11000-11999: Language registry errors
// 12000-12999: Compiler errors
// 13000-13999: Sandbox execution errors
// 14000-14999: Cache errors
// 15000-15999: Protocol errors

const (
	Success ErrorCode = 10000

	InternalError      ErrorCode = 10001
	InvalidParams      ErrorCode = 10002
	Timeout            ErrorCode = 10003
	ConnectionFailed   ErrorCode = 10004
	HandshakeFailed    ErrorCode = 10005
	PasswordMismatch   ErrorCode = 10006
	AlreadyLocked      ErrorCode = 10007
	NoActiveJudge      ErrorCode = 10008
	KeyNotEstablished  ErrorCode = 10009

	LanguageNotFound      ErrorCode = 11000
	LanguageDescriptorBad ErrorCode = 11001

	CompileFailed    ErrorCode = 12000
	GraderBuildFailed ErrorCode = 12001
	ArtifactMissing  ErrorCode = 12002

	SandboxLaunchFailed ErrorCode = 13000
	SandboxMetaMissing  ErrorCode = 13001
	SandboxMetaInvalid  ErrorCode = 13002

	CacheUnavailable ErrorCode = 14000
	CacheCorrupt     ErrorCode = 14001

	DecodeFailed    ErrorCode = 15000
	EncryptFailed   ErrorCode = 15001
	DecryptFailed   ErrorCode = 15002
)

var errorMessages = map[ErrorCode]string{
	Success:            "success",
	InternalError:      "internal error",
	InvalidParams:      "invalid parameters",
	Timeout:            "operation timed out",
	ConnectionFailed:   "connection to master failed",
	HandshakeFailed:    "handshake failed",
	PasswordMismatch:   "master password did not match",
	AlreadyLocked:      "worker is already judging a submission",
	NoActiveJudge:      "no active judge for this worker",
	KeyNotEstablished:  "shared session key not established",

	LanguageNotFound:      "language not found in registry",
	LanguageDescriptorBad: "language descriptor is malformed",

	CompileFailed:     "compilation failed",
	GraderBuildFailed: "grader project build failed",
	ArtifactMissing:   "expected compiled artifact is missing",

	SandboxLaunchFailed: "failed to launch sandbox",
	SandboxMetaMissing:  "sandbox meta file missing",
	SandboxMetaInvalid:  "sandbox meta file malformed",

	CacheUnavailable: "cache backend unavailable",
	CacheCorrupt:     "cache entry could not be decoded",

	DecodeFailed:  "failed to decode packet",
	EncryptFailed: "failed to encrypt payload",
	DecryptFailed: "failed to decrypt payload",
}

// Message returns the default message for the error code.
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "unknown error"
}

// Fatal reports whether an error of this code should terminate the session
// rather than trigger a reconnect or a per-job failure.
func (c ErrorCode) Fatal() bool {
	return c == PasswordMismatch
}
