package session

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerdict_RoundTrip_NoPayload(t *testing.T) {
	for _, v := range []Verdict{DoCompile(), LanguageNotFound(), LockedSlave(), UnlockedSlave(), JudgeNotFound()} {
		decoded, err := DecodeVerdict(v.Encode())
		require.NoError(t, err)
		assert.Equal(t, v, decoded)
	}
}

func TestVerdict_RoundTrip_WithMessage(t *testing.T) {
	for _, v := range []Verdict{CompileError("stderr text"), CompleteCompile("stdout text"), GeneralError("boom")} {
		decoded, err := DecodeVerdict(v.Encode())
		require.NoError(t, err)
		assert.Equal(t, v, decoded)
	}
}

func TestVerdict_RoundTrip_PerTest(t *testing.T) {
	test := uuid.New()
	cases := []Verdict{
		Accepted(test, 120, 4096),
		WrongAnswer(test, 90, 2048),
		Complete(test, 0.75, 150, 8192),
		TimeLimitExceed(test),
		RuntimeError(test, 1),
		DiedOnSignal(test, 11),
		InternalErrorVerdict(test),
		UnknownErrorVerdict(test),
	}
	for _, v := range cases {
		decoded, err := DecodeVerdict(v.Encode())
		require.NoError(t, err)
		assert.Equal(t, v, decoded)
	}
}

func TestVerdict_Kind_String(t *testing.T) {
	assert.Equal(t, "Accepted", VerdictAccepted.String())
	assert.Equal(t, "WrongAnswer", VerdictWrongAnswer.String())
	assert.Equal(t, "Unknown", VerdictKind(255).String())
}

func TestDecodeVerdict_TruncatedBodyFails(t *testing.T) {
	_, err := DecodeVerdict([]byte{0})
	assert.Error(t, err)
}
