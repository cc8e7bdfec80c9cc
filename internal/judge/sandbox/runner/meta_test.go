package runner

import (
	"testing"

	"judgeworker/internal/judge/sandbox/result"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMeta_CleanExit(t *testing.T) {
	r, err := parseMeta("time:0.012\ntime-wall:0.015\ncg-mem:2048\nexitcode:0\n")
	require.NoError(t, err)
	assert.True(t, r.Clean())
	assert.Equal(t, int64(12), r.TimeMillis())
	assert.Equal(t, int64(2048), r.CgMemKB)
}

func TestParseMeta_TimedOut(t *testing.T) {
	r, err := parseMeta("time:1.000\ntime-wall:1.050\nstatus:TO\nmessage:time limit exceeded\n")
	require.NoError(t, err)
	require.False(t, r.Clean())
	assert.Equal(t, result.StatusTimedOut, *r.Status)
}

func TestParseMeta_DiedOnSignal(t *testing.T) {
	r, err := parseMeta("status:SG\nexitsig:11\n")
	require.NoError(t, err)
	assert.Equal(t, result.StatusDiedOnSignal, *r.Status)
	assert.Equal(t, 11, r.ExitSignal)
}

func TestParseMeta_UnknownStatusCode(t *testing.T) {
	r, err := parseMeta("status:ZZ\n")
	require.NoError(t, err)
	assert.Equal(t, result.StatusUnknown, *r.Status)
}

func TestParseMeta_IgnoresUnknownKeys(t *testing.T) {
	r, err := parseMeta("time:0.5\nunknown-key:whatever\nexitcode:0\n")
	require.NoError(t, err)
	assert.Equal(t, 0.5, r.TimeSeconds)
}

func TestParseMeta_MalformedNumberFails(t *testing.T) {
	_, err := parseMeta("time:not-a-number\n")
	assert.Error(t, err)
}

func TestParseMeta_LineWithoutColonFails(t *testing.T) {
	_, err := parseMeta("time:0.5\ngarbage-line-no-colon\n")
	assert.Error(t, err)
}
