package protocol_test

import (
	"bytes"
	"testing"

	"judgeworker/internal/judge/protocol"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacket_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	original := protocol.MakePacket(protocol.CommandTestCaseEnd, []byte{1, 2, 3})
	require.NoError(t, original.WriteTo(&buf))

	decoded, err := protocol.ReadPacket(&buf)
	require.NoError(t, err)
	assert.Equal(t, original.Command, decoded.Command)
	assert.Equal(t, original.Body, decoded.Body)
}

func TestPacket_EmptyBody(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, protocol.MakePacket(protocol.CommandReqVerifyToken, nil).WriteTo(&buf))

	decoded, err := protocol.ReadPacket(&buf)
	require.NoError(t, err)
	assert.Empty(t, decoded.Body)
}

func TestReadPacket_RejectsBadMagic(t *testing.T) {
	_, err := protocol.ReadPacket(bytes.NewReader([]byte{0, 0, 0, 0, 0, 1, 0, 0, 0, 0}))
	assert.Error(t, err)
}

func TestHandshakeRequest_RoundTrip(t *testing.T) {
	original := protocol.HandshakeRequest{ClientPubKey: []byte{9, 8, 7}, HashedPassword: []byte{1, 2, 3, 4}}
	decoded, err := protocol.DecodeHandshakeRequest(original.Encode())
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestHandshakeResponse_RoundTrip(t *testing.T) {
	original := protocol.HandshakeResponse{Result: protocol.HandshakeSuccess, NodeID: "worker-7", ServerPubKey: []byte{4, 5, 6}}
	decoded, err := protocol.DecodeHandshakeResponse(original.Encode())
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestGetJudgeBody_RoundTrip(t *testing.T) {
	original := protocol.GetJudgeBody{
		JudgeUUID:      uuid.New(),
		MainLang:       uuid.New(),
		MainCodeEnc:    []byte("main-enc"),
		CheckerLang:    uuid.New(),
		CheckerCodeEnc: []byte("checker-enc"),
		TimeLimitMs:    2000,
		MemLimitKB:     262144,
	}
	decoded, err := protocol.DecodeGetJudgeBody(original.Encode())
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestGetJudgev2Body_RoundTrip(t *testing.T) {
	original := protocol.GetJudgev2Body{
		GetJudgeBody: protocol.GetJudgeBody{
			JudgeUUID:      uuid.New(),
			MainLang:       uuid.New(),
			MainCodeEnc:    []byte("main-enc"),
			CheckerLang:    uuid.New(),
			CheckerCodeEnc: []byte("checker-enc"),
			TimeLimitMs:    2000,
			MemLimitKB:     262144,
		},
		ManagerLang:    uuid.New(),
		ManagerCodeEnc: []byte("manager-enc"),
		GradersEnc:     []byte("graders-archive"),
		MainPath:       "src/main.cpp",
		ObjectPath:     "build/main.o",
	}
	decoded, err := protocol.DecodeGetJudgev2Body(original.Encode())
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestTestCaseUpdateBody_RoundTrip(t *testing.T) {
	original := protocol.TestCaseUpdateBody{
		JudgeUUID: uuid.New(),
		TestUUID:  uuid.New(),
		StdinEnc:  []byte("in-enc"),
		StdoutEnc: []byte("out-enc"),
	}
	decoded, err := protocol.DecodeTestCaseUpdateBody(original.Encode())
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestJudgeStateUpdateBody_RoundTrip(t *testing.T) {
	original := protocol.JudgeStateUpdateBody{
		NodeID:       "worker-1",
		ClientPubKey: []byte{1, 2},
		JudgeUUID:    uuid.New(),
		VerdictBytes: []byte("verdict-payload"),
	}
	decoded, err := protocol.DecodeJudgeStateUpdateBody(original.Encode())
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestHandshake_SharedKeysMatch(t *testing.T) {
	clientKP, err := protocol.NewKeyPair()
	require.NoError(t, err)
	serverKP, err := protocol.NewKeyPair()
	require.NoError(t, err)

	clientShared, err := clientKP.SharedKey(serverKP.PublicBytes())
	require.NoError(t, err)
	serverShared, err := serverKP.SharedKey(clientKP.PublicBytes())
	require.NoError(t, err)

	assert.Equal(t, clientShared, serverShared)
	assert.Len(t, clientShared, 32)
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	kp, err := protocol.NewKeyPair()
	require.NoError(t, err)
	peer, err := protocol.NewKeyPair()
	require.NoError(t, err)
	key, err := kp.SharedKey(peer.PublicBytes())
	require.NoError(t, err)

	ciphertext, err := protocol.Encrypt(key, []byte("the test case stdin"))
	require.NoError(t, err)
	assert.NotEqual(t, []byte("the test case stdin"), ciphertext)

	plaintext, err := protocol.Decrypt(key, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "the test case stdin", string(plaintext))
}

func TestDecrypt_RejectsTamperedCiphertext(t *testing.T) {
	kp, err := protocol.NewKeyPair()
	require.NoError(t, err)
	peer, err := protocol.NewKeyPair()
	require.NoError(t, err)
	key, err := kp.SharedKey(peer.PublicBytes())
	require.NoError(t, err)

	ciphertext, err := protocol.Encrypt(key, []byte("payload"))
	require.NoError(t, err)
	ciphertext[len(ciphertext)-1] ^= 0xFF

	_, err = protocol.Decrypt(key, ciphertext)
	assert.Error(t, err)
}

func TestHashPassword_Deterministic(t *testing.T) {
	a := protocol.HashPassword("hunter2")
	b := protocol.HashPassword("hunter2")
	c := protocol.HashPassword("different")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 32)
}
