package protocol

import "github.com/google/uuid"

// HandshakeResult is the master's verdict on a Handshake request.
type HandshakeResult uint8

const (
	HandshakeSuccess           HandshakeResult = 0
	HandshakePasswordNotMatched HandshakeResult = 1
	HandshakeRetry             HandshakeResult = 2
)

// HandshakeRequest opens a session: the worker's ephemeral ECDH public key
// plus a BLAKE3 hash of the configured master password.
type HandshakeRequest struct {
	ClientPubKey   []byte
	HashedPassword []byte
}

func (m HandshakeRequest) Encode() []byte {
	w := NewWriter()
	w.WriteBytes(m.ClientPubKey)
	w.WriteBytes(m.HashedPassword)
	return w.Bytes()
}

func DecodeHandshakeRequest(body []byte) (HandshakeRequest, error) {
	r := NewReader(body)
	var m HandshakeRequest
	var err error
	if m.ClientPubKey, err = r.ReadBytes(); err != nil {
		return m, err
	}
	if m.HashedPassword, err = r.ReadBytes(); err != nil {
		return m, err
	}
	return m, nil
}

// HandshakeResponse is the master's reply: on success it assigns a node id
// and returns its own ephemeral public key to complete the ECDH exchange.
type HandshakeResponse struct {
	Result       HandshakeResult
	NodeID       string
	ServerPubKey []byte
}

func (m HandshakeResponse) Encode() []byte {
	w := NewWriter()
	w.WriteUint8(uint8(m.Result))
	w.WriteString(m.NodeID)
	w.WriteBytes(m.ServerPubKey)
	return w.Bytes()
}

func DecodeHandshakeResponse(body []byte) (HandshakeResponse, error) {
	r := NewReader(body)
	var m HandshakeResponse
	result, err := r.ReadUint8()
	if err != nil {
		return m, err
	}
	m.Result = HandshakeResult(result)
	if m.NodeID, err = r.ReadString(); err != nil {
		return m, err
	}
	if m.ServerPubKey, err = r.ReadBytes(); err != nil {
		return m, err
	}
	return m, nil
}

// ReqVerifyTokenBody carries the master's liveness verdict on the session.
type ReqVerifyTokenBody struct {
	Valid bool
}

func (m ReqVerifyTokenBody) Encode() []byte {
	w := NewWriter()
	w.WriteBool(m.Valid)
	return w.Bytes()
}

func DecodeReqVerifyTokenBody(body []byte) (ReqVerifyTokenBody, error) {
	r := NewReader(body)
	var m ReqVerifyTokenBody
	var err error
	if m.Valid, err = r.ReadBool(); err != nil {
		return m, err
	}
	return m, nil
}

// GetJudgeBody carries a Simple-mode judge request. Source payloads are
// encrypted with the session's shared key.
type GetJudgeBody struct {
	JudgeUUID       uuid.UUID
	MainLang        uuid.UUID
	MainCodeEnc     []byte
	CheckerLang     uuid.UUID
	CheckerCodeEnc  []byte
	TimeLimitMs     int64
	MemLimitKB      int64
}

func (m GetJudgeBody) encodeInto(w *Writer) {
	w.WriteBytes(m.JudgeUUID[:])
	w.WriteBytes(m.MainLang[:])
	w.WriteBytes(m.MainCodeEnc)
	w.WriteBytes(m.CheckerLang[:])
	w.WriteBytes(m.CheckerCodeEnc)
	w.WriteInt64(m.TimeLimitMs)
	w.WriteInt64(m.MemLimitKB)
}

func (m GetJudgeBody) Encode() []byte {
	w := NewWriter()
	m.encodeInto(w)
	return w.Bytes()
}

func decodeGetJudgeBody(r *Reader) (GetJudgeBody, error) {
	var m GetJudgeBody
	if err := readUUID(r, &m.JudgeUUID); err != nil {
		return m, err
	}
	if err := readUUID(r, &m.MainLang); err != nil {
		return m, err
	}
	var err error
	if m.MainCodeEnc, err = r.ReadBytes(); err != nil {
		return m, err
	}
	if err := readUUID(r, &m.CheckerLang); err != nil {
		return m, err
	}
	if m.CheckerCodeEnc, err = r.ReadBytes(); err != nil {
		return m, err
	}
	if m.TimeLimitMs, err = r.ReadInt64(); err != nil {
		return m, err
	}
	if m.MemLimitKB, err = r.ReadInt64(); err != nil {
		return m, err
	}
	return m, nil
}

func DecodeGetJudgeBody(body []byte) (GetJudgeBody, error) {
	return decodeGetJudgeBody(NewReader(body))
}

// GetJudgev2Body extends GetJudgeBody with the Interactive-mode manager and
// grader archive.
type GetJudgev2Body struct {
	GetJudgeBody
	ManagerLang    uuid.UUID
	ManagerCodeEnc []byte
	GradersEnc     []byte
	MainPath       string
	ObjectPath     string
}

func (m GetJudgev2Body) Encode() []byte {
	w := NewWriter()
	m.GetJudgeBody.encodeInto(w)
	w.WriteBytes(m.ManagerLang[:])
	w.WriteBytes(m.ManagerCodeEnc)
	w.WriteBytes(m.GradersEnc)
	w.WriteString(m.MainPath)
	w.WriteString(m.ObjectPath)
	return w.Bytes()
}

func DecodeGetJudgev2Body(body []byte) (GetJudgev2Body, error) {
	r := NewReader(body)
	base, err := decodeGetJudgeBody(r)
	if err != nil {
		return GetJudgev2Body{}, err
	}
	m := GetJudgev2Body{GetJudgeBody: base}
	if err := readUUID(r, &m.ManagerLang); err != nil {
		return m, err
	}
	if m.ManagerCodeEnc, err = r.ReadBytes(); err != nil {
		return m, err
	}
	if m.GradersEnc, err = r.ReadBytes(); err != nil {
		return m, err
	}
	if m.MainPath, err = r.ReadString(); err != nil {
		return m, err
	}
	if m.ObjectPath, err = r.ReadString(); err != nil {
		return m, err
	}
	return m, nil
}

// TestCaseUpdateBody delivers one encrypted test case for the active judge.
type TestCaseUpdateBody struct {
	JudgeUUID uuid.UUID
	TestUUID  uuid.UUID
	StdinEnc  []byte
	StdoutEnc []byte
}

func (m TestCaseUpdateBody) Encode() []byte {
	w := NewWriter()
	w.WriteBytes(m.JudgeUUID[:])
	w.WriteBytes(m.TestUUID[:])
	w.WriteBytes(m.StdinEnc)
	w.WriteBytes(m.StdoutEnc)
	return w.Bytes()
}

func DecodeTestCaseUpdateBody(body []byte) (TestCaseUpdateBody, error) {
	r := NewReader(body)
	var m TestCaseUpdateBody
	if err := readUUID(r, &m.JudgeUUID); err != nil {
		return m, err
	}
	if err := readUUID(r, &m.TestUUID); err != nil {
		return m, err
	}
	var err error
	if m.StdinEnc, err = r.ReadBytes(); err != nil {
		return m, err
	}
	if m.StdoutEnc, err = r.ReadBytes(); err != nil {
		return m, err
	}
	return m, nil
}

// TestCaseEndBody signals the active judge is complete.
type TestCaseEndBody struct {
	JudgeUUID uuid.UUID
}

func (m TestCaseEndBody) Encode() []byte {
	w := NewWriter()
	w.WriteBytes(m.JudgeUUID[:])
	return w.Bytes()
}

func DecodeTestCaseEndBody(body []byte) (TestCaseEndBody, error) {
	r := NewReader(body)
	var m TestCaseEndBody
	if err := readUUID(r, &m.JudgeUUID); err != nil {
		return m, err
	}
	return m, nil
}

// JudgeStateUpdateBody carries a verdict back to the master. VerdictBytes is
// opaque to the protocol layer; the session package owns Verdict encoding.
type JudgeStateUpdateBody struct {
	NodeID       string
	ClientPubKey []byte
	JudgeUUID    uuid.UUID
	VerdictBytes []byte
}

func (m JudgeStateUpdateBody) Encode() []byte {
	w := NewWriter()
	w.WriteString(m.NodeID)
	w.WriteBytes(m.ClientPubKey)
	w.WriteBytes(m.JudgeUUID[:])
	w.WriteBytes(m.VerdictBytes)
	return w.Bytes()
}

func DecodeJudgeStateUpdateBody(body []byte) (JudgeStateUpdateBody, error) {
	r := NewReader(body)
	var m JudgeStateUpdateBody
	var err error
	if m.NodeID, err = r.ReadString(); err != nil {
		return m, err
	}
	if m.ClientPubKey, err = r.ReadBytes(); err != nil {
		return m, err
	}
	if err := readUUID(r, &m.JudgeUUID); err != nil {
		return m, err
	}
	if m.VerdictBytes, err = r.ReadBytes(); err != nil {
		return m, err
	}
	return m, nil
}

func readUUID(r *Reader, out *uuid.UUID) error {
	b, err := r.ReadBytes()
	if err != nil {
		return err
	}
	id, err := uuid.FromBytes(b)
	if err != nil {
		return err
	}
	*out = id
	return nil
}
