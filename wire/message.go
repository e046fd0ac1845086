package wire

import (
	"fmt"
	"math"

	"lukechampine.com/blake3"
)

// ProblemId identifies a contest problem.
type ProblemId uint32

func (p ProblemId) Encode(w *Writer) { w.WriteUint32(uint32(p)) }

func DecodeProblemId(r *Reader) (ProblemId, error) {
	v, err := r.ReadUint32()
	return ProblemId(v), err
}

// SubScore is an evaluator-reported score, always finite and in [0, 1]
// once validated (spec §4.5).
type SubScore float64

func (s SubScore) Encode(w *Writer) { w.WriteUint64(math.Float64bits(float64(s))) }

func DecodeSubScore(r *Reader) (SubScore, error) {
	v, err := r.ReadUint64()
	if err != nil {
		return 0, err
	}
	return SubScore(math.Float64frombits(v)), nil
}

// SubmissionId identifies a single submitted solution, per spec §3.
type SubmissionId struct {
	Submitter VerifyKey
	Problem   ProblemId
	FileHash  FileHash
}

func (s SubmissionId) Encode(w *Writer) {
	s.Submitter.Encode(w)
	s.Problem.Encode(w)
	s.FileHash.Encode(w)
}

func DecodeSubmissionId(r *Reader) (SubmissionId, error) {
	sub, err := DecodeVerifyKey(r)
	if err != nil {
		return SubmissionId{}, err
	}
	pid, err := DecodeProblemId(r)
	if err != nil {
		return SubmissionId{}, err
	}
	fh, err := DecodeMac(r)
	if err != nil {
		return SubmissionId{}, err
	}
	return SubmissionId{Submitter: sub, Problem: pid, FileHash: fh}, nil
}

// EvaluationId names a single evaluator's task against a submission.
type EvaluationId struct {
	Submission SubmissionId
	Evaluator  VerifyKey
}

func (e EvaluationId) Encode(w *Writer) {
	e.Submission.Encode(w)
	e.Evaluator.Encode(w)
}

func DecodeEvaluationId(r *Reader) (EvaluationId, error) {
	sub, err := DecodeSubmissionId(r)
	if err != nil {
		return EvaluationId{}, err
	}
	ev, err := DecodeVerifyKey(r)
	if err != nil {
		return EvaluationId{}, err
	}
	return EvaluationId{Submission: sub, Evaluator: ev}, nil
}

// RevealKey is the key an evaluator used to keyed-hash its detail hash
// commitment. Publishing it is the "reveal" half of the commit-then-reveal
// scheme in spec §4.6. The key is taken to be the canonical digest (spec
// §9's second Open Question): aggregator.FinalScore reports the majority's
// revealed key as the DetailHash. No code checks that an evaluator's key
// equals its digest; KeyedBlake3 below accepts any key.
type RevealKey [32]byte

func (k RevealKey) Encode(w *Writer) { w.WriteBytes(k[:]) }

func DecodeRevealKey(r *Reader) (RevealKey, error) {
	var k RevealKey
	b, err := r.ReadBytes(32)
	if err != nil {
		return k, err
	}
	copy(k[:], b)
	return k, nil
}

// KeyedBlake3 computes the keyed blake3 hash of data under key, used both to
// commit a DetailHash (§4.5) and to check an EvaluationProof's reveal (§4.6).
func KeyedBlake3(key [32]byte, data []byte) Mac {
	var m Mac
	h := blake3.New(32, key[:])
	h.Write(data)
	copy(m[:], h.Sum(nil))
	return m
}

// --- EncKeyId access policy (spec §3) ---

type EncKeyIdKind byte

const (
	EncKeyCustomPublic EncKeyIdKind = iota
	EncKeyIsEntity
	EncKeyIsClient
	EncKeyProblemSolved
	EncKeyOr
	EncKeyAnd
)

// EncKeyId is the algebraic entitlement predicate of spec §3: a peer may
// decrypt a file iff it holds an EncKey bound to an EncKeyId that resolves
// to true for that peer's identity.
type EncKeyId struct {
	Kind         EncKeyIdKind
	CustomPublic uint32
	Entity       Entity
	Client       VerifyKey
	Problem      ProblemId
	Children     []EncKeyId // Or / And operands
}

func CustomPublicKeyId(id uint32) EncKeyId { return EncKeyId{Kind: EncKeyCustomPublic, CustomPublic: id} }
func IsEntityKeyId(e Entity) EncKeyId      { return EncKeyId{Kind: EncKeyIsEntity, Entity: e} }
func IsClientKeyId(vk VerifyKey) EncKeyId  { return EncKeyId{Kind: EncKeyIsClient, Client: vk} }
func ProblemSolvedKeyId(p ProblemId) EncKeyId {
	return EncKeyId{Kind: EncKeyProblemSolved, Problem: p}
}
func OrKeyId(children ...EncKeyId) EncKeyId  { return EncKeyId{Kind: EncKeyOr, Children: children} }
func AndKeyId(children ...EncKeyId) EncKeyId { return EncKeyId{Kind: EncKeyAnd, Children: children} }

func (e EncKeyId) Encode(w *Writer) {
	w.WriteByte(byte(e.Kind))
	switch e.Kind {
	case EncKeyCustomPublic:
		w.WriteUint32(e.CustomPublic)
	case EncKeyIsEntity:
		e.Entity.Encode(w)
	case EncKeyIsClient:
		e.Client.Encode(w)
	case EncKeyProblemSolved:
		e.Problem.Encode(w)
	case EncKeyOr, EncKeyAnd:
		w.WriteByte(byte(len(e.Children)))
		for _, c := range e.Children {
			c.Encode(w)
		}
	}
}

func DecodeEncKeyId(r *Reader) (EncKeyId, error) {
	kb, err := r.ReadByte()
	if err != nil {
		return EncKeyId{}, err
	}
	kind := EncKeyIdKind(kb)
	switch kind {
	case EncKeyCustomPublic:
		v, err := r.ReadUint32()
		if err != nil {
			return EncKeyId{}, err
		}
		return EncKeyId{Kind: kind, CustomPublic: v}, nil
	case EncKeyIsEntity:
		e, err := DecodeEntity(r)
		if err != nil {
			return EncKeyId{}, err
		}
		return EncKeyId{Kind: kind, Entity: e}, nil
	case EncKeyIsClient:
		vk, err := DecodeVerifyKey(r)
		if err != nil {
			return EncKeyId{}, err
		}
		return EncKeyId{Kind: kind, Client: vk}, nil
	case EncKeyProblemSolved:
		p, err := DecodeProblemId(r)
		if err != nil {
			return EncKeyId{}, err
		}
		return EncKeyId{Kind: kind, Problem: p}, nil
	case EncKeyOr, EncKeyAnd:
		n, err := r.ReadByte()
		if err != nil {
			return EncKeyId{}, err
		}
		children := make([]EncKeyId, n)
		for i := range children {
			children[i], err = DecodeEncKeyId(r)
			if err != nil {
				return EncKeyId{}, err
			}
		}
		return EncKeyId{Kind: kind, Children: children}, nil
	default:
		return EncKeyId{}, fmt.Errorf("wire: invalid EncKeyId tag %d", kb)
	}
}

// Satisfies evaluates the predicate against a peer's identity, role, and
// (for ProblemSolved) the set of problems the caller reports as solved.
func (e EncKeyId) Satisfies(peer VerifyKey, role Entity, solved map[ProblemId]bool) bool {
	switch e.Kind {
	case EncKeyCustomPublic:
		return false // resolved out-of-band by application policy; see DESIGN.md
	case EncKeyIsEntity:
		return e.Entity == role
	case EncKeyIsClient:
		return e.Client == peer
	case EncKeyProblemSolved:
		return solved[e.Problem]
	case EncKeyOr:
		for _, c := range e.Children {
			if c.Satisfies(peer, role, solved) {
				return true
			}
		}
		return false
	case EncKeyAnd:
		for _, c := range e.Children {
			if !c.Satisfies(peer, role, solved) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// --- Net (handshake) messages ---

// MerklePayload is the signed handshake payload: contest scoping, clock,
// the sender's fresh Kex public value, an obfuscated address, and its role.
type MerklePayload struct {
	Contest ContestId
	At      Timestamp
	KexPub  KexPublic
	Addr    Obfuscated[PeerAddr]
	Role    Entity
}

func (m MerklePayload) Encode(w *Writer) {
	m.Contest.Encode(w)
	m.At.Encode(w)
	m.KexPub.Encode(w)
	m.Addr.Encode(w)
	m.Role.Encode(w)
}

func DecodeMerklePayload(r *Reader) (MerklePayload, error) {
	var m MerklePayload
	var err error
	if m.Contest, err = DecodeContestId(r); err != nil {
		return m, err
	}
	if m.At, err = DecodeTimestamp(r); err != nil {
		return m, err
	}
	if m.KexPub, err = DecodeKexPublic(r); err != nil {
		return m, err
	}
	if m.Addr, err = DecodeObfuscated[PeerAddr](r); err != nil {
		return m, err
	}
	if m.Role, err = DecodeEntity(r); err != nil {
		return m, err
	}
	return m, nil
}

// MerkleMessage is the Signed Merkle KEX announcement (spec §4.2, §6).
type MerkleMessage = Signed[MerklePayload, VerifyKey]

func DecodeMerkleMessage(r *Reader) (MerkleMessage, error) {
	return DecodeSigned[MerklePayload, VerifyKey](r, DecodeMerklePayload, DecodeVerifyKey)
}

// KeepAliveMessage proves liveness of an already-established MacKey.
type KeepAliveMessage struct {
	Sender VerifyKey
	Proof  Macced[Timestamp]
}

func (k KeepAliveMessage) Encode(w *Writer) {
	k.Sender.Encode(w)
	k.Proof.Encode(w)
}

func DecodeKeepAliveMessage(r *Reader) (KeepAliveMessage, error) {
	sender, err := DecodeVerifyKey(r)
	if err != nil {
		return KeepAliveMessage{}, err
	}
	proof, err := DecodeMacced[Timestamp](r, DecodeTimestamp)
	if err != nil {
		return KeepAliveMessage{}, err
	}
	return KeepAliveMessage{Sender: sender, Proof: proof}, nil
}

type NetMessageKind byte

const (
	NetMerkle NetMessageKind = iota
	NetKeepAlive
)

// NetMessage is the handshake-phase union (tag 0 of the top-level Message,
// spec §6).
type NetMessage struct {
	Kind      NetMessageKind
	Merkle    MerkleMessage
	KeepAlive KeepAliveMessage
}

func NetMessageMerkle(m MerkleMessage) NetMessage {
	return NetMessage{Kind: NetMerkle, Merkle: m}
}

func NetMessageKeepAlive(k KeepAliveMessage) NetMessage {
	return NetMessage{Kind: NetKeepAlive, KeepAlive: k}
}

func (n NetMessage) Encode(w *Writer) {
	w.WriteByte(byte(n.Kind))
	switch n.Kind {
	case NetMerkle:
		n.Merkle.Encode(w)
	case NetKeepAlive:
		n.KeepAlive.Encode(w)
	}
}

func DecodeNetMessage(r *Reader) (NetMessage, error) {
	kb, err := r.ReadByte()
	if err != nil {
		return NetMessage{}, err
	}
	switch NetMessageKind(kb) {
	case NetMerkle:
		m, err := DecodeMerkleMessage(r)
		if err != nil {
			return NetMessage{}, err
		}
		return NetMessageMerkle(m), nil
	case NetKeepAlive:
		k, err := DecodeKeepAliveMessage(r)
		if err != nil {
			return NetMessage{}, err
		}
		return NetMessageKeepAlive(k), nil
	default:
		return NetMessage{}, fmt.Errorf("wire: invalid NetMessage tag %d", kb)
	}
}

// --- Queue application messages (spec §3; supplemented minimally per
// SPEC_FULL.md since the queue application layer is explicitly
// out-of-scope for semantics, not for wire shape) ---

type QueueInnerKind byte

const (
	QISubmission QueueInnerKind = iota
	QIEvaluationRequest
	QIEvaluation
	QIEvaluationProof
	QIProblemDesc
	QIAnnouncement
	QIPublicKey
	QIPeerInfo
)

type QEvaluationRequest struct {
	Submission SubmissionId
	Evaluators []VerifyKey
}

func (q QEvaluationRequest) Encode(w *Writer) {
	q.Submission.Encode(w)
	w.WriteByte(byte(len(q.Evaluators)))
	for _, e := range q.Evaluators {
		e.Encode(w)
	}
}

func DecodeQEvaluationRequest(r *Reader) (QEvaluationRequest, error) {
	sub, err := DecodeSubmissionId(r)
	if err != nil {
		return QEvaluationRequest{}, err
	}
	n, err := r.ReadByte()
	if err != nil {
		return QEvaluationRequest{}, err
	}
	evs := make([]VerifyKey, n)
	for i := range evs {
		if evs[i], err = DecodeVerifyKey(r); err != nil {
			return QEvaluationRequest{}, err
		}
	}
	return QEvaluationRequest{Submission: sub, Evaluators: evs}, nil
}

type QEvaluation struct {
	Id         EvaluationId
	Score      SubScore
	DetailHash DetailHash
}

func (q QEvaluation) Encode(w *Writer) {
	q.Id.Encode(w)
	q.Score.Encode(w)
	q.DetailHash.Encode(w)
}

func DecodeQEvaluation(r *Reader) (QEvaluation, error) {
	id, err := DecodeEvaluationId(r)
	if err != nil {
		return QEvaluation{}, err
	}
	score, err := DecodeSubScore(r)
	if err != nil {
		return QEvaluation{}, err
	}
	dh, err := DecodeMac(r)
	if err != nil {
		return QEvaluation{}, err
	}
	return QEvaluation{Id: id, Score: score, DetailHash: dh}, nil
}

type QEvaluationProof struct {
	Id            EvaluationId
	DetailHashKey RevealKey
}

func (q QEvaluationProof) Encode(w *Writer) {
	q.Id.Encode(w)
	q.DetailHashKey.Encode(w)
}

func DecodeQEvaluationProof(r *Reader) (QEvaluationProof, error) {
	id, err := DecodeEvaluationId(r)
	if err != nil {
		return QEvaluationProof{}, err
	}
	key, err := DecodeRevealKey(r)
	if err != nil {
		return QEvaluationProof{}, err
	}
	return QEvaluationProof{Id: id, DetailHashKey: key}, nil
}

// QSubmission is the server's committed log entry for a new submission
// (distinct from the direct participant->server SubmissionMessage below,
// which merely announces the file exists before it is queued).
type QSubmission struct {
	Submitter VerifyKey
	Problem   ProblemId
	FileHash  FileHash
}

func (q QSubmission) Encode(w *Writer) {
	q.Submitter.Encode(w)
	q.Problem.Encode(w)
	q.FileHash.Encode(w)
}

func DecodeQSubmission(r *Reader) (QSubmission, error) {
	sub, err := DecodeVerifyKey(r)
	if err != nil {
		return QSubmission{}, err
	}
	pid, err := DecodeProblemId(r)
	if err != nil {
		return QSubmission{}, err
	}
	fh, err := DecodeMac(r)
	if err != nil {
		return QSubmission{}, err
	}
	return QSubmission{Submitter: sub, Problem: pid, FileHash: fh}, nil
}

type QProblemDesc struct {
	Problem  ProblemId
	FileHash FileHash
}

func (q QProblemDesc) Encode(w *Writer) {
	q.Problem.Encode(w)
	q.FileHash.Encode(w)
}

func DecodeQProblemDesc(r *Reader) (QProblemDesc, error) {
	pid, err := DecodeProblemId(r)
	if err != nil {
		return QProblemDesc{}, err
	}
	fh, err := DecodeMac(r)
	if err != nil {
		return QProblemDesc{}, err
	}
	return QProblemDesc{Problem: pid, FileHash: fh}, nil
}

type QAnnouncement struct {
	Text string
}

func (q QAnnouncement) Encode(w *Writer) { w.WriteVarBytes([]byte(q.Text)) }

func DecodeQAnnouncement(r *Reader) (QAnnouncement, error) {
	b, err := r.ReadVarBytes()
	if err != nil {
		return QAnnouncement{}, err
	}
	return QAnnouncement{Text: string(b)}, nil
}

type QPublicKey struct {
	Owner VerifyKey
	Role  Entity
}

func (q QPublicKey) Encode(w *Writer) {
	q.Owner.Encode(w)
	q.Role.Encode(w)
}

func DecodeQPublicKey(r *Reader) (QPublicKey, error) {
	owner, err := DecodeVerifyKey(r)
	if err != nil {
		return QPublicKey{}, err
	}
	role, err := DecodeEntity(r)
	if err != nil {
		return QPublicKey{}, err
	}
	return QPublicKey{Owner: owner, Role: role}, nil
}

type QPeerInfo struct {
	Owner VerifyKey
	Addr  PeerAddr
}

func (q QPeerInfo) Encode(w *Writer) {
	q.Owner.Encode(w)
	q.Addr.Encode(w)
}

func DecodeQPeerInfo(r *Reader) (QPeerInfo, error) {
	owner, err := DecodeVerifyKey(r)
	if err != nil {
		return QPeerInfo{}, err
	}
	addr, err := DecodePeerAddr(r)
	if err != nil {
		return QPeerInfo{}, err
	}
	return QPeerInfo{Owner: owner, Addr: addr}, nil
}

// QueueInner is the tagged union of QueueMessage payloads (spec §3).
type QueueInner struct {
	Kind              QueueInnerKind
	Submission        QSubmission
	EvaluationRequest QEvaluationRequest
	Evaluation        QEvaluation
	EvaluationProof   QEvaluationProof
	ProblemDesc       QProblemDesc
	Announcement      QAnnouncement
	PublicKey         QPublicKey
	PeerInfo          QPeerInfo
}

func (q QueueInner) Encode(w *Writer) {
	w.WriteByte(byte(q.Kind))
	switch q.Kind {
	case QISubmission:
		q.Submission.Encode(w)
	case QIEvaluationRequest:
		q.EvaluationRequest.Encode(w)
	case QIEvaluation:
		q.Evaluation.Encode(w)
	case QIEvaluationProof:
		q.EvaluationProof.Encode(w)
	case QIProblemDesc:
		q.ProblemDesc.Encode(w)
	case QIAnnouncement:
		q.Announcement.Encode(w)
	case QIPublicKey:
		q.PublicKey.Encode(w)
	case QIPeerInfo:
		q.PeerInfo.Encode(w)
	}
}

func DecodeQueueInner(r *Reader) (QueueInner, error) {
	kb, err := r.ReadByte()
	if err != nil {
		return QueueInner{}, err
	}
	kind := QueueInnerKind(kb)
	var out QueueInner
	out.Kind = kind
	switch kind {
	case QISubmission:
		out.Submission, err = DecodeQSubmission(r)
	case QIEvaluationRequest:
		out.EvaluationRequest, err = DecodeQEvaluationRequest(r)
	case QIEvaluation:
		out.Evaluation, err = DecodeQEvaluation(r)
	case QIEvaluationProof:
		out.EvaluationProof, err = DecodeQEvaluationProof(r)
	case QIProblemDesc:
		out.ProblemDesc, err = DecodeQProblemDesc(r)
	case QIAnnouncement:
		out.Announcement, err = DecodeQAnnouncement(r)
	case QIPublicKey:
		out.PublicKey, err = DecodeQPublicKey(r)
	case QIPeerInfo:
		out.PeerInfo, err = DecodeQPeerInfo(r)
	default:
		return QueueInner{}, fmt.Errorf("wire: invalid QueueInner tag %d", kb)
	}
	return out, err
}

// QueueMessage carries a dense 0-based sequence id assigned by the server
// (spec §3); receivers buffer out-of-order messages and commit in id order.
type QueueMessage struct {
	Id    uint32
	At    Timestamp
	Inner QueueInner
}

func (q QueueMessage) Encode(w *Writer) {
	w.WriteUint32(q.Id)
	q.At.Encode(w)
	q.Inner.Encode(w)
}

func DecodeQueueMessage(r *Reader) (QueueMessage, error) {
	id, err := r.ReadUint32()
	if err != nil {
		return QueueMessage{}, err
	}
	at, err := DecodeTimestamp(r)
	if err != nil {
		return QueueMessage{}, err
	}
	inner, err := DecodeQueueInner(r)
	if err != nil {
		return QueueMessage{}, err
	}
	return QueueMessage{Id: id, At: at, Inner: inner}, nil
}

// SignedQueueMessage is tag-1's inner payload: Macced(Signed(QueueMessage,
// server VerifyKey)). The original tuple-with-unit-second-field shape
// (spec §6: "(QueueMessage, ())") is an artifact of a Signed type that
// required its payload be a tuple; our Signed[T, W] already carries the
// signer separately, so the unit is dropped (see DESIGN.md).
type SignedQueueMessage = Signed[QueueMessage, VerifyKey]

func DecodeSignedQueueMessage(r *Reader) (SignedQueueMessage, error) {
	return DecodeSigned[QueueMessage, VerifyKey](r, DecodeQueueMessage, DecodeVerifyKey)
}

// --- File transfer message ---

// FileMessage carries one content-addressed, encrypted chunk. Its
// serialized size plus the enclosing Macced MAC and top-level tag byte is
// exactly MaxMessageSize (spec §4.1, verified in wire_test.go).
type FileMessage struct {
	Hash       FileHash
	PieceIndex uint32
	Data       SizedEncryptedChunk
}

func (f FileMessage) Encode(w *Writer) {
	f.Hash.Encode(w)
	w.WriteUint32(f.PieceIndex)
	f.Data.Encode(w)
}

func DecodeFileMessage(r *Reader) (FileMessage, error) {
	hash, err := DecodeMac(r)
	if err != nil {
		return FileMessage{}, err
	}
	idx, err := r.ReadUint32()
	if err != nil {
		return FileMessage{}, err
	}
	data, err := DecodeSizedEncryptedChunk(r)
	if err != nil {
		return FileMessage{}, err
	}
	return FileMessage{Hash: hash, PieceIndex: idx, Data: data}, nil
}

// --- EncKeyInfo: seals a symmetric EncKey under an access policy ---

type EncKeyInfo struct {
	Id  EncKeyId
	Key EncKey
}

func (e EncKeyInfo) Encode(w *Writer) {
	e.Id.Encode(w)
	e.Key.Encode(w)
}

func DecodeEncKeyInfo(r *Reader) (EncKeyInfo, error) {
	id, err := DecodeEncKeyId(r)
	if err != nil {
		return EncKeyInfo{}, err
	}
	key, err := DecodeEncKey(r)
	if err != nil {
		return EncKeyInfo{}, err
	}
	return EncKeyInfo{Id: id, Key: key}, nil
}

// --- Request / Submission / Question messages ---

type RequestKind byte

const (
	RequestGetChunk RequestKind = iota
	RequestGetEncKey
)

// RequestMessage asks a peer to push data this side is missing: either a
// specific file chunk, or an EncKey sealed under a policy the requester
// believes it satisfies.
type RequestMessage struct {
	Kind       RequestKind
	Hash       FileHash
	PieceIndex uint32
	KeyId      EncKeyId
}

func (r RequestMessage) Encode(w *Writer) {
	w.WriteByte(byte(r.Kind))
	switch r.Kind {
	case RequestGetChunk:
		r.Hash.Encode(w)
		w.WriteUint32(r.PieceIndex)
	case RequestGetEncKey:
		r.KeyId.Encode(w)
	}
}

func DecodeRequestMessage(rd *Reader) (RequestMessage, error) {
	kb, err := rd.ReadByte()
	if err != nil {
		return RequestMessage{}, err
	}
	kind := RequestKind(kb)
	switch kind {
	case RequestGetChunk:
		hash, err := DecodeMac(rd)
		if err != nil {
			return RequestMessage{}, err
		}
		idx, err := rd.ReadUint32()
		if err != nil {
			return RequestMessage{}, err
		}
		return RequestMessage{Kind: kind, Hash: hash, PieceIndex: idx}, nil
	case RequestGetEncKey:
		keyId, err := DecodeEncKeyId(rd)
		if err != nil {
			return RequestMessage{}, err
		}
		return RequestMessage{Kind: kind, KeyId: keyId}, nil
	default:
		return RequestMessage{}, fmt.Errorf("wire: invalid RequestMessage tag %d", kb)
	}
}

// SubmissionMessage is the direct participant->server announcement that a
// file (already pushed, or about to be, via FileMessage chunks) should be
// considered a submission to Problem.
type SubmissionMessage struct {
	Problem  ProblemId
	FileHash FileHash
}

func (s SubmissionMessage) Encode(w *Writer) {
	s.Problem.Encode(w)
	s.FileHash.Encode(w)
}

func DecodeSubmissionMessage(r *Reader) (SubmissionMessage, error) {
	pid, err := DecodeProblemId(r)
	if err != nil {
		return SubmissionMessage{}, err
	}
	fh, err := DecodeMac(r)
	if err != nil {
		return SubmissionMessage{}, err
	}
	return SubmissionMessage{Problem: pid, FileHash: fh}, nil
}

// QuestionMessage is a live participant->server question, separate from
// the broadcast Announcement queue entry.
type QuestionMessage struct {
	Problem ProblemId
	Text    string
}

func (q QuestionMessage) Encode(w *Writer) {
	q.Problem.Encode(w)
	w.WriteVarBytes([]byte(q.Text))
}

func DecodeQuestionMessage(r *Reader) (QuestionMessage, error) {
	pid, err := DecodeProblemId(r)
	if err != nil {
		return QuestionMessage{}, err
	}
	b, err := r.ReadVarBytes()
	if err != nil {
		return QuestionMessage{}, err
	}
	return QuestionMessage{Problem: pid, Text: string(b)}, nil
}

// --- top-level Message union (spec §6) ---

type MessageKind byte

const (
	MessageNet MessageKind = iota
	MessageQueue
	MessageFile
	MessageEncKey
	MessageRequest
	MessageSubmission
	MessageQuestion
)

// Message is the tagged union every datagram encodes (spec §6). Exactly one
// of the variant fields is meaningful, selected by Kind.
type Message struct {
	Kind       MessageKind
	Net        NetMessage
	Queue      Macced[SignedQueueMessage]
	File       Macced[FileMessage]
	EncKey     Macced[EncKeyInfo]
	Request    Macced[RequestMessage]
	Submission Macced[SubmissionMessage]
	Question   Macced[QuestionMessage]
}

func MessageFromNet(n NetMessage) Message { return Message{Kind: MessageNet, Net: n} }
func MessageFromQueue(m Macced[SignedQueueMessage]) Message {
	return Message{Kind: MessageQueue, Queue: m}
}
func MessageFromFile(m Macced[FileMessage]) Message   { return Message{Kind: MessageFile, File: m} }
func MessageFromEncKey(m Macced[EncKeyInfo]) Message   { return Message{Kind: MessageEncKey, EncKey: m} }
func MessageFromRequest(m Macced[RequestMessage]) Message {
	return Message{Kind: MessageRequest, Request: m}
}
func MessageFromSubmission(m Macced[SubmissionMessage]) Message {
	return Message{Kind: MessageSubmission, Submission: m}
}
func MessageFromQuestion(m Macced[QuestionMessage]) Message {
	return Message{Kind: MessageQuestion, Question: m}
}

func (m Message) Encode(w *Writer) {
	w.WriteByte(byte(m.Kind))
	switch m.Kind {
	case MessageNet:
		m.Net.Encode(w)
	case MessageQueue:
		m.Queue.Encode(w)
	case MessageFile:
		m.File.Encode(w)
	case MessageEncKey:
		m.EncKey.Encode(w)
	case MessageRequest:
		m.Request.Encode(w)
	case MessageSubmission:
		m.Submission.Encode(w)
	case MessageQuestion:
		m.Question.Encode(w)
	}
}

// DecodeMessage decodes a full Message from buf, the inverse of Encode.
func DecodeMessage(buf []byte) (Message, error) {
	r := NewReader(buf)
	kb, err := r.ReadByte()
	if err != nil {
		return Message{}, err
	}
	kind := MessageKind(kb)
	switch kind {
	case MessageNet:
		n, err := DecodeNetMessage(r)
		if err != nil {
			return Message{}, err
		}
		return MessageFromNet(n), nil
	case MessageQueue:
		m, err := DecodeMacced[SignedQueueMessage](r, DecodeSignedQueueMessage)
		if err != nil {
			return Message{}, err
		}
		return MessageFromQueue(m), nil
	case MessageFile:
		m, err := DecodeMacced[FileMessage](r, DecodeFileMessage)
		if err != nil {
			return Message{}, err
		}
		return MessageFromFile(m), nil
	case MessageEncKey:
		m, err := DecodeMacced[EncKeyInfo](r, DecodeEncKeyInfo)
		if err != nil {
			return Message{}, err
		}
		return MessageFromEncKey(m), nil
	case MessageRequest:
		m, err := DecodeMacced[RequestMessage](r, DecodeRequestMessage)
		if err != nil {
			return Message{}, err
		}
		return MessageFromRequest(m), nil
	case MessageSubmission:
		m, err := DecodeMacced[SubmissionMessage](r, DecodeSubmissionMessage)
		if err != nil {
			return Message{}, err
		}
		return MessageFromSubmission(m), nil
	case MessageQuestion:
		m, err := DecodeMacced[QuestionMessage](r, DecodeQuestionMessage)
		if err != nil {
			return Message{}, err
		}
		return MessageFromQuestion(m), nil
	default:
		return Message{}, fmt.Errorf("wire: invalid Message tag %d", kb)
	}
}
