package wire

import (
	"crypto/ed25519"
	"fmt"
	"net"
	"time"
)

// MaxMessageSize is the payload budget for a single UDP datagram, per spec §4.1.
const MaxMessageSize = 1232

// MaxPacketSize includes the IPv6+UDP headers around MaxMessageSize.
const MaxPacketSize = 1280

// FileChunkSize is the plaintext size of a single file chunk, chosen so a
// fully populated FileMessage serializes to exactly MaxMessageSize bytes.
const FileChunkSize = MaxMessageSize - 81

// VerifyKey is a long-term Ed25519 public identity key.
type VerifyKey [32]byte

func (k VerifyKey) Encode(w *Writer) { w.WriteBytes(k[:]) }

func DecodeVerifyKey(r *Reader) (VerifyKey, error) {
	var k VerifyKey
	b, err := r.ReadBytes(32)
	if err != nil {
		return k, err
	}
	copy(k[:], b)
	return k, nil
}

func (k VerifyKey) String() string { return fmt.Sprintf("%x", k[:8]) }

// SigKey is the long-term Ed25519 secret signing key.
type SigKey struct {
	priv ed25519.PrivateKey
}

func NewSigKeyFromPrivate(priv ed25519.PrivateKey) SigKey { return SigKey{priv: priv} }

func (k SigKey) Verify() VerifyKey {
	var vk VerifyKey
	copy(vk[:], k.priv.Public().(ed25519.PublicKey))
	return vk
}

func (k SigKey) Sign(message []byte) [64]byte {
	var sig [64]byte
	copy(sig[:], ed25519.Sign(k.priv, message))
	return sig
}

// Private exposes the raw Ed25519 private key for persistence (identity
// package PEM encoding). Not used by any protocol code path.
func (k SigKey) Private() ed25519.PrivateKey { return k.priv }

// KexPublic is an ephemeral Curve25519 Diffie-Hellman public value.
type KexPublic [32]byte

func (k KexPublic) Encode(w *Writer) { w.WriteBytes(k[:]) }

func DecodeKexPublic(r *Reader) (KexPublic, error) {
	var k KexPublic
	b, err := r.ReadBytes(32)
	if err != nil {
		return k, err
	}
	copy(k[:], b)
	return k, nil
}

// KexSecret is an ephemeral Curve25519 Diffie-Hellman scalar. The handshake
// table keeps it until the KEX retransmit loop for that peer stops, so a
// duplicate Merkle derives the same MacKey.
type KexSecret [32]byte

// MacKey is the symmetric key shared by both ends of a handshake, used to
// authenticate all later Macced envelopes between the pair.
type MacKey [32]byte

// EncKey is a symmetric stream-cipher key.
type EncKey [32]byte

func (k EncKey) Encode(w *Writer) { w.WriteBytes(k[:]) }

func DecodeEncKey(r *Reader) (EncKey, error) {
	var k EncKey
	b, err := r.ReadBytes(32)
	if err != nil {
		return k, err
	}
	copy(k[:], b)
	return k, nil
}

// EncNonce is a 12-byte stream-cipher nonce, drawn uniformly per encryption.
type EncNonce [12]byte

// Mac is a 32-byte blake3 digest, keyed or unkeyed depending on context.
// FileHash and DetailHash are both Mac: spec §3 defines them as 32-byte
// blake3 outputs with no further structure.
type Mac [32]byte

type FileHash = Mac
type DetailHash = Mac

func (m Mac) Encode(w *Writer) { w.WriteBytes(m[:]) }

func DecodeMac(r *Reader) (Mac, error) {
	var m Mac
	b, err := r.ReadBytes(32)
	if err != nil {
		return m, err
	}
	copy(m[:], b)
	return m, nil
}

func (m Mac) String() string { return fmt.Sprintf("%x", m[:8]) }

// Signature is a 64-byte Ed25519 signature.
type Signature [64]byte

func (s Signature) Encode(w *Writer) { w.WriteBytes(s[:]) }

func DecodeSignature(r *Reader) (Signature, error) {
	var s Signature
	b, err := r.ReadBytes(64)
	if err != nil {
		return s, err
	}
	copy(s[:], b)
	return s, nil
}

// ContestId is the 128-bit constant pinning a protocol instance.
type ContestId [16]byte

func (c ContestId) Encode(w *Writer) { w.WriteBytes(c[:]) }

func DecodeContestId(r *Reader) (ContestId, error) {
	var c ContestId
	b, err := r.ReadBytes(16)
	if err != nil {
		return c, err
	}
	copy(c[:], b)
	return c, nil
}

// Entity is the role a peer plays in the contest, per spec §3.
type Entity uint8

const (
	EntityServer Entity = iota
	EntityWorker
	EntityParticipant
	EntitySpectator
)

func (e Entity) String() string {
	switch e {
	case EntityServer:
		return "server"
	case EntityWorker:
		return "worker"
	case EntityParticipant:
		return "participant"
	case EntitySpectator:
		return "spectator"
	default:
		return "unknown"
	}
}

func (e Entity) Encode(w *Writer) { w.WriteByte(byte(e)) }

func DecodeEntity(r *Reader) (Entity, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	if b > byte(EntitySpectator) {
		return 0, fmt.Errorf("wire: invalid entity tag %d", b)
	}
	return Entity(b), nil
}

// Timestamp is seconds+nanoseconds since the Unix epoch, serialized as a
// fixed 12 bytes (u64 secs, u32 nanos) per spec §6.
type Timestamp struct {
	Secs  uint64
	Nanos uint32
}

func TimestampNow() Timestamp { return TimestampFromTime(time.Now()) }

func TimestampFromTime(t time.Time) Timestamp {
	return Timestamp{Secs: uint64(t.Unix()), Nanos: uint32(t.Nanosecond())}
}

func (t Timestamp) Time() time.Time { return time.Unix(int64(t.Secs), int64(t.Nanos)) }

func (t Timestamp) Encode(w *Writer) {
	w.WriteUint64(t.Secs)
	w.WriteUint32(t.Nanos)
}

func DecodeTimestamp(r *Reader) (Timestamp, error) {
	secs, err := r.ReadUint64()
	if err != nil {
		return Timestamp{}, err
	}
	nanos, err := r.ReadUint32()
	if err != nil {
		return Timestamp{}, err
	}
	return Timestamp{Secs: secs, Nanos: nanos}, nil
}

// timeValidityPast/Future are the bounds from spec §6: a Timestamp is
// accepted iff now-40s <= t <= now+20s.
const (
	timeValidityPast   = 40 * time.Second
	timeValidityFuture = 20 * time.Second
)

// Valid reports whether t lies within the accepted clock-skew window of now.
func (t Timestamp) Valid(now time.Time) bool {
	tt := t.Time()
	if tt.After(now) {
		return tt.Sub(now) <= timeValidityFuture
	}
	return now.Sub(tt) <= timeValidityPast
}

// PeerAddr is an IPv4- or IPv6-tagged UDP address.
type PeerAddr struct {
	IP   net.IP
	Port uint16
}

func PeerAddrFromUDP(a *net.UDPAddr) PeerAddr {
	ip := a.IP
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	} else {
		ip = ip.To16()
	}
	return PeerAddr{IP: ip, Port: uint16(a.Port)}
}

func (a PeerAddr) UDPAddr() *net.UDPAddr { return &net.UDPAddr{IP: a.IP, Port: int(a.Port)} }

func (a PeerAddr) Encode(w *Writer) {
	if v4 := a.IP.To4(); v4 != nil {
		w.WriteByte(4)
		w.WriteBytes(v4)
	} else {
		w.WriteByte(6)
		w.WriteBytes(a.IP.To16())
	}
	w.WriteUint16(a.Port)
}

func DecodePeerAddr(r *Reader) (PeerAddr, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return PeerAddr{}, err
	}
	var n int
	switch tag {
	case 4:
		n = 4
	case 6:
		n = 16
	default:
		return PeerAddr{}, fmt.Errorf("wire: invalid peer address tag %d", tag)
	}
	ipb, err := r.ReadBytes(n)
	if err != nil {
		return PeerAddr{}, err
	}
	ip := make(net.IP, n)
	copy(ip, ipb)
	port, err := r.ReadUint16()
	if err != nil {
		return PeerAddr{}, err
	}
	return PeerAddr{IP: ip, Port: port}, nil
}

func (a PeerAddr) Equal(b PeerAddr) bool { return a.IP.Equal(b.IP) && a.Port == b.Port }

func (a PeerAddr) String() string { return fmt.Sprintf("%s:%d", a.IP, a.Port) }
