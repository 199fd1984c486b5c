package engine

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"time"

	solanago "github.com/gagliardetto/solana-go"
)

const (
	// MaxMessageLen caps the participant message and judge response.
	MaxMessageLen = 5000
	// MaxSessionIDLen caps the session identifier.
	MaxSessionIDLen = 100
	// FreshnessWindow bounds how far a decision timestamp may drift from the
	// engine clock, in either direction. This is the primary anti-replay
	// control for decisions, which are not tied to a single-use nonce.
	FreshnessWindow = time.Hour
)

// Decision is the off-chain judge's signed claim about whether a
// participant's attempt succeeded. It arrives as instruction input and is
// authenticated per call; it is never persisted as its own record.
type Decision struct {
	ParticipantMessage string   `json:"participant_message"`
	JudgeResponse      string   `json:"judge_response"`
	ContentHash        [32]byte `json:"content_hash"`
	Signature          [64]byte `json:"signature"`
	IsWin              bool     `json:"is_win"`
	ParticipantID      uint64   `json:"participant_id"`
	SessionID          string   `json:"session_id"`
	Timestamp          int64    `json:"timestamp"`
}

// ComputeDecisionHash recomputes the canonical digest of a decision's
// content. The serialization is fixed: the two text fields separated by a
// zero byte, then the win flag, the participant id (u64 LE), the session id,
// and the timestamp (i64 LE). The judge service must produce exactly this
// digest for its decisions to verify.
func ComputeDecisionHash(participantMessage, judgeResponse string, isWin bool, participantID uint64, sessionID string, timestamp int64) [32]byte {
	h := sha256.New()
	h.Write([]byte(participantMessage))
	h.Write([]byte{0})
	h.Write([]byte(judgeResponse))
	h.Write([]byte{0})
	if isWin {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], participantID)
	h.Write(buf[:])
	h.Write([]byte(sessionID))
	binary.LittleEndian.PutUint64(buf[:], uint64(timestamp))
	h.Write(buf[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// SigningMessage is the canonical byte string the judge authority signs. It
// binds the content hash to the decision's payload fields, so a signature
// cannot be replayed against different content.
func (d *Decision) SigningMessage() []byte {
	msg := make([]byte, 0, 32+1+8+4+len(d.SessionID)+8)
	msg = append(msg, d.ContentHash[:]...)
	if d.IsWin {
		msg = append(msg, 1)
	} else {
		msg = append(msg, 0)
	}
	msg = binary.LittleEndian.AppendUint64(msg, d.ParticipantID)
	msg = binary.LittleEndian.AppendUint32(msg, uint32(len(d.SessionID)))
	msg = append(msg, d.SessionID...)
	msg = binary.LittleEndian.AppendUint64(msg, uint64(d.Timestamp))
	return msg
}

// SignatureVerifier is the single seam through which decision signatures are
// checked. The judge is trusted only as "a producer of signed decision
// messages verifiable against a known public identity", so implementations
// can be swapped (or mocked in tests) without touching settlement logic.
type SignatureVerifier interface {
	Verify(message []byte, signature [64]byte, signer solanago.PublicKey) bool
}

// Ed25519Verifier verifies signatures with the standard library's ed25519,
// the same scheme Solana wallets sign with.
type Ed25519Verifier struct{}

func (Ed25519Verifier) Verify(message []byte, signature [64]byte, signer solanago.PublicKey) bool {
	return ed25519.Verify(ed25519.PublicKey(signer[:]), message, signature[:])
}

// SignDecision fills in the decision's content hash and signature using the
// given key. This is what the off-chain judge service does before submitting;
// here it backs the debug signing tool and tests.
func SignDecision(d *Decision, key solanago.PrivateKey) error {
	d.ContentHash = ComputeDecisionHash(d.ParticipantMessage, d.JudgeResponse, d.IsWin, d.ParticipantID, d.SessionID, d.Timestamp)
	sig, err := key.Sign(d.SigningMessage())
	if err != nil {
		return err
	}
	copy(d.Signature[:], sig[:])
	return nil
}

// AuthorizeDecision runs the full validation pipeline over a decision:
// shape, freshness, judge identity, content-hash recomputation, and
// signature verification. Every step is a hard fail. It is read-only with
// respect to ledger state, deliberately separating "is this decision
// trustworthy" from "what do we do about it".
func AuthorizeDecision(d *Decision, judge solanago.PublicKey, now time.Time, v SignatureVerifier) error {
	// Shape.
	if len(d.ParticipantMessage) > MaxMessageLen || len(d.JudgeResponse) > MaxMessageLen {
		return ErrInputTooLong
	}
	if len(d.SessionID) > MaxSessionIDLen {
		return ErrInputTooLong
	}
	if !validSessionID(d.SessionID) {
		return ErrInvalidSessionID
	}
	if d.ParticipantID == 0 {
		return ErrInvalidInput
	}

	// Freshness.
	if d.Timestamp <= 0 {
		return ErrInvalidTimestamp
	}
	drift := now.Unix() - d.Timestamp
	if drift < 0 {
		drift = -drift
	}
	if drift > int64(FreshnessWindow/time.Second) {
		return ErrTimestampOutOfRange
	}

	// Identity.
	if judge.IsZero() {
		return ErrUnauthorizedJudge
	}

	// Hash recomputation, compared in constant time.
	expected := ComputeDecisionHash(d.ParticipantMessage, d.JudgeResponse, d.IsWin, d.ParticipantID, d.SessionID, d.Timestamp)
	if subtle.ConstantTimeCompare(d.ContentHash[:], expected[:]) != 1 {
		return ErrInvalidDecisionHash
	}

	// Signature.
	if d.Signature == [64]byte{} {
		return ErrInvalidSignature
	}
	if !v.Verify(d.SigningMessage(), d.Signature, judge) {
		return ErrInvalidSignature
	}
	return nil
}

// validSessionID restricts session ids to alphanumerics, hyphen, and
// underscore so they cannot inject into downstream logs or keys.
func validSessionID(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_':
		default:
			return false
		}
	}
	return true
}
