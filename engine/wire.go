package engine

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	solanago "github.com/gagliardetto/solana-go"
)

// The instruction surface is a 1-byte discriminator followed by a Borsh
// serialization of the typed arguments: fixed-width integers little-endian,
// strings as u32-length-prefixed byte arrays, fixed-size byte arrays for
// hashes and signatures. Clients encode with the same codec, so the wire
// form is deterministic end to end.

// InstructionKind discriminates the five settlement operations on the wire.
type InstructionKind uint8

const (
	InstructionInitialize InstructionKind = iota
	InstructionProcessEntryPayment
	InstructionProcessDecision
	InstructionExecuteEscapePlan
	InstructionEmergencyRecovery
)

func (k InstructionKind) String() string {
	switch k {
	case InstructionInitialize:
		return "initialize"
	case InstructionProcessEntryPayment:
		return "process_entry_payment"
	case InstructionProcessDecision:
		return "process_decision"
	case InstructionExecuteEscapePlan:
		return "execute_escape_plan"
	case InstructionEmergencyRecovery:
		return "emergency_recovery"
	}
	return fmt.Sprintf("unknown(%d)", uint8(k))
}

// InitializeArgs is the wire form of the Initialize instruction.
type InitializeArgs struct {
	Authority      solanago.PublicKey
	JudgeAuthority solanago.PublicKey
	FloorAmount    uint64
	EntryFee       uint64
}

// EntryPaymentArgs is the wire form of the ProcessEntryPayment instruction.
type EntryPaymentArgs struct {
	Owner  solanago.PublicKey
	Amount uint64
	Nonce  uint64
}

// DecisionArgs is the wire form of the ProcessDecision instruction. The
// winner wallet is the value-receiving address for the participant the
// decision names; it is ignored for declines.
type DecisionArgs struct {
	ParticipantMessage string
	JudgeResponse      string
	ContentHash        [32]byte
	Signature          [64]byte
	IsWin              bool
	ParticipantID      uint64
	SessionID          string
	Timestamp          int64
	WinnerWallet       solanago.PublicKey
}

// Decision converts the wire args into the engine's decision message.
func (a *DecisionArgs) Decision() *Decision {
	return &Decision{
		ParticipantMessage: a.ParticipantMessage,
		JudgeResponse:      a.JudgeResponse,
		ContentHash:        a.ContentHash,
		Signature:          a.Signature,
		IsWin:              a.IsWin,
		ParticipantID:      a.ParticipantID,
		SessionID:          a.SessionID,
		Timestamp:          a.Timestamp,
	}
}

// EscapePlanArgs is the wire form of the ExecuteEscapePlan instruction. The
// operation takes no arguments; everything it needs is ledger state.
type EscapePlanArgs struct{}

// RecoveryArgs is the wire form of the EmergencyRecovery instruction.
type RecoveryArgs struct {
	Caller solanago.PublicKey
	Amount uint64
}

// EncodeInstruction serializes a discriminator and its typed arguments.
func EncodeInstruction(kind InstructionKind, args any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(byte(kind))
	if err := bin.NewBorshEncoder(&buf).Encode(args); err != nil {
		return nil, fmt.Errorf("failed to encode %s args: %w", kind, err)
	}
	return buf.Bytes(), nil
}

// DecodeInstruction parses a wire instruction into its kind and typed
// arguments. Unknown discriminators and malformed argument bytes are
// validation errors.
func DecodeInstruction(data []byte) (InstructionKind, any, error) {
	if len(data) == 0 {
		return 0, nil, ErrInvalidInput
	}
	kind := InstructionKind(data[0])
	dec := bin.NewBorshDecoder(data[1:])

	var args any
	switch kind {
	case InstructionInitialize:
		args = &InitializeArgs{}
	case InstructionProcessEntryPayment:
		args = &EntryPaymentArgs{}
	case InstructionProcessDecision:
		args = &DecisionArgs{}
	case InstructionExecuteEscapePlan:
		args = &EscapePlanArgs{}
	case InstructionEmergencyRecovery:
		args = &RecoveryArgs{}
	default:
		return 0, nil, fmt.Errorf("%w: unknown instruction discriminator %d", ErrInvalidInput, data[0])
	}
	if err := dec.Decode(args); err != nil {
		return 0, nil, fmt.Errorf("%w: malformed %s args: %v", ErrInvalidInput, kind, err)
	}
	if dec.Remaining() > 0 {
		return 0, nil, fmt.Errorf("%w: trailing bytes after %s args", ErrInvalidInput, kind)
	}
	return kind, args, nil
}
