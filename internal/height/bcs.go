package height

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// suiAddressLength is the size of a Sui address or object id
const suiAddressLength = 32

// bcsWriter appends values in Binary Canonical Serialization
type bcsWriter struct {
	buf []byte
}

func (w *bcsWriter) uleb128(v uint64) {
	for v >= 0x80 {
		w.buf = append(w.buf, byte(v)|0x80)
		v >>= 7
	}
	w.buf = append(w.buf, byte(v))
}

func (w *bcsWriter) u16(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

func (w *bcsWriter) u64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

func (w *bcsWriter) bool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

func (w *bcsWriter) fixed(b []byte) {
	w.buf = append(w.buf, b...)
}

func (w *bcsWriter) str(s string) {
	w.uleb128(uint64(len(s)))
	w.buf = append(w.buf, s...)
}

// parseSuiAddress decodes a 0x-prefixed hex id, left padded to 32 bytes
func parseSuiAddress(s string) ([]byte, error) {
	hexPart := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if hexPart == "" || len(hexPart) > 2*suiAddressLength {
		return nil, fmt.Errorf("invalid sui address %q", s)
	}
	for _, c := range hexPart {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return nil, fmt.Errorf("invalid sui address %q", s)
		}
	}
	return common.LeftPadBytes(common.FromHex("0x"+hexPart), suiAddressLength), nil
}

// moveCall describes a single read-only Move call on a shared object
type moveCall struct {
	Package              []byte
	Module               string
	Function             string
	Object               []byte
	InitialSharedVersion uint64
}

// encodeTransactionKind serializes TransactionKind::ProgrammableTransaction
// holding one MoveCall whose only argument is an immutable shared object input.
func encodeTransactionKind(call moveCall) []byte {
	w := &bcsWriter{}

	w.uleb128(0) // TransactionKind::ProgrammableTransaction

	// inputs
	w.uleb128(1)
	w.uleb128(1) // CallArg::Object
	w.uleb128(1) // ObjectArg::SharedObject
	w.fixed(call.Object)
	w.u64(call.InitialSharedVersion)
	w.bool(false)

	// commands
	w.uleb128(1)
	w.uleb128(0) // Command::MoveCall
	w.fixed(call.Package)
	w.str(call.Module)
	w.str(call.Function)
	w.uleb128(0) // type arguments
	w.uleb128(1) // arguments
	w.uleb128(1) // Argument::Input
	w.u16(0)

	return w.buf
}

// decodeU64 reads a BCS u64 return value
func decodeU64(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("expected 8 bytes for u64, got %d", len(b))
	}
	return binary.LittleEndian.Uint64(b), nil
}
