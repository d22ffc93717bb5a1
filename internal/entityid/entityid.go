// Package entityid parses ledger entity identifiers.
//
// Contracts and accounts are addressed either by the compact
// "shard.realm.num" triplet or by a 20-byte hex address. Hex addresses whose
// first twelve bytes are zero are the "long-zero" encoding of a triplet and map
// back to it; any other hex address is kept as an EVM alias.
package entityid

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/R3E-Network/relay_layer/internal/errors"
)

// ID is a normalized ledger entity identifier.
type ID struct {
	Shard int64
	Realm int64
	Num   int64

	alias *common.Address
}

// InvalidIDError is returned when input is neither a triplet nor a 20-byte hex address.
type InvalidIDError struct {
	Input string
}

func (e *InvalidIDError) Error() string {
	return fmt.Sprintf("invalid contract id %q: expected shard.realm.num or 20-byte hex address", e.Input)
}

// ErrorKind implements errors.Kinded.
func (e *InvalidIDError) ErrorKind() errors.Kind { return errors.KindValidation }

// Parse normalizes s.
func Parse(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ID{}, &InvalidIDError{Input: s}
	}
	if id, ok := parseTriplet(s); ok {
		return id, nil
	}
	if id, ok := parseHex(s); ok {
		return id, nil
	}
	return ID{}, &InvalidIDError{Input: s}
}

// MustParse is Parse that panics; intended for constants and tests.
func MustParse(s string) ID {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

// FromNum builds the 0.0.num identifier.
func FromNum(num int64) ID {
	return ID{Num: num}
}

func parseTriplet(s string) (ID, bool) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return ID{}, false
	}
	var nums [3]int64
	for i, p := range parts {
		if p == "" {
			return ID{}, false
		}
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil || n < 0 {
			return ID{}, false
		}
		nums[i] = n
	}
	if nums[0] > 0xFFFFFFFF {
		return ID{}, false
	}
	return ID{Shard: nums[0], Realm: nums[1], Num: nums[2]}, true
}

func parseHex(s string) (ID, bool) {
	h := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(h) != 2*common.AddressLength {
		return ID{}, false
	}
	raw, err := hex.DecodeString(h)
	if err != nil {
		return ID{}, false
	}

	if isLongZero(raw) {
		return ID{
			Shard: int64(binary.BigEndian.Uint32(raw[0:4])),
			Realm: int64(binary.BigEndian.Uint64(raw[4:12])),
			Num:   int64(binary.BigEndian.Uint64(raw[12:20])),
		}, true
	}

	addr := common.BytesToAddress(raw)
	return ID{alias: &addr}, true
}

func isLongZero(raw []byte) bool {
	for _, b := range raw[:12] {
		if b != 0 {
			return false
		}
	}
	return raw[12]&0x80 == 0
}

// IsAlias reports whether the id is an EVM alias rather than a triplet.
func (id ID) IsAlias() bool { return id.alias != nil }

// IsZero reports whether id is the zero value.
func (id ID) IsZero() bool {
	return id.alias == nil && id.Shard == 0 && id.Realm == 0 && id.Num == 0
}

// Address returns the 20-byte form used inside ABI-encoded calls.
func (id ID) Address() common.Address {
	if id.alias != nil {
		return *id.alias
	}
	var raw [common.AddressLength]byte
	binary.BigEndian.PutUint32(raw[0:4], uint32(id.Shard))
	binary.BigEndian.PutUint64(raw[4:12], uint64(id.Realm))
	binary.BigEndian.PutUint64(raw[12:20], uint64(id.Num))
	return common.Address(raw)
}

// String returns the native ledger form: the triplet, or the 0x alias.
func (id ID) String() string {
	if id.alias != nil {
		return strings.ToLower(id.alias.Hex())
	}
	return fmt.Sprintf("%d.%d.%d", id.Shard, id.Realm, id.Num)
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
