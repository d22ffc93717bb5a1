// Package smartwallet routes calls through a user's smart-contract wallet.
//
// The wallet exposes execute(address,bytes4,bytes) for single calls,
// executeBatch(address[],uint256[],bytes[]) for batches and a guardian-based
// recovery surface. Forwarder is stateless; it only encodes calls and hands
// them to a ledger.Invoker.
package smartwallet

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/R3E-Network/relay_layer/internal/entityid"
	"github.com/R3E-Network/relay_layer/internal/errors"
	"github.com/R3E-Network/relay_layer/internal/ledger"
	"github.com/R3E-Network/relay_layer/pkg/calldata"
)

const (
	executeSig      = "execute(address,bytes4,bytes)"
	executeBatchSig = "executeBatch(address[],uint256[],bytes[])"
)

var (
	executeArgs      abi.Arguments
	executeBatchArgs abi.Arguments
	guardiansOut     abi.Arguments
)

func init() {
	executeArgs = mustArgs("address", "bytes4", "bytes")
	executeBatchArgs = mustArgs("address[]", "uint256[]", "bytes[]")
	guardiansOut = mustArgs("address[]")
}

func mustArgs(types ...string) abi.Arguments {
	args := make(abi.Arguments, len(types))
	for i, t := range types {
		typ, err := abi.NewType(t, "", nil)
		if err != nil {
			panic(err)
		}
		args[i] = abi.Argument{Type: typ}
	}
	return args
}

func selector(sig string) []byte {
	return crypto.Keccak256([]byte(sig))[:4]
}

// BatchShapeError is returned when batch slices differ in length.
type BatchShapeError struct {
	Targets  int
	Values   int
	CallData int
}

func (e *BatchShapeError) Error() string {
	if e.Targets == 0 {
		return "batch must contain at least one call"
	}
	return fmt.Sprintf("batch shape mismatch: %d targets, %d values, %d call data", e.Targets, e.Values, e.CallData)
}

// ErrorKind implements errors.Kinded.
func (e *BatchShapeError) ErrorKind() errors.Kind { return errors.KindValidation }

// Forwarder encodes wallet calls.
type Forwarder struct {
	ledger ledger.Invoker
	gas    uint64
}

// New returns a Forwarder that submits through inv with the given gas limit
// (0 uses the ledger default).
func New(inv ledger.Invoker, gas uint64) *Forwarder {
	return &Forwarder{ledger: inv, gas: gas}
}

// EncodeSingle returns the wallet call data for execute(target, selector, args).
func EncodeSingle(target, functionName string, params []calldata.Param) ([]byte, error) {
	addr, err := calldata.AddressOf(calldata.Address(target))
	if err != nil {
		return nil, err
	}
	sel, err := calldata.Selector(functionName, params)
	if err != nil {
		return nil, err
	}
	args, err := calldata.EncodeArgs(params)
	if err != nil {
		return nil, err
	}
	packed, err := executeArgs.Pack(addr, sel, args)
	if err != nil {
		return nil, fmt.Errorf("pack execute: %w", err)
	}
	return append(selector(executeSig), packed...), nil
}

// ForwardSingle calls functionName on target through walletID, attaching
// value when it is positive.
func (f *Forwarder) ForwardSingle(ctx context.Context, walletID, target, functionName string, params []calldata.Param, value int64) (*ledger.Receipt, error) {
	data, err := EncodeSingle(target, functionName, params)
	if err != nil {
		return nil, err
	}
	req := ledger.ExecuteRequest{Contract: walletID, CallData: data, Gas: f.gas}
	if value > 0 {
		req.Amount = value
	}
	return f.ledger.Execute(ctx, req)
}

// EncodeBatch returns the wallet call data for executeBatch.
func EncodeBatch(targets []string, values []*big.Int, callData [][]byte) ([]byte, error) {
	if len(targets) == 0 || len(targets) != len(values) || len(targets) != len(callData) {
		return nil, &BatchShapeError{Targets: len(targets), Values: len(values), CallData: len(callData)}
	}
	addrs := make([]common.Address, len(targets))
	for i, t := range targets {
		addr, err := calldata.AddressOf(calldata.Address(t))
		if err != nil {
			return nil, fmt.Errorf("targets[%d]: %w", i, err)
		}
		addrs[i] = addr
	}
	amounts := make([]*big.Int, len(values))
	for i, v := range values {
		if v == nil {
			v = new(big.Int)
		}
		if err := calldata.UInt256(v).Validate(); err != nil {
			return nil, fmt.Errorf("values[%d]: %w", i, err)
		}
		amounts[i] = v
	}
	packed, err := executeBatchArgs.Pack(addrs, amounts, callData)
	if err != nil {
		return nil, fmt.Errorf("pack executeBatch: %w", err)
	}
	return append(selector(executeBatchSig), packed...), nil
}

// ForwardBatch runs several calls atomically through walletID. Shape errors
// are reported before anything reaches the ledger.
func (f *Forwarder) ForwardBatch(ctx context.Context, walletID string, targets []string, values []*big.Int, callData [][]byte) (*ledger.Receipt, error) {
	data, err := EncodeBatch(targets, values, callData)
	if err != nil {
		return nil, err
	}
	return f.ledger.Execute(ctx, ledger.ExecuteRequest{Contract: walletID, CallData: data, Gas: f.gas})
}

func (f *Forwarder) walletCall(ctx context.Context, walletID, function string, params ...calldata.Param) (*ledger.Receipt, error) {
	if params == nil {
		params = []calldata.Param{}
	}
	return f.ledger.Execute(ctx, ledger.ExecuteRequest{Contract: walletID, Function: function, Params: params, Gas: f.gas})
}

func (f *Forwarder) AddGuardian(ctx context.Context, walletID, guardian string) (*ledger.Receipt, error) {
	return f.walletCall(ctx, walletID, "addGuardian", calldata.Address(guardian))
}

func (f *Forwarder) RemoveGuardian(ctx context.Context, walletID, guardian string) (*ledger.Receipt, error) {
	return f.walletCall(ctx, walletID, "removeGuardian", calldata.Address(guardian))
}

// InitiateRecovery proposes newOwner as the wallet owner.
func (f *Forwarder) InitiateRecovery(ctx context.Context, walletID, newOwner string) (*ledger.Receipt, error) {
	return f.walletCall(ctx, walletID, "initiateRecovery", calldata.Address(newOwner))
}

func (f *Forwarder) ApproveRecovery(ctx context.Context, walletID string) (*ledger.Receipt, error) {
	return f.walletCall(ctx, walletID, "approveRecovery")
}

func (f *Forwarder) CancelRecovery(ctx context.Context, walletID string) (*ledger.Receipt, error) {
	return f.walletCall(ctx, walletID, "cancelRecovery")
}

// GetGuardians returns the guardian addresses, as account ids where the
// address is a long-zero alias.
func (f *Forwarder) GetGuardians(ctx context.Context, walletID string) ([]string, error) {
	res, err := f.ledger.Query(ctx, ledger.QueryRequest{Contract: walletID, Function: "getGuardians", Params: []calldata.Param{}, Gas: f.gas})
	if err != nil {
		return nil, err
	}
	if res.Simulated {
		return []string{}, nil
	}
	return DecodeGuardians(res.Result)
}

// DecodeGuardians decodes an ABI-encoded address[].
func DecodeGuardians(data []byte) ([]string, error) {
	values, err := guardiansOut.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("decode guardians: %w", err)
	}
	addrs, ok := values[0].([]common.Address)
	if !ok {
		return nil, fmt.Errorf("decode guardians: unexpected %T", values[0])
	}
	out := make([]string, len(addrs))
	for i, a := range addrs {
		id, err := entityid.Parse(a.Hex())
		if err != nil {
			return nil, err
		}
		out[i] = id.String()
	}
	return out, nil
}

// GetRecoveryStatus returns the raw ABI-encoded recovery state.
func (f *Forwarder) GetRecoveryStatus(ctx context.Context, walletID string) ([]byte, error) {
	res, err := f.ledger.Query(ctx, ledger.QueryRequest{Contract: walletID, Function: "getRecoveryStatus", Params: []calldata.Param{}, Gas: f.gas})
	if err != nil {
		return nil, err
	}
	return res.Result, nil
}
