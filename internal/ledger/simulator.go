package ledger

import (
	"context"
	"encoding/hex"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/R3E-Network/relay_layer/internal/entityid"
	"github.com/R3E-Network/relay_layer/pkg/canonical"
)

// SimulatedPrefix starts every simulated transaction id.
const SimulatedPrefix = "simulated-"

// Simulator answers calls locally with placeholder results of the same shape
// a live ledger returns. Input is still validated so malformed calls fail the
// same way in both modes.
type Simulator struct{}

// Query returns 32 zero bytes.
func (Simulator) Query(_ context.Context, req QueryRequest) (*QueryResult, error) {
	contract, err := entityid.Parse(req.Contract)
	if err != nil {
		return nil, err
	}
	if _, err := functionParameters(req.Function, req.Params, req.CallData); err != nil {
		return nil, err
	}
	return &QueryResult{
		ContractID: contract.String(),
		Result:     make([]byte, 32),
		Simulated:  true,
	}, nil
}

// Execute returns a SIMULATED receipt whose id is derived from the call.
func (Simulator) Execute(_ context.Context, req ExecuteRequest) (*Receipt, error) {
	contract, err := entityid.Parse(req.Contract)
	if err != nil {
		return nil, err
	}
	data, err := functionParameters(req.Function, req.Params, req.CallData)
	if err != nil {
		return nil, err
	}
	digest, err := canonical.Hash(map[string]any{
		"contractId":         contract.String(),
		"functionParameters": hexutil.Encode(data),
		"amount":             req.Amount,
		"memo":               req.Memo,
	})
	if err != nil {
		return nil, err
	}
	return &Receipt{
		TransactionID: SimulatedPrefix + hex.EncodeToString(digest[:8]),
		Status:        StatusSimulated,
		ContractID:    contract.String(),
		Simulated:     true,
	}, nil
}
