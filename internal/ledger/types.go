package ledger

import (
	"context"

	"github.com/R3E-Network/relay_layer/pkg/calldata"
)

// QueryRequest is a read-only contract call. CallData, when set, replaces
// Function and Params.
type QueryRequest struct {
	Contract string
	Function string
	Params   []calldata.Param
	CallData []byte
	Gas      uint64
}

// QueryResult is the raw ABI-encoded return data of a query.
type QueryResult struct {
	ContractID string
	Result     []byte
	GasUsed    uint64
	Simulated  bool
}

// ExecuteRequest is a state-changing contract call paid by the operator.
// Amount is attached value in the ledger's smallest unit.
type ExecuteRequest struct {
	Contract string
	Function string
	Params   []calldata.Param
	CallData []byte
	Gas      uint64
	Amount   int64
	Memo     string
}

// Receipt is the outcome of an executed transaction.
type Receipt struct {
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
	ContractID    string `json:"contractId,omitempty"`
	Simulated     bool   `json:"simulated,omitempty"`
}

// Invoker runs contract calls.
type Invoker interface {
	Query(ctx context.Context, req QueryRequest) (*QueryResult, error)
	Execute(ctx context.Context, req ExecuteRequest) (*Receipt, error)
}

// TransactionBody is the signed body of a contract execution.
type TransactionBody struct {
	TransactionID      string `json:"transactionId"`
	Payer              string `json:"payer"`
	MaxTransactionFee  int64  `json:"maxTransactionFee"`
	ValidStart         string `json:"validStart"`
	ValidDuration      int64  `json:"validDuration"`
	ContractID         string `json:"contractId"`
	Gas                int64  `json:"gas"`
	Amount             int64  `json:"amount"`
	FunctionParameters string `json:"functionParameters"`
	Memo               string `json:"memo,omitempty"`
}

// Prepared is a signed transaction ready for (re)submission. Submitting the
// same Prepared value twice never executes twice.
type Prepared struct {
	Body      TransactionBody
	BodyJSON  string
	Signature string
	PublicKey string
}

// ID returns the transaction id.
func (p *Prepared) ID() string { return p.Body.TransactionID }
