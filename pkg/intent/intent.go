// Package intent defines the transaction intent a client signs and the relay
// forwards.
package intent

import (
	"strings"
	"time"

	"github.com/R3E-Network/relay_layer/pkg/calldata"
)

// TransactionIntent is the signed-over description of one smart-wallet call.
// Value is in the ledger's smallest unit and omitted from the wire when zero.
type TransactionIntent struct {
	AccountID      string           `json:"accountId"`
	SmartWalletID  string           `json:"smartWalletId"`
	TargetContract string           `json:"targetContract"`
	FunctionName   string           `json:"functionName"`
	Params         []calldata.Param `json:"params"`
	Value          int64            `json:"value,omitempty"`
	Timestamp      int64            `json:"timestamp"`
}

// SignedIntent is an intent plus the hex signature over its canonical form.
type SignedIntent struct {
	TransactionIntent
	Signature string `json:"signature"`
}

// RequiredFields lists the identity fields every intent must carry.
var RequiredFields = []string{"accountId", "smartWalletId", "targetContract", "functionName"}

// Missing returns the names of empty required fields.
func (t *TransactionIntent) Missing() []string {
	var missing []string
	for name, v := range map[string]string{
		"accountId":      t.AccountID,
		"smartWalletId":  t.SmartWalletID,
		"targetContract": t.TargetContract,
		"functionName":   t.FunctionName,
	} {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

// Time returns the timestamp as a time.Time.
func (t *TransactionIntent) Time() time.Time {
	return time.UnixMilli(t.Timestamp)
}

// Stamp sets Timestamp from now when it is unset.
func (t *TransactionIntent) Stamp(now time.Time) {
	if t.Timestamp == 0 {
		t.Timestamp = now.UnixMilli()
	}
}

// Normalize replaces a nil params slice with an empty one so the intent always
// encodes "params": [].
func (t *TransactionIntent) Normalize() {
	if t.Params == nil {
		t.Params = []calldata.Param{}
	}
}
