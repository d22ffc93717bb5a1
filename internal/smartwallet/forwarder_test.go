package smartwallet

import (
	"context"
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/relay_layer/internal/errors"
	"github.com/R3E-Network/relay_layer/internal/ledger"
	"github.com/R3E-Network/relay_layer/pkg/calldata"
)

type fakeInvoker struct {
	executes []ledger.ExecuteRequest
	queries  []ledger.QueryRequest
	result   *ledger.QueryResult
}

func (f *fakeInvoker) Query(_ context.Context, req ledger.QueryRequest) (*ledger.QueryResult, error) {
	f.queries = append(f.queries, req)
	return f.result, nil
}

func (f *fakeInvoker) Execute(_ context.Context, req ledger.ExecuteRequest) (*ledger.Receipt, error) {
	f.executes = append(f.executes, req)
	return &ledger.Receipt{TransactionID: "0.0.2@1.0", Status: ledger.StatusSuccess}, nil
}

func TestForwardSingle(t *testing.T) {
	inv := &fakeInvoker{}
	f := New(inv, 250_000)

	params := []calldata.Param{calldata.Address("0.0.7"), calldata.Uint64(1000)}
	rec, err := f.ForwardSingle(context.Background(), "0.0.2002", "0.0.3003", "transfer", params, 0)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusSuccess, rec.Status)

	require.Len(t, inv.executes, 1)
	req := inv.executes[0]
	assert.Equal(t, "0.0.2002", req.Contract)
	assert.Equal(t, uint64(250_000), req.Gas)
	assert.Zero(t, req.Amount)

	values, err := executeArgs.Unpack(req.CallData[4:])
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(selector(executeSig)), hex.EncodeToString(req.CallData[:4]))
	assert.Equal(t, common.HexToAddress("0x0000000000000000000000000000000000000bbb"), values[0])
	assert.Equal(t, [4]byte{0xa9, 0x05, 0x9c, 0xbb}, values[1])

	inner, err := calldata.EncodeArgs(params)
	require.NoError(t, err)
	assert.Equal(t, inner, values[2])
}

func TestForwardSingle_AttachesPositiveValue(t *testing.T) {
	inv := &fakeInvoker{}
	f := New(inv, 0)

	_, err := f.ForwardSingle(context.Background(), "0.0.2002", "0.0.3003", "deposit", nil, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), inv.executes[0].Amount)

	_, err = f.ForwardSingle(context.Background(), "0.0.2002", "0.0.3003", "deposit", nil, -1)
	require.NoError(t, err)
	assert.Zero(t, inv.executes[1].Amount)
}

func TestForwardSingle_InvalidTarget(t *testing.T) {
	inv := &fakeInvoker{}
	_, err := New(inv, 0).ForwardSingle(context.Background(), "0.0.2002", "nope", "transfer", nil, 0)
	require.Error(t, err)
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))
	assert.Empty(t, inv.executes)
}

func TestForwardBatch(t *testing.T) {
	inv := &fakeInvoker{}
	f := New(inv, 0)

	_, err := f.ForwardBatch(context.Background(), "0.0.2002",
		[]string{"0.0.1", "0.0.2"},
		[]*big.Int{big.NewInt(0), big.NewInt(5)},
		[][]byte{{0x01}, {0x02, 0x03}},
	)
	require.NoError(t, err)
	require.Len(t, inv.executes, 1)

	data := inv.executes[0].CallData
	assert.Equal(t, selector(executeBatchSig), data[:4])
	values, err := executeBatchArgs.Unpack(data[4:])
	require.NoError(t, err)
	assert.Len(t, values[0].([]common.Address), 2)
	assert.Equal(t, int64(5), values[1].([]*big.Int)[1].Int64())
	assert.Equal(t, []byte{0x02, 0x03}, values[2].([][]byte)[1])
}

func TestForwardBatch_ShapeMismatch(t *testing.T) {
	tests := []struct {
		name     string
		targets  []string
		values   []*big.Int
		callData [][]byte
	}{
		{"values short", []string{"0.0.1", "0.0.2"}, []*big.Int{big.NewInt(1)}, [][]byte{{1}, {2}}},
		{"call data short", []string{"0.0.1"}, []*big.Int{big.NewInt(1)}, nil},
		{"empty", nil, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := &fakeInvoker{}
			_, err := New(inv, 0).ForwardBatch(context.Background(), "0.0.2002", tt.targets, tt.values, tt.callData)
			var shape *BatchShapeError
			require.ErrorAs(t, err, &shape)
			assert.Empty(t, inv.executes, "no network call")
		})
	}
}

func TestGuardianCalls(t *testing.T) {
	inv := &fakeInvoker{}
	f := New(inv, 0)
	ctx := context.Background()

	_, err := f.AddGuardian(ctx, "0.0.2002", "0.0.9")
	require.NoError(t, err)
	_, err = f.RemoveGuardian(ctx, "0.0.2002", "0.0.9")
	require.NoError(t, err)
	_, err = f.InitiateRecovery(ctx, "0.0.2002", "0.0.10")
	require.NoError(t, err)
	_, err = f.ApproveRecovery(ctx, "0.0.2002")
	require.NoError(t, err)
	_, err = f.CancelRecovery(ctx, "0.0.2002")
	require.NoError(t, err)

	var names []string
	for _, e := range inv.executes {
		names = append(names, e.Function)
		assert.Equal(t, "0.0.2002", e.Contract)
	}
	assert.Equal(t, []string{"addGuardian", "removeGuardian", "initiateRecovery", "approveRecovery", "cancelRecovery"}, names)
	assert.Len(t, inv.executes[0].Params, 1)
	assert.Empty(t, inv.executes[3].Params)
}

func TestGetGuardians(t *testing.T) {
	encoded, err := guardiansOut.Pack([]common.Address{
		common.HexToAddress("0x0000000000000000000000000000000000000009"),
		common.HexToAddress("0x1111111111111111111111111111111111111111"),
	})
	require.NoError(t, err)

	inv := &fakeInvoker{result: &ledger.QueryResult{Result: encoded}}
	got, err := New(inv, 0).GetGuardians(context.Background(), "0.0.2002")
	require.NoError(t, err)
	assert.Equal(t, []string{"0.0.9", "0x1111111111111111111111111111111111111111"}, got)
	assert.Equal(t, "getGuardians", inv.queries[0].Function)
}

func TestGetGuardians_Simulated(t *testing.T) {
	inv := &fakeInvoker{result: &ledger.QueryResult{Result: make([]byte, 32), Simulated: true}}
	got, err := New(inv, 0).GetGuardians(context.Background(), "0.0.2002")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGetRecoveryStatus(t *testing.T) {
	inv := &fakeInvoker{result: &ledger.QueryResult{Result: []byte{0xde, 0xad}}}
	raw, err := New(inv, 0).GetRecoveryStatus(context.Background(), "0.0.2002")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad}, raw)
}
