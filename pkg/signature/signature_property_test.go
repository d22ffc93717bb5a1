package signature

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/nspcc-dev/neo-go/pkg/crypto/keys"
)

func TestSignVerifyProperties(t *testing.T) {
	key, err := keys.NewPrivateKey()
	if err != nil {
		t.Fatalf("NewPrivateKey() error = %v", err)
	}
	signer := &Signer{Key: key, Now: func() time.Time { return fixedNow }}
	pub := signer.PublicKeyHex()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	build := func(account, function string, amount int64) map[string]any {
		return map[string]any{
			"accountId":    account,
			"functionName": function,
			"value":        amount,
		}
	}

	properties.Property("verify(sign(x)) holds", prop.ForAll(
		func(account, function string, amount int64) bool {
			payload := build(account, function, amount)
			sig, err := signer.Sign(payload)
			if err != nil {
				return false
			}
			ok, err := Verify(payload, sig, pub)
			return err == nil && ok
		},
		gen.AlphaString(),
		gen.Identifier(),
		gen.Int64Range(0, 1<<40),
	))

	properties.Property("changing any field breaks verification", prop.ForAll(
		func(account, function string, amount int64) bool {
			payload := build(account, function, amount)
			sig, err := signer.Sign(payload)
			if err != nil {
				return false
			}
			payload["value"] = amount + 1
			ok, err := Verify(payload, sig, pub)
			return err == nil && !ok
		},
		gen.AlphaString(),
		gen.Identifier(),
		gen.Int64Range(0, 1<<40),
	))

	properties.TestingRun(t)
}
