// Command intent-signer produces signed relay intents, optionally submitting
// them to a relay.
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/nspcc-dev/neo-go/pkg/crypto/keys"

	"github.com/R3E-Network/relay_layer/pkg/calldata"
	"github.com/R3E-Network/relay_layer/pkg/intent"
	"github.com/R3E-Network/relay_layer/pkg/relayclient"
	"github.com/R3E-Network/relay_layer/pkg/signature"
)

func main() {
	genKey := flag.Bool("genkey", false, "Generate a new key pair and exit")
	keyHex := flag.String("key", os.Getenv("INTENT_SIGNER_KEY"), "Hex private key (default $INTENT_SIGNER_KEY)")
	account := flag.String("account", "", "Signing account id (shard.realm.num)")
	wallet := flag.String("wallet", "", "Smart wallet contract id")
	target := flag.String("target", "", "Target contract id")
	function := flag.String("function", "", "Target function name")
	params := flag.String("params", "[]", `Typed params, e.g. [{"type":"address","value":"0.0.5"}]`)
	value := flag.Int64("value", 0, "Native value to attach")
	relayURL := flag.String("relay", "", "Relay base URL; when set the intent is submitted")
	timeout := flag.Duration("timeout", 95*time.Second, "Submission timeout")
	flag.Parse()

	if *genKey {
		key, err := keys.NewPrivateKey()
		if err != nil {
			log.Fatalf("generate key: %v", err)
		}
		printJSON(map[string]string{
			"privateKey": hex.EncodeToString(key.Bytes()),
			"publicKey":  signature.PublicKeyHex(key),
		})
		return
	}

	if *keyHex == "" || *account == "" || *wallet == "" || *target == "" || *function == "" {
		flag.Usage()
		os.Exit(1)
	}

	key, err := signature.ParsePrivateKey(*keyHex)
	if err != nil {
		log.Fatalf("key: %v", err)
	}
	var typed []calldata.Param
	if err := json.Unmarshal([]byte(*params), &typed); err != nil {
		log.Fatalf("params: %v", err)
	}

	in := &intent.TransactionIntent{
		AccountID:      *account,
		SmartWalletID:  *wallet,
		TargetContract: *target,
		FunctionName:   *function,
		Params:         typed,
		Value:          *value,
	}

	client := relayclient.New(*relayURL, signature.NewSigner(key), relayclient.WithTimeout(*timeout))
	signed, err := client.Sign(in)
	if err != nil {
		log.Fatalf("sign: %v", err)
	}
	if *relayURL == "" {
		printJSON(signed)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	res, err := client.Submit(ctx, signed)
	if err != nil {
		log.Fatalf("relay: %v", err)
	}
	printJSON(res)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "encode: %v\n", err)
		os.Exit(1)
	}
}
