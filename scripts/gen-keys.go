// Small helper to generate a dev submitter wallet (secp256k1) and print
// - private key (hex) for SUBMITTER_PRIVATE_KEY
// - Ethereum address to fund on the target L1
package main

import (
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

func main() {
	key, err := crypto.GenerateKey()
	if err != nil {
		panic(err)
	}
	fmt.Printf("SUBMITTER_PRIVATE_KEY=%x\n", crypto.FromECDSA(key))
	fmt.Printf("SUBMITTER_ADDRESS=%s\n", crypto.PubkeyToAddress(key.PublicKey).Hex())
}
