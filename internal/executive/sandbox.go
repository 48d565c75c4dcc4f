package executive

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/wasmerio/wasmer-go/wasmer"
)

// VerifyUpgradePackage is the one piece of the execute_upgrade command
// this core is responsible for: confirming the package_ref bytes hash
// to the proposal's claimed hash, and that they are a loadable wasm
// module, before handing off to the self-upgrade collaborator (spec
// §4.6 execute_upgrade, §6). It never instantiates the module against
// host imports — only parses it — since running the payload is
// explicitly out of scope for the core.
func VerifyUpgradePackage(packageBytes []byte, claimedHash string) error {
	sum := sha256.Sum256(packageBytes)
	if hex.EncodeToString(sum[:]) != claimedHash {
		return fmt.Errorf("upgrade package hash mismatch")
	}
	engine := wasmer.NewEngine()
	store := wasmer.NewStore(engine)
	if _, err := wasmer.NewModule(store, packageBytes); err != nil {
		return fmt.Errorf("upgrade package is not a valid wasm module: %w", err)
	}
	return nil
}
