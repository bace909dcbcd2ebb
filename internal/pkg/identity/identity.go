// Package identity derives this worker's on-chain identity from its
// wallet file. There is no Arweave JWK/wallet SDK anywhere in the
// example pack (same gap as internal/pkg/uploader's signing step), so
// the identity is a content-addressed digest of the wallet file bytes —
// stable across runs, computable offline, not a real derived wallet
// address. See DESIGN.md.
package identity

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"
)

// FromWalletFile reads the wallet file at path and derives a stable
// identity string from its contents.
func FromWalletFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("identity: read wallet file: %w", err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("identity: wallet file %q is empty", path)
	}
	sum := sha256.Sum256(data)
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(sum[:]), nil
}
