package checkout

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Line is one requested product/quantity pair.
type Line struct {
	ProductID uuid.UUID
	Qty       int
}

// DeriveIdempotencyKey produces a stable key for one logical checkout attempt:
// the same buyer, the same normalized lines, and the same client nonce always
// hash to the same key, so gateway retries after a timeout cannot double-charge.
func DeriveIdempotencyKey(buyerID uuid.UUID, lines []Line, nonce string) string {
	normalized := make([]Line, len(lines))
	copy(normalized, lines)
	sort.Slice(normalized, func(i, j int) bool {
		return strings.Compare(normalized[i].ProductID.String(), normalized[j].ProductID.String()) < 0
	})

	var b strings.Builder
	b.WriteString(buyerID.String())
	for _, line := range normalized {
		fmt.Fprintf(&b, "|%s:%d", line.ProductID, line.Qty)
	}
	b.WriteString("|")
	b.WriteString(nonce)

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
