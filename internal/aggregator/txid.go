package aggregator

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewTransactionID generates a merchant-side requesttransactionid. The
// aggregator rejects reused ids as duplicates, so every attempt gets a fresh
// one: a fixed prefix, the wall clock to the second, and a random suffix for
// uniqueness within a second.
func NewTransactionID() string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return fmt.Sprintf("BC%s%s", time.Now().Format("20060102150405"), strings.ToUpper(suffix))
}
