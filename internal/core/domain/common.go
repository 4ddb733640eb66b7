package domain

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"
)

// AuditFields holds standard audit timestamps for domain entities.
type AuditFields struct {
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// newReference returns prefix followed by 12 upper-case hex characters.
func newReference(prefix string) string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand unavailable: " + err.Error())
	}
	return prefix + strings.ToUpper(hex.EncodeToString(buf))
}
