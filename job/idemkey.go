package job

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// KeyFields are the request fields that decide whether two submissions
// ask the same question. Item order, notes and other payload details are
// deliberately left out.
type KeyFields struct {
	RequesterID string
	SubjectID   string
	ItemCount   int
	TotalAmount int64
}

// GenerateIdemKey returns the hex SHA-256 digest of a length-prefixed
// encoding of the key fields. Length prefixes keep ("ab","c") and
// ("a","bc") apart.
func GenerateIdemKey(f KeyFields) string {
	var b strings.Builder
	writeField(&b, strings.TrimSpace(f.RequesterID))
	writeField(&b, strings.TrimSpace(f.SubjectID))
	writeField(&b, strconv.Itoa(f.ItemCount))
	writeField(&b, strconv.FormatInt(f.TotalAmount, 10))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func writeField(b *strings.Builder, v string) {
	b.WriteString(strconv.Itoa(len(v)))
	b.WriteByte(':')
	b.WriteString(v)
	b.WriteByte(';')
}
