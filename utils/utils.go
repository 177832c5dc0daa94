package utils

import (
	"crypto/md5"
	"strings"

	"github.com/gofrs/uuid"
)

// GenUuidFromStrings derives a stable name-based uuid from parts in order.
// The parts are joined with a NUL separator so ("ab", "c") and ("a", "bc")
// never collide.
func GenUuidFromStrings(parts ...string) uuid.UUID {
	if len(parts) == 0 {
		return uuid.Nil
	}
	return uuidHash([]byte(strings.Join(parts, "\x00")))
}

func uuidHash(b []byte) uuid.UUID {
	h := md5.New()

	h.Write(b)
	sum := h.Sum(nil)
	sum[6] = (sum[6] & 0x0f) | 0x30
	sum[8] = (sum[8] & 0x3f) | 0x80
	return uuid.FromBytesOrNil(sum)
}
