package syncer

import (
	"encoding/binary"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// syncTokenBytes keeps the token at a fixed 32 hex characters; the token's
// only contract is uniqueness and stable length for client bookkeeping.
const syncTokenBytes = 16

// GenerateSyncToken derives an opaque sync token from the device id and the
// current time, salted with a random UUID so two calls in the same instant
// never collide.
func GenerateSyncToken(deviceID string, now time.Time) string {
	h, err := blake2b.New256(nil)
	if err != nil {
		// blake2b.New256 only fails with a key; we never pass one.
		panic(err)
	}

	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(now.UnixNano()))

	h.Write([]byte(deviceID))
	h.Write(ts[:])
	salt := uuid.New()
	h.Write(salt[:])

	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:syncTokenBytes])
}
