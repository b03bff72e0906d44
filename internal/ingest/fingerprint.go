package ingest

import (
	"crypto/md5"
	"encoding/hex"
)

// Fingerprint derives the dedup key for an inbound email from its sender,
// subject and body. The digest only has to be collision-resistant enough for
// deduplication; it matches the key format of previously ingested records.
func Fingerprint(sender, subject, body string) string {
	h := md5.Sum([]byte(sender + subject + body))
	return hex.EncodeToString(h[:])
}
