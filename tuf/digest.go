package tuf

import (
	"crypto/sha256"
	"encoding/json"

	"github.com/tufctl/tuf/tuf/data"
)

// jsonMarshalEnvelope encodes the {signed, signatures} wire envelope with
// the stdlib encoder. Only the nested "signed" body must be byte-for-byte
// canonical (it is what was signed); the envelope wrapper itself is never
// signed, so ordinary JSON encoding is sufficient here. The encoding is
// deterministic for a given envelope, so the snapshot bytes hashed into
// timestamp's meta are the bytes the Writer publishes.
func jsonMarshalEnvelope(env *data.Signed) ([]byte, error) {
	return json.Marshal(env)
}

type fileDigest struct {
	length int64
	sha256 data.HexBytes
}

// sha256HexAndLen is used by the snapshot/timestamp cascade to record the
// (length, sha256) pair of a just-signed role document's file bytes, giving
// timestamp.json's snapshot.json entry the rollback-protection hash the
// spec recommends alongside its mandatory version field.
func sha256HexAndLen(body []byte) fileDigest {
	sum := sha256.Sum256(body)
	return fileDigest{length: int64(len(body)), sha256: data.HexBytes(sum[:])}
}
