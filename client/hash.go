package client

import (
	"crypto/sha256"
	"crypto/sha512"
	stdpath "path"

	"github.com/tufctl/tuf/tuf/data"
)

// hashAll computes every digest algorithm this toolkit understands over
// raw, used to check a fetched document or target body against its
// declared hash set.
func hashAll(raw []byte) data.Hashes {
	sum256 := sha256.Sum256(raw)
	sum512 := sha512.Sum512(raw)
	return data.Hashes{
		"sha256": data.HexBytes(sum256[:]),
		"sha512": data.HexBytes(sum512[:]),
	}
}

// hashPrefixedName builds a consistent-snapshot target name, matching
// tuf.Writer.WriteTarget's "<dir>/<hash>.<basename>" layout: the digest
// prefixes only the final path component, not the whole logical path, so
// a delegated target like "releases/v1" lands at "releases/<hash>.v1"
// on both the write and read side.
func hashPrefixedName(targetPath string, digest data.HexBytes) string {
	dir, base := stdpath.Split(targetPath)
	return dir + digest.String() + "." + base
}
