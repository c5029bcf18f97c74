// Package utils holds the CLI's root-key ceremony plumbing: PEM
// export/import of private key material, kept separate from tuf/signed
// since it is pure key-storage bookkeeping, not signing.
//
// Grounded on johnsandiford-notary/utils/keys.go's ExportKeys/ImportKeys
// (PEM blocks carrying a "path" header that routes each block back to its
// originating store location), generalized from the teacher's per-GUN
// key layout to this toolkit's per-role-per-keyid layout.
package utils

import (
	"encoding/pem"
	"fmt"
	"io"
	"sort"

	log "github.com/sirupsen/logrus"
)

// Exporter is the subset of a key store this package needs to read from.
type Exporter interface {
	Get(keyID string) ([]byte, error)
	ListKeyIDs() []string
}

// Importer is the subset of a key store this package needs to write to.
type Importer interface {
	Set(keyID string, pemBytes []byte) error
}

// ExportKeys writes every key in s to out as concatenated PEM blocks,
// each tagged with a "keyid" header so ImportKeys can route it back.
func ExportKeys(out io.Writer, s Exporter) error {
	ids := s.ListKeyIDs()
	sort.Strings(ids)
	for _, id := range ids {
		if err := ExportKey(out, s, id); err != nil {
			return err
		}
	}
	return nil
}

// ExportKeysByID exports only the keys named in ids, in the order given.
func ExportKeysByID(out io.Writer, s Exporter, ids []string) error {
	for _, id := range ids {
		if err := ExportKey(out, s, id); err != nil {
			return err
		}
	}
	return nil
}

// ExportKey copies one key's PEM block(s) from s to out, stamping a
// "keyid" header used to route the block back on import.
func ExportKey(out io.Writer, s Exporter, keyID string) error {
	raw, err := s.Get(keyID)
	if err != nil {
		return err
	}
	for block, rest := pem.Decode(raw); block != nil; block, rest = pem.Decode(rest) {
		if block.Headers == nil {
			block.Headers = map[string]string{}
		}
		block.Headers["keyid"] = keyID
		if err := pem.Encode(out, block); err != nil {
			return err
		}
		raw = rest
	}
	return nil
}

// ImportKeys reads concatenated PEM blocks from in and routes each one,
// by its "keyid" header, to the first Importer in to that accepts it.
// Adjacent blocks sharing a keyid are reassembled into one PEM payload
// before being handed to Set, matching the teacher's aggregate-then-write
// behavior for multi-block keys.
func ImportKeys(in io.Reader, to []Importer) error {
	raw, err := io.ReadAll(in)
	if err != nil {
		return err
	}

	var (
		currentID string
		buf       []byte
	)
	flush := func() error {
		if buf == nil {
			return nil
		}
		return importToStores(to, currentID, buf)
	}

	for block, rest := pem.Decode(raw); block != nil; block, rest = pem.Decode(rest) {
		id, ok := block.Headers["keyid"]
		if !ok || id == "" {
			log.Warn("utils: skipping PEM block with no keyid header")
			raw = rest
			continue
		}
		if id != currentID {
			if err := flush(); err != nil {
				return err
			}
			buf = nil
			currentID = id
		}
		delete(block.Headers, "keyid")
		buf = append(buf, pem.EncodeToMemory(block)...)
		raw = rest
	}
	return flush()
}

func importToStores(to []Importer, keyID string, pemBytes []byte) error {
	var err error
	for _, imp := range to {
		if err = imp.Set(keyID, pemBytes); err != nil {
			log.Errorf("utils: failed to import key %s: %v", keyID, err)
			continue
		}
		return nil
	}
	if err == nil {
		err = fmt.Errorf("utils: no importer accepted key %s", keyID)
	}
	return err
}
