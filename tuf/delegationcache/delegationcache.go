// Package delegationcache persists delegation-resolution hints across CLI
// invocations, the way the teacher's notary-signer persists generated
// keys: a gorm-modeled row in a sqlite3 file, opened fresh per process.
// A hint only ever shortcuts the traversal order of a later FindTarget
// call; the resolver still verifies the claimed role's delegation entry
// actually matches the path before trusting it, so a stale or tampered
// cache file can misdirect the first probe but never substitute for
// checking a target's real delegation chain.
package delegationcache

import (
	"github.com/jinzhu/gorm"
	_ "github.com/mattn/go-sqlite3"
)

// hint is the gorm model for one remembered path -> delegatee mapping.
type hint struct {
	Path string `gorm:"primary_key"`
	Role string
}

// Cache is a sqlite3-backed store of delegation-resolution hints, keyed
// by target path, scoped to one trust directory.
type Cache struct {
	db *gorm.DB
}

// Open opens (or creates) the sqlite3 file at path and ensures its
// schema exists.
func Open(path string) (*Cache, error) {
	db, err := gorm.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	db.AutoMigrate(&hint{})
	return &Cache{db: db}, nil
}

// Close releases the underlying sqlite3 connection.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Lookup returns the role most recently recorded for path, if any.
func (c *Cache) Lookup(path string) (role string, ok bool) {
	var h hint
	if c.db.First(&h, "path = ?", path).RecordNotFound() {
		return "", false
	}
	return h.Role, true
}

// Remember records that path was ultimately served by role, overwriting
// any previous hint for the same path.
func (c *Cache) Remember(path, role string) {
	c.db.Save(&hint{Path: path, Role: role})
}
