// Package catalog is a local BoltDB-backed secondary index over asset
// names, version refs, and cached task rules. It is rebuilt from the
// authoritative per-asset files under the asset root at startup and updated
// by the asset manager's request handlers (Build, CancelVersion, ...) after
// they commit; state changes driven by task notifications or recovery are
// not written to it until the next rebuild. It is never itself the source
// of truth (spec §4.2, "Persistence").
//
// Grounded on pkg/storage/boltdb.go's bucket-per-entity CRUD pattern.
package catalog

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/cuemby/fusiond/pkg/ferrors"
	"github.com/cuemby/fusiond/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketAssets       = []byte("assets")
	bucketVersions     = []byte("versions")
	bucketTaskRuleHash = []byte("task_rule_hash")
)

// Catalog is the bbolt-backed secondary index.
type Catalog struct {
	db *bolt.DB
}

// Open opens (creating if absent) the catalog database under dataDir.
func Open(dataDir string) (*Catalog, error) {
	dbPath := filepath.Join(dataDir, "catalog.db")
	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, ferrors.New(ferrors.KindFatal, "catalog.Open", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketAssets, bucketVersions, bucketTaskRuleHash} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, ferrors.New(ferrors.KindFatal, "catalog.Open", err)
	}

	return &Catalog{db: db}, nil
}

// Close closes the underlying database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// PutAsset upserts an asset's index entry.
func (c *Catalog) PutAsset(a *types.Asset) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(a)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketAssets).Put([]byte(a.Name), data)
	})
}

// GetAsset looks up an asset by name.
func (c *Catalog) GetAsset(name string) (*types.Asset, bool, error) {
	var a types.Asset
	found := false
	err := c.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketAssets).Get([]byte(name))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &a)
	})
	if err != nil {
		return nil, false, err
	}
	return &a, found, nil
}

// DeleteAsset removes an asset's index entry.
func (c *Catalog) DeleteAsset(name string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAssets).Delete([]byte(name))
	})
}

// ListAssets returns every indexed asset, in bucket (byte-sorted) order.
func (c *Catalog) ListAssets() ([]*types.Asset, error) {
	var out []*types.Asset
	err := c.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAssets).ForEach(func(k, v []byte) error {
			var a types.Asset
			if err := json.Unmarshal(v, &a); err != nil {
				return err
			}
			out = append(out, &a)
			return nil
		})
	})
	return out, err
}

// PutVersion upserts a version's index entry, keyed by its verref.
func (c *Catalog) PutVersion(v *types.AssetVersion) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketVersions).Put([]byte(v.Verref()), data)
	})
}

// GetVersion looks up a version by verref.
func (c *Catalog) GetVersion(verref string) (*types.AssetVersion, bool, error) {
	var v types.AssetVersion
	found := false
	err := c.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketVersions).Get([]byte(verref))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &v)
	})
	if err != nil {
		return nil, false, err
	}
	return &v, found, nil
}

// DeleteVersion removes a version's index entry.
func (c *Catalog) DeleteVersion(verref string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketVersions).Delete([]byte(verref))
	})
}

// ListVersionsForAsset returns every indexed version belonging to
// assetName, in verref order.
func (c *Catalog) ListVersionsForAsset(assetName string) ([]*types.AssetVersion, error) {
	prefix := []byte(assetName + "?version=")
	var out []*types.AssetVersion
	err := c.db.View(func(tx *bolt.Tx) error {
		cur := tx.Bucket(bucketVersions).Cursor()
		for k, v := cur.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = cur.Next() {
			var av types.AssetVersion
			if err := json.Unmarshal(v, &av); err != nil {
				return err
			}
			out = append(out, &av)
		}
		return nil
	})
	return out, err
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}

// PutTaskRuleHash records the content hash a .taskrule directory was last
// loaded with.
func (c *Catalog) PutTaskRuleHash(hash string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTaskRuleHash).Put([]byte("current"), []byte(hash))
	})
}

// TaskRuleHash returns the last recorded task-rule content hash, if any.
func (c *Catalog) TaskRuleHash() (string, bool, error) {
	var hash string
	found := false
	err := c.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketTaskRuleHash).Get([]byte("current"))
		if data == nil {
			return nil
		}
		found = true
		hash = string(data)
		return nil
	})
	return hash, found, err
}

// Rebuild replaces the asset and version buckets wholesale from assets and
// versions read from the authoritative file store, discarding whatever the
// catalog previously held (spec §4.2 startup recovery: the catalog is a
// cache, never authoritative).
func (c *Catalog) Rebuild(assets []*types.Asset, versions []*types.AssetVersion) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		for _, name := range []struct {
			bucket []byte
		}{{bucketAssets}, {bucketVersions}} {
			if err := tx.DeleteBucket(name.bucket); err != nil && err != bolt.ErrBucketNotFound {
				return err
			}
			if _, err := tx.CreateBucket(name.bucket); err != nil {
				return err
			}
		}
		ab := tx.Bucket(bucketAssets)
		for _, a := range assets {
			data, err := json.Marshal(a)
			if err != nil {
				return err
			}
			if err := ab.Put([]byte(a.Name), data); err != nil {
				return err
			}
		}
		vb := tx.Bucket(bucketVersions)
		for _, v := range versions {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			if err := vb.Put([]byte(v.Verref()), data); err != nil {
				return err
			}
		}
		return nil
	})
}
