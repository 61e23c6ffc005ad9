package boltdb

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/boltdb/bolt"
	"github.com/pkg/errors"
)

var (
	idBucket  = []byte("idKey")
	valBucket = []byte("valKey")
)

// Translator is a stardwh.Translator backed by a bolt database, for key maps
// that should not live in memory. Bolt bucket sequences start at 1, which
// gives every dimension a dense key sequence.
type Translator struct {
	Db *bolt.DB

	fmu        sync.RWMutex
	dimensions map[string]struct{}
}

// Close syncs and closes the underlying bolt database.
func (bt *Translator) Close() error {
	err := bt.Db.Sync()
	if err != nil {
		return errors.Wrap(err, "syncing db")
	}
	return bt.Db.Close()
}

// NewTranslator opens (or creates) the bolt file at filename and discards
// any keys a previous run left in it, so that each run allocates keys from 1.
func NewTranslator(filename string, dimensions ...string) (bt *Translator, err error) {
	bt = &Translator{
		dimensions: make(map[string]struct{}),
	}
	bt.Db, err = bolt.Open(filename, 0600, &bolt.Options{Timeout: 1 * time.Second, NoGrowSync: true})
	if err != nil {
		return nil, errors.Wrapf(err, "opening db file '%v'", filename)
	}
	err = bt.Db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{idBucket, valBucket} {
			if tx.Bucket(name) != nil {
				if err := tx.DeleteBucket(name); err != nil {
					return errors.Wrapf(err, "dropping %s bucket", name)
				}
			}
		}
		ib, err := tx.CreateBucket(idBucket)
		if err != nil {
			return errors.Wrap(err, "creating idKey bucket")
		}
		vb, err := tx.CreateBucket(valBucket)
		if err != nil {
			return errors.Wrap(err, "creating valKey bucket")
		}
		for _, dim := range dimensions {
			_, _, err = bt.addDimension(ib, vb, dim)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		bt.Db.Close()
		return nil, errors.Wrap(err, "resetting buckets")
	}
	return bt, nil
}

func (bt *Translator) addDimension(ib, vb *bolt.Bucket, dim string) (dib, dvb *bolt.Bucket, err error) {
	dib, err = ib.CreateBucketIfNotExists([]byte(dim))
	if err != nil {
		return nil, nil, errors.Wrap(err, "adding "+dim+" to id bucket")
	}
	dvb, err = vb.CreateBucketIfNotExists([]byte(dim))
	if err != nil {
		return nil, nil, errors.Wrap(err, "adding "+dim+" to val bucket")
	}
	bt.fmu.Lock()
	bt.dimensions[dim] = struct{}{}
	bt.fmu.Unlock()

	return dib, dvb, nil
}

func idBytes(id uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, id)
	return b
}

// Get returns the natural key previously mapped to id by GetID.
func (bt *Translator) Get(dimension string, id uint64) (key string, err error) {
	bt.fmu.RLock()
	_, ok := bt.dimensions[dimension]
	bt.fmu.RUnlock()
	if !ok {
		return "", errors.Errorf("can't Get() with unknown dimension '%v'", dimension)
	}
	err = bt.Db.View(func(tx *bolt.Tx) error {
		val := tx.Bucket(idBucket).Bucket([]byte(dimension)).Get(idBytes(id))
		if val == nil {
			return errors.Errorf("requested unknown id %d", id)
		}
		key = string(val)
		return nil
	})
	return key, errors.Wrapf(err, "dimension '%v'", dimension)
}

// GetID maps key to a monotonic id, allocating one on first sight.
func (bt *Translator) GetID(dimension string, key string) (id uint64, err error) {
	bt.fmu.RLock()
	_, ok := bt.dimensions[dimension]
	bt.fmu.RUnlock()
	if !ok {
		err = bt.Db.Update(func(tx *bolt.Tx) error {
			_, _, err := bt.addDimension(tx.Bucket(idBucket), tx.Bucket(valBucket), dimension)
			return err
		})
		if err != nil {
			return 0, errors.Wrap(err, "adding dimension in GetID")
		}
	}

	bkey := []byte(key)
	var ret []byte
	err = bt.Db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(valBucket).Bucket([]byte(dimension)).Get(bkey); v != nil {
			ret = append(ret, v...)
		}
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "looking up key")
	}
	if len(ret) == 8 {
		return binary.BigEndian.Uint64(ret), nil
	}

	// Look again inside the write transaction; another goroutine may have
	// mapped key since the read.
	err = bt.Db.Update(func(tx *bolt.Tx) error {
		dib := tx.Bucket(idBucket).Bucket([]byte(dimension))
		dvb := tx.Bucket(valBucket).Bucket([]byte(dimension))
		if v := dvb.Get(bkey); len(v) == 8 {
			id = binary.BigEndian.Uint64(v)
			return nil
		}
		id, err = dib.NextSequence()
		if err != nil {
			return err
		}
		err = dib.Put(idBytes(id), bkey)
		if err != nil {
			return errors.Wrap(err, "inserting into idKey bucket")
		}
		err = dvb.Put(bkey, idBytes(id))
		if err != nil {
			return errors.Wrap(err, "inserting into valKey bucket")
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}
