// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

package leveldb

import (
	"encoding/binary"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pilosa/stardwh"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

var _ stardwh.Translator = &Translator{}

// Translator is a stardwh.Translator which stores the two way key/id mapping
// in leveldb, one pair of databases per dimension.
type Translator struct {
	lock       sync.RWMutex
	dirname    string
	dimensions map[string]*DimensionTranslator
}

var _ stardwh.DimensionTranslator = &DimensionTranslator{}

// DimensionTranslator is a stardwh.DimensionTranslator which uses leveldb.
type DimensionTranslator struct {
	lock   valueLocker
	idMap  *leveldb.DB
	valMap *leveldb.DB
	n      *stardwh.Nexter
}

type errorList []error

func (errs errorList) Error() string {
	errstrings := make([]string, len(errs))
	for i, err := range errs {
		errstrings[i] = err.Error()
	}
	return strings.Join(errstrings, "; ")
}

// Close closes all of the underlying leveldb instances.
func (lt *Translator) Close() error {
	lt.lock.Lock()
	defer lt.lock.Unlock()
	errs := make(errorList, 0)
	for d, ldt := range lt.dimensions {
		err := ldt.Close()
		if err != nil {
			errs = append(errs, errors.Wrapf(err, "dimension : %v", d))
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Close closes the two leveldbs used by the DimensionTranslator.
func (ldt *DimensionTranslator) Close() error {
	errs := make(errorList, 0)
	err := ldt.idMap.Close()
	if err != nil {
		errs = append(errs, errors.Wrap(err, "closing idMap"))
	}
	err = ldt.valMap.Close()
	if err != nil {
		errs = append(errs, errors.Wrap(err, "closing valMap"))
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// getDimensionTranslator retrieves or creates a DimensionTranslator for the
// given dimension.
func (lt *Translator) getDimensionTranslator(dimension string) (*DimensionTranslator, error) {
	lt.lock.RLock()
	if tr, ok := lt.dimensions[dimension]; ok {
		lt.lock.RUnlock()
		return tr, nil
	}
	lt.lock.RUnlock()
	lt.lock.Lock()
	defer lt.lock.Unlock()
	if tr, ok := lt.dimensions[dimension]; ok {
		return tr, nil
	}
	ldt, err := NewDimensionTranslator(lt.dirname, dimension)
	if err != nil {
		return nil, errors.Wrap(err, "creating new DimensionTranslator")
	}
	lt.dimensions[dimension] = ldt
	return ldt, nil
}

// NewDimensionTranslator creates a DimensionTranslator under dirname. Any
// mapping a previous run stored for the dimension is removed first.
func NewDimensionTranslator(dirname string, dimension string) (*DimensionTranslator, error) {
	err := os.MkdirAll(dirname, 0700)
	if err != nil {
		return nil, errors.Wrap(err, "making directory")
	}
	idPath := filepath.Join(dirname, dimension+"-id")
	valPath := filepath.Join(dirname, dimension+"-val")
	for _, p := range []string{idPath, valPath} {
		if err := os.RemoveAll(p); err != nil {
			return nil, errors.Wrapf(err, "removing stale leveldb at %v", p)
		}
	}
	ldt := &DimensionTranslator{
		n:    stardwh.NewNexter(),
		lock: newBucketVLock(),
	}
	ldt.idMap, err = leveldb.OpenFile(idPath, &opt.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "opening leveldb at %v", idPath)
	}
	ldt.valMap, err = leveldb.OpenFile(valPath, &opt.Options{})
	if err != nil {
		ldt.idMap.Close()
		return nil, errors.Wrapf(err, "opening leveldb at %v", valPath)
	}
	return ldt, nil
}

// NewTranslator gets a new Translator keeping its databases under dirname.
func NewTranslator(dirname string, dimensions ...string) (lt *Translator, err error) {
	lt = &Translator{
		dirname:    dirname,
		dimensions: make(map[string]*DimensionTranslator),
	}
	for _, dim := range dimensions {
		ldt, err := NewDimensionTranslator(dirname, dim)
		if err != nil {
			lt.Close()
			return nil, errors.Wrap(err, "making DimensionTranslator")
		}
		lt.dimensions[dim] = ldt
	}
	return lt, nil
}

// Get returns the natural key mapped to the given id in the given dimension.
func (lt *Translator) Get(dimension string, id uint64) (string, error) {
	ldt, err := lt.getDimensionTranslator(dimension)
	if err != nil {
		return "", errors.Wrap(err, "getting dimension translator")
	}
	return ldt.Get(id)
}

// Get returns the natural key mapped to the given id.
func (ldt *DimensionTranslator) Get(id uint64) (string, error) {
	idBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(idBytes, id)
	data, err := ldt.idMap.Get(idBytes, nil)
	if err != nil {
		return "", errors.Wrapf(err, "fetching id %d from idMap", id)
	}
	return string(data), nil
}

// GetID returns the surrogate key associated with the given natural key in
// the given dimension. It allocates a new ID if the key is not found.
func (lt *Translator) GetID(dimension string, key string) (id uint64, err error) {
	ldt, err := lt.getDimensionTranslator(dimension)
	if err != nil {
		return 0, errors.Wrap(err, "getting dimension translator")
	}
	return ldt.GetID(key)
}

// GetID returns the surrogate key associated with the given natural key. It
// allocates a new ID if the key is not found.
func (ldt *DimensionTranslator) GetID(key string) (id uint64, err error) {
	valBytes := []byte(key)
	var data []byte

	// if you're expecting most of the mapping to already be done, this would be faster
	data, err = ldt.valMap.Get(valBytes, &opt.ReadOptions{})
	if err != nil && err != leveldb.ErrNotFound {
		return 0, errors.Wrap(err, "trying to read value map")
	} else if err == nil {
		return binary.BigEndian.Uint64(data), nil
	}

	// else, key not found
	ldt.lock.Lock(valBytes)
	defer ldt.lock.Unlock(valBytes)
	// re-read after locking
	data, err = ldt.valMap.Get(valBytes, &opt.ReadOptions{})
	if err != nil && err != leveldb.ErrNotFound {
		return 0, errors.Wrap(err, "trying to read value map")
	} else if err == nil {
		return binary.BigEndian.Uint64(data), nil
	}

	idBytes := make([]byte, 8)
	id = ldt.n.Next()
	binary.BigEndian.PutUint64(idBytes, id)
	err = ldt.idMap.Put(idBytes, valBytes, &opt.WriteOptions{})
	if err != nil {
		return 0, errors.Wrap(err, "putting new id into idmap")
	}
	err = ldt.valMap.Put(valBytes, idBytes, &opt.WriteOptions{})
	if err != nil {
		return 0, errors.Wrap(err, "putting new id into valmap")
	}
	return id, nil
}

type valueLocker interface {
	Lock(val []byte)
	Unlock(val []byte)
}

type bucketVLock struct {
	ms []sync.Mutex
}

func newBucketVLock() bucketVLock {
	return bucketVLock{
		ms: make([]sync.Mutex, 1000),
	}
}

func (b bucketVLock) Lock(val []byte) {
	hsh := fnv.New32a()
	hsh.Write(val) // never returns error for hash
	b.ms[hsh.Sum32()%1000].Lock()
}

func (b bucketVLock) Unlock(val []byte) {
	hsh := fnv.New32a()
	hsh.Write(val) // never returns error for hash
	b.ms[hsh.Sum32()%1000].Unlock()
}
