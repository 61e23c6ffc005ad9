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
	"reflect"
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/pilosa/stardwh/test"
	"github.com/pkg/errors"
)

func TestTranslator(t *testing.T) {
	levelDir := t.TempDir()
	bt, err := NewTranslator(levelDir, "f1", "f2")
	if err != nil {
		t.Fatalf("couldn't get level translator: %v", err)
	}
	id1, err := bt.GetID("f1", "hello")
	if err != nil {
		t.Fatalf("couldn't get id for hello f1: %v", err)
	}
	id2, err := bt.GetID("f2", "hello")
	if err != nil {
		t.Fatalf("couldn't get id for hello in f2: %v", err)
	}
	id3, err := bt.GetID("fnew", "hello")
	if err != nil {
		t.Fatalf("couldn't get id for hello in fnew: %v", err)
	}
	test.MustBe(t, []uint64{id1, id2, id3}, []uint64{1, 1, 1}, "first ids")

	val, err := bt.Get("f1", id1)
	test.ErrNil(t, err, "Get(f1, id1)")
	test.MustBe(t, val, "hello")

	val, err = bt.Get("fnew", id3)
	test.ErrNil(t, err, `Get("fnew", id3)`)
	test.MustBe(t, val, "hello")

	id1again, err := bt.GetID("f1", "hello")
	test.ErrNil(t, err, "GetID again")
	test.MustBe(t, id1again, id1)

	next, err := bt.GetID("f1", "world")
	test.ErrNil(t, err, "GetID world")
	test.MustBe(t, next, uint64(2))

	err = bt.Close()
	if err != nil {
		t.Fatalf("closing level translator: %v", err)
	}

	// Each run starts from an empty mapping.
	bt, err = NewTranslator(levelDir, "f1", "f2")
	if err != nil {
		t.Fatalf("couldn't get level translator after closing: %v", err)
	}
	defer bt.Close()
	if _, err = bt.Get("f1", id1); err == nil {
		t.Fatalf("expected the previous mapping to be gone")
	}
	id, err := bt.GetID("f1", "world")
	test.ErrNil(t, err, "GetID after reopen")
	test.MustBe(t, id, uint64(1))
}

func TestConcTranslator(t *testing.T) {
	bt, err := NewTranslator(t.TempDir(), "f1", "f2")
	if err != nil {
		t.Fatalf("couldn't get level translator: %v", err)
	}
	defer bt.Close()

	wg := &sync.WaitGroup{}
	rets := make([][]uint64, 8)
	errs := make(chan error, 8*1000)
	for i := 0; i < 8; i++ {
		rets[i] = make([]uint64, 1000)
		wg.Add(1)
		go func(ret []uint64) {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				id, err := bt.GetID("f1", strconv.Itoa(j))
				if err != nil {
					errs <- errors.Wrap(err, "error getting id")
				}
				ret[j] = id
			}
		}(rets[i])
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
	for i := 1; i < len(rets); i++ {
		if !reflect.DeepEqual(rets[i], rets[0]) {
			t.Fatalf("returned ids different in different threads: %v, %v", rets[i], rets[0])
		}
	}
	ret := rets[0]
	sort.Slice(ret, func(i, j int) bool { return ret[i] < ret[j] })
	for j := 0; j < 1000; j++ {
		if ret[j] != uint64(j+1) {
			t.Fatalf("returned ids are not dense, pos: %v, val: %v", j, ret[j])
		}
	}
}

func BenchmarkTranslatorGetID(b *testing.B) {
	bt, err := NewTranslator(b.TempDir(), "f1", "f2")
	if err != nil {
		b.Fatalf("couldn't get level translator: %v", err)
	}
	defer bt.Close()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		bt.GetID("f1", strconv.Itoa(i))
	}
}
