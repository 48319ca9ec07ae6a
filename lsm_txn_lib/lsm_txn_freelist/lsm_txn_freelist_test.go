// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

package lsm_txn_freelist

import (
	"math/rand"
	"testing"

	lsm_txn_lib "github.com/nixomose/lsm_txn/lsm_txn_lib/lsm_txn_interfaces"
	"github.com/nixomose/nixomosegotools/tools"
)

type test_allocator struct {
	log    *tools.Nixomosetools_logger
	limit  uint64
	in_use uint64
}

func (this *test_allocator) Grow(old_size uint64, new_size uint64) tools.Ret {
	if new_size <= old_size {
		this.in_use -= old_size - new_size
		return nil
	}
	if this.limit != 0 && this.in_use+new_size-old_size > this.limit {
		return tools.ErrorWithCode(this.log, lsm_txn_lib.LSM_TXN_ERROR_NOMEM, "test allocator out of memory")
	}
	this.in_use += new_size - old_size
	return nil
}

func (this *test_allocator) Release(size uint64) {
	this.in_use -= size
}

func new_test_freelist(limit uint64) (*Freelist, *test_allocator) {
	var log = tools.New_Nixomosetools_logger(tools.DEBUG)
	var alloc = &test_allocator{log: log, limit: limit}
	return New_freelist(log, alloc), alloc
}

func check_sorted_unique(t *testing.T, f *Freelist) {
	t.Helper()
	for lp := uint32(1); lp < f.Count(); lp++ {
		if f.Get(lp-1).Block_id >= f.Get(lp).Block_id {
			t.Fatalf("freelist not strictly ascending at %d: %d then %d", lp, f.Get(lp-1).Block_id, f.Get(lp).Block_id)
		}
	}
	if f.Count() > f.Capacity() {
		t.Fatalf("count %d past capacity %d", f.Count(), f.Capacity())
	}
}

func TestAppendKeepsSortedUnique(t *testing.T) {
	var f, _ = new_test_freelist(0)
	var seen = make(map[uint32]bool)
	for lp := 0; lp < 2000; lp++ {
		var block = rand.Uint32() % 300
		if ret := f.Append(block, int64(rand.Intn(50))); ret != nil {
			t.Fatalf("append %d: %s", block, ret.Get_errmsg())
		}
		seen[block] = true
	}
	check_sorted_unique(t, f)
	if int(f.Count()) != len(seen) {
		t.Fatalf("count %d, expected %d distinct blocks", f.Count(), len(seen))
	}

	// re-appending something already there only changes the snapshot id.
	var count = f.Count()
	var first = f.Get(0).Block_id
	if ret := f.Append(first, 99); ret != nil {
		t.Fatal(ret.Get_errmsg())
	}
	if f.Count() != count || f.Get(0).Snapshot_id != 99 {
		t.Fatalf("re-append changed count to %d or didn't clobber: %+v", f.Count(), f.Get(0))
	}
}

func TestGrowthDoubling(t *testing.T) {
	var f, alloc = new_test_freelist(0)
	if f.Capacity() != 0 {
		t.Fatalf("new freelist has capacity %d", f.Capacity())
	}
	for block := uint32(0); block < 4; block++ {
		if ret := f.Append(block*10, -1); ret != nil {
			t.Fatal(ret.Get_errmsg())
		}
	}
	if f.Capacity() != 4 || f.Count() != 4 {
		t.Fatalf("after 4 appends capacity %d count %d, expected 4 and 4", f.Capacity(), f.Count())
	}
	if ret := f.Append(5, -1); ret != nil {
		t.Fatal(ret.Get_errmsg())
	}
	if f.Capacity() != 8 || f.Count() != 5 {
		t.Fatalf("after 5 appends capacity %d count %d, expected 8 and 5", f.Capacity(), f.Count())
	}
	if alloc.in_use != 8*freelist_entry_size {
		t.Fatalf("allocator has %d bytes charged, expected %d", alloc.in_use, 8*freelist_entry_size)
	}
}

func TestClobber(t *testing.T) {
	var f, _ = new_test_freelist(0)
	if ret := f.Append(10, 1); ret != nil {
		t.Fatal(ret.Get_errmsg())
	}
	if ret := f.Append(10, 5); ret != nil {
		t.Fatal(ret.Get_errmsg())
	}
	if f.Count() != 1 {
		t.Fatalf("expected one entry, got %d", f.Count())
	}
	if e := f.Get(0); e.Block_id != 10 || e.Snapshot_id != 5 {
		t.Fatalf("expected {10 5}, got %+v", e)
	}
}

func TestAppendOutOfMemoryLeavesListAlone(t *testing.T) {
	var f, _ = new_test_freelist(4 * freelist_entry_size)
	for block := uint32(1); block <= 4; block++ {
		if ret := f.Append(block, int64(block)); ret != nil {
			t.Fatal(ret.Get_errmsg())
		}
	}
	var before = f.Entries()
	var ret = f.Append(50, 7)
	if ret == nil {
		t.Fatal("expected out of memory growing past the limit")
	}
	if ret.Get_errcode() != lsm_txn_lib.LSM_TXN_ERROR_NOMEM {
		t.Fatalf("expected NOMEM, got errcode %d", ret.Get_errcode())
	}
	if f.Count() != 4 || f.Capacity() != 4 {
		t.Fatalf("failed append changed count %d or capacity %d", f.Count(), f.Capacity())
	}
	for lp, e := range f.Entries() {
		if e != before[lp] {
			t.Fatalf("failed append changed entry %d from %+v to %+v", lp, before[lp], e)
		}
	}
	// a clobber of something already there doesn't need to grow, but we're full so we still try.
	if ret = f.Append(2, 9); ret == nil {
		t.Fatal("expected append on a full list to try to grow and fail")
	}
}

func TestAppendInvalidSnapshot(t *testing.T) {
	var f, _ = new_test_freelist(0)
	if ret := f.Append(1, -2); ret == nil {
		t.Fatal("snapshot id -2 accepted")
	}
	if f.Count() != 0 {
		t.Fatalf("rejected append left %d entries", f.Count())
	}
}

func TestRemoveAndTakeReusable(t *testing.T) {
	var f, _ = new_test_freelist(0)
	f.Append(1, 9)
	f.Append(2, 5)
	f.Append(3, FREELIST_ANY_SNAPSHOT)

	if ret, ok := f.Remove(42); ret != nil || ok {
		t.Fatal("removed a block that was never there")
	}

	// nothing older than 5 can be looked at any more, anything freed after 5 stays.
	var ret, block, ok = f.Take_reusable(5)
	if ret != nil || ok == false || block != 2 {
		t.Fatalf("expected block 2, got %d %v", block, ok)
	}
	ret, block, ok = f.Take_reusable(5)
	if ret != nil || ok == false || block != 3 {
		t.Fatalf("expected block 3, got %d %v", block, ok)
	}
	if _, _, ok = f.Take_reusable(5); ok {
		t.Fatal("block freed at 9 handed out while 5 is still visible")
	}
	// -1 as the bound means only the always reusable ones.
	if _, _, ok = f.Take_reusable(FREELIST_ANY_SNAPSHOT); ok {
		t.Fatal("block freed at 9 handed out with nothing committed")
	}
	ret, block, ok = f.Take_reusable(9)
	if ret != nil || ok == false || block != 1 {
		t.Fatalf("expected block 1 at 9, got %d %v", block, ok)
	}
	if f.Count() != 0 {
		t.Fatalf("expected an empty list, count %d", f.Count())
	}
}

func TestUndoJournalIsCharged(t *testing.T) {
	var f, alloc = new_test_freelist(0)
	f.Append(10, 1)
	var entries_only = alloc.in_use
	f.Set_keep_undo(true)
	f.Append(11, 2)
	if f.Undo_capacity() != FREELIST_MIN_CAPACITY ||
		alloc.in_use != entries_only+uint64(FREELIST_MIN_CAPACITY)*freelist_undo_size {
		t.Fatalf("undo journal capacity %d, allocator at %d", f.Undo_capacity(), alloc.in_use)
	}
	for lp := uint32(0); lp < 4; lp++ {
		f.Append(12+lp, 2)
	}
	if f.Undo_capacity() != 2*FREELIST_MIN_CAPACITY {
		t.Fatalf("undo journal didn't double, capacity %d", f.Undo_capacity())
	}

	// no room for another undo record means no change at all.
	alloc.limit = alloc.in_use
	for f.Undo_point() < f.Undo_capacity() {
		// clobbers, so only the journal fills up.
		if ret := f.Append(10, int64(f.Undo_point())); ret != nil {
			t.Fatal(ret.Get_errmsg())
		}
	}
	var count = f.Count()
	var ret = f.Append(200, 3)
	if ret == nil || ret.Get_errcode() != lsm_txn_lib.LSM_TXN_ERROR_NOMEM || f.Count() != count {
		t.Fatal("append with a full undo journal and no memory went through")
	}
	if ret, ok := f.Remove(10); ret == nil || ok || f.Count() != count {
		t.Fatal("remove with a full undo journal and no memory went through")
	}
	if ret, _, ok := f.Take_reusable(9); ret == nil || ok || f.Count() != count {
		t.Fatal("take with a full undo journal and no memory went through")
	}

	alloc.limit = 0
	f.Reset()
	if alloc.in_use != 0 {
		t.Fatalf("reset left %d bytes charged", alloc.in_use)
	}
}

func TestWalk(t *testing.T) {
	var f, _ = new_test_freelist(0)
	for _, block := range []uint32{30, 10, 20} {
		f.Append(block, -1)
	}
	var forward []uint32
	f.Walk(false, func(e Freelist_entry) bool {
		forward = append(forward, e.Block_id)
		return true
	})
	var reverse []uint32
	f.Walk(true, func(e Freelist_entry) bool {
		reverse = append(reverse, e.Block_id)
		return len(reverse) < 2
	})
	if len(forward) != 3 || forward[0] != 10 || forward[1] != 20 || forward[2] != 30 {
		t.Fatalf("forward walk %v", forward)
	}
	if len(reverse) != 2 || reverse[0] != 30 || reverse[1] != 20 {
		t.Fatalf("reverse walk should stop after 2: %v", reverse)
	}
}

func TestUndo(t *testing.T) {
	var f, _ = new_test_freelist(0)
	f.Append(10, 1)
	f.Append(20, 2)
	f.Set_keep_undo(true)
	var before = f.Entries()

	var point = f.Undo_point()
	f.Append(15, 3) // insert
	f.Append(10, 7) // clobber
	f.Remove(20)    // remove
	f.Append(5, 4)  // insert at the front

	f.Undo_to(point)
	var after = f.Entries()
	if len(after) != len(before) {
		t.Fatalf("undo left %d entries, expected %d", len(after), len(before))
	}
	for lp := range before {
		if before[lp] != after[lp] {
			t.Fatalf("undo entry %d is %+v, expected %+v", lp, after[lp], before[lp])
		}
	}
	if f.Undo_point() != point {
		t.Fatalf("undo journal not cut back, at %d", f.Undo_point())
	}
}

func TestIntegrityCheck(t *testing.T) {
	var f, _ = new_test_freelist(0)
	f.Append(3, -1)
	f.Append(7, 2)
	if ret := f.Integrity_check(8); ret != nil {
		t.Fatal(ret.Get_errmsg())
	}
	var ret = f.Integrity_check(7)
	if ret == nil || ret.Get_errcode() != lsm_txn_lib.LSM_TXN_ERROR_CORRUPT {
		t.Fatal("block 7 in a 7 block store passed the integrity check")
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	var f, _ = new_test_freelist(0)
	f.Append(4, -1)
	f.Append(1, 1<<40)
	f.Append(9, 12)
	var ret, bs = f.Serialize()
	if ret != nil {
		t.Fatal(ret.Get_errmsg())
	}
	if uint32(len(*bs)) != f.Serialized_size() {
		t.Fatalf("blob is %d bytes, expected %d", len(*bs), f.Serialized_size())
	}
	var g, _ = new_test_freelist(0)
	if ret = g.Deserialize(bs); ret != nil {
		t.Fatal(ret.Get_errmsg())
	}
	if g.Count() != 3 || g.Get(0) != f.Get(0) || g.Get(1) != f.Get(1) || g.Get(2) != f.Get(2) {
		t.Fatalf("round trip mismatch:\n%s\n%s", f.Dump(), g.Dump())
	}

	// swap the first two block ids, out of order is corrupt.
	var bad = append([]byte(nil), (*bs)...)
	copy(bad[4:8], (*bs)[16:20])
	copy(bad[16:20], (*bs)[4:8])
	if ret = g.Deserialize(&bad); ret == nil || ret.Get_errcode() != lsm_txn_lib.LSM_TXN_ERROR_CORRUPT {
		t.Fatal("out of order blob accepted")
	}
	if g.Count() != 3 {
		t.Fatal("failed deserialize changed the list")
	}
	var short = (*bs)[:7]
	if ret = g.Deserialize(&short); ret == nil {
		t.Fatal("short blob accepted")
	}
}

func TestResetReleasesMemory(t *testing.T) {
	var f, alloc = new_test_freelist(0)
	for block := uint32(0); block < 10; block++ {
		f.Append(block, -1)
	}
	f.Reset()
	if f.Count() != 0 || f.Capacity() != 0 {
		t.Fatalf("reset left count %d capacity %d", f.Count(), f.Capacity())
	}
	if alloc.in_use != 0 {
		t.Fatalf("reset left %d bytes charged", alloc.in_use)
	}
}

func TestFreelistSetTargets(t *testing.T) {
	var log = tools.New_Nixomosetools_logger(tools.DEBUG)
	var alloc = &test_allocator{log: log}
	var s = New_freelist_set(log, alloc)

	if ret, _ := s.Get(FREELIST_TARGET_WORKING); ret == nil || ret.Get_errcode() != lsm_txn_lib.LSM_TXN_ERROR_MISUSE {
		t.Fatal("got a working list with no write transaction")
	}
	if ret := s.Append(FREELIST_TARGET_LIVE, 1, -1); ret != nil {
		t.Fatal(ret.Get_errmsg())
	}
	if ret := s.Begin_working(); ret != nil {
		t.Fatal(ret.Get_errmsg())
	}
	if ret := s.Append(FREELIST_TARGET_WORKING, 2, 1); ret != nil {
		t.Fatal(ret.Get_errmsg())
	}
	if s.Live().Count() != 1 {
		t.Fatal("working append showed up in live")
	}
	s.Discard()
	if s.Is_working_valid() || s.Live().Count() != 1 {
		t.Fatal("discard touched live or left working valid")
	}

	s.Begin_working()
	s.Append(FREELIST_TARGET_WORKING, 3, 1)
	s.Promote()
	if s.Live().Count() != 2 || s.Is_working_valid() {
		t.Fatalf("promote left live with %d entries", s.Live().Count())
	}
	if FREELIST_TARGET_WORKING.String() != "working" || FREELIST_TARGET_LIVE.String() != "live" {
		t.Fatal("target names")
	}
}
