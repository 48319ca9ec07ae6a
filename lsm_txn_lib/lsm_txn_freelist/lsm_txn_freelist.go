// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

package lsm_txn_freelist

import (
	"encoding/binary"
	"sort"

	lsm_txn_lib "github.com/nixomose/lsm_txn/lsm_txn_lib/lsm_txn_interfaces"
	"github.com/nixomose/nixomosegotools/tools"
)

/* the free list is the list of blocks nobody points to anymore. each one remembers the snapshot
   id it was freed at, because a reader that started before then can still be looking at it.
	 -1 means nobody can be, you can have it right now.
	 the list is kept sorted by block number and a block is only ever in it once. if you free a block
	 that's already free, it just gets the new snapshot id. (clobber) */

const FREELIST_ANY_SNAPSHOT int64 = -1

const FREELIST_MIN_CAPACITY uint32 = 4

type Freelist_entry struct {
	Block_id    uint32
	Snapshot_id int64
}

const freelist_entry_size uint64 = 16 // what one entry costs in memory, uint32 padded out to the int64

/* undo records only exist for lists that were asked to keep them (the working list).
   the journal is charged to the allocator like the entries are. */
type freelist_undo struct {
	block_id     uint32
	old_snapshot int64
	was_inserted bool // true: undo by removing the block, false: undo by putting old_snapshot back
	was_removed  bool // true: undo by inserting block_id/old_snapshot again
}

const freelist_undo_size uint64 = 24

type Freelist struct {
	log   *tools.Nixomosetools_logger
	alloc lsm_txn_lib.Allocator_interface

	/* len is the count, cap is the capacity. capacity only changes in grow() and reset(),
	   so cap(entries) is exactly what we asked the allocator for. */
	entries []Freelist_entry

	keep_undo bool
	undo_list []freelist_undo
}

func New_freelist(l *tools.Nixomosetools_logger, alloc lsm_txn_lib.Allocator_interface) *Freelist {
	var f Freelist
	f.log = l
	f.alloc = alloc
	f.entries = nil
	return &f
}

func (this *Freelist) Get_logger() *tools.Nixomosetools_logger {
	return this.log
}

func (this *Freelist) Count() uint32 {
	return uint32(len(this.entries))
}

func (this *Freelist) Capacity() uint32 {
	return uint32(cap(this.entries))
}

func (this *Freelist) Get(pos uint32) Freelist_entry {
	return this.entries[pos]
}

func (this *Freelist) Entries() []Freelist_entry {
	// a copy, nobody gets to write into our array from outside.
	var out = make([]Freelist_entry, len(this.entries))
	copy(out, this.entries)
	return out
}

func (this *Freelist) Set_keep_undo(keep bool) {
	/* turning it on or off starts a new journal, the old one's memory goes back. */
	this.release_undo()
	this.keep_undo = keep
}

func (this *Freelist) release_undo() {
	this.alloc.Release(uint64(cap(this.undo_list)) * freelist_undo_size)
	this.undo_list = nil
}

func (this *Freelist) reserve_undo() tools.Ret {
	/* make sure there's room for one more undo record before anything gets changed, so running
	   out of memory here leaves the list alone. same doubling as the entries. */
	if this.keep_undo == false || len(this.undo_list) < cap(this.undo_list) {
		return nil
	}
	var old_capacity = uint64(cap(this.undo_list))
	var new_capacity = old_capacity * 2
	if new_capacity < uint64(FREELIST_MIN_CAPACITY) {
		new_capacity = uint64(FREELIST_MIN_CAPACITY)
	}
	var ret = this.alloc.Grow(old_capacity*freelist_undo_size, new_capacity*freelist_undo_size)
	if ret != nil {
		return ret
	}
	var grown = make([]freelist_undo, len(this.undo_list), new_capacity)
	copy(grown, this.undo_list)
	this.undo_list = grown
	return nil
}

func (this *Freelist) Undo_capacity() uint32 {
	return uint32(cap(this.undo_list))
}

func (this *Freelist) grow() tools.Ret {
	/* double it, or start at 4. ask the allocator first, if it says no we haven't touched anything. */
	var old_capacity = uint64(cap(this.entries))
	var new_capacity uint64 = old_capacity * 2
	if new_capacity < uint64(FREELIST_MIN_CAPACITY) {
		new_capacity = uint64(FREELIST_MIN_CAPACITY)
	}
	if new_capacity > uint64(^uint32(0)) {
		return tools.ErrorWithCode(this.log, lsm_txn_lib.LSM_TXN_ERROR_NOMEM,
			"freelist can not grow past ", old_capacity, " entries")
	}

	var ret = this.alloc.Grow(old_capacity*freelist_entry_size, new_capacity*freelist_entry_size)
	if ret != nil {
		return ret
	}
	var grown = make([]Freelist_entry, len(this.entries), new_capacity)
	copy(grown, this.entries)
	this.entries = grown
	this.log.Debug("freelist grew from ", old_capacity, " to ", new_capacity, " entries")
	return nil
}

func (this *Freelist) find(block_id uint32) uint32 {
	/* return the position of the first entry with block_id >= the one asked for.
	   returns count if everything is smaller. */
	return uint32(sort.Search(len(this.entries), func(i int) bool {
		return this.entries[i].Block_id >= block_id
	}))
}

func (this *Freelist) Append(block_id uint32, snapshot_id int64) tools.Ret {
	/* add a block to the list, or if it's already there, update its snapshot id.
	   growth happens first, only when we're full, and only if it works do we change anything. */
	if snapshot_id < FREELIST_ANY_SNAPSHOT {
		return tools.Error(this.log, "invalid snapshot id ", snapshot_id, " for block ", block_id)
	}

	if ret := this.reserve_undo(); ret != nil {
		return ret
	}
	if len(this.entries) == cap(this.entries) {
		var ret = this.grow()
		if ret != nil {
			return ret
		}
	}

	var pos = this.find(block_id)
	if pos < uint32(len(this.entries)) && this.entries[pos].Block_id == block_id {
		if this.keep_undo {
			this.undo_list = append(this.undo_list, freelist_undo{block_id: block_id,
				old_snapshot: this.entries[pos].Snapshot_id})
		}
		this.entries[pos].Snapshot_id = snapshot_id
		return nil
	}

	// shift everything from pos right by one, there's room because we grew above.
	this.entries = this.entries[:len(this.entries)+1]
	copy(this.entries[pos+1:], this.entries[pos:])
	this.entries[pos] = Freelist_entry{Block_id: block_id, Snapshot_id: snapshot_id}
	if this.keep_undo {
		this.undo_list = append(this.undo_list, freelist_undo{block_id: block_id, was_inserted: true})
	}
	return nil
}

func (this *Freelist) Remove(block_id uint32) (tools.Ret, bool) {
	/* take a block out of the list because it got reallocated. false if it wasn't there. */
	var pos = this.find(block_id)
	if pos >= uint32(len(this.entries)) || this.entries[pos].Block_id != block_id {
		return nil, false
	}
	if ret := this.reserve_undo(); ret != nil {
		return ret, false
	}
	this.remove_at(pos)
	return nil, true
}

func (this *Freelist) remove_at(pos uint32) {
	if this.keep_undo {
		this.undo_list = append(this.undo_list, freelist_undo{block_id: this.entries[pos].Block_id,
			old_snapshot: this.entries[pos].Snapshot_id, was_removed: true})
	}
	copy(this.entries[pos:], this.entries[pos+1:])
	this.entries = this.entries[:len(this.entries)-1]
}

func (this *Freelist) Take_reusable(newest_reusable int64) (tools.Ret, uint32, bool) {
	/* find the lowest block nothing can still see and remove it from the list.
	   a block freed by transaction N is part of every version before N, so it can go once the
	   oldest version anybody can still get at is N or later. the caller works out newest_reusable,
	   that's the last committed transaction or the oldest reader, whichever is older.
	   -1 entries go no matter what. */
	for pos, e := range this.entries {
		if e.Snapshot_id == FREELIST_ANY_SNAPSHOT || e.Snapshot_id <= newest_reusable {
			if ret := this.reserve_undo(); ret != nil {
				return ret, 0, false
			}
			this.remove_at(uint32(pos))
			return nil, e.Block_id, true
		}
	}
	return nil, 0, false
}

func (this *Freelist) Walk(reverse bool, fn func(e Freelist_entry) bool) {
	if reverse {
		for lp := len(this.entries) - 1; lp >= 0; lp-- {
			if fn(this.entries[lp]) == false {
				return
			}
		}
		return
	}
	for _, e := range this.entries {
		if fn(e) == false {
			return
		}
	}
}

func (this *Freelist) Integrity_check(total_blocks uint32) tools.Ret {
	/* every block has to be inside the store, and the list has to be strictly ascending,
	   which also means no duplicates. */
	for lp := 0; lp < len(this.entries); lp++ {
		var e = this.entries[lp]
		if e.Block_id >= total_blocks {
			return tools.ErrorWithCode(this.log, lsm_txn_lib.LSM_TXN_ERROR_CORRUPT,
				"freelist block ", e.Block_id, " is past the end of the store at ", total_blocks)
		}
		if e.Snapshot_id < FREELIST_ANY_SNAPSHOT {
			return tools.ErrorWithCode(this.log, lsm_txn_lib.LSM_TXN_ERROR_CORRUPT,
				"freelist block ", e.Block_id, " has invalid snapshot id ", e.Snapshot_id)
		}
		if lp > 0 && this.entries[lp-1].Block_id >= e.Block_id {
			return tools.ErrorWithCode(this.log, lsm_txn_lib.LSM_TXN_ERROR_CORRUPT,
				"freelist out of order at position ", lp, ": ", this.entries[lp-1].Block_id, " then ", e.Block_id)
		}
	}
	return nil
}

func (this *Freelist) Undo_point() uint32 {
	return uint32(len(this.undo_list))
}

func (this *Freelist) Undo_to(point uint32) {
	/* put back everything done since point, newest first. none of these can need to grow:
	   an undone insert removes, an undone clobber writes in place, an undone remove goes into a slot
	   that was there before the remove. */
	var was_keeping = this.keep_undo
	this.keep_undo = false
	for lp := len(this.undo_list) - 1; lp >= int(point); lp-- {
		var u = this.undo_list[lp]
		switch {
		case u.was_inserted:
			this.remove_at(this.find(u.block_id))
		case u.was_removed:
			var pos = this.find(u.block_id)
			this.entries = this.entries[:len(this.entries)+1]
			copy(this.entries[pos+1:], this.entries[pos:])
			this.entries[pos] = Freelist_entry{Block_id: u.block_id, Snapshot_id: u.old_snapshot}
		default:
			var pos = this.find(u.block_id)
			this.entries[pos].Snapshot_id = u.old_snapshot
		}
	}
	if int(point) < len(this.undo_list) {
		this.undo_list = this.undo_list[:point]
	}
	this.keep_undo = was_keeping
}

func (this *Freelist) Clone() (tools.Ret, *Freelist) {
	/* same entries, same capacity, charged to the allocator like any other growth. */
	var c = New_freelist(this.log, this.alloc)
	if cap(this.entries) > 0 {
		var ret = this.alloc.Grow(0, uint64(cap(this.entries))*freelist_entry_size)
		if ret != nil {
			return ret, nil
		}
		c.entries = make([]Freelist_entry, len(this.entries), cap(this.entries))
		copy(c.entries, this.entries)
	}
	return nil, c
}

func (this *Freelist) Reset() {
	/* empty, and give the memory back. not just truncate. */
	this.alloc.Release(uint64(cap(this.entries)) * freelist_entry_size)
	this.entries = nil
	this.release_undo()
}

/* serialized form, little endian words:
   count, then for each entry block_id, snapshot high word, snapshot low word. */

func (this *Freelist) Serialized_size() uint32 {
	return 4 + uint32(len(this.entries))*12
}

func (this *Freelist) Serialize() (tools.Ret, *[]byte) {
	var size = this.Serialized_size()
	var ret = this.alloc.Grow(0, uint64(size))
	if ret != nil {
		return ret, nil
	}
	defer this.alloc.Release(uint64(size))

	var bret = make([]byte, size)
	binary.LittleEndian.PutUint32(bret[0:], uint32(len(this.entries)))
	var pos uint32 = 4
	for _, e := range this.entries {
		binary.LittleEndian.PutUint32(bret[pos:], e.Block_id)
		binary.LittleEndian.PutUint32(bret[pos+4:], uint32(uint64(e.Snapshot_id)>>32))
		binary.LittleEndian.PutUint32(bret[pos+8:], uint32(uint64(e.Snapshot_id)))
		pos += 12
	}
	return nil, &bret
}

func (this *Freelist) Deserialize(bs *[]byte) tools.Ret {
	/* replaces whatever is in here. the incoming list is validated for order as we go,
	   we don't trust anything we read off disk. */
	if bs == nil || len(*bs) < 4 {
		return tools.ErrorWithCode(this.log, lsm_txn_lib.LSM_TXN_ERROR_CORRUPT, "freelist blob too short")
	}
	var data = *bs
	var count = binary.LittleEndian.Uint32(data[0:])
	if uint64(len(data)) != 4+uint64(count)*12 {
		return tools.ErrorWithCode(this.log, lsm_txn_lib.LSM_TXN_ERROR_CORRUPT,
			"freelist blob length ", len(data), " does not match entry count ", count)
	}
	var capacity = uint64(count)
	if capacity < uint64(FREELIST_MIN_CAPACITY) {
		capacity = uint64(FREELIST_MIN_CAPACITY)
	}
	var ret = this.alloc.Grow(0, capacity*freelist_entry_size)
	if ret != nil {
		return ret
	}
	var entries = make([]Freelist_entry, count, capacity)
	var pos uint32 = 4
	for lp := uint32(0); lp < count; lp++ {
		entries[lp].Block_id = binary.LittleEndian.Uint32(data[pos:])
		var hi = uint64(binary.LittleEndian.Uint32(data[pos+4:]))
		var lo = uint64(binary.LittleEndian.Uint32(data[pos+8:]))
		entries[lp].Snapshot_id = int64(hi<<32 | lo)
		if lp > 0 && entries[lp-1].Block_id >= entries[lp].Block_id {
			this.alloc.Release(capacity * freelist_entry_size)
			return tools.ErrorWithCode(this.log, lsm_txn_lib.LSM_TXN_ERROR_CORRUPT,
				"freelist blob out of order at entry ", lp)
		}
		pos += 12
	}
	this.alloc.Release(uint64(cap(this.entries)) * freelist_entry_size)
	this.entries = entries
	this.undo_list = this.undo_list[:0]
	return nil
}

func (this *Freelist) Dump() string {
	var out string = "freelist count: " + tools.Uint32tostring(this.Count()) +
		" capacity: " + tools.Uint32tostring(this.Capacity()) + "\n"
	for _, e := range this.entries {
		out += "  " + tools.Uint32tostring(e.Block_id) + " -> " + tools.Inttostring(int(e.Snapshot_id)) + "\n"
	}
	return out
}
