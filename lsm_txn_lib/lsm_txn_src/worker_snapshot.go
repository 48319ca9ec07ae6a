// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

package lsm_txn_src

import (
	"sync"

	"github.com/benbjohnson/immutable"
	lsm_txn_lib "github.com/nixomose/lsm_txn/lsm_txn_lib/lsm_txn_interfaces"
	"github.com/nixomose/lsm_txn/lsm_txn_lib/lsm_txn_level"
	"github.com/nixomose/nixomosegotools/tools"
	"github.com/tidwall/btree"
)

/* the worker snapshot is the reader side of the database.
   it owns the level chain, and it hands out client snapshots, which are an immutable copy of the
	 committed free list and the level ids as of the last commit. a reader holds on to one for as
	 long as it likes, the writer carries on underneath it.

	 every client snapshot that's out there is registered by its snapshot id, the oldest one is what
	 decides which freed blocks can be handed out again.

	 the level chain is only changed under the write side of live_lock, the checkpoint encoder walks it
	 under the read side. */

type Client_snapshot struct {
	Snapshot_id int64
	Freelist    *immutable.SortedMap[uint32, int64]
	Levels      *immutable.List[uint32]

	worker   *Worker_snapshot
	released bool
}

func (this *Client_snapshot) Release() {
	if this.released {
		return
	}
	this.released = true
	this.worker.Release_reader(this.Snapshot_id)
}

type Worker_snapshot struct {
	log *tools.Nixomosetools_logger

	live_lock sync.RWMutex
	levels    *lsm_txn_level.Level_arena
	level_age uint32

	snapshot_lock sync.Mutex
	freelist_view *immutable.SortedMap[uint32, int64]
	txn_id        int64
	cached        *Client_snapshot // nil means build a new one next time somebody asks
	readers       btree.Set[int64]
	reader_counts map[int64]uint32
	release_count uint64
}

// verify that worker_snapshot implements the interface
var _ lsm_txn_lib.Worker_snapshot_interface = &Worker_snapshot{}
var _ lsm_txn_lib.Worker_snapshot_interface = (*Worker_snapshot)(nil)

func New_worker_snapshot(l *tools.Nixomosetools_logger) *Worker_snapshot {
	var w Worker_snapshot
	w.log = l
	w.levels = lsm_txn_level.New_level_arena(l)
	w.freelist_view = immutable.NewSortedMap[uint32, int64](nil)
	w.reader_counts = make(map[int64]uint32)
	return &w
}

func (this *Worker_snapshot) Get_logger() *tools.Nixomosetools_logger {
	return this.log
}

func (this *Worker_snapshot) Current_level_chain_head() lsm_txn_lib.Level_ref {
	return this.levels.Head()
}

func (this *Worker_snapshot) Read_lock() {
	this.live_lock.RLock()
}

func (this *Worker_snapshot) Read_unlock() {
	this.live_lock.RUnlock()
}

func (this *Worker_snapshot) Push_level(level_id uint32) {
	this.live_lock.Lock()
	this.level_age++
	this.levels.Push_level(level_id, this.level_age)
	this.live_lock.Unlock()
	// not under live_lock, Client_snapshot takes them the other way round.
	this.Release_client_snapshot()
	this.log.Debug("pushed level ", level_id, " onto the level chain")
}

func (this *Worker_snapshot) Remove_level(level_id uint32) tools.Ret {
	this.live_lock.Lock()
	var ret = this.levels.Remove_level(level_id)
	this.live_lock.Unlock()
	if ret != nil {
		return ret
	}
	this.Release_client_snapshot()
	return nil
}

func (this *Worker_snapshot) Restore_level_chain(level_ids []uint32) {
	/* level_ids is newest first, so push them oldest first. */
	this.live_lock.Lock()
	this.levels = lsm_txn_level.New_level_arena(this.log)
	this.level_age = 0
	for lp := len(level_ids) - 1; lp >= 0; lp-- {
		this.level_age++
		this.levels.Push_level(level_ids[lp], this.level_age)
	}
	this.live_lock.Unlock()
	this.Release_client_snapshot()
}

func (this *Worker_snapshot) Level_ids() []uint32 {
	this.live_lock.RLock()
	defer this.live_lock.RUnlock()
	return this.levels.Level_ids()
}

func (this *Worker_snapshot) Publish_freelist(view *immutable.SortedMap[uint32, int64], txn_id int64) {
	this.snapshot_lock.Lock()
	defer this.snapshot_lock.Unlock()
	this.freelist_view = view
	this.txn_id = txn_id
	this.cached = nil
}

func (this *Worker_snapshot) Release_client_snapshot() {
	/* drop the cached one, the next reader gets a fresh one. readers already holding the old one
	   keep it, and stay registered until they let go. */
	this.snapshot_lock.Lock()
	defer this.snapshot_lock.Unlock()
	this.cached = nil
	this.release_count++
}

func (this *Worker_snapshot) Get_release_count() uint64 {
	this.snapshot_lock.Lock()
	defer this.snapshot_lock.Unlock()
	return this.release_count
}

func (this *Worker_snapshot) Client_snapshot() *Client_snapshot {
	this.snapshot_lock.Lock()
	defer this.snapshot_lock.Unlock()

	if this.cached == nil {
		var c Client_snapshot
		c.Snapshot_id = this.txn_id
		c.Freelist = this.freelist_view
		this.live_lock.RLock()
		c.Levels = immutable.NewList[uint32](this.levels.Level_ids()...)
		this.live_lock.RUnlock()
		this.cached = &c
	}
	// everybody shares the immutable parts, but each reader gets its own handle to release.
	var out = Client_snapshot{Snapshot_id: this.cached.Snapshot_id, Freelist: this.cached.Freelist,
		Levels: this.cached.Levels, worker: this}

	this.reader_counts[out.Snapshot_id]++
	this.readers.Insert(out.Snapshot_id)
	return &out
}

func (this *Worker_snapshot) Release_reader(snapshot_id int64) {
	this.snapshot_lock.Lock()
	defer this.snapshot_lock.Unlock()
	var count, ok = this.reader_counts[snapshot_id]
	if ok == false {
		this.log.Error("release of reader at snapshot ", snapshot_id, " that was never registered")
		return
	}
	if count > 1 {
		this.reader_counts[snapshot_id] = count - 1
		return
	}
	delete(this.reader_counts, snapshot_id)
	this.readers.Delete(snapshot_id)
}

func (this *Worker_snapshot) Oldest_reader() int64 {
	this.snapshot_lock.Lock()
	defer this.snapshot_lock.Unlock()
	var oldest int64 = -1
	this.readers.Scan(func(snapshot_id int64) bool {
		oldest = snapshot_id
		return false
	})
	return oldest
}

func (this *Worker_snapshot) Reader_count() int {
	this.snapshot_lock.Lock()
	defer this.snapshot_lock.Unlock()
	return this.readers.Len()
}
