// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

// Package lsm_txn_lib ... has a comment
package lsm_txn_lib

import (
	"github.com/benbjohnson/immutable"
	"github.com/nixomose/nixomosegotools/tools"
)

/* these are the things the transaction core calls into but does not own.
   the in-memory tree, the log (see tlog_interface.go), the worker snapshot that owns the level chain,
	 the allocator that decides if we get more memory and the place checkpoints get written to.
	 there are memory implementations of all of them in lsm_txn_src and a file log in tlog. */

// the tree mark is opaque to everybody but the tree that made it.
type Tree_mark struct {
	Position   uint64
	Generation uint64
}

type Tree_interface interface {
	Insert(key []byte, value []byte) tools.Ret

	Delete(key []byte) tools.Ret

	Mark() Tree_mark

	Rollback_to(mark Tree_mark) tools.Ret

	End_transaction(commit bool)

	Size() uint64

	Make_old()
}

/* LEVEL_NONE is the next link of the last level in a chain, and the head of an empty chain. */
const LEVEL_NONE int32 = -1

/* the level chain used to be a pile of pointers, now it's anything that can tell you the id of a level
at an index and the index of the next one. the arena in lsm_txn_level is the one we actually use. */
type Level_chain_interface interface {
	Level_id(index int32) uint32

	Next(index int32) int32
}

type Level_ref struct {
	Chain Level_chain_interface
	Index int32
}

func (this Level_ref) Is_end() bool {
	return this.Chain == nil || this.Index == LEVEL_NONE
}

type Worker_snapshot_interface interface {
	Current_level_chain_head() Level_ref

	Release_client_snapshot()

	/* the level chain can't change between Read_lock and Read_unlock, that's what the
	checkpoint encoder walks it under. */
	Read_lock()

	Read_unlock()

	/* the snapshot id of the oldest reader still holding a client snapshot, -1 if there isn't one. */
	Oldest_reader() int64

	/* hand the committed free list to the readers. txn_id is the transaction that made it. */
	Publish_freelist(view *immutable.SortedMap[uint32, int64], txn_id int64)

	/* recovery puts the level chain back the way the checkpoint had it, ids newest first. */
	Restore_level_chain(level_ids []uint32)
}

type Allocator_interface interface {
	/* account for growing a buffer from old_size to new_size bytes. if this returns non-nil
	   the caller must not touch its existing buffer. */
	Grow(old_size uint64, new_size uint64) tools.Ret

	Release(size uint64)
}

type Checkpoint_store_interface interface {
	Startup(force bool) tools.Ret

	Shutdown() tools.Ret

	Load_meta_page(page_num uint32) (tools.Ret, *[]byte)

	Store_meta_page(page_num uint32, data *[]byte) tools.Ret

	Sync() tools.Ret
}

type Merge_cursor_interface interface {
	First() tools.Ret

	Next() tools.Ret

	Valid() bool

	Key() []byte

	Value() []byte

	Close()
}
