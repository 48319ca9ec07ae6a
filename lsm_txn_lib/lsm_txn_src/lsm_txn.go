// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

// package name must match directory name
package lsm_txn_src

/* this is the transaction controller, one per database handle.

   a write transaction is opened by the first level of nesting and closed when the last one goes away.
	 every level pushes a mark, which is where the tree, the log and the working free list were when
	 that level opened. the mark for level n lives at transaction_stack[n-1].

	 rollback(n) takes everything back to where it was when level n opened and leaves level n open
	 and empty. rollback(0) throws the whole write transaction away. rollback of a level that isn't
	 open does nothing.
	 commit(n) folds everything above level n into level n, commit(0) commits the write transaction.

	 the free list everybody sees is live, the one the write transaction changes is working. you say
	 which one every time, Active_freelist_target tells you which one is in play.

	 if the tree or the log fails during a rollback we return the error and leave n_trans_open alone,
	 rolling the tree and log back to the same mark twice is harmless so you can try again. */

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/benbjohnson/immutable"
	"github.com/nixomose/lsm_txn/lsm_txn_lib/lsm_txn_freelist"
	lsm_txn_lib "github.com/nixomose/lsm_txn/lsm_txn_lib/lsm_txn_interfaces"
	"github.com/nixomose/lsm_txn/lsm_txn_lib/lsm_txn_level"
	"github.com/nixomose/nixomosegotools/tools"
	"golang.org/x/sync/errgroup"
)

type Transaction_mark struct {
	Tree_rollback_point lsm_txn_lib.Tree_mark
	Log_rollback_point  lsm_txn_lib.Log_mark
	Freelist_undo_point uint32
}

const transaction_mark_size uint64 = 40

const TRANSACTION_STACK_MIN_CAPACITY uint32 = 4

const (
	LSM_TXN_OP_PUT    uint8 = 0x01
	LSM_TXN_OP_DELETE uint8 = 0x02
)

/* the worker the controller needs. it's the collaborator's interface plus the bits the controller
   uses to flush the old tree into a level and hand snapshots to readers. */
type Worker_interface interface {
	lsm_txn_lib.Worker_snapshot_interface

	Push_level(level_id uint32)

	Level_ids() []uint32

	Client_snapshot() *Client_snapshot
}

/* trees that keep an old tree around for flushing say so with this. */
type Old_tree_interface interface {
	Has_old() bool

	Discard_old() uint64
}

type Lsm_txn struct {
	interface_lock sync.Mutex

	log    *tools.Nixomosetools_logger
	config Lsm_txn_config

	m_tree      lsm_txn_lib.Tree_interface
	m_log       lsm_txn_lib.Transaction_log_interface
	m_worker    Worker_interface
	m_alloc     lsm_txn_lib.Allocator_interface
	m_store     lsm_txn_lib.Checkpoint_store_interface
	m_freelists *lsm_txn_freelist.Freelist_set

	transaction_stack []Transaction_mark // len is always n_trans_open
	n_trans_open      int32
	m_writer          bool // we hold the writer role, between begin_write_trans and finish_write_trans

	m_txn_id        int64 // last committed transaction, the one being written is m_txn_id + 1
	m_checkpoint_id uint64
	m_next_level_id uint32
	m_old_flushed   bool // the old tree is in a level now, discard it at the next write transaction
	m_discard_old   bool
	m_work_pending  bool
	m_started       bool
}

func New_lsm_txn(l *tools.Nixomosetools_logger, config Lsm_txn_config, tree lsm_txn_lib.Tree_interface,
	tlog lsm_txn_lib.Transaction_log_interface, worker Worker_interface,
	alloc lsm_txn_lib.Allocator_interface, store lsm_txn_lib.Checkpoint_store_interface) *Lsm_txn {

	var db Lsm_txn
	db.log = l
	db.config = config
	db.m_tree = tree
	db.m_log = tlog
	db.m_worker = worker
	db.m_alloc = alloc
	db.m_store = store
	db.m_freelists = lsm_txn_freelist.New_freelist_set(l, alloc)
	db.m_next_level_id = 1
	return &db
}

func (this *Lsm_txn) Get_logger() *tools.Nixomosetools_logger {
	return this.log
}

func (this *Lsm_txn) Get_n_trans_open() int32 {
	this.interface_lock.Lock()
	defer this.interface_lock.Unlock()
	return this.n_trans_open
}

func (this *Lsm_txn) Get_txn_id() int64 {
	this.interface_lock.Lock()
	defer this.interface_lock.Unlock()
	return this.m_txn_id
}

func (this *Lsm_txn) Get_checkpoint_id() uint64 {
	this.interface_lock.Lock()
	defer this.interface_lock.Unlock()
	return this.m_checkpoint_id
}

func (this *Lsm_txn) Get_freelists() *lsm_txn_freelist.Freelist_set {
	return this.m_freelists
}

func (this *Lsm_txn) Get_transaction_mark(pos int32) (tools.Ret, Transaction_mark) {
	this.interface_lock.Lock()
	defer this.interface_lock.Unlock()
	if pos < 0 || pos >= this.n_trans_open {
		return tools.ErrorWithCode(this.log, lsm_txn_lib.LSM_TXN_ERROR_MISUSE, "no transaction mark at ", pos,
			", ", this.n_trans_open, " levels open"), Transaction_mark{}
	}
	return nil, this.transaction_stack[pos]
}

func (this *Lsm_txn) Active_freelist_target() lsm_txn_freelist.Freelist_target {
	this.interface_lock.Lock()
	defer this.interface_lock.Unlock()
	return this.active_freelist_target()
}

func (this *Lsm_txn) active_freelist_target() lsm_txn_freelist.Freelist_target {
	if this.n_trans_open > 0 {
		return lsm_txn_freelist.FREELIST_TARGET_WORKING
	}
	return lsm_txn_freelist.FREELIST_TARGET_LIVE
}

func (this *Lsm_txn) Startup(force bool) tools.Ret {
	/* start the store and the log, and come back from whatever the newest good checkpoint is.
	   force means a store with no readable checkpoint is started empty instead of failing. */
	this.interface_lock.Lock()
	defer this.interface_lock.Unlock()

	if this.m_started {
		return tools.Error(this.log, "lsm_txn has already been started up, not starting again")
	}
	var ret = this.m_store.Startup(force)
	if ret != nil {
		return ret
	}
	if ret = this.m_log.Startup(force); ret != nil {
		return ret
	}
	var found bool
	ret, found = this.load_checkpoint()
	if ret != nil {
		if force == false || ret.Get_errcode() != lsm_txn_lib.LSM_TXN_ERROR_CORRUPT {
			return ret
		}
		this.log.Info("no usable checkpoint, force starting with an empty database")
		found = false
	}
	if found == false {
		this.publish_freelist()
	}
	this.m_started = true
	return nil
}

func (this *Lsm_txn) Shutdown() tools.Ret {
	/* a write transaction still open at shutdown is rolled back, same as it would be on the next
	   startup anyway. */
	this.interface_lock.Lock()
	defer this.interface_lock.Unlock()

	if this.m_started == false {
		return tools.Error(this.log, "lsm_txn hasn't been started, can't be shut down")
	}
	if this.n_trans_open > 0 {
		this.log.Info("shutting down with ", this.n_trans_open, " transaction levels open, rolling back")
		if ret := this.rollback(0); ret != nil {
			return ret
		}
	}

	var group *errgroup.Group
	group, _ = errgroup.WithContext(context.Background())
	group.Go(func() error {
		var ret tools.Ret
		if ret = this.m_log.Shutdown(); ret != nil {
			return ret
		}
		return nil
	})
	group.Go(func() error {
		var ret tools.Ret
		if ret = this.m_store.Shutdown(); ret != nil {
			return ret
		}
		return nil
	})
	var err = group.Wait()

	this.m_alloc.Release(uint64(cap(this.transaction_stack)) * transaction_mark_size)
	this.transaction_stack = nil
	this.m_started = false
	if err != nil {
		return tools.ErrorWithCode(this.log, lsm_txn_lib.LSM_TXN_ERROR_IO, "unable to shut down lsm_txn, err: ", err)
	}
	return nil
}

func (this *Lsm_txn) grow_transaction_stack() tools.Ret {
	var old_capacity = uint64(cap(this.transaction_stack))
	var new_capacity = old_capacity * 2
	if new_capacity < uint64(TRANSACTION_STACK_MIN_CAPACITY) {
		new_capacity = uint64(TRANSACTION_STACK_MIN_CAPACITY)
	}
	var ret = this.m_alloc.Grow(old_capacity*transaction_mark_size, new_capacity*transaction_mark_size)
	if ret != nil {
		return ret
	}
	var grown = make([]Transaction_mark, len(this.transaction_stack), new_capacity)
	copy(grown, this.transaction_stack)
	this.transaction_stack = grown
	return nil
}

func (this *Lsm_txn) begin_write_trans() tools.Ret {
	/* take the writer role, start the log transaction and make the working free list. */
	if this.m_writer {
		return tools.ErrorWithCode(this.log, lsm_txn_lib.LSM_TXN_ERROR_MISUSE, "write transaction already open")
	}
	if this.m_old_flushed {
		if old, ok := this.m_tree.(Old_tree_interface); ok && old.Has_old() {
			var released = old.Discard_old()
			this.log.Debug("discarded flushed old tree, ", released, " bytes")
		}
		this.m_old_flushed = false
		this.m_discard_old = true
	}
	var ret = this.m_freelists.Begin_working()
	if ret != nil {
		return ret
	}
	if ret = this.m_log.Begin(); ret != nil {
		this.m_freelists.Discard()
		return ret
	}
	this.m_writer = true
	this.log.Debug("began write transaction ", this.m_txn_id+1)
	return nil
}

func (this *Lsm_txn) finish_write_trans(commit bool) tools.Ret {
	/* end the log transaction, and if the tree has got too big make it old so it gets flushed.
	   then the free lists: commit promotes working to live, anything else throws working away. */
	var flush bool = false
	var ret = this.m_log.End(commit)
	if ret != nil {
		if commit == false {
			return ret // nothing has been touched, the caller can try again
		}
		/* the commit record didn't make it, so none of this transaction happened. */
		if len(this.transaction_stack) > 0 {
			if r := this.m_tree.Rollback_to(this.transaction_stack[0].Tree_rollback_point); r != nil {
				this.log.Error("unable to roll back tree after failed commit: ", r.Get_errmsg())
			}
		}
		if r := this.m_log.End(false); r != nil {
			this.log.Error("unable to end log after failed commit: ", r.Get_errmsg())
		}
		commit = false
	}
	if ret == nil && commit && this.m_tree.Size() > this.config.Tree_size_limit {
		flush = true
		this.m_tree.Make_old()
	}
	this.m_tree.End_transaction(commit)

	if commit {
		this.m_freelists.Promote()
		this.m_txn_id++
		this.publish_freelist()
	} else {
		this.m_freelists.Discard()
	}

	if ret == nil {
		if flush && this.config.Auto_work {
			this.flush_old()
		} else if commit && this.m_discard_old {
			this.m_worker.Release_client_snapshot()
		}
	}
	this.m_discard_old = false
	this.m_writer = false
	if flush && this.config.Auto_work == false && this.config.Work_hook != nil {
		this.m_work_pending = true
	}
	this.log.Debug("finished write transaction, commit: ", commit)
	return ret
}

func (this *Lsm_txn) take_work_hook() func(db *Lsm_txn) {
	if this.m_work_pending == false {
		return nil
	}
	this.m_work_pending = false
	return this.config.Work_hook
}

func (this *Lsm_txn) flush_old() {
	/* pretend to write the old tree out to a new level. the level goes on the front of the chain,
	   the old tree itself hangs around until the next write transaction discards it. */
	if old, ok := this.m_tree.(Old_tree_interface); ok && old.Has_old() == false {
		return
	}
	var level_id = this.m_next_level_id
	this.m_next_level_id++
	this.m_worker.Push_level(level_id)
	this.m_old_flushed = true
	this.log.Debug("flushed old tree to level ", level_id)
}

func (this *Lsm_txn) Flush_old() {
	// for the work hook, when Auto_work is off.
	this.interface_lock.Lock()
	defer this.interface_lock.Unlock()
	this.flush_old()
}

func (this *Lsm_txn) publish_freelist() {
	var builder = immutable.NewSortedMapBuilder[uint32, int64](nil)
	this.m_freelists.Live().Walk(false, func(e lsm_txn_freelist.Freelist_entry) bool {
		builder.Set(e.Block_id, e.Snapshot_id)
		return true
	})
	this.m_worker.Publish_freelist(builder.Map(), this.m_txn_id)
}

func (this *Lsm_txn) Open_nested() (tools.Ret, Transaction_mark) {
	this.interface_lock.Lock()
	defer this.interface_lock.Unlock()
	return this.open_nested()
}

func (this *Lsm_txn) open_nested() (tools.Ret, Transaction_mark) {
	/* room on the stack first, so that running out of memory doesn't leave a write transaction
	   open that nobody has a level in. */
	if int(this.n_trans_open) == cap(this.transaction_stack) {
		if ret := this.grow_transaction_stack(); ret != nil {
			return ret, Transaction_mark{}
		}
	}
	if this.n_trans_open == 0 {
		if ret := this.begin_write_trans(); ret != nil {
			return ret, Transaction_mark{}
		}
	}
	var mark = Transaction_mark{
		Tree_rollback_point: this.m_tree.Mark(),
		Log_rollback_point:  this.m_log.Mark(),
		Freelist_undo_point: this.m_freelists.Undo_point(),
	}
	this.transaction_stack = append(this.transaction_stack[:this.n_trans_open], mark)
	this.n_trans_open++
	this.log.Debug("opened transaction level ", this.n_trans_open)
	return nil, mark
}

func (this *Lsm_txn) Begin(level int32) tools.Ret {
	/* open levels until there are level of them. less than zero means one more. */
	this.interface_lock.Lock()
	defer this.interface_lock.Unlock()
	if level < 0 {
		level = this.n_trans_open + 1
	}
	for this.n_trans_open < level {
		if ret, _ := this.open_nested(); ret != nil {
			return ret
		}
	}
	return nil
}

func (this *Lsm_txn) Rollback(target_level int32) tools.Ret {
	this.interface_lock.Lock()
	var ret = this.rollback(target_level)
	this.interface_lock.Unlock()
	return ret
}

func (this *Lsm_txn) rollback(target_level int32) tools.Ret {
	if this.n_trans_open == 0 {
		return nil
	}
	var level = target_level
	if target_level < 0 {
		level = this.n_trans_open - 1
	}
	if level >= this.n_trans_open {
		return nil
	}

	var mark Transaction_mark
	if level == 0 {
		mark = this.transaction_stack[0]
	} else {
		mark = this.transaction_stack[level-1]
	}
	var ret = this.m_tree.Rollback_to(mark.Tree_rollback_point)
	if ret != nil {
		return ret
	}
	if level > 0 {
		if ret = this.m_log.Seek_to(mark.Log_rollback_point); ret != nil {
			return ret
		}
		this.m_freelists.Undo_to(mark.Freelist_undo_point)
		this.n_trans_open = level
		this.transaction_stack = this.transaction_stack[:level]
	} else {
		this.m_freelists.Undo_to(mark.Freelist_undo_point)
		if ret = this.finish_write_trans(false); ret != nil {
			return ret
		}
		this.n_trans_open = 0
		this.transaction_stack = this.transaction_stack[:0]
	}
	this.m_worker.Release_client_snapshot()
	this.log.Debug("rolled back to transaction level ", level)
	return nil
}

func (this *Lsm_txn) Commit(level int32) tools.Ret {
	this.interface_lock.Lock()
	var ret = this.commit(level)
	var hook = this.take_work_hook()
	this.interface_lock.Unlock()
	if hook != nil {
		hook(this)
	}
	return ret
}

func (this *Lsm_txn) commit(level int32) tools.Ret {
	if level < 0 {
		level = this.n_trans_open - 1
		if level < 0 {
			level = 0
		}
	}
	if level >= this.n_trans_open {
		return nil
	}
	if level == 0 {
		var ret = this.finish_write_trans(true)
		this.n_trans_open = 0
		this.transaction_stack = this.transaction_stack[:0]
		this.m_worker.Release_client_snapshot()
		return ret
	}
	this.n_trans_open = level
	this.transaction_stack = this.transaction_stack[:level]
	this.log.Debug("committed down to transaction level ", level)
	return nil
}

func encode_write_op(op uint8, key []byte, value []byte) []byte {
	var out = make([]byte, 5+len(key)+len(value))
	out[0] = op
	binary.LittleEndian.PutUint32(out[1:], uint32(len(key)))
	copy(out[5:], key)
	copy(out[5+len(key):], value)
	return out
}

func (this *Lsm_txn) write_op(op uint8, key []byte, value []byte) tools.Ret {
	/* log first, then the tree. outside of a transaction this is its own little transaction. */
	var auto_commit = this.n_trans_open == 0
	if auto_commit {
		if ret, _ := this.open_nested(); ret != nil {
			return ret
		}
	}
	var ret = this.m_log.Write_record(encode_write_op(op, key, value))
	if ret == nil {
		if op == LSM_TXN_OP_DELETE {
			ret = this.m_tree.Delete(key)
		} else {
			ret = this.m_tree.Insert(key, value)
		}
	}
	if auto_commit {
		if ret == nil {
			return this.commit(0)
		}
		if r := this.rollback(0); r != nil {
			this.log.Error("unable to roll back failed write: ", r.Get_errmsg())
		}
	}
	return ret
}

func (this *Lsm_txn) Put(key []byte, value []byte) tools.Ret {
	this.interface_lock.Lock()
	var ret = this.write_op(LSM_TXN_OP_PUT, key, value)
	var hook = this.take_work_hook()
	this.interface_lock.Unlock()
	if hook != nil {
		hook(this)
	}
	return ret
}

func (this *Lsm_txn) Delete(key []byte) tools.Ret {
	this.interface_lock.Lock()
	var ret = this.write_op(LSM_TXN_OP_DELETE, key, nil)
	var hook = this.take_work_hook()
	this.interface_lock.Unlock()
	if hook != nil {
		hook(this)
	}
	return ret
}

func (this *Lsm_txn) Freelist_append(target lsm_txn_freelist.Freelist_target, block_id uint32,
	snapshot_id int64) tools.Ret {
	this.interface_lock.Lock()
	defer this.interface_lock.Unlock()
	if target != this.active_freelist_target() {
		return tools.ErrorWithCode(this.log, lsm_txn_lib.LSM_TXN_ERROR_MISUSE, "can not append block ", block_id,
			" to the ", target.String(), " freelist, the ", this.active_freelist_target().String(), " one is in play")
	}
	var ret = this.m_freelists.Append(target, block_id, snapshot_id)
	if ret == nil && target == lsm_txn_freelist.FREELIST_TARGET_LIVE {
		this.publish_freelist()
	}
	return ret
}

func (this *Lsm_txn) Freelist_free(block_id uint32) tools.Ret {
	/* a block stopped being used by the transaction being written now. readers older than that can
	   still see it. */
	this.interface_lock.Lock()
	defer this.interface_lock.Unlock()
	if block_id >= this.config.Total_blocks {
		return tools.Error(this.log, "can not free block ", block_id, ", the store only has ", this.config.Total_blocks)
	}
	var target = this.active_freelist_target()
	var ret = this.m_freelists.Append(target, block_id, this.m_txn_id+1)
	if ret == nil && target == lsm_txn_freelist.FREELIST_TARGET_LIVE {
		this.publish_freelist()
	}
	return ret
}

func (this *Lsm_txn) Freelist_alloc() (tools.Ret, uint32, bool) {
	/* hand out a free block nobody can still be reading, if there is one. */
	this.interface_lock.Lock()
	defer this.interface_lock.Unlock()
	var target = this.active_freelist_target()
	var ret, f = this.m_freelists.Get(target)
	if ret != nil {
		return ret, 0, false
	}
	var block_id uint32
	var ok bool
	if ret, block_id, ok = f.Take_reusable(this.newest_reusable()); ret != nil {
		return ret, 0, false
	}
	if ok && target == lsm_txn_freelist.FREELIST_TARGET_LIVE {
		this.publish_freelist()
	}
	return nil, block_id, ok
}

func (this *Lsm_txn) newest_reusable() int64 {
	/* a block freed at N is still in every version before N. the last committed version is what
	   a rollback or the next recovery goes back to, and each reader has its own, so the block can
	   go once the older of those two is N or later. the transaction being written (m_txn_id + 1)
	   never counts. */
	var newest = this.m_txn_id
	var oldest_reader = this.m_worker.Oldest_reader()
	if oldest_reader != -1 && oldest_reader < newest {
		newest = oldest_reader
	}
	return newest
}

func (this *Lsm_txn) Client_snapshot() *Client_snapshot {
	return this.m_worker.Client_snapshot()
}

func (this *Lsm_txn) Checkpoint(max_levels uint32) tools.Ret {
	/* write the level chain and the live free list to the meta page we didn't use last time,
	   and sync that and the log at the same time. */
	this.interface_lock.Lock()
	defer this.interface_lock.Unlock()

	if this.n_trans_open > 0 {
		return tools.ErrorWithCode(this.log, lsm_txn_lib.LSM_TXN_ERROR_MISUSE,
			"can not checkpoint with ", this.n_trans_open, " transaction levels open")
	}

	this.m_worker.Read_lock()
	var ret, level_blob = lsm_txn_level.Encode(this.log, this.m_alloc, this.m_worker.Current_level_chain_head(),
		max_levels)
	this.m_worker.Read_unlock()
	if ret != nil {
		return ret
	}
	var freelist_blob *[]byte
	if ret, freelist_blob = this.m_freelists.Live().Serialize(); ret != nil {
		return ret
	}

	var header Checkpoint_header
	header.M_checkpoint_id = this.m_checkpoint_id + 1
	header.M_txn_id = this.m_txn_id
	header.M_log_offset = this.m_log.Offset()
	header.M_max_levels = max_levels
	header.M_total_blocks = this.config.Total_blocks
	var page *[]byte
	if ret, page = Serialize_meta_page(this.log, &header, level_blob, *freelist_blob); ret != nil {
		return ret
	}
	var page_num = uint32((header.M_checkpoint_id-1)%uint64(CHECKPOINT_META_PAGE_COUNT)) + 1

	var group *errgroup.Group
	group, _ = errgroup.WithContext(context.Background())
	group.Go(func() error {
		var ret tools.Ret
		if ret = this.m_store.Store_meta_page(page_num, page); ret != nil {
			return ret
		}
		if ret = this.m_store.Sync(); ret != nil {
			return ret
		}
		return nil
	})
	group.Go(func() error {
		var ret tools.Ret
		if ret = this.m_log.Sync(); ret != nil {
			return ret
		}
		return nil
	})
	var err = group.Wait()
	if err != nil {
		if r, ok := err.(tools.Ret); ok {
			return r
		}
		return tools.ErrorWithCode(this.log, lsm_txn_lib.LSM_TXN_ERROR_IO, "unable to write checkpoint ",
			header.M_checkpoint_id, ", err: ", err)
	}
	this.m_checkpoint_id = header.M_checkpoint_id
	this.log.Debug("wrote checkpoint ", header.M_checkpoint_id, " to meta page ", page_num)
	return nil
}

func (this *Lsm_txn) newest_checkpoint() (ret tools.Ret, header *Checkpoint_header, level_blob []byte,
	freelist_blob []byte) {
	/* read both meta pages, the good one with the higher id wins. a page that was never written
	   doesn't count, a page that was written and doesn't verify is corrupt, and if that's all we've
	   got that's the error. */
	var corrupt tools.Ret = nil
	for page_num := uint32(1); page_num <= CHECKPOINT_META_PAGE_COUNT; page_num++ {
		var r, data = this.m_store.Load_meta_page(page_num)
		if r != nil {
			return r, nil, nil, nil
		}
		if data == nil || len(*data) == 0 {
			continue
		}
		var h *Checkpoint_header
		var lb, fb []byte
		if r, h, lb, fb = Deserialize_meta_page(this.log, data); r != nil {
			this.log.Info("meta page ", page_num, " does not verify: ", r.Get_errmsg())
			corrupt = r
			continue
		}
		if header == nil || h.M_checkpoint_id > header.M_checkpoint_id {
			header, level_blob, freelist_blob = h, lb, fb
		}
	}
	if header == nil && corrupt != nil {
		return corrupt, nil, nil, nil
	}
	return nil, header, level_blob, freelist_blob
}

func (this *Lsm_txn) Checkpoint_synced() (ret tools.Ret, checkpoint_id uint64, log_offset int64) {
	/* the id and log offset of the newest checkpoint that's actually in the store. zero if none. */
	this.interface_lock.Lock()
	defer this.interface_lock.Unlock()
	var header *Checkpoint_header
	if ret, header, _, _ = this.newest_checkpoint(); ret != nil {
		return ret, 0, 0
	}
	if header == nil {
		return nil, 0, 0
	}
	return nil, header.M_checkpoint_id, header.M_log_offset
}

func (this *Lsm_txn) Load_checkpoint() (tools.Ret, bool) {
	this.interface_lock.Lock()
	defer this.interface_lock.Unlock()
	if this.n_trans_open > 0 {
		return tools.ErrorWithCode(this.log, lsm_txn_lib.LSM_TXN_ERROR_MISUSE,
			"can not load a checkpoint with a write transaction open"), false
	}
	return this.load_checkpoint()
}

func (this *Lsm_txn) load_checkpoint() (tools.Ret, bool) {
	var ret, header, level_blob, freelist_blob = this.newest_checkpoint()
	if ret != nil {
		return ret, false
	}
	if header == nil {
		this.log.Debug("no checkpoint found, starting empty")
		return nil, false
	}
	var level_ids []uint32
	if ret, level_ids = lsm_txn_level.Decode(this.log, level_blob, header.M_max_levels); ret != nil {
		return ret, false
	}
	var live = lsm_txn_freelist.New_freelist(this.log, this.m_alloc)
	if ret = live.Deserialize(&freelist_blob); ret != nil {
		return ret, false
	}
	if ret = live.Integrity_check(header.M_total_blocks); ret != nil {
		live.Reset()
		return ret, false
	}

	this.m_worker.Restore_level_chain(level_ids)
	this.m_freelists.Replace_live(live)
	this.m_txn_id = header.M_txn_id
	this.m_checkpoint_id = header.M_checkpoint_id
	this.m_next_level_id = 1
	for _, id := range level_ids {
		if id >= this.m_next_level_id {
			this.m_next_level_id = id + 1
		}
	}
	this.publish_freelist()
	this.log.Debug("loaded checkpoint ", header.M_checkpoint_id, " with ", len(level_ids), " levels and ",
		live.Count(), " free blocks")
	return nil, true
}

func (this *Lsm_txn) Integrity_check() tools.Ret {
	this.interface_lock.Lock()
	defer this.interface_lock.Unlock()
	var ret = this.m_freelists.Live().Integrity_check(this.config.Total_blocks)
	if ret != nil {
		return ret
	}
	if this.m_freelists.Is_working_valid() {
		var _, working = this.m_freelists.Get(lsm_txn_freelist.FREELIST_TARGET_WORKING)
		if ret = working.Integrity_check(this.config.Total_blocks); ret != nil {
			return ret
		}
	}
	if this.n_trans_open != int32(len(this.transaction_stack)) {
		return tools.ErrorWithCode(this.log, lsm_txn_lib.LSM_TXN_ERROR_CORRUPT, "transaction stack depth ",
			len(this.transaction_stack), " does not match open levels ", this.n_trans_open)
	}
	return nil
}
