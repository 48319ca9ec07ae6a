// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

package lsm_txn_freelist

import (
	lsm_txn_lib "github.com/nixomose/lsm_txn/lsm_txn_lib/lsm_txn_interfaces"
	"github.com/nixomose/nixomosegotools/tools"
)

/* every database handle has two free lists. the live one is what's committed and what readers see.
   the working one only exists while a write transaction is open, it starts as a copy of live and
	 all the freeing and reallocating inside the transaction happens to it. commit makes it the live one,
	 rollback throws it away. there is no flag on the handle saying which one you mean, you say which
	 one every time. */

type Freelist_target int

const (
	FREELIST_TARGET_LIVE Freelist_target = iota
	FREELIST_TARGET_WORKING
)

func (this Freelist_target) String() string {
	if this == FREELIST_TARGET_WORKING {
		return "working"
	}
	return "live"
}

type Freelist_set struct {
	log   *tools.Nixomosetools_logger
	alloc lsm_txn_lib.Allocator_interface

	live    *Freelist
	working *Freelist
	/* the working list is only valid between Begin_working and Promote/Discard. */
	working_valid bool
}

func New_freelist_set(l *tools.Nixomosetools_logger, alloc lsm_txn_lib.Allocator_interface) *Freelist_set {
	var s Freelist_set
	s.log = l
	s.alloc = alloc
	s.live = New_freelist(l, alloc)
	s.working = New_freelist(l, alloc)
	return &s
}

func (this *Freelist_set) Get(target Freelist_target) (tools.Ret, *Freelist) {
	if target == FREELIST_TARGET_WORKING {
		if this.working_valid == false {
			return tools.ErrorWithCode(this.log, lsm_txn_lib.LSM_TXN_ERROR_MISUSE,
				"working freelist requested with no write transaction open"), nil
		}
		return nil, this.working
	}
	return nil, this.live
}

func (this *Freelist_set) Live() *Freelist {
	return this.live
}

func (this *Freelist_set) Is_working_valid() bool {
	return this.working_valid
}

func (this *Freelist_set) Append(target Freelist_target, block_id uint32, snapshot_id int64) tools.Ret {
	/* live is what working gets promoted over, so while there is a working list nothing goes
	   into live, it would be gone at the commit. */
	if target == FREELIST_TARGET_LIVE && this.working_valid {
		return tools.ErrorWithCode(this.log, lsm_txn_lib.LSM_TXN_ERROR_MISUSE,
			"can not append block ", block_id, " to the live freelist while the working one is in use")
	}
	var ret, f = this.Get(target)
	if ret != nil {
		return ret
	}
	return f.Append(block_id, snapshot_id)
}

func (this *Freelist_set) Begin_working() tools.Ret {
	/* start of the outermost write transaction. working becomes a copy of live and starts
	   keeping an undo journal so savepoints can roll it back. */
	if this.working_valid {
		return tools.ErrorWithCode(this.log, lsm_txn_lib.LSM_TXN_ERROR_MISUSE,
			"working freelist already in use")
	}
	var ret, c = this.live.Clone()
	if ret != nil {
		return ret
	}
	this.working.Reset()
	this.working = c
	this.working.Set_keep_undo(true)
	this.working_valid = true
	return nil
}

func (this *Freelist_set) Promote() {
	/* commit: working is the new live. the old live goes back to the allocator and working
	   starts over empty. */
	if this.working_valid == false {
		return
	}
	this.working.Set_keep_undo(false)
	this.live.Reset()
	this.live = this.working
	this.working = New_freelist(this.log, this.alloc)
	this.working_valid = false
	this.log.Debug("promoted working freelist to live, ", this.live.Count(), " entries")
}

func (this *Freelist_set) Discard() {
	/* rollback to the outermost level. reset, not truncate. */
	if this.working_valid == false {
		return
	}
	this.working.Reset()
	this.working.Set_keep_undo(false)
	this.working_valid = false
	this.log.Debug("discarded working freelist")
}

func (this *Freelist_set) Undo_point() uint32 {
	if this.working_valid == false {
		return 0
	}
	return this.working.Undo_point()
}

func (this *Freelist_set) Undo_to(point uint32) {
	if this.working_valid == false {
		return
	}
	this.working.Undo_to(point)
}

func (this *Freelist_set) Replace_live(f *Freelist) {
	// used on recovery, when live comes off the checkpoint.
	this.live.Reset()
	this.live = f
}
