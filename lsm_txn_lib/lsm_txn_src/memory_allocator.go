// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

package lsm_txn_src

import (
	"sync"

	lsm_txn_lib "github.com/nixomose/lsm_txn/lsm_txn_lib/lsm_txn_interfaces"
	"github.com/nixomose/nixomosegotools/tools"
)

/* go doesn't hand us back a null when it runs out of memory, it just dies. so the allocator here is
   a budget. everybody who wants to grow something asks first, and if the answer is no they leave
	 what they have alone. limit of zero means no limit. */

type Memory_allocator struct {
	log  *tools.Nixomosetools_logger
	lock sync.Mutex

	limit  uint64
	in_use uint64
}

// verify that memory_allocator implements the allocator
var _ lsm_txn_lib.Allocator_interface = &Memory_allocator{}
var _ lsm_txn_lib.Allocator_interface = (*Memory_allocator)(nil)

func New_memory_allocator(l *tools.Nixomosetools_logger, limit uint64) *Memory_allocator {
	var a Memory_allocator
	a.log = l
	a.limit = limit
	return &a
}

func (this *Memory_allocator) Grow(old_size uint64, new_size uint64) tools.Ret {
	this.lock.Lock()
	defer this.lock.Unlock()

	if new_size <= old_size {
		this.release_locked(old_size - new_size)
		return nil
	}
	var more = new_size - old_size
	if this.limit != 0 && (more > this.limit || this.in_use > this.limit-more) {
		return tools.ErrorWithCode(this.log, lsm_txn_lib.LSM_TXN_ERROR_NOMEM,
			"out of memory growing from ", old_size, " to ", new_size, " bytes, ", this.in_use,
			" of ", this.limit, " in use")
	}
	this.in_use += more
	return nil
}

func (this *Memory_allocator) Release(size uint64) {
	this.lock.Lock()
	defer this.lock.Unlock()
	this.release_locked(size)
}

func (this *Memory_allocator) release_locked(size uint64) {
	if size > this.in_use {
		// somebody gave back more than they took. not fatal, but somebody's accounting is off.
		this.log.Error("allocator release of ", size, " bytes with only ", this.in_use, " in use")
		this.in_use = 0
		return
	}
	this.in_use -= size
}

func (this *Memory_allocator) In_use() uint64 {
	this.lock.Lock()
	defer this.lock.Unlock()
	return this.in_use
}

func (this *Memory_allocator) Set_limit(limit uint64) {
	this.lock.Lock()
	defer this.lock.Unlock()
	this.limit = limit
}
