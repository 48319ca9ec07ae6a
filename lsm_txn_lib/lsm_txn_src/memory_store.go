// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

package lsm_txn_src

import (
	"sync"

	lsm_txn_lib "github.com/nixomose/lsm_txn/lsm_txn_lib/lsm_txn_interfaces"
	"github.com/nixomose/nixomosegotools/tools"
)

/* the memory checkpoint store. there are two meta pages, 1 and 2, and checkpoints take turns between them
   so there's always one good one even if we die halfway through writing the other.
	 page zero is where a header would go if this were a file, nobody writes there. */

const CHECKPOINT_META_PAGE_COUNT uint32 = 2

type Memory_store struct {
	log     *tools.Nixomosetools_logger
	lock    sync.Mutex
	started bool
	storage map[uint32][]byte

	sync_count uint32
}

// verify that memory_store implements the checkpoint store
var _ lsm_txn_lib.Checkpoint_store_interface = &Memory_store{}
var _ lsm_txn_lib.Checkpoint_store_interface = (*Memory_store)(nil)

func New_memory_store(l *tools.Nixomosetools_logger) *Memory_store {
	var store Memory_store
	store.log = l
	store.storage = make(map[uint32][]byte)
	return &store
}

func check_meta_page(log *tools.Nixomosetools_logger, page_num uint32) tools.Ret {
	if page_num == 0 || page_num > CHECKPOINT_META_PAGE_COUNT {
		return tools.Error(log, "sanity failure, somebody is trying to use meta page ", page_num,
			", there are only pages 1 to ", CHECKPOINT_META_PAGE_COUNT)
	}
	return nil
}

func (this *Memory_store) Load_meta_page(page_num uint32) (tools.Ret, *[]byte) {
	/* a page that was never written comes back empty, which won't deserialize, which is
	   how the caller finds out there's no checkpoint there. */
	if ret := check_meta_page(this.log, page_num); ret != nil {
		return ret, nil
	}
	this.lock.Lock()
	defer this.lock.Unlock()
	var val, ok = this.storage[page_num]
	if ok == false {
		var r = make([]byte, 0)
		this.log.Debug("loading empty meta page: ", page_num)
		return nil, &r
	}
	var r = append([]byte(nil), val...)
	return nil, &r
}

func (this *Memory_store) Store_meta_page(page_num uint32, data *[]byte) tools.Ret {
	if ret := check_meta_page(this.log, page_num); ret != nil {
		return ret
	}
	this.lock.Lock()
	defer this.lock.Unlock()
	if this.started == false {
		return tools.ErrorWithCode(this.log, lsm_txn_lib.LSM_TXN_ERROR_MISUSE, "memory store hasn't been started")
	}
	this.storage[page_num] = append([]byte(nil), (*data)...)
	this.log.Debug("storing meta page: ", page_num, " with ", len(*data), " bytes of data")
	return nil
}

func (this *Memory_store) Discard_meta_page(page_num uint32) tools.Ret {
	this.lock.Lock()
	defer this.lock.Unlock()
	delete(this.storage, page_num)
	return nil
}

func (this *Memory_store) Startup(force bool) tools.Ret {
	this.lock.Lock()
	defer this.lock.Unlock()
	if this.started != false {
		return tools.Error(this.log, "memory store has already been started up, not starting again")
	}
	/* the pages survive a shutdown and startup of the same object, that's how the tests restart
	   a database without a file. */
	this.started = true
	return nil
}

func (this *Memory_store) Shutdown() tools.Ret {
	this.lock.Lock()
	defer this.lock.Unlock()
	if this.started == false {
		return tools.Error(this.log, "memory store hasn't been started, can't be shut down")
	}
	this.started = false
	return nil
}

func (this *Memory_store) Sync() tools.Ret {
	this.lock.Lock()
	defer this.lock.Unlock()
	this.sync_count++
	return nil
}

func (this *Memory_store) Get_sync_count() uint32 {
	this.lock.Lock()
	defer this.lock.Unlock()
	return this.sync_count
}

func (this *Memory_store) Wipe() tools.Ret {
	this.lock.Lock()
	defer this.lock.Unlock()
	for k := range this.storage {
		delete(this.storage, k)
	}
	return nil
}
