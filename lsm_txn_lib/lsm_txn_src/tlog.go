// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

/* this is the memory implementation of the transaction log.
   it uses the same record format as the file one in tlog, it just never touches a disk, which is
	 what you want for tests and for a database that doesn't need to survive a restart.
	 begin, write, mark, seek back to a mark, end with or without commit. that's the whole thing. */

// package name must match directory name
package lsm_txn_src

import (
	"sync"

	lsm_txn_lib "github.com/nixomose/lsm_txn/lsm_txn_lib/lsm_txn_interfaces"
	"github.com/nixomose/lsm_txn/tlog"
	"github.com/nixomose/nixomosegotools/tools"
)

type Tlog struct {
	interface_lock sync.Mutex
	log            *tools.Nixomosetools_logger

	m_data             []byte
	m_committed        int64
	m_committed_record uint32
	m_record_count     uint32
	m_in_transaction   bool
	m_started          bool
}

// verify that tlog implements the interface
var _ lsm_txn_lib.Transaction_log_interface = &Tlog{}
var _ lsm_txn_lib.Transaction_log_interface = (*Tlog)(nil)

func New_Tlog(l *tools.Nixomosetools_logger) *Tlog {
	var t Tlog
	t.log = l
	return &t
}

func (this *Tlog) Get_logger() *tools.Nixomosetools_logger {
	return this.log
}

func (this *Tlog) replay(force bool) tools.Ret {
	/* if there's anything after the last commit, drop it. a memory log only has anything in it
	   if it was shut down and started up again on the same object. */
	var committed, records = tlog.Scan_committed(this.m_data)
	if committed < int64(len(this.m_data)) {
		this.log.Debug("memory log replay dropped ", int64(len(this.m_data))-committed, " uncommitted bytes")
	}
	this.m_data = this.m_data[:committed]
	this.m_committed = committed
	this.m_committed_record = records
	this.m_record_count = records
	return nil
}

func (this *Tlog) Startup(force bool) tools.Ret {
	this.interface_lock.Lock()
	defer this.interface_lock.Unlock()
	if this.m_started {
		return tools.Error(this.log, "memory log has already been started up, not starting again")
	}
	this.m_started = true
	return this.replay(force)
}

func (this *Tlog) Shutdown() tools.Ret {
	this.interface_lock.Lock()
	defer this.interface_lock.Unlock()
	if this.m_started == false {
		return tools.Error(this.log, "memory log hasn't been started, can't be shut down")
	}
	this.m_started = false
	this.m_in_transaction = false
	return nil
} // does not write a commit for the transaction in flight.

func (this *Tlog) Begin() tools.Ret {
	this.interface_lock.Lock()
	defer this.interface_lock.Unlock()
	if this.m_in_transaction {
		return tools.ErrorWithCode(this.log, lsm_txn_lib.LSM_TXN_ERROR_MISUSE, "memory log already in a transaction")
	}
	this.m_in_transaction = true
	return nil
}

func (this *Tlog) Write_record(data []byte) tools.Ret {
	this.interface_lock.Lock()
	defer this.interface_lock.Unlock()
	if this.m_in_transaction == false {
		return tools.ErrorWithCode(this.log, lsm_txn_lib.LSM_TXN_ERROR_MISUSE, "log write outside of a transaction")
	}
	this.m_data = append(this.m_data, tlog.Encode_record(tlog.TLOG_RECORD_WRITE, data)...)
	this.m_record_count++
	return nil
}

func (this *Tlog) Mark() lsm_txn_lib.Log_mark {
	this.interface_lock.Lock()
	defer this.interface_lock.Unlock()
	return lsm_txn_lib.Log_mark{Offset: int64(len(this.m_data)), Record_count: this.m_record_count}
}

func (this *Tlog) Seek_to(mark lsm_txn_lib.Log_mark) tools.Ret {
	this.interface_lock.Lock()
	defer this.interface_lock.Unlock()
	if mark.Offset < this.m_committed || mark.Offset > int64(len(this.m_data)) {
		return tools.ErrorWithCode(this.log, lsm_txn_lib.LSM_TXN_ERROR_MISUSE, "log seek to ", mark.Offset,
			" outside of the open transaction ", this.m_committed, " to ", len(this.m_data))
	}
	this.m_data = this.m_data[:mark.Offset]
	this.m_record_count = mark.Record_count
	return nil
}

func (this *Tlog) End(commit bool) tools.Ret {
	this.interface_lock.Lock()
	defer this.interface_lock.Unlock()
	if this.m_in_transaction == false {
		return nil
	}
	if commit {
		this.m_data = append(this.m_data, tlog.Encode_record(tlog.TLOG_RECORD_COMMIT, nil)...)
		this.m_record_count++
		this.m_committed = int64(len(this.m_data))
		this.m_committed_record = this.m_record_count
	} else {
		this.m_data = this.m_data[:this.m_committed]
		this.m_record_count = this.m_committed_record
	}
	this.m_in_transaction = false
	return nil
}

func (this *Tlog) Sync() tools.Ret {
	return nil
}

func (this *Tlog) Offset() int64 {
	this.interface_lock.Lock()
	defer this.interface_lock.Unlock()
	return int64(len(this.m_data))
}

func (this *Tlog) Get_record_count() uint32 {
	this.interface_lock.Lock()
	defer this.interface_lock.Unlock()
	return this.m_record_count
}
