// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

package lsm_txn_interfaces

import (
	"github.com/nixomose/lsm_txn/lsm_txn_lib/lsm_txn_freelist"
	"github.com/nixomose/lsm_txn/lsm_txn_lib/lsm_txn_src"
	"github.com/nixomose/nixomosegotools/tools"
)

type Lsm_txn_interface interface {

	/* 10/9/2026 this is what a database handle looks like from the outside.
	   the collaborators (tree, log, worker, allocator, checkpoint store) have their own interfaces
		 in lsm_txn_lib, this is the one the driver and anybody embedding the thing talks to. */

	Startup(force bool) tools.Ret

	Shutdown() tools.Ret

	Get_logger() *tools.Nixomosetools_logger

	Get_n_trans_open() int32

	Open_nested() (tools.Ret, lsm_txn_src.Transaction_mark)

	Begin(level int32) tools.Ret

	Rollback(target_level int32) tools.Ret

	Commit(level int32) tools.Ret

	Put(key []byte, value []byte) tools.Ret

	Delete(key []byte) tools.Ret

	Active_freelist_target() lsm_txn_freelist.Freelist_target

	Freelist_append(target lsm_txn_freelist.Freelist_target, block_id uint32, snapshot_id int64) tools.Ret

	Freelist_free(block_id uint32) tools.Ret

	Freelist_alloc() (tools.Ret, uint32, bool)

	Client_snapshot() *lsm_txn_src.Client_snapshot

	Checkpoint(max_levels uint32) tools.Ret

	Checkpoint_synced() (ret tools.Ret, checkpoint_id uint64, log_offset int64)

	Load_checkpoint() (tools.Ret, bool)

	Integrity_check() tools.Ret
}

// verify that the controller is a database handle
var _ Lsm_txn_interface = &lsm_txn_src.Lsm_txn{}
var _ Lsm_txn_interface = (*lsm_txn_src.Lsm_txn)(nil)
