// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

package main

import (
	"bytes"
	"math/rand"

	"github.com/nixomose/lsm_txn/lsm_txn_interfaces"
	"github.com/nixomose/lsm_txn/lsm_txn_lib/lsm_txn_freelist"
	"github.com/nixomose/lsm_txn/lsm_txn_lib/lsm_txn_src"
	"github.com/nixomose/nixomosegotools/tools"
)

type lsm_txn_test_lib struct {
	log *tools.Nixomosetools_logger
}

func New_lsm_txn_test_lib(log *tools.Nixomosetools_logger) lsm_txn_test_lib {
	var lsm_test lsm_txn_test_lib
	lsm_test.log = log
	return lsm_test
}

func binstringstart(start int) []byte {
	var out []byte = make([]byte, 256)
	for i := 0; i < 256; i++ {
		out[i] = byte((i + start) % 256)
	}
	return out
}

func key_for(k uint32) []byte {
	return []byte("key" + tools.Uint32tostring(k))
}

func (this *lsm_txn_test_lib) Nested_rollback_tests(db lsm_txn_interfaces.Lsm_txn_interface,
	tree *lsm_txn_src.Memory_tree) tools.Ret {
	/* three levels deep, a write in each, take back the innermost, then everything. */
	var ret tools.Ret
	for level := uint32(1); level <= 3; level++ {
		if ret, _ = db.Open_nested(); ret != nil {
			return ret
		}
		if ret = db.Put(key_for(level), binstringstart(int(level))); ret != nil {
			return ret
		}
		if ret = db.Freelist_free(100 + level); ret != nil {
			return ret
		}
	}
	if db.Get_n_trans_open() != 3 {
		return tools.Error(this.log, "expected 3 levels open, got ", db.Get_n_trans_open())
	}

	// rollback(-1) with 3 open leaves 2 open, and level 2 is empty again.
	if ret = db.Rollback(-1); ret != nil {
		return ret
	}
	if db.Get_n_trans_open() != 2 {
		return tools.Error(this.log, "expected 2 levels open after rollback, got ", db.Get_n_trans_open())
	}
	if _, found, _ := tree.Get(key_for(2)); found {
		return tools.Error(this.log, "level 2 write survived rolling back to level 2")
	}
	if _, found, _ := tree.Get(key_for(1)); found == false {
		return tools.Error(this.log, "level 1 write lost rolling back to level 2")
	}

	// nothing past what's open, nothing happens.
	if ret = db.Rollback(5); ret != nil {
		return ret
	}
	if db.Get_n_trans_open() != 2 {
		return tools.Error(this.log, "rollback of a level that isn't open changed something")
	}

	if ret = db.Rollback(0); ret != nil {
		return ret
	}
	if db.Get_n_trans_open() != 0 {
		return tools.Error(this.log, "expected no levels open after rollback to 0, got ", db.Get_n_trans_open())
	}
	if _, found, _ := tree.Get(key_for(1)); found {
		return tools.Error(this.log, "level 1 write survived a full rollback")
	}
	return nil
}

func (this *lsm_txn_test_lib) Freelist_tests(db lsm_txn_interfaces.Lsm_txn_interface, count int) tools.Ret {
	/* free a pile of random blocks in a transaction, commit, and make sure they all come back out. */
	var ret tools.Ret
	if ret = db.Begin(1); ret != nil {
		return ret
	}
	var freed = make(map[uint32]bool)
	for lp := 0; lp < count; lp++ {
		var block = rand.Uint32() % 1000
		if ret = db.Freelist_free(block); ret != nil {
			return ret
		}
		freed[block] = true
	}
	if db.Active_freelist_target() != lsm_txn_freelist.FREELIST_TARGET_WORKING {
		return tools.Error(this.log, "expected the working freelist while a transaction is open")
	}
	if ret = db.Commit(0); ret != nil {
		return ret
	}
	if ret = db.Integrity_check(); ret != nil {
		return ret
	}

	var snap = db.Client_snapshot()
	if snap.Freelist.Len() != len(freed) {
		snap.Release()
		return tools.Error(this.log, "client snapshot has ", snap.Freelist.Len(), " free blocks, expected ", len(freed))
	}
	snap.Release()

	for len(freed) > 0 {
		var block uint32
		var ok bool
		if ret, block, ok = db.Freelist_alloc(); ret != nil {
			return ret
		}
		if ok == false {
			return tools.Error(this.log, "ran out of free blocks with ", len(freed), " still expected")
		}
		if freed[block] == false {
			return tools.Error(this.log, "got block ", block, " back that was never freed")
		}
		delete(freed, block)
	}
	return nil
}

func (this *lsm_txn_test_lib) Write_and_read_back(db lsm_txn_interfaces.Lsm_txn_interface,
	tree *lsm_txn_src.Memory_tree, count uint32) tools.Ret {
	var ret tools.Ret
	for lp := uint32(0); lp < count; lp++ {
		if ret = db.Put(key_for(lp), binstringstart(int(lp))); ret != nil {
			return ret
		}
	}
	var cursor = lsm_txn_src.New_client_cursor(this.log, lsm_txn_src.New_tree_cursor(this.log, tree))
	defer cursor.Close()
	var seen uint32 = 0
	for ret = cursor.First(); ret == nil && cursor.Valid(); ret = cursor.Next() {
		var value, found, _ = tree.Get(cursor.Key())
		if found == false || bytes.Equal(value, cursor.Value()) == false {
			return tools.Error(this.log, "cursor and tree disagree on key ", string(cursor.Key()))
		}
		seen++
	}
	if ret != nil {
		return ret
	}
	// older writes may have been flushed out to a level already, the last one can't have been.
	if _, found, _ := tree.Get(key_for(count - 1)); found == false || seen == 0 {
		return tools.Error(this.log, "cursor saw ", seen, " keys, and the last write isn't in the tree")
	}
	return nil
}
