// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

package main

import (
	"os"

	lsm_txn_lib "github.com/nixomose/lsm_txn/lsm_txn_lib/lsm_txn_interfaces"
	"github.com/nixomose/lsm_txn/lsm_txn_lib/lsm_txn_src"
	"github.com/nixomose/lsm_txn/tlog"
	"github.com/nixomose/nixomosegotools/tools"
)

type test_db struct {
	db     *lsm_txn_src.Lsm_txn
	tree   *lsm_txn_src.Memory_tree
	worker *lsm_txn_src.Worker_snapshot
}

func make_file_store_aligned(log *tools.Nixomosetools_logger, storage_file string, device_directio bool,
	page_size uint32) *lsm_txn_src.File_store_aligned {

	/* first we have to see if we're doing directio or default io path so we can inject that into the
	   filestore aligned object */
	var iopath lsm_txn_src.File_store_io_path
	if device_directio {
		iopath = lsm_txn_src.New_file_store_io_path_directio()
	} else {
		iopath = lsm_txn_src.New_file_store_io_path_default()
	}
	return lsm_txn_src.New_File_store_aligned(log, storage_file, page_size, iopath)
}

func make_collaborators(log *tools.Nixomosetools_logger, config lsm_txn_src.Lsm_txn_config) (
	lsm_txn_lib.Checkpoint_store_interface, lsm_txn_lib.Transaction_log_interface) {
	/* the log and the checkpoints go to files if there are paths for them, otherwise memory.
	   to restart a memory database you hand the same ones to bring_up again. */
	var store lsm_txn_lib.Checkpoint_store_interface
	if config.Store_path != "" {
		store = make_file_store_aligned(log, config.Store_path, config.Directio, lsm_txn_src.DEFAULT_META_PAGE_SIZE)
	} else {
		store = lsm_txn_src.New_memory_store(log)
	}
	var translog lsm_txn_lib.Transaction_log_interface
	if config.Log_path != "" {
		translog = tlog.New_file_tlog(log, config.Log_path, config.Directio)
	} else {
		translog = lsm_txn_src.New_Tlog(log)
	}
	return store, translog
}

func bring_up(log *tools.Nixomosetools_logger, config lsm_txn_src.Lsm_txn_config,
	store lsm_txn_lib.Checkpoint_store_interface, translog lsm_txn_lib.Transaction_log_interface) (tools.Ret, *test_db) {
	var t test_db
	t.tree = lsm_txn_src.New_memory_tree(log)
	t.worker = lsm_txn_src.New_worker_snapshot(log)
	var alloc = lsm_txn_src.New_memory_allocator(log, config.Allocator_limit_bytes)
	t.db = lsm_txn_src.New_lsm_txn(log, config, t.tree, translog, t.worker, alloc, store)
	return t.db.Startup(true), &t
}

func bring_down(t *test_db) tools.Ret {
	ret := t.db.Shutdown()
	if ret != nil {
		return ret
	}
	return nil
}

func test_transactions(log *tools.Nixomosetools_logger, config lsm_txn_src.Lsm_txn_config) tools.Ret {
	var store, translog = make_collaborators(log, config)
	ret, t := bring_up(log, config, store, translog)
	if ret != nil {
		return ret
	}
	var lib = New_lsm_txn_test_lib(log)
	if ret = lib.Nested_rollback_tests(t.db, t.tree); ret != nil {
		return ret
	}
	if ret = lib.Freelist_tests(t.db, 500); ret != nil {
		return ret
	}
	if ret = lib.Write_and_read_back(t.db, t.tree, 1000); ret != nil {
		return ret
	}
	return bring_down(t)
}

func test_checkpoint_restart(log *tools.Nixomosetools_logger, config lsm_txn_src.Lsm_txn_config) tools.Ret {
	/* free some blocks, checkpoint, restart, and the free list and levels have to come back. */
	var store, translog = make_collaborators(log, config)
	ret, t := bring_up(log, config, store, translog)
	if ret != nil {
		return ret
	}
	if ret = t.db.Begin(1); ret != nil {
		return ret
	}
	for block := uint32(10); block < 20; block++ {
		if ret = t.db.Freelist_free(block); ret != nil {
			return ret
		}
	}
	if ret = t.db.Commit(0); ret != nil {
		return ret
	}
	t.worker.Push_level(7)
	t.worker.Push_level(8)
	if ret = t.db.Checkpoint(config.Max_checkpoint_levels); ret != nil {
		return ret
	}
	var levels = t.worker.Level_ids()
	if ret = bring_down(t); ret != nil {
		return ret
	}

	ret, t = bring_up(log, config, store, translog)
	if ret != nil {
		return ret
	}
	if t.db.Get_freelists().Live().Count() != 10 {
		return tools.Error(log, "expected 10 free blocks after restart, got ", t.db.Get_freelists().Live().Count())
	}
	var back = t.worker.Level_ids()
	if len(back) != len(levels) {
		return tools.Error(log, "expected ", len(levels), " levels after restart, got ", len(back))
	}
	for lp := range levels {
		if back[lp] != levels[lp] {
			return tools.Error(log, "level ", lp, " came back as ", back[lp], " not ", levels[lp])
		}
	}
	return bring_down(t)
}

func main() {

	var log *tools.Nixomosetools_logger = tools.New_Nixomosetools_logger(tools.DEBUG)

	var config = lsm_txn_src.Default_config()
	config.Tree_size_limit = 64 * 1024 // small, so the old tree gets flushed to levels a few times
	config.Max_checkpoint_levels = 16

	log.Debug("tree_size_limit: ", config.Tree_size_limit)
	log.Debug("max_checkpoint_levels: ", config.Max_checkpoint_levels)
	log.Debug("total_blocks: ", config.Total_blocks)

	{ // everything in memory
		if ret := test_transactions(log, config); ret != nil {
			log.Error("memory transaction tests failed: ", ret.Get_errmsg())
			os.Exit(1)
		}
		if ret := test_checkpoint_restart(log, config); ret != nil {
			log.Error("memory checkpoint tests failed: ", ret.Get_errmsg())
			os.Exit(1)
		}
	}

	{ // files
		var logfile = "/tmp/lsm_txn_log"
		var storefile = "/tmp/lsm_txn_store"
		os.Remove(logfile)
		os.Remove(storefile)
		config.Log_path = logfile
		config.Store_path = storefile
		config.Directio = false // tmpfs won't do O_DIRECT
		if ret := test_transactions(log, config); ret != nil {
			log.Error("file transaction tests failed: ", ret.Get_errmsg())
			os.Exit(1)
		}
		if ret := test_checkpoint_restart(log, config); ret != nil {
			log.Error("file checkpoint tests failed: ", ret.Get_errmsg())
			os.Exit(1)
		}
	}
	log.Info("all tests passed")
}
