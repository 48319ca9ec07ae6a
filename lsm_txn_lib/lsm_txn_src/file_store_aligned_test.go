// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

package lsm_txn_src

import (
	"bytes"
	"path/filepath"
	"testing"

	lsm_txn_lib "github.com/nixomose/lsm_txn/lsm_txn_lib/lsm_txn_interfaces"
	"github.com/nixomose/nixomosegotools/tools"
)

func TestFileStoreMetaPages(t *testing.T) {
	var log = tools.New_Nixomosetools_logger(tools.DEBUG)
	var path = filepath.Join(t.TempDir(), "store")
	var store = New_File_store_aligned(log, path, 5000, New_file_store_io_path_default())
	if store.Get_page_size()%4096 != 0 || store.Get_page_size() < 5000 {
		t.Fatalf("page size %d not rounded up to a block", store.Get_page_size())
	}
	if ret := store.Startup(false); ret != nil {
		t.Fatal(ret.Get_errmsg())
	}
	var ret, data = store.Load_meta_page(1)
	if ret != nil || len(*data) != 0 {
		t.Fatal("new store has something in meta page 1")
	}
	var page = []byte("a checkpoint")
	if ret = store.Store_meta_page(2, &page); ret != nil {
		t.Fatal(ret.Get_errmsg())
	}
	if ret = store.Sync(); ret != nil {
		t.Fatal(ret.Get_errmsg())
	}
	if ret = store.Store_meta_page(3, &page); ret == nil {
		t.Fatal("meta page 3 accepted")
	}
	var too_big = make([]byte, store.Get_page_size())
	if ret = store.Store_meta_page(1, &too_big); ret == nil {
		t.Fatal("meta page bigger than a page accepted")
	}
	if ret = store.Shutdown(); ret != nil {
		t.Fatal(ret.Get_errmsg())
	}

	// a different page size is a different store.
	var other = New_File_store_aligned(log, path, 8192*2, New_file_store_io_path_default())
	if ret = other.Startup(false); ret == nil || ret.Get_errcode() != lsm_txn_lib.LSM_TXN_ERROR_CORRUPT {
		t.Fatal("store opened with the wrong page size")
	}
	other.Shutdown()

	var back = New_File_store_aligned(log, path, 5000, New_file_store_io_path_default())
	if ret = back.Startup(false); ret != nil {
		t.Fatal(ret.Get_errmsg())
	}
	if ret, data = back.Load_meta_page(2); ret != nil || bytes.Equal(*data, page) == false {
		t.Fatalf("meta page 2 came back as %q", *data)
	}
	if ret = back.Wipe(); ret != nil {
		t.Fatal(ret.Get_errmsg())
	}
	back.Shutdown()
}

func TestFileStoreCheckpointRestart(t *testing.T) {
	var log = tools.New_Nixomosetools_logger(tools.DEBUG)
	var path = filepath.Join(t.TempDir(), "store")
	var bring_up = func() (*Lsm_txn, *Worker_snapshot) {
		var worker = New_worker_snapshot(log)
		var db = New_lsm_txn(log, Default_config(), New_memory_tree(log), New_Tlog(log), worker,
			New_memory_allocator(log, 0), New_File_store_aligned(log, path, DEFAULT_META_PAGE_SIZE,
				New_file_store_io_path_default()))
		if ret := db.Startup(false); ret != nil {
			t.Fatal(ret.Get_errmsg())
		}
		return db, worker
	}
	var db, worker = bring_up()
	db.Freelist_free(42)
	worker.Push_level(6)
	if ret := db.Checkpoint(2); ret != nil {
		t.Fatal(ret.Get_errmsg())
	}
	db.Shutdown()

	db, worker = bring_up()
	defer db.Shutdown()
	if db.Get_freelists().Live().Count() != 1 || db.Get_freelists().Live().Get(0).Block_id != 42 {
		t.Fatal("free block didn't survive a restart")
	}
	if ids := worker.Level_ids(); len(ids) != 1 || ids[0] != 6 {
		t.Fatalf("levels after restart %v", ids)
	}
}
