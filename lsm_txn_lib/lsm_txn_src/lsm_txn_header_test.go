// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

package lsm_txn_src

import (
	"bytes"
	"testing"

	lsm_txn_lib "github.com/nixomose/lsm_txn/lsm_txn_lib/lsm_txn_interfaces"
	"github.com/nixomose/nixomosegotools/tools"
)

func TestMetaPage(t *testing.T) {
	var log = tools.New_Nixomosetools_logger(tools.DEBUG)
	var header = Checkpoint_header{M_checkpoint_id: 2, M_txn_id: 7, M_log_offset: 452, M_max_levels: 4,
		M_total_blocks: 1024}
	var level_blob = []byte{1, 0, 0, 0, 9, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	var freelist_blob = []byte{0, 0, 0, 0}
	var ret, page = Serialize_meta_page(log, &header, level_blob, freelist_blob)
	if ret != nil {
		t.Fatal(ret.Get_errmsg())
	}
	if len(*page) != int(Checkpoint_header_size())+len(level_blob)+len(freelist_blob)+16 {
		t.Fatalf("meta page is %d bytes", len(*page))
	}

	var back *Checkpoint_header
	var lb, fb []byte
	if ret, back, lb, fb = Deserialize_meta_page(log, page); ret != nil {
		t.Fatal(ret.Get_errmsg())
	}
	if *back != header || bytes.Equal(lb, level_blob) == false || bytes.Equal(fb, freelist_blob) == false {
		t.Fatalf("meta page round trip: %+v", back)
	}

	for _, pos := range []int{0, 20, len(*page) - 1} {
		var bad = append([]byte(nil), (*page)...)
		bad[pos] ^= 0x01
		if ret, _, _, _ = Deserialize_meta_page(log, &bad); ret == nil || ret.Get_errcode() != lsm_txn_lib.LSM_TXN_ERROR_CORRUPT {
			t.Fatalf("flipped bit at %d not caught", pos)
		}
	}
	var empty = []byte{}
	if ret, _, _, _ = Deserialize_meta_page(log, &empty); ret == nil {
		t.Fatal("empty meta page accepted")
	}
}
