// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

package lsm_txn_src

import (
	"testing"

	lsm_txn_lib "github.com/nixomose/lsm_txn/lsm_txn_lib/lsm_txn_interfaces"
	"github.com/nixomose/nixomosegotools/tools"
)

type fake_cursor struct {
	first_ret tools.Ret
	firsts    int
	closed    bool
}

func (this *fake_cursor) First() tools.Ret {
	this.firsts++
	return this.first_ret
}

func (this *fake_cursor) Next() tools.Ret { return nil }

func (this *fake_cursor) Valid() bool { return false }

func (this *fake_cursor) Key() []byte { return nil }

func (this *fake_cursor) Value() []byte { return nil }

func (this *fake_cursor) Close() { this.closed = true }

func TestClientCursorFirstPassesThrough(t *testing.T) {
	var log = tools.New_Nixomosetools_logger(tools.DEBUG)
	var impl = &fake_cursor{first_ret: tools.ErrorWithCode(log, lsm_txn_lib.LSM_TXN_ERROR_IO, "merge cursor failed")}
	var c = New_client_cursor(log, impl)
	var ret = c.First()
	if ret != impl.first_ret || impl.firsts != 1 {
		t.Fatal("first didn't hand back exactly what the merge cursor said")
	}
	impl.first_ret = nil
	if ret = c.First(); ret != nil || impl.firsts != 2 {
		t.Fatal("first didn't pass success through")
	}
	c.Close()
	if impl.closed == false {
		t.Fatal("close not passed through")
	}
}

func TestTreeCursorOrderAndTombstones(t *testing.T) {
	var log = tools.New_Nixomosetools_logger(tools.DEBUG)
	var tree = New_memory_tree(log)
	tree.Insert([]byte("c"), []byte("3"))
	tree.Insert([]byte("a"), []byte("1"))
	tree.Insert([]byte("d"), []byte("4"))
	tree.Make_old()
	tree.Insert([]byte("b"), []byte("2"))
	tree.Insert([]byte("a"), []byte("one"))
	tree.Delete([]byte("d"))

	var c = New_client_cursor(log, New_tree_cursor(log, tree))
	if c.Valid() {
		t.Fatal("cursor valid before First")
	}
	var keys, values string
	for ret := c.First(); ret == nil && c.Valid(); ret = c.Next() {
		keys += string(c.Key())
		values += string(c.Value()) + ","
	}
	if keys != "abc" || values != "one,2,3," {
		t.Fatalf("walked keys %q values %q", keys, values)
	}
	if ret := c.Next(); ret == nil {
		t.Fatal("next past the end accepted")
	}
	if c.Key() != nil || c.Value() != nil {
		t.Fatal("key or value past the end")
	}
}
