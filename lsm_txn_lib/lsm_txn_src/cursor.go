// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

package lsm_txn_src

import (
	lsm_txn_lib "github.com/nixomose/lsm_txn/lsm_txn_lib/lsm_txn_interfaces"
	"github.com/nixomose/nixomosegotools/tools"
)

/* the client cursor is what a user of the database holds. all the real work is in the merge cursor
   underneath it, which walks the tree and the levels together. we just pass everything down and
	 hand back whatever it says. */

type Client_cursor struct {
	log    *tools.Nixomosetools_logger
	m_impl lsm_txn_lib.Merge_cursor_interface
}

// verify that client_cursor is itself usable as a merge cursor
var _ lsm_txn_lib.Merge_cursor_interface = &Client_cursor{}
var _ lsm_txn_lib.Merge_cursor_interface = (*Client_cursor)(nil)

func New_client_cursor(l *tools.Nixomosetools_logger, impl lsm_txn_lib.Merge_cursor_interface) *Client_cursor {
	var c Client_cursor
	c.log = l
	c.m_impl = impl
	return &c
}

func (this *Client_cursor) First() tools.Ret {
	return this.m_impl.First()
}

func (this *Client_cursor) Next() tools.Ret {
	return this.m_impl.Next()
}

func (this *Client_cursor) Valid() bool {
	return this.m_impl.Valid()
}

func (this *Client_cursor) Key() []byte {
	return this.m_impl.Key()
}

func (this *Client_cursor) Value() []byte {
	return this.m_impl.Value()
}

func (this *Client_cursor) Close() {
	this.m_impl.Close()
}

/* a merge cursor over nothing but the memory tree, the new tree over the old one.
   it works on a copy made when it was created, so writes after that aren't seen.
	 tombstones are skipped. */

type Tree_cursor struct {
	log *tools.Nixomosetools_logger

	items []tree_item
	pos   int
}

var _ lsm_txn_lib.Merge_cursor_interface = &Tree_cursor{}
var _ lsm_txn_lib.Merge_cursor_interface = (*Tree_cursor)(nil)

func New_tree_cursor(l *tools.Nixomosetools_logger, tree *Memory_tree) *Tree_cursor {
	var c Tree_cursor
	c.log = l
	var current = tree.clone()
	if tree.old != nil {
		// the new tree wins over the old one, so lay the new one on top of a copy of the old.
		var merged = tree.old.Clone()
		current.Ascend(func(item tree_item) bool {
			merged.ReplaceOrInsert(item)
			return true
		})
		current = merged
	}
	current.Ascend(func(item tree_item) bool {
		if item.tombstone == false {
			c.items = append(c.items, item)
		}
		return true
	})
	c.pos = len(c.items)
	return &c
}

func (this *Tree_cursor) First() tools.Ret {
	this.pos = 0
	return nil
}

func (this *Tree_cursor) Next() tools.Ret {
	if this.pos >= len(this.items) {
		return tools.ErrorWithCode(this.log, lsm_txn_lib.LSM_TXN_ERROR_MISUSE, "cursor next past the end")
	}
	this.pos++
	return nil
}

func (this *Tree_cursor) Valid() bool {
	return this.pos < len(this.items)
}

func (this *Tree_cursor) Key() []byte {
	if this.Valid() == false {
		return nil
	}
	return this.items[this.pos].key
}

func (this *Tree_cursor) Value() []byte {
	if this.Valid() == false {
		return nil
	}
	return this.items[this.pos].value
}

func (this *Tree_cursor) Close() {
	this.items = nil
	this.pos = 0
}
