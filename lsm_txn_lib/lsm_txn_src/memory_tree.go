// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

/* the in-memory write buffer. every write inside a transaction lands here first.
   it's a btree of keys, and next to it an undo journal of what each write replaced. a mark is just
	 how long the journal was when the savepoint opened, so rolling back is popping the journal back to
	 that length and putting the old values back. ending the transaction, commit or not, throws the
	 journal away and bumps the generation, so a mark from an older transaction can't be used to roll
	 back a newer one. */

package lsm_txn_src

import (
	"bytes"

	"github.com/google/btree"
	lsm_txn_lib "github.com/nixomose/lsm_txn/lsm_txn_lib/lsm_txn_interfaces"
	"github.com/nixomose/nixomosegotools/tools"
)

const MEMORY_TREE_DEGREE int = 32

type tree_item struct {
	key       []byte
	value     []byte
	tombstone bool
}

func tree_item_less(a, b tree_item) bool {
	return bytes.Compare(a.key, b.key) < 0
}

type tree_undo struct {
	key     []byte
	old     tree_item
	existed bool
}

type Memory_tree struct {
	log *tools.Nixomosetools_logger

	tree *btree.BTreeG[tree_item]
	old  *btree.BTreeG[tree_item] // the tree that's waiting to be flushed into a level, if any

	undo_list  []tree_undo
	generation uint64
	size       uint64 // approximate bytes of keys and values
	old_size   uint64
}

// verify that memory_tree implements the tree interface
var _ lsm_txn_lib.Tree_interface = &Memory_tree{}
var _ lsm_txn_lib.Tree_interface = (*Memory_tree)(nil)

func New_memory_tree(l *tools.Nixomosetools_logger) *Memory_tree {
	var t Memory_tree
	t.log = l
	t.tree = btree.NewG[tree_item](MEMORY_TREE_DEGREE, tree_item_less)
	return &t
}

func (this *Memory_tree) Get_logger() *tools.Nixomosetools_logger {
	return this.log
}

func (this *Memory_tree) put(item tree_item) {
	var old, existed = this.tree.ReplaceOrInsert(item)
	this.undo_list = append(this.undo_list, tree_undo{key: item.key, old: old, existed: existed})
	if existed {
		this.size -= uint64(len(old.key) + len(old.value))
	}
	this.size += uint64(len(item.key) + len(item.value))
}

func (this *Memory_tree) Insert(key []byte, value []byte) tools.Ret {
	if len(key) == 0 {
		return tools.Error(this.log, "can not insert an empty key")
	}
	var k = append([]byte(nil), key...)
	var v = append([]byte(nil), value...)
	this.put(tree_item{key: k, value: v})
	return nil
}

func (this *Memory_tree) Delete(key []byte) tools.Ret {
	/* a delete is a tombstone, the key might be in a level underneath us. */
	if len(key) == 0 {
		return tools.Error(this.log, "can not delete an empty key")
	}
	var k = append([]byte(nil), key...)
	this.put(tree_item{key: k, tombstone: true})
	return nil
}

func (this *Memory_tree) Get(key []byte) (value []byte, found bool, deleted bool) {
	var item, ok = this.tree.Get(tree_item{key: key})
	if ok == false && this.old != nil {
		item, ok = this.old.Get(tree_item{key: key})
	}
	if ok == false {
		return nil, false, false
	}
	return item.value, true, item.tombstone
}

func (this *Memory_tree) Mark() lsm_txn_lib.Tree_mark {
	return lsm_txn_lib.Tree_mark{Position: uint64(len(this.undo_list)), Generation: this.generation}
}

func (this *Memory_tree) Rollback_to(mark lsm_txn_lib.Tree_mark) tools.Ret {
	if mark.Generation != this.generation {
		return tools.ErrorWithCode(this.log, lsm_txn_lib.LSM_TXN_ERROR_MISUSE,
			"tree mark from generation ", mark.Generation, " used in generation ", this.generation)
	}
	if mark.Position > uint64(len(this.undo_list)) {
		return tools.ErrorWithCode(this.log, lsm_txn_lib.LSM_TXN_ERROR_MISUSE,
			"tree mark position ", mark.Position, " is past the end of the undo journal ", len(this.undo_list))
	}
	for lp := len(this.undo_list) - 1; lp >= int(mark.Position); lp-- {
		var u = this.undo_list[lp]
		var cur, _ = this.tree.Get(tree_item{key: u.key})
		this.size -= uint64(len(cur.key) + len(cur.value))
		if u.existed {
			this.tree.ReplaceOrInsert(u.old)
			this.size += uint64(len(u.old.key) + len(u.old.value))
		} else {
			this.tree.Delete(tree_item{key: u.key})
		}
	}
	this.undo_list = this.undo_list[:mark.Position]
	return nil
}

func (this *Memory_tree) End_transaction(commit bool) {
	this.undo_list = nil
	this.generation++
}

func (this *Memory_tree) Size() uint64 {
	return this.size
}

func (this *Memory_tree) Make_old() {
	/* the current tree becomes the old one waiting for a flush, writes carry on in a fresh tree.
	   if there's already an old one that hasn't been flushed, the new stuff gets merged into it. */
	if this.old == nil {
		this.old = this.tree
		this.old_size = this.size
	} else {
		this.tree.Ascend(func(item tree_item) bool {
			this.old.ReplaceOrInsert(item)
			return true
		})
		this.old_size += this.size
	}
	this.tree = btree.NewG[tree_item](MEMORY_TREE_DEGREE, tree_item_less)
	this.size = 0
}

func (this *Memory_tree) Has_old() bool {
	return this.old != nil
}

func (this *Memory_tree) Discard_old() uint64 {
	/* whoever flushed the old tree into a level tells us we can forget it. returns how many bytes went. */
	var released = this.old_size
	this.old = nil
	this.old_size = 0
	return released
}

func (this *Memory_tree) Len() int {
	return this.tree.Len()
}

func (this *Memory_tree) clone() *btree.BTreeG[tree_item] {
	return this.tree.Clone()
}
