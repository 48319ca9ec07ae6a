// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

package lsm_txn_level

import (
	lsm_txn_lib "github.com/nixomose/lsm_txn/lsm_txn_lib/lsm_txn_interfaces"
	"github.com/nixomose/nixomosegotools/tools"
)

/* the levels of the tree, newest first. they used to be a linked list of pointers, here they live
   in one array and the next link is just the index of the next record. removing a level unlinks it
	 and leaves the slot on a free chain so the next push can reuse it. nothing outside this file
	 ever holds onto a record, only to an index, and only for as long as it takes to walk the chain. */

type Level_record struct {
	Level_id uint32
	Age      uint32
	Next     int32
}

type Level_arena struct {
	log *tools.Nixomosetools_logger

	records   []Level_record
	head      int32
	free_head int32 // chain of unused slots, through Next
	count     uint32
}

// verify that the arena can be walked as a level chain
var _ lsm_txn_lib.Level_chain_interface = &Level_arena{}
var _ lsm_txn_lib.Level_chain_interface = (*Level_arena)(nil)

func New_level_arena(l *tools.Nixomosetools_logger) *Level_arena {
	var a Level_arena
	a.log = l
	a.head = lsm_txn_lib.LEVEL_NONE
	a.free_head = lsm_txn_lib.LEVEL_NONE
	return &a
}

func (this *Level_arena) Level_id(index int32) uint32 {
	return this.records[index].Level_id
}

func (this *Level_arena) Next(index int32) int32 {
	return this.records[index].Next
}

func (this *Level_arena) Get_record(index int32) Level_record {
	return this.records[index]
}

func (this *Level_arena) Head() lsm_txn_lib.Level_ref {
	return lsm_txn_lib.Level_ref{Chain: this, Index: this.head}
}

func (this *Level_arena) Count() uint32 {
	return this.count
}

func (this *Level_arena) Push_level(level_id uint32, age uint32) int32 {
	/* new levels go on the front, they're the newest. */
	var index int32
	if this.free_head != lsm_txn_lib.LEVEL_NONE {
		index = this.free_head
		this.free_head = this.records[index].Next
	} else {
		this.records = append(this.records, Level_record{})
		index = int32(len(this.records) - 1)
	}
	this.records[index] = Level_record{Level_id: level_id, Age: age, Next: this.head}
	this.head = index
	this.count++
	return index
}

func (this *Level_arena) Remove_level(level_id uint32) tools.Ret {
	var prev int32 = lsm_txn_lib.LEVEL_NONE
	for index := this.head; index != lsm_txn_lib.LEVEL_NONE; index = this.records[index].Next {
		if this.records[index].Level_id != level_id {
			prev = index
			continue
		}
		if prev == lsm_txn_lib.LEVEL_NONE {
			this.head = this.records[index].Next
		} else {
			this.records[prev].Next = this.records[index].Next
		}
		this.records[index] = Level_record{Next: this.free_head}
		this.free_head = index
		this.count--
		return nil
	}
	return tools.Error(this.log, "level ", level_id, " not found in level chain")
}

func (this *Level_arena) Level_ids() []uint32 {
	var out = make([]uint32, 0, this.count)
	for index := this.head; index != lsm_txn_lib.LEVEL_NONE; index = this.records[index].Next {
		out = append(out, this.records[index].Level_id)
	}
	return out
}

func (this *Level_arena) Clone() *Level_arena {
	var c = New_level_arena(this.log)
	c.records = make([]Level_record, len(this.records))
	copy(c.records, this.records)
	c.head = this.head
	c.free_head = this.free_head
	c.count = this.count
	return c
}
