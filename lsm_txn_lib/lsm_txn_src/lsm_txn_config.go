// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

package lsm_txn_src

/* no config file, you fill one of these in and hand it to New_lsm_txn. */

const DEFAULT_TREE_SIZE_LIMIT uint64 = 1024 * 1024
const DEFAULT_MAX_CHECKPOINT_LEVELS uint32 = 64
const DEFAULT_TOTAL_BLOCKS uint32 = 1024 * 1024

type Lsm_txn_config struct {
	Tree_size_limit       uint64 // when a commit leaves the tree bigger than this, it's made old and flushed
	Auto_work             bool   // flush on the committing thread instead of calling Work_hook
	Work_hook             func(db *Lsm_txn)
	Max_checkpoint_levels uint32
	Total_blocks          uint32 // how many blocks the store has, the freelist is checked against it
	Allocator_limit_bytes uint64 // zero is no limit
	Directio              bool
	Log_path              string // empty means keep the log in memory
	Store_path            string // empty means keep the checkpoints in memory
}

func Default_config() Lsm_txn_config {
	return Lsm_txn_config{
		Tree_size_limit:       DEFAULT_TREE_SIZE_LIMIT,
		Auto_work:             true,
		Max_checkpoint_levels: DEFAULT_MAX_CHECKPOINT_LEVELS,
		Total_blocks:          DEFAULT_TOTAL_BLOCKS,
	}
}
