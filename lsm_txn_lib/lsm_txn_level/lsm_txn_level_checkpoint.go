// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

/* this is the level part of a checkpoint.
   it's a flat row of 32 bit words. word zero is how many levels we actually wrote, then one word per
	 level, the level id, in chain order, newest first. the blob is always 1 + max_levels words long no
	 matter how long the chain is, whoever reads it back knows max_levels from somewhere else in the
	 checkpoint, there's no terminator. if the chain is shorter than max_levels the tail is zeroes.
	 words are little endian. the engine this came from wrote them in whatever order the cpu had
	 and that doesn't survive moving the file to a different machine. */

package lsm_txn_level

import (
	"encoding/binary"

	lsm_txn_lib "github.com/nixomose/lsm_txn/lsm_txn_lib/lsm_txn_interfaces"
	"github.com/nixomose/nixomosegotools/tools"
)

const LEVEL_CHECKPOINT_WORD_SIZE uint32 = 4

/* keeps (1 + max_levels) * 4 inside what a slice length can hold on 32 bit machines too. */
const LEVEL_CHECKPOINT_MAX_LEVELS uint32 = (1<<31)/LEVEL_CHECKPOINT_WORD_SIZE - 1

func Checkpoint_size(max_levels uint32) uint64 {
	return (1 + uint64(max_levels)) * uint64(LEVEL_CHECKPOINT_WORD_SIZE)
}

func Encode(log *tools.Nixomosetools_logger, alloc lsm_txn_lib.Allocator_interface,
	head lsm_txn_lib.Level_ref, max_levels uint32) (tools.Ret, []byte) {
	/* walk the chain from head and write up to max_levels level ids after the header word.
	   the chain is only read, the caller has to make sure nobody changes it while we're in here. */

	if max_levels > LEVEL_CHECKPOINT_MAX_LEVELS {
		return tools.ErrorWithCode(log, lsm_txn_lib.LSM_TXN_ERROR_NOMEM,
			"level checkpoint for ", max_levels, " levels is too big to allocate"), nil
	}
	var size = Checkpoint_size(max_levels)
	var ret = alloc.Grow(0, size)
	if ret != nil {
		return ret, nil
	}
	defer alloc.Release(size)

	var blob = make([]byte, size)
	var written uint32 = 0
	var ref = head
	for written < max_levels && ref.Is_end() == false {
		var pos = (1 + written) * LEVEL_CHECKPOINT_WORD_SIZE
		binary.LittleEndian.PutUint32(blob[pos:], ref.Chain.Level_id(ref.Index))
		written++
		ref.Index = ref.Chain.Next(ref.Index)
	}
	binary.LittleEndian.PutUint32(blob[0:], written)
	if written < max_levels {
		log.Debug("level chain shorter than requested checkpoint levels, wrote ", written, " of ", max_levels)
	}
	return nil, blob
}

func Decode(log *tools.Nixomosetools_logger, blob []byte, max_levels uint32) (tools.Ret, []uint32) {
	/* the other direction. max_levels comes from the checkpoint header, the blob has to be exactly
	   that big and the count word can't claim more levels than there's room for. */
	if max_levels > LEVEL_CHECKPOINT_MAX_LEVELS || uint64(len(blob)) != Checkpoint_size(max_levels) {
		return tools.ErrorWithCode(log, lsm_txn_lib.LSM_TXN_ERROR_CORRUPT,
			"level checkpoint blob is ", len(blob), " bytes, expected ", Checkpoint_size(max_levels)), nil
	}
	var written = binary.LittleEndian.Uint32(blob[0:])
	if written > max_levels {
		return tools.ErrorWithCode(log, lsm_txn_lib.LSM_TXN_ERROR_CORRUPT,
			"level checkpoint claims ", written, " levels but only has room for ", max_levels), nil
	}
	var ids = make([]uint32, written)
	for lp := uint32(0); lp < written; lp++ {
		ids[lp] = binary.LittleEndian.Uint32(blob[(1+lp)*LEVEL_CHECKPOINT_WORD_SIZE:])
	}
	return nil, ids
}
