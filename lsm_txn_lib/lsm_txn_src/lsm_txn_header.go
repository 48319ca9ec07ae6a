// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

/* this is the header of a checkpoint, what goes in a meta page. */

// package name must match directory name
package lsm_txn_src

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"

	lsm_txn_lib "github.com/nixomose/lsm_txn/lsm_txn_lib/lsm_txn_interfaces"
	"github.com/nixomose/nixomosegotools/tools"
)

const CHECKPOINT_MAGIC uint64 = 0x4c534d434b505431 // LSMCKPT1

type Checkpoint_header struct {
	// must be capitalized or we can deserialize because it's not exported...
	M_magic                uint64
	M_checkpoint_id        uint64 // goes up by one every checkpoint, the higher of the two meta pages wins
	M_txn_id               int64  // the last committed transaction when this was taken
	M_log_offset           int64  // where in the log this checkpoint is up to
	M_max_levels           uint32 // the level blob is always 1 + this many words, see lsm_txn_level
	M_level_blob_length    uint32
	M_freelist_blob_length uint32
	M_total_blocks         uint32 // what the freelist integrity check measures block ids against

	/* a meta page is this header, the level blob, the freelist blob, and then 16 bytes of md5 of
	   everything before it. little endian all the way through.
	          magic                   | checkpoint id
	00000000  31 54 50 4b 43 4d 53 4c | 02 00 00 00 00 00 00 00  |1TPKCMSL........|
	          txn id                  | log offset
	00000010  07 00 00 00 00 00 00 00 | c4 01 00 00 00 00 00 00  |................|
	          max levels  level len   | freelist len total blocks
	00000020  04 00 00 00 14 00 00 00 | 1c 00 00 00 00 04 00 00  |................|
	*/
}

func Checkpoint_header_size() uint32 {
	return uint32(binary.Size(Checkpoint_header{}))
}

func (this *Checkpoint_header) Serialize(log *tools.Nixomosetools_logger) (tools.Ret, *[]byte) {
	var bb *bytes.Buffer = bytes.NewBuffer(make([]byte, 0))
	var err error = binary.Write(bb, binary.LittleEndian, this) // this works because there's nothing but actual data fields.
	if err != nil {
		return tools.Error(log, "unable to serialize checkpoint header: ", err), nil
	}
	var bret []byte = bb.Bytes()
	return nil, &bret
}

func (this *Checkpoint_header) Deserialize(log *tools.Nixomosetools_logger, bs *[]byte) tools.Ret {
	var bb *bytes.Buffer = bytes.NewBuffer(*bs)
	var err error = binary.Read(bb, binary.LittleEndian, this)
	if err != nil {
		return tools.ErrorWithCode(log, lsm_txn_lib.LSM_TXN_ERROR_CORRUPT, "unable to deserialize checkpoint header: ", err)
	}
	return nil
}

func Serialize_meta_page(log *tools.Nixomosetools_logger, header *Checkpoint_header,
	level_blob []byte, freelist_blob []byte) (tools.Ret, *[]byte) {

	header.M_magic = CHECKPOINT_MAGIC
	header.M_level_blob_length = uint32(len(level_blob))
	header.M_freelist_blob_length = uint32(len(freelist_blob))
	var ret, hbytes = header.Serialize(log)
	if ret != nil {
		return ret, nil
	}
	var page = make([]byte, 0, len(*hbytes)+len(level_blob)+len(freelist_blob)+md5.Size)
	page = append(page, *hbytes...)
	page = append(page, level_blob...)
	page = append(page, freelist_blob...)
	var sum = md5.Sum(page)
	page = append(page, sum[:]...)
	return nil, &page
}

func Deserialize_meta_page(log *tools.Nixomosetools_logger, bs *[]byte) (ret tools.Ret, header *Checkpoint_header,
	level_blob []byte, freelist_blob []byte) {
	/* anything wrong in here is corrupt. a meta page that was never written comes back short. */

	var data = *bs
	var hsize = int(Checkpoint_header_size())
	if len(data) < hsize+md5.Size {
		return tools.ErrorWithCode(log, lsm_txn_lib.LSM_TXN_ERROR_CORRUPT, "meta page too short for a checkpoint: ",
			len(data), " bytes"), nil, nil, nil
	}
	var body = data[:len(data)-md5.Size]
	var sum = md5.Sum(body)
	if bytes.Equal(sum[:], data[len(data)-md5.Size:]) == false {
		return tools.ErrorWithCode(log, lsm_txn_lib.LSM_TXN_ERROR_CORRUPT, "meta page checksum mismatch"), nil, nil, nil
	}
	var h Checkpoint_header
	var hbytes = body[:hsize]
	if ret = h.Deserialize(log, &hbytes); ret != nil {
		return ret, nil, nil, nil
	}
	if h.M_magic != CHECKPOINT_MAGIC {
		return tools.ErrorWithCode(log, lsm_txn_lib.LSM_TXN_ERROR_CORRUPT, "meta page has bad magic number ",
			h.M_magic), nil, nil, nil
	}
	if uint64(len(body)) != uint64(hsize)+uint64(h.M_level_blob_length)+uint64(h.M_freelist_blob_length) {
		return tools.ErrorWithCode(log, lsm_txn_lib.LSM_TXN_ERROR_CORRUPT, "meta page length ", len(body),
			" does not match its header"), nil, nil, nil
	}
	var pos = uint32(hsize)
	level_blob = body[pos : pos+h.M_level_blob_length]
	pos += h.M_level_blob_length
	freelist_blob = body[pos : pos+h.M_freelist_blob_length]
	return nil, &h, level_blob, freelist_blob
}
