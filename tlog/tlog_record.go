// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

package tlog

/* this is the record format of the write-ahead log.

   you start a transaction
	 you write stuff to it,
	 you end it, and if it was a commit, a commit record goes on the end.

	 upon recovery we only keep whole transactions, everything after the last commit record
	 gets cut off. you can have multiple transactions piled on the log one after the other.

	 a record is a 4 byte little endian length of the payload, a 1 byte type, the payload,
	 and a 4 byte crc32 of type+payload so a torn write at the tail is found and dropped
	 instead of replayed. */

import (
	"encoding/binary"
	"hash/crc32"
)

const (
	TLOG_RECORD_WRITE  uint8 = 0x01
	TLOG_RECORD_COMMIT uint8 = 0x02
)

const TLOG_RECORD_OVERHEAD int64 = 4 + 1 + 4

func Encode_record(record_type uint8, payload []byte) []byte {
	var out = make([]byte, TLOG_RECORD_OVERHEAD+int64(len(payload)))
	binary.LittleEndian.PutUint32(out[0:], uint32(len(payload)))
	out[4] = record_type
	copy(out[5:], payload)
	var crc = crc32.ChecksumIEEE(out[4 : 5+len(payload)])
	binary.LittleEndian.PutUint32(out[5+len(payload):], crc)
	return out
}

/* Scan_committed walks data from the start and returns the offset just past the last commit record
   and how many records (of any kind) come before it. a bad crc or a short record ends the scan. */
func Scan_committed(data []byte) (committed_offset int64, committed_records uint32) {
	var pos int64 = 0
	var records uint32 = 0
	var total = int64(len(data))
	for pos+TLOG_RECORD_OVERHEAD <= total {
		var length = int64(binary.LittleEndian.Uint32(data[pos:]))
		if pos+TLOG_RECORD_OVERHEAD+length > total {
			break
		}
		var body = data[pos+4 : pos+5+length]
		var crc = binary.LittleEndian.Uint32(data[pos+5+length:])
		if crc32.ChecksumIEEE(body) != crc {
			break
		}
		records++
		pos += TLOG_RECORD_OVERHEAD + length
		if body[0] == TLOG_RECORD_COMMIT {
			committed_offset = pos
			committed_records = records
		}
	}
	return committed_offset, committed_records
}
