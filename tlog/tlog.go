// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

package tlog

/* this is the file backed write-ahead log.

   the first block of the file is the header, a magic and the uuid of this log, so that if someone
	 copies a checkpoint next to a log from some other database we can at least tell.
	 after that it's records, see tlog_record.go.

	 everything is kept in memory and on disk, all reads are done out of memory, the file is only read
	 on startup. writes go to the memory copy and get pushed out to the file on sync and on commit,
	 a whole number of blocks at a time, rewriting the last partial block each time. that's what
	 lets it run with directio, which wants aligned offsets, aligned lengths and aligned buffers.

	 seek_to a mark cuts the log back to where the mark was, that's how a savepoint takes back its
	 records. end without commit cuts back to the last commit. */

import (
	"encoding/binary"
	"io"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/ncw/directio"
	lsm_txn_lib "github.com/nixomose/lsm_txn/lsm_txn_lib/lsm_txn_interfaces"
	"github.com/nixomose/nixomosegotools/tools"
	"golang.org/x/sys/unix"
)

const TLOG_MAGIC uint64 = 0x4c534d54584e4c47 // LSMTXNLG

const TLOG_HEADER_SIZE int64 = int64(directio.BlockSize)

type File_tlog struct {
	interface_lock sync.Mutex
	log            *tools.Nixomosetools_logger

	m_path     string
	m_directio bool
	m_file     *os.File
	m_log_id   uuid.UUID

	m_data             []byte // the log body, everything after the header
	m_flushed          int64  // how much of m_data is known to be in the file
	m_committed        int64
	m_committed_record uint32
	m_record_count     uint32
	m_in_transaction   bool
}

// verify that file_tlog implements the interface
var _ lsm_txn_lib.Transaction_log_interface = &File_tlog{}
var _ lsm_txn_lib.Transaction_log_interface = (*File_tlog)(nil)

func New_file_tlog(l *tools.Nixomosetools_logger, path string, use_directio bool) *File_tlog {
	var t File_tlog
	t.log = l
	t.m_path = path
	t.m_directio = use_directio
	return &t
}

func (this *File_tlog) Get_logger() *tools.Nixomosetools_logger {
	return this.log
}

func (this *File_tlog) Get_log_id() uuid.UUID {
	return this.m_log_id
}

func (this *File_tlog) open() (*os.File, error) {
	if this.m_directio {
		return directio.OpenFile(this.m_path, os.O_RDWR|os.O_CREATE, 0644)
	}
	return os.OpenFile(this.m_path, os.O_RDWR|os.O_CREATE, 0644)
}

func round_up(n int64) int64 {
	var bs = int64(directio.BlockSize)
	return (n + bs - 1) / bs * bs
}

func (this *File_tlog) Startup(force bool) tools.Ret {
	/* open or create the log, and replay, which for us means read it all in and cut off anything
	   after the last commit. force means start a new log if the header is bad instead of failing.
	   if startup fails the file is closed again so startup can be tried again. */
	this.interface_lock.Lock()
	defer this.interface_lock.Unlock()

	if this.m_file != nil {
		return tools.Error(this.log, "transaction log ", this.m_path, " has already been started up")
	}
	var f, err = this.open()
	if err != nil {
		return tools.ErrorWithCode(this.log, lsm_txn_lib.LSM_TXN_ERROR_IO, "unable to open transaction log ",
			this.m_path, ", err: ", err)
	}
	this.m_file = f
	var ret = this.replay(force)
	if ret != nil {
		this.m_file.Close()
		this.m_file = nil
		this.m_data = nil
		return ret
	}
	return nil
}

func (this *File_tlog) replay(force bool) tools.Ret {
	var st, err = this.m_file.Stat()
	if err != nil {
		return tools.ErrorWithCode(this.log, lsm_txn_lib.LSM_TXN_ERROR_IO, "unable to stat transaction log ",
			this.m_path, ", err: ", err)
	}
	if st.Size() < TLOG_HEADER_SIZE {
		return this.write_new_header()
	}

	var whole = directio.AlignedBlock(int(round_up(st.Size())))
	var n int
	n, err = this.m_file.ReadAt(whole, 0)
	if err != nil && err != io.EOF {
		return tools.ErrorWithCode(this.log, lsm_txn_lib.LSM_TXN_ERROR_IO, "unable to read transaction log ",
			this.m_path, ", err: ", err)
	}
	whole = whole[:n]
	if binary.LittleEndian.Uint64(whole[0:]) != TLOG_MAGIC {
		if force {
			this.log.Info("transaction log ", this.m_path, " has a bad header, starting a new one")
			return this.write_new_header()
		}
		return tools.ErrorWithCode(this.log, lsm_txn_lib.LSM_TXN_ERROR_CORRUPT,
			"transaction log ", this.m_path, " has a bad magic number")
	}
	if this.m_log_id, err = uuid.FromBytes(whole[8:24]); err != nil {
		return tools.ErrorWithCode(this.log, lsm_txn_lib.LSM_TXN_ERROR_CORRUPT,
			"transaction log ", this.m_path, " has a bad log id, err: ", err)
	}

	var body = whole[TLOG_HEADER_SIZE:]
	var committed, records = Scan_committed(body)
	this.m_data = append([]byte(nil), body[:committed]...)
	this.m_flushed = committed
	this.m_committed = committed
	this.m_committed_record = records
	this.m_record_count = records
	if committed < int64(len(body)) {
		this.log.Debug("transaction log replay dropped ", int64(len(body))-committed, " uncommitted bytes")
		if ret := this.truncate_file(committed); ret != nil {
			return ret
		}
	}
	this.log.Debug("transaction log ", this.m_log_id.String(), " started with ", records, " committed records")
	return nil
}

func (this *File_tlog) write_new_header() tools.Ret {
	this.m_log_id = uuid.New()
	var header = directio.AlignedBlock(int(TLOG_HEADER_SIZE))
	binary.LittleEndian.PutUint64(header[0:], TLOG_MAGIC)
	copy(header[8:24], this.m_log_id[:])
	if _, err := this.m_file.WriteAt(header, 0); err != nil {
		return tools.ErrorWithCode(this.log, lsm_txn_lib.LSM_TXN_ERROR_IO, "unable to write transaction log header ",
			this.m_path, ", err: ", err)
	}
	if ret := this.truncate_file(0); ret != nil {
		return ret
	}
	this.m_data = nil
	this.m_flushed = 0
	this.m_committed = 0
	this.m_committed_record = 0
	this.m_record_count = 0
	return this.sync_file()
}

func (this *File_tlog) truncate_file(body_length int64) tools.Ret {
	if err := unix.Ftruncate(int(this.m_file.Fd()), TLOG_HEADER_SIZE+body_length); err != nil {
		return tools.ErrorWithCode(this.log, lsm_txn_lib.LSM_TXN_ERROR_IO, "unable to truncate transaction log ",
			this.m_path, " to ", body_length, ", err: ", err)
	}
	return nil
}

func (this *File_tlog) sync_file() tools.Ret {
	if err := unix.Fdatasync(int(this.m_file.Fd())); err != nil {
		return tools.ErrorWithCode(this.log, lsm_txn_lib.LSM_TXN_ERROR_IO, "unable to sync transaction log ",
			this.m_path, ", err: ", err)
	}
	return nil
}

func (this *File_tlog) flush() tools.Ret {
	/* write out everything past m_flushed, starting at the beginning of the block m_flushed is in. */
	var length = int64(len(this.m_data))
	if this.m_flushed >= length {
		return nil
	}
	var bs = int64(directio.BlockSize)
	var start = this.m_flushed / bs * bs
	var end = round_up(length)
	var block = directio.AlignedBlock(int(end - start))
	copy(block, this.m_data[start:])
	if _, err := this.m_file.WriteAt(block, TLOG_HEADER_SIZE+start); err != nil {
		return tools.ErrorWithCode(this.log, lsm_txn_lib.LSM_TXN_ERROR_IO, "unable to write transaction log ",
			this.m_path, " at ", start, ", err: ", err)
	}
	this.m_flushed = length
	return nil
}

func (this *File_tlog) Shutdown() tools.Ret {
	/* an in flight transaction does not get a commit written, so it will be dropped on the next startup. */
	this.interface_lock.Lock()
	defer this.interface_lock.Unlock()
	if this.m_file == nil {
		return tools.Error(this.log, "transaction log ", this.m_path, " hasn't been started, can't be shut down")
	}
	if this.m_in_transaction {
		this.log.Info("transaction log shutting down with a transaction in flight, it will not be replayed")
	}
	var err = this.m_file.Close()
	this.m_file = nil
	this.m_in_transaction = false
	if err != nil {
		return tools.ErrorWithCode(this.log, lsm_txn_lib.LSM_TXN_ERROR_IO, "unable to close transaction log ",
			this.m_path, ", err: ", err)
	}
	return nil
}

func (this *File_tlog) Begin() tools.Ret {
	this.interface_lock.Lock()
	defer this.interface_lock.Unlock()
	if this.m_file == nil {
		return tools.ErrorWithCode(this.log, lsm_txn_lib.LSM_TXN_ERROR_MISUSE, "transaction log is not started")
	}
	if this.m_in_transaction {
		return tools.ErrorWithCode(this.log, lsm_txn_lib.LSM_TXN_ERROR_MISUSE, "transaction log already in a transaction")
	}
	this.m_in_transaction = true
	return nil
}

func (this *File_tlog) Write_record(data []byte) tools.Ret {
	this.interface_lock.Lock()
	defer this.interface_lock.Unlock()
	if this.m_in_transaction == false {
		return tools.ErrorWithCode(this.log, lsm_txn_lib.LSM_TXN_ERROR_MISUSE, "log write outside of a transaction")
	}
	this.m_data = append(this.m_data, Encode_record(TLOG_RECORD_WRITE, data)...)
	this.m_record_count++
	return nil
}

func (this *File_tlog) Mark() lsm_txn_lib.Log_mark {
	this.interface_lock.Lock()
	defer this.interface_lock.Unlock()
	return lsm_txn_lib.Log_mark{Offset: int64(len(this.m_data)), Record_count: this.m_record_count}
}

func (this *File_tlog) Seek_to(mark lsm_txn_lib.Log_mark) tools.Ret {
	this.interface_lock.Lock()
	defer this.interface_lock.Unlock()
	return this.seek_to_internal(mark.Offset, mark.Record_count)
}

func (this *File_tlog) seek_to_internal(offset int64, record_count uint32) tools.Ret {
	if offset < this.m_committed || offset > int64(len(this.m_data)) {
		return tools.ErrorWithCode(this.log, lsm_txn_lib.LSM_TXN_ERROR_MISUSE, "log seek to ", offset,
			" outside of the open transaction ", this.m_committed, " to ", len(this.m_data))
	}
	if offset == int64(len(this.m_data)) {
		return nil
	}
	if this.m_flushed > offset {
		if ret := this.truncate_file(offset); ret != nil {
			return ret
		}
		this.m_flushed = offset
	}
	this.m_data = this.m_data[:offset]
	this.m_record_count = record_count
	return nil
}

func (this *File_tlog) End(commit bool) tools.Ret {
	this.interface_lock.Lock()
	defer this.interface_lock.Unlock()
	if this.m_in_transaction == false {
		return nil
	}
	if commit == false {
		if ret := this.seek_to_internal(this.m_committed, this.m_committed_record); ret != nil {
			return ret
		}
		this.m_in_transaction = false
		return nil
	}
	this.m_data = append(this.m_data, Encode_record(TLOG_RECORD_COMMIT, nil)...)
	this.m_record_count++
	var ret tools.Ret
	if ret = this.flush(); ret != nil {
		return ret
	}
	if ret = this.sync_file(); ret != nil {
		return ret
	}
	this.m_committed = int64(len(this.m_data))
	this.m_committed_record = this.m_record_count
	this.m_in_transaction = false
	return nil
}

func (this *File_tlog) Sync() tools.Ret {
	this.interface_lock.Lock()
	defer this.interface_lock.Unlock()
	if this.m_file == nil {
		return nil
	}
	if ret := this.flush(); ret != nil {
		return ret
	}
	return this.sync_file()
}

func (this *File_tlog) Offset() int64 {
	this.interface_lock.Lock()
	defer this.interface_lock.Unlock()
	return int64(len(this.m_data))
}
