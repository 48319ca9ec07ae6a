// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

package lsm_txn_src

/* the file checkpoint store. the file is a row of fixed size pages, page 0 has the magic and the page
   size in it, pages 1 and 2 are the meta pages. every page is written whole, from an aligned buffer,
	 at an aligned offset, so this works the same with directio or without.
	 a meta page starts with a 4 byte little endian length of what's stored in it, zero means empty. */

import (
	"encoding/binary"
	"io"
	"os"
	"sync"

	"github.com/ncw/directio"
	lsm_txn_lib "github.com/nixomose/lsm_txn/lsm_txn_lib/lsm_txn_interfaces"
	"github.com/nixomose/nixomosegotools/tools"
	"golang.org/x/sys/unix"
)

const FILE_STORE_MAGIC uint64 = 0x4c534d5354524531 // LSMSTRE1

const DEFAULT_META_PAGE_SIZE uint32 = 64 * 1024

const meta_page_length_size uint32 = 4

type File_store_io_path interface {
	Open_file(name string, flag int, perm os.FileMode) (*os.File, error)

	Alloc_aligned(size uint32) []byte

	Is_directio() bool
}

type file_store_io_path_default struct{}

func New_file_store_io_path_default() File_store_io_path {
	return &file_store_io_path_default{}
}

func (this *file_store_io_path_default) Open_file(name string, flag int, perm os.FileMode) (*os.File, error) {
	return os.OpenFile(name, flag, perm)
}

func (this *file_store_io_path_default) Alloc_aligned(size uint32) []byte {
	return make([]byte, size)
}

func (this *file_store_io_path_default) Is_directio() bool {
	return false
}

type file_store_io_path_directio struct{}

func New_file_store_io_path_directio() File_store_io_path {
	return &file_store_io_path_directio{}
}

func (this *file_store_io_path_directio) Open_file(name string, flag int, perm os.FileMode) (*os.File, error) {
	return directio.OpenFile(name, flag, perm)
}

func (this *file_store_io_path_directio) Alloc_aligned(size uint32) []byte {
	return directio.AlignedBlock(int(size))
}

func (this *file_store_io_path_directio) Is_directio() bool {
	return true
}

type File_store_aligned struct {
	log  *tools.Nixomosetools_logger
	lock sync.Mutex

	m_path      string
	m_page_size uint32
	m_iopath    File_store_io_path
	m_file      *os.File
}

// verify that file_store_aligned implements the checkpoint store
var _ lsm_txn_lib.Checkpoint_store_interface = &File_store_aligned{}
var _ lsm_txn_lib.Checkpoint_store_interface = (*File_store_aligned)(nil)

func New_File_store_aligned(l *tools.Nixomosetools_logger, path string, page_size uint32,
	iopath File_store_io_path) *File_store_aligned {
	var f File_store_aligned
	f.log = l
	f.m_path = path
	f.m_iopath = iopath
	// whole blocks only, or directio won't have it.
	var bs = uint32(directio.BlockSize)
	f.m_page_size = (page_size + bs - 1) / bs * bs
	return &f
}

func (this *File_store_aligned) Get_logger() *tools.Nixomosetools_logger {
	return this.log
}

func (this *File_store_aligned) Get_page_size() uint32 {
	return this.m_page_size
}

func (this *File_store_aligned) Startup(force bool) tools.Ret {
	this.lock.Lock()
	defer this.lock.Unlock()
	if this.m_file != nil {
		return tools.Error(this.log, "file store ", this.m_path, " has already been started up")
	}
	var f, err = this.m_iopath.Open_file(this.m_path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return tools.ErrorWithCode(this.log, lsm_txn_lib.LSM_TXN_ERROR_IO, "unable to open file store ",
			this.m_path, ", err: ", err)
	}
	this.m_file = f

	var ret, page = this.read_page(0)
	if ret != nil {
		return ret
	}
	var magic = binary.LittleEndian.Uint64(page[0:])
	var page_size = binary.LittleEndian.Uint32(page[8:])
	if magic == 0 {
		return this.write_header()
	}
	if magic != FILE_STORE_MAGIC || page_size != this.m_page_size {
		if force {
			this.log.Info("file store ", this.m_path, " has a bad header, reinitializing")
			return this.write_header()
		}
		return tools.ErrorWithCode(this.log, lsm_txn_lib.LSM_TXN_ERROR_CORRUPT, "file store ", this.m_path,
			" has bad magic ", magic, " or page size ", page_size)
	}
	return nil
}

func (this *File_store_aligned) write_header() tools.Ret {
	/* a new store, header on page 0 and empty meta pages. */
	var page = this.m_iopath.Alloc_aligned(this.m_page_size)
	binary.LittleEndian.PutUint64(page[0:], FILE_STORE_MAGIC)
	binary.LittleEndian.PutUint32(page[8:], this.m_page_size)
	var ret = this.write_page(0, page)
	if ret != nil {
		return ret
	}
	var empty = this.m_iopath.Alloc_aligned(this.m_page_size)
	for page_num := uint32(1); page_num <= CHECKPOINT_META_PAGE_COUNT; page_num++ {
		if ret = this.write_page(page_num, empty); ret != nil {
			return ret
		}
	}
	return this.sync_file()
}

func (this *File_store_aligned) read_page(page_num uint32) (tools.Ret, []byte) {
	var page = this.m_iopath.Alloc_aligned(this.m_page_size)
	var _, err = this.m_file.ReadAt(page, int64(page_num)*int64(this.m_page_size))
	if err != nil && err != io.EOF {
		return tools.ErrorWithCode(this.log, lsm_txn_lib.LSM_TXN_ERROR_IO, "unable to read page ", page_num,
			" from file store ", this.m_path, ", err: ", err), nil
	}
	// past the end of the file reads as zeroes, which is an empty page.
	return nil, page
}

func (this *File_store_aligned) write_page(page_num uint32, page []byte) tools.Ret {
	var _, err = this.m_file.WriteAt(page, int64(page_num)*int64(this.m_page_size))
	if err != nil {
		return tools.ErrorWithCode(this.log, lsm_txn_lib.LSM_TXN_ERROR_IO, "unable to write page ", page_num,
			" to file store ", this.m_path, ", err: ", err)
	}
	return nil
}

func (this *File_store_aligned) sync_file() tools.Ret {
	if err := unix.Fdatasync(int(this.m_file.Fd())); err != nil {
		return tools.ErrorWithCode(this.log, lsm_txn_lib.LSM_TXN_ERROR_IO, "unable to sync file store ",
			this.m_path, ", err: ", err)
	}
	return nil
}

func (this *File_store_aligned) Load_meta_page(page_num uint32) (tools.Ret, *[]byte) {
	if ret := check_meta_page(this.log, page_num); ret != nil {
		return ret, nil
	}
	this.lock.Lock()
	defer this.lock.Unlock()
	if this.m_file == nil {
		return tools.ErrorWithCode(this.log, lsm_txn_lib.LSM_TXN_ERROR_MISUSE, "file store hasn't been started"), nil
	}
	var ret, page = this.read_page(page_num)
	if ret != nil {
		return ret, nil
	}
	var length = binary.LittleEndian.Uint32(page[0:])
	if length > this.m_page_size-meta_page_length_size {
		return tools.ErrorWithCode(this.log, lsm_txn_lib.LSM_TXN_ERROR_CORRUPT, "meta page ", page_num,
			" claims ", length, " bytes in a ", this.m_page_size, " byte page"), nil
	}
	var data = make([]byte, length)
	copy(data, page[meta_page_length_size:meta_page_length_size+length])
	return nil, &data
}

func (this *File_store_aligned) Store_meta_page(page_num uint32, data *[]byte) tools.Ret {
	if ret := check_meta_page(this.log, page_num); ret != nil {
		return ret
	}
	if uint64(len(*data)) > uint64(this.m_page_size-meta_page_length_size) {
		return tools.ErrorWithCode(this.log, lsm_txn_lib.LSM_TXN_ERROR_MISUSE, "checkpoint of ", len(*data),
			" bytes does not fit in a ", this.m_page_size, " byte meta page")
	}
	this.lock.Lock()
	defer this.lock.Unlock()
	if this.m_file == nil {
		return tools.ErrorWithCode(this.log, lsm_txn_lib.LSM_TXN_ERROR_MISUSE, "file store hasn't been started")
	}
	var page = this.m_iopath.Alloc_aligned(this.m_page_size)
	binary.LittleEndian.PutUint32(page[0:], uint32(len(*data)))
	copy(page[meta_page_length_size:], *data)
	return this.write_page(page_num, page)
}

func (this *File_store_aligned) Sync() tools.Ret {
	this.lock.Lock()
	defer this.lock.Unlock()
	if this.m_file == nil {
		return nil
	}
	return this.sync_file()
}

func (this *File_store_aligned) Shutdown() tools.Ret {
	this.lock.Lock()
	defer this.lock.Unlock()
	if this.m_file == nil {
		return tools.Error(this.log, "file store ", this.m_path, " hasn't been started, can't be shut down")
	}
	var err = this.m_file.Close()
	this.m_file = nil
	if err != nil {
		return tools.ErrorWithCode(this.log, lsm_txn_lib.LSM_TXN_ERROR_IO, "unable to close file store ",
			this.m_path, ", err: ", err)
	}
	return nil
}

func (this *File_store_aligned) Wipe() tools.Ret {
	/* zero out the header page so the next startup starts over. */
	this.lock.Lock()
	defer this.lock.Unlock()
	if this.m_file == nil {
		return tools.ErrorWithCode(this.log, lsm_txn_lib.LSM_TXN_ERROR_MISUSE, "file store hasn't been started")
	}
	var ret = this.write_page(0, this.m_iopath.Alloc_aligned(this.m_page_size))
	if ret != nil {
		return ret
	}
	return this.sync_file()
}
