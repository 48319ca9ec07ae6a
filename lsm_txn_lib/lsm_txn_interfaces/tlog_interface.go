// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

// Package lsm_txn_lib ... has a comment
package lsm_txn_lib

import "github.com/nixomose/nixomosegotools/tools"

/* a log mark is the position of the write-ahead log at the moment a transaction level was opened.
the controller never looks inside it, it just hands it back to Seek_to. */
type Log_mark struct {
	Offset       int64
	Record_count uint32
}

type Transaction_log_interface interface {

	/* 10/2/2026 the log interface is the write path's view of the write-ahead log.
	begin opens the write transaction, mark hands out the current position, seek_to
	throws away everything written after a mark (this is how a savepoint rolls back
	its log records) and end closes the write transaction, committing or not.
	replay is not our problem here, the log owns its own record format. */

	Startup(force bool) tools.Ret // assumes replay

	Shutdown() tools.Ret // should not write a commit for a transaction still in flight.

	Begin() tools.Ret

	Write_record(data []byte) tools.Ret

	Mark() Log_mark

	Seek_to(mark Log_mark) tools.Ret

	End(commit bool) tools.Ret

	Sync() tools.Ret

	Offset() int64
}
