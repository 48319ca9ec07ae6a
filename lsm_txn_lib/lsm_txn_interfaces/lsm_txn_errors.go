// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

package lsm_txn_lib

import "syscall"

/* the errcodes every Ret coming out of this library can carry.
   anything else is an uncoded tools.Error and is a bug somewhere. */

const LSM_TXN_ERROR_NOMEM int = int(syscall.ENOMEM)    // the allocator said no, nothing was changed
const LSM_TXN_ERROR_IO int = int(syscall.EIO)          // passed up from the tree, log or checkpoint store
const LSM_TXN_ERROR_CORRUPT int = int(syscall.EBADMSG) // checkpoint or blob failed to verify
const LSM_TXN_ERROR_MISUSE int = int(syscall.EINVAL)   // called in a state where it makes no sense
