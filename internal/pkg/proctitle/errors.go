package proctitle

import "errors"

var ErrEmptyTitle = errors.New("empty process title")

// commMax is TASK_COMM_LEN minus the terminating NUL.
const commMax = 15
