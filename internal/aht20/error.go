// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package aht20

import (
	"fmt"
	"time"
)

// ReadTimeoutError is returned when the sensor does not clear its busy
// bit before BusyPollTimeout elapses.
type ReadTimeoutError struct {
	Timeout time.Duration
}

func (e *ReadTimeoutError) Error() string {
	return fmt.Sprintf("aht20: read timeout after %s, sensor stayed busy", e.Timeout)
}
