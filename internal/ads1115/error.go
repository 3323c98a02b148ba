// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ads1115

import "fmt"

// InvalidChannelError is returned when a channel number outside 0..3 is
// requested.
type InvalidChannelError struct {
	Channel uint8
}

func (e *InvalidChannelError) Error() string {
	return fmt.Sprintf("ads1115: invalid channel %d, must be 0..3", e.Channel)
}
