package frontier

import "time"

const (
	testTimeout = time.Second
	testTick    = time.Millisecond
)
