package elasticsearch

import "time"

// SetClock replaces the client's time source.
func SetClock(c *Client, now func() time.Time) { c.now = now }
