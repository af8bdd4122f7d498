package mqueue

import (
	"fmt"
	"strconv"
	"strings"
)

// Handle is the opaque queue-item handle h_k = "<priority>:<insert_time>:<item>".
// It is treated as opaque by every server and parsed only by the client
// after a successful Get.
type Handle string

// newHandle composes a handle the way put.py's `"%d:%f:%s"` does.
func newHandle(priority int, insertTime float64, item string) Handle {
	return Handle(fmt.Sprintf("%d:%f:%s", priority, insertTime, item))
}

// Parse splits a handle back into its three fields.
func (h Handle) Parse() (priority int, insertTime float64, item string, err error) {
	parts := strings.SplitN(string(h), ":", 3)
	if len(parts) != 3 {
		return 0, 0, "", fmt.Errorf("mqueue: malformed handle %q", h)
	}
	priority, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, "", fmt.Errorf("mqueue: malformed handle priority in %q: %w", h, err)
	}
	insertTime, err = strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return 0, 0, "", fmt.Errorf("mqueue: malformed handle insert_time in %q: %w", h, err)
	}
	return priority, insertTime, parts[2], nil
}
