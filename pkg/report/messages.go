package report

import (
	"fmt"
	"io"

	"github.com/ssargent/frost/pkg/bag"
)

// Messages writes "time topic size" for every message of it and closes it.
// It returns the number of messages written.
func Messages(w io.Writer, it *bag.MessageIterator) (int, error) {
	defer it.Close()
	n := 0
	for it.Next() {
		msg := it.Message()
		if _, err := fmt.Fprintf(w, "%s %s %d\n", msg.Time, msg.Topic, msg.Size()); err != nil {
			return n, err
		}
		n++
	}
	return n, it.Err()
}
