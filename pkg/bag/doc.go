// Package bag reads bag recordings.
//
// Two handle types implement Reader. A Bag decompresses chunks on demand
// and keeps only the most recent one in memory. A DecompressedBag
// decompresses every chunk into one buffer when it is opened. Choosing
// between them is up to the caller: the first is cheap to open and light on
// memory, the second avoids repeated decompression across several passes.
//
//	b, err := bag.Open("run.bag")
//	if err != nil {
//		return err
//	}
//	defer b.Close()
//
//	it, err := b.ReadMessages(query.ByTopic("/odom"))
//	if err != nil {
//		return err
//	}
//	defer it.Close()
//	for it.Next() {
//		msg := it.Message()
//		fmt.Println(msg.Time, msg.Topic, msg.Size())
//	}
//	return it.Err()
//
// A MessageView borrows its Data from a chunk buffer. For a Bag the buffer
// is replaced when iteration moves to another chunk, so a view must not be
// kept past the next call to Next. Use Clone or Collect to keep messages.
//
// Handles are not safe for concurrent use. Open one handle per goroutine.
package bag
