package stream

import (
	"context"
	"sync"
)

// MergeFrames fans N transport frame channels into one logical sequence.
// Exchanges cap the number of subscriptions per connection, so a watch over
// many markets runs several sockets; downstream code still wants a single
// stream. Each input is drained by its own forwarding goroutine, so no
// connection can starve another; order across connections carries no
// meaning since every market's diffs arrive on exactly one connection.
//
// The returned channel closes once every input has closed or the context is
// cancelled.
func MergeFrames(ctx context.Context, buffer int, inputs ...<-chan []byte) <-chan []byte {
	out := make(chan []byte, buffer)

	var wg sync.WaitGroup
	wg.Add(len(inputs))
	for _, in := range inputs {
		go func(in <-chan []byte) {
			defer wg.Done()
			for {
				select {
				case frame, ok := <-in:
					if !ok {
						return
					}
					select {
					case out <- frame:
					case <-ctx.Done():
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}(in)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}
