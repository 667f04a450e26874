package memory

import "sync"

// fanout is a set of buffered subscriber channels. It is guarded by the owner's
// mutex, which must be held for broadcast and while subscribe is called.
type fanout[T any] struct {
	subs map[chan T]struct{}
}

// subscribe registers a channel primed with initial. The returned cancel locks mu.
func (f *fanout[T]) subscribe(mu sync.Locker, initial T) (<-chan T, func()) {
	if f.subs == nil {
		f.subs = make(map[chan T]struct{})
	}
	ch := make(chan T, 8)
	f.subs[ch] = struct{}{}
	ch <- initial

	cancel := func() {
		mu.Lock()
		if _, ok := f.subs[ch]; ok {
			delete(f.subs, ch)
			close(ch)
		}
		mu.Unlock()
	}
	return ch, cancel
}

// broadcast never blocks: a full subscriber loses its oldest pending value.
func (f *fanout[T]) broadcast(v T) {
	for ch := range f.subs {
		select {
		case ch <- v:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- v
		}
	}
}

func (f *fanout[T]) len() int {
	return len(f.subs)
}
