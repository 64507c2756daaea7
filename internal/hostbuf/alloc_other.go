//go:build !unix

package hostbuf

import (
	"runtime"
	"sync"
)

// Heap-backed allocations stay pinned while a device may hold their address.
var (
	pinMu  sync.Mutex
	pinned = map[*byte]*runtime.Pinner{}
)

func allocate(size int) (data, mapping []byte, err error) {
	data = make([]byte, size)
	p := new(runtime.Pinner)
	p.Pin(&data[0])
	pinMu.Lock()
	pinned[&data[0]] = p
	pinMu.Unlock()
	return data, nil, nil
}

func free(data, _ []byte) error {
	pinMu.Lock()
	defer pinMu.Unlock()
	if p, ok := pinned[&data[0]]; ok {
		p.Unpin()
		delete(pinned, &data[0])
	}
	return nil
}
