package mqttcore

import (
	"bytes"
	"sync"
)

// bufferPool reduces allocations in the encode hot path (WritePacket's
// maxSize pre-check). Buffers that grew past a reasonable size are not
// returned to the pool, so one oversized packet doesn't pin a large
// backing array forever.
var bufferPool = sync.Pool{
	New: func() any {
		return new(bytes.Buffer)
	},
}

const maxPooledBufferCap = 65536

func putBuffer(buf *bytes.Buffer) {
	if buf == nil {
		return
	}
	if buf.Cap() > maxPooledBufferCap {
		return
	}
	buf.Reset()
	bufferPool.Put(buf)
}
