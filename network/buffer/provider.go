package buffer

// NotificationResult is what a BufferListener reports back to the pool that
// offered it a buffer.
type NotificationResult int

const (
	BufferNotUsed NotificationResult = iota
	BufferUsedNeedMore
	BufferUsedNoNeedMore
)

func (r NotificationResult) IsBufferUsed() bool {
	return r == BufferUsedNeedMore || r == BufferUsedNoNeedMore
}

func (r NotificationResult) NeedsMoreBuffers() bool {
	return r == BufferUsedNeedMore
}

func (r NotificationResult) String() string {
	switch r {
	case BufferNotUsed:
		return "not-used"
	case BufferUsedNeedMore:
		return "used-need-more"
	case BufferUsedNoNeedMore:
		return "used-no-need-more"
	default:
		return "invalid"
	}
}

// A BufferListener is registered with a BufferProvider when a request could
// not be served; the provider calls it back as buffers free up. The callback
// runs on the recycling goroutine.
type BufferListener interface {
	NotifyBufferAvailable(b *Buffer) NotificationResult
	NotifyBufferDestroyed()
}

// A BufferProvider hands out floating buffers.
type BufferProvider interface {
	// RequestBuffer returns a buffer or nil if the provider is exhausted.
	RequestBuffer() *Buffer

	// AddBufferListener registers l to be notified when a buffer frees up.
	// Returns false if the provider declines the registration (it has
	// buffers available, or it is destroyed).
	AddBufferListener(l BufferListener) bool
}
