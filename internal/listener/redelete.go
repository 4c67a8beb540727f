package listener

import "sync"

// pendingRedeletes tracks message IDs whose direct (non-batched) delete
// failed because the receipt handle had already expired, mirroring the
// teacher's Consumer.pendingDeletes map
// (internal/queue/sqs/client.go:160,446-463,508-512). The next time a
// message with that ID is received, the poller deletes it immediately
// instead of handing it to the message listener again.
type pendingRedeletes struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func newPendingRedeletes() *pendingRedeletes {
	return &pendingRedeletes{ids: make(map[string]struct{})}
}

// mark records messageID as already processed, awaiting redelete.
func (p *pendingRedeletes) mark(messageID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids[messageID] = struct{}{}
}

// take reports whether messageID was marked, clearing it if so.
func (p *pendingRedeletes) take(messageID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.ids[messageID]; !ok {
		return false
	}
	delete(p.ids, messageID)
	return true
}
