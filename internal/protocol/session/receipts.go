package session

import (
	"sort"
	"strconv"
	"time"
)

// ReceiptKind records which operation requested a receipt.
type ReceiptKind int

const (
	ReceiptNone ReceiptKind = iota
	ReceiptSubscribe
	ReceiptUnsubscribe
	ReceiptDisconnect
)

func (k ReceiptKind) String() string {
	switch k {
	case ReceiptSubscribe:
		return "subscribe"
	case ReceiptUnsubscribe:
		return "unsubscribe"
	case ReceiptDisconnect:
		return "disconnect"
	default:
		return "none"
	}
}

// Pending tracks one receipt awaiting its RECEIPT frame.
type Pending struct {
	ID             string
	Kind           ReceiptKind
	Channel        string
	SubscriptionID int
	IssuedAt       time.Time
	seq            uint64
}

type pendingReceipt struct {
	Pending
	done chan error
}

// Receipts allocates receipt ids and correlates RECEIPT frames with the
// operations that asked for them. Not safe for concurrent use.
type Receipts struct {
	next  uint64
	items map[string]*pendingReceipt
	now   func() time.Time
}

func NewReceipts() *Receipts {
	return &Receipts{
		next:  1,
		items: make(map[string]*pendingReceipt),
		now:   time.Now,
	}
}

// NewReceipt returns the next receipt id. Ids are decimal and start at 1.
func (r *Receipts) NewReceipt() string {
	id := strconv.FormatUint(r.next, 10)
	r.next++
	return id
}

// Await marks p.ID outstanding. The returned channel receives exactly one
// value: nil on Resolve, the failure cause on Fail or Abort.
func (r *Receipts) Await(p Pending) <-chan error {
	if p.IssuedAt.IsZero() {
		p.IssuedAt = r.now()
	}
	p.seq, _ = strconv.ParseUint(p.ID, 10, 64)
	item := &pendingReceipt{Pending: p, done: make(chan error, 1)}
	if old, ok := r.items[p.ID]; ok {
		old.done <- errReceiptReplaced
	}
	r.items[p.ID] = item
	return item.done
}

// Resolve reports whether id was outstanding and releases its waiter.
func (r *Receipts) Resolve(id string) (Pending, bool) {
	item, ok := r.items[id]
	if !ok {
		return Pending{}, false
	}
	delete(r.items, id)
	item.done <- nil
	return item.Pending, true
}

// Fail releases the waiter for id with cause.
func (r *Receipts) Fail(id string, cause error) (Pending, bool) {
	item, ok := r.items[id]
	if !ok {
		return Pending{}, false
	}
	delete(r.items, id)
	item.done <- cause
	return item.Pending, true
}

// Abort fails every outstanding receipt with cause.
func (r *Receipts) Abort(cause error) {
	for id, item := range r.items {
		item.done <- cause
		delete(r.items, id)
	}
}

func (r *Receipts) Get(id string) (Pending, bool) {
	item, ok := r.items[id]
	if !ok {
		return Pending{}, false
	}
	return item.Pending, true
}

// Waiter returns the channel released when id resolves.
func (r *Receipts) Waiter(id string) (<-chan error, bool) {
	item, ok := r.items[id]
	if !ok {
		return nil, false
	}
	return item.done, true
}

func (r *Receipts) Len() int {
	return len(r.items)
}

// List returns outstanding receipts in issue order.
func (r *Receipts) List() []Pending {
	out := make([]Pending, 0, len(r.items))
	for _, item := range r.items {
		out = append(out, item.Pending)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].seq < out[j].seq
	})
	return out
}
