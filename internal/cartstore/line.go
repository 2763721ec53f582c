package cartstore

import "qmd/internal/domain"

// LineState is the reconciliation state of one line item.
//
//	settled --edit--> pending --ok--> settled
//	                          --err-> reverted --edit--> pending
type LineState int

const (
	LineSettled LineState = iota
	LinePending
	LineReverted
)

func (s LineState) String() string {
	switch s {
	case LinePending:
		return "pending"
	case LineReverted:
		return "reverted"
	default:
		return "settled"
	}
}

// line pairs the displayed (possibly optimistic) item with the last quantity the
// API confirmed. Every edit gets a sequence number; only the newest edit may
// drive the displayed value, and a confirmation never moves the confirmed
// quantity back to an older edit.
type line struct {
	item         domain.LineItem
	confirmed    int
	confirmedSeq uint64
	issued       uint64
	state        LineState
}

func newLine(item domain.LineItem) *line {
	l := &line{item: item, confirmed: item.Cantidad}
	l.show(item.Cantidad)
	return l
}

func (l *line) show(q int) {
	l.item.Cantidad = q
	l.item.Subtotal = l.item.ExpectedSubtotal()
}

// begin applies q optimistically and returns the edit's sequence number.
func (l *line) begin(q int) uint64 {
	l.issued++
	l.state = LinePending
	l.show(q)
	return l.issued
}

// settle records the API's confirmation of edit seq with quantity q.
func (l *line) settle(seq uint64, q int) {
	if seq > l.confirmedSeq {
		l.confirmed, l.confirmedSeq = q, seq
	}
	if seq == l.issued {
		l.state = LineSettled
	}
	if l.state != LinePending {
		l.show(l.confirmed)
	}
}

// fail rolls the display back to the confirmed quantity when seq is the newest
// edit. Failures of superseded edits are ignored and report false.
func (l *line) fail(seq uint64) bool {
	if seq != l.issued {
		return false
	}
	l.state = LineReverted
	l.show(l.confirmed)
	return true
}
