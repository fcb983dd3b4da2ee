package metrics

import (
	"context"

	"github.com/newrelic/go-agent/v3/newrelic"
)

const (
	outcomeAttribute = "outcome"
	errorAttribute   = "error"

	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// MethodTracer is a segment of the New Relic transaction carried by the
// context it was started from. A nil *MethodTracer is valid and does nothing,
// so callers never check whether tracing is enabled.
type MethodTracer struct {
	txn    *newrelic.Transaction
	seg    *newrelic.Segment
	failed bool
}

// TraceMethodCall starts a segment named "<component> <method>". It returns
// nil when ctx carries no transaction.
func TraceMethodCall(ctx context.Context, component, method string) *MethodTracer {
	txn := newrelic.FromContext(ctx)
	if txn == nil {
		return nil
	}

	return &MethodTracer{
		txn: txn,
		seg: txn.StartSegment(component + " " + method),
	}
}

func (t *MethodTracer) AddAttribute(key string, value interface{}) {
	if t != nil {
		t.seg.AddAttribute(key, value)
	}
}

func (t *MethodTracer) AddAttributes(attributes map[string]interface{}) {
	for key, value := range attributes {
		t.AddAttribute(key, value)
	}
}

// OnError notices err on the transaction and marks the segment as failed.
// Nil errors are ignored.
func (t *MethodTracer) OnError(err error) {
	if t == nil || err == nil {
		return
	}

	t.failed = true
	t.seg.AddAttribute(errorAttribute, err.Error())
	t.txn.NoticeError(err)
}

// End closes the segment, tagging it with the outcome.
func (t *MethodTracer) End() {
	if t == nil {
		return
	}

	outcome := outcomeSuccess
	if t.failed {
		outcome = outcomeFailure
	}
	t.seg.AddAttribute(outcomeAttribute, outcome)
	t.seg.End()
}
