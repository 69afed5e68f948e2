package bolt

import "fmt"

// ResponseHandler is the trait every pending request attaches to the
// pipeline (spec.md §9: "replace dynamic dispatch on message handlers with
// a tagged enum of message kinds plus a ResponseHandler interface").
type ResponseHandler interface {
	OnSuccess(metadata map[string]any)
	OnRecord(fields []any)
	OnFailure(err *Neo4jError)
	OnIgnored()
}

// pipeline is the per-connection FIFO of pending response handlers
// (component C4). It is never accessed concurrently: the owning Connection
// is single-threaded from its own perspective (spec.md §5).
type pipeline struct {
	queue      []ResponseHandler
	stickyErr  *Neo4jError
}

func newPipeline() *pipeline { return &pipeline{} }

// Enqueue records that one more request has been sent and will receive
// exactly one terminal response (SUCCESS/FAILURE), possibly preceded by any
// number of RECORD messages.
func (p *pipeline) Enqueue(h ResponseHandler) {
	p.queue = append(p.queue, h)
}

// Pending returns the number of handlers awaiting a terminal response.
func (p *pipeline) Pending() int { return len(p.queue) }

// Dispatch feeds one decoded Response to the head of the queue, per
// spec.md §4.4: SUCCESS/FAILURE dequeue; RECORD peeks without dequeuing;
// IGNORED dequeues and, if a sticky pipeline error exists, delivers it to
// the handler in place of a generic "ignored" signal.
func (p *pipeline) Dispatch(r Response) error {
	if len(p.queue) == 0 {
		return fmt.Errorf("bolt: protocol violation: response with signature 0x%02X received on empty pipeline", r.Signature)
	}
	head := p.queue[0]
	switch r.Signature {
	case sigSuccess:
		p.queue = p.queue[1:]
		head.OnSuccess(metadataGoMap(r))
		return nil
	case sigRecord:
		fields, _ := r.Fields[0].([]any)
		head.OnRecord(fields)
		return nil
	case sigFailure:
		p.queue = p.queue[1:]
		err := failureToError(r)
		p.stickyErr = err
		head.OnFailure(err)
		return nil
	case sigIgnored:
		p.queue = p.queue[1:]
		if p.stickyErr != nil {
			head.OnFailure(p.stickyErr)
		} else {
			head.OnIgnored()
		}
		return nil
	default:
		return fmt.Errorf("bolt: protocol violation: unexpected response signature 0x%02X", r.Signature)
	}
}

// ClearSticky resets the sticky pipeline error, called after a successful
// RESET moves the connection back to READY.
func (p *pipeline) ClearSticky() { p.stickyErr = nil }

// Poison delivers a connection-broken error to every still-pending handler,
// called when the connection becomes DEFUNCT (spec.md §7: "on connection
// tear-down all outstanding waiters on that connection receive the broken
// connection error").
func (p *pipeline) Poison(err *Neo4jError) {
	pending := p.queue
	p.queue = nil
	for _, h := range pending {
		h.OnFailure(err)
	}
}

func metadataGoMap(r Response) map[string]any {
	if len(r.Fields) == 0 {
		return nil
	}
	if m, ok := r.Fields[0].(map[string]any); ok {
		return m
	}
	if m, ok := metadataField(r.Fields[0]); ok {
		return m
	}
	return nil
}

func metadataField(v any) (map[string]any, bool) {
	type mapLike interface{ ToGoMap() map[string]any }
	if ml, ok := v.(mapLike); ok {
		return ml.ToGoMap(), true
	}
	return nil, false
}

func failureToError(r Response) *Neo4jError {
	meta := metadataGoMap(r)
	code, _ := meta["code"].(string)
	msg, _ := meta["message"].(string)
	err := NewFailureError(code, msg)
	if causeRaw, ok := meta["gql_cause"]; ok {
		if causeMeta, ok := toMap(causeRaw); ok {
			causeCode, _ := causeMeta["neo4j_code"].(string)
			causeMsg, _ := causeMeta["message"].(string)
			err.GqlCause = NewFailureError(causeCode, causeMsg)
		}
	}
	return err
}

func toMap(v any) (map[string]any, bool) {
	if m, ok := v.(map[string]any); ok {
		return m, true
	}
	return metadataField(v)
}
