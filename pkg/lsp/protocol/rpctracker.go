package protocol

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/creachadair/jrpc2"
)

// RPCMessage is one request or response seen by the server.
type RPCMessage struct {
	Method   string
	Request  *jrpc2.Request
	Response *jrpc2.Response
	Time     time.Time
}

var _ jrpc2.RPCLogger = (*RPCTracker)(nil)

// RPCTracker records server traffic so tests can wait on it.
type RPCTracker struct {
	mu sync.RWMutex

	messages     []RPCMessage
	subs         map[chan RPCMessage]struct{}
	knownMethods map[string]string
}

func NewRPCTracker() *RPCTracker {
	return &RPCTracker{
		subs:         make(map[chan RPCMessage]struct{}),
		knownMethods: make(map[string]string),
	}
}

func (t *RPCTracker) LogRequest(ctx context.Context, req *jrpc2.Request) {
	t.mu.Lock()
	t.knownMethods[req.ID()] = req.Method()
	t.mu.Unlock()
	t.Track(RPCMessage{Method: req.Method(), Request: req})
}

func (t *RPCTracker) LogResponse(ctx context.Context, resp *jrpc2.Response) {
	t.mu.RLock()
	method := t.knownMethods[resp.ID()]
	t.mu.RUnlock()
	t.Track(RPCMessage{Method: method, Response: resp})
}

func (t *RPCTracker) Track(msg RPCMessage) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	msg.Time = time.Now()
	t.messages = append(t.messages, msg)
	for ch := range t.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (t *RPCTracker) Messages() []RPCMessage {
	if t == nil {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.messages)
}

func (t *RPCTracker) MessagesLike(predicate func(RPCMessage) bool) []RPCMessage {
	return slices.DeleteFunc(t.Messages(), func(m RPCMessage) bool { return !predicate(m) })
}

// WaitForMessages blocks until count messages match predicate or timeout
// passes, and reports whether enough arrived.
func (t *RPCTracker) WaitForMessages(count int, timeout time.Duration, predicate func(RPCMessage) bool) ([]RPCMessage, bool) {
	ch := make(chan RPCMessage, 64)
	t.mu.Lock()
	t.subs[ch] = struct{}{}
	result := slices.DeleteFunc(slices.Clone(t.messages), func(m RPCMessage) bool { return !predicate(m) })
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.subs, ch)
		t.mu.Unlock()
	}()

	if len(result) >= count {
		return result, true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case msg := <-ch:
			if predicate(msg) {
				result = append(result, msg)
			}
			if len(result) >= count {
				return result, true
			}
		case <-timer.C:
			return result, false
		}
	}
}
