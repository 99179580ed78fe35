// Package actor provides the single-threaded message-loop primitive
// design note §9 asks every stateful component to be built on: "one
// single-threaded event loop per component holding its state
// exclusively; expose call (request+reply with timeout) and cast
// (fire-and-forget) primitives." It generalizes the inbox-channel plus
// ctx-cancel loop shape of the teacher's internal/node.Node.process(),
// stripped of everything tied to the teacher's visual-flow concept
// (ports, categories, node registry) since none of that applies here.
package actor

import (
	"context"
	"fmt"
)

// job is a unit of work handed to the loop: run executes against the
// actor's private state (passed in by the concrete actor wrapping this
// loop) and reply, if non-nil, is closed with the result for Call.
type job struct {
	run   func()
	done  chan struct{}
}

// Mailbox is the generic inbox a single-threaded actor loop drains.
// Concrete actors (the SX1276 driver, the UART modem, the beacon
// engine, the echo responder) embed one and call Run from their own
// goroutine, submitting state-mutating closures via Cast/Call so every
// mutation of actor-private state happens on that one goroutine.
type Mailbox struct {
	inbox chan job
}

func NewMailbox(capacity int) *Mailbox {
	return &Mailbox{inbox: make(chan job, capacity)}
}

// Run drains the mailbox until ctx is cancelled. The caller starts this
// in its own goroutine.
func (m *Mailbox) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-m.inbox:
			j.run()
			if j.done != nil {
				close(j.done)
			}
		}
	}
}

// Cast submits fn to run on the actor's loop without waiting for it to
// complete. Fire-and-forget, per design note §9.
func (m *Mailbox) Cast(fn func()) {
	m.inbox <- job{run: fn}
}

// Call submits fn to run on the actor's loop and blocks the caller
// until it completes or ctx is cancelled, matching the call+reply with
// explicit timeout concurrency model of §5.
func Call[T any](ctx context.Context, m *Mailbox, fn func() T) (T, error) {
	var zero T
	var result T
	done := make(chan struct{})
	select {
	case m.inbox <- job{
		run:  func() { result = fn() },
		done: done,
	}:
	case <-ctx.Done():
		return zero, fmt.Errorf("actor: call not accepted: %w", ctx.Err())
	}

	select {
	case <-done:
		return result, nil
	case <-ctx.Done():
		return zero, fmt.Errorf("actor: call timed out: %w", ctx.Err())
	}
}

// CallErr is Call for functions that can themselves fail.
func CallErr[T any](ctx context.Context, m *Mailbox, fn func() (T, error)) (T, error) {
	var zero T
	type res struct {
		v   T
		err error
	}
	r, err := Call(ctx, m, func() res {
		v, err := fn()
		return res{v, err}
	})
	if err != nil {
		return zero, err
	}
	return r.v, r.err
}
