// Package session carries the signed-in member and the session's lifetime
// into the settlement and transfer entry points.
package session

import (
	"context"
	"errors"
)

// ErrEnded is the cause recorded when a session is logged out or expires.
var ErrEnded = errors.New("session ended")

// Member is the signed-in user.
type Member struct {
	ID   int64
	Name string
}

// Session is an explicit, UI-independent session handle. Ending it cancels
// every in-flight call made through Context.
type Session struct {
	member Member
	ctx    context.Context
	cancel context.CancelCauseFunc
}

// New starts a session for member, bounded by parent.
func New(parent context.Context, member Member) *Session {
	ctx, cancel := context.WithCancelCause(parent)
	return &Session{member: member, ctx: ctx, cancel: cancel}
}

// Member returns the signed-in member.
func (s *Session) Member() Member { return s.member }

// Context returns the context to use for calls made on behalf of the session.
func (s *Session) Context() context.Context { return s.ctx }

// Logout ends the session. It is safe to call more than once.
func (s *Session) Logout() { s.cancel(ErrEnded) }

// Err returns nil while the session is live and ErrEnded (or the parent's
// cause) afterwards.
func (s *Session) Err() error {
	if s.ctx.Err() == nil {
		return nil
	}
	return context.Cause(s.ctx)
}
