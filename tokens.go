// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package mqtt

import (
	"context"
	"sync"
)

// Token tracks an asynchronous client operation. It is completed exactly once,
// with either success or an error.
type Token struct {
	done chan struct{}
	err  error
	once sync.Once
}

// newToken returns a new incomplete token.
func newToken() *Token {
	return &Token{
		done: make(chan struct{}),
	}
}

// Wait blocks until the operation completes or the context is cancelled.
func (t *Token) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done returns a channel that closes when the operation is complete.
func (t *Token) Done() <-chan struct{} {
	return t.done
}

// Error returns the error of a completed operation, or nil if it has not
// completed or succeeded.
func (t *Token) Error() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// complete marks the token as complete with the given error. Subsequent calls are ignored.
func (t *Token) complete(err error) {
	t.once.Do(func() {
		t.err = err
		close(t.done)
	})
}

// SubscribeToken tracks a subscribe operation and holds the return codes from the SUBACK.
type SubscribeToken struct {
	*Token
	codes []byte
}

// newSubscribeToken returns a new incomplete subscribe token.
func newSubscribeToken() *SubscribeToken {
	return &SubscribeToken{
		Token: newToken(),
	}
}

// Granted returns the return codes of the SUBACK once the token is complete.
// Each is the granted qos, or 0x80 if the server rejected the filter.
func (t *SubscribeToken) Granted() []byte {
	select {
	case <-t.done:
		return t.codes
	default:
		return nil
	}
}

// completeWith sets the return codes and completes the token.
func (t *SubscribeToken) completeWith(codes []byte, err error) {
	t.once.Do(func() {
		t.codes = codes
		t.err = err
		close(t.done)
	})
}
