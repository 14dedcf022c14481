// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package mqtt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTokenComplete(t *testing.T) {
	tk := newToken()
	require.NoError(t, tk.Error())

	select {
	case <-tk.Done():
		require.FailNow(t, "token complete before completion")
	default:
	}

	tk.complete(ErrPingTimeout)
	tk.complete(nil)

	<-tk.Done()
	require.ErrorIs(t, tk.Error(), ErrPingTimeout)
	require.ErrorIs(t, tk.Wait(context.Background()), ErrPingTimeout)
}

func TestTokenWaitContext(t *testing.T) {
	tk := newToken()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, tk.Wait(ctx), context.DeadlineExceeded)
}

func TestSubscribeTokenGranted(t *testing.T) {
	tk := newSubscribeToken()
	require.Nil(t, tk.Granted())

	tk.completeWith([]byte{0, 2}, nil)
	tk.completeWith([]byte{1}, ErrSubscribeRejected)

	require.NoError(t, tk.Wait(context.Background()))
	require.Equal(t, []byte{0, 2}, tk.Granted())
}
