// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package mqtt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFifo(t *testing.T) {
	q := newFifo[int]()
	require.Equal(t, 0, q.len())
	require.Empty(t, q.take())

	q.push()
	require.Len(t, q.wake, 0)

	q.push(1, 2)
	q.push(3)
	require.Equal(t, 3, q.len())
	require.Len(t, q.wake, 1)

	require.Equal(t, []int{1, 2, 3}, q.take())
	require.Equal(t, 0, q.len())
}

func TestFifoConsumer(t *testing.T) {
	q := newFifo[int]()
	got := make(chan []int)

	go func() {
		var all []int
		for len(all) < 100 {
			<-q.wake
			all = append(all, q.take()...)
		}
		got <- all
	}()

	want := make([]int, 0, 100)
	for i := 0; i < 100; i++ {
		q.push(i)
		want = append(want, i)
	}

	require.Equal(t, want, <-got)
}
