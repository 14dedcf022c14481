// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2023 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package mqtt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// namedHandler returns a handler which appends name to out when called.
func namedHandler(name string, out *[]string) MessageHandler {
	return func(msg *Message) {
		*out = append(*out, name)
	}
}

func TestNewTopicsIndex(t *testing.T) {
	index := NewTopicsIndex()
	require.NotNil(t, index)
	require.NotNil(t, index.root)
	require.Equal(t, 0, index.Len())
}

func TestTopicsIndexSubscribe(t *testing.T) {
	index := NewTopicsIndex()
	var out []string

	require.True(t, index.Subscribe("a/b/c", namedHandler("first", &out)))
	require.False(t, index.Subscribe("a/b/c", namedHandler("second", &out)))
	require.Equal(t, 1, index.Len())

	for _, h := range index.Handlers("a/b/c") {
		h(nil)
	}
	require.Equal(t, []string{"second"}, out)

	require.Contains(t, index.root.particles, "a")
	require.Contains(t, index.root.particles["a"].particles, "b")
	require.Contains(t, index.root.particles["a"].particles["b"].particles, "c")
}

func TestTopicsIndexUnsubscribe(t *testing.T) {
	index := NewTopicsIndex()
	var out []string
	index.Subscribe("a/b/c", namedHandler("abc", &out))
	index.Subscribe("a/b", namedHandler("ab", &out))

	require.True(t, index.Unsubscribe("a/b/c"))
	require.Equal(t, 1, index.Len())
	require.NotContains(t, index.root.particles["a"].particles["b"].particles, "c")

	require.False(t, index.Unsubscribe("a/b/c"))
	require.False(t, index.Unsubscribe("x/y"))

	require.True(t, index.Unsubscribe("a/b"))
	require.Empty(t, index.root.particles)
}

func TestTopicsIndexHandlers(t *testing.T) {
	index := NewTopicsIndex()
	var out []string
	for _, f := range []string{
		"a/b/c",
		"a/+/c",
		"a/#",
		"+/b",
		"#",
		"a/b/c/d",
		"$SYS/uptime",
		"$SYS/#",
		"d/e/f",
	} {
		index.Subscribe(f, namedHandler(f, &out))
	}

	tt := []struct {
		topic string
		want  []string
	}{
		{"a/b/c", []string{"#", "a/#", "a/+/c", "a/b/c"}},
		{"a/b", []string{"#", "+/b", "a/#"}},
		{"a", []string{"#", "a/#"}},
		{"a/x/c", []string{"#", "a/#", "a/+/c"}},
		{"d/e/f", []string{"#", "d/e/f"}},
		{"d/e", []string{"#"}},
		{"$SYS/uptime", []string{"$SYS/#", "$SYS/uptime"}},
		{"$SYS/other", []string{"$SYS/#"}},
	}

	for _, tx := range tt {
		t.Run(tx.topic, func(t *testing.T) {
			out = nil
			for _, h := range index.Handlers(tx.topic) {
				h(nil)
			}
			require.Equal(t, tx.want, out)
		})
	}

	require.Empty(t, index.Handlers(""))
}

func TestIsolateParticle(t *testing.T) {
	particle, hasNext := isolateParticle("path/to/my/mqtt", 0)
	require.Equal(t, "path", particle)
	require.Equal(t, true, hasNext)
	particle, hasNext = isolateParticle("path/to/my/mqtt", 1)
	require.Equal(t, "to", particle)
	require.Equal(t, true, hasNext)
	particle, hasNext = isolateParticle("path/to/my/mqtt", 2)
	require.Equal(t, "my", particle)
	require.Equal(t, true, hasNext)
	particle, hasNext = isolateParticle("path/to/my/mqtt", 3)
	require.Equal(t, "mqtt", particle)
	require.Equal(t, false, hasNext)

	particle, hasNext = isolateParticle("/path/", 0)
	require.Equal(t, "", particle)
	require.Equal(t, true, hasNext)
	particle, hasNext = isolateParticle("/path/", 1)
	require.Equal(t, "path", particle)
	require.Equal(t, true, hasNext)
	particle, hasNext = isolateParticle("/path/", 2)
	require.Equal(t, "", particle)
	require.Equal(t, false, hasNext)

	particle, hasNext = isolateParticle("a/b/c/+/+", 3)
	require.Equal(t, "+", particle)
	require.Equal(t, true, hasNext)
	particle, hasNext = isolateParticle("a/b/c/+/+", 4)
	require.Equal(t, "+", particle)
	require.Equal(t, false, hasNext)
}

func BenchmarkIsolateParticle(b *testing.B) {
	for n := 0; n < b.N; n++ {
		isolateParticle("path/to/my/mqtt", 3)
	}
}

func TestIsValidFilter(t *testing.T) {
	require.True(t, IsValidFilter("a/b/c", false))
	require.True(t, IsValidFilter("a/b//c", false))
	require.True(t, IsValidFilter("$SYS", false))
	require.True(t, IsValidFilter("$SYS/info", false))
	require.True(t, IsValidFilter("abc/#", false))
	require.True(t, IsValidFilter("#", false))
	require.True(t, IsValidFilter("+/+/c", false))
	require.False(t, IsValidFilter("", false))
	require.False(t, IsValidFilter("a/#/c", false))
	require.False(t, IsValidFilter("a/b#", false))
	require.False(t, IsValidFilter("a/b+/c", false))
}

func TestIsValidForPublish(t *testing.T) {
	require.False(t, IsValidFilter("", true))
	require.True(t, IsValidFilter("a/b/c", true))
	require.True(t, IsValidFilter("$SYS/info", true))
	require.False(t, IsValidFilter("a/b/+/d", true))
	require.False(t, IsValidFilter("a/b/#", true))
}
