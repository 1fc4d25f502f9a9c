package observe

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_PublishOnChange(t *testing.T) {
	v := NewValue[string]()
	var got []string
	cancel := v.Subscribe(func(s string) { got = append(got, s) })
	defer cancel()

	_, ok := v.Get()
	assert.False(t, ok)

	assert.True(t, v.Set("a"))
	assert.False(t, v.Set("a"), "identical value should not publish")
	assert.True(t, v.Set("b"))

	assert.Equal(t, []string{"a", "b"}, got)
	cur, ok := v.Get()
	require.True(t, ok)
	assert.Equal(t, "b", cur)
}

func TestValue_SubscribeReplaysCurrent(t *testing.T) {
	v := NewValue[int]()
	v.Set(7)

	var got []int
	v.Subscribe(func(n int) { got = append(got, n) })
	v.Set(8)

	assert.Equal(t, []int{7, 8}, got)
}

func TestValue_Cancel(t *testing.T) {
	v := NewValue[int]()
	var calls int
	cancel := v.Subscribe(func(int) { calls++ })
	assert.Equal(t, 1, v.Subscribers())

	cancel()
	cancel()
	v.Set(1)

	assert.Zero(t, calls)
	assert.Zero(t, v.Subscribers())
}

func TestValue_Close(t *testing.T) {
	v := NewValue[int]()
	var calls int
	v.Subscribe(func(int) { calls++ })
	v.Set(1)
	v.Close()

	assert.False(t, v.Set(2))
	assert.Equal(t, 1, calls)
	cur, ok := v.Get()
	assert.True(t, ok)
	assert.Equal(t, 1, cur)

	// Subscribing after close is inert.
	v.Subscribe(func(int) { calls++ })
	assert.Equal(t, 1, calls)
	assert.Zero(t, v.Subscribers())
}

func TestValueFunc_Slices(t *testing.T) {
	v := NewValueFunc(func(a, b []int) bool { return slices.Equal(a, b) })
	var calls int
	v.Subscribe(func([]int) { calls++ })

	v.Set([]int{1, 2})
	v.Set([]int{1, 2})
	v.Set([]int{1, 2, 3})
	assert.Equal(t, 2, calls)

	always := NewValueFunc[[]int](nil)
	assert.True(t, always.Set(nil))
	assert.True(t, always.Set(nil))
}

func TestFeed(t *testing.T) {
	f := NewFeed[string]()
	var a, b []string
	cancelA := f.Subscribe(func(s string) { a = append(a, s) })
	f.Subscribe(func(s string) { b = append(b, s) })
	assert.Equal(t, 2, f.Len())

	f.Publish("x")
	cancelA()
	f.Publish("y")

	assert.Equal(t, []string{"x"}, a)
	assert.Equal(t, []string{"x", "y"}, b)
	assert.Equal(t, 1, f.Len())
}

func TestFeed_SubscriberMayUnsubscribeDuringPublish(t *testing.T) {
	f := NewFeed[int]()
	var cancel func()
	var calls int
	cancel = f.Subscribe(func(int) {
		calls++
		cancel()
	})

	f.Publish(1)
	f.Publish(2)
	assert.Equal(t, 1, calls)
}
