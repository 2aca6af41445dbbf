package buffers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seq(from, to int) []int {
	out := make([]int, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, i)
	}
	return out
}

func TestRing_BelowCapacity(t *testing.T) {
	r := NewRing[int](5)
	for i := 1; i <= 3; i++ {
		assert.False(t, r.Push(i))
	}
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []int{1, 2, 3}, r.All())
}

func TestRing_KeepsMostRecentOldestFirst(t *testing.T) {
	for _, total := range []int{100, 101, 150, 250, 1000} {
		r := NewRing[int](100)
		evicted := 0
		for i := 1; i <= total; i++ {
			if r.Push(i) {
				evicted++
			}
		}
		require.Equal(t, 100, r.Len())
		assert.Equal(t, total-100, evicted)
		assert.Equal(t, seq(total-99, total), r.All(), "total=%d", total)
	}
}

func TestRing_Last(t *testing.T) {
	r := NewRing[int](4)
	for i := 1; i <= 6; i++ {
		r.Push(i)
	}
	assert.Equal(t, []int{5, 6}, r.Last(2))
	assert.Equal(t, []int{3, 4, 5, 6}, r.Last(10))
	assert.Empty(t, r.Last(0))
	assert.Empty(t, r.Last(-1))
}

func TestRing_AllReturnsCopy(t *testing.T) {
	r := NewRing[int](2)
	r.Push(1)
	out := r.All()
	out[0] = 99
	assert.Equal(t, []int{1}, r.All())
	assert.NotNil(t, NewRing[int](2).All())
}

func TestRing_FindLast(t *testing.T) {
	type item struct {
		id    string
		value int
	}
	r := NewRing[item](3)
	r.Push(item{"a", 1})
	r.Push(item{"b", 2})
	r.Push(item{"a", 3})
	r.Push(item{"c", 4}) // evicts the first "a"

	p := r.FindLast(func(it *item) bool { return it.id == "a" })
	require.NotNil(t, p)
	assert.Equal(t, 3, p.value)

	p.value = 30
	assert.Equal(t, []item{{"b", 2}, {"a", 30}, {"c", 4}}, r.All())

	assert.Nil(t, r.FindLast(func(it *item) bool { return it.id == "zzz" }))
}

func TestRing_MinimumCapacity(t *testing.T) {
	r := NewRing[string](0)
	assert.Equal(t, 1, r.Cap())
	r.Push("x")
	r.Push("y")
	assert.Equal(t, []string{"y"}, r.All())
}
