package sequenceparallel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type attrs map[string]any

func (a attrs) SetAttr(key string, value any) { a[key] = value }

func (a attrs) Attr(key string) (any, bool) {
	v, ok := a[key]
	return v, ok
}

func TestMarkParameter(t *testing.T) {
	p := attrs{}
	assert.False(t, IsSequenceParallel(p))

	MarkParameter(p)
	assert.True(t, IsSequenceParallel(p))
	assert.Equal(t, true, p[Attr])
}

func TestIsSequenceParallelNonBool(t *testing.T) {
	assert.False(t, IsSequenceParallel(attrs{Attr: "yes"}))
	assert.False(t, IsSequenceParallel(attrs{Attr: false}))
}

func TestFilter(t *testing.T) {
	a, b, c := attrs{"name": "a"}, attrs{"name": "b"}, attrs{"name": "c"}
	MarkParameter(a)
	MarkParameter(c)

	got := Filter([]attrs{a, b, c})
	assert.Equal(t, []attrs{a, c}, got)
	assert.Empty(t, Filter([]attrs{b}))
}

func TestMarkFuncInjection(t *testing.T) {
	var seen []Attributed
	var mark MarkFunc = func(p Attributed) {
		seen = append(seen, p)
		MarkParameter(p)
	}

	p := attrs{}
	mark(p)
	assert.Len(t, seen, 1)
	assert.True(t, IsSequenceParallel(p))
}
