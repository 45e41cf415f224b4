package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAggregateAdd(t *testing.T) {
	var agg Aggregate
	assert.Equal(t, 0.0, agg.Average())

	agg = agg.Add(4)
	assert.Equal(t, Aggregate{Sum: 4, Count: 1}, agg)
	assert.Equal(t, 4.0, agg.Average())

	agg = agg.Add(2)
	assert.Equal(t, Aggregate{Sum: 6, Count: 2}, agg)
	assert.Equal(t, 3.0, agg.Average())
}

func TestAggregateRemoveAndReplace(t *testing.T) {
	tests := []struct {
		name string
		in   Aggregate
		op   func(Aggregate) Aggregate
		want Aggregate
	}{
		{"remove last", Aggregate{Sum: 5, Count: 1}, func(a Aggregate) Aggregate { return a.Remove(5) }, Aggregate{}},
		{"remove one of three", Aggregate{Sum: 9, Count: 3}, func(a Aggregate) Aggregate { return a.Remove(2) }, Aggregate{Sum: 7, Count: 2}},
		{"remove from empty", Aggregate{}, func(a Aggregate) Aggregate { return a.Remove(3) }, Aggregate{}},
		{"replace", Aggregate{Sum: 6, Count: 2}, func(a Aggregate) Aggregate { return a.Replace(2, 5) }, Aggregate{Sum: 9, Count: 2}},
		{"replace on empty", Aggregate{}, func(a Aggregate) Aggregate { return a.Replace(2, 5) }, Aggregate{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.op(tt.in))
		})
	}
}

func TestAggregateExactMeanOverManyUpdates(t *testing.T) {
	var agg Aggregate
	var sum int
	for i := 0; i < 10000; i++ {
		r := i%5 + 1
		sum += r
		agg = agg.Add(r)
	}
	assert.Equal(t, int64(10000), agg.Count)
	assert.Equal(t, float64(sum)/10000, agg.Average())
}

func TestReviewFilterMatches(t *testing.T) {
	alice := "alice"
	active := true
	r := Review{UserID: "alice", Active: false}

	assert.True(t, ReviewFilter{}.Matches(r))
	assert.True(t, ReviewFilter{UserID: &alice}.Matches(r))
	assert.False(t, ReviewFilter{Active: &active}.Matches(r))
}
