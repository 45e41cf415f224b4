package domain

// Aggregate is the running rating state kept on a title. Sum is exact; the
// average is derived from it so repeated updates never compound rounding.
type Aggregate struct {
	Sum   int64
	Count int64
}

// Average returns Sum/Count, or 0 for a title without active reviews.
func (a Aggregate) Average() float64 {
	if a.Count <= 0 {
		return 0
	}
	return float64(a.Sum) / float64(a.Count)
}

// Add folds one new rating into the aggregate.
func (a Aggregate) Add(rating int) Aggregate {
	return Aggregate{Sum: a.Sum + int64(rating), Count: a.Count + 1}
}

// Remove takes a previously counted rating out of the aggregate.
func (a Aggregate) Remove(rating int) Aggregate {
	if a.Count <= 1 {
		return Aggregate{}
	}
	sum := a.Sum - int64(rating)
	if sum < 0 {
		sum = 0
	}
	return Aggregate{Sum: sum, Count: a.Count - 1}
}

// Replace swaps an already counted rating for a new value.
func (a Aggregate) Replace(oldRating, newRating int) Aggregate {
	if a.Count == 0 {
		return a
	}
	return Aggregate{Sum: a.Sum - int64(oldRating) + int64(newRating), Count: a.Count}
}
