package analytics

// Count returns how many records satisfy pred.
func Count[R any](records []R, pred func(R) bool) int {
	n := 0
	for _, r := range records {
		if pred(r) {
			n++
		}
	}
	return n
}

// Sum adds up a numeric field. The sum of no records is 0.
func Sum[R Record](records []R, field string) (float64, error) {
	var total float64
	for _, r := range records {
		v, err := numeric(r, field)
		if err != nil {
			return 0, err
		}
		total += v
	}
	return total, nil
}

// SumOf adds up value(r) over typed records.
func SumOf[R any](records []R, value func(R) float64) float64 {
	var total float64
	for _, r := range records {
		total += value(r)
	}
	return total
}

// Rate is the fraction of records satisfying pred, in [0,1].
// An empty input yields 0 and ErrEmptyInput.
func Rate[R any](records []R, pred func(R) bool) (float64, error) {
	if len(records) == 0 {
		return 0, ErrEmptyInput
	}
	return float64(Count(records, pred)) / float64(len(records)), nil
}

// Average is the arithmetic mean of a numeric field.
// An empty input yields 0 and ErrEmptyInput.
func Average[R Record](records []R, field string) (float64, error) {
	if len(records) == 0 {
		return 0, ErrEmptyInput
	}
	total, err := Sum(records, field)
	if err != nil {
		return 0, err
	}
	return total / float64(len(records)), nil
}

// UniqueValues returns the distinct values of field in first-seen order.
func UniqueValues[R Record](records []R, field string) ([]string, error) {
	seen := make(map[string]struct{})
	out := []string{}
	for _, r := range records {
		v, err := text(r, field)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out, nil
}

// CountDistinct is len(UniqueValues(records, field)).
func CountDistinct[R Record](records []R, field string) (int, error) {
	values, err := UniqueValues(records, field)
	if err != nil {
		return 0, err
	}
	return len(values), nil
}

// FieldEquals builds a predicate comparing the formatted field value with want.
// A record without the field never matches.
func FieldEquals[R Record](field, want string) func(R) bool {
	return func(r R) bool {
		v, ok := r.Field(field)
		return ok && FormatValue(v) == want
	}
}

// Always matches every record.
func Always[R any](R) bool { return true }
