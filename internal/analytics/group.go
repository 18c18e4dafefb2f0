package analytics

import "sort"

// Group is the set of records sharing one value of the grouping field.
type Group[R any] struct {
	Key     string
	Records []R
}

// Ranked is a group key with its score, as produced by TopNByScore.
type Ranked struct {
	Key   string  `json:"key"`
	Score float64 `json:"score"`
	Count int     `json:"count"`
}

// ScoreFunc reduces the members of a group to a single number.
type ScoreFunc[R any] func(members []R) (float64, error)

// GroupBy partitions records by the value of field. Groups appear in the
// order their key is first encountered and keep the input order inside.
func GroupBy[R Record](records []R, field string) ([]Group[R], error) {
	index := make(map[string]int)
	groups := []Group[R]{}
	for _, r := range records {
		key, err := text(r, field)
		if err != nil {
			return nil, err
		}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, Group[R]{Key: key})
		}
		groups[i].Records = append(groups[i].Records, r)
	}
	return groups, nil
}

// CountBy is GroupBy reduced to group sizes.
func CountBy[R Record](records []R, field string) ([]Ranked, error) {
	groups, err := GroupBy(records, field)
	if err != nil {
		return nil, err
	}
	out := make([]Ranked, len(groups))
	for i, g := range groups {
		out[i] = Ranked{Key: g.Key, Score: float64(len(g.Records)), Count: len(g.Records)}
	}
	return out, nil
}

// SumBy totals sumField per value of groupField.
func SumBy[R Record](records []R, groupField, sumField string) ([]Ranked, error) {
	return scoreGroups(records, groupField, SumScore[R](sumField))
}

// TopNByScore groups records by field, scores each group and returns the n
// best, highest score first. Ties keep first-encountered order. n <= 0
// yields an empty result.
func TopNByScore[R Record](records []R, field string, score ScoreFunc[R], n int) ([]Ranked, error) {
	if n <= 0 {
		return []Ranked{}, nil
	}
	ranked, err := scoreGroups(records, field, score)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked, nil
}

func scoreGroups[R Record](records []R, field string, score ScoreFunc[R]) ([]Ranked, error) {
	groups, err := GroupBy(records, field)
	if err != nil {
		return nil, err
	}
	out := make([]Ranked, 0, len(groups))
	for _, g := range groups {
		s, err := score(g.Records)
		if err != nil {
			return nil, err
		}
		out = append(out, Ranked{Key: g.Key, Score: s, Count: len(g.Records)})
	}
	return out, nil
}

// CountScore scores a group by its size.
func CountScore[R any](members []R) (float64, error) {
	return float64(len(members)), nil
}

// RateScore scores a group by the fraction of members satisfying pred.
func RateScore[R any](pred func(R) bool) ScoreFunc[R] {
	return func(members []R) (float64, error) {
		return Rate(members, pred)
	}
}

// SumScore scores a group by the total of a numeric field.
func SumScore[R Record](field string) ScoreFunc[R] {
	return func(members []R) (float64, error) {
		return Sum(members, field)
	}
}
