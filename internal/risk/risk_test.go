package risk

import "testing"

func TestScoreExhaustive(t *testing.T) {
	for s := 1; s <= 5; s++ {
		for l := 1; l <= 5; l++ {
			got := Score(s, l)
			value := s * l
			var want Level
			switch {
			case value >= 15:
				want = High
			case value >= 8:
				want = Medium
			default:
				want = Low
			}
			if got != want {
				t.Errorf("Score(%d,%d) = %s, want %s", s, l, got, want)
			}
		}
	}
}

func TestScoreBoundaries(t *testing.T) {
	cases := []struct {
		severity, likelihood int
		want                 Level
	}{
		{5, 3, High},   // 15, lowest High
		{4, 4, High},   // 16
		{2, 4, Medium}, // 8, lowest Medium
		{3, 4, Medium}, // 12
		{1, 1, Low},
		{5, 1, Low}, // 5
		{2, 3, Low}, // 6, highest Low before the Medium band
	}
	for _, c := range cases {
		if got := Score(c.severity, c.likelihood); got != c.want {
			t.Errorf("Score(%d,%d) = %s, want %s", c.severity, c.likelihood, got, c.want)
		}
	}
}

func TestValidRating(t *testing.T) {
	for v := 1; v <= 5; v++ {
		if !ValidRating(v) {
			t.Errorf("ValidRating(%d) = false", v)
		}
	}
	for _, v := range []int{0, -1, 6, 100} {
		if ValidRating(v) {
			t.Errorf("ValidRating(%d) = true", v)
		}
	}
}
