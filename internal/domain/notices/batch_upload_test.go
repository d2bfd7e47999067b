package notices

import "testing"

func TestBatchStatusCanTransition(t *testing.T) {
	cases := []struct {
		from, to BatchStatus
		want     bool
	}{
		{BatchStatusProcessing, BatchStatusSuccess, true},
		{BatchStatusProcessing, BatchStatusPartial, true},
		{BatchStatusProcessing, BatchStatusFailed, true},
		{BatchStatusSuccess, BatchStatusProcessing, false},
		{BatchStatusPartial, BatchStatusSuccess, false},
		{BatchStatusFailed, BatchStatusFailed, true},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.want {
			t.Fatalf("%s -> %s: got=%v want=%v", tc.from, tc.to, got, tc.want)
		}
	}
}
