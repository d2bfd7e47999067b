package observability

import "testing"

func TestParseHeaders(t *testing.T) {
	got := ParseHeaders(" api-key = abc , broken, =x, tenant=t1 ")
	if len(got) != 2 || got["api-key"] != "abc" || got["tenant"] != "t1" {
		t.Fatalf("unexpected headers: %v", got)
	}
	if ParseHeaders("   ") != nil {
		t.Fatalf("expected nil for empty input")
	}
}

func TestClampRatio(t *testing.T) {
	if clampRatio(0) != 0.1 || clampRatio(2) != 1 || clampRatio(0.5) != 0.5 {
		t.Fatalf("unexpected clamp results")
	}
}
