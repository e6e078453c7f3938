package main

import "testing"

func TestSplitList(t *testing.T) {
	got := splitList(" David, Emma ,,")
	if len(got) != 2 || got[0] != "David" || got[1] != "Emma" {
		t.Fatalf("unexpected list %q", got)
	}
	if splitList("") != nil {
		t.Fatal("expected nil for empty input")
	}
}
