package bucket

import "testing"

func TestBucket_Ungrouped(t *testing.T) {
	raw := [][]byte{
		[]byte(`[{"a":1}]`),
		[]byte(`[{"a":2},{"a":3}]`),
	}
	pkgs, err := Bucket(Config{}, raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(pkgs) != 1 || !pkgs[0].Dest.Any {
		t.Fatalf("expected one Any package, got %+v", pkgs)
	}
	if len(pkgs[0].Instances) != 3 {
		t.Errorf("expected 3 instances in source order, got %d", len(pkgs[0].Instances))
	}
}

func TestBucket_RejectsNonArrayPayload(t *testing.T) {
	raw := [][]byte{[]byte(`{"not":"an array"}`)}
	if _, err := Bucket(Config{}, raw); err == nil {
		t.Fatal("expected an error for a non-array payload")
	}
}

func TestBucket_KeyedFanOut(t *testing.T) {
	raw := [][]byte{
		[]byte(`[{"svc":"a","v":1},{"svc":["a","b"],"v":2},{"svc":"c","v":3},{"v":4},{"svc":7,"v":5}]`),
	}
	pkgs, err := Bucket(Config{SourceKey: "svc"}, raw)
	if err != nil {
		t.Fatal(err)
	}

	byDest := map[string][]Instance{}
	for _, p := range pkgs {
		if p.Dest.Any {
			t.Fatal("did not expect an Any package in keyed mode")
		}
		byDest[p.Dest.Match] = p.Instances
	}

	if len(byDest["a"]) != 2 {
		t.Errorf("bucket a: got %d instances, want 2 (singular + fan-out)", len(byDest["a"]))
	}
	if len(byDest["b"]) != 1 {
		t.Errorf("bucket b: got %d instances, want 1", len(byDest["b"]))
	}
	if len(byDest["c"]) != 1 {
		t.Errorf("bucket c: got %d instances, want 1", len(byDest["c"]))
	}
	if _, ok := byDest[""]; ok {
		t.Error("instances with a missing or non-string/array field must not produce a bucket")
	}
}

func TestFilter_AnyAndExactMatch(t *testing.T) {
	pkgs := []Package{
		{Dest: AnyDest(), Instances: []Instance{{"n": 1}}},
		{Dest: MatchDest("A"), Instances: []Instance{{"n": 2}}},
		{Dest: MatchDest("B"), Instances: []Instance{{"n": 3}}},
	}
	got := Filter(pkgs, "A")
	if len(got) != 2 {
		t.Fatalf("got %d instances, want 2 (Any + Match A)", len(got))
	}
}

func TestFilter_NeverNil(t *testing.T) {
	got := Filter(nil, "A")
	if got == nil {
		t.Fatal("Filter must return a non-nil empty slice so it serializes as [] not null")
	}
}
