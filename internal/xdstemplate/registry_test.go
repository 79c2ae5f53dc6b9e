package xdstemplate

import "testing"

func TestResolve_LongestPrefixWins(t *testing.T) {
	r := NewRegistry()
	r.Register(Template{EnvoyVersion: "default", ResourceType: "clusters", Path: "default.tmpl"})
	r.Register(Template{EnvoyVersion: "1.25", ResourceType: "clusters", Path: "1.25.tmpl"})

	tmpl, ok := r.Resolve("1.25.9", "clusters")
	if !ok {
		t.Fatal("expected a match")
	}
	if tmpl.Path != "1.25.tmpl" {
		t.Errorf("got %q, want 1.25.tmpl", tmpl.Path)
	}

	tmpl, ok = r.Resolve("2.0.0", "clusters")
	if !ok {
		t.Fatal("expected fallback to default")
	}
	if tmpl.Path != "default.tmpl" {
		t.Errorf("got %q, want default.tmpl", tmpl.Path)
	}
}

func TestResolve_MissReturnsFalse(t *testing.T) {
	r := NewRegistry()
	r.Register(Template{EnvoyVersion: "default", ResourceType: "clusters", Path: "default.tmpl"})

	if _, ok := r.Resolve("1.25.4", "listeners"); ok {
		t.Error("expected no match for an unregistered resource type")
	}
}

func TestResolve_ExactGranularityOverride(t *testing.T) {
	r := NewRegistry()
	r.Register(Template{EnvoyVersion: "default", ResourceType: "clusters", Path: "a"})
	r.Register(Template{EnvoyVersion: "1", ResourceType: "clusters", Path: "b"})
	r.Register(Template{EnvoyVersion: "1.25", ResourceType: "clusters", Path: "c"})
	r.Register(Template{EnvoyVersion: "1.25.4", ResourceType: "clusters", Path: "d"})

	cases := []struct {
		version string
		want    string
	}{
		{"1.25.4", "d"},
		{"1.25.5", "c"},
		{"1.26.0", "b"},
		{"2.0.0", "a"},
	}
	for _, c := range cases {
		tmpl, ok := r.Resolve(c.version, "clusters")
		if !ok {
			t.Fatalf("version %s: expected a match", c.version)
		}
		if tmpl.Path != c.want {
			t.Errorf("version %s: got %q, want %q", c.version, tmpl.Path, c.want)
		}
	}
}

func TestRegister_LastWriteWins(t *testing.T) {
	r := NewRegistry()
	r.Register(Template{EnvoyVersion: "default", ResourceType: "clusters", Path: "first"})
	r.Register(Template{EnvoyVersion: "default", ResourceType: "clusters", Path: "second"})

	tmpl, ok := r.Resolve("1.0.0", "clusters")
	if !ok || tmpl.Path != "second" {
		t.Errorf("expected second registration to win, got %+v, ok=%v", tmpl, ok)
	}
}

func TestNames_SortedForDiagnostics(t *testing.T) {
	r := NewRegistry()
	r.Register(Template{EnvoyVersion: "1.25", ResourceType: "clusters"})
	r.Register(Template{EnvoyVersion: "default", ResourceType: "clusters"})

	names := r.Names()
	if len(names) != 2 || names[0] != "1.25/clusters" || names[1] != "default/clusters" {
		t.Errorf("got %v", names)
	}
}
