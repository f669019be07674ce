package hash

import (
	"strings"
	"testing"
)

type latency struct {
	MeanMS float64 `json:"mean_ms"`
	P95MS  float64 `json:"p95_ms"`
}

func TestCanonicalJSONDeterministic(t *testing.T) {
	a := map[string]any{"stage_transition": latency{200, 290}, "response_generation": latency{12.5, 40}}
	b := map[string]any{"response_generation": latency{12.5, 40}, "stage_transition": latency{200, 290}}
	ha, _, err := HashCanonicalJSON(a)
	if err != nil {
		t.Fatal(err)
	}
	hb, _, err := HashCanonicalJSON(b)
	if err != nil {
		t.Fatal(err)
	}
	if ha != hb {
		t.Fatalf("expected equal digests, got %s vs %s", ha, hb)
	}
}

func TestCanonicalJSON_SortedCompact(t *testing.T) {
	got, err := CanonicalJSON(map[string]any{"b": 1, "a": []any{"<x>", 2.5}})
	if err != nil {
		t.Fatal(err)
	}
	if want := `{"a":["<x>",2.5],"b":1}`; string(got) != want {
		t.Errorf("canonical = %s, want %s", got, want)
	}
}

func TestHashCanonicalJSON_ValueChangeChangesDigest(t *testing.T) {
	h1, _, _ := HashCanonicalJSON(latency{200, 290})
	h2, _, _ := HashCanonicalJSON(latency{200, 290.000001})
	if h1 == h2 {
		t.Error("digest should change with a value")
	}
	if !strings.HasPrefix(h1, "sha256:") || len(h1) != len("sha256:")+64 {
		t.Errorf("digest format = %q", h1)
	}
}

func TestCanonicalJSON_Unmarshalable(t *testing.T) {
	if _, err := CanonicalJSON(map[string]any{"ch": make(chan int)}); err == nil {
		t.Fatal("expected marshal error")
	}
}
