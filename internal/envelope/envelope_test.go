package envelope

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestList_UnwrapsEnvelopes(t *testing.T) {
	want := []any{map[string]any{"id": float64(1)}}

	cases := map[string]any{
		"direct":        []any{map[string]any{"id": float64(1)}},
		"result":        map[string]any{"result": []any{map[string]any{"id": float64(1)}}},
		"data":          map[string]any{"data": []any{map[string]any{"id": float64(1)}}},
		"json string":   `[{"id":1}]`,
		"json envelope": `{"result":[{"id":1}]}`,
	}

	for name, payload := range cases {
		got, err := List(payload)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("%s: payload mismatch (-want +got):\n%s", name, diff)
		}
	}
}

func TestList_RejectsUnknownShapes(t *testing.T) {
	if _, err := List(map[string]any{"rows": []any{}}); err == nil {
		t.Fatalf("expected error for unknown wrapper key")
	}
	if _, err := List(42); err == nil {
		t.Fatalf("expected error for scalar payload")
	}
	if _, err := List("not json"); err == nil {
		t.Fatalf("expected error for malformed string payload")
	}
}

func TestRecords_SkipsNonMapEntries(t *testing.T) {
	got, err := Records([]any{map[string]any{"id": 1}, "stray", map[string]any{"id": 2}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
}

func TestRecord_Unwraps(t *testing.T) {
	got, err := Record(`{"data":{"id":7,"name":"x"}}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["name"] != "x" {
		t.Fatalf("expected unwrapped record, got %v", got)
	}

	got, err = Record(map[string]any{"result": []any{map[string]any{"id": 1}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["id"] != 1 {
		t.Fatalf("expected single-element list unwrap, got %v", got)
	}
}

func TestAck(t *testing.T) {
	cases := []struct {
		payload any
		want    bool
	}{
		{true, true},
		{false, false},
		{nil, true},
		{map[string]any{"result": true}, true},
		{map[string]any{"success": false}, false},
		{map[string]any{"ok": "no"}, false},
		{"deleted", true},
	}
	for _, tc := range cases {
		if got := Ack(tc.payload); got != tc.want {
			t.Fatalf("Ack(%v) = %v, want %v", tc.payload, got, tc.want)
		}
	}
}
