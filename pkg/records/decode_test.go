package records

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestDecode_PreservesKeyOrderAndNumbers(t *testing.T) {
	t.Parallel()

	rec, err := Decode([]byte(`{"z": 1, "a": 2.50, "m": {"y": "1", "b": [1, {"k": null}]}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got, want := rec.Keys(), []string{"z", "a", "m"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Keys()=%v, want %v", got, want)
	}
	if v, _ := rec.Get("a"); v != json.Number("2.50") {
		t.Fatalf("a=%#v, want json.Number(\"2.50\")", v)
	}
	m, ok, err := rec.Object("m")
	if err != nil || !ok {
		t.Fatalf("Object(m) = (%v,%v,%v)", m, ok, err)
	}
	if got, want := m.Keys(), []string{"y", "b"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("m.Keys()=%v, want %v", got, want)
	}
}

func TestDecode_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
	}{
		{"empty", ``},
		{"not an object", `[1,2]`},
		{"truncated", `{"a": 1`},
		{"missing value", `{"a": }`},
		{"extra data", `{"a": 1} {"b": 2}`},
		{"trailing garbage", `{"a": 1} x`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Decode([]byte(tt.in)); err == nil {
				t.Fatalf("Decode(%q) err=nil, want error", tt.in)
			}
		})
	}
}

func TestMarshalJSON_RoundTripOrder(t *testing.T) {
	t.Parallel()

	in := `{"b":1,"a":{"d":[true,null],"c":"x"}}`
	rec := MustDecode(in)
	out, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(out) != in {
		t.Fatalf("Marshal=%s, want %s", out, in)
	}
}

func TestSet_OverwriteKeepsFirstPosition(t *testing.T) {
	t.Parallel()

	r := New()
	r.Set("a", "1")
	r.Set("b", "2")
	r.Set("a", "3")
	if got, want := r.Keys(), []string{"a", "b"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Keys()=%v, want %v", got, want)
	}
	if v, _ := r.Get("a"); v != "3" {
		t.Fatalf("a=%v, want 3", v)
	}
}
