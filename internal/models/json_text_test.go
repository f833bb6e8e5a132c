package models

import "testing"

func TestJSONTextScanNumericCells(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want string
	}{
		{name: "integer", in: int64(10), want: "10"},
		{name: "float", in: 1.5, want: "1.5"},
		{name: "bool", in: true, want: "true"},
		{name: "text", in: `{"a":1}`, want: `{"a":1}`},
		{name: "bytes", in: []byte(`"x"`), want: `"x"`},
	}
	for _, tc := range cases {
		var value JSONText
		if err := value.Scan(tc.in); err != nil {
			t.Fatalf("%s: scan: %v", tc.name, err)
		}
		if string(value) != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.want, string(value))
		}
	}
}

func TestJSONTextScanRejectsUnknownTypes(t *testing.T) {
	var value JSONText
	if err := value.Scan(struct{}{}); err == nil {
		t.Fatalf("expected error for unsupported cell type")
	}
}

func TestJSONTextScanNull(t *testing.T) {
	value := JSONText(`1`)
	if err := value.Scan(nil); err != nil {
		t.Fatalf("scan nil: %v", err)
	}
	if len(value) != 0 {
		t.Fatalf("expected empty value, got %s", string(value))
	}
}
