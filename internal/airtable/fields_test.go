package airtable

import (
	"encoding/json"
	"reflect"
	"testing"
)

func decode(t *testing.T, s string) interface{} {
	t.Helper()
	var v interface{}
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("bad test JSON %q: %v", s, err)
	}
	return v
}

func TestExtractFields(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Fields
	}{
		{"wrapped", `{"fields":{"Name":"A"}}`, Fields{"Name": "A"}},
		{"bare", `{"Name":"A"}`, Fields{"Name": "A"}},
		{"fields not an object", `{"fields":"x","Other":1}`, Fields{"fields": "x", "Other": float64(1)}},
		{"empty object", `{}`, Fields{}},
		{"array", `[1,2]`, Fields{}},
		{"string", `"hello"`, Fields{}},
		{"null", `null`, Fields{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractFields(decode(t, tt.body))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractFields(%s) = %v, want %v", tt.body, got, tt.want)
			}
		})
	}
}

func TestExtractFields_NilBody(t *testing.T) {
	if got := ExtractFields(nil); got == nil || len(got) != 0 {
		t.Errorf("ExtractFields(nil) = %v, want empty map", got)
	}
}

func TestRecordIDs(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{"batch", `{"records":[{"id":"rec1"},{"id":"rec2"}]}`, []string{"rec1", "rec2"}},
		{"deleted", `{"records":[{"id":"recXYZ","deleted":true}]}`, []string{"recXYZ"}},
		{"single", `{"id":"recONE","fields":{}}`, []string{"recONE"}},
		{"raw wrapper", `{"raw":"<html>"}`, nil},
		{"not json", `oops`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RecordIDs(json.RawMessage(tt.body))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("RecordIDs(%s) = %v, want %v", tt.body, got, tt.want)
			}
		})
	}
}
