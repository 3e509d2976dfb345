package jq

import (
	"bytes"
	"context"
	"reflect"
	"testing"
	"time"
)

type event struct {
	Type  string  `json:"type"`
	Stage string  `json:"stage,omitempty"`
	Cost  float64 `json:"cost"`
}

func TestFilter_Apply(t *testing.T) {
	tests := []struct {
		name       string
		expression string
		data       any
		want       []any
	}{
		{
			name:       "identity",
			expression: ".",
			data:       map[string]any{"foo": "bar"},
			want:       []any{map[string]any{"foo": "bar"}},
		},
		{
			name:       "struct tags become keys",
			expression: ".stage",
			data:       event{Type: "stage_completed", Stage: "refiner", Cost: 0.01},
			want:       []any{"refiner"},
		},
		{
			name:       "array map",
			expression: "map(.cost)",
			data:       []event{{Cost: 1}, {Cost: 2}},
			want:       []any{[]any{float64(1), float64(2)}},
		},
		{
			name:       "multiple results",
			expression: ".[] | .type",
			data:       []event{{Type: "a"}, {Type: "b"}},
			want:       []any{"a", "b"},
		},
		{
			name:       "select with no match",
			expression: "select(.type == \"complete\")",
			data:       event{Type: "stage_started"},
			want:       nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Compile(tt.expression, 0, 0)
			if err != nil {
				t.Fatalf("Compile() error = %v", err)
			}
			got, err := f.Apply(context.Background(), tt.data)
			if err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Apply() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestCompile_Invalid(t *testing.T) {
	if _, err := Compile(".[", 0, 0); err == nil {
		t.Error("expected error for invalid expression")
	}
}

func TestFilter_RuntimeError(t *testing.T) {
	f, err := Compile(".foo.bar", 0, 0)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if _, err := f.Apply(context.Background(), map[string]any{"foo": 1}); err == nil {
		t.Error("expected error indexing a number")
	}
}

func TestFilter_InputSizeLimit(t *testing.T) {
	f, err := Compile(".", time.Second, 8)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if _, err := f.Apply(context.Background(), map[string]string{"query": "too long for the limit"}); err == nil {
		t.Error("expected size limit error")
	}
}

func TestFilter_Write(t *testing.T) {
	f, err := Compile(".[] | .type", 0, 0)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	var buf bytes.Buffer
	if err := f.Write(context.Background(), &buf, []event{{Type: "a"}, {Type: "b"}}, false); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if buf.String() != "\"a\"\n\"b\"\n" {
		t.Errorf("Write() = %q", buf.String())
	}

	buf.Reset()
	if err := f.Write(context.Background(), &buf, []event{{Type: "a"}}, true); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if buf.String() != "a\n" {
		t.Errorf("raw Write() = %q", buf.String())
	}
}
