package hydrate

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

type formSettings struct {
	ColumnCount int        `json:"columnCount"`
	Questions   []question `json:"questions"`
	Tag         string     `json:"tag,omitempty"`
}

type question struct {
	ID       int    `json:"id"`
	Question string `json:"question"`
}

func TestDecoderCases(t *testing.T) {
	cases := []struct {
		name      string
		input     map[string]any
		options   []DecoderOption[formSettings]
		expect    formSettings
		expectErr string
	}{
		{
			name: "plain payload",
			input: map[string]any{
				"columnCount": 2,
				"questions": []any{
					map[string]any{"id": 1, "question": "Nom"},
					map[string]any{"id": 2, "question": "Date"},
				},
			},
			expect: formSettings{ColumnCount: 2, Questions: []question{{ID: 1, Question: "Nom"}, {ID: 2, Question: "Date"}}},
		},
		{
			name:      "nil payload",
			input:     nil,
			expectErr: "options payload is nil",
		},
		{
			name:      "type mismatch",
			input:     map[string]any{"columnCount": "two"},
			expectErr: "decode options payload",
		},
		{
			name:  "pre-hook renames legacy key",
			input: map[string]any{"columns": 4},
			options: []DecoderOption[formSettings]{WithPreHook[formSettings](func(_ Context, in map[string]any) (map[string]any, error) {
				if v, ok := in["columns"]; ok {
					in["columnCount"] = v
					delete(in, "columns")
				}
				return in, nil
			})},
			expect: formSettings{ColumnCount: 4},
		},
		{
			name:  "post-hook tags result",
			input: map[string]any{"columnCount": 1},
			options: []DecoderOption[formSettings]{WithPostHook[formSettings](func(ctx Context, v *formSettings) error {
				v.Tag = ctx.Source + ":" + ctx.TableID
				return nil
			})},
			expect: formSettings{ColumnCount: 1, Tag: "options:Table1"},
		},
		{
			name:  "post-hook failure",
			input: map[string]any{"columnCount": 1},
			options: []DecoderOption[formSettings]{WithPostHook[formSettings](func(Context, *formSettings) error {
				return errors.New("nope")
			})},
			expectErr: "options post-hook failed: nope",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			decoder := NewDecoder[formSettings](tc.options...)
			result, err := decoder.Decode(Context{Source: "options", TableID: "Table1"}, tc.input)

			if tc.expectErr != "" {
				if err == nil {
					t.Fatalf("expected error %q, got nil", tc.expectErr)
				}
				if !strings.Contains(err.Error(), tc.expectErr) {
					t.Fatalf("expected error containing %q, got %v", tc.expectErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected decode error: %v", err)
			}
			if !reflect.DeepEqual(tc.expect, result) {
				t.Fatalf("decoded value mismatch:\nwant: %#v\n got: %#v", tc.expect, result)
			}
		})
	}
}

func TestDecoderDoesNotMutateInput(t *testing.T) {
	input := map[string]any{"columns": 4}
	decoder := NewDecoder[formSettings](WithPreHook[formSettings](func(_ Context, in map[string]any) (map[string]any, error) {
		delete(in, "columns")
		return in, nil
	}))

	if _, err := decoder.Decode(Context{}, input); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := input["columns"]; !ok {
		t.Fatalf("expected caller payload untouched")
	}
}

func TestEncodeProducesPlainObject(t *testing.T) {
	out, err := Encode(formSettings{ColumnCount: 3, Questions: []question{{ID: 1, Question: "Q"}}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if out["columnCount"] != float64(3) {
		t.Fatalf("expected columnCount 3, got %v", out["columnCount"])
	}
	questions, ok := out["questions"].([]any)
	if !ok || len(questions) != 1 {
		t.Fatalf("expected questions array, got %v", out["questions"])
	}
}
