package widget

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestColumnRefJSON(t *testing.T) {
	cases := []struct {
		raw    string
		want   ColumnRef
		render string
	}{
		{`"Titre"`, StringColumn("Titre"), "Titre"},
		{`12`, IntColumn(12), "12"},
		{`null`, ColumnRef{}, ""},
		{`""`, StringColumn(""), ""},
	}
	for _, tc := range cases {
		var ref ColumnRef
		require.NoError(t, json.Unmarshal([]byte(tc.raw), &ref), tc.raw)
		require.Equal(t, tc.want, ref, tc.raw)
		require.Equal(t, tc.render, ref.String())

		out, err := json.Marshal(ref)
		require.NoError(t, err)
		require.JSONEq(t, tc.raw, string(out))
	}

	var ref ColumnRef
	require.Error(t, json.Unmarshal([]byte(`1.5`), &ref))
	require.Error(t, json.Unmarshal([]byte(`true`), &ref))
}

func TestColumnRefKinds(t *testing.T) {
	require.True(t, ColumnRef{}.IsNull())
	require.False(t, StringColumn("").IsNull())
	require.True(t, IntColumn(0).IsInt())
	require.False(t, StringColumn("3").IsInt())
}

func TestWidgetOptionsRoundTripKeepsQuestions(t *testing.T) {
	raw := `{
		"columnCount": 3,
		"questions": [
			{"id": 2, "question": "Second?", "targetColumnId": 5},
			{"id": 1, "question": "First?", "targetColumnId": "Titre"},
			{"id": 3, "question": "Third?", "targetColumnId": null}
		],
		"externalUrl": "https://example.com/form"
	}`

	var options WidgetOptions
	require.NoError(t, json.Unmarshal([]byte(raw), &options))
	require.Equal(t, []int{2, 1, 3}, []int{options.Questions[0].ID, options.Questions[1].ID, options.Questions[2].ID})

	out, err := json.Marshal(options)
	require.NoError(t, err)
	require.JSONEq(t, raw, string(out))
}

func TestWidgetOptionsValidate(t *testing.T) {
	require.NoError(t, WidgetOptions{}.Validate())
	require.NoError(t, WidgetOptions{
		ColumnCount:    1,
		ExternalURL:    "https://example.com",
		ComputedFields: []ComputedField{{ColumnID: "Slug", Expr: "1", Engine: "cel"}},
	}.Validate())

	cases := map[string]WidgetOptions{
		"columnCount":     {ColumnCount: -1},
		"externalUrl":     {ExternalURL: "not a url"},
		"questions[0].id": {Questions: []QuestionConfig{{ID: -2}}},
		"engine":          {ComputedFields: []ComputedField{{ColumnID: "A", Expr: "1", Engine: "lua"}}},
		"columnId":        {ComputedFields: []ComputedField{{Expr: "1"}}},
	}
	for field, options := range cases {
		err := options.Validate()
		require.ErrorIs(t, err, ErrInvalidOptions, field)
		require.Contains(t, err.Error(), field)
	}
}

func TestWidgetOptionsCloneDoesNotAlias(t *testing.T) {
	options := WidgetOptions{Questions: []QuestionConfig{{ID: 1}}}
	clone := options.Clone()
	clone.Questions[0].ID = 9
	require.Equal(t, 1, options.Questions[0].ID)
}

func TestRowCreationErrorMessage(t *testing.T) {
	err := &RowCreationError{TableID: "Tasks", Fields: map[string]any{"b": 1, "a": 2}, Err: ErrHostAbsent}
	require.Equal(t, `widget: create row in "Tasks" (fields=[a b]): widget: host capability not detected`, err.Error())
}
