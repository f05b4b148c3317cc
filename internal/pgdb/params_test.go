package pgdb

import "testing"

func TestParamFromAny(t *testing.T) {
	cases := []struct {
		in   any
		want QueryParamKind
	}{
		{nil, ParamNull},
		{"hello", ParamString},
		{true, ParamBool},
		{float64(42), ParamInt},
		{float64(3.5), ParamFloat},
		{42, ParamInt},
	}
	for _, c := range cases {
		got, err := ParamFromAny(c.in)
		if err != nil {
			t.Fatalf("ParamFromAny(%v): %v", c.in, err)
		}
		if got.Kind != c.want {
			t.Errorf("ParamFromAny(%v).Kind = %v, want %v", c.in, got.Kind, c.want)
		}
	}
}

func TestParamFromAnyRejectsUnsupported(t *testing.T) {
	if _, err := ParamFromAny(map[string]any{"a": 1}); err == nil {
		t.Fatal("expected error for unsupported map type")
	}
	if _, err := ParamFromAny([]any{1, 2}); err == nil {
		t.Fatal("expected error for unsupported slice type")
	}
}

func TestToArgsOrderAndNullHandling(t *testing.T) {
	params := []QueryParam{StringParam("a"), IntParam(7), NullParam(), BoolParam(true), FloatParam(1.5)}
	args := ToArgs(params)
	if len(args) != 5 {
		t.Fatalf("expected 5 args, got %d", len(args))
	}
	if args[0] != "a" || args[1] != int64(7) || args[2] != nil || args[3] != true || args[4] != 1.5 {
		t.Fatalf("unexpected args: %#v", args)
	}
}
