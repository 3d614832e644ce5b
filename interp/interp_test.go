package interp_test

import (
	"reflect"
	"testing"

	"github.com/xraph/cascade/interp"
)

func TestInterpolateSimpleToken(t *testing.T) {
	config := map[string]any{"text": "now playing: {{action.payload.track}}"}
	payload := map[string]any{"track": "Blue in Green"}

	got := interp.Interpolate(config, payload)
	if got["text"] != "now playing: Blue in Green" {
		t.Fatalf("text = %q", got["text"])
	}
}

func TestInterpolateNestedPath(t *testing.T) {
	config := map[string]any{"artist": "{{action.payload.track.artist.name}}"}
	payload := map[string]any{
		"track": map[string]any{
			"artist": map[string]any{"name": "Miles Davis"},
		},
	}

	got := interp.Interpolate(config, payload)
	if got["artist"] != "Miles Davis" {
		t.Fatalf("artist = %q", got["artist"])
	}
}

func TestInterpolateMultipleTokensInOneString(t *testing.T) {
	config := map[string]any{"line": "{{action.payload.a}} and {{action.payload.b}}"}
	payload := map[string]any{"a": "one", "b": "two"}

	got := interp.Interpolate(config, payload)
	if got["line"] != "one and two" {
		t.Fatalf("line = %q", got["line"])
	}
}

func TestUnresolvedTokenLeftVerbatim(t *testing.T) {
	config := map[string]any{"text": "value: {{action.payload.missing}}"}

	got := interp.Interpolate(config, map[string]any{"present": 1})
	if got["text"] != "value: {{action.payload.missing}}" {
		t.Fatalf("text = %q", got["text"])
	}
}

func TestInterpolateIsIdempotentWhenUnresolved(t *testing.T) {
	config := map[string]any{"text": "{{action.payload.missing}}"}

	once := interp.Interpolate(config, nil)
	twice := interp.Interpolate(once, nil)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("second pass changed output: %v vs %v", once, twice)
	}
}

func TestNonStringLeavesPassThrough(t *testing.T) {
	config := map[string]any{
		"count":   float64(3),
		"enabled": true,
		"nothing": nil,
	}

	got := interp.Interpolate(config, map[string]any{})
	if got["count"] != float64(3) || got["enabled"] != true || got["nothing"] != nil {
		t.Fatalf("non-string leaves changed: %v", got)
	}
}

func TestNestedStructuresWalked(t *testing.T) {
	config := map[string]any{
		"outer": map[string]any{
			"inner": "{{action.payload.x}}",
		},
		"list": []any{"{{action.payload.x}}", float64(7)},
	}
	payload := map[string]any{"x": "deep"}

	got := interp.Interpolate(config, payload)
	outer := got["outer"].(map[string]any)
	if outer["inner"] != "deep" {
		t.Fatalf("inner = %q", outer["inner"])
	}
	list := got["list"].([]any)
	if list[0] != "deep" || list[1] != float64(7) {
		t.Fatalf("list = %v", list)
	}
}

func TestInterpolateDoesNotMutateInput(t *testing.T) {
	config := map[string]any{"text": "{{action.payload.x}}"}
	payload := map[string]any{"x": "y"}

	_ = interp.Interpolate(config, payload)
	if config["text"] != "{{action.payload.x}}" {
		t.Fatalf("input mutated: %q", config["text"])
	}
}

func TestStringifyNumbers(t *testing.T) {
	config := map[string]any{
		"int":   "{{action.payload.whole}}",
		"float": "{{action.payload.frac}}",
		"bool":  "{{action.payload.flag}}",
	}
	payload := map[string]any{"whole": float64(42), "frac": 3.5, "flag": true}

	got := interp.Interpolate(config, payload)
	if got["int"] != "42" {
		t.Fatalf("int = %q", got["int"])
	}
	if got["float"] != "3.5" {
		t.Fatalf("float = %q", got["float"])
	}
	if got["bool"] != "true" {
		t.Fatalf("bool = %q", got["bool"])
	}
}

func TestStringifyNullIsEmpty(t *testing.T) {
	config := map[string]any{"text": "[{{action.payload.gone}}]"}
	payload := map[string]any{"gone": nil}

	got := interp.Interpolate(config, payload)
	if got["text"] != "[]" {
		t.Fatalf("text = %q", got["text"])
	}
}

func TestStringifyPrimitiveList(t *testing.T) {
	config := map[string]any{"tags": "{{action.payload.tags}}"}
	payload := map[string]any{"tags": []any{"a", "b", "c"}}

	got := interp.Interpolate(config, payload)
	if got["tags"] != "a, b, c" {
		t.Fatalf("tags = %q", got["tags"])
	}
}

func TestStringifyObjectListSummarized(t *testing.T) {
	config := map[string]any{"items": "{{action.payload.items}}"}
	payload := map[string]any{"items": []any{
		map[string]any{"id": 1},
		map[string]any{"id": 2},
	}}

	got := interp.Interpolate(config, payload)
	if got["items"] != "[2 item(s)]" {
		t.Fatalf("items = %q", got["items"])
	}
}

func TestStringifySmallObjectInlined(t *testing.T) {
	config := map[string]any{"obj": "{{action.payload.obj}}"}
	payload := map[string]any{"obj": map[string]any{"k": "v"}}

	got := interp.Interpolate(config, payload)
	if got["obj"] != `{"k":"v"}` {
		t.Fatalf("obj = %q", got["obj"])
	}
}

func TestStringifyLargeObjectPlaceholder(t *testing.T) {
	big := make(map[string]any)
	for _, k := range []string{"aaaaaaaaaa", "bbbbbbbbbb", "cccccccccc", "dddddddddd", "eeeeeeeeee", "ffffffffff"} {
		big[k] = "xxxxxxxxxxxxxxxxxxxx"
	}
	config := map[string]any{"obj": "{{action.payload.obj}}"}
	payload := map[string]any{"obj": big}

	got := interp.Interpolate(config, payload)
	if got["obj"] != "[Object]" {
		t.Fatalf("obj = %q", got["obj"])
	}
}

func TestString(t *testing.T) {
	out := interp.String("hello {{name}}", map[string]any{"name": "world"})
	if out != "hello world" {
		t.Fatalf("out = %q", out)
	}
}
