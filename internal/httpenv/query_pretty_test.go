package httpenv

import (
	"testing"

	"github.com/kylelemons/godebug/pretty"
)

// asMap flattens a MultiMap into a plain map for struct-diff comparisons;
// MultiMap's own fields are unexported so pretty can't walk it directly.
func asMap(m *MultiMap) map[string][]string {
	out := make(map[string][]string, len(m.Keys()))
	for _, k := range m.Keys() {
		out[k] = m.All(k)
	}
	return out
}

func TestDecodeFieldListQueryStringStructDiff(t *testing.T) {
	dst := NewMultiMap()
	DecodeFieldList(dst, "a=1&b=2&b=3&c=%E6%97%A5", '&')

	want := map[string][]string{
		"a": {"1"},
		"b": {"2", "3"},
		"c": {"日"},
	}

	if diff := pretty.Compare(asMap(dst), want); diff != "" {
		t.Errorf("decoded query string differs from expected (-got +want):\n%s", diff)
	}
}

func TestDecodeFieldListCookieHeaderStructDiff(t *testing.T) {
	dst := NewMultiMap()
	DecodeFieldList(dst, "session=abc;theme=dark;theme=light", ';')

	want := map[string][]string{
		"session": {"abc"},
		"theme":   {"dark", "light"},
	}

	if diff := pretty.Compare(asMap(dst), want); diff != "" {
		t.Errorf("decoded cookie header differs from expected (-got +want):\n%s", diff)
	}
}
