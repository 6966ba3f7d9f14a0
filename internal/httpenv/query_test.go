package httpenv

import "testing"

func TestDecodeFieldListQueryString(t *testing.T) {
	m := NewMultiMap()
	DecodeFieldList(m, "a=1&b=hello+world&c=%D0%B6%D0%B8%D0%B2%D0%BE%D1%82%D0%BD%D0%BE%D0%B5&a=2", '&')

	if got := m.All("a"); len(got) != 2 || got[0] != "1" || got[1] != "2" {
		t.Errorf("a = %v, want [1 2]", got)
	}
	if got, _ := m.Get("b"); got != "hello world" {
		t.Errorf("b = %q, want %q", got, "hello world")
	}
	if got, _ := m.Get("c"); got != "животное" {
		t.Errorf("c = %q, want %q", got, "животное")
	}
}

func TestDecodeFieldListCookies(t *testing.T) {
	m := NewMultiMap()
	DecodeFieldList(m, "session=abc123; theme=dark", ';')
	if got, _ := m.Get("session"); got != "abc123" {
		t.Errorf("session = %q", got)
	}
	if got, _ := m.Get(" theme"); got != "dark" {
		// leading space is part of the key since only ';' is a separator
		t.Errorf("theme (with leading space) = %q", got)
	}
}

func TestDecodeFieldListEmptyFieldsSkipped(t *testing.T) {
	m := NewMultiMap()
	DecodeFieldList(m, "a=1&&b=2&", '&')
	if len(m.Keys()) != 2 {
		t.Errorf("expected 2 keys, got %v", m.Keys())
	}
}
