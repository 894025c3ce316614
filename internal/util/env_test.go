package util

import (
	"reflect"
	"testing"
)

func TestParseBoolEnv(t *testing.T) {
	cases := []struct {
		value    string
		fallback bool
		want     bool
	}{
		{"true", false, true},
		{"1", false, true},
		{"YES", false, true},
		{"off", true, false},
		{"0", true, false},
		{"", true, true},
		{"", false, false},
		{"bogus", true, true},
	}
	for _, c := range cases {
		t.Setenv("TUTORHUB_TEST_BOOL", c.value)
		if got := ParseBoolEnv("TUTORHUB_TEST_BOOL", c.fallback); got != c.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", c.value, c.fallback, got, c.want)
		}
	}
}

func TestParseListEnv(t *testing.T) {
	t.Setenv("TUTORHUB_TEST_LIST", " admin1, admin2 ,,admin3 ")
	got := ParseListEnv("TUTORHUB_TEST_LIST")
	want := []string{"admin1", "admin2", "admin3"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseListEnv = %v, want %v", got, want)
	}

	t.Setenv("TUTORHUB_TEST_LIST", "")
	if got := ParseListEnv("TUTORHUB_TEST_LIST"); got != nil {
		t.Errorf("empty env should yield nil, got %v", got)
	}
}
