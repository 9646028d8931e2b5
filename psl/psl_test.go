package psl_test

import (
	"reflect"
	"testing"

	"github.com/lunarforge/chromenet/psl"
)

func TestIsPublicSuffix(t *testing.T) {
	cases := map[string]bool{
		"com":             true,
		"co.uk":           true,
		"example.com":     false,
		"mail.google.com": false,
		"":                true,
	}
	for domain, want := range cases {
		if got := psl.IsPublicSuffix(domain); got != want {
			t.Errorf("IsPublicSuffix(%q) = %v, want %v", domain, got, want)
		}
	}
}

func TestRegistrableDomain(t *testing.T) {
	domain, ok := psl.RegistrableDomain("a.b.example.com")
	if !ok || domain != "example.com" {
		t.Errorf("RegistrableDomain(a.b.example.com) = %q, %v, want example.com, true", domain, ok)
	}

	if _, ok := psl.RegistrableDomain("co.uk"); ok {
		t.Error("RegistrableDomain(co.uk) should report ok=false, co.uk is a public suffix")
	}
}

func TestParentLabels(t *testing.T) {
	got := psl.ParentLabels("a.b.example.com")
	want := []string{"a.b.example.com", "b.example.com", "example.com"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParentLabels = %v, want %v", got, want)
	}
}

func TestParentLabelsBareRegistrable(t *testing.T) {
	got := psl.ParentLabels("example.com")
	want := []string{"example.com"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParentLabels(example.com) = %v, want %v", got, want)
	}
}
