package enrich

import (
	"strings"
	"testing"
)

func TestCompanyFromDomain(t *testing.T) {
	info := CompanyFromDomain("acme.com")
	if info == nil {
		t.Fatal("CompanyFromDomain returned nil for a valid domain")
	}
	if info.Name != "Acme" {
		t.Errorf("name = %q, want Acme", info.Name)
	}
	if info.Industry != "Technology" {
		t.Errorf("industry = %q", info.Industry)
	}
	if info.Website != "https://acme.com" {
		t.Errorf("website = %q", info.Website)
	}
	if !strings.HasSuffix(info.Size, "employees") {
		t.Errorf("size = %q", info.Size)
	}
	if info.Founded < 2000 || info.Founded > 2019 {
		t.Errorf("founded = %d, want within [2000,2019]", info.Founded)
	}
}

func TestCompanyFromDomainDeterministic(t *testing.T) {
	first := CompanyFromDomain("widgets.example.org")
	for i := 0; i < 5; i++ {
		again := CompanyFromDomain("widgets.example.org")
		if *again != *first {
			t.Fatalf("derivation varied: %+v then %+v", first, again)
		}
	}
}

func TestCompanyFromDomainNormalisesCase(t *testing.T) {
	a := CompanyFromDomain("Acme.COM")
	b := CompanyFromDomain("acme.com")
	if a == nil || b == nil || *a != *b {
		t.Errorf("case variants diverged: %+v vs %+v", a, b)
	}
}

func TestCompanyFromDomainDegenerateInputs(t *testing.T) {
	for _, domain := range []string{"", "   ", "123.456"} {
		if info := CompanyFromDomain(domain); info != nil {
			t.Errorf("CompanyFromDomain(%q) = %+v, want nil", domain, info)
		}
	}
}
