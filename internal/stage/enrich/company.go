package enrich

import (
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/leadforge/lead-processing-pipeline/internal/lead"
)

// CompanyFromDomain synthesises company details from an email domain. The
// derivation is a pure function of the domain (hash-based, not random) so
// redelivered leads enrich identically.
func CompanyFromDomain(domain string) *lead.CompanyInfo {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return nil
	}
	label := domain
	if i := strings.Index(domain, "."); i > 0 {
		label = domain[:i]
	}
	label = lettersOnly(label)
	if label == "" {
		return nil
	}

	h := fnv.New32a()
	h.Write([]byte(domain))
	sum := h.Sum32()
	sizeLow := int(sum%100) + 1
	founded := 2000 + int((sum/100)%20)

	runes := []rune(label)
	runes[0] = unicode.ToUpper(runes[0])

	return &lead.CompanyInfo{
		Name:     string(runes),
		Industry: "Technology",
		Size:     fmt.Sprintf("%d-%d employees", sizeLow, sizeLow+50),
		Founded:  founded,
		Website:  "https://" + domain,
	}
}

func lettersOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
