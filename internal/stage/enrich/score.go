package enrich

import "github.com/leadforge/lead-processing-pipeline/internal/lead"

// Additive scoring rubric. Base value plus fixed bonuses, clamped to [0,100].
const (
	scoreBase           = 40
	bonusPhone          = 7
	bonusCompany        = 10
	bonusGeoCountry     = 5
	bonusGeoCity        = 3
	bonusWebsite        = 5
	bonusReferral       = 10
	bonusBusinessDomain = 10
)

// freeMailDomains are consumer mail providers that earn no business-domain
// bonus.
var freeMailDomains = map[string]struct{}{
	"gmail.com":   {},
	"yahoo.com":   {},
	"hotmail.com": {},
	"outlook.com": {},
}

// Score computes the lead's quality score. It is deterministic: the same
// lead always scores the same.
func Score(l *lead.Lead) int {
	score := scoreBase
	if l.Phone != "" {
		score += bonusPhone
	}
	if l.CompanyInfo != nil && l.CompanyInfo.Name != "" {
		score += bonusCompany
	}
	if l.Geolocation != nil && l.Geolocation.Country != "" {
		score += bonusGeoCountry
	}
	if l.Geolocation != nil && l.Geolocation.City != "" {
		score += bonusGeoCity
	}
	if l.Website != "" {
		score += bonusWebsite
	}
	if l.Source == "Referral" {
		score += bonusReferral
	}
	if domain := l.EmailDomain(); domain != "" {
		if _, free := freeMailDomains[domain]; !free {
			score += bonusBusinessDomain
		}
	}

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score
}
