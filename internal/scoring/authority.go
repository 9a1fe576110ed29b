package scoring

import "strings"

// defaultAuthority applies to hosts missing from the table, and to
// results that cite no URLs at all.
const defaultAuthority = 50.0

// domainAuthority is a static credibility table for hostnames commonly
// cited by answer engines. Values are on the same 0-100 scale as the
// score components.
var domainAuthority = map[string]float64{
	"wikipedia.org":  95,
	"nytimes.com":    92,
	"forbes.com":     90,
	"reuters.com":    90,
	"bloomberg.com":  88,
	"linkedin.com":   85,
	"bbb.org":        85,
	"yelp.com":       85,
	"youtube.com":    82,
	"reddit.com":     80,
	"trustpilot.com": 80,
	"g2.com":         78,
	"capterra.com":   75,
	"glassdoor.com":  75,
	"facebook.com":   72,
	"angi.com":       70,
	"thumbtack.com":  68,
	"houzz.com":      65,
	"quora.com":      65,
	"medium.com":     58,
	"substack.com":   55,
}

// Authority returns the credibility value for a hostname. Subdomains
// inherit their parent's value (en.wikipedia.org scores as
// wikipedia.org); unknown hosts get the default.
func Authority(host string) float64 {
	h := strings.ToLower(strings.TrimPrefix(host, "www."))
	for h != "" {
		if v, ok := domainAuthority[h]; ok {
			return v
		}
		i := strings.Index(h, ".")
		if i < 0 {
			break
		}
		h = h[i+1:]
	}
	return defaultAuthority
}
