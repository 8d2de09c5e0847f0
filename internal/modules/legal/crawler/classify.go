package crawler

import (
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/yungbote/lexbridge-backend/internal/domain/legal"
)

var (
	documentExtPattern = regexp.MustCompile(`\.(pdf|docx|doc)($|[?#])`)
	downloadPathHints  = []string{"/fileadmin/", "/wp-content/uploads/", "/download/"}
	legacyFileHints    = []string{"download", "file", "/fileadmin/"}

	junkPattern        = regexp.MustCompile(`\b(sitemap|contact( us)?|careers?|vacancies|log ?in|sign ?in|register|privacy|terms of use|cookies?|faqs?|about us|newsletter|subscribe|home|search|feedback)\b`)
	genericNamePattern = regexp.MustCompile(`^(untitled|document|test|draft|file|new)[\s_\-]*\d*$`)
	legalIndicator     = regexp.MustCompile(`\b(acts?|judg(e)?ments?|rulings?|courts?|tribunal|constitution|regulations?|bills?|gazette|petitions?|appeals?|eklr|klr|cap\.?\s*\d+)\b|\bvs?\.\s|\bv\s|\b(19|20)\d{2}\b`)
	pageRelevance      = regexp.MustCompile(`judg(e)?ment|case|law|legislation|\bacts?\b|bills?|court|decision|ruling|gazette|publication|resource|download|page=|\b(19|20)\d{2}\b`)
)

const (
	junkTitleMaxLen      = 50
	minTitleLen          = 15
	minPDFHeuristicTitle = 20
)

type Classification struct {
	Type     legal.DocumentType
	Category string
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// IsAllowedDomain matches the host against the allow-list, including
// subdomains. Query-string pages on legacy hosts are followed only when the
// path carries a download marker.
func (c *Crawler) IsAllowedDomain(raw string) bool {
	return isAllowedDomain(raw, c.cfg.AllowedDomains, c.cfg.LegacyHosts)
}

func isAllowedDomain(raw string, allowed, legacy []string) bool {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if host == "" {
		return false
	}
	ok := false
	for _, d := range allowed {
		d = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(d)), "www.")
		if d != "" && (host == d || strings.HasSuffix(host, "."+d)) {
			ok = true
			break
		}
	}
	if !ok {
		return false
	}
	for _, l := range legacy {
		if host != strings.TrimPrefix(strings.ToLower(l), "www.") || u.RawQuery == "" {
			continue
		}
		p := strings.ToLower(u.Path + "?" + u.RawQuery)
		for _, hint := range legacyFileHints {
			if strings.Contains(p, hint) {
				return true
			}
		}
		return false
	}
	return true
}

// IsLegalDocument is true for direct document links: a document extension
// at the end of the path or before a query/fragment, or a known download path.
func IsLegalDocument(raw string) bool {
	lower := strings.ToLower(raw)
	if documentExtPattern.MatchString(lower) {
		return true
	}
	for _, hint := range downloadPathHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

// IsValidLegalDocument filters junk links. Checks run in a fixed order and
// unmatched links are rejected.
func IsValidLegalDocument(title, raw string) bool {
	t := strings.ToLower(strings.Join(strings.Fields(title), " "))

	if len(t) < junkTitleMaxLen && junkPattern.MatchString(t) {
		return false
	}
	if len(t) < minTitleLen {
		return false
	}
	if genericNamePattern.MatchString(t) || genericNamePattern.MatchString(fileStem(raw)) {
		return false
	}
	if legalIndicator.MatchString(t) || legalIndicator.MatchString(strings.ToLower(raw)) {
		return true
	}
	if isPDF(raw) && len(t) >= minPDFHeuristicTitle {
		return true
	}
	return false
}

// CategorizeDocument assigns a type and legal-area label from the document
// and page URLs.
func CategorizeDocument(docURL, pageURL string) Classification {
	s := strings.ToLower(docURL + " " + pageURL)
	switch {
	case containsAny(s, "supreme-court", "supreme court", "supremecourt", "/ksc/", "kesc"):
		return Classification{legal.DocumentTypeCaseLaw, "Supreme Court Judgments"}
	case containsAny(s, "court-of-appeal", "court of appeal", "courtofappeal", "keca"):
		return Classification{legal.DocumentTypeCaseLaw, "Court of Appeal Judgments"}
	case containsAny(s, "high-court", "high court", "highcourt", "kehc"):
		return Classification{legal.DocumentTypeCaseLaw, "High Court Judgments"}
	case containsAny(s, "parliament", "/bill", "bills"):
		return Classification{legal.DocumentTypeBill, "Parliamentary Bills"}
	case containsAny(s, "/act/", "/legislation/"):
		return Classification{legal.DocumentTypeAct, "Legislation"}
	case strings.Contains(hostOf(docURL)+" "+hostOf(pageURL), "lsk.or.ke"):
		return Classification{legal.DocumentTypeGuideline, "Law Society Publications"}
	}
	return Classification{legal.DocumentTypeCaseLaw, "Court Judgments"}
}

func isLegalRelated(raw, text string) bool {
	return pageRelevance.MatchString(strings.ToLower(raw + " " + text))
}

func isPDF(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return strings.HasSuffix(strings.ToLower(raw), ".pdf")
	}
	return strings.HasSuffix(strings.ToLower(u.Path), ".pdf")
}

func fileStem(raw string) string {
	u, err := url.Parse(raw)
	p := raw
	if err == nil {
		p = u.Path
	}
	base := path.Base(p)
	if un, err := url.PathUnescape(base); err == nil {
		base = un
	}
	return strings.ToLower(strings.TrimSuffix(base, path.Ext(base)))
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
