package tracker

import (
	"net/url"
	"strings"
)

// SupportedSites lists the site markers a submitted URL must contain.
var SupportedSites = []string{"auto.ru", "drom.ru"}

// SiteFor returns the supported site a URL belongs to.
func SiteFor(rawURL string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", false
	}
	host := strings.ToLower(u.Hostname())
	for _, site := range SupportedSites {
		if host == site || strings.HasSuffix(host, "."+site) {
			return site, true
		}
	}
	return "", false
}
