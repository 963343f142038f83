// Package redirect recognises link-redirector and interstitial pages.
// Such hops are let through so the gate can evaluate the real destination.
package redirect

import (
	"net/url"
	"strings"

	"github.com/eliteGoblin/focusd/site_mon/internal/matcher"
)

// redirectHosts are outbound-link redirectors matched by exact hostname.
var redirectHosts = map[string]struct{}{
	"l.facebook.com":  {}, // Facebook external link redirect
	"lm.facebook.com": {}, // Facebook mobile redirect
	"l.instagram.com": {},
	"l.messenger.com": {},
	"t.co":            {}, // Twitter/X shortener
	"out.reddit.com":  {},
	"away.vk.com":     {},
	"exit.sc":         {}, // SoundCloud exit page
	"href.li":         {},
}

// videoPlatformRoot hosts a path-based redirector at /redirect.
const videoPlatformRoot = "youtube.com"

// redirectParams are query parameters that carry an encoded destination.
var redirectParams = []string{"u", "url", "q", "dest"}

// socialDomains are roots whose pages with a redirect parameter are hops.
var socialDomains = []string{
	"facebook.com", "fb.com",
	"instagram.com",
	"twitter.com", "x.com",
	"linkedin.com",
	"reddit.com",
	"tiktok.com",
}

// IsRedirectPage reports whether rawURL is a known redirect hop.
// Unparsable URLs are not redirect pages, so they go through normal blocking.
func IsRedirectPage(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return false
	}
	host := matcher.Normalize(u.Hostname())

	if _, ok := redirectHosts[host]; ok {
		return true
	}

	if strings.Contains(host, videoPlatformRoot) && strings.Contains(u.Path, "/redirect") {
		return true
	}

	return hasRedirectParam(u.Query()) && IsSocialDomain(host)
}

// IsSocialDomain reports whether host is, or is a subdomain of, a social root.
func IsSocialDomain(host string) bool {
	for _, d := range socialDomains {
		if matcher.MatchesHost(host, matcher.WildcardPrefix+d) {
			return true
		}
	}
	return false
}

func hasRedirectParam(q url.Values) bool {
	for _, p := range redirectParams {
		if q.Has(p) {
			return true
		}
	}
	return false
}
