package portal

import (
	"net/url"
	"strings"

	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"
)

// RequestFilter decides which page requests are aborted.
type RequestFilter struct {
	blockedTypes map[proto.NetworkResourceType]bool
	blockedHosts []string
}

// NewRequestFilter blocks images, fonts and any URL containing one of hosts.
func NewRequestFilter(hosts []string) *RequestFilter {
	lowered := make([]string, 0, len(hosts))
	for _, h := range hosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			lowered = append(lowered, h)
		}
	}
	return &RequestFilter{
		blockedTypes: map[proto.NetworkResourceType]bool{
			proto.NetworkResourceTypeImage: true,
			proto.NetworkResourceTypeFont:  true,
		},
		blockedHosts: lowered,
	}
}

// Blocked reports whether a request of type t for u must be aborted.
func (f *RequestFilter) Blocked(u *url.URL, t proto.NetworkResourceType) bool {
	if f.blockedTypes[t] {
		return true
	}
	if u == nil {
		return false
	}

	// Matches anywhere in the URL, not only the host.
	target := strings.ToLower(u.String())
	for _, h := range f.blockedHosts {
		if strings.Contains(target, h) {
			f.logBlocked(target, "blocked_host")
			return true
		}
	}
	return false
}

func (f *RequestFilter) logBlocked(target, reason string) {
	log.Trace().Str("reason", reason).Str("url", target).Msg("Request aborted")
}
