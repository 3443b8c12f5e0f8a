package intent

import (
	"net/url"
	"strings"
)

// upiPayPrefix is the path prefix substituted when generating wallet-specific
// launch candidates.
const upiPayPrefix = "upi://pay"

// WalletScheme maps the generic UPI pay prefix to a wallet-specific scheme.
// Order in the table is launch priority.
type WalletScheme struct {
	Name    string
	Target  string
	Aliases []string
}

// DefaultWalletSchemes is the reference deployment table: three fixed
// wallets, fixed priority.
func DefaultWalletSchemes() []WalletScheme {
	return []WalletScheme{
		{Name: "phonepe", Target: "phonepe://pay", Aliases: []string{"phonepe"}},
		{Name: "paytm", Target: "paytmmp://pay", Aliases: []string{"paytm"}},
		{Name: "gpay", Target: "tez://upi/pay", Aliases: []string{"gpay", "google"}},
	}
}

// ParseWalletTable parses a wallet scheme table from its configuration form:
// semicolon-separated entries of space-separated fields
// "name target [alias...]", e.g.
//
//	phonepe phonepe://pay;paytm paytmmp://pay;gpay tez://upi/pay google
//
// The wallet name is always an implicit alias. An empty string yields the
// default table.
func ParseWalletTable(s string) []WalletScheme {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultWalletSchemes()
	}

	var table []WalletScheme
	for _, entry := range strings.Split(s, ";") {
		fields := strings.Fields(entry)
		if len(fields) < 2 {
			continue
		}
		w := WalletScheme{
			Name:    strings.ToLower(fields[0]),
			Target:  fields[1],
			Aliases: []string{strings.ToLower(fields[0])},
		}
		for _, alias := range fields[2:] {
			w.Aliases = append(w.Aliases, strings.ToLower(alias))
		}
		table = append(table, w)
	}
	if len(table) == 0 {
		return DefaultWalletSchemes()
	}
	return table
}

// matchesHint reports whether the free-form app hint names this wallet
func (w WalletScheme) matchesHint(hint string) bool {
	hint = strings.ToLower(hint)
	for _, alias := range w.Aliases {
		if strings.Contains(hint, alias) {
			return true
		}
	}
	return false
}

// variant substitutes the UPI pay prefix with this wallet's scheme.
// Returns the input unchanged when the prefix is absent (e.g. bare "upi:"
// URLs), matching the checkout page's own behavior.
func (w WalletScheme) variant(upiURL string) string {
	return strings.Replace(upiURL, upiPayPrefix, w.Target, 1)
}

// SchemeOf extracts the scheme of a raw URL, lowercased, without ":".
func SchemeOf(raw string) string {
	idx := strings.Index(raw, ":")
	if idx <= 0 {
		return ""
	}
	return strings.ToLower(raw[:idx])
}

func isUPI(raw string) bool {
	low := strings.ToLower(raw)
	return strings.HasPrefix(low, "upi:") || strings.HasPrefix(low, "upi://")
}

func isIntent(raw string) bool {
	return strings.HasPrefix(strings.ToLower(raw), "intent:")
}

// intentDescriptor is the decoded form of an "intent:" launch URL
type intentDescriptor struct {
	Scheme      string
	Package     string
	Action      string
	FallbackURL string
}

// parseIntentURL decodes the Android intent URI form
//
//	intent://host/path#Intent;scheme=upi;package=com.app;S.browser_fallback_url=...;end
//
// Only the segments the resolver acts on are extracted.
func parseIntentURL(raw string) intentDescriptor {
	var d intentDescriptor

	idx := strings.Index(raw, "#Intent;")
	if idx < 0 {
		return d
	}
	spec := raw[idx+len("#Intent;"):]
	spec = strings.TrimSuffix(spec, ";end")
	spec = strings.TrimSuffix(spec, ";")

	for _, seg := range strings.Split(spec, ";") {
		key, value, ok := strings.Cut(seg, "=")
		if !ok {
			continue
		}
		switch key {
		case "scheme":
			d.Scheme = strings.ToLower(value)
		case "package":
			d.Package = value
		case "action":
			d.Action = value
		case "S.browser_fallback_url":
			if decoded, err := url.QueryUnescape(value); err == nil {
				d.FallbackURL = decoded
			} else {
				d.FallbackURL = value
			}
		}
	}
	return d
}
