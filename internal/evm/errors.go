package evm

import "strings"

// rangeLimitMarkers are substrings providers use when an eth_getLogs span
// is wider than they allow. There is no standard error code for this, so
// classification is by message text.
var rangeLimitMarkers = []string{
	"block range",
	"query returned more than",
	"response size exceeded",
	"too many results",
	"range is too large",
	"exceed maximum block range",
	"limit exceeded",
}

// IsRangeLimitError reports whether err is a provider rejection of a log
// query block range. These are resolved by narrowing the window, not by
// retrying.
func IsRangeLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range rangeLimitMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
