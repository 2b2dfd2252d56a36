package webhook

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// futureSkewAllowance is how far ahead of our clock a notification timestamp
// may be before it is rejected as forged or misclocked.
const futureSkewAllowance = 5 * time.Minute

// DefaultProviderCIDRs are Mercadopago's published webhook source ranges.
// Overridable via payment.json allowed_cidrs.
var DefaultProviderCIDRs = []string{
	"209.225.49.0/24",
	"216.33.196.0/24",
	"216.33.197.0/24",
	"63.128.82.0/24",
	"63.128.83.0/24",
	"63.128.94.0/24",
}

// CheckTimestamp validates the ts value from the signature header against
// the receipt time. The provider sends unix seconds; millisecond values are
// normalized for older integrations.
func CheckTimestamp(ts string, receivedAt time.Time, maxAge time.Duration) error {
	raw := strings.TrimSpace(ts)
	if raw == "" {
		return ErrStaleNotification
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: unparseable ts %q", ErrStaleNotification, raw)
	}
	if n > 1e12 {
		n = n / 1000
	}
	declared := time.Unix(n, 0)

	if age := receivedAt.Sub(declared); age > maxAge {
		return fmt.Errorf("%w: age %s exceeds %s", ErrStaleNotification, age.Round(time.Second), maxAge)
	}
	if ahead := declared.Sub(receivedAt); ahead > futureSkewAllowance {
		return fmt.Errorf("%w: %s ahead of clock", ErrFutureTimestamp, ahead.Round(time.Second))
	}
	return nil
}

// CheckSourceIP validates the client IP against the allowed CIDR ranges.
// This is advisory defense in depth; the signature is the primary
// authentication mechanism.
func CheckSourceIP(clientIP string, cidrs []string) error {
	ip := net.ParseIP(strings.TrimSpace(clientIP))
	if ip == nil {
		return fmt.Errorf("%w: unparseable ip %q", ErrUntrustedSource, clientIP)
	}
	if len(cidrs) == 0 {
		cidrs = DefaultProviderCIDRs
	}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(strings.TrimSpace(cidr))
		if err != nil {
			continue
		}
		if network.Contains(ip) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUntrustedSource, ip)
}
