// Package fingerprint derives a stable per-caller identity from proxy
// headers. The identity keys the rate limiter and the volume ledger, so a
// wallet cannot hop network origins to evade IP counting and an IP cannot
// pool free quota across declared wallets.
package fingerprint

import (
	"net"
	"net/http"
	"strings"
)

// Unknown is returned when no client address is resolvable.
const Unknown = "unknown"

const (
	// ForwardedForHeader carries the proxy-forwarded client chain; the
	// left-most entry is the original client.
	ForwardedForHeader = "X-Forwarded-For"

	// WalletHeader is the caller-declared payment wallet.
	WalletHeader = "X-Wallet-Address"
)

const separator = "|"

// FromRequest resolves the caller identity for a request. When a wallet is
// declared, the address and wallet are combined so neither can be reused
// independently.
func FromRequest(r *http.Request) string {
	addr := clientAddress(r)
	wallet := strings.TrimSpace(r.Header.Get(WalletHeader))
	if wallet != "" {
		return addr + separator + wallet
	}
	return addr
}

// Wallet returns the declared wallet address, empty when absent.
func Wallet(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(WalletHeader))
}

func clientAddress(r *http.Request) string {
	if forwarded := r.Header.Get(ForwardedForHeader); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}

	if r.RemoteAddr != "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
			return host
		}
		return r.RemoteAddr
	}

	return Unknown
}
