package auth

import (
	"crypto/sha1" //#nosec G505 -- not used for cryptographic purposes, only HIBP's k-anonymity protocol
	"errors"
	"fmt"
	"strconv"
	"strings"

	gopwned "github.com/mavjs/goPwned"
)

// ErrPwnedRateLimited reports that HIBP's API returned a 429; the caller
// should ask the client to retry in about a minute.
var ErrPwnedRateLimited = errors.New("auth: hibp rate limited, retry shortly")

// CheckPwned reports whether password appears in the Have I Been Pwned
// breach corpus, using the k-anonymity range API so only a SHA-1 prefix
// ever leaves the process (§6 setup-wizard password change).
func CheckPwned(apiKey, password string) (bool, error) {
	h := sha1.New() //#nosec G401 -- not used for cryptographic purposes, only HIBP's k-anonymity protocol
	h.Write([]byte(password))
	hashed := fmt.Sprintf("%X", h.Sum(nil))
	prefix, suffix := hashed[0:5], hashed[5:40]

	client := gopwned.NewClient(nil, apiKey)
	body, err := client.GetPwnedPasswords(prefix, false)
	if err != nil {
		if strings.HasPrefix(err.Error(), "Too many requests") {
			return false, ErrPwnedRateLimited
		}
		return false, fmt.Errorf("auth: querying hibp: %w", err)
	}

	count, err := pwnedCount(body, suffix)
	if err != nil {
		return false, fmt.Errorf("auth: parsing hibp response: %w", err)
	}
	return count > 0, nil
}

// pwnedCount scans a k-anonymity range response body (CRLF-separated
// "SUFFIX:COUNT" lines) for suffix, returning its breach count or 0 if
// absent. Split out from CheckPwned so it's testable without a live call.
func pwnedCount(body []byte, suffix string) (int64, error) {
	for _, line := range strings.Split(string(body), "\r\n") {
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		if parts[0] != suffix {
			continue
		}
		count, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
		if err != nil {
			return 0, err
		}
		return count, nil
	}
	return 0, nil
}
