package units

// maskPrefixLen and maskSuffixLen control how much of a credential survives
// masking: the first 10 and last 4 characters, with the middle replaced by
// "...". Enough to correlate a log line with a known key, not enough to use.
const (
	maskPrefixLen = 10
	maskSuffixLen = 4
)

// Mask returns a log-safe rendering of a credential, e.g.
// "sk-rei-alp...9f2c". Credentials too short to keep a prefix and suffix
// apart are fully redacted. This is a pure formatting helper — the full
// credential only ever goes on the wire, never into a log line.
func Mask(secret string) string {
	if len(secret) <= maskPrefixLen+maskSuffixLen {
		return "***"
	}
	return secret[:maskPrefixLen] + "..." + secret[len(secret)-maskSuffixLen:]
}
