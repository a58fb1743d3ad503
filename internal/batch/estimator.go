package batch

// DefaultBytesPerToken is the fallback ratio when none is configured.
const DefaultBytesPerToken = 4

// Estimator approximates token counts as ceil(len(utf8 bytes) / bytesPerToken).
// It is deterministic and monotonic in input length.
type Estimator struct {
	bytesPerToken int
}

// NewEstimator creates an Estimator. Non-positive ratios use DefaultBytesPerToken.
func NewEstimator(bytesPerToken int) Estimator {
	if bytesPerToken <= 0 {
		bytesPerToken = DefaultBytesPerToken
	}
	return Estimator{bytesPerToken: bytesPerToken}
}

// BytesPerToken returns the configured ratio.
func (e Estimator) BytesPerToken() int {
	return e.ratio()
}

// Tokens estimates the token count of serialized bytes.
func (e Estimator) Tokens(b []byte) int {
	return e.count(len(b))
}

// TokensString estimates the token count of a string.
func (e Estimator) TokensString(s string) int {
	return e.count(len(s))
}

func (e Estimator) count(n int) int {
	if n == 0 {
		return 0
	}
	bpt := e.ratio()
	return (n + bpt - 1) / bpt
}

// ratio guards the zero Estimator value.
func (e Estimator) ratio() int {
	if e.bytesPerToken <= 0 {
		return DefaultBytesPerToken
	}
	return e.bytesPerToken
}
