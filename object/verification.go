package object

// TrustLevel mirrors git's own trust model for signing keys, from
// lowest to highest confidence.
type TrustLevel int8

const (
	TrustUndefined TrustLevel = iota
	TrustNever
	TrustMarginal
	TrustFull
	TrustUltimate
)

func (t TrustLevel) String() string {
	switch t {
	case TrustNever:
		return "never"
	case TrustMarginal:
		return "marginal"
	case TrustFull:
		return "full"
	case TrustUltimate:
		return "ultimate"
	default:
		return "undefined"
	}
}

// AtLeast reports whether t meets or exceeds required.
func (t TrustLevel) AtLeast(required TrustLevel) bool {
	return t >= required
}

// VerificationResult is what a signature verification attempt produces:
// the identity that signed the object (if verification succeeded), the
// format the signature was in, and the trust level assigned to the
// signing key by the verifier's keyring.
type VerificationResult struct {
	Format CryptoSignatureFormat
	Trust  TrustLevel
	KeyID  string
}
