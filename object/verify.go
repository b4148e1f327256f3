package object

import (
	"io"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
)

// VerifiableObject is satisfied by Commit and Tag: objects that carry a
// detached signature over the rest of their own encoded content.
type VerifiableObject interface {
	Signature() string
	EncodeWithoutSignature(w ContentWriter) error
}

// PGPVerifier checks a detached OpenPGP signature against a fixed
// keyring.
type PGPVerifier struct {
	entities openpgp.EntityList
}

// NewPGPVerifier wraps an already-loaded keyring.
func NewPGPVerifier(entities openpgp.EntityList) *PGPVerifier {
	return &PGPVerifier{entities: entities}
}

// NewPGPVerifierFromArmoredKeyRing reads an ASCII-armored public keyring.
func NewPGPVerifierFromArmoredKeyRing(r io.Reader) (*PGPVerifier, error) {
	entities, err := openpgp.ReadArmoredKeyRing(r)
	if err != nil {
		return nil, err
	}
	return NewPGPVerifier(entities), nil
}

// Verify checks o's signature against the verifier's keyring and, on
// success, returns the signing key's key ID. Trust is always reported
// as TrustUndefined; no trust level is read from the keyring.
func (v *PGPVerifier) Verify(o VerifiableObject) (VerificationResult, error) {
	sig := strings.NewReader(o.Signature())

	payload := new(bufWriter)
	if err := o.EncodeWithoutSignature(payload); err != nil {
		return VerificationResult{}, err
	}

	entity, err := openpgp.CheckArmoredDetachedSignature(v.entities, strings.NewReader(string(payload.b)), sig, nil)
	if err != nil {
		return VerificationResult{}, err
	}

	result := VerificationResult{Format: SignatureFormatOpenPGP, Trust: TrustUndefined}
	if entity.PrimaryKey != nil {
		result.KeyID = entity.PrimaryKey.KeyIdString()
	}
	return result, nil
}
