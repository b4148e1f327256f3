package object

import "bytes"

// CryptoSignatureFormat identifies the wire format of a detached
// cryptographic signature embedded in a commit or tag, mirroring git's
// own gpg-interface.c detection by literal armor prefix.
type CryptoSignatureFormat int8

const (
	SignatureFormatUnknown CryptoSignatureFormat = iota
	SignatureFormatOpenPGP
	SignatureFormatX509
	SignatureFormatSSH
)

func (f CryptoSignatureFormat) String() string {
	switch f {
	case SignatureFormatOpenPGP:
		return "openpgp"
	case SignatureFormatX509:
		return "x509"
	case SignatureFormatSSH:
		return "ssh"
	default:
		return "unknown"
	}
}

var signaturePrefixes = map[CryptoSignatureFormat][][]byte{
	SignatureFormatOpenPGP: {
		[]byte("-----BEGIN PGP SIGNATURE-----"),
		[]byte("-----BEGIN PGP MESSAGE-----"),
	},
	SignatureFormatX509: {
		[]byte("-----BEGIN CERTIFICATE-----"),
		[]byte("-----BEGIN SIGNED MESSAGE-----"),
	},
	SignatureFormatSSH: {
		[]byte("-----BEGIN SSH SIGNATURE-----"),
	},
}

// DetectCryptoSignatureFormat reports which armor the given bytes open
// with, or SignatureFormatUnknown.
func DetectCryptoSignatureFormat(b []byte) CryptoSignatureFormat {
	for format, prefixes := range signaturePrefixes {
		for _, p := range prefixes {
			if bytes.HasPrefix(b, p) {
				return format
			}
		}
	}
	return SignatureFormatUnknown
}

// splitSignedContent locates the start of the last signature armor block
// in b and returns its offset and format, or (-1, SignatureFormatUnknown)
// if none is present. Everything from the returned offset onward is the
// signature; everything before it is the signed message, matching git's
// own parse_signed_buffer.
func splitSignedContent(b []byte) (int, CryptoSignatureFormat) {
	pos, n := -1, 0
	var format CryptoSignatureFormat
	for n < len(b) {
		rest := b[n:]
		if f := DetectCryptoSignatureFormat(rest); f != SignatureFormatUnknown {
			pos, format = n, f
		}
		eol := bytes.IndexByte(rest, '\n')
		if eol < 0 {
			break
		}
		n += eol + 1
	}
	return pos, format
}
