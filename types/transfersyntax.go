package types

// Uncompressed transfer syntaxes (PS3.5 section 10)
const (
	ImplicitVRLittleEndian         = "1.2.840.10008.1.2"
	ExplicitVRLittleEndian         = "1.2.840.10008.1.2.1"
	DeflatedExplicitVRLittleEndian = "1.2.840.10008.1.2.1.99"
	ExplicitVRBigEndian            = "1.2.840.10008.1.2.2"
)

// Compressed transfer syntaxes an archive usually stores natively
const (
	JPEGBaseline8Bit = "1.2.840.10008.1.2.4.50"
	JPEGLosslessSV1  = "1.2.840.10008.1.2.4.70"
	JPEGLSLossless   = "1.2.840.10008.1.2.4.80"
	JPEG2000Lossless = "1.2.840.10008.1.2.4.90"
	JPEG2000         = "1.2.840.10008.1.2.4.91"
	RLELossless      = "1.2.840.10008.1.2.5"
)

// DefaultTransferSyntaxes are proposed when the caller does not specify any.
// Explicit VR comes first so that acceptors that pick the first supported
// entry negotiate it.
func DefaultTransferSyntaxes() []string {
	return []string{ExplicitVRLittleEndian, ImplicitVRLittleEndian}
}

// IsUncompressed reports whether uid is one of the native encodings.
func IsUncompressed(uid string) bool {
	switch uid {
	case ImplicitVRLittleEndian, ExplicitVRLittleEndian, ExplicitVRBigEndian:
		return true
	}
	return false
}
