package domain

import dErrors "biogate/pkg/domain-errors"

// Modality labels a biometric channel. Rights and templates are tracked
// per modality so revoking one does not affect the other.
type Modality string

const (
	ModalityVoice Modality = "voice"
	ModalityFace  Modality = "face"
)

var knownModalities = map[Modality]bool{
	ModalityVoice: true,
	ModalityFace:  true,
}

// ParseModality rejects unknown modality labels at the trust boundary.
func ParseModality(raw string) (Modality, error) {
	m := Modality(raw)
	if !knownModalities[m] {
		return "", dErrors.New(dErrors.CodeBadRequest, "unknown modality: "+raw)
	}
	return m, nil
}

func (m Modality) String() string { return string(m) }
