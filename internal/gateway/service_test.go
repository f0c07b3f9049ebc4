package gateway

import (
	"context"
	"crypto/sha256"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"biogate/internal/biometric"
	"biogate/internal/ledger"
	"biogate/internal/possession"
	"biogate/internal/profile"
	"biogate/internal/token"
	"biogate/internal/vault"
	id "biogate/pkg/domain"
	dErrors "biogate/pkg/domain-errors"
)

type GatewaySuite struct {
	suite.Suite
	vault    *vault.Vault
	ledger   *ledger.Service
	sessions *possession.InMemoryStore
	svc      *Service
}

func (s *GatewaySuite) SetupTest() {
	key := make([]byte, vault.KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	v, err := vault.New(key)
	s.Require().NoError(err)

	s.vault = v
	s.ledger = ledger.NewService(ledger.NewInMemoryStore())
	s.sessions = possession.NewInMemoryStore()
	s.svc = NewService(
		profile.NewInMemoryStore(),
		s.ledger,
		v,
		possession.NewVerifier(s.sessions),
		token.NewService("test-signing-key", "biogate", "biogate-clients"),
	)
}

func TestGatewaySuite(t *testing.T) {
	suite.Run(t, new(GatewaySuite))
}

func (s *GatewaySuite) register(userID id.UserID, sample []byte) *RegistrationResult {
	result, err := s.svc.Register(context.Background(), RegisterRequest{
		UserID:           userID,
		Consent:          true,
		RequesterContext: "Chrome on Mac OS X",
		Samples:          map[id.Modality][]byte{id.ModalityVoice: sample},
	})
	s.Require().NoError(err)
	return result
}

func (s *GatewaySuite) TestRegisterAndTemplateAuthenticate() {
	result := s.register("U1", []byte("sample-A"))
	s.Equal(id.UserID("U1"), result.UserID)

	summary, ok := result.Modalities[id.ModalityVoice]
	s.Require().True(ok)

	var tpl biometric.Template
	s.Require().NoError(s.vault.DecryptJSON(summary.TemplateBlob, &tpl))
	expected := sha256.Sum256(append(append([]byte{}, tpl.Salt...), []byte("sample-A")...))
	s.Equal(expected[:], tpl.Digest)

	wrong, err := s.svc.AuthenticateByTemplate(context.Background(), TemplateAuthRequest{
		UserID:     "U1",
		Modality:   id.ModalityVoice,
		Input:      []byte("sample-B"),
		AccessorID: "test-suite",
	})
	s.Require().NoError(err)
	s.False(wrong.Authenticated)
	s.Empty(wrong.AccessToken)

	right, err := s.svc.AuthenticateByTemplate(context.Background(), TemplateAuthRequest{
		UserID:     "U1",
		Modality:   id.ModalityVoice,
		Input:      []byte("sample-A"),
		AccessorID: "test-suite",
	})
	s.Require().NoError(err)
	s.True(right.Authenticated)
	s.NotEmpty(right.AccessToken)

	claims, err := token.NewService("test-signing-key", "biogate", "biogate-clients").ValidateToken(right.AccessToken)
	s.Require().NoError(err)
	s.Equal("U1", claims.UserID)
	s.Equal("voice", claims.Modality)
	s.Equal("template", claims.Method)
}

func (s *GatewaySuite) TestTemplateAuthWithSuppliedBlob() {
	result := s.register("U1", []byte("sample-A"))
	blob := result.Modalities[id.ModalityVoice].TemplateBlob

	res, err := s.svc.AuthenticateByTemplate(context.Background(), TemplateAuthRequest{
		UserID:     "U1",
		Modality:   id.ModalityVoice,
		Input:      []byte("sample-A"),
		Blob:       &blob,
		AccessorID: "test-suite",
	})
	s.Require().NoError(err)
	s.True(res.Authenticated)

	s.Run("tampered blob fails closed", func() {
		bad := blob
		bad.Ciphertext = append([]byte{}, blob.Ciphertext...)
		bad.Ciphertext[0] ^= 0x01

		_, err := s.svc.AuthenticateByTemplate(context.Background(), TemplateAuthRequest{
			UserID:     "U1",
			Modality:   id.ModalityVoice,
			Input:      []byte("sample-A"),
			Blob:       &bad,
			AccessorID: "test-suite",
		})
		s.True(dErrors.Is(err, dErrors.CodeDecryptionFailed))
	})
}

func (s *GatewaySuite) TestRegisterWithoutConsent() {
	_, err := s.svc.Register(context.Background(), RegisterRequest{
		UserID:  "U1",
		Consent: false,
		Samples: map[id.Modality][]byte{id.ModalityVoice: []byte("sample-A")},
	})
	s.True(dErrors.Is(err, dErrors.CodeConsentRequired))

	// the denial is on the record, nothing else was processed
	export, err := s.svc.ExportUserData(context.Background(), "U1", "test-suite")
	s.Require().NoError(err)
	s.Require().Len(export.Consents, 1)
	s.False(export.Consents[0].Granted)

	_, err = s.svc.AuthenticateByTemplate(context.Background(), TemplateAuthRequest{
		UserID:     "U1",
		Modality:   id.ModalityVoice,
		Input:      []byte("sample-A"),
		AccessorID: "test-suite",
	})
	s.True(dErrors.Is(err, dErrors.CodeConsentRequired))
}

func (s *GatewaySuite) TestPossessionFlow() {
	secret := []byte("secret-K")
	result := s.register("U2", secret)
	randomness := result.Modalities[id.ModalityVoice].Randomness
	s.Require().NotEmpty(randomness)

	handshake, err := s.svc.StartPossessionSession(context.Background(), StartPossessionRequest{
		UserID:     "U2",
		Modality:   id.ModalityVoice,
		TTL:        300 * time.Second,
		AccessorID: "test-suite",
	})
	s.Require().NoError(err)
	s.Len(handshake.Challenge, possession.ChallengeSize)
	s.Equal(300, handshake.ExpiresInSeconds)

	proof, err := possession.Prove(secret, handshake.Challenge, randomness)
	s.Require().NoError(err)

	res, err := s.svc.CompletePossessionSession(context.Background(), handshake.SessionID, proof)
	s.Require().NoError(err)
	s.True(res.Authenticated)
	s.NotEmpty(res.AccessToken)

	s.Run("same session id and proof verify false the second time", func() {
		replay, err := s.svc.CompletePossessionSession(context.Background(), handshake.SessionID, proof)
		s.Require().NoError(err)
		s.False(replay.Authenticated)
		s.Empty(replay.AccessToken)
	})
}

func (s *GatewaySuite) TestPossessionWrongSecret() {
	s.register("U2", []byte("secret-K"))
	result := s.register("U3", []byte("secret-L"))

	handshake, err := s.svc.StartPossessionSession(context.Background(), StartPossessionRequest{
		UserID:     "U2",
		Modality:   id.ModalityVoice,
		AccessorID: "test-suite",
	})
	s.Require().NoError(err)

	// prove with U3's material against U2's challenge
	proof, err := possession.Prove([]byte("secret-L"), handshake.Challenge, result.Modalities[id.ModalityVoice].Randomness)
	s.Require().NoError(err)

	res, err := s.svc.CompletePossessionSession(context.Background(), handshake.SessionID, proof)
	s.Require().NoError(err)
	s.False(res.Authenticated)
}

func (s *GatewaySuite) TestPossessionExpiredSession() {
	secret := []byte("secret-K")
	result := s.register("U2", secret)

	handshake, err := s.svc.StartPossessionSession(context.Background(), StartPossessionRequest{
		UserID:     "U2",
		Modality:   id.ModalityVoice,
		TTL:        time.Nanosecond,
		AccessorID: "test-suite",
	})
	s.Require().NoError(err)

	proof, err := possession.Prove(secret, handshake.Challenge, result.Modalities[id.ModalityVoice].Randomness)
	s.Require().NoError(err)

	res, err := s.svc.CompletePossessionSession(context.Background(), handshake.SessionID, proof)
	s.Require().NoError(err)
	s.False(res.Authenticated)
}

func (s *GatewaySuite) TestCheckRights() {
	s.register("U1", []byte("sample-A"))

	granted, err := s.svc.CheckRights(context.Background(), "U1", id.ModalityVoice, "test-suite")
	s.Require().NoError(err)
	s.True(granted)

	granted, err = s.svc.CheckRights(context.Background(), "U1", id.ModalityFace, "test-suite")
	s.Require().NoError(err)
	s.False(granted)

	_, err = s.svc.CheckRights(context.Background(), "nobody", id.ModalityVoice, "test-suite")
	s.True(dErrors.Is(err, dErrors.CodeNotFound))
}

func (s *GatewaySuite) TestExportAndErase() {
	s.register("U1", []byte("sample-A"))

	_, err := s.svc.AuthenticateByTemplate(context.Background(), TemplateAuthRequest{
		UserID:     "U1",
		Modality:   id.ModalityVoice,
		Input:      []byte("sample-A"),
		AccessorID: "test-suite",
	})
	s.Require().NoError(err)

	export, err := s.svc.ExportUserData(context.Background(), "U1", "test-suite")
	s.Require().NoError(err)
	s.Len(export.Consents, 2)
	s.Len(export.AccessLog, 2) // the verify and the export itself

	confirmation, err := s.svc.EraseUserData(context.Background(), "U1", "user request", "test-suite")
	s.Require().NoError(err)
	s.Equal(2, confirmation.ConsentsDeleted)
	s.Equal(3, confirmation.EntriesAnonymized)

	after, err := s.svc.ExportUserData(context.Background(), "U1", "test-suite")
	s.Require().NoError(err)
	s.Empty(after.Consents)
	s.Require().Len(after.AccessLog, 4)
	for _, entry := range after.AccessLog[:3] {
		s.Equal(ledger.ErasedSubject, entry.Subject)
		s.True(entry.Anonymized)
	}

	// templates and rights are gone with the profile
	_, err = s.svc.AuthenticateByTemplate(context.Background(), TemplateAuthRequest{
		UserID:     "U1",
		Modality:   id.ModalityVoice,
		Input:      []byte("sample-A"),
		AccessorID: "test-suite",
	})
	s.True(dErrors.Is(err, dErrors.CodeConsentRequired))
}

func (s *GatewaySuite) TestRegisterValidation() {
	_, err := s.svc.Register(context.Background(), RegisterRequest{UserID: "U1", Consent: true})
	s.True(dErrors.Is(err, dErrors.CodeBadRequest))
}
