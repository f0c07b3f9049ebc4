package handler

import (
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"biogate/internal/gateway"
	"biogate/internal/ledger"
	"biogate/internal/possession"
	"biogate/internal/profile"
	"biogate/internal/token"
	"biogate/internal/vault"
	"biogate/pkg/testutil"
)

// The handler is tested against the real service wired to in-memory
// stores, so these tests cover the whole path from request JSON to
// ledger side effects.
type HandlerSuite struct {
	suite.Suite
	router chi.Router
}

func (s *HandlerSuite) SetupTest() {
	key := make([]byte, vault.KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	v, err := vault.New(key)
	s.Require().NoError(err)

	svc := gateway.NewService(
		profile.NewInMemoryStore(),
		ledger.NewService(ledger.NewInMemoryStore()),
		v,
		possession.NewVerifier(possession.NewInMemoryStore()),
		token.NewService("test-signing-key", "biogate", "biogate-clients"),
	)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.router = chi.NewRouter()
	New(svc, logger).Register(s.router)
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) register(userID string, sample []byte) *registerResponse {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/register", registerRequest{
		UserID:     userID,
		Consent:    true,
		Modalities: map[string][]byte{"voice": sample},
	})
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	return testutil.UnmarshalResponse[registerResponse](s.T(), rr)
}

func (s *HandlerSuite) TestRegister() {
	resp := s.register("U1", []byte("sample-A"))
	s.Equal("U1", resp.UserID)

	summary, ok := resp.Modalities["voice"]
	s.Require().True(ok)
	s.NotEmpty(summary.TemplateBlob.Ciphertext)
	s.NotEmpty(summary.Commitment)
	s.NotEmpty(summary.Randomness)
	s.False(resp.RegisteredAt.IsZero())
}

func (s *HandlerSuite) TestRegisterValidation() {
	s.Run("missing consent", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/register", registerRequest{
			UserID:     "U1",
			Consent:    false,
			Modalities: map[string][]byte{"voice": []byte("sample-A")},
		})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusPreconditionFailed, "consent_required")
	})

	s.Run("unknown modality", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/register", registerRequest{
			UserID:     "U1",
			Consent:    true,
			Modalities: map[string][]byte{"gait": []byte("x")},
		})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})

	s.Run("empty sample", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/register", registerRequest{
			UserID:     "U1",
			Consent:    true,
			Modalities: map[string][]byte{"voice": {}},
		})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})

	s.Run("malformed body", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/register", nil)
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
	})
}

func (s *HandlerSuite) TestTemplateAuth() {
	s.register("U1", []byte("sample-A"))

	wrong := testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/template", templateAuthRequest{
		UserID:   "U1",
		Modality: "voice",
		Input:    []byte("sample-B"),
	})
	rr := testutil.DoRequest(s.router, wrong)
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	denied := testutil.UnmarshalResponse[authResponse](s.T(), rr)
	s.False(denied.Authenticated)
	s.Empty(denied.AccessToken)

	right := testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/template", templateAuthRequest{
		UserID:   "U1",
		Modality: "voice",
		Input:    []byte("sample-A"),
	})
	rr = testutil.DoRequest(s.router, right)
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	granted := testutil.UnmarshalResponse[authResponse](s.T(), rr)
	s.True(granted.Authenticated)
	s.NotEmpty(granted.AccessToken)
}

func (s *HandlerSuite) TestTemplateAuthUnknownUser() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/template", templateAuthRequest{
		UserID:   "nobody",
		Modality: "voice",
		Input:    []byte("sample-A"),
	})
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusPreconditionFailed, "consent_required")
}

func (s *HandlerSuite) TestPossessionFlow() {
	secret := []byte("secret-K")
	registered := s.register("U2", secret)
	randomness := registered.Modalities["voice"].Randomness

	start := testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/possession/start", possessionStartRequest{
		UserID:     "U2",
		Modality:   "voice",
		TTLSeconds: 300,
	})
	rr := testutil.DoRequest(s.router, start)
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	handshake := testutil.UnmarshalResponse[possessionStartResponse](s.T(), rr)
	s.NotEmpty(handshake.SessionID)
	s.Len(handshake.Challenge, possession.ChallengeSize)
	s.Equal(300, handshake.ExpiresInSeconds)

	proof, err := possession.Prove(secret, handshake.Challenge, randomness)
	s.Require().NoError(err)

	complete := testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/possession/complete", possessionCompleteRequest{
		SessionID: handshake.SessionID,
		Proof:     proof,
	})
	rr = testutil.DoRequest(s.router, complete)
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	verified := testutil.UnmarshalResponse[possessionCompleteResponse](s.T(), rr)
	s.True(verified.Verified)
	s.NotEmpty(verified.AccessToken)

	s.Run("replay verifies false", func() {
		replayReq := testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/possession/complete", possessionCompleteRequest{
			SessionID: handshake.SessionID,
			Proof:     proof,
		})
		rr := testutil.DoRequest(s.router, replayReq)
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		replay := testutil.UnmarshalResponse[possessionCompleteResponse](s.T(), rr)
		s.False(replay.Verified)
		s.Empty(replay.AccessToken)
	})
}

func (s *HandlerSuite) TestPossessionStartValidation() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/possession/start", possessionStartRequest{
		UserID:     "U2",
		Modality:   "voice",
		TTLSeconds: -1,
	})
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")

	bad := testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/possession/complete", possessionCompleteRequest{
		SessionID: "not-a-uuid",
		Proof:     []byte("p"),
	})
	rr = testutil.DoRequest(s.router, bad)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
}

func (s *HandlerSuite) TestRightsEndpoint() {
	s.register("U1", []byte("sample-A"))

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/users/U1/rights/voice"))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	s.True(testutil.UnmarshalResponse[rightsResponse](s.T(), rr).Granted)

	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/users/U1/rights/face"))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	s.False(testutil.UnmarshalResponse[rightsResponse](s.T(), rr).Granted)

	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/users/nobody/rights/voice"))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
}

func (s *HandlerSuite) TestExportAndErase() {
	s.register("U1", []byte("sample-A"))

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/users/U1/export"))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	export := testutil.UnmarshalResponse[ledger.Export](s.T(), rr)
	s.Len(export.Consents, 2)

	erase := testutil.NewJSONRequest(s.T(), http.MethodDelete, "/users/U1", eraseRequest{Reason: "user request"})
	rr = testutil.DoRequest(s.router, erase)
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	confirmation := testutil.UnmarshalResponse[ledger.ErasureConfirmation](s.T(), rr)
	s.Equal(2, confirmation.ConsentsDeleted)

	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/users/U1/rights/voice"))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
}
