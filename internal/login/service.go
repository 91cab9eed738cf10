// ABOUTME: Login orchestrator tying challenges, signatures, identities and delegations together
// ABOUTME: One mutex guards the challenge store and the signature map for every operation

package login

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/siwx-gateway/internal/certify"
	"github.com/2389/siwx-gateway/internal/challenge"
	"github.com/2389/siwx-gateway/internal/delegation"
	"github.com/2389/siwx-gateway/internal/identity"
	"github.com/2389/siwx-gateway/internal/sigmap"
	"github.com/2389/siwx-gateway/internal/wallet"
)

// Settings configures a Service.
type Settings struct {
	Scheme     wallet.Scheme
	Challenge  challenge.Settings
	Salt       string
	Issuer     identity.Principal // principal that certifies delegations
	SessionTTL time.Duration
	Targets    []identity.Principal // nil means no target restriction
	MaxPending int                  // pending challenge cap, 0 for the default
	PruneBatch int                  // signature map entries pruned per login, 0 for the default
}

// Certifier is notified of every new root and returns its certificate.
type Certifier interface {
	Certify(root sigmap.Hash) ([]byte, error)
}

// Options holds optional collaborators.
type Options struct {
	Nonces    challenge.NonceSource // defaults to challenge.PlaceholderNonce
	Clock     func() time.Time      // defaults to time.Now
	Certifier Certifier             // nil leaves roots uncertified
	Logger    *slog.Logger
}

// Details is what a successful login returns.
type Details struct {
	Expiration    uint64 // unix nanoseconds
	UserPublicKey []byte
	Principal     identity.Principal
}

// SignedDelegation is a delegation with its CBOR certified signature.
type SignedDelegation struct {
	Delegation *delegation.Delegation
	Signature  []byte
}

// Root describes the current signature map commitment.
type Root struct {
	Hash        sigmap.Hash
	Entries     int
	Certificate []byte
}

// Stats are point-in-time sizes for metrics.
type Stats struct {
	PendingChallenges int
	Delegations       int
}

// Service runs the sign-in flow. The zero value is not usable; construct with New.
type Service struct {
	mu sync.Mutex

	settings   Settings
	verifier   wallet.Verifier
	issuer     *challenge.Issuer
	deriver    *identity.Deriver
	challenges *challenge.Store
	sigs       *sigmap.Map
	certifier  Certifier
	now        func() time.Time
	logger     *slog.Logger

	certificate []byte
	certRoot    sigmap.Hash
	certified   bool
}

// New validates settings and builds a service with empty state.
func New(settings Settings, opts Options) (*Service, error) {
	if settings.SessionTTL <= 0 {
		return nil, fmt.Errorf("session ttl must be positive, got %v", settings.SessionTTL)
	}
	if settings.PruneBatch <= 0 {
		settings.PruneBatch = sigmap.DefaultPruneBatch
	}

	verifier, err := wallet.NewVerifier(settings.Scheme)
	if err != nil {
		return nil, err
	}

	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	issuer, err := challenge.NewIssuer(settings.Challenge, verifier.AccountLabel(), opts.Nonces, opts.Clock)
	if err != nil {
		return nil, err
	}
	deriver, err := identity.NewDeriver(settings.Salt, settings.Issuer)
	if err != nil {
		return nil, err
	}

	return &Service{
		settings:   settings,
		verifier:   verifier,
		issuer:     issuer,
		deriver:    deriver,
		challenges: challenge.NewStore(settings.MaxPending),
		sigs:       sigmap.New(),
		certifier:  opts.Certifier,
		now:        opts.Clock,
		logger:     opts.Logger,
	}, nil
}

func (s *Service) ready() error {
	if s == nil || s.verifier == nil {
		return newError(CodeNotInitialized, ErrNotInitialized)
	}
	return nil
}

func (s *Service) parseSubject(address string) (wallet.Subject, error) {
	subject, err := s.verifier.ParseSubject(address)
	if err != nil {
		return wallet.Subject{}, newError(CodeMalformedKey, err)
	}
	return subject, nil
}

// PrepareLogin issues a challenge for address and returns the text to sign.
// Any earlier pending challenge for the same wallet is replaced.
func (s *Service) PrepareLogin(address string) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	subject, err := s.parseSubject(address)
	if err != nil {
		return "", err
	}

	c, err := s.issuer.Issue(subject.Text)
	if err != nil {
		return "", fmt.Errorf("issuing challenge: %w", err)
	}
	s.challenges.Insert(subject.Key(), c)

	s.logger.Debug("challenge issued", "address", subject.Text, "expires", c.ExpirationTime)
	return c.Render(), nil
}

// Login verifies signature over the pending challenge for address and
// registers a delegation to sessionKey.
func (s *Service) Login(signature, address string, sessionKey []byte) (*Details, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	subject, err := s.parseSubject(address)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if n := s.challenges.PruneExpired(now); n > 0 {
		s.logger.Debug("pruned expired challenges", "count", n)
	}

	c, err := s.challenges.Get(subject.Key())
	if err != nil {
		return nil, newError(CodeChallengeNotFound, err)
	}

	verifyErr := s.verifier.Verify(c.Render(), signature, subject)
	s.challenges.Remove(subject.Key())
	if verifyErr != nil {
		return nil, classifyVerifyError(verifyErr)
	}

	expiration := uint64(c.IssuedAt.Add(s.settings.SessionTTL).UnixNano())

	id, err := s.deriver.Identity(subject.Bytes)
	if err != nil {
		return nil, newError(CodeMalformedKey, err)
	}

	if n := s.sigs.PruneExpired(now, s.settings.PruneBatch); n > 0 {
		s.logger.Debug("pruned expired delegations", "count", n)
	}

	d, err := delegation.New(sessionKey, expiration, s.settings.Targets)
	if err != nil {
		return nil, newError(CodeDelegationConstruction, err)
	}
	s.sigs.Put(id.Seed.Hash(), d.Hash(), time.Unix(0, int64(expiration)))
	s.certifyLocked()

	s.logger.Info("login succeeded", "address", subject.Text, "principal", id.Principal.String())
	return &Details{
		Expiration:    expiration,
		UserPublicKey: id.PublicKey,
		Principal:     id.Principal,
	}, nil
}

// GetDelegation returns the delegation registered by an earlier Login with
// the same address, session key and expiration, plus its certified signature.
func (s *Service) GetDelegation(address string, sessionKey []byte, expiration uint64) (*SignedDelegation, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	subject, err := s.parseSubject(address)
	if err != nil {
		return nil, err
	}
	seed, err := s.deriver.Seed(subject.Bytes)
	if err != nil {
		return nil, newError(CodeMalformedKey, err)
	}

	d, err := delegation.New(sessionKey, expiration, s.settings.Targets)
	if err != nil {
		return nil, newError(CodeDelegationConstruction, err)
	}

	key := seed.Hash()
	if stored, ok := s.sigs.Get(key); !ok || stored != d.Hash() {
		return nil, newError(CodeSignatureNotFound, ErrSignatureNotFound)
	}

	cert, err := s.currentCertificateLocked()
	if err != nil {
		return nil, err
	}
	sig, err := (&certify.CertifiedSignature{
		Certificate: cert,
		Tree:        s.sigs.Witness(key),
	}).Encode()
	if err != nil {
		return nil, err
	}

	return &SignedDelegation{Delegation: d, Signature: sig}, nil
}

// Root returns the current root with its certificate, if any.
func (s *Service) Root() (*Root, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	root := &Root{
		Hash:    s.sigs.Root(),
		Entries: s.sigs.Len(),
	}
	if s.certified && s.certRoot == root.Hash {
		root.Certificate = s.certificate
	}
	return root, nil
}

// Witness proves presence or absence of seedHash in the signature map.
func (s *Service) Witness(seedHash sigmap.Hash) (*sigmap.Witness, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sigs.Witness(seedHash), nil
}

// Identity resolves address to its identity without touching any state.
func (s *Service) Identity(address string) (*identity.Identity, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	subject, err := s.parseSubject(address)
	if err != nil {
		return nil, err
	}
	id, err := s.deriver.Identity(subject.Bytes)
	if err != nil {
		return nil, newError(CodeMalformedKey, err)
	}
	return id, nil
}

// Stats reports current sizes.
func (s *Service) Stats() Stats {
	if s.ready() != nil {
		return Stats{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		PendingChallenges: s.challenges.Len(),
		Delegations:       s.sigs.Len(),
	}
}

// certifyLocked hands the new root to the certifier. A failure leaves the
// root uncertified; GetDelegation retries.
func (s *Service) certifyLocked() {
	if s.certifier == nil {
		return
	}
	if _, err := s.currentCertificateLocked(); err != nil {
		s.logger.Warn("certifying root failed", "error", err)
	}
}

func (s *Service) currentCertificateLocked() ([]byte, error) {
	root := s.sigs.Root()
	if s.certified && s.certRoot == root {
		return s.certificate, nil
	}
	if s.certifier == nil {
		return nil, nil
	}

	cert, err := s.certifier.Certify(root)
	if err != nil {
		s.certified = false
		return nil, fmt.Errorf("certifying root: %w", err)
	}
	s.certificate = cert
	s.certRoot = root
	s.certified = true
	return cert, nil
}

func classifyVerifyError(err error) error {
	switch {
	case errors.Is(err, wallet.ErrMalformedSignature):
		return newError(CodeMalformedSignature, err)
	case errors.Is(err, wallet.ErrMalformedKey):
		return newError(CodeMalformedKey, err)
	default:
		return newError(CodeInvalidSignature, err)
	}
}
