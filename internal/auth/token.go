package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nickmous/beanstash/internal/logging"
)

// MinSecretLength is the shortest HS256 key NewSigningConfig accepts.
const MinSecretLength = 32

// SigningConfig is the immutable key material and lifetime used to sign and
// check tokens. Build it once with NewSigningConfig.
type SigningConfig struct {
	key    []byte
	ttl    time.Duration
	issuer string
}

func NewSigningConfig(secret string, ttl time.Duration, issuer string) (SigningConfig, error) {
	if len(secret) < MinSecretLength {
		return SigningConfig{}, fmt.Errorf("%w: secret must be at least %d bytes", ErrInvalidSigningConfig, MinSecretLength)
	}
	if ttl <= 0 {
		return SigningConfig{}, fmt.Errorf("%w: ttl must be positive", ErrInvalidSigningConfig)
	}
	return SigningConfig{key: []byte(secret), ttl: ttl, issuer: issuer}, nil
}

// TTL is the lifetime of issued tokens.
func (c SigningConfig) TTL() time.Duration { return c.ttl }

// Issuer is the iss claim, empty when not configured.
func (c SigningConfig) Issuer() string { return c.issuer }

// TokenService issues and checks HS256 bearer tokens whose subject is the
// account username. It holds no mutable state.
type TokenService struct {
	cfg    SigningConfig
	now    func() time.Time
	logger *slog.Logger
}

type TokenOption func(*TokenService)

// WithTokenClock replaces time.Now for issuing and validating.
func WithTokenClock(now func() time.Time) TokenOption {
	return func(s *TokenService) {
		if now != nil {
			s.now = now
		}
	}
}

func WithTokenLogger(l *slog.Logger) TokenOption {
	return func(s *TokenService) { s.logger = logging.OrDiscard(l) }
}

func NewTokenService(cfg SigningConfig, opts ...TokenOption) *TokenService {
	s := &TokenService{cfg: cfg, now: time.Now, logger: logging.Discard()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue signs a token for subject valid from now until now+TTL.
func (s *TokenService) Issue(subject string) (string, error) {
	if subject == "" {
		return "", errors.New("issue token: empty subject")
	}
	if len(s.cfg.key) == 0 {
		return "", ErrInvalidSigningConfig
	}
	now := s.now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    s.cfg.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ExtractSubject reads the sub claim without checking the signature. The
// result is only good for choosing which account to look up; Validate must
// still be called before trusting it.
func (s *TokenService) ExtractSubject(token string) (string, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrMalformedToken)
	}
	return claims.Subject, nil
}

// Validate reports whether token carries a good signature, has not expired
// and names expectedSubject. Any failure yields false.
func (s *TokenService) Validate(token, expectedSubject string) bool {
	if token == "" || expectedSubject == "" || len(s.cfg.key) == 0 {
		return false
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
		jwt.WithSubject(expectedSubject),
	}
	if s.cfg.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.cfg.issuer))
	}
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.cfg.key, nil
	}, opts...)
	if err != nil {
		s.logger.Debug("token rejected", "reason", rejectReason(err))
		return false
	}
	return true
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "bad_signature"
	case errors.Is(err, jwt.ErrTokenInvalidSubject):
		return "subject_mismatch"
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return "issuer_mismatch"
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return "missing_claim"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed"
	default:
		return "invalid"
	}
}
