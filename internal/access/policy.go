package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/SooryaCodes/medchainx-sub000/pkg/logger"
	"github.com/SooryaCodes/medchainx-sub000/pkg/types"
)

// PolicyConfig holds the signing parameters of issued access tokens
type PolicyConfig struct {
	SigningKey    string
	Issuer        string
	Audience      string
	DefaultWindow time.Duration
}

// Claims are the JWT claims carried by an access token
type Claims struct {
	Window int64 `json:"window"`
	jwt.RegisteredClaims
}

// Policy issues, validates and revokes time-limited access tokens.
// Tokens are stateless signed JWTs; only revocations are held server-side.
type Policy struct {
	key      []byte
	issuer   string
	audience string
	window   time.Duration
	registry RevocationRegistry
	clock    func() time.Time
	logger   *logger.Logger
}

// PolicyOption configures a Policy
type PolicyOption func(*Policy)

// WithClock overrides the time source for issuance and expiry checks
func WithClock(clock func() time.Time) PolicyOption {
	return func(p *Policy) {
		p.clock = clock
	}
}

// WithLogger sets the logger used for token events
func WithLogger(log *logger.Logger) PolicyOption {
	return func(p *Policy) {
		p.logger = log
	}
}

// NewPolicy creates a token policy backed by registry
func NewPolicy(cfg PolicyConfig, registry RevocationRegistry, opts ...PolicyOption) (*Policy, error) {
	if cfg.SigningKey == "" {
		return nil, fmt.Errorf("token signing key is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("revocation registry is required")
	}

	window := cfg.DefaultWindow
	if window == 0 {
		window = types.DefaultValidityWindow
	}
	if !types.IsAllowedValidityWindow(window) {
		return nil, fmt.Errorf("default validity window %s is not an allowed window", window)
	}

	p := &Policy{
		key:      []byte(cfg.SigningKey),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		window:   window,
		registry: registry,
		clock:    time.Now,
		logger:   logger.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Issue creates a token granting read access to subjectID's records for window.
// A zero window selects the policy default.
func (p *Policy) Issue(ctx context.Context, subjectID string, window time.Duration) (*types.AccessToken, error) {
	if subjectID == "" {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "subjectId is required", nil)
	}
	if window == 0 {
		window = p.window
	}
	if !types.IsAllowedValidityWindow(window) {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "validity window is not allowed", map[string]interface{}{
			"window":  window.String(),
			"allowed": types.AllowedValidityWindowNames(),
		})
	}

	// JWT NumericDate carries whole seconds
	now := p.clock().UTC().Truncate(time.Second)
	expiresAt := now.Add(window)

	claims := Claims{
		Window: int64(window / time.Second),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	if p.issuer != "" {
		claims.Issuer = p.issuer
	}
	if p.audience != "" {
		claims.Audience = jwt.ClaimStrings{p.audience}
	}

	value, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.key)
	if err != nil {
		return nil, types.NewInternalError(types.ErrCodeInternalError, "failed to sign access token", err)
	}

	p.logger.TokenEvent(ctx, "token_issued", claims.ID, subjectID, true, map[string]interface{}{
		"window_seconds": claims.Window,
	})

	return &types.AccessToken{
		ID:             claims.ID,
		Value:          value,
		SubjectID:      subjectID,
		CreatedAt:      now,
		ExpiresAt:      expiresAt,
		ValidityWindow: window,
	}, nil
}

// Validate checks signature, issuer, audience, expiry and revocation of value.
// Every failure matches types.ErrInvalidToken.
func (p *Policy) Validate(ctx context.Context, value string) (*types.TokenGrant, error) {
	claims, err := p.parse(value)
	if err != nil {
		p.logger.TokenEvent(ctx, "token_rejected", "", "", false, map[string]interface{}{"reason": err.Error()})
		return nil, types.NewInvalidTokenError("access token is invalid or expired", err)
	}

	revoked, err := p.registry.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, types.NewInternalError(types.ErrCodeInternalError, "failed to check token revocation", err)
	}
	if revoked {
		p.logger.TokenEvent(ctx, "token_rejected", claims.ID, claims.Subject, false, map[string]interface{}{"reason": "revoked"})
		return nil, types.NewInvalidTokenError("access token has been revoked", nil)
	}

	return grantFromClaims(claims), nil
}

// Revoke invalidates a live token before its natural expiry.
// Malformed, expired and already revoked tokens yield types.ErrTokenNotFound.
func (p *Policy) Revoke(ctx context.Context, value string) error {
	claims, err := p.parse(value)
	if err != nil {
		return fmt.Errorf("revoke: %w", types.ErrTokenNotFound)
	}

	created, err := p.registry.Revoke(ctx, claims.ID, claims.ExpiresAt.Time)
	if err != nil {
		return types.NewInternalError(types.ErrCodeInternalError, "failed to revoke access token", err)
	}
	if !created {
		return fmt.Errorf("revoke %s: %w", claims.ID, types.ErrTokenNotFound)
	}

	p.logger.TokenEvent(ctx, "token_revoked", claims.ID, claims.Subject, true, nil)
	return nil
}

// State reports the lifecycle state of a correctly signed token
func (p *Policy) State(ctx context.Context, value string) (types.TokenState, error) {
	claims, err := p.parse(value)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return types.TokenStateExpired, nil
		}
		return "", types.NewInvalidTokenError("access token is invalid", err)
	}

	revoked, err := p.registry.IsRevoked(ctx, claims.ID)
	if err != nil {
		return "", types.NewInternalError(types.ErrCodeInternalError, "failed to check token revocation", err)
	}
	if revoked {
		return types.TokenStateRevoked, nil
	}
	return types.TokenStateActive, nil
}

func (p *Policy) parse(value string) (*Claims, error) {
	if value == "" {
		return nil, fmt.Errorf("token is empty")
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(p.clock),
		jwt.WithExpirationRequired(),
	}
	if p.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(p.issuer))
	}
	if p.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(p.audience))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(value, claims, func(token *jwt.Token) (interface{}, error) {
		return p.key, nil
	}, parserOpts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("token is not valid")
	}
	if claims.ID == "" || claims.Subject == "" {
		return nil, fmt.Errorf("token is missing jti or sub")
	}
	return claims, nil
}

func grantFromClaims(claims *Claims) *types.TokenGrant {
	grant := &types.TokenGrant{
		TokenID:   claims.ID,
		SubjectID: claims.Subject,
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
	}
	if claims.IssuedAt != nil {
		grant.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	return grant
}
