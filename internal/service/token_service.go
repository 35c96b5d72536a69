package service

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-case-api/internal/models"
	appErrors "github.com/noah-isme/sma-case-api/pkg/errors"
)

// TokenConfig configures access token validation.
type TokenConfig struct {
	Secret   string
	Issuer   string
	Audience []string
}

// TokenService validates HS256 access tokens issued by the identity service.
type TokenService struct {
	config TokenConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewTokenService constructs a TokenService.
func NewTokenService(config TokenConfig, logger *zap.Logger) *TokenService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenService{config: config, logger: logger, now: time.Now}
}

// ValidateToken parses and verifies a bearer token.
func (s *TokenService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	}
	if s.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.config.Issuer))
	}
	if len(s.config.Audience) > 0 {
		opts = append(opts, jwt.WithAudience(s.config.Audience[0]))
	}

	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.config.Secret), nil
	}, opts...)
	if err != nil {
		s.logger.Debug("rejecting access token", zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid || !claims.AuthContext().Authenticated() {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	return claims, nil
}
