package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/ellahos/ellahos/core"
	"github.com/ellahos/ellahos/core/user"
)

const (
	tokenContextKey = "userToken"
	actorContextKey = "actor"
	userContextKey  = "user"
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt int64  `json:"oriat,omitempty"`
	TenantID     string `json:"tenant_id,omitempty"`
	Email        string `json:"email,omitempty"`
	Role         string `json:"role,omitempty"`
}

// Actor returns the request actor encoded in the claims.
func (c Claims) Actor() core.Actor {
	return core.Actor{UserID: c.Subject, TenantID: c.TenantID, Email: c.Email, Role: c.Role}
}

type authenticator struct {
	conf      *core.Config
	jwtConfig middleware.JWTConfig
}

func newAuthenticator(conf *core.Config) *authenticator {
	return &authenticator{
		conf: conf,
		jwtConfig: middleware.JWTConfig{
			SigningKey:    []byte(conf.SecretKey),
			SigningMethod: middleware.AlgorithmHS256,
			ContextKey:    tokenContextKey,
			Claims:        new(Claims),
		},
	}
}

// wsConfig reads the token from the query string; browsers cannot set headers on websocket upgrades.
func (a *authenticator) wsConfig() middleware.JWTConfig {
	cfg := a.jwtConfig
	cfg.TokenLookup = "query:token"
	return cfg
}

// NewClaims returns the claims of `usr`. origIat is kept across refreshes.
func NewClaims(conf *core.Config, usr user.User, origIat ...int64) *Claims {
	now := time.Now()
	nownix := now.Unix()

	oriat := nownix
	if len(origIat) > 0 {
		oriat = origIat[0]
	}

	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   usr.ID,
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  nownix,
		},
		OrigIssuedAt: oriat,
		TenantID:     usr.TenantID,
		Email:        usr.Email,
		Role:         usr.Role,
	}
}

// GenerateToken generates a signed JWT token string representing the user Claims.
func GenerateToken(conf *core.Config, claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.GetSigningMethod(middleware.AlgorithmHS256), claims)
	ss, err := token.SignedString([]byte(conf.SecretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(tokenContextKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

func contextActor(ctx echo.Context) (core.Actor, bool) {
	actor, ok := ctx.Get(actorContextKey).(core.Actor)
	return actor, ok
}

// mustActor is only called behind actorMiddleware.
func mustActor(ctx echo.Context) core.Actor {
	actor, _ := contextActor(ctx)
	return actor
}

func contextUser(ctx echo.Context) user.User {
	usr, _ := ctx.Get(userContextKey).(user.User)
	return usr
}

func (a *authenticator) login(ctx echo.Context, svc *user.Service, email, pwd string) (string, user.User, error) {
	usr, err := svc.Authenticate(ctx.Request().Context(), email, pwd)
	if err != nil {
		return "", user.User{}, err
	}
	token, err := GenerateToken(a.conf, NewClaims(a.conf, usr))
	return token, usr, errors.Wrap(err, "generating token")
}

func (a *authenticator) refresh(ctx echo.Context) (string, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return "", errors.Wrap(err, "getting context claims")
	}

	// check if refresh has not expired
	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(a.conf.Server.JWTRefreshExpirationDelta)
	if time.Now().After(expTime) {
		return "", errRefreshExpired
	}

	newClaims := NewClaims(a.conf, contextUser(ctx), claims.OrigIssuedAt)
	token, err := GenerateToken(a.conf, newClaims)
	return token, errors.Wrap(err, "generating token")
}
