package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/nexus/core"
	"github.com/trezcool/nexus/core/user"
)

const (
	contextTokenKey = "userToken"
	contextUserKey  = "user"
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt int64  `json:"oriat,omitempty"`
	Username     string `json:"username,omitempty"`
	Name         string `json:"name,omitempty"`
	Role         string `json:"role"`
}

type jwtAuth struct {
	config         middleware.JWTConfig
	issuer         string
	expiration     time.Duration
	refreshTimeout time.Duration
}

func newJWTAuth(conf *core.Config) *jwtAuth {
	return &jwtAuth{
		config: middleware.JWTConfig{
			SigningKey:    []byte(conf.SecretKey),
			SigningMethod: middleware.AlgorithmHS256,
			ContextKey:    contextTokenKey,
			Claims:        new(Claims),
		},
		issuer:         conf.AppName,
		expiration:     conf.Server.JWTExpirationDelta,
		refreshTimeout: conf.Server.JWTRefreshExpirationDelta,
	}
}

func (a *jwtAuth) claims(usr user.User, origIat ...int64) *Claims {
	now := time.Now()
	nownix := now.Unix()

	oriat := nownix
	if len(origIat) > 0 {
		oriat = origIat[0]
	}

	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    a.issuer,
			Subject:   usr.ID,
			Audience:  "Portal",
			ExpiresAt: now.Add(a.expiration).Unix(),
			IssuedAt:  nownix,
		},
		OrigIssuedAt: oriat,
		Username:     usr.Username,
		Name:         usr.Name,
		Role:         usr.Role,
	}
}

// token generates a signed JWT token string representing the user Claims.
func (a *jwtAuth) token(claims *Claims) (string, error) {
	method := jwt.GetSigningMethod(a.config.SigningMethod)
	token := jwt.NewWithClaims(method, claims)

	ss, err := token.SignedString(a.config.SigningKey)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

// GenerateToken returns a token of usr signed with the configured secret.
// origIat is the time of the first login of the session, now when omitted.
func GenerateToken(conf *core.Config, usr user.User, origIat ...int64) (string, error) {
	a := newJWTAuth(conf)
	return a.token(a.claims(usr, origIat...))
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

// getContextUser returns the authenticated user, loading it on first use.
func getContextUser(ctx echo.Context, svc user.Service) (user.User, error) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, nil
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return user.User{}, err
	}
	usr, err := svc.GetByID(ctx.Request().Context(), claims.Subject)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return user.User{}, errUnauthorized
		}
		return user.User{}, errors.Wrap(err, "finding user by ID")
	}
	ctx.Set(contextUserKey, usr)
	return usr, nil
}

func (a *jwtAuth) login(ctx echo.Context, svc user.Service, uname, pwd string) (string, user.User, error) {
	usr, err := svc.Authenticate(ctx.Request().Context(), uname, pwd)
	if err != nil {
		if errors.Cause(err) == user.ErrInvalidCredentials {
			return "", user.User{}, errAuthenticationFailed
		}
		return "", user.User{}, errors.Wrap(err, "authenticating")
	}
	token, err := a.token(a.claims(usr))
	if err != nil {
		return "", user.User{}, err
	}
	return token, usr, nil
}

func (a *jwtAuth) refresh(ctx echo.Context, svc user.Service) (string, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return "", err
	}
	usr, err := getContextUser(ctx, svc)
	if err != nil {
		return "", err
	}

	// check if refresh has not expired
	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(a.refreshTimeout)
	if time.Now().After(expTime) {
		return "", errRefreshExpired
	}
	return a.token(a.claims(usr, claims.OrigIssuedAt))
}
