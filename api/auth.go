package api

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"

	"github.com/dogukan1212/moiport-sub000/domain"
)

// Auth validates incoming bearer tokens and resolves them to a tenant
// scoped principal.
type Auth struct {
	JWKS       *keyfunc.JWKS
	Audience   string
	Issuer     string
	TestMode   bool
	TestSecret []byte
}

// NewAuth creates a new Auth instance.
func NewAuth(jwks *keyfunc.JWKS, audience, issuer string) *Auth {
	a := &Auth{JWKS: jwks, Audience: audience, Issuer: issuer}
	if os.Getenv("AUTH0_TEST_MODE") == "1" {
		secret := os.Getenv("TEST_JWT_SECRET")
		if secret == "" {
			panic("TEST_JWT_SECRET must be set when AUTH0_TEST_MODE=1")
		}
		a.TestMode = true
		a.TestSecret = []byte(secret)
	}
	return a
}

// PrincipalFromAuthHeader verifies the Authorization header and extracts
// the caller's identity, tenant, role and customer association.
func (a *Auth) PrincipalFromAuthHeader(h string) (domain.Principal, error) {
	var none domain.Principal
	if h == "" {
		return none, errors.New("missing authorization header")
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return none, errors.New("bad auth header")
	}
	tokenStr := parts[1]
	if strings.Count(tokenStr, ".") != 2 {
		return none, errors.New("bad auth header")
	}

	var claims jwt.MapClaims
	if a.TestMode {
		token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("invalid signing method")
			}
			return a.TestSecret, nil
		})
		if err != nil {
			return none, err
		}
		var ok bool
		claims, ok = token.Claims.(jwt.MapClaims)
		if !ok {
			return none, errors.New("invalid claims")
		}
	} else {
		parser := jwt.NewParser(jwt.WithValidMethods([]string{"RS256"}))
		token, err := parser.Parse(tokenStr, a.JWKS.Keyfunc)
		if err != nil {
			return none, err
		}
		var ok bool
		claims, ok = token.Claims.(jwt.MapClaims)
		if !ok {
			return none, errors.New("invalid claims")
		}
		now := time.Now().Add(time.Minute).Unix()
		if !claims.VerifyExpiresAt(now, true) {
			return none, errors.New("token expired")
		}
		if !claims.VerifyNotBefore(now, false) {
			return none, errors.New("token not valid yet")
		}
		if !claims.VerifyAudience(a.Audience, false) {
			return none, errors.New("invalid audience")
		}
		if !claims.VerifyIssuer(a.Issuer, false) {
			return none, errors.New("invalid issuer")
		}
	}

	return principalFromClaims(claims)
}

func principalFromClaims(claims jwt.MapClaims) (domain.Principal, error) {
	var none domain.Principal
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return none, errors.New("missing sub")
	}
	tenantID, ok := claims["tenantId"].(string)
	if !ok || tenantID == "" {
		return none, errors.New("missing tenant")
	}
	p := domain.Principal{UserID: sub, TenantID: tenantID, Role: domain.RoleStaff}
	if role, ok := claims["role"].(string); ok && role != "" {
		p.Role = domain.Role(role)
	}
	if customerID, ok := claims["customerId"].(string); ok {
		p.CustomerID = customerID
	}
	if p.Role == domain.RoleClient && p.CustomerID == "" {
		return none, errors.New("portal user without customer")
	}
	return p, nil
}
