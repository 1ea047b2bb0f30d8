package api

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/dogukan1212/moiport-sub000/domain"
)

const testSecret = "test-secret"

func testAuth(t *testing.T) *Auth {
	t.Helper()
	t.Setenv("AUTH0_TEST_MODE", "1")
	t.Setenv("TEST_JWT_SECRET", testSecret)
	return NewAuth(nil, "", "")
}

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestPrincipalFromValidStaffToken(t *testing.T) {
	auth := testAuth(t)
	token := signToken(t, jwt.MapClaims{
		"sub":      "u1",
		"tenantId": "tn1",
		"exp":      time.Now().Add(time.Hour).Unix(),
	})

	p, err := auth.PrincipalFromAuthHeader("Bearer " + token)
	if err != nil {
		t.Fatalf("expected valid token, got %v", err)
	}
	if p.UserID != "u1" || p.TenantID != "tn1" {
		t.Fatalf("unexpected principal: %+v", p)
	}
	if p.Role != domain.RoleStaff {
		t.Fatalf("role must default to staff, got %s", p.Role)
	}
}

func TestPrincipalFromClientToken(t *testing.T) {
	auth := testAuth(t)
	token := signToken(t, jwt.MapClaims{
		"sub":        "u2",
		"tenantId":   "tn1",
		"role":       "client",
		"customerId": "c1",
		"exp":        time.Now().Add(time.Hour).Unix(),
	})

	p, err := auth.PrincipalFromAuthHeader("Bearer " + token)
	if err != nil {
		t.Fatalf("expected valid token, got %v", err)
	}
	if p.Role != domain.RoleClient || p.CustomerID != "c1" {
		t.Fatalf("unexpected principal: %+v", p)
	}
}

func TestClientTokenWithoutCustomerRejected(t *testing.T) {
	auth := testAuth(t)
	token := signToken(t, jwt.MapClaims{
		"sub":      "u2",
		"tenantId": "tn1",
		"role":     "client",
		"exp":      time.Now().Add(time.Hour).Unix(),
	})

	if _, err := auth.PrincipalFromAuthHeader("Bearer " + token); err == nil {
		t.Fatalf("portal user without customer must be rejected")
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	auth := testAuth(t)
	token := signToken(t, jwt.MapClaims{
		"sub":      "u1",
		"tenantId": "tn1",
		"exp":      time.Now().Add(-time.Hour).Unix(),
	})

	if _, err := auth.PrincipalFromAuthHeader("Bearer " + token); err == nil {
		t.Fatalf("expired token must be rejected")
	}
}

func TestMissingTenantRejected(t *testing.T) {
	auth := testAuth(t)
	token := signToken(t, jwt.MapClaims{
		"sub": "u1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	if _, err := auth.PrincipalFromAuthHeader("Bearer " + token); err == nil {
		t.Fatalf("token without tenant must be rejected")
	}
}

func TestMalformedHeadersRejected(t *testing.T) {
	auth := testAuth(t)
	for _, h := range []string{
		"",
		"Bearer",
		"Basic abc",
		"Bearer not-a-jwt",
		"Bearer a.b",
	} {
		if _, err := auth.PrincipalFromAuthHeader(h); err == nil {
			t.Fatalf("header %q must be rejected", h)
		}
	}
}

func TestTamperedSignatureRejected(t *testing.T) {
	auth := testAuth(t)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":      "u1",
		"tenantId": "tn1",
		"exp":      time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("wrong-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := auth.PrincipalFromAuthHeader("Bearer " + signed); err == nil {
		t.Fatalf("token signed with a different secret must be rejected")
	}
}
