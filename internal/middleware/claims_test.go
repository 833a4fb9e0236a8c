package middleware

import (
	"context"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"dataplane-backend/internal/pipeline"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestClaimsExtractsJWTPayload(t *testing.T) {
	c := &Claims{}
	rc := pipeline.NewRequestContext("orders", pipeline.OpFindMany)
	rc.Headers["Authorization"] = "Bearer " + signedToken(t, jwt.MapClaims{
		"sub":  "user-1",
		"role": "editor",
	})

	if _, err := c.Before(context.Background(), rc); err != nil {
		t.Fatalf("Before: %v", err)
	}
	if rc.Exec["sub"] != "user-1" || rc.Exec["role"] != "editor" {
		t.Fatalf("Exec = %v", rc.Exec)
	}
}

func TestClaimsNeverOverwritesExistingKeys(t *testing.T) {
	c := &Claims{}
	rc := pipeline.NewRequestContext("orders", pipeline.OpFindMany)
	rc.Exec["role"] = "admin"
	rc.Headers["Authorization"] = "Bearer " + signedToken(t, jwt.MapClaims{"role": "viewer"})
	rc.Headers["X-Ctx-Role"] = "intruder"

	if _, err := c.Before(context.Background(), rc); err != nil {
		t.Fatalf("Before: %v", err)
	}
	if rc.Exec["role"] != "admin" {
		t.Fatalf("role = %v, want the pre-existing value", rc.Exec["role"])
	}
}

func TestClaimsMapsPrefixedHeadersToCamelCase(t *testing.T) {
	c := &Claims{}
	rc := pipeline.NewRequestContext("orders", pipeline.OpFindMany)
	rc.Headers["X-Ctx-User-Id"] = "u-9"
	rc.Headers["X-Ctx-Tenant-Id"] = "t-3"
	rc.Headers["X-Other-Header"] = "ignored"

	if _, err := c.Before(context.Background(), rc); err != nil {
		t.Fatalf("Before: %v", err)
	}
	if rc.Exec["userId"] != "u-9" {
		t.Fatalf("userId = %v", rc.Exec["userId"])
	}
	if rc.Exec["tenantId"] != "t-3" {
		t.Fatalf("tenantId = %v", rc.Exec["tenantId"])
	}
	if _, ok := rc.Exec["ignored"]; ok {
		t.Fatal("unprefixed header leaked into exec context")
	}
}

func TestClaimsToleratesGarbageToken(t *testing.T) {
	c := &Claims{}
	rc := pipeline.NewRequestContext("orders", pipeline.OpFindMany)
	rc.Headers["Authorization"] = "Bearer not.a.jwt"

	resp, err := c.Before(context.Background(), rc)
	if resp != nil || err != nil {
		t.Fatalf("Before = %v, %v; a bad token must not fail the request", resp, err)
	}
	if len(rc.Exec) != 0 {
		t.Fatalf("Exec = %v, want empty", rc.Exec)
	}
}

func TestCamelKey(t *testing.T) {
	cases := map[string]string{
		"User-Id":     "userId",
		"Tenant":      "tenant",
		"ORG-UNIT-ID": "orgUnitId",
	}
	for in, want := range cases {
		if got := camelKey(in); got != want {
			t.Fatalf("camelKey(%q) = %q, want %q", in, got, want)
		}
	}
}
