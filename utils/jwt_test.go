package utils

import (
	"net/http"
	"testing"
	"time"

	"github.com/mohamedamine596/brebis-server/models"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("JWT_AUD", "")
	t.Setenv("JWT_ISS", "")

	tokenStr, err := GenerateAccessToken(42, models.RoleUser)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	_, claims, err := ValidateAccessToken(tokenStr)
	if err != nil {
		t.Fatalf("ValidateAccessToken: %v", err)
	}
	if id, ok := claims["id"].(float64); !ok || uint(id) != 42 {
		t.Fatalf("id claim = %v", claims["id"])
	}
	if role, _ := claims["role"].(string); role != models.RoleUser {
		t.Fatalf("role claim = %v", claims["role"])
	}
	if jti, _ := claims["jti"].(string); len(jti) != 32 {
		t.Fatalf("jti = %q", claims["jti"])
	}
}

func TestValidateAccessTokenRejects(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("JWT_AUD", "")
	t.Setenv("JWT_ISS", "")

	t.Run("expired", func(t *testing.T) {
		tokenStr, err := GenerateAccessTokenWithExpiry(1, models.RoleUser, -time.Minute)
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if _, _, err := ValidateAccessToken(tokenStr); err == nil {
			t.Fatal("expired token accepted")
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		tokenStr, err := GenerateAccessToken(1, models.RoleUser)
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		t.Setenv("JWT_SECRET", "other-secret")
		if _, _, err := ValidateAccessToken(tokenStr); err == nil {
			t.Fatal("token with wrong signature accepted")
		}
	})

	t.Run("wrong audience", func(t *testing.T) {
		tokenStr, err := GenerateAccessToken(1, models.RoleUser)
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		t.Setenv("JWT_AUD", "autre-service")
		if _, _, err := ValidateAccessToken(tokenStr); err == nil {
			t.Fatal("token with wrong audience accepted")
		}
	})

	t.Run("garbage", func(t *testing.T) {
		if _, _, err := ValidateAccessToken("not.a.token"); err == nil {
			t.Fatal("garbage accepted")
		}
	})
}

func TestExtractBearerToken(t *testing.T) {
	r, _ := http.NewRequest(http.MethodGet, "/", nil)

	if _, err := ExtractBearerToken(r); err == nil {
		t.Fatal("missing header accepted")
	}

	r.Header.Set("Authorization", "Basic abc123")
	if _, err := ExtractBearerToken(r); err == nil {
		t.Fatal("non-bearer scheme accepted")
	}

	r.Header.Set("Authorization", "Bearer  mytoken ")
	token, err := ExtractBearerToken(r)
	if err != nil {
		t.Fatalf("ExtractBearerToken: %v", err)
	}
	if token != "mytoken" {
		t.Fatalf("token = %q", token)
	}
}
