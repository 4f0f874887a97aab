package auth

import (
	"net/http"
	"testing"

	"milestone-service/pkg/rbac"
)

func TestJWTRoundTrip(t *testing.T) {
	token, err := GenerateJWT(rbac.Actor{ID: 7, Role: rbac.RoleMaintainer}, "secret")
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}
	actor, err := ParseJWT(token, "secret")
	if err != nil {
		t.Fatalf("ParseJWT: %v", err)
	}
	if actor.ID != 7 || actor.Role != rbac.RoleMaintainer {
		t.Fatalf("actor = %+v", actor)
	}
}

func TestParseJWTRejects(t *testing.T) {
	good, _ := GenerateJWT(rbac.Actor{ID: 1, Role: rbac.RoleAdmin}, "secret")
	noID, _ := GenerateJWT(rbac.Actor{ID: 0, Role: rbac.RoleAdmin}, "secret")

	tests := []struct {
		name   string
		token  string
		secret string
	}{
		{"wrong secret", good, "other"},
		{"garbage", "not.a.token", "secret"},
		{"missing actor", noID, "secret"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseJWT(tt.token, tt.secret); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestExtractToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc", "abc"},
		{"bearer abc", "abc"},
		{"Basic abc", ""},
		{"Bearer", ""},
		{"", ""},
	}
	for _, tt := range tests {
		r, _ := http.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		if got := ExtractToken(r); got != tt.want {
			t.Errorf("ExtractToken(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}
