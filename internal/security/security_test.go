package security

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !CheckPassword(hash, "s3cret") {
		t.Fatalf("expected password to match")
	}
	if CheckPassword(hash, "wrong") {
		t.Fatalf("expected wrong password to fail")
	}
	if CheckPassword("", "s3cret") {
		t.Fatalf("expected empty hash to fail")
	}
	if _, errEmpty := HashPassword(""); errEmpty == nil {
		t.Fatalf("expected error for empty password")
	}
}

func TestParseRole(t *testing.T) {
	cases := map[string]Role{
		"ADMIN":      RoleAdmin,
		"developer":  RoleDeveloper,
		" Viewer ":   RoleViewer,
		"superadmin": RoleUnknown,
	}
	for raw, want := range cases {
		got, ok := ParseRole(raw)
		if got != want || ok != (want != RoleUnknown) {
			t.Fatalf("ParseRole(%q) = %v,%v", raw, got, ok)
		}
	}
	if RoleUnknown.Valid() {
		t.Fatalf("RoleUnknown must not be valid")
	}
}

func TestRoleJSON(t *testing.T) {
	data, err := json.Marshal(Identity{UserID: 1, Username: "a", Role: RoleAdmin})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"role":"ADMIN"`) {
		t.Fatalf("expected role by name, got %s", data)
	}
	var decoded Identity
	if errUnmarshal := json.Unmarshal(data, &decoded); errUnmarshal != nil {
		t.Fatalf("unmarshal: %v", errUnmarshal)
	}
	if decoded.Role != RoleAdmin {
		t.Fatalf("expected RoleAdmin, got %v", decoded.Role)
	}
	if errBad := json.Unmarshal([]byte(`{"role":"ROOT"}`), &decoded); errBad == nil {
		t.Fatalf("expected unknown role to fail")
	}
}

func TestGenerateAPIKey(t *testing.T) {
	key, hash, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey: %v", err)
	}
	if !strings.HasPrefix(key, apiKeyPrefix) {
		t.Fatalf("expected prefix %q, got %q", apiKeyPrefix, key)
	}
	if HashAPIKey(key) != hash {
		t.Fatalf("expected hash to match key")
	}
	if prefix := APIKeyDisplayPrefix(key); len(prefix) != len(apiKeyPrefix)+6 {
		t.Fatalf("unexpected display prefix %q", prefix)
	}
}
