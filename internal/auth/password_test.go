package auth

import "testing"

func TestHashCheckPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "correct horse battery" {
		t.Fatalf("hash equals plaintext")
	}
	if !CheckPassword(hash, "correct horse battery") {
		t.Fatalf("correct password rejected")
	}
	if CheckPassword(hash, "wrong password") {
		t.Fatalf("wrong password accepted")
	}
	if CheckPassword("not-a-bcrypt-hash", "anything") {
		t.Fatalf("malformed hash accepted")
	}
}

func TestHashPassword_SaltsEachCall(t *testing.T) {
	a, err := HashPassword("same input")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	b, err := HashPassword("same input")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if a == b {
		t.Fatalf("two hashes of the same password are identical")
	}
}

func TestNewVerifyToken(t *testing.T) {
	a, err := NewVerifyToken()
	if err != nil {
		t.Fatalf("NewVerifyToken: %v", err)
	}
	b, err := NewVerifyToken()
	if err != nil {
		t.Fatalf("NewVerifyToken: %v", err)
	}
	if a == "" || a == b {
		t.Fatalf("tokens not unique: %q %q", a, b)
	}
}
