package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/jmerrifield20/qpac/internal/auth"
	"go.uber.org/zap"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("qpac %s: %v", strings.Join(args, " "), err)
	}
	return out.String()
}

func TestHashCommand_producesVerifiableToken(t *testing.T) {
	phc := strings.TrimSpace(execute(t, "hash", "s3cret"))
	if !strings.HasPrefix(phc, "$argon2id$") {
		t.Fatalf("hash output = %q, want argon2id PHC string", phc)
	}

	v, err := auth.NewVerifier(phc, zap.NewNop())
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	if !v.Verify("s3cret") {
		t.Error("hashed token does not verify")
	}
	if v.Verify("wrong") {
		t.Error("wrong token verified")
	}
}

func TestVersionCommand(t *testing.T) {
	if got := execute(t, "version"); got != "qpac dev\n" {
		t.Errorf("version output = %q", got)
	}
}
