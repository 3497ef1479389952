package ngrok

import (
	"context"
	"errors"
	"strings"
	"testing"

	"trackdrop/internal/config"

	"github.com/sirupsen/logrus"
)

func TestNewServiceDisabled(t *testing.T) {
	svc, err := NewService(&config.NgrokConfig{Enabled: false}, logrus.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if svc != nil {
		t.Fatal("expected nil service when disabled")
	}

	if err := svc.StartTunnel(context.Background(), "http://localhost:8080"); err != nil {
		t.Errorf("StartTunnel on disabled service: %v", err)
	}
	if url := svc.GetPublicURL(); url != "" {
		t.Errorf("GetPublicURL = %q", url)
	}
	if err := svc.Stop(); err != nil {
		t.Errorf("Stop on disabled service: %v", err)
	}
}

func TestNewServiceRequiresToken(t *testing.T) {
	_, err := NewService(&config.NgrokConfig{Enabled: true}, logrus.New())
	if !errors.Is(err, ErrMissingAuthToken) {
		t.Errorf("err = %v, want ErrMissingAuthToken", err)
	}
}

func TestOAuthPolicy(t *testing.T) {
	policy := oauthPolicy("github")
	for _, want := range []string{"on_http_request:", "type: oauth", "provider: github"} {
		if !strings.Contains(policy, want) {
			t.Errorf("policy missing %q:\n%s", want, policy)
		}
	}
}
