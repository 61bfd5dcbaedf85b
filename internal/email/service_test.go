package email

import (
	"strings"
	"testing"
)

func TestServiceIsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected bool
	}{
		{
			name:     "empty config",
			config:   Config{},
			expected: false,
		},
		{
			name: "missing host",
			config: Config{
				Port: "587",
				From: "test@example.com",
			},
			expected: false,
		},
		{
			name: "missing port",
			config: Config{
				Host: "smtp.example.com",
				From: "test@example.com",
			},
			expected: false,
		},
		{
			name: "missing from",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
			},
			expected: false,
		},
		{
			name: "fully configured",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
				From: "test@example.com",
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.config)
			if svc.IsConfigured() != tt.expected {
				t.Errorf("IsConfigured() = %v, want %v", svc.IsConfigured(), tt.expected)
			}
		})
	}
}

func TestRenderPartnerInviteTemplate(t *testing.T) {
	data := InviteData{
		AppName:     "PairMood",
		InviterName: "Alice",
		SignupURL:   "https://pairmood.example.com/signup?invite=abc123",
	}

	html, err := renderTemplate(partnerInviteTemplate, data)
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}

	if !strings.Contains(html, "PairMood") {
		t.Error("template should contain app name")
	}
	if !strings.Contains(html, "Alice") {
		t.Error("template should contain inviter name")
	}
	if !strings.Contains(html, "https://pairmood.example.com/signup?invite=abc123") {
		t.Error("template should contain signup URL")
	}
}

func TestRenderPartnerLinkedTemplate(t *testing.T) {
	data := LinkedData{
		AppName:     "PairMood",
		UserName:    "Bob",
		PartnerName: "Alice",
	}

	html, err := renderTemplate(partnerLinkedTemplate, data)
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}

	if !strings.Contains(html, "Hi Bob") {
		t.Error("template should address the recipient")
	}
	if !strings.Contains(html, "Alice") {
		t.Error("template should contain partner name")
	}
}

func TestSendEmailUnconfigured(t *testing.T) {
	svc := NewService(Config{})
	if err := svc.SendEmail([]string{"a@example.com"}, "hi", "body"); err == nil {
		t.Fatal("expected error when unconfigured")
	}
	if err := svc.SendHTMLEmail([]string{"a@example.com"}, "hi", "<p>body</p>"); err == nil {
		t.Fatal("expected error when unconfigured")
	}
}
