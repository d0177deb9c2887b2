package policyopa

import (
	"context"
	"testing"

	"keystone/internal/domain"
)

func TestBuiltInPolicyRoleCapabilities(t *testing.T) {
	ctx := context.Background()
	engine, err := NewEngine(ctx)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	cases := []struct {
		name       string
		role       domain.Role
		capability domain.Capability
		want       bool
	}{
		{"authority can revoke keys", domain.RoleSecurityAuthority, domain.CapabilityRevokeKeys, true},
		{"authority can read audit", domain.RoleSecurityAuthority, domain.CapabilityReadAudit, true},
		{"client can issue keys", domain.RoleSystemClient, domain.CapabilityIssueKeys, true},
		{"client cannot revoke keys", domain.RoleSystemClient, domain.CapabilityRevokeKeys, false},
		{"client cannot sign certs", domain.RoleSystemClient, domain.CapabilitySignCerts, false},
		{"auditor can read audit", domain.RoleAuditor, domain.CapabilityReadAudit, true},
		{"auditor cannot issue keys", domain.RoleAuditor, domain.CapabilityIssueKeys, false},
		{"unknown role denied", domain.Role("guest"), domain.CapabilityVerify, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			decision, err := engine.Allowed(ctx, domain.Actor{ID: "a1", Role: tc.role}, tc.capability)
			if err != nil {
				t.Fatalf("Allowed: %v", err)
			}
			if decision.Allowed != tc.want {
				t.Fatalf("allowed = %v, want %v (reasons %v)", decision.Allowed, tc.want, decision.Reasons)
			}
			if !decision.Allowed && len(decision.Reasons) == 0 {
				t.Fatal("denial must carry a reason")
			}
		})
	}
}
