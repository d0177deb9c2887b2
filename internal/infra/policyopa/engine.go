package policyopa

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/open-policy-agent/opa/rego"

	"keystone/internal/domain"
)

const defaultQuery = "data.keystone.authz.result"

// defaultModule is the built-in role to capability mapping. A bundle path in
// the configuration replaces it wholesale, which keeps authorization rules in
// one reviewable place instead of scattered through handler code.
const defaultModule = `package keystone.authz

import rego.v1

role_capabilities := {
	"security_authority": {
		"issue_keys", "rotate_keys", "revoke_keys",
		"issue_certs", "sign_certs", "revoke_certs",
		"verify", "read_audit", "encrypt_data",
	},
	"system_client": {
		"issue_keys", "rotate_keys",
		"issue_certs", "verify", "encrypt_data",
	},
	"auditor": {"verify", "read_audit"},
}

default allow := false

allow if {
	some capability in role_capabilities[input.role]
	capability == input.capability
}

deny contains msg if {
	not allow
	msg := sprintf("role %q lacks capability %q", [input.role, input.capability])
}

result := {"allow": allow, "deny": deny}
`

type evalInput struct {
	ActorID    string `json:"actor_id"`
	Role       string `json:"role"`
	Capability string `json:"capability"`
}

type evalResult struct {
	Allow bool     `json:"allow"`
	Deny  []string `json:"deny"`
}

// Engine evaluates the role/capability policy with a prepared rego query.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine compiles the built-in policy module.
func NewEngine(ctx context.Context) (*Engine, error) {
	r := rego.New(
		rego.Query(defaultQuery),
		rego.Module("authz.rego", defaultModule),
		rego.StrictBuiltinErrors(true),
	)
	return prepare(ctx, r)
}

// NewEngineFromBundlePath loads the policy from an on-disk bundle directory
// instead of the built-in module.
func NewEngineFromBundlePath(ctx context.Context, bundlePath string) (*Engine, error) {
	if bundlePath == "" {
		return nil, errors.New("bundle path is required")
	}
	r := rego.New(
		rego.Query(defaultQuery),
		rego.StrictBuiltinErrors(true),
		rego.Load([]string{bundlePath}, nil),
	)
	return prepare(ctx, r)
}

func prepare(ctx context.Context, r *rego.Rego) (*Engine, error) {
	prepared, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, err
	}
	return &Engine{query: prepared}, nil
}

func (e *Engine) Allowed(ctx context.Context, actor domain.Actor, capability domain.Capability) (domain.PolicyDecision, error) {
	if e == nil {
		return domain.PolicyDecision{}, errors.New("policy engine is nil")
	}
	input := evalInput{
		ActorID:    actor.ID,
		Role:       string(actor.Role),
		Capability: string(capability),
	}
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return domain.PolicyDecision{}, err
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return domain.PolicyDecision{}, errors.New("empty policy result")
	}
	result, err := decodeResult(results[0].Expressions[0].Value)
	if err != nil {
		return domain.PolicyDecision{}, err
	}
	return domain.PolicyDecision{Allowed: result.Allow, Reasons: result.Deny}, nil
}

func decodeResult(value any) (evalResult, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return evalResult{}, err
	}
	var result evalResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return evalResult{}, err
	}
	return result, nil
}
