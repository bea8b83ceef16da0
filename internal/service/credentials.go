package service

import (
	"sync"

	"github.com/jmylchreest/xtarr/internal/config"
)

// ResolvedTarget is the result of a credential lookup. It is a snapshot:
// a later Reload does not change it.
type ResolvedTarget struct {
	User   config.UserConfig
	Target config.TargetConfig
}

// HasXtreamOutput reports whether the target publishes the Player API.
func (r *ResolvedTarget) HasXtreamOutput() bool {
	return r.Target.HasOutput(config.OutputXtream)
}

// HasM3UOutput reports whether the target publishes an M3U playlist.
func (r *ResolvedTarget) HasM3UOutput() bool {
	return r.Target.HasOutput(config.OutputM3U)
}

type credentialKey struct {
	username string
	password string
}

// CredentialResolver maps downstream credentials to their target and the
// target to its upstream xtream input. It is safe for concurrent use;
// Reload replaces every mapping at once.
type CredentialResolver struct {
	mu            sync.RWMutex
	byCredentials map[credentialKey]*ResolvedTarget
	byToken       map[string]*ResolvedTarget
	xtreamInputs  map[string]*config.InputConfig
	server        config.XtreamServerConfig
}

// NewCredentialResolver creates a resolver for cfg.
func NewCredentialResolver(cfg *config.Config) *CredentialResolver {
	r := &CredentialResolver{}
	r.Reload(cfg)
	return r
}

// Reload rebuilds all mappings from cfg.
func (r *CredentialResolver) Reload(cfg *config.Config) {
	byCredentials := make(map[credentialKey]*ResolvedTarget, len(cfg.Users))
	byToken := make(map[string]*ResolvedTarget)
	xtreamInputs := make(map[string]*config.InputConfig, len(cfg.Targets))

	for _, user := range cfg.Users {
		target := cfg.FindTarget(user.Target)
		if target == nil {
			continue
		}
		resolved := &ResolvedTarget{User: user, Target: *target}
		byCredentials[credentialKey{user.Username, user.Password}] = resolved
		if user.Token != "" {
			byToken[user.Token] = resolved
		}
	}

	for _, target := range cfg.Targets {
		for _, name := range target.Inputs {
			input := cfg.FindInput(name)
			if input == nil || !input.IsEnabled() || !input.IsXtream() || !input.HasCredentials() {
				continue
			}
			in := *input
			xtreamInputs[target.Name] = &in
			break
		}
	}

	r.mu.Lock()
	r.byCredentials = byCredentials
	r.byToken = byToken
	r.xtreamInputs = xtreamInputs
	r.server = cfg.Xtream
	r.mu.Unlock()
}

// Resolve looks up the target for a username and password.
func (r *CredentialResolver) Resolve(username, password string) (*ResolvedTarget, bool) {
	if username == "" || password == "" {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	resolved, ok := r.byCredentials[credentialKey{username, password}]
	return resolved, ok
}

// ResolveToken looks up the target for an access token.
func (r *CredentialResolver) ResolveToken(token string) (*ResolvedTarget, bool) {
	if token == "" {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	resolved, ok := r.byToken[token]
	return resolved, ok
}

// InputForTarget returns the first enabled xtream input with credentials
// listed by the target.
func (r *CredentialResolver) InputForTarget(targetName string) (*config.InputConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	input, ok := r.xtreamInputs[targetName]
	if !ok {
		return nil, false
	}
	in := *input
	return &in, true
}

// ServerInfo returns the server block reported to players.
func (r *CredentialResolver) ServerInfo() config.XtreamServerConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.server
}
