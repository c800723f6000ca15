package ailink

import (
	"errors"
	"strconv"
	"strings"
)

const policyRoundRobin = "round_robin"

// selectCredential picks the credential for one call: the named default
// credential if usable, otherwise the highest priority group, rotated when
// the provider's selection policy is round_robin. It also returns a stable
// key for driver caching.
func selectCredential(cfg ProviderInstanceConfig, rrNext func(group string, n int) int) (CredentialConfig, string, error) {
	if len(cfg.Credentials) == 0 {
		if _, kind, ok := kindOf(cfg.AIProvider); ok && kind.keyless {
			return CredentialConfig{}, "", nil
		}
		return CredentialConfig{}, "", errors.New("no credentials configured")
	}

	usable := make([]CredentialConfig, 0, len(cfg.Credentials))
	for _, cred := range cfg.Credentials {
		label := strings.TrimSpace(cred.Label)
		// Unlabeled credentials count as enabled.
		if (cred.Enabled || label == "") && strings.TrimSpace(cred.APIKey) != "" {
			usable = append(usable, cred)
		}
	}
	if len(usable) == 0 {
		// Hand back the first entry so the driver reports the missing key.
		return cfg.Credentials[0], credentialKey(cfg.Credentials[0], "0"), nil
	}

	if want := strings.TrimSpace(cfg.DefaultCredential); want != "" {
		for _, cred := range usable {
			if strings.EqualFold(strings.TrimSpace(cred.Label), want) {
				return cred, strings.TrimSpace(cred.Label), nil
			}
		}
	}

	top := usable[0].Priority
	for _, cred := range usable {
		top = max(top, cred.Priority)
	}
	var group []CredentialConfig
	for _, cred := range usable {
		if cred.Priority == top {
			group = append(group, cred)
		}
	}

	idx := 0
	if rrNext != nil && strings.EqualFold(strings.TrimSpace(cfg.SelectionPolicy), policyRoundRobin) {
		idx = rrNext(strconv.Itoa(top), len(group))
	}
	return group[idx], credentialKey(group[idx], "p"+strconv.Itoa(top)+"-"+strconv.Itoa(idx)), nil
}

func credentialKey(cred CredentialConfig, fallback string) string {
	if label := strings.TrimSpace(cred.Label); label != "" {
		return label
	}
	return fallback
}

// rrIndex returns the next rotation index for key in [0, n).
func (r *Registry) rrIndex(key string, n int) int {
	if n <= 1 || r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rr == nil {
		r.rr = make(map[string]int)
	}
	idx := r.rr[key] % n
	r.rr[key]++
	return idx
}
