package config

import (
	"fmt"
	"strings"
)

// Credential is a long-term TURN credential.
type Credential struct {
	// Username identifies the user in the realm
	Username string `yaml:"username"`

	// Password is the shared secret
	Password string `yaml:"password"`

	// Quota limits the number of live allocations for this user; zero is unlimited
	Quota int `yaml:"quota,omitempty"`
}

// ParseCredential parses a USER:PASSWORD pair. The password may itself
// contain colons.
func ParseCredential(s string) (Credential, error) {
	user, password, ok := strings.Cut(s, ":")
	if !ok {
		return Credential{}, fmt.Errorf("invalid credentials %q, expected USER:PASSWORD", s)
	}

	cred := Credential{Username: user, Password: password}
	if err := cred.Validate(); err != nil {
		return Credential{}, err
	}
	return cred, nil
}

// Validate checks that the credential can be used
func (c Credential) Validate() error {
	if c.Username == "" {
		return fmt.Errorf("username must not be empty")
	}
	if strings.Contains(c.Username, ":") {
		return fmt.Errorf("username %q must not contain ':'", c.Username)
	}
	if c.Password == "" {
		return fmt.Errorf("password for %q must not be empty", c.Username)
	}
	if c.Quota < 0 {
		return fmt.Errorf("invalid quota %d for %q", c.Quota, c.Username)
	}
	return nil
}

// CredentialList collects USER:PASSWORD pairs and per-user quotas from
// repeated command line options, in order. A quota applies to the most
// recently added credentials.
type CredentialList struct {
	items []Credential
}

// Add parses and appends a USER:PASSWORD pair
func (l *CredentialList) Add(s string) error {
	cred, err := ParseCredential(s)
	if err != nil {
		return err
	}
	l.items = append(l.items, cred)
	return nil
}

// SetQuota sets the quota of the most recently added credentials
func (l *CredentialList) SetQuota(quota int) error {
	if quota <= 0 {
		return fmt.Errorf("invalid quota %d", quota)
	}
	if len(l.items) == 0 {
		return fmt.Errorf("a quota must follow credentials")
	}
	l.items[len(l.items)-1].Quota = quota
	return nil
}

// Items returns the collected credentials
func (l *CredentialList) Items() []Credential {
	return append([]Credential(nil), l.items...)
}
