package analysis

import "sync"

// CredentialSource yields the current remote model credential.
// An empty string means the remote model is not configured.
type CredentialSource interface {
	Credential() string
}

// Settings holds operator-adjustable runtime configuration.
type Settings struct {
	mu         sync.RWMutex
	credential string
}

// NewSettings returns Settings seeded with an initial credential, which may be empty.
func NewSettings(credential string) *Settings {
	return &Settings{credential: credential}
}

// Credential implements CredentialSource.
func (s *Settings) Credential() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.credential
}

// SetCredential replaces the credential. An empty value disables the remote model.
func (s *Settings) SetCredential(credential string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credential = credential
}

// Configured reports whether a credential is present.
func (s *Settings) Configured() bool {
	return s.Credential() != ""
}
