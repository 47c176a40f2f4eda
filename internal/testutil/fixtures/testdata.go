// Package fixtures provides shared test data for the identity service
// test suite.
package fixtures

// Local account values.
const (
	Username = "alice"
	Email    = "alice@example.com"
	Password = "correct horse battery staple"

	AltUsername = "bob"
	AltEmail    = "bob@example.com"
)

// Session token settings. SigningKey is 32 bytes, the minimum accepted
// for HS256.
const (
	Issuer     = "https://identity.stricklysoft.test"
	Audience   = "game-clients"
	SigningKey = "0123456789abcdef0123456789abcdef"
)

// External provider values.
const (
	UPAIssuer  = "https://player.login.unity.test"
	UPASubject = "player-1"
)

// EnvPrefix is the environment variable prefix used by config tests.
const EnvPrefix = "IDENTITY"
