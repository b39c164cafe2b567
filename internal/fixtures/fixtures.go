// Package fixtures generates throwaway identifiers, names and message text.
// Nothing here is seeded or deduplicated; scenarios tolerate collisions.
package fixtures

import (
	"encoding/json"
	"strings"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/Checker-Finance/apitests/internal/smarti"
)

const (
	// IDPattern matches a Mongo-style object id as used for Smarti entities.
	IDPattern = `[0-9a-f]{24}`
	// TokenPattern matches a Smarti client token.
	TokenPattern = `[0-9a-f]{40}/[0-9a-f]{8}`
)

// SearchableSentence is posted into some generated rooms so that search and
// related-conversation features have something deterministic to find.
const SearchableSentence = "Diese Nachricht soll gefunden werden in einer Suche oder in nahen Konversationen"

// Creator identifies the conversation-mlt query builder result of template 0.
const Creator = "queryBuilder:conversationmlt:conversationmlt"

const defaultClientConfig = `{"queryBuilder":[` +
	`{"_class":"io.redlink.smarti.model.config.ComponentConfiguration","name":"conversationmlt","displayName":"conversationmlt","type":"conversationmlt","enabled":true,"unbound":false,"pageSize":3,"filter":["support_area"]},` +
	`{"_class":"io.redlink.smarti.model.config.ComponentConfiguration","name":"conversationsearch","displayName":"conversationsearch","type":"conversationsearch","enabled":true,"unbound":false,"pageSize":3,"filter":["support_area"]}]}`

// RandomID24 returns 24 lowercase hex characters.
func RandomID24() string {
	return gofakeit.Regex(IDPattern)
}

// RandomToken returns a string shaped like a client token.
func RandomToken() string {
	return gofakeit.Regex(TokenPattern)
}

func FirstName() string { return gofakeit.FirstName() }
func LastName() string  { return gofakeit.LastName() }
func FullName() string  { return gofakeit.FirstName() + " " + gofakeit.LastName() }

// ClientName is a lowercase last name, safe to use as a URL path segment.
func ClientName() string {
	return slug(gofakeit.LastName())
}

// Login is a lowercase first name, safe to use as a URL path segment.
func Login() string {
	return slug(gofakeit.FirstName())
}

// ClientFixture is the create-client body used by every scenario.
func ClientFixture(name string) smarti.ClientRequest {
	return smarti.ClientRequest{DefaultClient: false, Description: "description", Name: name}
}

// RandomMessage returns a short greeting from a random user.
func RandomMessage() smarti.Message {
	return smarti.Message{
		Content: "Hallo, mein Name ist " + FullName() + "!\tDas ist eine Testnachricht!",
		Origin:  "User",
		Private: false,
	}
}

// RandomText is the plain-text greeting used by the rocket webhook scenarios.
func RandomText() string {
	return "Hallo, my name is " + FullName() + "!\nThis is a Testmessage!"
}

// RandomParagraph returns lorem ipsum text for chat messages.
func RandomParagraph() string {
	return strings.TrimSpace(gofakeit.LoremIpsumParagraph(1, gofakeit.IntRange(2, 5), gofakeit.IntRange(6, 14), " "))
}

// Intn returns a number in [lo, hi].
func Intn(lo, hi int) int {
	return gofakeit.IntRange(lo, hi)
}

// Coin returns true about half of the time.
func Coin() bool {
	return gofakeit.Bool()
}

// UserFixture builds the standard user body for login.
func UserFixture(login string) smarti.UserRequest {
	return UserWithEmail(login, login+"@"+login+".com")
}

// UserWithEmail builds a user body with an explicit address.
func UserWithEmail(login, email string) smarti.UserRequest {
	return smarti.UserRequest{
		Login:   login,
		Roles:   []string{},
		Clients: []string{},
		Profile: smarti.Profile{Name: login, Email: email},
	}
}

// DefaultClientConfig is the query builder configuration every scenario installs.
func DefaultClientConfig() json.RawMessage {
	return json.RawMessage(defaultClientConfig)
}

func slug(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "client" + gofakeit.Regex(`[0-9a-f]{6}`)
	}
	return b.String()
}
