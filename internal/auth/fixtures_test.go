package auth

import (
	"time"

	"golang.org/x/oauth2"
)

type oauth2TokenFixture struct {
	AccessToken string
	Expiry      time.Time
}

func (f *oauth2TokenFixture) build() *oauth2.Token {
	return &oauth2.Token{AccessToken: f.AccessToken, TokenType: "Bearer", Expiry: f.Expiry}
}
