package auth

import (
	"context"

	firebaseauth "firebase.google.com/go/v4/auth"
)

// Identity is what the app's identity provider vouches for
type Identity struct {
	UID     string
	Email   string
	Name    string
	Picture string
}

// IdentityVerifier checks an ID token issued to the mobile app
type IdentityVerifier interface {
	Verify(ctx context.Context, idToken string) (*Identity, error)
}

// FirebaseVerifier verifies Firebase Auth ID tokens
type FirebaseVerifier struct {
	client *firebaseauth.Client
}

func NewFirebaseVerifier(client *firebaseauth.Client) *FirebaseVerifier {
	return &FirebaseVerifier{client: client}
}

func (v *FirebaseVerifier) Verify(ctx context.Context, idToken string) (*Identity, error) {
	token, err := v.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, err
	}

	id := &Identity{UID: token.UID}
	if s, ok := token.Claims["email"].(string); ok {
		id.Email = s
	}
	if s, ok := token.Claims["name"].(string); ok {
		id.Name = s
	}
	if s, ok := token.Claims["picture"].(string); ok {
		id.Picture = s
	}
	return id, nil
}
