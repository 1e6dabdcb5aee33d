package jwt

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid client credentials")

// Client is a registered API client whose secret is stored as a bcrypt hash.
type Client struct {
	Name       string
	Role       string
	SecretHash string
}

type ClientRegistry struct {
	clients map[string]Client
}

func NewClientRegistry(clients []Client) *ClientRegistry {
	r := &ClientRegistry{clients: make(map[string]Client, len(clients))}
	for _, c := range clients {
		r.clients[c.Name] = c
	}
	return r
}

// Authenticate returns the role of the named client when secret matches.
func (r *ClientRegistry) Authenticate(name, secret string) (string, error) {
	c, ok := r.clients[name]
	if !ok {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(c.SecretHash), []byte(secret)); err != nil {
		return "", ErrInvalidCredentials
	}
	return c.Role, nil
}

// HashSecret produces the value to put in auth.clients[].secret_hash.
func HashSecret(secret string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
