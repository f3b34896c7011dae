package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
)

const calendarTokenKey = "calendar:oauth_token"

// ErrNoToken means the clinic has not connected its calendar.
var ErrNoToken = errors.New("calendar token not found")

// TokenStore persists the clinic's calendar OAuth token.
type TokenStore struct {
	client *redis.Client
}

func NewTokenStore(client *redis.Client) *TokenStore {
	return &TokenStore{client: client}
}

func (s *TokenStore) Load(ctx context.Context) (*oauth2.Token, error) {
	data, err := s.client.Get(ctx, calendarTokenKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoToken
		}
		return nil, fmt.Errorf("load calendar token: %w", err)
	}

	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("decode calendar token: %w", err)
	}
	return &tok, nil
}

// Save stores tok without expiry; refresh is handled by the oauth2 client.
func (s *TokenStore) Save(ctx context.Context, tok *oauth2.Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encode calendar token: %w", err)
	}
	if err := s.client.Set(ctx, calendarTokenKey, data, 0).Err(); err != nil {
		return fmt.Errorf("save calendar token: %w", err)
	}
	return nil
}

func (s *TokenStore) Delete(ctx context.Context) error {
	return s.client.Del(ctx, calendarTokenKey).Err()
}
