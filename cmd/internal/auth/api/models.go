package api

import (
	"time"

	"warden/cmd/internal/auth/flow"
)

type loginRequest struct {
	Username string `json:"username" validate:"required,max=128"`
	Password string `json:"password" validate:"required,max=1024"`
	Platform string `json:"platform" validate:"omitempty,oneof=web native"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"omitempty,max=512"`
	Platform     string `json:"platform" validate:"omitempty,oneof=web native"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
	Everywhere   bool   `json:"everywhere"`
}

type principalResponse struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"display_name"`
	Authorities []string `json:"authorities"`
}

type tokenResponse struct {
	TokenType        string            `json:"token_type"`
	AccessToken      string            `json:"access_token"`
	AccessExpiresAt  time.Time         `json:"access_expires_at"`
	ExpiresIn        int64             `json:"expires_in"`
	RefreshToken     string            `json:"refresh_token,omitempty"`
	RefreshExpiresAt time.Time         `json:"refresh_expires_at"`
	Principal        principalResponse `json:"principal"`
}

type logoutResponse struct {
	Status string `json:"status"`
}

type countResponse struct {
	Count int `json:"count"`
}

type sweepResponse struct {
	Removed   int    `json:"removed"`
	Remaining int    `json:"remaining"`
	Timeout   string `json:"timeout"`
}

type cleanupResponse struct {
	Removed       int `json:"removed"`
	RetentionDays int `json:"retention_days"`
}

func toTokenResponse(p flow.Pair, now time.Time) tokenResponse {
	authorities := p.Authorities
	if authorities == nil {
		authorities = []string{}
	}
	return tokenResponse{
		TokenType:        "Bearer",
		AccessToken:      p.AccessToken,
		AccessExpiresAt:  p.AccessExpiresAt,
		ExpiresIn:        int64(p.AccessExpiresAt.Sub(now).Seconds()),
		RefreshToken:     p.RefreshToken,
		RefreshExpiresAt: p.RefreshExpiresAt,
		Principal: principalResponse{
			ID:          p.OwnerID,
			DisplayName: p.DisplayName,
			Authorities: authorities,
		},
	}
}
