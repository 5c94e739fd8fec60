package main

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/satriahrh/wavebridge/internal/api"
	"github.com/satriahrh/wavebridge/internal/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a device token signed with the configured JWT secret",
	RunE: func(cmd *cobra.Command, args []string) error {
		deviceID, _ := cmd.Flags().GetString("device-id")
		ttl, _ := cmd.Flags().GetDuration("ttl")
		if ttl == 0 {
			ttl = viper.GetDuration("auth.token_ttl")
		}

		resp, err := issueToken(viper.GetString("auth.jwt_secret"), ttl, deviceID)
		if err != nil {
			return err
		}

		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(resp)
	},
}

func init() {
	tokenCmd.Flags().String("device-id", "", "Device the token is issued to")
	tokenCmd.Flags().Duration("ttl", 0, "Token lifetime (default auth.token_ttl)")
	_ = tokenCmd.MarkFlagRequired("device-id")
}

func issueToken(secret string, ttl time.Duration, deviceID string) (*api.TokenResponse, error) {
	if secret == "" {
		return nil, errors.New("auth.jwt_secret is not configured (set --jwt-secret or WAVEBRIDGE_AUTH_JWT_SECRET)")
	}

	tokens, err := auth.NewTokenManager(secret, ttl)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := tokens.GenerateDeviceToken(deviceID)
	if err != nil {
		return nil, err
	}

	return &api.TokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		DeviceID:  deviceID,
	}, nil
}
