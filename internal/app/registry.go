package app

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/stream-sync/recsync/config"
	"github.com/stream-sync/recsync/internal/coursehost"
	"github.com/stream-sync/recsync/internal/platform"
	"github.com/stream-sync/recsync/internal/platform/teams"
	"github.com/stream-sync/recsync/internal/platform/unicko"
	"github.com/stream-sync/recsync/internal/platform/webex"
	"github.com/stream-sync/recsync/internal/platform/zoom"
)

// BuildRegistry selects the adapters named in PLATFORMS, in that order.
func BuildRegistry(cfg *config.Config, host coursehost.Host, tokens *platform.TokenCache, secrets platform.SecretStore, logger *zap.Logger) (*platform.Registry, error) {
	timeout := time.Duration(cfg.Pipeline.HTTPTimeoutSec) * time.Second
	reg := platform.NewRegistry()
	for _, name := range cfg.Pipeline.Platforms {
		switch name {
		case "zoom":
			reg.Register(zoom.New(zoom.Config{
				AccountID:    cfg.Zoom.AccountID,
				ClientID:     cfg.Zoom.ClientID,
				ClientSecret: cfg.Zoom.ClientSecret,
				APIURL:       cfg.Zoom.APIURL,
				OAuthURL:     cfg.Zoom.OAuthURL,
				Timeout:      timeout,
			}, tokens, host, logger))
		case "webex":
			reg.Register(webex.New(webex.Config{
				ClientID:     cfg.Webex.ClientID,
				ClientSecret: cfg.Webex.ClientSecret,
				RefreshToken: cfg.Webex.RefreshToken,
				AccessToken:  cfg.Webex.AccessToken,
				APIURL:       cfg.Webex.APIURL,
				Timeout:      timeout,
			}, secrets, tokens, logger))
		case "teams":
			reg.Register(teams.New(teams.Config{
				TenantID:     cfg.Teams.TenantID,
				ClientID:     cfg.Teams.ClientID,
				ClientSecret: cfg.Teams.ClientSecret,
				OwnerMarker:  cfg.Teams.OwnerMarker,
				UsersFilter:  cfg.Teams.UsersFilter,
				GraphURL:     cfg.Teams.GraphURL,
				LoginURL:     cfg.Teams.LoginURL,
				Timeout:      timeout,
			}, tokens, host, logger))
		case "unicko":
			reg.Register(unicko.New(unicko.Config{
				Key:     cfg.Unicko.Key,
				Secret:  cfg.Unicko.Secret,
				APIURL:  cfg.Unicko.APIURL,
				Timeout: timeout,
			}, host, logger))
		default:
			return nil, fmt.Errorf("unknown platform %q", name)
		}
	}
	if len(reg.All()) == 0 {
		return nil, fmt.Errorf("no platforms configured")
	}
	return reg, nil
}
