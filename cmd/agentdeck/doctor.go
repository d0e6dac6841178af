package main

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/agentdeck/internal/appconfig"
	"pkt.systems/agentdeck/provider/opencode"
	"pkt.systems/pslog"
)

func newDoctorCmd() *cobra.Command {
	var cfgPath string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run agentdeck diagnostics",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())

			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			configPath := cfgPath
			if strings.TrimSpace(configPath) == "" {
				path, err := appconfig.DefaultConfigPath()
				if err != nil {
					return err
				}
				configPath = path
			}
			logger.Info("doctor start", "config", configPath)

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			var failures []string
			if cfg.Providers.Codex.Enabled {
				if err := checkCodexSocket(ctx, cfg.Providers.Codex.Socket); err != nil {
					logger.Warn("doctor codex failed", "socket", cfg.Providers.Codex.Socket, "err", err)
					failures = append(failures, "codex")
				} else {
					logger.Info("doctor codex ok", "socket", cfg.Providers.Codex.Socket)
				}
			} else {
				logger.Info("doctor codex skipped", "reason", "disabled")
			}

			if cfg.Providers.Opencode.Enabled {
				client := opencode.NewHTTPClient(cfg.Providers.Opencode.BaseURL,
					time.Duration(cfg.Providers.Opencode.TimeoutSeconds)*time.Second)
				if err := client.Health(ctx); err != nil {
					logger.Warn("doctor opencode failed", "base_url", cfg.Providers.Opencode.BaseURL, "err", err)
					failures = append(failures, "opencode")
				} else {
					logger.Info("doctor opencode ok", "base_url", cfg.Providers.Opencode.BaseURL)
				}
			} else {
				logger.Info("doctor opencode skipped", "reason", "disabled")
			}

			if cfg.Auth.UserFile != "" {
				if _, err := os.Stat(cfg.Auth.UserFile); err != nil && !os.IsNotExist(err) {
					logger.Warn("doctor auth failed", "user_file", cfg.Auth.UserFile, "err", err)
					failures = append(failures, "auth")
				} else {
					logger.Info("doctor auth ok", "user_file", cfg.Auth.UserFile)
				}
			}

			if len(failures) > 0 {
				return errors.New("doctor checks failed: " + strings.Join(failures, ", "))
			}
			logger.Info("doctor ok")
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "overall diagnostics timeout")
	return cmd
}

func checkCodexSocket(ctx context.Context, path string) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("providers.codex.socket is empty")
	}
	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "unix", path)
	if err != nil {
		return err
	}
	return conn.Close()
}
