package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"valetbench/internal/dummy"
)

var dummyCmd = &cobra.Command{
	Use:   "dummy",
	Short: "Run the local stand-in upload backend",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetInt("port")
		storeDir, _ := cmd.Flags().GetString("store-dir")
		latency, _ := cmd.Flags().GetDuration("latency")
		failureRate, _ := cmd.Flags().GetFloat64("failure-rate")
		userList, _ := cmd.Flags().GetStringSlice("user")

		users, err := parseUsers(userList)
		if err != nil {
			return err
		}
		if failureRate < 0 || failureRate > 1 {
			return fmt.Errorf("failure-rate must be within [0, 1], got %v", failureRate)
		}

		logger := newLogger(os.Stderr)
		srv := dummy.Start(dummy.ServerConfig{
			Port:        port,
			Users:       users,
			StoreDir:    storeDir,
			Latency:     latency,
			FailureRate: failureRate,
			Logger:      logger,
		})

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()

		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	dummyCmd.Flags().IntP("port", "p", 8080, "Port to run dummy server on")
	dummyCmd.Flags().String("store-dir", "", "Keep uploaded bytes under this directory (default: discard)")
	dummyCmd.Flags().Duration("latency", 0, "Random extra latency added to upload endpoints, up to this value")
	dummyCmd.Flags().Float64("failure-rate", 0, "Share of uploads answered with HTTP 500 (0..1)")
	dummyCmd.Flags().StringSlice("user", nil, "Accepted credentials as name:password (default demo:1)")
}

func parseUsers(list []string) (map[string]string, error) {
	users := make(map[string]string, len(list))
	for _, u := range list {
		name, pass, ok := strings.Cut(u, ":")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid user %q, want name:password", u)
		}
		users[name] = pass
	}
	return users, nil
}
