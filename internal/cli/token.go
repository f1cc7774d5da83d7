package cli

import (
	"fmt"
	"time"

	"quiz-grading-engine/internal/config"
	transport "quiz-grading-engine/internal/transport/http"

	"github.com/spf13/cobra"
)

// NewTokenCmd issues a participant token signed with auth.secret, for local testing.
func NewTokenCmd(configPath *string) *cobra.Command {
	var participant string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a participant JWT",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Auth.Secret == "" {
				return fmt.Errorf("auth.secret not configured")
			}
			token, err := transport.IssueToken(cfg.Auth.Secret, participant, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&participant, "participant", "", "participant id (token subject)")
	cmd.Flags().DurationVar(&ttl, "ttl", 8*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("participant")
	return cmd
}
