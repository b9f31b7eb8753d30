package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/spf13/cobra"

	"tenanttags/internal/app"
	"tenanttags/internal/enrichment"
	"tenanttags/internal/token"
	"tenanttags/pkg/config"
	"tenanttags/pkg/db"
	"tenanttags/pkg/logger"
)

// errFailed signals a Failed enrichment after the problem was already printed.
var errFailed = errors.New("enrichment failed")

func newPreviewCmd() *cobra.Command {
	var (
		eventPath  string
		configPath string
		verbose    bool
	)
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Run a login event through the pipeline and print the resulting token claims",
		Long: `Reads a login event ({"event_id": "...", "principal": {"id": "...", "attributes": {...}}})
from --event (or stdin when --event is "-"), enriches it with the configured strategy and
prints the claim set the identity token would carry.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil && configPath == "" {
				return err
			}
			if configPath != "" {
				if err := config.LoadFile(configPath, &cfg); err != nil {
					return err
				}
				if err := cfg.Validate(); err != nil {
					return err
				}
			}

			log := logger.Nop()
			if verbose {
				log = logger.New(cfg.Env, "tagctl")
			}
			var in io.Reader = cmd.InOrStdin()
			if eventPath != "-" {
				f, err := os.Open(eventPath)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			deps := app.Deps{}
			if cfg.Enrichment.TenantSourceStrategy == config.StrategyExternalLookup {
				deps.Pool = db.MustConnect(cfg, log)
			}
			a, err := app.New(cmd.Context(), cfg, log, deps)
			if err != nil {
				return err
			}
			return runPreview(cmd.Context(), a.Orchestrator, in, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&eventPath, "event", "e", "-", "login event JSON file, - for stdin")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML config overlay")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log pipeline steps to stderr")
	return cmd
}

// runPreview enriches the event read from in onto a fresh token and writes either the
// token's claim set or a failure summary to out.
func runPreview(ctx context.Context, o *enrichment.Orchestrator, in io.Reader, out io.Writer) error {
	var ev enrichment.LoginEvent
	dec := json.NewDecoder(in)
	dec.UseNumber()
	if err := dec.Decode(&ev); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}

	tok, err := jwt.NewBuilder().Subject(ev.Principal.ID).IssuedAt(time.Now().UTC()).Build()
	if err != nil {
		return err
	}
	mut := token.NewJWT(tok)
	res := o.OnLogin(ctx, ev, mut)

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if !res.OK() {
		_ = enc.Encode(map[string]any{
			"state":       res.State,
			"reason":      res.Reason,
			"error":       fmt.Sprint(res.Err),
			"transitions": res.Transitions,
		})
		return errFailed
	}
	return enc.Encode(mut.Token())
}
