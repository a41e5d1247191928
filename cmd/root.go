// Package cmd wires configuration, clients and the sync loop together.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vwsync/vwldap-sync/pkg/config"
	"github.com/vwsync/vwldap-sync/pkg/directory"
	"github.com/vwsync/vwldap-sync/pkg/engine"
	"github.com/vwsync/vwldap-sync/pkg/logger"
	"github.com/vwsync/vwldap-sync/pkg/vaultwarden"
)

var rootCmd = &cobra.Command{
	Use:   "vwldap-sync",
	Short: "Reconcile VaultWarden organisation membership against an LDAP directory",
	Long: `vwldap-sync keeps the membership of a VaultWarden organisation in step
with an authoritative LDAP directory. Eligible directory users are invited,
directory-disabled users are revoked, and previously revoked users that
became eligible again are restored.

All configuration is taken from environment variables. By default the
process loops forever at SYNC_INTERVAL; set RUN_ONCE for a single cycle.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger.Setup(cfg.Debug)

	var cycle = &engine.Cycle{
		Directory: directory.NewClient(directory.Config{
			Host:               cfg.LDAPHost,
			BindDN:             cfg.BindDN,
			BindPassword:       cfg.BindPassword,
			BaseDN:             cfg.BaseDN,
			ObjectType:         cfg.ObjectType,
			Groups:             cfg.UserGroups,
			ExtraFilter:        cfg.Filter,
			GroupAttribute:     cfg.GroupAttribute,
			MailField:          cfg.MailField,
			DisabledAttribute:  cfg.DisabledAttribute,
			DisabledValues:     cfg.DisabledValues,
			MissingIsDisabled:  cfg.MissingIsDisabled,
			InsecureSkipVerify: cfg.IgnoreLDAPSCert,
			CAFile:             cfg.CAFile,
		}),
		Org: vaultwarden.NewClient(vaultwarden.Config{
			URL:          cfg.VWURL,
			ClientID:     cfg.VWClientID,
			ClientSecret: cfg.VWClientSecret,
			OrgID:        cfg.VWOrgID,
			IgnoreCert:   cfg.IgnoreVWCert,
		}),
		Policy: engine.Policy{
			UsersOnly:       cfg.UsersOnly,
			PreventSelfLock: cfg.PreventSelfLock,
		},
	}

	log.Info().
		Str("vaultwarden", cfg.VWURL).
		Str("organisation", cfg.VWOrgID).
		Str("ldap", cfg.LDAPHost).
		Int("interval_seconds", cfg.SyncInterval).
		Bool("run_once", cfg.RunOnce).
		Int("max_consecutive_failures", cfg.MaxConsecutiveFailures).
		Msg("starting sync")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	controller := engine.NewController(
		cycle,
		time.Duration(cfg.SyncInterval)*time.Second,
		cfg.MaxConsecutiveFailures,
		cfg.RunOnce,
	)
	return controller.Loop(ctx)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("exiting")
		os.Exit(1)
	}
}
