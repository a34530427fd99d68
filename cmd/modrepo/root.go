package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"modrepo/internal/client"
)

// newRootCmd builds the command tree. Each call uses its own viper
// instance so tests can run commands side by side.
func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("MODREPO")
	v.AutomaticEnv()
	v.SetDefault("server", client.DefaultServer)

	rootCmd := &cobra.Command{
		Use:          "modrepo",
		Short:        "Browse, publish and download mods from a modrepo server",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("server", client.DefaultServer, "base URL of the modrepo server (env MODREPO_SERVER)")
	_ = v.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))

	newClient := func() *client.Client {
		return client.New(v.GetString("server"))
	}

	rootCmd.AddCommand(
		newListCmd(newClient),
		newShowCmd(newClient),
		newUploadCmd(newClient),
		newDownloadCmd(newClient),
		newViewCmd(newClient),
		newFavoriteCmd(newClient),
		newStatsCmd(newClient),
	)
	return rootCmd
}
