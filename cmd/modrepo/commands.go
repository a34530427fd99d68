package main

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"modrepo/internal/client"
	"modrepo/internal/modapi"
)

type clientFactory func() *client.Client

func newListCmd(newClient clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all mods",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mods, err := newClient().ListMods(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tAUTHOR\tVERSIONS\tDOWNLOADS\tFAVORITES")
			for _, m := range mods {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\n",
					m.ID, m.Title, m.Author, strings.Join(m.MinecraftVersions, ","), m.Downloads, m.Favorites)
			}
			return w.Flush()
		},
	}
}

func newShowCmd(newClient clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show the details of a mod",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mod, err := newClient().GetMod(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printMod(cmd.OutOrStdout(), mod)
			return nil
		},
	}
}

func newUploadCmd(newClient clientFactory) *cobra.Command {
	var req client.UploadRequest

	cmd := &cobra.Command{
		Use:   "upload <jar>",
		Short: "Publish a new mod",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.JarPath = args[0]
			res, err := newClient().Upload(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "uploaded mod %s\n", res.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Title, "title", "", "mod title")
	cmd.Flags().StringVar(&req.Author, "author", "", "mod author")
	cmd.Flags().StringVar(&req.Category, "category", "", "mod category")
	cmd.Flags().StringVar(&req.Description, "description", "", "mod description")
	cmd.Flags().StringVar(&req.Versions, "versions", "", "supported game versions, e.g. \"1.19, 1.20\"")
	cmd.Flags().StringVar(&req.ImagePath, "image", "", "cover image file")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newDownloadCmd(newClient clientFactory) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "download <id>",
		Short: "Download the artifact of a mod",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := newClient().Download(cmd.Context(), args[0], dir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&dir, "output", "o", ".", "directory to save the file in")
	return cmd
}

func newViewCmd(newClient clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "view <id>",
		Short: "Record a view of a mod",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newClient().View(cmd.Context(), args[0])
		},
	}
}

func newFavoriteCmd(newClient clientFactory) *cobra.Command {
	var off bool

	cmd := &cobra.Command{
		Use:   "favorite <id>",
		Short: "Favorite a mod, or remove a favorite with --off",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newClient().Favorite(cmd.Context(), args[0], !off)
		},
	}

	cmd.Flags().BoolVar(&off, "off", false, "remove a favorite instead of adding one")
	return cmd
}

func newStatsCmd(newClient clientFactory) *cobra.Command {
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show download statistics",
	}

	topCmd := &cobra.Command{
		Use:   "top",
		Short: "Show the ten most downloaded mods",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := newClient().TopStats(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "total downloads: %d\n", stats.DownloadsTotal)
			printRanking(out, "", stats.MostDownloaded)
			return nil
		},
	}

	summaryCmd := &cobra.Command{
		Use:   "summary",
		Short: "Show catalog totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sum, err := newClient().Summary(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "mods\t%d\n", sum.Mods)
			fmt.Fprintf(w, "downloads\t%d\n", sum.Downloads)
			fmt.Fprintf(w, "views\t%d\n", sum.Views)
			fmt.Fprintf(w, "favorites\t%d\n", sum.Favorites)
			return w.Flush()
		},
	}

	var top int
	byVersionCmd := &cobra.Command{
		Use:   "by-version",
		Short: "Show the most downloaded mods of every game version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			byVersion, err := newClient().ByVersion(cmd.Context(), top)
			if err != nil {
				return err
			}
			versions := make([]string, 0, len(byVersion))
			for v := range byVersion {
				versions = append(versions, v)
			}
			slices.Sort(versions)

			out := cmd.OutOrStdout()
			for _, v := range versions {
				fmt.Fprintf(out, "%s\n", v)
				printRanking(out, "  ", byVersion[v])
			}
			return nil
		},
	}
	byVersionCmd.Flags().IntVar(&top, "top", 0, "mods per version, 1-10 (server default when unset)")

	statsCmd.AddCommand(topCmd, summaryCmd, byVersionCmd)
	return statsCmd
}

func printMod(out io.Writer, m *modapi.Mod) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "id\t%s\n", m.ID)
	fmt.Fprintf(w, "title\t%s\n", m.Title)
	fmt.Fprintf(w, "author\t%s\n", m.Author)
	fmt.Fprintf(w, "category\t%s\n", m.Category)
	fmt.Fprintf(w, "description\t%s\n", m.Description)
	fmt.Fprintf(w, "versions\t%s\n", strings.Join(m.MinecraftVersions, ", "))
	fmt.Fprintf(w, "downloads\t%d\n", m.Downloads)
	fmt.Fprintf(w, "views\t%d\n", m.Views)
	fmt.Fprintf(w, "favorites\t%d\n", m.Favorites)
	if m.LastUpdated != nil {
		fmt.Fprintf(w, "updated\t%s\n", *m.LastUpdated)
	}
	if m.Checksum != nil {
		fmt.Fprintf(w, "checksum\t%s\n", *m.Checksum)
	}
	if m.ImageURL != nil {
		fmt.Fprintf(w, "image\t%s\n", *m.ImageURL)
	}
	w.Flush()
}

func printRanking(out io.Writer, indent string, ranked []modapi.RankedMod) {
	for i, r := range ranked {
		fmt.Fprintf(out, "%s%d. %s (%d)\n", indent, i+1, r.Title, r.Downloads)
	}
}
