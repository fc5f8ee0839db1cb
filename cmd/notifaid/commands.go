package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"notifai/internal/app"
	"notifai/internal/storage"
)

func batchCmd(opts *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "batch",
		Short: "Deliver pending medium-priority notifications now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withTool(opts, func(t *app.Tool) error {
				n, err := t.RunBatch(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "delivered %d\n", n)
				return nil
			})
		},
	}
}

func pruneCmd(opts *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Delete notifications older than retention.max_age",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withTool(opts, func(t *app.Tool) error {
				n, err := t.Prune(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "pruned %d\n", n)
				return nil
			})
		},
	}
}

func foldersCmd(opts *rootOpts) *cobra.Command {
	cmd := &cobra.Command{Use: "folders", Short: "Manage the folder taxonomy"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List folders with record counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withTool(opts, func(t *app.Tool) error {
				folders, err := t.Taxonomy().Folders(cmd.Context())
				if err != nil {
					return err
				}
				counts, err := t.Store().FolderCounts(cmd.Context())
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "NAME\tCOUNT\tDEFAULT\tDESCRIPTION")
				for _, f := range folders {
					fmt.Fprintf(w, "%s\t%d\t%v\t%s\n", f.Name, counts[f.Name], f.IsDefault, f.Description)
				}
				return w.Flush()
			})
		},
	}

	var addDesc string
	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a custom folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTool(opts, func(t *app.Tool) error {
				f, err := t.Taxonomy().CreateFolder(cmd.Context(), args[0], addDesc)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", f.Name)
				return nil
			})
		},
	}
	add.Flags().StringVarP(&addDesc, "description", "d", "", "what belongs in the folder")

	rename := &cobra.Command{
		Use:   "rename <name> <new-name>",
		Short: "Rename a custom folder and move its notifications",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTool(opts, func(t *app.Tool) error {
				f, moved, err := t.Taxonomy().RenameFolder(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "renamed to %s (%d moved)\n", f.Name, moved)
				return nil
			})
		},
	}

	describe := &cobra.Command{
		Use:   "describe <name> <description>",
		Short: "Change a custom folder's description",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTool(opts, func(t *app.Tool) error {
				f, err := t.Taxonomy().DescribeFolder(cmd.Context(), args[0], strings.Join(args[1:], " "))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "updated %s\n", f.Name)
				return nil
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a custom folder and its notifications",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTool(opts, func(t *app.Tool) error {
				removed, err := t.Taxonomy().DeleteFolder(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s (%d notifications removed)\n", args[0], removed)
				return nil
			})
		},
	}

	cmd.AddCommand(list, add, rename, describe, del)
	return cmd
}

func appsCmd(opts *rootOpts) *cobra.Command {
	cmd := &cobra.Command{Use: "apps", Short: "Choose which applications are classified"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List known applications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withTool(opts, func(t *app.Tool) error {
				apps, err := t.Taxonomy().MonitoredApps(cmd.Context())
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "PACKAGE\tNAME\tENABLED")
				for _, a := range apps {
					fmt.Fprintf(w, "%s\t%s\t%v\n", a.Package, a.AppName, a.Enabled)
				}
				return w.Flush()
			})
		},
	}

	var name string
	enable := &cobra.Command{
		Use:   "enable <package>",
		Short: "Classify notifications from an application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTool(opts, func(t *app.Tool) error {
				if err := t.Taxonomy().SetMonitored(cmd.Context(), args[0], name, true); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "enabled %s\n", args[0])
				return nil
			})
		},
	}
	enable.Flags().StringVar(&name, "name", "", "display name")

	disable := &cobra.Command{
		Use:   "disable <package>",
		Short: "Stop classifying an application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTool(opts, func(t *app.Tool) error {
				if err := t.Taxonomy().SetMonitored(cmd.Context(), args[0], "", false); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "disabled %s\n", args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(list, enable, disable)
	return cmd
}

func instructionsCmd(opts *rootOpts) *cobra.Command {
	cmd := &cobra.Command{Use: "instructions", Short: "Personal classification instructions"}
	get := &cobra.Command{
		Use:   "get",
		Short: "Print the instructions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withTool(opts, func(t *app.Tool) error {
				text, err := t.Taxonomy().Instructions(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), text)
				return nil
			})
		},
	}
	set := &cobra.Command{
		Use:   "set [text]",
		Short: "Replace the instructions; no text clears them",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTool(opts, func(t *app.Tool) error {
				return t.Taxonomy().SetInstructions(cmd.Context(), strings.Join(args, " "))
			})
		},
	}
	cmd.AddCommand(get, set)
	return cmd
}

func notificationsCmd(opts *rootOpts) *cobra.Command {
	var (
		folder string
		limit  int
		unread bool
	)
	cmd := &cobra.Command{
		Use:     "notifications",
		Aliases: []string{"ls"},
		Short:   "Classified notifications, newest first",
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "List notifications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withTool(opts, func(t *app.Tool) error {
				rows, err := t.Store().ListNotifications(cmd.Context(), storage.ListFilter{Folder: folder, UnreadOnly: unread, Limit: limit})
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tTIME\tFOLDER\tPRIORITY\tAPP\tTITLE")
				for _, n := range rows {
					mark := ""
					if !n.Read {
						mark = "*"
					}
					fmt.Fprintf(w, "%s%s\t%s\t%s\t%s\t%s\t%s\n", mark, n.ID, n.ArrivedAt.Format(time.DateTime),
						n.Folder, n.Priority, n.AppName, n.Title)
				}
				return w.Flush()
			})
		},
	}
	list.Flags().StringVar(&folder, "folder", "", "only this folder")
	list.Flags().IntVar(&limit, "limit", 50, "maximum rows (0 for all)")
	list.Flags().BoolVar(&unread, "unread", false, "only unread")
	cmd.AddCommand(list)
	return cmd
}

func readCmd(opts *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "read <id>",
		Short: "Mark a notification read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTool(opts, func(t *app.Tool) error {
				return t.Store().MarkRead(cmd.Context(), args[0])
			})
		},
	}
}

func openCmd(opts *rootOpts) *cobra.Command {
	var pkg string
	cmd := &cobra.Command{
		Use:   "open <id>",
		Short: "Open the application that posted a notification",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTool(opts, func(t *app.Tool) error {
				return t.Open(cmd.Context(), args[0], pkg)
			})
		},
	}
	cmd.Flags().StringVar(&pkg, "package", "", "application id to launch instead of the stored one")
	return cmd
}
