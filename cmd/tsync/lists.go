package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/tsync/internal/engine"
	"github.com/mschirtzinger/tsync/internal/schema"
	"github.com/mschirtzinger/tsync/internal/ui"
)

var listsCmd = &cobra.Command{
	Use:     "lists",
	GroupID: "tasks",
	Short:   "Show task lists",
	Long: `Show every task list.

When the remote store is reachable the local cache is refreshed first; lists
with unsynced local changes keep their local version. Offline, the cached
lists are shown.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, appOptions{}, func(ctx context.Context, a *app) error {
			lists, err := fetchView(ctx, a, schema.CollectionLists, a.userID())
			if err != nil {
				return err
			}
			return printItems(lists, "No lists yet. Create one with 'tsync lists add <title>'.")
		})
	},
}

var listsAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Create a task list",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		desc, _ := cmd.Flags().GetString("desc")
		fields := schema.Fields{Title: strings.Join(args, " "), Description: desc}

		return withApp(cmd, appOptions{}, func(ctx context.Context, a *app) error {
			list, err := a.engine.Create(ctx, schema.CollectionLists, a.userID(), fields)
			if err != nil {
				return err
			}
			return printCreated(list)
		})
	},
}

var listsRenameCmd = &cobra.Command{
	Use:   "rename <list-id> <title>",
	Short: "Rename a task list",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, appOptions{}, func(ctx context.Context, a *app) error {
			list, err := a.engine.Get(ctx, schema.CollectionLists, args[0])
			if err != nil {
				return err
			}
			list.Title = strings.Join(args[1:], " ")
			updated, err := a.engine.Update(ctx, schema.CollectionLists, list)
			if err != nil {
				return err
			}
			return printUpdated(updated)
		})
	},
}

var listsRmCmd = &cobra.Command{
	Use:     "rm <list-id>...",
	Aliases: []string{"delete"},
	Short:   "Delete task lists and their tasks",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, appOptions{}, func(ctx context.Context, a *app) error {
			return deleteAll(ctx, a, schema.CollectionLists, args)
		})
	},
}

func init() {
	listsAddCmd.Flags().String("desc", "", "List description")

	listsCmd.AddCommand(listsAddCmd)
	listsCmd.AddCommand(listsRenameCmd)
	listsCmd.AddCommand(listsRmCmd)
	rootCmd.AddCommand(listsCmd)
}

// fetchView returns the freshest view of a parent's records. A failing
// remote store falls back to the cached view with a warning.
func fetchView(ctx context.Context, a *app, coll schema.Collection, parentID string) ([]schema.Item, error) {
	items, err := a.engine.FetchAll(ctx, coll, parentID)
	var fe *engine.FetchError
	if errors.As(err, &fe) {
		fmt.Fprintf(os.Stderr, "%s remote store failed, showing cached %s: %v\n", ui.RenderWarn("⚠"), coll, fe.Err)
		return fe.Cached, nil
	}
	return items, err
}

// deleteAll deletes ids one by one, reporting each.
func deleteAll(ctx context.Context, a *app, coll schema.Collection, ids []string) error {
	var failed int
	for _, id := range ids {
		parentID := ""
		if it, err := a.engine.Get(ctx, coll, id); err == nil {
			parentID = it.ParentID
		}
		if _, err := a.engine.Delete(ctx, coll, parentID, id); err != nil {
			fmt.Fprintf(os.Stderr, "%s %s: %v\n", ui.RenderFail("✗"), id, err)
			failed++
			continue
		}
		if !jsonOutput {
			fmt.Printf("%s Deleted %s\n", ui.RenderPass("✓"), id)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d deletions failed", failed, len(ids))
	}
	return nil
}

func printItems(items []schema.Item, empty string) error {
	if jsonOutput {
		return printJSON(items)
	}
	if len(items) == 0 {
		fmt.Println(empty)
		return nil
	}
	for _, it := range items {
		fmt.Println(ui.FormatItem(it))
	}
	return nil
}

func printCreated(it schema.Item) error {
	if jsonOutput {
		return printJSON(it)
	}
	fmt.Printf("%s Created %s\n", ui.RenderPass("✓"), ui.FormatItem(it))
	if it.IsOffline() {
		fmt.Printf("   %s\n", ui.RenderMuted("Stored locally; it will be pushed on the next sync."))
	}
	return nil
}

func printUpdated(it schema.Item) error {
	if jsonOutput {
		return printJSON(it)
	}
	fmt.Printf("%s Updated %s\n", ui.RenderPass("✓"), ui.FormatItem(it))
	return nil
}
