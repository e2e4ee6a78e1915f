package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/modelpark/asset-registry/pkg/events"
)

var eventsPageToken string

func init() {
	eventsCmd.Flags().StringVar(&eventsPageToken, "page-token", "", "Resume listing from a previous page")
}

var eventsCmd = &cobra.Command{
	Use:   "events <asset-id>",
	Short: "Show an asset's event history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := fmt.Sprintf("/assets/%s/events?pageToken=%s", args[0], eventsPageToken)
		var page struct {
			Events        []events.Event `json:"events"`
			NextPageToken string         `json:"nextPageToken"`
		}
		if err := newClient().getJSON(path, &page); err != nil {
			return err
		}
		if outputFmt != "table" {
			return printOutput(page)
		}
		rows := make([][]string, 0, len(page.Events))
		for _, ev := range page.Events {
			rows = append(rows, []string{
				ev.OccurredAt.Format(time.RFC3339), string(ev.Type), ev.Actor, ev.ID,
			})
		}
		printTable([]string{"occurred", "type", "actor", "event-id"}, rows)
		if page.NextPageToken != "" {
			fmt.Printf("\nNext page token: %s\n", page.NextPageToken)
		}
		return nil
	},
}
