package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"calendar-sync/internal/config"
	"calendar-sync/internal/db"
	"calendar-sync/internal/models"
)

func inspectCmd() *cobra.Command {
	var chats int

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print the persisted state as tables",
		Long: `Load the snapshot from the configured persistence backend and print
users, groups, schedules and the most recent chat messages. Nothing is written.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath(cmd))
			if err != nil {
				return err
			}
			log := logs.GetLoggerFromString(cfg.LogLevel)

			sink, err := db.Open(cmd.Context(), sinkOptions(cfg), log)
			if err != nil {
				return fmt.Errorf("open persistence: %w", err)
			}
			defer sink.Close()

			snapshot, err := sink.Load(cmd.Context())
			if err != nil {
				return fmt.Errorf("load snapshot: %w", err)
			}
			renderSnapshot(cmd.OutOrStdout(), snapshot, chats)
			return nil
		},
	}

	cmd.Flags().IntVarP(&chats, "chats", "n", 20, "number of most recent chat messages to print")
	return cmd
}

func renderSnapshot(w io.Writer, snapshot models.Snapshot, chatLimit int) {
	counts := snapshot.Counts()
	fmt.Fprintf(w, "users=%d groups=%d schedules=%d chats=%d\n\n",
		counts["users"], counts["groups"], counts["schedules"], counts["chats"])

	users := newTable(w, "Username")
	for _, identity := range snapshot.Identities {
		users.Append([]string{identity.Username})
	}
	users.Render()
	fmt.Fprintln(w)

	groups := newTable(w, "ID", "Name", "Created By", "Members")
	for _, group := range snapshot.Groups {
		groups.Append([]string{group.ID, group.Name, group.CreatedBy, strings.Join(group.Members, ",")})
	}
	groups.Render()
	fmt.Fprintln(w)

	schedules := newTable(w, "ID", "Title", "Start", "End", "All Day", "Group", "Participants", "Private")
	for _, s := range snapshot.Schedules {
		schedules.Append([]string{
			shortID(s.ID),
			s.Title,
			s.StartTime.String(),
			s.EndTime.String(),
			strconv.FormatBool(s.AllDay),
			s.GroupID,
			strings.Join(s.Participants, ","),
			strconv.FormatBool(s.IsPrivate),
		})
	}
	schedules.Render()
	fmt.Fprintln(w)

	recent := snapshot.Chats
	if chatLimit >= 0 && len(recent) > chatLimit {
		recent = recent[len(recent)-chatLimit:]
	}
	chats := newTable(w, "Timestamp", "Group", "Sender", "Message")
	for _, msg := range recent {
		chats.Append([]string{msg.Timestamp.String(), msg.GroupID, msg.Sender, msg.Message})
	}
	chats.Render()
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

// shortID keeps the first 8 characters of an id for display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
