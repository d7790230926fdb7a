package main

import (
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/adapters/store"
	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/domain"
)

func runBlocks(cmd *cobra.Command, args []string) error {
	setupLogging(zerologLevel(v.GetString("logging.level")), true)

	path := storePath
	if path == "" {
		path = v.GetString("countermeasure.store.path")
	}
	cfg := store.DefaultBoltConfig()
	cfg.Path = path
	cfg.ReadOnly = true

	bs, err := store.NewBoltBlockStore(cfg)
	if err != nil {
		return fmt.Errorf("%w (a running engine holds the store; query GET /blocks instead)", err)
	}
	defer bs.Close()

	entries, err := bs.LoadAll()
	if err != nil {
		return err
	}
	return printBlocks(cmd, entries, time.Now())
}

func printBlocks(cmd *cobra.Command, entries []*domain.BlockEntry, now time.Time) error {
	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, "No persisted blocks")
		return nil
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ExpiresAt.Before(entries[j].ExpiresAt) })

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SOURCE\tSIGNATURE\tSEVERITY\tBLOCKED AT\tEXPIRES IN\tSTATE")
	for _, e := range entries {
		state := "enforced"
		switch {
		case e.Expired(now):
			state = "expired"
		case e.Pending != domain.PendingNone:
			state = "pending " + string(e.Pending)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.SourceIP, e.Reason.Signature, e.Reason.Severity,
			e.BlockedAt.Format(time.RFC3339), e.Remaining(now).Round(time.Second), state)
	}
	return w.Flush()
}
