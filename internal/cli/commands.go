package cli

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fitkeep/fitdb"
	"github.com/fitkeep/fitdb/internal/logging"
	"github.com/fitkeep/fitdb/journal"
	"github.com/fitkeep/fitdb/model"
)

// NewStatsCommand creates the stats command.
func NewStatsCommand(opts *RootOptions) *cobra.Command {
	var sizes bool
	cmd := newCommand("stats", "Print the number of keys in every region", cobra.NoArgs, func(cmd *cobra.Command, args []string) error {
		return withStore(opts, func(s *model.Store, _ *zap.Logger) error {
			stats, err := s.Stats()
			if err != nil {
				return err
			}
			writeStats(cmd.OutOrStdout(), stats, sizes)
			return nil
		})
	})
	cmd.Flags().BoolVar(&sizes, "sizes", false, "also print backend-reported sizes")
	return cmd
}

func writeStats(w io.Writer, stats []fitdb.RegionStats, sizes bool) {
	var total int
	for _, rs := range stats {
		total += rs.Keys
		if sizes {
			fmt.Fprintf(w, "%-18s %6d %10d %10d\n", rs.Name, rs.Keys, rs.Size, rs.Alloc)
		} else {
			fmt.Fprintf(w, "%-18s %6d\n", rs.Name, rs.Keys)
		}
	}
	fmt.Fprintf(w, "%-18s %6d\n", "total", total)
}

// NewDumpCommand creates the dump command.
func NewDumpCommand(opts *RootOptions) *cobra.Command {
	var keys, values bool
	cmd := newCommand("dump", "Dump every region", cobra.NoArgs, func(cmd *cobra.Command, args []string) error {
		f := fitdb.DumpRegionHeaders | fitdb.DumpStats
		if keys || values {
			f |= fitdb.DumpKeys
		}
		if values {
			f |= fitdb.DumpValues
		}
		return withStore(opts, func(s *model.Store, _ *zap.Logger) error {
			return s.Dump(cmd.OutOrStdout(), f)
		})
	})
	cmd.Flags().BoolVar(&keys, "keys", false, "list keys")
	cmd.Flags().BoolVar(&values, "values", false, "list keys and decoded values")
	return cmd
}

var spewConfig = spew.ConfigState{
	Indent:                  "  ",
	DisablePointerAddresses: true,
	DisableCapacities:       true,
	SortKeys:                true,
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(opts *RootOptions) *cobra.Command {
	var take int
	cmd := newCommand("inspect <user-id>", "Show a user with their gear, clients and latest activities", cobra.ExactArgs(1), func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid user id %q: %w", args[0], err)
		}
		user := model.UserKey{ID: id}
		return withStore(opts, func(s *model.Store, _ *zap.Logger) error {
			return inspectUser(cmd.OutOrStdout(), s, user, take)
		})
	})
	cmd.Flags().IntVar(&take, "take", 10, "number of entries to list per kind")
	return cmd
}

func inspectUser(w io.Writer, s *model.Store, user model.UserKey, take int) error {
	u, err := s.User(user)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "user %v\n", user)
	spewConfig.Fdump(w, u)

	gear, err := s.UserGear(user, 0, take)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "gear (%d):\n", gear.Total)
	for _, k := range gear.Items {
		g, err := s.Gear(k)
		if err != nil {
			return err
		}
		spewConfig.Fdump(w, g)
	}

	clients, err := s.UserClients(user, 0, take)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "clients (%d):\n", clients.Total)
	for _, k := range clients.Items {
		fmt.Fprintf(w, "  %v\n", k)
	}

	acts, err := s.Activities(user, 0, take, true)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "activities (%d shown, more: %v):\n", len(acts.Items), acts.HasNext())
	for _, k := range acts.Items {
		sess, err := s.Session(k)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  %v %s %.0fm\n", k.Start, sess.Sport, sess.Distance)
	}
	return nil
}

// NewCompactCommand creates the compact command.
func NewCompactCommand(opts *RootOptions) *cobra.Command {
	return newCommand("compact", "Reclaim space left by removed entries", cobra.NoArgs, func(cmd *cobra.Command, args []string) error {
		return withStore(opts, func(s *model.Store, _ *zap.Logger) error {
			if err := s.Compact(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "compacted")
			return nil
		})
	})
}

// NewPurgeCommand creates the purge command.
func NewPurgeCommand(opts *RootOptions) *cobra.Command {
	return newCommand("purge", "Delete entries orphaned by removed owners", cobra.NoArgs, func(cmd *cobra.Command, args []string) error {
		return withStore(opts, func(s *model.Store, _ *zap.Logger) error {
			r, err := s.PurgeOrphans(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged: gear=%d sessions=%d clients=%d records=%d laps=%d gear_links=%d total=%d\n",
				r.Gear, r.Sessions, r.Clients, r.Records, r.Laps, r.GearLinks, r.Total())
			return nil
		})
	})
}

// NewDeleteUserCommand creates the delete-user command.
func NewDeleteUserCommand(opts *RootOptions) *cobra.Command {
	return newCommand("delete-user <user-id>", "Delete a user; owned entries become invisible until purged", cobra.ExactArgs(1), func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid user id %q: %w", args[0], err)
		}
		return withStore(opts, func(s *model.Store, logger *zap.Logger) error {
			if err := s.DeleteUser(model.UserKey{ID: id}); err != nil {
				return err
			}
			logger.Info("user deleted", zap.Stringer("user", id))
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %v\n", id)
			return nil
		})
	})
}

// NewJournalCommand creates the journal command.
func NewJournalCommand(opts *RootOptions) *cobra.Command {
	var summary bool
	cmd := newCommand("journal [dir]", "List the entries recorded by purges", cobra.MaximumNArgs(1), func(cmd *cobra.Command, args []string) error {
		cfg, err := opts.loadConfig()
		if err != nil {
			return err
		}
		dir := cfg.Database.PurgeJournal
		if len(args) > 0 {
			dir = args[0]
		}
		if dir == "" {
			return fmt.Errorf("no journal directory: pass one or set database.purge_journal")
		}
		logger, closeLog, err := logging.New(cfg.Log)
		if err != nil {
			return err
		}
		defer closeLog()
		return listJournal(cmd.OutOrStdout(), dir, journalOptions(logger), summary)
	})
	cmd.Flags().BoolVar(&summary, "summary", false, "print entry counts per region only")
	return cmd
}

func listJournal(w io.Writer, dir string, o journal.Options, summary bool) error {
	counts := make(map[string]int)
	var regions []string
	var n int
	err := journal.Read(dir, o, func(e journal.Entry) error {
		if counts[e.Region] == 0 {
			regions = append(regions, e.Region)
		}
		counts[e.Region]++
		n++
		if !summary {
			fmt.Fprintf(w, "%s %-18s %x (%d bytes)\n", e.Time.Format(time.RFC3339), e.Region, e.Key, len(e.Value))
		}
		return nil
	})
	if err != nil {
		return err
	}
	if summary {
		sort.Strings(regions)
		for _, r := range regions {
			fmt.Fprintf(w, "%-18s %6d\n", r, counts[r])
		}
	}
	fmt.Fprintf(w, "%d entries\n", n)
	return nil
}
