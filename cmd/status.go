package cmd

import (
	"fmt"
	"net/http"

	"github.com/labstack/gommon/bytes"
	"github.com/spf13/cobra"

	"github.com/TechinMama/RecipeForADisaster/internal/bridge"
	"github.com/TechinMama/RecipeForADisaster/internal/datastore"
	"github.com/TechinMama/RecipeForADisaster/internal/httpcache"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show upstream reachability, pending operations and cache usage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, log, err := setup(cmd)
		if err != nil {
			return err
		}

		store, err := datastore.OpenStore(cmd.Context(), settings, log)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		client := &http.Client{Timeout: settings.Connectivity.ProbeTimeout.Std()}
		online := bridge.NewMonitor(settings, client, nil, log).Probe(cmd.Context())

		ind := bridge.Indicator{
			Online:  online,
			Pending: store.CountPendingOperations(cmd.Context()),
		}

		var snapshots int64
		if settings.Cache.Snapshots {
			snapshots = httpcache.New(settings.Store.CacheDir(), log).SnapshotSize()
		}

		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "upstream:          %s (online: %t)\n", settings.Upstream, ind.Online)
		_, _ = fmt.Fprintf(out, "pending:           %d\n", ind.Pending)
		_, _ = fmt.Fprintf(out, "cached entities:   %d\n", store.CachedEntityCount(cmd.Context()))
		_, _ = fmt.Fprintf(out, "cache snapshots:   %s\n", bytes.Format(snapshots))
		_, _ = fmt.Fprintf(out, "status:            %s\n", bridge.StatusText(ind))
		return nil
	},
}
