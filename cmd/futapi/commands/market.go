package commands

import (
	"futapi"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var search futapi.SearchParams

func init() {
	flags := searchCmd.Flags()
	flags.StringVar(&search.CardType, "type", "player", "card type")
	flags.StringVar(&search.Level, "level", "", "gold, silver or bronze")
	flags.StringVar(&search.Position, "position", "", "player position")
	flags.Int64Var(&search.DefID, "def-id", 0, "definition id")
	flags.Int64Var(&search.AssetID, "asset-id", 0, "asset id")
	flags.Int64Var(&search.League, "league", 0, "league id")
	flags.Int64Var(&search.Club, "club", 0, "club id")
	flags.Int64Var(&search.Nationality, "nationality", 0, "nation id")
	flags.Int64Var(&search.MinBuy, "min-buy", 0, "minimum buy now price")
	flags.Int64Var(&search.MaxBuy, "max-buy", 0, "maximum buy now price")
	flags.Int64Var(&search.MinPrice, "min-bid", 0, "minimum bid")
	flags.Int64Var(&search.MaxPrice, "max-bid", 0, "maximum bid")
	flags.BoolVar(&search.Rare, "rare", false, "only special cards")
	flags.IntVar(&search.Start, "start", 0, "result offset")
	flags.IntVar(&search.PageSize, "page-size", 21, "results per page")

	rootCmd.AddCommand(searchCmd, tradepileCmd, watchlistCmd, unassignedCmd, relistCmd, clearSoldCmd)
}

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Searches the transfer market.",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := session(cmd.Context())
		if err != nil {
			return err
		}
		results, err := client.Search(cmd.Context(), search)
		if err != nil {
			return err
		}
		return printJSON(cmd, results)
	},
}

var tradepileCmd = &cobra.Command{
	Use:   "tradepile",
	Short: "Lists the tradepile.",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := session(cmd.Context())
		if err != nil {
			return err
		}
		res, err := client.Tradepile(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd, res)
	},
}

var watchlistCmd = &cobra.Command{
	Use:   "watchlist",
	Short: "Lists watched trades.",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := session(cmd.Context())
		if err != nil {
			return err
		}
		res, err := client.Watchlist(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd, res)
	},
}

var unassignedCmd = &cobra.Command{
	Use:   "unassigned",
	Short: "Lists purchased items waiting for a pile.",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := session(cmd.Context())
		if err != nil {
			return err
		}
		res, err := client.Unassigned(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd, res)
	},
}

var relistCmd = &cobra.Command{
	Use:   "relist",
	Short: "Relists every expired tradepile item.",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := session(cmd.Context())
		if err != nil {
			return err
		}
		res, err := client.Relist(cmd.Context())
		if err != nil {
			return err
		}
		if res == nil {
			logger.Info("nothing to relist")
			return nil
		}
		return printJSON(cmd, res)
	},
}

var clearSoldCmd = &cobra.Command{
	Use:   "clear-sold",
	Short: "Removes sold items from the tradepile.",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := session(cmd.Context())
		if err != nil {
			return err
		}
		if err := client.TradepileClear(cmd.Context()); err != nil {
			return err
		}
		logger.Info("sold items cleared", zap.String("platform", client.Platform().Name))
		return nil
	},
}
