package commands

import (
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(loginCmd, creditsCmd, pilesCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Signs in and stores the session cookies.",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, res, err := signIn(cmd.Context())
		if err != nil {
			return err
		}
		if res.Shortcut {
			cmd.Println("already signed in, cookies are still valid")
			return nil
		}
		return printJSON(cmd, map[string]any{
			"persona":   res.UserInfo.Auth.PersonaID,
			"credits":   res.UserInfo.Credits,
			"tradepile": res.UserInfo.TradepileSize,
			"watchlist": res.UserInfo.WatchlistSize,
		})
	},
}

var creditsCmd = &cobra.Command{
	Use:   "credits",
	Short: "Prints the coin balance.",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := session(cmd.Context())
		if err != nil {
			return err
		}
		credits, err := client.Credits()
		if err != nil {
			return err
		}
		return printJSON(cmd, map[string]int64{"credits": credits})
	},
}

var pilesCmd = &cobra.Command{
	Use:   "piles",
	Short: "Prints the tradepile and watchlist sizes.",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := session(cmd.Context())
		if err != nil {
			return err
		}
		sizes, err := client.PileSize()
		if err != nil {
			return err
		}
		return printJSON(cmd, sizes)
	},
}
