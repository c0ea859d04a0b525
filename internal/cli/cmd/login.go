package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var loginPassword string

var loginCmd = &cobra.Command{
	Use:   "login <username>",
	Short: "Fetch an access token from the gateway",
	Long:  `Exchange a username and password for a bearer token via POST /token. Export the result as TOURNAMENT_TOKEN for other tools.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		plain := loginPassword
		if plain == "" {
			var err error
			if plain, err = passwordArg(cmd.InOrStdin(), nil); err != nil {
				return err
			}
		}

		form := url.Values{"username": {args[0]}, "password": {plain}}
		req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost,
			strings.TrimRight(serverURL, "/")+"/token", strings.NewReader(form.Encode()))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		client := &http.Client{Timeout: 15 * time.Second}
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("sending request: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("login failed (%s): %s", resp.Status, strings.TrimSpace(string(body)))
		}

		var prettyJSON bytes.Buffer
		if err := json.Indent(&prettyJSON, body, "", "  "); err != nil {
			fmt.Fprintln(cmd.OutOrStdout(), string(body))
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), prettyJSON.String())
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "password; read from stdin when empty")
	rootCmd.AddCommand(loginCmd)
}
