// Package main is the stocky command-line client. It talks to a running
// stocky server over its HTTP API.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

var serverURL string

var rootCmd = &cobra.Command{
	Use:   "stocky",
	Short: "Portfolio tracker client",
	Long:  "Command-line client for the stocky portfolio tracking server.",
}

var buyCmd = &cobra.Command{
	Use:   "buy TICKER QUANTITY",
	Short: "Buy shares at the current market price",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		quantity, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("quantity must be an integer: %v", err)
		}
		return executeTrade("BUY", args[0], quantity)
	},
}

var sellCmd = &cobra.Command{
	Use:   "sell TICKER QUANTITY",
	Short: "Sell shares at the current market price",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		quantity, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("quantity must be an integer: %v", err)
		}
		return executeTrade("SELL", args[0], quantity)
	},
}

var portfolioCmd = &cobra.Command{
	Use:   "portfolio",
	Short: "Show open positions with live prices",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getAndPrint("/api/portfolio")
	},
}

var gainsCmd = &cobra.Command{
	Use:   "gains",
	Short: "Show realized and unrealized gains per ticker",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getAndPrint("/api/gains")
	},
}

var tradesCmd = &cobra.Command{
	Use:   "trades",
	Short: "Show recent trades",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return getAndPrint(fmt.Sprintf("/api/trades?limit=%d", limit))
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the portfolio worth time series",
	RunE: func(cmd *cobra.Command, args []string) error {
		rangeParam, _ := cmd.Flags().GetString("range")
		return getAndPrint("/api/history?range=" + rangeParam)
	},
}

func httpClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

// executeTrade posts a trade and prints the server's response.
func executeTrade(action, ticker string, quantity int64) error {
	body, err := json.Marshal(map[string]interface{}{
		"action":   action,
		"ticker":   ticker,
		"quantity": quantity,
	})
	if err != nil {
		return err
	}

	resp, err := httpClient().Post(serverURL+"/api/trade", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("request failed: %v", err)
	}
	defer resp.Body.Close()

	return printResponse(resp)
}

// getAndPrint fetches a path and pretty-prints the JSON response.
func getAndPrint(path string) error {
	resp, err := httpClient().Get(serverURL + path)
	if err != nil {
		return fmt.Errorf("request failed: %v", err)
	}
	defer resp.Body.Close()

	return printResponse(resp)
}

// printResponse pretty-prints the response body and returns an error for
// non-2xx statuses so the exit code reflects the outcome.
func printResponse(resp *http.Response) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %v", err)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		fmt.Println(string(data))
	} else {
		fmt.Println(pretty.String())
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return nil
}

func main() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Base URL of the stocky server")

	tradesCmd.Flags().Int("limit", 50, "Maximum number of trades to show")
	historyCmd.Flags().String("range", "1d", "Lookback window: 1h, 1d or 1w")

	rootCmd.AddCommand(buyCmd, sellCmd, portfolioCmd, gainsCmd, tradesCmd, historyCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
