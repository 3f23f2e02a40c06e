// Package main provides bailoctl, an operator CLI for the Bailo approval
// API. It communicates with the bailo-server HTTP API.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var (
	version = "dev"

	serverURL string
	userFlag  string
	outputFmt string
)

// apiClient wraps an HTTP client and the server base URL.
type apiClient struct {
	baseURL    string
	httpClient *http.Client
}

func newClient() *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(serverURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// doRequest performs an HTTP request and returns the response body bytes.
func (c *apiClient) doRequest(method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if userFlag != "" {
		req.Header.Set("X-Remote-User", userFlag)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connecting to server at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(respBody, &errResp) == nil {
			if errResp.Error != "" {
				return nil, fmt.Errorf("server error (%d): %s", resp.StatusCode, errResp.Error)
			}
			if errResp.Message != "" {
				return nil, fmt.Errorf("server error (%d): %s", resp.StatusCode, errResp.Message)
			}
		}
		return nil, fmt.Errorf("server error (%d): %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

// getJSON fetches path and decodes the JSON body into out.
func (c *apiClient) getJSON(path string, out any) error {
	body, err := c.doRequest(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

// postJSON posts a JSON body to path and decodes the response into out.
func (c *apiClient) postJSON(path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	respBody, err := c.doRequest(http.MethodPost, path, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

// printOutput renders a value as indented JSON.
func printOutput(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// printTable renders rows in aligned columns.
func printTable(headers []string, rows [][]string) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(headers, "\t"))
	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	_ = w.Flush()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func main() {
	rootCmd := &cobra.Command{
		Use:     "bailoctl",
		Short:   "CLI for the Bailo approval workflow API",
		Version: version,
		Long: `bailoctl is a command-line tool for working with Bailo approvals.

It provides commands for listing pending reviews, inspecting individual
approvals, and submitting reviewer decisions.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Bailo server URL")
	rootCmd.PersistentFlags().StringVar(&userFlag, "user", "", "Acting user; sets the X-Remote-User header")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "Output format: table, json")

	rootCmd.AddCommand(approvalsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
