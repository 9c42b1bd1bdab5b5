package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tyrowin/roomchat/internal/server"
)

func newViewsCmd(serverURL *string) *cobra.Command {
	return &cobra.Command{
		Use:   "views",
		Short: "Print how many chat messages the server has relayed",
		RunE: func(cmd *cobra.Command, args []string) error {
			count, err := fetchViews(cmd.Context(), *serverURL)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), count)
			return nil
		},
	}
}

func fetchViews(ctx context.Context, base string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	endpoint := strings.TrimSuffix(base, "/") + server.RoutePrefix + "/views"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("get %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("get %s: unexpected status %d", endpoint, resp.StatusCode)
	}
	return strings.TrimSpace(string(body)), nil
}
