// Command kube-mcp-client is a small MCP client for exercising a running
// kube-mcp server over streamable HTTP.
//
//	kube-mcp-client --server http://localhost:8084/mcp list-tools
//	kube-mcp-client --server http://localhost:8084/mcp call-tool cluster_list
//	kube-mcp-client --server http://localhost:8084/mcp call-tool k8s_get_resources --args '{"resource_type":"pods","output_mode":"compact"}'
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cobra"

	"github.com/kagent-dev/kube-mcp/internal/version"
)

var (
	serverURL string
	toolArgs  string
	timeout   time.Duration
)

var rootCmd = &cobra.Command{
	Use:          "kube-mcp-client",
	Short:        "Call tools on a kube-mcp server",
	SilenceUsage: true,
}

var listToolsCmd = &cobra.Command{
	Use:   "list-tools",
	Short: "List available tools",
	Args:  cobra.NoArgs,
	RunE: func(command *cobra.Command, _ []string) error {
		return withClient(command.Context(), func(ctx context.Context, c *client.Client) error {
			result, err := c.ListTools(ctx, mcp.ListToolsRequest{})
			if err != nil {
				return fmt.Errorf("list tools: %w", err)
			}
			sort.Slice(result.Tools, func(i, j int) bool { return result.Tools[i].Name < result.Tools[j].Name })
			for _, tool := range result.Tools {
				fmt.Printf("%-35s %s\n", tool.Name, tool.Description)
			}
			return nil
		})
	},
}

var callToolCmd = &cobra.Command{
	Use:   "call-tool <tool-name>",
	Short: "Call a tool with JSON arguments",
	Args:  cobra.ExactArgs(1),
	RunE: func(command *cobra.Command, args []string) error {
		var arguments map[string]any
		if err := json.Unmarshal([]byte(toolArgs), &arguments); err != nil {
			return fmt.Errorf("--args must be a JSON object: %w", err)
		}

		return withClient(command.Context(), func(ctx context.Context, c *client.Client) error {
			request := mcp.CallToolRequest{}
			request.Params.Name = args[0]
			request.Params.Arguments = arguments

			result, err := c.CallTool(ctx, request)
			if err != nil {
				return fmt.Errorf("call tool %s: %w", args[0], err)
			}
			for _, content := range result.Content {
				if text, ok := content.(mcp.TextContent); ok {
					fmt.Println(text.Text)
				}
			}
			if result.IsError {
				return fmt.Errorf("tool %s reported an error", args[0])
			}
			return nil
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8084/mcp", "MCP server endpoint")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 90*time.Second, "Overall request timeout")
	callToolCmd.Flags().StringVar(&toolArgs, "args", "{}", "Tool arguments as a JSON object")
	rootCmd.AddCommand(listToolsCmd, callToolCmd)
}

// withClient connects, initializes the session and hands the client to fn.
func withClient(parent context.Context, fn func(context.Context, *client.Client) error) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	httpTransport, err := transport.NewStreamableHTTP(serverURL)
	if err != nil {
		return fmt.Errorf("create HTTP transport: %w", err)
	}
	c := client.NewClient(httpTransport)
	defer func() { _ = c.Close() }()

	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("start client: %w", err)
	}

	initRequest := mcp.InitializeRequest{}
	initRequest.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initRequest.Params.ClientInfo = mcp.Implementation{
		Name:    "kube-mcp-client",
		Version: version.Version,
	}
	if _, err := c.Initialize(ctx, initRequest); err != nil {
		return fmt.Errorf("initialize session with %s: %w", serverURL, err)
	}

	return fn(ctx, c)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
