// Package main provides a CLI for the drsplan server.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/r3labs/sse/v2"
	"github.com/spf13/cobra"

	"github.com/drsolutions/drsplan/pkg/auth"
	"github.com/drsolutions/drsplan/pkg/models"
	"github.com/drsolutions/drsplan/pkg/schema"
)

var (
	// Global flags
	serverURL  string
	token      string
	configPath string
)

// Config represents the CLI configuration
type Config struct {
	ServerURL string `json:"server_url"`
	Token     string `json:"token"`
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "drsplan-cli",
		Short: "drsplan CLI",
		Long:  "Command-line interface for managing recovery plans on a drsplan server",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if serverURL == "" || token == "" {
				loadConfig()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "Server URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "Bearer token")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")

	rootCmd.AddCommand(
		newConfigCmd(),
		newTokenCmd(),
		newAccountsCmd(),
		newApplicationsCmd(),
		newExecuteCmd(),
		newResultsCmd(),
	)
	return rootCmd
}

func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "CLI configuration",
	}
	configCmd.AddCommand(&cobra.Command{
		Use:   "save",
		Short: "Save --server and --token as defaults",
		Run: func(cmd *cobra.Command, args []string) {
			exitOnError(saveConfig(Config{ServerURL: serverURL, Token: token}))
			fmt.Printf("Configuration saved to %s\n", configPath)
		},
	})
	return configCmd
}

func newTokenCmd() *cobra.Command {
	var secret, subject, issuer string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token signed with the server's JWT secret",
		Run: func(cmd *cobra.Command, args []string) {
			signed, err := auth.NewTokenService(secret, issuer).GenerateToken(subject, ttl)
			exitOnError(err)
			fmt.Println(signed)
		},
	}
	cmd.Flags().StringVar(&secret, "secret", os.Getenv("DRSPLAN_JWT_SECRET"), "JWT secret")
	cmd.Flags().StringVar(&subject, "subject", "", "Token subject, recorded as the execution user")
	cmd.Flags().StringVar(&issuer, "issuer", "", "Token issuer")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "Token lifetime")
	cmd.MarkFlagRequired("subject")
	return cmd
}

func newAccountsCmd() *cobra.Command {
	accountsCmd := &cobra.Command{
		Use:   "accounts",
		Short: "Account management",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		Run: func(cmd *cobra.Command, args []string) {
			printResponse(client().do(http.MethodGet, "/accounts", nil))
		},
	}

	var account models.Account
	putCmd := &cobra.Command{
		Use:   "put",
		Short: "Create or update an account",
		Run: func(cmd *cobra.Command, args []string) {
			printResponse(client().do(http.MethodPut, "/accounts", map[string]interface{}{"account": account}))
		},
	}
	putCmd.Flags().StringVar(&account.AccountID, "id", "", "AWS account id")
	putCmd.Flags().StringVar(&account.Region, "region", "", "Default region")
	putCmd.MarkFlagRequired("id")

	deleteCmd := &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete an account",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			printResponse(client().do(http.MethodDelete, "/accounts", map[string]string{"AccountId": args[0]}))
		},
	}

	accountsCmd.AddCommand(listCmd, putCmd, deleteCmd)
	return accountsCmd
}

func newApplicationsCmd() *cobra.Command {
	applicationsCmd := &cobra.Command{
		Use:   "applications",
		Short: "Application and plan management",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List applications",
		Run: func(cmd *cobra.Command, args []string) {
			printResponse(client().do(http.MethodGet, "/applications", nil))
		},
	}

	var putFile string
	putCmd := &cobra.Command{
		Use:   "put",
		Short: "Create or update an application from a JSON or YAML file",
		Run: func(cmd *cobra.Command, args []string) {
			doc, err := readDocument(putFile)
			exitOnError(err)
			printResponse(client().do(http.MethodPut, "/applications", map[string]json.RawMessage{"application": doc}))
		},
	}
	putCmd.Flags().StringVarP(&putFile, "file", "f", "", "Application document")
	putCmd.MarkFlagRequired("file")

	deleteCmd := &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete an application",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			printResponse(client().do(http.MethodDelete, "/applications", map[string]string{"AppId": args[0]}))
		},
	}

	var validateFile string
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate an application document without saving it",
		Run: func(cmd *cobra.Command, args []string) {
			doc, err := readDocument(validateFile)
			exitOnError(err)
			validator, err := schema.NewValidator()
			exitOnError(err)
			exitOnError(validator.ValidateApplicationJSON(doc))
			fmt.Printf("%s is valid\n", validateFile)
		},
	}
	validateCmd.Flags().StringVarP(&validateFile, "file", "f", "", "Application document")
	validateCmd.MarkFlagRequired("file")

	applicationsCmd.AddCommand(listCmd, putCmd, deleteCmd, validateCmd)
	return applicationsCmd
}

func newExecuteCmd() *cobra.Command {
	var (
		appIDs []string
		plans  []int
		drill  bool
		topic  string
		user   string
	)

	cmd := &cobra.Command{
		Use:     "execute",
		Short:   "Start one recovery run over a batch of application plans",
		Example: "  drsplan-cli execute --app 3f2a... --plan 0 --app 9b1c... --plan 1 --drill",
		Run: func(cmd *cobra.Command, args []string) {
			c := client()
			apps, err := c.listApplications()
			exitOnError(err)

			targets, err := buildBatch(apps, appIDs, plans)
			exitOnError(err)

			printResponse(c.do(http.MethodPost, "/applications/execute", models.ExecuteRequest{
				Applications: targets,
				IsDrill:      drill,
				TopicARN:     topic,
				User:         user,
			}))
		},
	}
	cmd.Flags().StringArrayVar(&appIDs, "app", nil, "Application id (repeatable)")
	cmd.Flags().IntSliceVar(&plans, "plan", nil, "Plan index for the matching --app (repeatable)")
	cmd.Flags().BoolVar(&drill, "drill", false, "Run a drill instead of a failover")
	cmd.Flags().StringVar(&topic, "topic", "", "SNS topic ARN for notifications")
	cmd.Flags().StringVar(&user, "user", "", "User recorded on the run")
	return cmd
}

func newResultsCmd() *cobra.Command {
	resultsCmd := &cobra.Command{
		Use:   "results",
		Short: "Plan execution results",
	}

	var appID, planID string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the results of one application plan",
		Run: func(cmd *cobra.Command, args []string) {
			printResponse(client().do(http.MethodGet, resultsPath(appID, planID), nil))
		},
	}
	listCmd.Flags().StringVar(&appID, "app", "", "Application id")
	listCmd.Flags().StringVar(&planID, "plan", "", "Plan id")
	listCmd.MarkFlagRequired("app")
	listCmd.MarkFlagRequired("plan")

	var key, executionID string
	getCmd := &cobra.Command{
		Use:   "get",
		Short: "Get one result",
		Run: func(cmd *cobra.Command, args []string) {
			printResponse(client().do(http.MethodGet, resultPath("/result", key, executionID), nil))
		},
	}

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow a result until it completes or fails",
		Run: func(cmd *cobra.Command, args []string) {
			exitOnError(watchResult(client(), key, executionID))
		},
	}

	for _, c := range []*cobra.Command{getCmd, watchCmd} {
		c.Flags().StringVar(&key, "key", "", "AppId_PlanId")
		c.Flags().StringVar(&executionID, "execution", "", "Execution id")
		c.MarkFlagRequired("key")
		c.MarkFlagRequired("execution")
	}

	resultsCmd.AddCommand(listCmd, getCmd, watchCmd)
	return resultsCmd
}

// watchResult prints every streamed status change and returns once the result is final
func watchResult(c *apiClient, key, executionID string) error {
	stream := sse.NewClient(c.baseURL + resultPath("/result/stream", key, executionID))
	if c.token != "" {
		stream.Headers["Authorization"] = "Bearer " + c.token
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var streamErr error
	err := stream.SubscribeWithContext(ctx, "", func(msg *sse.Event) {
		printJSON(msg.Data)

		if string(msg.Event) == "error" {
			streamErr = fmt.Errorf("result stream failed: %s", msg.Data)
			cancel()
			return
		}
		var result models.Result
		if json.Unmarshal(msg.Data, &result) == nil && result.IsTerminal() {
			cancel()
		}
	})
	if err != nil && ctx.Err() == nil {
		return err
	}
	return streamErr
}

func client() *apiClient {
	if serverURL == "" {
		exitOnError(fmt.Errorf("server URL is required"))
	}
	return newAPIClient(serverURL, token)
}

// printResponse pretty prints a reply body or exits on error
func printResponse(body []byte, err error) {
	exitOnError(err)
	printJSON(body)
}

func printJSON(data []byte) {
	var prettyJSON bytes.Buffer
	if err := json.Indent(&prettyJSON, data, "", "  "); err != nil {
		fmt.Println(string(data))
		return
	}
	fmt.Println(prettyJSON.String())
}

func exitOnError(err error) {
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".drsplan", "cli.json")
}

// loadConfig fills unset global flags from the CLI configuration
func loadConfig() {
	if configPath == "" {
		configPath = defaultConfigPath()
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Printf("Warning: Failed to read config file: %v\n", err)
		}
		return
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		fmt.Printf("Warning: Failed to parse config file: %v\n", err)
		return
	}

	if serverURL == "" {
		serverURL = config.ServerURL
	}
	if token == "" {
		token = config.Token
	}
}

// saveConfig saves the CLI configuration
func saveConfig(config Config) error {
	if configPath == "" {
		configPath = defaultConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
