package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kalambet/outing/internal/config"
	"github.com/kalambet/outing/internal/storage"
)

// --- chat ---

type chatReply struct {
	Response    string `json:"response"`
	ToolResults []struct {
		Tool string `json:"tool"`
	} `json:"tool_results"`
	ConversationID      string `json:"conversation_id"`
	SkippedToolsMessage string `json:"skipped_tools_message"`
	Error               *struct {
		Message string `json:"message"`
	} `json:"error"`
}

var chatCmd = &cobra.Command{
	Use:   "chat <message>",
	Short: "Send a message to the assistant",
	Long: `Send a message to the assistant and print its reply.

Examples:
  outing chat "find me something fun near Prospect Park tonight"
  outing chat --user alice --conversation 6f1c... "what about tomorrow?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		conversation, _ := cmd.Flags().GetString("conversation")
		if conversation == "" {
			conversation = uuid.NewString()
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		reply, err := sendChat(cmd.Context(), client, strings.Join(args, " "), user, conversation)
		if err != nil {
			return err
		}
		printReply(reply)
		if reply.Error != nil {
			return fmt.Errorf("chat failed: %s", reply.Error.Message)
		}
		return nil
	},
}

// sendChat posts one message. Failed loop runs still carry a reply body,
// so non-2xx responses are decoded rather than turned into errors.
func sendChat(ctx context.Context, client *apiClient, message, user, conversation string) (chatReply, error) {
	body := map[string]string{"message": message}
	if user != "" {
		body["user_id"] = user
	}
	if conversation != "" {
		body["conversation_id"] = conversation
	}

	resp, err := client.post(ctx, "/api/chat", body)
	if err != nil {
		return chatReply{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return chatReply{}, fmt.Errorf("reading reply: %w", err)
	}
	var reply chatReply
	if err := json.Unmarshal(data, &reply); err != nil || (reply.Response == "" && resp.StatusCode >= 400) {
		return chatReply{}, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return reply, nil
}

func printReply(r chatReply) {
	fmt.Fprintln(stdout, r.Response)

	if len(r.ToolResults) > 0 {
		names := make([]string, len(r.ToolResults))
		for i, tr := range r.ToolResults {
			names[i] = tr.Tool
		}
		fmt.Fprintln(stdout, colorize(colorDim, "tools: "+strings.Join(names, ", ")))
	}
	if r.SkippedToolsMessage != "" {
		printWarning("%s", r.SkippedToolsMessage)
	}
	if r.ConversationID != "" {
		fmt.Fprintln(stdout, colorize(colorDim, "conversation: "+r.ConversationID))
	}
}

func init() {
	chatCmd.Flags().String("user", "", "user id (server default: \"default\")")
	chatCmd.Flags().String("conversation", "", "continue a saved conversation (default: start a new one)")
}

// --- prefs ---

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Show or update user preferences",
}

var prefsShowCmd = &cobra.Command{
	Use:   "show [user]",
	Short: "Show a user's preferences as JSON",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/preferences/"+url.PathEscape(userArg(args)))
		if err != nil {
			return err
		}
		var prefs storage.Preferences
		if err := decodeJSON(resp, &prefs); err != nil {
			return err
		}
		return printJSON(prefs)
	},
}

var prefsSetCmd = &cobra.Command{
	Use:   "set [user]",
	Short: "Update a user's preferences",
	Long: `Update a user's preferences. Only the given flags change.

Examples:
  outing prefs set alice --location "Astoria, Queens" --interests music,food
  outing prefs set --budget-max 40`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		patch, err := preferencePatch(cmd)
		if err != nil {
			return err
		}
		if len(patch) == 0 {
			return fmt.Errorf("nothing to update: pass at least one of --location, --interests, --budget-min, --budget-max")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		user := userArg(args)
		resp, err := client.put(cmd.Context(), "/api/preferences/"+url.PathEscape(user), patch)
		if err != nil {
			return err
		}
		var prefs storage.Preferences
		if err := decodeJSON(resp, &prefs); err != nil {
			return err
		}
		printSuccess("Updated preferences for %s", user)
		return printJSON(prefs)
	},
}

func userArg(args []string) string {
	if len(args) > 0 && args[0] != "" {
		return args[0]
	}
	return "default"
}

// preferencePatch builds a partial update from the flags that were set.
func preferencePatch(cmd *cobra.Command) (map[string]any, error) {
	flags := cmd.Flags()
	patch := map[string]any{}

	if flags.Changed("location") {
		v, _ := flags.GetString("location")
		patch["location"] = v
	}
	if flags.Changed("interests") {
		v, _ := flags.GetString("interests")
		interests := []string{}
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				interests = append(interests, p)
			}
		}
		patch["interests"] = interests
	}
	for _, name := range []string{"budget-min", "budget-max"} {
		if !flags.Changed(name) {
			continue
		}
		v, err := flags.GetFloat64(name)
		if err != nil {
			return nil, err
		}
		if v < 0 {
			return nil, fmt.Errorf("--%s must not be negative", name)
		}
		patch[strings.ReplaceAll(name, "-", "_")] = v
	}
	return patch, nil
}

func addPreferenceFlags(cmd *cobra.Command) {
	cmd.Flags().String("location", "", "preferred location (city, neighborhood, ...)")
	cmd.Flags().String("interests", "", "comma-separated interests; empty clears them")
	cmd.Flags().Float64("budget-min", 0, "minimum budget in dollars")
	cmd.Flags().Float64("budget-max", 0, "maximum budget in dollars")
}

func init() {
	addPreferenceFlags(prefsSetCmd)
	prefsCmd.AddCommand(prefsShowCmd)
	prefsCmd.AddCommand(prefsSetCmd)
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Manage saved conversations",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved conversations, most recent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/chat-history")
		if err != nil {
			return err
		}
		var list []storage.ChatHistorySummary
		if err := decodeJSON(resp, &list); err != nil {
			return err
		}

		if len(list) == 0 {
			fmt.Fprintln(stdout, "No saved conversations.")
			return nil
		}
		for _, h := range list {
			fmt.Fprintf(stdout, "%s  %s  %3d  %s\n",
				colorize(colorCyan, h.ID),
				h.UpdatedAt.Local().Format("2006-01-02 15:04"),
				h.MessageCount,
				shorten(h.Title, 60),
			)
		}
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a saved conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/chat-history/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var h storage.ChatHistory
		if err := decodeJSON(resp, &h); err != nil {
			return err
		}

		if asJSON {
			return printJSON(h)
		}
		printTranscript(h)
		return nil
	},
}

// printTranscript prints user and assistant text. Tool turns are shown as
// a single dimmed line.
func printTranscript(h storage.ChatHistory) {
	fmt.Fprintln(stdout, colorize(colorBold, h.Title))
	for _, m := range h.Messages {
		switch {
		case m.Role == "tool":
			fmt.Fprintln(stdout, colorize(colorDim, "  [tool result] "+shorten(m.Content, 80)))
		case len(m.ToolCalls) > 0 && m.Content == "":
			fmt.Fprintln(stdout, colorize(colorDim, "  [tool calls]"))
		default:
			fmt.Fprintf(stdout, "%s %s\n", colorize(colorCyan, m.Role+":"), m.Content)
		}
	}
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a saved conversation, or all with --all",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		if all == (len(args) == 1) {
			return fmt.Errorf("pass either a conversation id or --all")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := "/api/chat-history"
		if !all {
			path += "/" + url.PathEscape(args[0])
		}
		resp, err := client.delete(cmd.Context(), path)
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("%s", result["message"])
		return nil
	},
}

func init() {
	historyShowCmd.Flags().Bool("json", false, "print the raw stored messages")
	historyDeleteCmd.Flags().Bool("all", false, "delete every saved conversation")
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyDeleteCmd)
}

// --- scrape ---

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Queue an activity cache refresh",
	RunE: func(cmd *cobra.Command, args []string) error {
		statusOnly, _ := cmd.Flags().GetBool("status")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		if !statusOnly {
			resp, err := client.post(cmd.Context(), "/api/scrape", nil)
			if err != nil {
				return err
			}
			if err := decodeJSON(resp, nil); err != nil {
				return err
			}
			printSuccess("Scrape queued")
		}

		stats, err := fetchScrapeStats(cmd.Context(), client)
		if err != nil {
			return err
		}
		printStats(stats)
		return nil
	},
}

func init() {
	scrapeCmd.Flags().Bool("status", false, "only show the cache status")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadClient()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(stdout, "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
