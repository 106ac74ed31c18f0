package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wpulier/twin/internal/config"
)

type twinView struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Bio              string          `json:"bio"`
	LetterboxdURL    string          `json:"letterboxd_url"`
	SpotifyConnected bool            `json:"spotify_connected"`
	Persona          json.RawMessage `json:"persona"`
	CreatedAt        string          `json:"created_at"`
}

type turnView struct {
	Seq       int64  `json:"seq"`
	Speaker   string `json:"speaker"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
}

// --- create ---

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a twin and synthesize its persona",
	Long: `Create a twin and synthesize its persona.

Examples:
  twin create --name "Will" --bio "I make short films" --letterboxd https://letterboxd.com/will/`,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		bio, _ := cmd.Flags().GetString("bio")
		letterboxdURL, _ := cmd.Flags().GetString("letterboxd")

		if name == "" {
			return fmt.Errorf("--name is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		ctx, cancel := withTimeout()
		defer cancel()

		printStep("Gathering profile data and synthesizing persona...")
		resp, err := client.post(ctx, "/twins", map[string]any{
			"name":           name,
			"bio":            bio,
			"letterboxd_url": letterboxdURL,
		})
		if err != nil {
			return err
		}

		var twin twinView
		if err := decodeJSON(resp, &twin); err != nil {
			return err
		}

		printSuccess("Created twin %s (%s)", twin.Name, twin.ID)
		return printPersona(twin.Persona)
	},
}

func init() {
	createCmd.Flags().String("name", "", "twin's name")
	createCmd.Flags().String("bio", "", "short bio text")
	createCmd.Flags().String("letterboxd", "", "Letterboxd profile URL or username")
}

// --- list / show / update ---

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List twins",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		ctx, cancel := withTimeout()
		defer cancel()

		resp, err := client.get(ctx, "/twins")
		if err != nil {
			return err
		}

		var twins []twinView
		if err := decodeJSON(resp, &twins); err != nil {
			return err
		}

		if len(twins) == 0 {
			fmt.Println("No twins yet. Create one with: twin create --name ...")
			return nil
		}
		for _, t := range twins {
			spotify := ""
			if t.SpotifyConnected {
				spotify = "  [spotify]"
			}
			fmt.Printf("%s  %s%s\n", colorize(colorCyan, t.ID), t.Name, spotify)
		}
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a twin and its persona",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		ctx, cancel := withTimeout()
		defer cancel()

		resp, err := client.get(ctx, "/twins/"+args[0])
		if err != nil {
			return err
		}

		var twin twinView
		if err := decodeJSON(resp, &twin); err != nil {
			return err
		}

		printStatus("Name", "%s", twin.Name)
		if twin.Bio != "" {
			printStatus("Bio", "%s", twin.Bio)
		}
		if twin.LetterboxdURL != "" {
			printStatus("Letterboxd", "%s", twin.LetterboxdURL)
		}
		printStatus("Spotify", "%v", twin.SpotifyConnected)
		return printPersona(twin.Persona)
	},
}

var updateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update a twin's bio or Letterboxd profile and rebuild its persona",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]any{}
		if cmd.Flags().Changed("bio") {
			bio, _ := cmd.Flags().GetString("bio")
			body["bio"] = bio
		}
		if cmd.Flags().Changed("letterboxd") {
			lb, _ := cmd.Flags().GetString("letterboxd")
			body["letterboxd_url"] = lb
		}
		if len(body) == 0 {
			return fmt.Errorf("nothing to update: pass --bio or --letterboxd")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		ctx, cancel := withTimeout()
		defer cancel()

		printStep("Rebuilding persona...")
		resp, err := client.patch(ctx, "/twins/"+args[0], body)
		if err != nil {
			return err
		}

		var twin twinView
		if err := decodeJSON(resp, &twin); err != nil {
			return err
		}

		printSuccess("Updated twin %s", twin.Name)
		return printPersona(twin.Persona)
	},
}

func init() {
	updateCmd.Flags().String("bio", "", "new bio text")
	updateCmd.Flags().String("letterboxd", "", "new Letterboxd profile URL (empty to disconnect)")
}

func printPersona(raw json.RawMessage) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var p struct {
		Interests          []string `json:"interests"`
		Style              string   `json:"style"`
		Traits             []string `json:"traits"`
		PersonalityInsight string   `json:"personality_insight"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("unreadable persona: %w", err)
	}
	fmt.Println()
	printStatus("Interests", "%s", strings.Join(p.Interests, ", "))
	printStatus("Traits", "%s", strings.Join(p.Traits, ", "))
	printStatus("Style", "%s", p.Style)
	fmt.Printf("\n%s\n", p.PersonalityInsight)
	return nil
}

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat <id> [message]",
	Short: "Chat with a twin",
	Long: `Chat with a twin. With a message argument, sends it and streams the
reply. Without one, starts an interactive session (exit with ctrl-d).`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		twinID := args[0]

		if len(args) > 1 {
			return sendChat(cmd, client, twinID, strings.Join(args[1:], " "))
		}

		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Fprint(os.Stderr, colorize(colorBold, "> "))
			if !scanner.Scan() {
				fmt.Fprintln(os.Stderr)
				return scanner.Err()
			}
			message := strings.TrimSpace(scanner.Text())
			if message == "" {
				continue
			}
			if err := sendChat(cmd, client, twinID, message); err != nil {
				printError("%v", err)
			}
		}
	},
}

// sendChat posts a message and streams the reply to stdout. The first
// response line is the persisted user turn; everything after it is reply
// text written as it arrives.
func sendChat(cmd *cobra.Command, client *apiClient, twinID, message string) error {
	resp, err := client.post(cmd.Context(), "/twins/"+twinID+"/chat", map[string]any{
		"message": message,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}

	reader := bufio.NewReader(resp.Body)
	if _, err := reader.ReadString('\n'); err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	buf := make([]byte, 4096)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			os.Stdout.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("stream broke: %w", err)
		}
	}
	fmt.Println()
	return nil
}

// --- messages ---

var messagesCmd = &cobra.Command{
	Use:   "messages <id>",
	Short: "Show a twin's conversation log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		ctx, cancel := withTimeout()
		defer cancel()

		resp, err := client.get(ctx, "/twins/"+args[0]+"/messages")
		if err != nil {
			return err
		}

		var turns []turnView
		if err := decodeJSON(resp, &turns); err != nil {
			return err
		}

		if len(turns) == 0 {
			fmt.Println("No messages yet.")
			return nil
		}
		for _, t := range turns {
			label := "you"
			color := colorCyan
			if t.Speaker == "twin" {
				label = "twin"
				color = colorGreen
			}
			fmt.Printf("%s %s\n", colorize(color, label+":"), t.Text)
		}
		return nil
	},
}

// --- spotify ---

var spotifyCmd = &cobra.Command{
	Use:   "spotify <id>",
	Short: "Print the URL that connects a twin's Spotify account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		ctx, cancel := withTimeout()
		defer cancel()

		resp, err := client.get(ctx, "/auth/spotify/url?twin_id="+args[0])
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Println(result["url"])
		printStep("Open the URL in a browser; the persona rebuilds once Spotify is connected.")
		return nil
	},
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
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
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
