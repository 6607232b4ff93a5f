package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/samsaffron/chatstream/internal/exitcode"
	"github.com/samsaffron/chatstream/internal/store"
)

var chatsSession string

var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "Inspect persisted conversations",
	Long: `List, search, show and delete conversations in the chat database.

Examples:
  chatstream chats                        # List chats for the default session
  chatstream chats list --session web
  chatstream chats search "deploy"
  chatstream chats show 12
  chatstream chats delete 12`,
	RunE: runChatsList,
}

var chatsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List chats",
	RunE:  runChatsList,
}

var chatsSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search chat messages",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runChatsSearch,
}

var chatsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a chat and its messages",
	Args:  cobra.ExactArgs(1),
	RunE:  runChatsShow,
}

var chatsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a chat",
	Args:  cobra.ExactArgs(1),
	RunE:  runChatsDelete,
}

func init() {
	chatsCmd.PersistentFlags().StringVar(&chatsSession, "session", "default", "Session key")
	chatsCmd.AddCommand(chatsListCmd, chatsSearchCmd, chatsShowCmd, chatsDeleteCmd)
	rootCmd.AddCommand(chatsCmd)
}

func openChatStore() (store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.Storage.Enabled {
		return nil, exitcode.BadUsage("storage is disabled (storage.enabled=false)")
	}
	return openStore(cfg)
}

func parseChatID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, exitcode.BadUsage(fmt.Sprintf("invalid chat id %q", arg))
	}
	return id, nil
}

func runChatsList(cmd *cobra.Command, args []string) error {
	st, err := openChatStore()
	if err != nil {
		return err
	}
	defer st.Close()

	chats, err := st.ListConversations(cmd.Context(), chatsSession)
	if err != nil {
		return err
	}
	if len(chats) == 0 {
		fmt.Printf("No chats for session '%s'\n", chatsSession)
		return nil
	}

	fmt.Printf("%-6s %-9s %-20s %s\n", "ID", "Messages", "Updated", "Title")
	for _, c := range chats {
		fmt.Printf("%-6d %-9d %-20s %s\n", c.ID, c.MessageCount, c.UpdatedAt.Local().Format("2006-01-02 15:04"), c.Title)
	}
	return nil
}

func runChatsSearch(cmd *cobra.Command, args []string) error {
	st, err := openChatStore()
	if err != nil {
		return err
	}
	defer st.Close()

	query := strings.Join(args, " ")
	results, err := st.Search(cmd.Context(), chatsSession, query, 20)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Printf("No results found for '%s'\n", query)
		return nil
	}

	fmt.Printf("Found %d matches for '%s':\n\n", len(results), query)
	for _, r := range results {
		fmt.Printf("**%s** (#%d, %s)\n", r.Title, r.ConversationID, r.Role)
		fmt.Printf("  %s\n\n", r.Snippet)
	}
	return nil
}

func runChatsShow(cmd *cobra.Command, args []string) error {
	id, err := parseChatID(args[0])
	if err != nil {
		return err
	}
	st, err := openChatStore()
	if err != nil {
		return err
	}
	defer st.Close()

	conv, err := st.GetConversation(cmd.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		return exitcode.Missing(fmt.Sprintf("chat %d not found", id))
	}
	if err != nil {
		return err
	}
	messages, err := st.Messages(cmd.Context(), id, 0)
	if err != nil {
		return err
	}

	fmt.Printf("Chat: %d\n", conv.ID)
	fmt.Printf("Title: %s\n", conv.Title)
	fmt.Printf("Session: %s\n", conv.SessionKey)
	fmt.Printf("Created: %s\n", conv.CreatedAt.Format(time.RFC3339))
	fmt.Printf("Updated: %s\n", conv.UpdatedAt.Format(time.RFC3339))
	fmt.Printf("Messages: %d\n\n", len(messages))
	for _, m := range messages {
		role := "❯"
		if m.Role == store.RoleAssistant {
			role = "🤖"
		}
		fmt.Printf("%s %s\n\n", role, m.Content)
	}
	return nil
}

func runChatsDelete(cmd *cobra.Command, args []string) error {
	id, err := parseChatID(args[0])
	if err != nil {
		return err
	}
	st, err := openChatStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.DeleteConversation(cmd.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return exitcode.Missing(fmt.Sprintf("chat %d not found", id))
		}
		return err
	}
	fmt.Printf("Deleted chat: %d\n", id)
	return nil
}
