// Package export renders chats and full account data into portable formats
// (JSON, CSV, plain text, Markdown). Writers stream straight to the response
// body; none of them buffer the whole chat in memory beyond the message slice
// the caller already holds.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/domain"
)

// Format names accepted by the chat export endpoint.
const (
	FormatJSON     = "json"
	FormatCSV      = "csv"
	FormatText     = "txt"
	FormatMarkdown = "md"
)

// ContentType maps a format to its response media type.
func ContentType(format string) string {
	switch format {
	case FormatJSON:
		return "application/json; charset=utf-8"
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

// ValidFormat reports whether format names a supported export encoding.
func ValidFormat(format string) bool {
	switch format {
	case FormatJSON, FormatCSV, FormatText, FormatMarkdown:
		return true
	}
	return false
}

// chatEnvelope is the JSON export shape.
type chatEnvelope struct {
	Chat       *domain.Chat     `json:"chat"`
	Messages   []domain.Message `json:"messages"`
	ExportedAt time.Time        `json:"exported_at"`
}

// WriteChat renders a chat in the requested format.
func WriteChat(w io.Writer, format string, chat *domain.Chat, msgs []domain.Message) error {
	switch format {
	case FormatJSON:
		return writeChatJSON(w, chat, msgs)
	case FormatCSV:
		return writeChatCSV(w, msgs)
	case FormatMarkdown:
		return writeChatMarkdown(w, chat, msgs)
	default:
		return writeChatText(w, chat, msgs)
	}
}

func writeChatJSON(w io.Writer, chat *domain.Chat, msgs []domain.Message) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(chatEnvelope{Chat: chat, Messages: msgs, ExportedAt: time.Now().UTC()})
}

func writeChatCSV(w io.Writer, msgs []domain.Message) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"seq", "role", "content", "model", "token_count", "edited", "created_at"}); err != nil {
		return err
	}
	for _, m := range msgs {
		rec := []string{
			strconv.FormatInt(m.Seq, 10),
			m.Role,
			m.Content,
			m.Model,
			strconv.Itoa(m.TokenCount),
			strconv.FormatBool(m.Edited),
			m.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeChatText(w io.Writer, chat *domain.Chat, msgs []domain.Message) error {
	if _, err := fmt.Fprintf(w, "%s\n\n", chat.Title); err != nil {
		return err
	}
	for _, m := range msgs {
		if _, err := fmt.Fprintf(w, "[%s] %s\n%s\n\n",
			m.CreatedAt.UTC().Format(time.RFC3339), m.Role, m.Content); err != nil {
			return err
		}
	}
	return nil
}

// writeChatMarkdown renders the chat as a document. The stated message count
// always reflects the exported slice, not the chat's denormalized counter.
func writeChatMarkdown(w io.Writer, chat *domain.Chat, msgs []domain.Message) error {
	if _, err := fmt.Fprintf(w, "# %s\n\n", chat.Title); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "- Model: %s\n- Language: %s\n- Messages: %d\n- Exported: %s\n\n",
		chat.Model, chat.Language, len(msgs), time.Now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	for _, m := range msgs {
		header := "**You**"
		if m.Role == domain.RoleAssistant {
			header = "**Assistant**"
			if m.Model != "" {
				header = fmt.Sprintf("**Assistant** (%s)", m.Model)
			}
		} else if m.Role == domain.RoleSystem {
			header = "**System**"
		}
		edited := ""
		if m.Edited {
			edited = " _(edited)_"
		}
		if _, err := fmt.Fprintf(w, "%s — %s%s\n\n%s\n\n---\n\n",
			header, m.CreatedAt.UTC().Format("2006-01-02 15:04"), edited, m.Content); err != nil {
			return err
		}
	}
	return nil
}

// userEnvelope is the full account export shape.
type userEnvelope struct {
	User       *domain.User        `json:"user"`
	Chats      []ChatWithMessages  `json:"chats"`
	Summary    *domain.UserSummary `json:"summary,omitempty"`
	ExportedAt time.Time           `json:"exported_at"`
}

// ChatWithMessages pairs a chat with its full message history.
type ChatWithMessages struct {
	Chat     domain.Chat      `json:"chat"`
	Messages []domain.Message `json:"messages"`
}

// WriteUserData renders everything the account owns as a single JSON document.
func WriteUserData(w io.Writer, user *domain.User, chats []ChatWithMessages, summary *domain.UserSummary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(userEnvelope{
		User:       user,
		Chats:      chats,
		Summary:    summary,
		ExportedAt: time.Now().UTC(),
	})
}
