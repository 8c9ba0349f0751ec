// Package prompt assembles the model context from document, knowledge, selection, and instructions.
package prompt

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// MaxDocumentChars caps the document body in characters (runes).
const MaxDocumentChars = 50000

// TruncationMarker is appended to a document body cut at MaxDocumentChars.
const TruncationMarker = "\n\n[Document truncated: only the first 50,000 characters are shown.]"

const emptyDocument = "(Empty document)"

// Roles used in assembled messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// KnowledgeItem is one reference snippet.
type KnowledgeItem struct {
	Title   string
	Content string
}

// Turn is one prior conversation message.
type Turn struct {
	Role    string
	Content string
}

// Message is one entry of the assembled request.
type Message struct {
	Role    string
	Content string
}

// Instructions holds the two instruction layers.
type Instructions struct {
	Document string
	Global   string
}

// Resolve returns the document instructions when set, else the global ones, else "".
func (i Instructions) Resolve() string {
	if doc := strings.TrimSpace(i.Document); doc != "" {
		return doc
	}
	return strings.TrimSpace(i.Global)
}

// Context is everything the assembler merges into the system message.
type Context struct {
	DocumentContent string
	Knowledge       []KnowledgeItem
	SelectedContext []string
	Instructions    Instructions
	InsertionPoint  string // Generate only.
}

const chatFraming = `You are an intelligent writing assistant helping users write documents, particularly research papers and academic content. You can see the user's current document and any reference knowledge they attached to it.

Your role is to:
1. Help write, edit, and improve the document based on user requests
2. Use the reference knowledge to inform your suggestions and writing
3. Keep the document's style and tone
4. Suggest improvements to structure, citations, and content
5. When asked to write something, reply with text that can be inserted into the document as is

Be precise and keep academic standards when appropriate.`

const generateFraming = `You are a professional writing assistant. Generate text for the user's request that fits seamlessly into their document.

Generate ONLY the requested text, without any explanation or preamble. The text must be ready to insert directly into the document.`

// TruncateDocument caps content at MaxDocumentChars runes and appends TruncationMarker when cut.
func TruncateDocument(content string) string {
	if utf8.RuneCountInString(content) <= MaxDocumentChars {
		return content
	}
	cut := 0
	for i := range content {
		if cut == MaxDocumentChars {
			return content[:i] + TruncationMarker
		}
		cut++
	}
	return content
}

// SystemPrompt builds the system message for chat.
func SystemPrompt(ctx Context) string {
	return build(chatFraming, ctx, false)
}

// GenerateSystemPrompt builds the system message for insertion-oriented generation.
func GenerateSystemPrompt(ctx Context) string {
	return build(generateFraming, ctx, true)
}

// Chat returns the full message list for a chat request:
// system framing, document, knowledge, selection, instructions, then history and the new message.
func Chat(ctx Context, history []Turn, message string) []Message {
	messages := make([]Message, 0, len(history)+2)
	messages = append(messages, Message{Role: RoleSystem, Content: SystemPrompt(ctx)})
	for _, turn := range history {
		if strings.TrimSpace(turn.Content) == "" {
			continue
		}
		role := RoleUser
		if turn.Role == RoleAssistant {
			role = RoleAssistant
		}
		messages = append(messages, Message{Role: role, Content: turn.Content})
	}
	messages = append(messages, Message{Role: RoleUser, Content: message})
	return messages
}

// Generate returns the message list for a generate request.
func Generate(ctx Context, request string) []Message {
	return []Message{
		{Role: RoleSystem, Content: GenerateSystemPrompt(ctx)},
		{Role: RoleUser, Content: request},
	}
}

func build(framing string, ctx Context, withInsertion bool) string {
	var b strings.Builder
	b.WriteString(framing)

	b.WriteString("\n\nCurrent Document Content:\n---\n")
	if ctx.DocumentContent == "" {
		b.WriteString(emptyDocument)
	} else {
		b.WriteString(TruncateDocument(ctx.DocumentContent))
	}
	b.WriteString("\n---")

	if len(ctx.Knowledge) > 0 {
		b.WriteString("\n\n## Reference Knowledge:")
		for _, item := range ctx.Knowledge {
			b.WriteString("\n\n### ")
			b.WriteString(item.Title)
			b.WriteString("\n")
			b.WriteString(item.Content)
		}
	}

	selected := nonBlank(ctx.SelectedContext)
	if len(selected) > 0 {
		b.WriteString("\n\n## Selected Context (highlighted by the user):")
		for i, fragment := range selected {
			b.WriteString("\n\n[")
			b.WriteString(strconv.Itoa(i + 1))
			b.WriteString("] ")
			b.WriteString(fragment)
		}
	}

	if withInsertion {
		if point := strings.TrimSpace(ctx.InsertionPoint); point != "" {
			b.WriteString("\n\nThe text will be inserted at: \"")
			b.WriteString(point)
			b.WriteString("\"")
		}
	}

	if instructions := ctx.Instructions.Resolve(); instructions != "" {
		b.WriteString("\n\n## Custom Instructions:\n")
		b.WriteString(instructions)
	}
	return b.String()
}

func nonBlank(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if strings.TrimSpace(item) != "" {
			out = append(out, item)
		}
	}
	return out
}
