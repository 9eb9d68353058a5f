package bot

// Inbound update shapes. The transport adapter normalizes platform events
// into these before posting them to the service.

// Update is one inbound event: a message or a button callback.
type Update struct {
	UpdateID int64     `json:"update_id"`
	Message  *Message  `json:"message,omitempty"`
	Callback *Callback `json:"callback,omitempty"`
}

// Message is an inbound chat message, possibly carrying a document.
type Message struct {
	MessageID        int64     `json:"message_id"`
	From             Sender    `json:"from"`
	Chat             Chat      `json:"chat"`
	Text             string    `json:"text,omitempty"`
	Caption          string    `json:"caption,omitempty"`
	Document         *Document `json:"document,omitempty"`
	ReplyToMessageID int64     `json:"reply_to_message_id,omitempty"`
}

// Sender identifies the account behind a message or callback.
type Sender struct {
	ID        int64  `json:"id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
}

// Chat identifies where an update happened.
type Chat struct {
	ID    int64  `json:"id"`
	Type  string `json:"type"`
	Title string `json:"title,omitempty"`
}

// Document references a transport hosted file blob.
type Document struct {
	FileID       string `json:"file_id"`
	UniqueFileID string `json:"unique_file_id"`
	FileName     string `json:"file_name"`
	MimeType     string `json:"mime_type"`
	SizeBytes    int64  `json:"size_bytes"`
}

// Callback is a button press on an earlier reply.
type Callback struct {
	ID        string `json:"id"`
	From      Sender `json:"from"`
	ChatID    int64  `json:"chat_id"`
	MessageID int64  `json:"message_id"`
	Data      string `json:"data"`
}

// Reply is one outbound action for the transport adapter to perform.
type Reply struct {
	ChatID           int64      `json:"chat_id"`
	Text             string     `json:"text,omitempty"`
	ReplyToMessageID int64      `json:"reply_to_message_id,omitempty"`
	Buttons          [][]Button `json:"buttons,omitempty"`
	SendFileID       string     `json:"send_file_id,omitempty"`
	// ExpectReply asks the transport to surface a reply prompt; the next
	// reply to this message resolves a pending input.
	ExpectReply bool `json:"expect_reply,omitempty"`
}

// Button is one inline keyboard button.
type Button struct {
	Label string `json:"label"`
	Data  string `json:"data"`
}

func textReply(chatID int64, text string) Reply {
	return Reply{ChatID: chatID, Text: text}
}
