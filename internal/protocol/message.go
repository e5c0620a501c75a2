package protocol

import (
	"fmt"

	"mapsync/internal/entry"
	"mapsync/internal/errors"
	"mapsync/internal/wire"
)

// MessageKind selects which fields of a Message are meaningful.
type MessageKind uint8

const (
	MessageChat MessageKind = iota
	MessageConnect
	MessageDisconnect
	MessageEditDocs
	MessageMarkDeobfuscated
	MessageRemoveMapping
	MessageRename
	// MessageProblem carries a validation problem to the requester only.
	MessageProblem
)

func (k MessageKind) String() string {
	switch k {
	case MessageChat:
		return "chat"
	case MessageConnect:
		return "connect"
	case MessageDisconnect:
		return "disconnect"
	case MessageEditDocs:
		return "edit_docs"
	case MessageMarkDeobfuscated:
		return "mark_deobfuscated"
	case MessageRemoveMapping:
		return "remove_mapping"
	case MessageRename:
		return "rename"
	case MessageProblem:
		return "problem"
	default:
		return fmt.Sprintf("message(%d)", uint8(k))
	}
}

// Message is a chat or activity line shown to users.
type Message struct {
	Kind    MessageKind
	User    string
	Text    string
	Entry   entry.Entry
	NewName string
}

func ChatMessage(user, text string) Message {
	return Message{Kind: MessageChat, User: user, Text: text}
}

func ConnectMessage(user string) Message {
	return Message{Kind: MessageConnect, User: user}
}

func DisconnectMessage(user string) Message {
	return Message{Kind: MessageDisconnect, User: user}
}

func EditDocsMessage(user string, e entry.Entry) Message {
	return Message{Kind: MessageEditDocs, User: user, Entry: e}
}

func MarkDeobfuscatedMessage(user string, e entry.Entry) Message {
	return Message{Kind: MessageMarkDeobfuscated, User: user, Entry: e}
}

func RemoveMappingMessage(user string, e entry.Entry) Message {
	return Message{Kind: MessageRemoveMapping, User: user, Entry: e}
}

func RenameMessage(user string, e entry.Entry, newName string) Message {
	return Message{Kind: MessageRename, User: user, Entry: e, NewName: newName}
}

func ProblemMessage(text string) Message {
	return Message{Kind: MessageProblem, Text: text}
}

// String renders the line as shown in a chat log.
func (m Message) String() string {
	switch m.Kind {
	case MessageChat:
		return fmt.Sprintf("<%s> %s", m.User, m.Text)
	case MessageConnect:
		return m.User + " joined"
	case MessageDisconnect:
		return m.User + " left"
	case MessageEditDocs:
		return fmt.Sprintf("%s edited docs for %s", m.User, m.Entry)
	case MessageMarkDeobfuscated:
		return fmt.Sprintf("%s marked %s as deobfuscated", m.User, m.Entry)
	case MessageRemoveMapping:
		return fmt.Sprintf("%s removed the mapping for %s", m.User, m.Entry)
	case MessageRename:
		return fmt.Sprintf("%s renamed %s to %s", m.User, m.Entry, m.NewName)
	case MessageProblem:
		return "problem: " + m.Text
	default:
		return m.Kind.String()
	}
}

func (m Message) write(w *wire.Writer) error {
	w.Uint8(uint8(m.Kind))
	switch m.Kind {
	case MessageChat:
		if err := w.String(m.User); err != nil {
			return err
		}
		return w.String(m.Text)
	case MessageConnect, MessageDisconnect:
		return w.String(m.User)
	case MessageEditDocs, MessageMarkDeobfuscated, MessageRemoveMapping, MessageRename:
		if err := w.String(m.User); err != nil {
			return err
		}
		if err := writeEntry(w, m.Entry); err != nil {
			return err
		}
		if m.Kind == MessageRename {
			return w.String(m.NewName)
		}
		return nil
	case MessageProblem:
		return w.String(m.Text)
	}
	return errors.Newf(errors.InternalError, "unknown message kind %d", uint8(m.Kind))
}

func readMessage(r *wire.Reader) (Message, error) {
	var m Message
	kind, err := r.Uint8()
	if err != nil {
		return m, err
	}
	m.Kind = MessageKind(kind)
	switch m.Kind {
	case MessageChat:
		if m.User, err = r.String(); err != nil {
			return m, err
		}
		m.Text, err = r.String()
	case MessageConnect, MessageDisconnect:
		m.User, err = r.String()
	case MessageEditDocs, MessageMarkDeobfuscated, MessageRemoveMapping, MessageRename:
		if m.User, err = r.String(); err != nil {
			return m, err
		}
		if m.Entry, err = r.Entry(); err != nil {
			return m, err
		}
		if m.Kind == MessageRename {
			m.NewName, err = r.String()
		}
	case MessageProblem:
		m.Text, err = r.String()
	default:
		err = errors.Newf(errors.MalformedPacket, "unknown message kind %d", kind)
	}
	return m, err
}
