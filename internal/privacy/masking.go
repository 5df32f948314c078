package privacy

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaskPhoneNumber keeps the last 4 digits and an optional + prefix.
// Example: "+5511912345678" -> "+*********5678"
func MaskPhoneNumber(phone string) string {
	if phone == "" {
		return ""
	}
	if rest, ok := strings.CutPrefix(phone, "+"); ok {
		if len(rest) <= 4 {
			return "+" + strings.Repeat("*", len(rest))
		}
		return "+" + maskString(rest, 4)
	}
	return maskString(phone, 4)
}

// MaskChatID masks the number part of a WhatsApp chat id and keeps the domain.
// Example: "5511912345678@c.us" -> "*********5678@c.us"
func MaskChatID(chatID string) string {
	if chatID == "" {
		return ""
	}
	number, domain, found := strings.Cut(chatID, "@")
	if !found {
		return maskString(chatID, 4)
	}
	return maskString(number, 4) + "@" + domain
}

// MaskMessageID shortens message ids. Gateway ids of the form
// "true_<chat>_<id>" keep their structure with the chat part masked.
func MaskMessageID(messageID string) string {
	if messageID == "" {
		return ""
	}

	parts := strings.SplitN(messageID, "_", 3)
	if len(parts) == 3 && (parts[0] == "true" || parts[0] == "false") {
		return parts[0] + "_" + MaskChatID(parts[1]) + "_" + maskString(parts[2], 4)
	}
	return maskString(messageID, 8)
}

// MaskUserID masks a user identifier
// Example: "user123456" -> "******3456"
func MaskUserID(userID string) string {
	if userID == "" {
		return ""
	}
	return maskString(userID, 4)
}

// MaskName reduces a person's name to initials.
// Example: "Maria Souza" -> "M. S."
func MaskName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	initials := make([]string, 0, len(fields))
	for _, f := range fields {
		r, _ := utf8.DecodeRuneInString(f)
		initials = append(initials, string(r)+".")
	}
	return strings.Join(initials, " ")
}

// MaskContent replaces message text with its length.
func MaskContent(content string) string {
	if content == "" {
		return ""
	}
	return fmt.Sprintf("[%d chars]", utf8.RuneCountInString(content))
}

// maskString masks a string showing only the last n characters
func maskString(s string, keepLast int) string {
	if s == "" {
		return ""
	}
	if len(s) <= keepLast {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-keepLast) + s[len(s)-keepLast:]
}

// MaskSensitiveFields applies the matching mask to well-known logging fields.
func MaskSensitiveFields(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}

	masked := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		s, ok := v.(string)
		if !ok {
			masked[k] = v
			continue
		}
		switch k {
		case "phone", "from", "to":
			masked[k] = MaskPhoneNumber(s)
		case "chat_id", "chatId":
			masked[k] = MaskChatID(s)
		case "external_id", "externalId":
			masked[k] = MaskMessageID(s)
		case "user_id", "userId", "sender_id":
			masked[k] = MaskUserID(s)
		case "client_name", "sender_name", "notify_name":
			masked[k] = MaskName(s)
		case "content", "body", "text":
			masked[k] = MaskContent(s)
		default:
			masked[k] = v
		}
	}
	return masked
}
