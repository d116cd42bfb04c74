package ledger

import (
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tiktoken-go/tokenizer"
)

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
)

// loadCodec lazily initializes the shared BPE codec. A nil codec means the
// encoding tables could not be loaded and the length heuristic is used.
func loadCodec() tokenizer.Codec {
	codecOnce.Do(func() {
		enc, errGet := tokenizer.Get(tokenizer.Cl100kBase)
		if errGet != nil {
			return
		}
		codec = enc
	})
	return codec
}

// CountTokens estimates the token count of a piece of request content. JSON
// chat payloads are walked field by field (system, messages, tools) so
// structural characters are not over-counted; plain text is encoded whole.
func CountTokens(content string) int64 {
	content = strings.TrimSpace(content)
	if content == "" {
		return 0
	}
	if gjson.Valid(content) && looksLikeChatPayload(content) {
		return countChatPayloadTokens(content)
	}
	return countText(content)
}

// countText counts tokens for one text fragment, preferring the BPE codec
// and falling back to the characters/4 heuristic.
func countText(text string) int64 {
	if text == "" {
		return 0
	}
	if enc := loadCodec(); enc != nil {
		ids, _, errEncode := enc.Encode(text)
		if errEncode == nil {
			return int64(len(ids))
		}
	}
	estimated := int64(len(text)+3) / 4
	if estimated < 1 {
		return 1
	}
	return estimated
}

func looksLikeChatPayload(content string) bool {
	return gjson.Get(content, "messages").IsArray() ||
		gjson.Get(content, "system").Exists()
}

// countChatPayloadTokens sums token estimates across the textual parts of a
// chat-style payload: the system prompt, each message, and tool definitions.
func countChatPayloadTokens(payload string) int64 {
	var total int64

	system := gjson.Get(payload, "system")
	if system.Type == gjson.String {
		total += countText(system.String())
	} else if system.IsArray() {
		system.ForEach(func(_, item gjson.Result) bool {
			if text := item.Get("text").String(); text != "" {
				total += countText(text)
			}
			return true
		})
	}

	gjson.Get(payload, "messages").ForEach(func(_, msg gjson.Result) bool {
		if role := msg.Get("role").String(); role != "" {
			total += countText(role)
		}
		content := msg.Get("content")
		if content.Type == gjson.String {
			total += countText(content.String())
		} else if content.IsArray() {
			content.ForEach(func(_, part gjson.Result) bool {
				if text := part.Get("text").String(); text != "" {
					total += countText(text)
				}
				return true
			})
		}
		return true
	})

	gjson.Get(payload, "tools").ForEach(func(_, tool gjson.Result) bool {
		if name := tool.Get("name").String(); name != "" {
			total += countText(name)
		}
		if desc := tool.Get("description").String(); desc != "" {
			total += countText(desc)
		}
		if schema := tool.Get("input_schema").Raw; schema != "" {
			total += countText(schema)
		}
		return true
	})

	if total < 1 {
		return countText(payload)
	}
	return total
}
