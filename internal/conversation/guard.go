package conversation

import (
	"regexp"
	"strings"
)

// Screening scores an inbound message for attempts to steer the model away
// from its sales role or pull out configuration, and checks generated
// replies for material that must never reach a prospect.

const (
	screenBlockScore = 0.7
	// each additional signal adds this much to the strongest one
	screenSignalBoost = 0.1
)

type screenPattern struct {
	re     *regexp.Regexp
	signal string
	weight float64
}

var inputPatterns = []screenPattern{
	{regexp.MustCompile(`(?i)(ignore|disregard|forget)\s+(all\s+)?(previous|prior|above|earlier|your)\s+(instructions?|rules?|prompts?|guidelines?)`), "override:instructions", 0.9},
	{regexp.MustCompile(`(?i)you\s+are\s+now\s+(a|an|my)\s+`), "override:role", 0.7},
	{regexp.MustCompile(`(?i)new\s+instructions?\s*:|system\s*prompt\s*:|<<\s*sys(tem)?\s*>>`), "override:new_prompt", 0.9},
	{regexp.MustCompile(`(?i)jailbreak|DAN\s*mode|developer\s*mode|unrestricted\s*mode`), "override:jailbreak", 0.9},
	{regexp.MustCompile(`(?i)(reveal|show|print|repeat|tell\s+me)\s+(your\s+)?(system\s+prompt|instructions|initial\s+prompt|hidden\s+prompt)`), "exfiltrate:prompt", 0.8},
	{regexp.MustCompile(`(?i)\b(list|show|give|send|share|dump|export|tell\s+me)\b[^.?!]{0,20}\b(other|all|every|previous)\s+(your\s+|the\s+)?(leads?|customers?|clients?|prospects?|users?)('?s)?\s+(e-?mails?|phones?|phone\s+numbers?|numbers?|contacts?|contact\s+details|addresses)`), "exfiltrate:other_leads", 0.8},
	{regexp.MustCompile(`(?i)\b(give|show|reveal|send|share|print|leak|tell\s+me|what\s+is|what's)\b[^.?!]{0,20}\b(your|the|its)\s+(((salesforce|openai|aws|database|db|admin)\s+)?(api|secret|access)\s+(keys?|tokens?)|(salesforce|openai|aws|database|db|admin)\s+(keys?|tokens?|secrets?|passwords?|credentials?)|passwords?|credentials?)\b`), "exfiltrate:credentials", 0.8},
	{regexp.MustCompile(`(?i)\[/?INST\]|<\|im_start\|>|<\|im_end\|>|<\|system\|>`), "frame:special_tokens", 0.9},
	{regexp.MustCompile(`(?i)###\s*(system|instruction|assistant)\s*:`), "frame:role_marker", 0.7},
	{regexp.MustCompile(`<\s*(script|iframe|object|embed)\b`), "markup:html", 0.6},
}

var replyPatterns = []screenPattern{
	{regexp.MustCompile(`(?i)my (system\s+)?(prompt|instructions?)\s+(is|are|says|say|tells)`), "leak:prompt", 1},
	{regexp.MustCompile(`(?i)(api[_\s]?key|secret|access[_\s]?token|client[_\s]?secret)\s*[:=]\s*\S+`), "leak:credential", 1},
	{regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{20,}|AKIA[A-Z0-9]{16}`), "leak:key", 1},
	{regexp.MustCompile(`(?i)(postgres|redis|rediss)://\S+`), "leak:connection_url", 1},
}

// Screen is the outcome of scanning one piece of text.
type Screen struct {
	Blocked bool
	Score   float64
	Signals []string
}

func scan(text string, patterns []screenPattern) Screen {
	if strings.TrimSpace(text) == "" {
		return Screen{}
	}
	var out Screen
	for _, p := range patterns {
		if !p.re.MatchString(text) {
			continue
		}
		out.Signals = append(out.Signals, p.signal)
		if p.weight > out.Score {
			out.Score = p.weight
		}
	}
	if n := len(out.Signals); n > 1 {
		out.Score += float64(n-1) * screenSignalBoost
		if out.Score > 1 {
			out.Score = 1
		}
	}
	out.Blocked = out.Score >= screenBlockScore
	return out
}

// ScreenInput scores an inbound message. Blocked messages are not shown to
// any model.
func ScreenInput(message string) Screen {
	return scan(message, inputPatterns)
}

// ScreenReply flags generated text that discloses prompts, keys or
// connection strings.
func ScreenReply(reply string) Screen {
	return scan(reply, replyPatterns)
}
