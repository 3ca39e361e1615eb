package ai

import (
	"bytes"
	"strings"

	"github.com/tidwall/gjson"
)

// Fragment is what a single stream line contributes to a task result.
type Fragment struct {
	SessionID string
	Message   string
}

// Accumulation selects how message fragments combine across a stream.
type Accumulation int

const (
	// AccumulateLatest keeps the most recent non-empty message.
	AccumulateLatest Accumulation = iota
	// AccumulateConcat concatenates every fragment in stream order.
	AccumulateConcat
)

// StreamParser decodes one backend's line-delimited event grammar.
type StreamParser interface {
	// ParseLine extracts the fields of one line. ok reports whether the line
	// was a well-formed event (a JSON object); malformed lines yield nothing.
	ParseLine(line []byte) (frag Fragment, ok bool)
	// Accumulation reports how this backend's message fragments combine.
	Accumulation() Accumulation
}

// decodeObject parses line as a JSON object.
func decodeObject(line []byte) (gjson.Result, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || !gjson.ValidBytes(line) {
		return gjson.Result{}, false
	}
	event := gjson.ParseBytes(line)
	if !event.IsObject() {
		return gjson.Result{}, false
	}
	return event, true
}

// stringField returns a string-typed field or "".
func stringField(event gjson.Result, path string) string {
	v := event.Get(path)
	if v.Type != gjson.String {
		return ""
	}
	return v.Str
}

// textValue flattens a string or an array of strings.
func textValue(v gjson.Result) string {
	switch {
	case v.Type == gjson.String:
		return v.Str
	case v.IsArray():
		var sb strings.Builder
		v.ForEach(func(_, item gjson.Result) bool {
			if item.Type == gjson.String {
				sb.WriteString(item.Str)
			}
			return true
		})
		return sb.String()
	default:
		return ""
	}
}

// codexParser reads `codex e --json` events. The session is the thread id and
// the message is the text of the latest completed agent_message item.
type codexParser struct{}

func (codexParser) ParseLine(line []byte) (Fragment, bool) {
	event, ok := decodeObject(line)
	if !ok {
		return Fragment{}, false
	}
	frag := Fragment{SessionID: stringField(event, "thread_id")}
	if stringField(event, "type") == "item.completed" && event.Get("item").IsObject() &&
		stringField(event, "item.type") == "agent_message" {
		frag.Message = textValue(event.Get("item.text"))
	}
	return frag, true
}

func (codexParser) Accumulation() Accumulation { return AccumulateLatest }

// claudeParser reads `--output-format stream-json` events. The final result
// event carries the whole answer.
type claudeParser struct{}

func (claudeParser) ParseLine(line []byte) (Fragment, bool) {
	event, ok := decodeObject(line)
	if !ok {
		return Fragment{}, false
	}
	return Fragment{
		SessionID: stringField(event, "session_id"),
		Message:   stringField(event, "result"),
	}, true
}

func (claudeParser) Accumulation() Accumulation { return AccumulateLatest }

// geminiParser reads `-o stream-json` events, which stream the answer as
// incremental content fragments.
type geminiParser struct{}

func (geminiParser) ParseLine(line []byte) (Fragment, bool) {
	event, ok := decodeObject(line)
	if !ok {
		return Fragment{}, false
	}
	return Fragment{
		SessionID: stringField(event, "session_id"),
		Message:   stringField(event, "content"),
	}, true
}

func (geminiParser) Accumulation() Accumulation { return AccumulateConcat }

// maxRawOutput bounds the raw stdout kept for the plain-text fallback.
const maxRawOutput = 1 << 20

// Normalizer accumulates one process's stdout into a session id and message.
// It is not safe for concurrent use; feed it from a single goroutine.
type Normalizer struct {
	parser     StreamParser
	sessionID  string
	latest     string
	concat     strings.Builder
	raw        strings.Builder
	wellFormed int
}

// NewNormalizer creates a Normalizer for the given parser.
func NewNormalizer(parser StreamParser) *Normalizer {
	return &Normalizer{parser: parser}
}

// Feed consumes one stdout line without its trailing newline.
func (n *Normalizer) Feed(line []byte) {
	if n.raw.Len() < maxRawOutput {
		n.raw.Write(line)
		n.raw.WriteByte('\n')
	}

	frag, ok := n.parser.ParseLine(line)
	if !ok {
		return
	}
	n.wellFormed++
	if n.sessionID == "" && frag.SessionID != "" {
		n.sessionID = frag.SessionID
	}
	if frag.Message == "" {
		return
	}
	switch n.parser.Accumulation() {
	case AccumulateConcat:
		n.concat.WriteString(frag.Message)
	default:
		n.latest = frag.Message
	}
}

// StreamResult is the normalized output of one backend process.
type StreamResult struct {
	SessionID string
	Message   string
	// WellFormedLines counts lines that decoded as JSON objects.
	WellFormedLines int
}

// Result returns the accumulated output. When no event carried a message and
// the raw output is not JSON, the trimmed raw output becomes the message.
func (n *Normalizer) Result() StreamResult {
	msg := n.latest
	if n.parser.Accumulation() == AccumulateConcat {
		msg = n.concat.String()
	}
	if msg == "" {
		if raw := strings.TrimSpace(n.raw.String()); raw != "" && !strings.HasPrefix(raw, "{") {
			msg = raw
		}
	}
	return StreamResult{
		SessionID:       n.sessionID,
		Message:         msg,
		WellFormedLines: n.wellFormed,
	}
}
