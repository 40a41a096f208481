package conversation

// DefaultMemoryLimit keeps the last 15 exchanges.
const DefaultMemoryLimit = 30

const (
	humanPrefix     = "Human: "
	assistantPrefix = "Assistant: "
)

// Memory is the bounded transcript of a session, oldest first.
type Memory struct {
	limit int
	lines []string
}

func NewMemory(limit int) *Memory {
	if limit <= 0 {
		limit = DefaultMemoryLimit
	}
	return &Memory{limit: limit}
}

func (m *Memory) AppendHuman(message string) { m.append(humanPrefix + message) }

func (m *Memory) AppendAssistant(reply string) { m.append(assistantPrefix + reply) }

func (m *Memory) append(line string) {
	m.lines = append(m.lines, line)
	if over := len(m.lines) - m.limit; over > 0 {
		m.lines = append(m.lines[:0:0], m.lines[over:]...)
	}
}

// Recent returns up to n of the newest lines.
func (m *Memory) Recent(n int) []string {
	if n <= 0 || n >= len(m.lines) {
		return m.Lines()
	}
	out := make([]string, n)
	copy(out, m.lines[len(m.lines)-n:])
	return out
}

// Lines returns a copy of every retained line.
func (m *Memory) Lines() []string {
	out := make([]string, len(m.lines))
	copy(out, m.lines)
	return out
}

func (m *Memory) Len() int { return len(m.lines) }
