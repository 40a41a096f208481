package conversation

import (
	"fmt"
	"strings"
)

const noSlotsMessage = "No available time slots."

// NormalizeTime maps user input such as "9", "930", "0930" or "9:5" to HH:MM.
// Anything else is returned cleaned but otherwise unchanged and will not match a slot.
func NormalizeTime(input string) string {
	cleaned := strings.NewReplacer(`"`, "", "'", "", " ", "", ".", "").Replace(strings.ToLower(strings.TrimSpace(input)))

	if isDigits(cleaned) {
		switch n := len(cleaned); {
		case n <= 2:
			return pad2(cleaned) + ":00"
		case n == 3:
			return "0" + cleaned[:1] + ":" + cleaned[1:]
		case n == 4:
			return cleaned[:2] + ":" + cleaned[2:]
		}
		return cleaned
	}

	if strings.Contains(cleaned, ":") {
		parts := strings.Split(cleaned, ":")
		if len(parts) == 2 && isDigits(parts[0]) && isDigits(parts[1]) {
			return pad2(parts[0]) + ":" + pad2(parts[1])
		}
	}
	return cleaned
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func pad2(s string) string {
	if len(s) >= 2 {
		return s
	}
	return "0" + s
}

// FormatSlots lays slots out in right-aligned columns. columns <= 0 means 3.
func FormatSlots(slots []string, columns int) string {
	if len(slots) == 0 {
		return noSlotsMessage
	}
	if columns <= 0 {
		columns = 3
	}

	width := 0
	for _, s := range slots {
		if len(s) > width {
			width = len(s)
		}
	}
	width += 5

	rows := make([]string, 0, (len(slots)+columns-1)/columns)
	for i := 0; i < len(slots); i += columns {
		end := min(i+columns, len(slots))
		var row strings.Builder
		for _, s := range slots[i:end] {
			fmt.Fprintf(&row, "%*s", width, s)
		}
		rows = append(rows, row.String())
	}
	return "Available meeting times:\n\n" + strings.Join(rows, "\n") + "\n\nPlease pick one."
}

func slotIn(slot string, slots []string) bool {
	for _, s := range slots {
		if s == slot {
			return true
		}
	}
	return false
}
