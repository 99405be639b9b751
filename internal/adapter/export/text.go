package export

import (
	"fmt"
	"strings"

	"github.com/V4T54L/fieldlog/internal/domain"
)

const textTimeLayout = "2006-01-02 15:04:05.000000"

// FormatText renders item as one human-readable line.
func FormatText(item domain.Item) string {
	m := item.ItemMeta()
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-10s t%-3d ", m.Time.UTC().Format(textTimeLayout), m.Priority, m.ThreadID)

	switch it := item.(type) {
	case *domain.TextItem:
		b.WriteString(it.Text)
		if it.Details != nil {
			b.WriteString(" | ")
			b.WriteString(strings.ReplaceAll(*it.Details, "\n", " "))
		}
	case *domain.DataItem:
		b.WriteString(it.Name)
		b.WriteString(" = ")
		if it.Value == nil {
			b.WriteString("<null>")
		} else {
			b.WriteString(*it.Value)
		}
	case *domain.ExceptionItem:
		fmt.Fprintf(&b, "%s: %s", it.Exception.Type, it.Exception.Message)
		if it.Exception.Code != 0 {
			fmt.Fprintf(&b, " (code %d)", it.Exception.Code)
		}
		if it.Context != nil {
			fmt.Fprintf(&b, " while %s", *it.Context)
		}
	case *domain.ScopeItem:
		b.WriteString(strings.Repeat("  ", int(max(it.Level-1, 0))))
		fmt.Fprintf(&b, "[%s] %s", it.Type, it.Name)
		if it.IsRepeated {
			b.WriteString(" (continued)")
		}
		if it.Type == domain.ScopeLogStart && it.Environment != nil {
			env := it.Environment
			fmt.Fprintf(&b, " pid=%d host=%s %s/%s %s", env.ProcessID, env.Hostname, env.OS, env.Arch, env.Runtime)
		}
	}
	return b.String()
}

