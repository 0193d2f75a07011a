package router

import (
	"html"
	"sort"
	"strings"
)

// helpText renders help for path in Telegram HTML parse mode.
func (m *CommandManager) helpText(path []string) string {
	m.mu.RLock()
	root := m.root
	alias := m.alias
	m.mu.RUnlock()

	if len(path) == 0 {
		return helpTopHTML(root)
	}

	cur := root
	full := make([]string, 0, len(path))
	for _, p := range path {
		p = strings.ToLower(strings.TrimPrefix(p, "/"))
		n, ok := cur.child(p)
		if !ok {
			if leaf, ok := alias[p]; ok && leaf != nil && leaf.cmd != nil && len(full) == 0 {
				return helpNodeHTML(leaf, splitRoute(leaf.cmd.Route))
			}
			return "❓ <b>Unknown command</b>\nType <code>/help</code> to list commands."
		}
		cur = n
		full = append(full, p)
	}
	return helpNodeHTML(cur, full)
}

func helpTopHTML(root *cmdNode) string {
	type row struct {
		name, desc string
		access     Access
	}
	names := root.childNames()
	rows := make([]row, 0, len(names))
	for _, name := range names {
		n, _ := root.child(name)
		rows = append(rows, row{name: name, desc: summarizeNodeDesc(n), access: nodeAccess(n)})
	}
	// Restricted commands last, alphabetical within a group.
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].access != rows[j].access {
			return rows[i].access < rows[j].access
		}
		return rows[i].name < rows[j].name
	})

	lines := []string{
		"📚 <b>Commands</b>",
		"Type <code>/help &lt;cmd&gt;</code> for details.",
		"",
	}
	for _, r := range rows {
		lines = append(lines, listLine("/"+r.name, r.desc, r.access))
	}
	return strings.Join(lines, "\n")
}

func helpNodeHTML(cur *cmdNode, full []string) string {
	lines := []string{"📚 <b>Help</b> <code>" + html.EscapeString("/"+strings.Join(full, " ")) + "</code>"}

	if c := cur.cmd; c != nil {
		if d := strings.TrimSpace(c.Description); d != "" {
			lines = append(lines, html.EscapeString(d))
		}
		if note := accessNote(c.Access); note != "" {
			lines = append(lines, note)
		}
		if u := strings.TrimSpace(c.Usage); u != "" {
			lines = append(lines, "", "<b>Usage</b>", "<code>"+html.EscapeString(u)+"</code>")
		}
		if short := buildShortcuts(*c); len(short) > 0 {
			lines = append(lines, "", "<b>Shortcuts</b>")
			for _, s := range short {
				lines = append(lines, "• <code>/"+html.EscapeString(s)+"</code>")
			}
		}
	} else {
		lines = append(lines, "Command group.")
		if note := accessNote(nodeAccess(cur)); note != "" {
			lines = append(lines, note)
		}
	}

	if len(cur.children) > 0 {
		lines = append(lines, "", "<b>Subcommands</b>")
		for _, name := range cur.childNames() {
			n, _ := cur.child(name)
			cmd := "/" + strings.Join(append(append([]string(nil), full...), name), " ")
			lines = append(lines, listLine(cmd, summarizeNodeDesc(n), nodeAccess(n)))
		}
	}
	return strings.Join(lines, "\n")
}

func listLine(cmd, desc string, a Access) string {
	prefix := "• "
	if a > AccessEveryone {
		prefix = "• 🔒 "
	}
	line := prefix + "<code>" + html.EscapeString(cmd) + "</code>"
	if desc != "" {
		line += " - " + html.EscapeString(desc)
	}
	return line
}

func accessNote(a Access) string {
	switch a {
	case AccessPrivileged:
		return "🔒 <i>Privileged users only</i>"
	case AccessOwnerOnly:
		return "🔒 <i>Owner only</i>"
	}
	return ""
}

func summarizeNodeDesc(n *cmdNode) string {
	if n == nil {
		return ""
	}
	if n.cmd != nil {
		if d := strings.TrimSpace(n.cmd.Description); d != "" {
			return d
		}
	}
	kids := n.childNames()
	if len(kids) == 0 {
		return ""
	}
	k := min(len(kids), 3)
	s := strings.Join(kids[:k], ", ")
	if len(kids) > k {
		s += ", …"
	}
	return "subcommands: " + s
}

// nodeAccess is a leaf's access, or for a group the least restrictive access
// among its descendants.
func nodeAccess(n *cmdNode) Access {
	if n == nil {
		return AccessEveryone
	}
	if n.cmd != nil {
		return n.cmd.Access
	}
	least := AccessOwnerOnly
	for _, ch := range n.children {
		if a := nodeAccess(ch); a < least {
			least = a
		}
	}
	return least
}

func buildShortcuts(c Command) []string {
	seen := map[string]bool{}
	out := make([]string, 0, 4)
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	if route := splitRoute(c.Route); len(route) > 1 {
		if menu, ok := telegramCommandNameFromRoute(route); ok {
			add(menu)
		}
	}
	for _, a := range c.Aliases {
		if a = strings.TrimSpace(a); !strings.Contains(a, " ") {
			add(a)
		}
	}
	sort.Strings(out)
	return out
}
