package github

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kschrader/dex/internal/types"
)

// Metadata comment prefixes. The root task's fields use taskPrefix and sit
// alongside the prose description; each embedded subtask's fields use
// subtaskPrefix inside its <details> block.
const (
	taskPrefix    = "dex:task:"
	subtaskPrefix = "dex:subtask:"
)

// tasksHeader is the section header written for embedded subtasks. The
// parser also accepts the alternates below; the latter two are legacy.
const tasksHeader = "## Tasks"

var sectionHeaders = []string{tasksHeader, "## Subtasks", "## Task Tree", "## Task Details"}

var (
	taskMetaRe    = regexp.MustCompile(`<!-- ` + taskPrefix + `([a-z_]+):([^\n]*?) -->`)
	subtaskMetaRe = regexp.MustCompile(`<!-- ` + subtaskPrefix + `([a-z_]+):([^\n]*?) -->`)
	detailsRe     = regexp.MustCompile(`(?s)<details>(.*?)</details>`)
	summaryRe     = regexp.MustCompile(`(?s)<summary>(.*?)</summary>`)
	boldSummaryRe = regexp.MustCompile(`(?s)^(?:✅\s*)?<b>(.*)</b>$`)
	checkboxRe    = regexp.MustCompile(`(?s)^\[( |x|X)\]\s*(.*)$`)
)

// EncodeValue makes a metadata value safe to embed in an HTML comment. Any
// value containing a newline or the comment terminator, or that could be
// mistaken for an encoded value, is wrapped as base64:<base64-utf8>.
func EncodeValue(s string) string {
	if needsEncoding(s) {
		return "base64:" + base64.StdEncoding.EncodeToString([]byte(s))
	}
	return s
}

// DecodeValue inverts EncodeValue. Values that fail to decode are returned
// verbatim rather than dropped.
func DecodeValue(s string) string {
	if rest, ok := strings.CutPrefix(s, "base64:"); ok {
		if decoded, err := base64.StdEncoding.DecodeString(rest); err == nil {
			return string(decoded)
		}
	}
	return s
}

func needsEncoding(s string) bool {
	return strings.Contains(s, "\n") ||
		strings.Contains(s, "\r") ||
		strings.Contains(s, "-->") ||
		strings.HasPrefix(s, "base64:")
}

// structureMarkers are the tags the parser uses to delimit subtask
// blocks; prose containing any of them cannot appear raw in the body.
var structureMarkers = []string{"<details>", "</details>", "<summary>", "</summary>"}

// renderSafe reports whether prose can be rendered raw without corrupting
// the block structure the parser relies on.
func renderSafe(s string) bool {
	for _, marker := range structureMarkers {
		if strings.Contains(s, marker) {
			return false
		}
	}
	for _, header := range sectionHeaders {
		if strings.Contains(s, header) {
			return false
		}
	}
	return true
}

// verbatimSafe reports whether a prose field survives the raw markdown
// rendering byte-for-byte, i.e. no comment is needed for exact round-trip.
func verbatimSafe(s string) bool {
	return !needsEncoding(s) && strings.TrimSpace(s) == s && renderSafe(s)
}

// ParsedSubtask is one subtask recovered from an issue body.
type ParsedSubtask struct {
	ID          string
	ParentID    string // root or intermediate task id; empty falls back to the root
	Name        string
	Description string
	Result      string
	Priority    int
	Completed   bool
	CreatedAt   *types.Time
	UpdatedAt   *types.Time
	StartedAt   *types.Time
	CompletedAt *types.Time
	CommitSHA   string
}

// ParsedIssue is the structured content of a mirrored issue body.
type ParsedIssue struct {
	Description string
	Meta        map[string]string // decoded dex:task: fields
	Subtasks    []ParsedSubtask
}

// RootID returns the embedded local root id, if any.
func (p *ParsedIssue) RootID() string {
	return p.Meta["id"]
}

// RenderIssueBody encodes a root task and its descendant lineage as one
// issue body. Descendants should be in depth-first order so the rendered
// blocks read parent before child.
func RenderIssueBody(root *types.Task, descendants []*types.Task) string {
	var b strings.Builder
	if root.Description != "" && renderSafe(root.Description) {
		b.WriteString(root.Description)
		b.WriteString("\n\n")
	}
	writeMeta(&b, taskPrefix, rootMeta(root))

	if len(descendants) > 0 {
		b.WriteString("\n")
		b.WriteString(tasksHeader)
		b.WriteString("\n")
		for _, sub := range descendants {
			b.WriteString("\n")
			writeSubtask(&b, root, sub)
		}
	}
	return b.String()
}

type metaField struct {
	key   string
	value string
}

func rootMeta(root *types.Task) []metaField {
	fields := []metaField{
		{"id", root.ID},
		{"priority", strconv.Itoa(root.Priority)},
		{"completed", strconv.FormatBool(root.Completed)},
		{"created_at", root.CreatedAt.String()},
		{"updated_at", root.UpdatedAt.String()},
		{"started_at", timeOrNull(root.StartedAt)},
		{"completed_at", timeOrNull(root.CompletedAt)},
	}
	if sha := commitSHA(root); sha != "" {
		fields = append(fields, metaField{"commit_sha", sha})
	}
	if root.Description != "" && !verbatimSafe(root.Description) {
		fields = append(fields, metaField{"description", root.Description})
	}
	if root.Result != "" {
		fields = append(fields, metaField{"result", root.Result})
	}
	return fields
}

func writeSubtask(b *strings.Builder, root *types.Task, sub *types.Task) {
	b.WriteString("<details>\n<summary>")
	if sub.Completed {
		b.WriteString("✅ ")
	}
	b.WriteString("<b>")
	b.WriteString(summaryText(sub.Name))
	b.WriteString("</b></summary>\n")

	parentID := root.ID
	if sub.ParentID != nil {
		parentID = *sub.ParentID
	}
	fields := []metaField{
		{"id", sub.ID},
		{"parent", parentID},
		{"priority", strconv.Itoa(sub.Priority)},
		{"completed", strconv.FormatBool(sub.Completed)},
		{"created_at", sub.CreatedAt.String()},
		{"updated_at", sub.UpdatedAt.String()},
		{"started_at", timeOrNull(sub.StartedAt)},
		{"completed_at", timeOrNull(sub.CompletedAt)},
	}
	if sha := commitSHA(sub); sha != "" {
		fields = append(fields, metaField{"commit_sha", sha})
	}
	if sub.Name != summaryText(sub.Name) {
		fields = append(fields, metaField{"name", sub.Name})
	}
	if sub.Description != "" && !verbatimSafe(sub.Description) {
		fields = append(fields, metaField{"description", sub.Description})
	}
	if sub.Result != "" && !verbatimSafe(sub.Result) {
		fields = append(fields, metaField{"result", sub.Result})
	}
	writeMeta(b, subtaskPrefix, fields)

	if sub.Description != "" && renderSafe(sub.Description) {
		b.WriteString("\n### Description\n")
		b.WriteString(sub.Description)
		b.WriteString("\n")
	}
	if sub.Result != "" && renderSafe(sub.Result) {
		b.WriteString("\n### Result\n")
		b.WriteString(sub.Result)
		b.WriteString("\n")
	}
	b.WriteString("</details>\n")
}

// summaryText flattens a task name for the <summary> line. When
// flattening changes the name, the exact value rides in a name metadata
// comment instead.
func summaryText(name string) string {
	return strings.NewReplacer(
		"\n", " ", "\r", " ",
		"<summary>", "", "</summary>", "",
		"<details>", "", "</details>", "",
	).Replace(name)
}

func writeMeta(b *strings.Builder, prefix string, fields []metaField) {
	for _, f := range fields {
		fmt.Fprintf(b, "<!-- %s%s:%s -->\n", prefix, f.key, EncodeValue(f.value))
	}
}

// ParseIssueBody recovers the prose description, root metadata, and
// embedded subtasks from an issue body. Subtask blocks without an id
// comment are skipped; unknown metadata keys are ignored.
func ParseIssueBody(body string) *ParsedIssue {
	parsed := &ParsedIssue{Meta: map[string]string{}}

	prose := body
	rest := ""
	if idx := sectionIndex(body); idx >= 0 {
		prose = body[:idx]
		rest = body[idx:]
	}

	for _, m := range taskMetaRe.FindAllStringSubmatch(prose, -1) {
		parsed.Meta[m[1]] = DecodeValue(m[2])
	}
	parsed.Description = strings.TrimSpace(taskMetaRe.ReplaceAllString(prose, ""))
	if desc, ok := parsed.Meta["description"]; ok {
		parsed.Description = desc
	}

	for _, block := range detailsRe.FindAllStringSubmatch(rest, -1) {
		if sub, ok := parseSubtaskBlock(block[1]); ok {
			parsed.Subtasks = append(parsed.Subtasks, sub)
		}
	}
	return parsed
}

// sectionHeaderRes match the section headers only on their own line, so
// header text quoted inside prose never splits the body.
var sectionHeaderRes = func() []*regexp.Regexp {
	res := make([]*regexp.Regexp, len(sectionHeaders))
	for i, header := range sectionHeaders {
		res[i] = regexp.MustCompile(`(?m)^` + regexp.QuoteMeta(header) + `[ \t]*\r?$`)
	}
	return res
}()

// sectionIndex locates the subtask section header line, preferring the
// current names over the legacy ones regardless of position.
func sectionIndex(body string) int {
	for _, re := range sectionHeaderRes {
		if loc := re.FindStringIndex(body); loc != nil {
			return loc[0]
		}
	}
	return -1
}

func parseSubtaskBlock(block string) (ParsedSubtask, bool) {
	var sub ParsedSubtask
	meta := map[string]string{}
	for _, m := range subtaskMetaRe.FindAllStringSubmatch(block, -1) {
		meta[m[1]] = DecodeValue(m[2])
	}
	if meta["id"] == "" {
		return sub, false
	}

	sub.ID = meta["id"]
	sub.ParentID = meta["parent"]
	sub.CommitSHA = meta["commit_sha"]
	sub.Priority = types.DefaultPriority
	if n, err := strconv.Atoi(meta["priority"]); err == nil {
		sub.Priority = n
	}
	sub.CreatedAt = parseTimeValue(meta["created_at"])
	sub.UpdatedAt = parseTimeValue(meta["updated_at"])
	sub.StartedAt = parseTimeValue(meta["started_at"])
	sub.CompletedAt = parseTimeValue(meta["completed_at"])

	name, checked := parseSummary(block)
	sub.Name = name
	if v, ok := meta["name"]; ok {
		sub.Name = v
	}
	if v, ok := meta["completed"]; ok {
		sub.Completed = v == "true"
	} else {
		sub.Completed = checked
	}

	sub.Description = subsection(block, "### Description")
	if v, ok := meta["description"]; ok {
		sub.Description = v
	}
	sub.Result = subsection(block, "### Result")
	if v, ok := meta["result"]; ok {
		sub.Result = v
	}
	return sub, true
}

// parseSummary handles both summary forms: the current "✅ <b>name</b>"
// (marker optional) and the legacy checkbox "[ ] name" / "[x] name".
func parseSummary(block string) (name string, completed bool) {
	m := summaryRe.FindStringSubmatch(block)
	if m == nil {
		return "", false
	}
	text := strings.TrimSpace(m[1])
	if bm := boldSummaryRe.FindStringSubmatch(text); bm != nil {
		return bm[1], strings.HasPrefix(text, "✅")
	}
	if cm := checkboxRe.FindStringSubmatch(text); cm != nil {
		return strings.TrimSpace(cm[2]), cm[1] != " "
	}
	return text, false
}

// subsection extracts the content between a "### Heading" line and the
// next "###" heading (or the end of the block).
func subsection(block, heading string) string {
	idx := strings.Index(block, heading)
	if idx < 0 {
		return ""
	}
	content := block[idx+len(heading):]
	if next := strings.Index(content, "\n### "); next >= 0 {
		content = content[:next]
	}
	return strings.TrimSpace(content)
}

func timeOrNull(t *types.Time) string {
	if t == nil {
		return "null"
	}
	return t.String()
}

func parseTimeValue(s string) *types.Time {
	if s == "" || s == "null" {
		return nil
	}
	var t types.Time
	if err := t.UnmarshalJSON([]byte(`"` + s + `"`)); err != nil {
		return nil
	}
	return &t
}

func commitSHA(t *types.Task) string {
	if t.Metadata != nil && t.Metadata.Commit != nil {
		return t.Metadata.Commit.SHA
	}
	return ""
}
