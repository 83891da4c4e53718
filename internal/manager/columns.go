package manager

import (
	"regexp"
	"strings"
	"unicode"
)

// Column names recognised in a column-header table, in display order.
var columnOrder = []string{"Name", "Id", "Version", "Available", "Match", "Source"}

var (
	headerColumn = map[string]*regexp.Regexp{}
	dashedLine   = regexp.MustCompile(`^\s*-{3,}[-\s]*$`)
	multiSpace   = regexp.MustCompile(`\s{2,}`)
	footerLine   = regexp.MustCompile(`(?i)(^\d+\s+packages?\b|additional entries|upgrades? available|require explicit targeting|^no installed package)`)
)

func init() {
	for _, c := range columnOrder {
		headerColumn[c] = regexp.MustCompile(`\b` + c + `\b`)
	}
}

// columnLayout describes a Name/Id/Version[/Available][/Match][/Source]
// table located in noisy command output. Offsets are rune indexes into the
// header with the leading noise removed.
type columnLayout struct {
	offset  int
	columns []string
	starts  []int
	first   int // index of the first data line
}

// findColumnLayout locates the header row and computes column offsets. A
// header is the first line containing Name, then Id after it, and Version.
func findColumnLayout(lines []string) (*columnLayout, bool) {
	for i, line := range lines {
		runes := []rune(line)
		nameAt := runeIndex(runes, "Name")
		if nameAt < 0 {
			continue
		}
		header := string(runes[nameAt:])
		idLoc := headerColumn["Id"].FindStringIndex(header)
		if idLoc == nil || !strings.Contains(header, "Version") {
			continue
		}

		l := &columnLayout{offset: nameAt, first: i + 1}
		from := 0
		for _, col := range columnOrder {
			loc := headerColumn[col].FindStringIndex(header[from:])
			if loc == nil {
				continue
			}
			byteAt := from + loc[0]
			l.columns = append(l.columns, col)
			l.starts = append(l.starts, len([]rune(header[:byteAt])))
			from = byteAt + len(col)
		}

		for j := i + 1; j < len(lines) && j <= i+3; j++ {
			if dashedLine.MatchString(lines[j]) {
				l.first = j + 1
				break
			}
		}
		return l, true
	}
	return nil, false
}

// rows yields the field maps for every data row, skipping blank, dashed,
// footer and repeated header lines. Rows whose text does not line up with
// the header fall back to splitting on runs of two or more spaces.
func (l *columnLayout) rows(lines []string) []map[string]string {
	var out []map[string]string
	for _, line := range lines[l.first:] {
		line = strings.TrimRight(line, " \t\r")
		trimmed := strings.TrimSpace(line)
		if len(trimmed) < 3 || dashedLine.MatchString(line) || footerLine.MatchString(trimmed) {
			continue
		}
		if headerColumn["Name"].MatchString(line) && headerColumn["Id"].MatchString(line) && strings.Contains(line, "Version") {
			continue
		}

		runes := []rune(line)
		if l.offset > 0 && len(runes) > l.offset && strings.TrimSpace(string(runes[:l.offset])) == "" {
			runes = runes[l.offset:]
		}

		var fields map[string]string
		if l.aligned(runes) {
			fields = l.slice(runes)
		} else {
			fields = l.split(string(runes))
		}
		for k, v := range fields {
			fields[k] = strings.ReplaceAll(strings.TrimSpace(v), "…", "...")
		}
		if fields["Name"] == "" || fields["Id"] == "" {
			continue
		}
		out = append(out, fields)
	}
	return out
}

// aligned reports whether every column boundary inside the row falls on a
// space, which is the case when the row was printed under this header.
func (l *columnLayout) aligned(row []rune) bool {
	for _, s := range l.starts[1:] {
		if s >= len(row) {
			continue
		}
		if !unicode.IsSpace(row[s-1]) {
			return false
		}
	}
	return true
}

func (l *columnLayout) slice(row []rune) map[string]string {
	fields := make(map[string]string, len(l.columns))
	for i, col := range l.columns {
		start := l.starts[i]
		if start >= len(row) {
			break
		}
		end := len(row)
		if i+1 < len(l.starts) && l.starts[i+1] < end {
			end = l.starts[i+1]
		}
		fields[col] = string(row[start:end])
	}
	return fields
}

func (l *columnLayout) split(row string) map[string]string {
	tokens := multiSpace.Split(strings.TrimSpace(row), -1)
	fields := make(map[string]string, len(l.columns))
	if len(tokens) >= len(l.columns) {
		for i, col := range l.columns {
			fields[col] = tokens[i]
		}
		return fields
	}

	// Fewer tokens than columns: the leading columns are always present,
	// trailing optional columns may be blank. Source is the last token.
	hasSource := l.columns[len(l.columns)-1] == "Source"
	n := len(tokens)
	if hasSource && n > 3 {
		fields["Source"] = tokens[n-1]
		n--
	}
	for i := 0; i < n && i < len(l.columns); i++ {
		fields[l.columns[i]] = tokens[i]
	}
	return fields
}

func runeIndex(runes []rune, sub string) int {
	idx := strings.Index(string(runes), sub)
	if idx < 0 {
		return -1
	}
	return len([]rune(string(runes)[:idx]))
}
