// Package tagging implements the Lexicon & Tag Registry: a read-only
// vocabulary of tags and synonyms loaded once at startup, used to
// deterministically resolve chunk text to 0-3 tag names.
package tagging

import (
	"encoding/csv"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/BDSE37/Podwise-sub002/internal/errs"
	"github.com/BDSE37/Podwise-sub002/internal/model"
)

// entry is one registry row, preserving its load order for deterministic
// tie-breaking.
type entry struct {
	tag      model.Tag
	synonyms []string // lowercased, in column order
}

// Registry is the loaded, read-only tag vocabulary.
type Registry struct {
	entries []entry
	byName  map[string]*model.Tag
	logger  *logrus.Logger

	// patternRules supplements registry matches the way the source
	// material's apply_tag_rules does: a fixed set of regexes, each
	// mapping to tag names that must already exist in the registry.
	patternRules []patternRule
}

type patternRule struct {
	pattern *regexp.Regexp
	tags    []string
}

// defaultTags mirrors the source material's create_default_tags
// fallback vocabulary, used only when no CSV file is configured or the
// file cannot be read.
var defaultTags = []struct {
	name     string
	synonyms []string
	category string
}{
	{"人工智慧", []string{"ai", "機器學習", "深度學習", "自然語言處理"}, "科技"},
	{"科技", []string{"技術", "創新", "數位化"}, "科技"},
	{"商業", []string{"企業", "管理", "策略", "市場"}, "商業"},
	{"教育", []string{"學習", "培訓", "知識", "技能"}, "教育"},
	{"創業", []string{"新創", "商業模式", "投資"}, "商業"},
	{"工作", []string{"職場", "效率", "生產力"}, "商業"},
	{"時間管理", []string{"效率", "規劃", "優先級"}, "商業"},
	{"領導力", []string{"管理", "團隊", "溝通"}, "商業"},
	{"雲端運算", []string{"雲端", "技術架構", "基礎設施"}, "科技"},
	{"區塊鏈", []string{"加密貨幣", "去中心化", "智能合約"}, "科技"},
	{"半導體", []string{"晶片", "製造", "供應鏈"}, "科技"},
	{"台灣產業", []string{"本土", "製造業", "科技業"}, "商業"},
	{"全球供應鏈", []string{"國際", "貿易", "物流"}, "商業"},
	{"生態系統", []string{"環境", "合作", "夥伴關係"}, "科技"},
}

// defaultPatternRuleSpecs mirrors the source material's apply_tag_rules: a
// fixed regex table whose targets are always names present in the
// registry, so it can only select tags, never invent them.
var defaultPatternRuleSpecs = []struct {
	pattern string
	tags    []string
}{
	{`\bai\b|人工智慧|機器學習`, []string{"人工智慧"}},
	{`雲端|\bcloud\b`, []string{"雲端運算"}},
	{`區塊鏈|\bblockchain\b`, []string{"區塊鏈"}},
	{`創業|新創`, []string{"創業"}},
	{`領導|管理`, []string{"領導力"}},
	{`時間|效率`, []string{"時間管理"}},
	{`半導體|晶片`, []string{"半導體"}},
	{`台灣|本土`, []string{"台灣產業"}},
	{`全球|國際`, []string{"全球供應鏈"}},
	{`教育|學習`, []string{"教育"}},
	{`商業|企業`, []string{"商業"}},
}

// Load reads the tag CSV at path. The expected shape, per the source
// material: an optional human-readable header row, a column-name row,
// then one row per tag with columns {tag, sync_1..sync_N, category}
// (synonym columns are recognized only by a header containing "sync"
// or "相關"; see loadCSV). A missing file is not fatal —
// Load falls back to the built-in default vocabulary and logs a
// warning, matching the source material's create_default_tags path; a
// malformed individual row is skipped with a single log line.
func Load(path string, logger *logrus.Logger) (*Registry, error) {
	if logger == nil {
		logger = logrus.New()
	}

	r := &Registry{byName: make(map[string]*model.Tag), logger: logger}
	r.compilePatternRules()

	if path == "" {
		r.loadDefaults()
		return r, nil
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.WithField("path", path).Warn("tag file not found, using default vocabulary")
			r.loadDefaults()
			return r, nil
		}
		return nil, errs.Wrap(errs.ConfigError, "tagging.load", err, "open tag file")
	}
	defer f.Close()

	if err := r.loadCSV(f); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) compilePatternRules() {
	for _, spec := range defaultPatternRuleSpecs {
		r.patternRules = append(r.patternRules, patternRule{
			pattern: regexp.MustCompile("(?i)" + spec.pattern),
			tags:    spec.tags,
		})
	}
}

func (r *Registry) loadDefaults() {
	for _, dt := range defaultTags {
		r.addEntry(dt.name, dt.category, dt.synonyms)
	}
}

// loadCSV parses a tag table with a header row to skip, a "tag" column
// (case-insensitive), any number of synonym columns, and an optional
// "category" column, following the source material's load_tag_mappings.
func (r *Registry) loadCSV(reader io.Reader) error {
	cr := csv.NewReader(reader)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return errs.New(errs.ConfigError, "tagging.load_csv", "tag file is empty")
	}
	if err != nil {
		return errs.Wrap(errs.ConfigError, "tagging.load_csv", err, "read header row")
	}

	// The original format carries a second, human-readable header row
	// before the real column names; if present, skip it.
	if looksLikeHumanHeader(header) {
		header, err = cr.Read()
		if err != nil {
			return errs.Wrap(errs.ConfigError, "tagging.load_csv", err, "read column header row")
		}
	}

	tagCol, categoryCol, synonymCols := classifyColumns(header)
	if tagCol < 0 {
		return errs.New(errs.ConfigError, "tagging.load_csv", "tag file has no 'tag' column")
	}

	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			r.logger.WithError(err).Warn("skipping malformed tag row")
			continue
		}
		if tagCol >= len(row) {
			continue
		}
		name := strings.TrimSpace(row[tagCol])
		if name == "" || strings.EqualFold(name, "nan") {
			continue
		}

		category := ""
		if categoryCol >= 0 && categoryCol < len(row) {
			category = strings.TrimSpace(row[categoryCol])
		}

		var synonyms []string
		for _, col := range synonymCols {
			if col >= len(row) {
				continue
			}
			syn := strings.TrimSpace(row[col])
			if syn == "" || strings.EqualFold(syn, "nan") {
				continue
			}
			synonyms = append(synonyms, syn)
		}

		r.addEntry(name, category, synonyms)
	}

	r.logger.WithField("tags", len(r.entries)).Info("loaded tag registry")
	return nil
}

func looksLikeHumanHeader(header []string) bool {
	for _, col := range header {
		if strings.EqualFold(strings.TrimSpace(col), "tag") {
			return false
		}
	}
	return true
}

func classifyColumns(header []string) (tagCol, categoryCol int, synonymCols []int) {
	tagCol, categoryCol = -1, -1
	for i, col := range header {
		trimmed := strings.ToLower(strings.TrimSpace(col))
		switch {
		case trimmed == "tag":
			tagCol = i
		case trimmed == "category" || strings.Contains(col, "分類"):
			categoryCol = i
		case strings.Contains(trimmed, "sync") || strings.Contains(col, "相關"):
			synonymCols = append(synonymCols, i)
		}
	}
	return
}

func (r *Registry) addEntry(name, category string, synonyms []string) {
	if len(name) > model.MaxTagNameLen {
		name = name[:model.MaxTagNameLen]
	}
	if _, exists := r.byName[name]; exists {
		return
	}

	lowered := make(map[string]struct{}, len(synonyms))
	for _, s := range synonyms {
		lowered[strings.ToLower(s)] = struct{}{}
	}

	tag := model.Tag{Name: name, Synonyms: lowered, Category: category}
	r.entries = append(r.entries, entry{tag: tag, synonyms: lowerAll(synonyms)})
	r.byName[name] = &r.entries[len(r.entries)-1].tag
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}

// Size returns the number of distinct tags loaded.
func (r *Registry) Size() int { return len(r.entries) }

// Lookup returns the registry's canonical Tag by name, if present.
func (r *Registry) Lookup(name string) (*model.Tag, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// Resolve maps free text to 0-3 tag names, in registry row order, per
// §4.A: lowercase match of any synonym or the tag name itself against
// whitespace-normalized text; ties broken by row order; cap at 3. It
// never returns a name absent from the registry (I3).
func (r *Registry) Resolve(text string) []string {
	normalized := normalizeWhitespace(strings.ToLower(text))
	if normalized == "" {
		return nil
	}

	selected := make(map[string]struct{})
	var out []string

	for _, e := range r.entries {
		if len(out) >= model.MaxTagsCount {
			break
		}
		if _, already := selected[e.tag.Name]; already {
			continue
		}
		if r.matchesEntry(normalized, e) {
			selected[e.tag.Name] = struct{}{}
			out = append(out, e.tag.Name)
		}
	}

	if len(out) >= model.MaxTagsCount {
		return out
	}

	// Supplement with pattern-rule matches (apply_tag_rules analogue):
	// these can only select tags already present in the registry.
	for _, rule := range r.patternRules {
		if len(out) >= model.MaxTagsCount {
			break
		}
		if !rule.pattern.MatchString(normalized) {
			continue
		}
		for _, candidate := range rule.tags {
			if len(out) >= model.MaxTagsCount {
				break
			}
			if _, already := selected[candidate]; already {
				continue
			}
			if _, inRegistry := r.byName[candidate]; !inRegistry {
				continue
			}
			selected[candidate] = struct{}{}
			out = append(out, candidate)
		}
	}

	return out
}

func (r *Registry) matchesEntry(normalizedText string, e entry) bool {
	if strings.Contains(normalizedText, strings.ToLower(e.tag.Name)) {
		return true
	}
	for _, syn := range e.synonyms {
		if syn != "" && strings.Contains(normalizedText, syn) {
			return true
		}
	}
	return false
}

func normalizeWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}
