package cmd

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Error definitions
var (
	ErrMissingType     = errors.New("article has no type")
	ErrMissingLanguage = errors.New("article rendition has no language")
)

// listSeparator joins multi-valued report fields
const listSeparator = ";"

// namedLanguages are the languages reported in their own columns
var namedLanguages = []string{"pt", "es", "en"}

// Article is the stored article document. Only the fields used by the report
// are decoded; the same tags serve the MongoDB store and its JSONB mirror.
type Article struct {
	ID         string      `bson:"_id" json:"_id"`
	PID        string      `bson:"pid,omitempty" json:"pid,omitempty"`
	ScieloPIDs *ScieloPIDs `bson:"scielo_pids,omitempty" json:"scielo_pids,omitempty"`
	Type       *string     `bson:"type,omitempty" json:"type,omitempty"`
	DOI        *string     `bson:"doi,omitempty" json:"doi,omitempty"`
	IsPublic   bool        `bson:"is_public" json:"is_public"`
	PDFs       []Rendition `bson:"pdfs,omitempty" json:"pdfs,omitempty"`
	HTMLs      []Rendition `bson:"htmls,omitempty" json:"htmls,omitempty"`
}

// ScieloPIDs holds the identifiers an article has been known by
type ScieloPIDs struct {
	V1    string   `bson:"v1,omitempty" json:"v1,omitempty"`
	V2    string   `bson:"v2,omitempty" json:"v2,omitempty"`
	V3    string   `bson:"v3,omitempty" json:"v3,omitempty"`
	Other []string `bson:"other,omitempty" json:"other,omitempty"`
}

// Rendition is one rendered variant (PDF or HTML) of an article
type Rendition struct {
	Lang *string `bson:"lang,omitempty" json:"lang,omitempty"`
	URL  string  `bson:"url,omitempty" json:"url,omitempty"`
}

// Flag is a boolean written to the report as 0 or 1
type Flag bool

// MarshalCSV implements csvutil.Marshaler
func (f Flag) MarshalCSV() ([]byte, error) {
	if f {
		return []byte("1"), nil
	}
	return []byte("0"), nil
}

// UnmarshalCSV implements csvutil.Unmarshaler
func (f *Flag) UnmarshalCSV(data []byte) error {
	switch string(data) {
	case "1":
		*f = true
	case "0", "":
		*f = false
	default:
		return fmt.Errorf("invalid flag value %q", data)
	}
	return nil
}

// ReportRow is one line of the report. Field order is the column order.
type ReportRow struct {
	PIDv3                  string `csv:"pid_v3"`
	PIDv2                  string `csv:"pid_v2"`
	AKA                    string `csv:"aka"`
	Type                   string `csv:"type"`
	DOI                    string `csv:"doi"`
	Languages              string `csv:"languages"`
	DocumentPT             Flag   `csv:"document_pt"`
	DocumentES             Flag   `csv:"document_es"`
	DocumentEN             Flag   `csv:"document_en"`
	DocumentOtherLanguages Flag   `csv:"document_other_languages"`
}

// ReportHeader is the exact header line of the report
var ReportHeader = []string{
	"pid_v3", "pid_v2", "aka", "type", "doi", "languages",
	"document_pt", "document_es", "document_en", "document_other_languages",
}

// Transform maps an article to its report row
func Transform(article Article) (ReportRow, error) {
	if article.Type == nil {
		return ReportRow{}, fmt.Errorf("%w: %s", ErrMissingType, article.ID)
	}

	languages, err := articleLanguages(article)
	if err != nil {
		return ReportRow{}, err
	}

	var doi string
	if article.DOI != nil {
		doi = *article.DOI
	}

	return ReportRow{
		PIDv3:                  article.ID,
		PIDv2:                  article.PID,
		AKA:                    strings.Join(alsoKnownAs(article), listSeparator),
		Type:                   strings.ToLower(strings.TrimSpace(*article.Type)),
		DOI:                    doi,
		Languages:              strings.Join(sortedKeys(languages), listSeparator),
		DocumentPT:             Flag(has(languages, "pt")),
		DocumentES:             Flag(has(languages, "es")),
		DocumentEN:             Flag(has(languages, "en")),
		DocumentOtherLanguages: Flag(hasOtherLanguages(languages)),
	}, nil
}

// alsoKnownAs returns the other known identifiers minus the article's own pids
func alsoKnownAs(article Article) []string {
	if article.ScieloPIDs == nil || len(article.ScieloPIDs.Other) == 0 {
		return nil
	}

	pids := make(map[string]struct{}, len(article.ScieloPIDs.Other))
	for _, pid := range article.ScieloPIDs.Other {
		pids[pid] = struct{}{}
	}
	// Absent pids are not removed: an empty entry in other stays
	for _, own := range []string{article.ID, article.PID} {
		if own != "" {
			delete(pids, own)
		}
	}

	return sortedKeys(pids)
}

// articleLanguages collects the normalized language tags of every rendition
func articleLanguages(article Article) (map[string]struct{}, error) {
	languages := make(map[string]struct{})

	renditions := make([]Rendition, 0, len(article.PDFs)+len(article.HTMLs))
	renditions = append(renditions, article.PDFs...)
	renditions = append(renditions, article.HTMLs...)

	for _, r := range renditions {
		if r.Lang == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingLanguage, article.ID)
		}
		lang := strings.ToLower(strings.TrimSpace(*r.Lang))
		if lang == "" {
			continue
		}
		languages[lang] = struct{}{}
	}

	return languages, nil
}

func hasOtherLanguages(languages map[string]struct{}) bool {
	named := 0
	for _, lang := range namedLanguages {
		if has(languages, lang) {
			named++
		}
	}
	return len(languages) > named
}

func has(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
