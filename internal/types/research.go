package types

import (
	"encoding/json"
	"strings"
)

// SerpResult is one organic search result.
type SerpResult struct {
	URL       string `json:"url"`
	Title     string `json:"title"`
	Position  int    `json:"position"`
	Snippet   string `json:"snippet"`
	IsArticle bool   `json:"isArticle"`
}

// SerpOutput is the stored output of the research_serp chunk.
type SerpOutput struct {
	Query         string       `json:"query"`
	Results       []SerpResult `json:"results"`
	PeopleAlsoAsk []string     `json:"peopleAlsoAsk,omitempty"`
	Provider      string       `json:"provider,omitempty"`
}

// ArticleURLs returns up to n URLs of results flagged as articles, in rank order.
func (o *SerpOutput) ArticleURLs(n int) []string {
	out := make([]string, 0, n)
	for _, r := range o.Results {
		if len(out) == n {
			break
		}
		if r.IsArticle && r.URL != "" {
			out = append(out, r.URL)
		}
	}
	return out
}

// CompetitorArticle is the fetched main text of a competitor page.
type CompetitorArticle struct {
	URL          string `json:"url"`
	Title        string `json:"title"`
	Content      string `json:"content"`
	WordCount    int    `json:"wordCount"`
	FetchSuccess bool   `json:"fetchSuccess"`
	Source       string `json:"source,omitempty"` // jina, direct or browser
}

// Fact is one grounded, dated statement with its source.
type Fact struct {
	Fact   string `json:"fact"`
	Source string `json:"source"`
	Date   string `json:"date,omitempty"`
}

// SourceURLValidation summarizes reachability of fact sources.
type SourceURLValidation struct {
	Total        int      `json:"total"`
	Accessible   int      `json:"accessible"`
	Inaccessible []string `json:"inaccessible"`
}

// CurrentData is recent, grounded information about the keyword.
type CurrentData struct {
	Facts               []Fact               `json:"facts"`
	RecentDevelopments  []string             `json:"recentDevelopments"`
	LastUpdated         string               `json:"lastUpdated"`
	GroundingVerified   bool                 `json:"groundingVerified"`
	SourceURLValidation *SourceURLValidation `json:"sourceUrlValidation,omitempty"`
}

// EmptyCurrentData is used when grounding fails; the run continues without facts.
func EmptyCurrentData() CurrentData {
	return CurrentData{
		Facts:               []Fact{},
		RecentDevelopments:  []string{},
		LastUpdated:         "Unknown",
		GroundingVerified:   false,
		SourceURLValidation: &SourceURLValidation{Inaccessible: []string{}},
	}
}

// ResearchOutput is the stored output of the research chunk.
type ResearchOutput struct {
	SerpResults []SerpResult        `json:"serpResults"`
	Competitors []CompetitorArticle `json:"competitors"`
	CurrentData CurrentData         `json:"currentData"`
}

// FetchedCount returns how many competitor pages were fetched successfully.
func (o *ResearchOutput) FetchedCount() int {
	n := 0
	for _, c := range o.Competitors {
		if c.FetchSuccess {
			n++
		}
	}
	return n
}

// AverageWordCount returns the mean word count of fetched competitors, or 0.
func (o *ResearchOutput) AverageWordCount() int {
	total, n := 0, 0
	for _, c := range o.Competitors {
		if c.FetchSuccess && c.WordCount > 0 {
			total += c.WordCount
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return total / n
}

// FlexString is a string that also accepts a JSON number, as models report
// counts either way.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

// Topic is one subject competitors cover.
type Topic struct {
	Name             string     `json:"name"`
	Importance       string     `json:"importance"` // essential, recommended or differentiator
	CoverageCount    FlexString `json:"coverageCount"`
	KeyTerms         []string   `json:"keyTerms"`
	ExampleContent   string     `json:"exampleContent"`
	RecommendedDepth string     `json:"recommendedDepth"`
}

// CompetitorHeadings are the headings of one competitor page.
type CompetitorHeadings struct {
	URL string   `json:"url"`
	H2s []string `json:"h2s"`
	H3s []string `json:"h3s"`
}

// Gap is a topic competitors miss.
type Gap struct {
	Topic               string `json:"topic"`
	Opportunity         string `json:"opportunity"`
	RecommendedApproach string `json:"recommendedApproach"`
}

// EditorialStyle is the observed style of competitor content.
type EditorialStyle struct {
	Tone         string  `json:"tone"`
	ReadingLevel string  `json:"readingLevel"`
	AvgSentence  float64 `json:"averageSentenceLength"`
	DataDensity  string  `json:"dataDensity"`
	IntroStyle   string  `json:"introStyle"`
	CtaStyle     string  `json:"ctaStyle"`
}

// CompetitorWordCount is the competitor-derived length guidance.
type CompetitorWordCount struct {
	CompetitorAverage int    `json:"competitorAverage"`
	Recommended       int    `json:"recommended"`
	Note              string `json:"note"`
}

// TopicExtraction is the structured analysis of competitor articles.
type TopicExtraction struct {
	Topics             []Topic              `json:"topics"`
	CompetitorHeadings []CompetitorHeadings `json:"competitorHeadings"`
	Gaps               []Gap                `json:"gaps"`
	EditorialStyle     EditorialStyle       `json:"editorialStyle"`
	WordCount          CompetitorWordCount  `json:"wordCount"`
}

// TopicOutput is the stored output of the topic_extraction chunk. The URL hash
// ties the extraction to the competitor set it was derived from.
type TopicOutput struct {
	CompetitorURLHash string          `json:"competitorUrlHash"`
	Extraction        TopicExtraction `json:"extraction"`
}

// OutlineSection is one heading of the planned article.
type OutlineSection struct {
	Heading     string           `json:"heading"`
	Level       string           `json:"level"` // h2 or h3
	Reason      string           `json:"reason"`
	Topics      []string         `json:"topics"`
	TargetWords int              `json:"targetWords"`
	Subsections []OutlineSection `json:"subsections,omitempty"`
}

// Outline is the planned article structure.
type Outline struct {
	Sections           []OutlineSection `json:"sections"`
	TotalSections      int              `json:"totalSections"`
	EstimatedWordCount int              `json:"estimatedWordCount"`
}

// H2s returns the trimmed headings of top-level h2 sections.
func (o *Outline) H2s() []string {
	out := make([]string, 0, len(o.Sections))
	for _, s := range o.Sections {
		if s.Level == "h2" {
			out = append(out, strings.TrimSpace(s.Heading))
		}
	}
	return out
}

// BriefKeywords are the keywords carried into the brief.
type BriefKeywords struct {
	Primary   string   `json:"primary"`
	Secondary []string `json:"secondary"`
	PASF      []string `json:"pasf"`
}

// BriefWordCount is the word count target of the brief.
type BriefWordCount struct {
	Target int    `json:"target"`
	Note   string `json:"note"`
}

// ResearchBrief is the stored output of the analysis chunk and the input of drafting.
type ResearchBrief struct {
	Keyword           BriefKeywords  `json:"keyword"`
	CurrentData       CurrentData    `json:"currentData"`
	Outline           Outline        `json:"outline"`
	Gaps              []string       `json:"gaps"`
	EditorialStyle    EditorialStyle `json:"editorialStyle"`
	WordCount         BriefWordCount `json:"wordCount"`
	Intent            string         `json:"intent,omitempty"`
	Tone              string         `json:"tone,omitempty"`
	SimilaritySummary string         `json:"similaritySummary,omitempty"`
	ExtraValueThemes  []string       `json:"extraValueThemes,omitempty"`
	FreshnessNote     string         `json:"freshnessNote,omitempty"`
}
