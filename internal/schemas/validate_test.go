package schemas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_AllSchemasCompile(t *testing.T) {
	for _, name := range []string{CurrentData, TopicExtraction, ResearchBrief, Draft} {
		t.Run(name, func(t *testing.T) {
			_, err := load(name)
			require.NoError(t, err)
		})
	}
}

func TestValidate_UnknownSchema(t *testing.T) {
	err := Validate("nope", []byte(`{}`))
	var loadErr *SchemaLoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, "nope", loadErr.Name)
}

func TestValidate_TopicExtraction(t *testing.T) {
	valid := `{
		"topics": [{"name": "Brewing ratio", "importance": "essential", "keyTerms": ["ratio"]}],
		"gaps": [{"topic": "Cold brew at altitude"}],
		"editorialStyle": {"tone": "friendly", "averageSentenceLength": 14.5}
	}`
	assert.NoError(t, Validate(TopicExtraction, []byte(valid)))

	badImportance := `{
		"topics": [{"name": "Brewing ratio", "importance": "critical"}],
		"gaps": [],
		"editorialStyle": {}
	}`
	err := Validate(TopicExtraction, []byte(badImportance))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, TopicExtraction, verr.Schema)
	assert.NotEmpty(t, verr.Errors)

	noTopics := `{"topics": [], "gaps": [], "editorialStyle": {}}`
	assert.Error(t, Validate(TopicExtraction, []byte(noTopics)))
}

func TestValidate_ResearchBriefNestedSections(t *testing.T) {
	valid := `{"outline": {"sections": [
		{"heading": "What is cold brew", "level": "h2", "subsections": [{"heading": "History", "level": "h3"}]}
	]}}`
	assert.NoError(t, Validate(ResearchBrief, []byte(valid)))

	badNested := `{"outline": {"sections": [
		{"heading": "What is cold brew", "level": "h2", "subsections": [{"heading": "History", "level": "h4"}]}
	]}}`
	err := Validate(ResearchBrief, []byte(badNested))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Error(), "research_brief validation failed")
}

func TestValidate_MalformedDocument(t *testing.T) {
	err := Validate(Draft, []byte(`{"content": `))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse draft document")
}

func TestValidateJSONString(t *testing.T) {
	schema := `{"type": "object", "required": ["name"], "properties": {"name": {"type": "string"}}}`

	assert.NoError(t, ValidateJSONString(schema, `{"name": "ok"}`))

	err := ValidateJSONString(schema, `{"name": 5}`)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "name", verr.Errors[0].Field)

	err = ValidateJSONString(schema, `{}`)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "(root)", verr.Errors[0].Field)
}
