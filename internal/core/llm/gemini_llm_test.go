package llm

import (
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/spacechat/internal/models"
)

func TestToGeminiHistory(t *testing.T) {
	turns := []models.ChatTurn{
		{Role: models.RoleAssistant, Content: "Hi, ask me anything."},
		{Role: models.RoleUser, Content: "Who are you?"},
		{Role: models.RoleUser, Content: "And what do you do?"},
		{Role: models.RoleAssistant, Content: "I run a bakery."},
	}

	got := toGeminiHistory(turns)

	require.Len(t, got, 2)
	assert.Equal(t, "user", got[0].Role)
	assert.Equal(t, []genai.Part{genai.Text("Who are you?"), genai.Text("And what do you do?")}, got[0].Parts)
	assert.Equal(t, "model", got[1].Role)
}

func TestToGeminiHistory_TrailingUserDropped(t *testing.T) {
	got := toGeminiHistory([]models.ChatTurn{{Role: models.RoleUser, Content: "hello?"}})
	assert.Empty(t, got)
}

func TestResponseText(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text("Founded "), genai.Text("2024.")}},
		}},
	}
	assert.Equal(t, "Founded 2024.", responseText(resp))
	assert.Equal(t, "", responseText(nil))
}
