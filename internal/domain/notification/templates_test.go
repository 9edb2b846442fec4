package notification

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderer_AllKindsBothLanguages(t *testing.T) {
	r, err := NewRenderer("https://club.example/")
	require.NoError(t, err)

	for _, kind := range AllKinds() {
		for _, lang := range []string{"es", "en"} {
			c, err := r.Render(Message{RecipientID: "g1", Kind: kind, Payload: map[string]string{"childName": "Ana"}}, lang)
			require.NoError(t, err, "%s/%s", kind, lang)
			assert.NotEmpty(t, c.Subject)
			assert.NotEmpty(t, c.Text)
			assert.Contains(t, c.HTML, "https://club.example")
			assert.NotContains(t, c.Text, "<no value>")
		}
	}
}

func TestRenderer_ChallengeCompletedPoints(t *testing.T) {
	r, err := NewRenderer("https://club.example")
	require.NoError(t, err)

	msg := Message{
		RecipientID: "g1",
		Kind:        KindChallengeCompleted,
		Payload:     map[string]string{"childName": "Ana", "challengeTitle": "Abrazo", "points": "25"},
	}

	es, err := r.Render(msg, "es")
	require.NoError(t, err)
	assert.Equal(t, "🎉 Ana completó un reto", es.Subject)
	assert.Contains(t, es.Text, "25 puntos Luz")

	msg.Language = "en"
	en, err := r.Render(msg, "es")
	require.NoError(t, err)
	assert.Contains(t, en.Text, "25 Luz points")

	delete(msg.Payload, "points")
	en, err = r.Render(msg, "en")
	require.NoError(t, err)
	assert.NotContains(t, en.Text, "Luz points")
}

func TestRenderer_EscapesHTML(t *testing.T) {
	r, err := NewRenderer("")
	require.NoError(t, err)

	c, err := r.Render(Message{
		RecipientID: "g1",
		Kind:        KindBadgeEarned,
		Payload:     map[string]string{"childName": "<script>x</script>", "badgeName": "Valiente"},
	}, "fr")
	require.NoError(t, err)

	assert.NotContains(t, c.HTML, "<script>")
	assert.Contains(t, c.Subject, "ganó una insignia")
}

func TestMessage_Validate(t *testing.T) {
	assert.True(t, errors.Is(Message{Kind: KindRankUp}.Validate(), ErrInvalidRecipientID))
	assert.True(t, errors.Is(Message{RecipientID: "g", Kind: "PING"}.Validate(), ErrInvalidKind))
	assert.NoError(t, Message{RecipientID: "g", Kind: KindRankUp}.Validate())
}
