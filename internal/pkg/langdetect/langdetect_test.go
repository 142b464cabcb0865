package langdetect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetect(t *testing.T) {
	t.Run("English sentence", func(t *testing.T) {
		lang, ok := Detect("Every claim must include the policy number and the date of the incident.")

		assert.True(t, ok)
		assert.Equal(t, "en", lang.Code)
		assert.Equal(t, "English", lang.Name)
	})

	t.Run("Spanish sentence", func(t *testing.T) {
		assert.Equal(t, "es", Code("Cada reclamación debe incluir el número de póliza y la fecha del incidente."))
	})

	t.Run("Short text is not tagged", func(t *testing.T) {
		_, ok := Detect("hi")

		assert.False(t, ok)
		assert.Equal(t, "", Code("ok"))
	})
}
