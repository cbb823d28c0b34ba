package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscapeAppleScript(t *testing.T) {
	assert.Equal(t, `plain`, escapeAppleScript(`plain`))
	assert.Equal(t, `say \"hi\"`, escapeAppleScript(`say "hi"`))
	assert.Equal(t, `back\\slash`, escapeAppleScript(`back\slash`))
}
